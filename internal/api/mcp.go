package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/mixtape/internal/catalog"
	"github.com/kalambet/mixtape/internal/conversation"
	"github.com/kalambet/mixtape/internal/enrich"
	"github.com/kalambet/mixtape/internal/profile"
	"github.com/kalambet/mixtape/internal/scoring"
	"github.com/kalambet/mixtape/internal/storage"
)

// MusicCatalog abstracts the music provider operations the API surfaces
// expose directly. *catalog.Client satisfies it.
type MusicCatalog interface {
	Search(ctx context.Context, query, filter string, limit int) ([]catalog.Candidate, error)
	Playlist(ctx context.Context, playlistID string) (catalog.Playlist, error)
	LibraryPlaylists(ctx context.Context) ([]catalog.Playlist, error)
	CreatePlaylist(ctx context.Context, title, description, privacy string) (string, error)
	AddTracks(ctx context.Context, playlistID string, catalogIDs []string) error
	RemoveTracks(ctx context.Context, playlistID string, catalogIDs []string) error
	EditPlaylist(ctx context.Context, playlistID, title, description string) error
	DeletePlaylist(ctx context.Context, playlistID string) error
}

// PlaylistGenerator abstracts playlist generation for the API surfaces.
type PlaylistGenerator interface {
	Generate(ctx context.Context, userID string, p profile.Profile, sctx scoring.Context, length int) ([]scoring.Result, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Sessions  *conversation.Manager
	Generator PlaylistGenerator
	Catalog   MusicCatalog
	// UserID scopes sessions, the profile and listening history. The server
	// runs single-user; the default is set by the caller.
	UserID string
}

// NewMCPServer creates an MCP server with all mixtape tools and resources
// registered. The calling model does the talking; these tools hold the
// session state, the profile math and the catalog access.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"mixtape",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("mixtape — conversational playlist maker. Run a short interview with start_profile_session and profile_turn, then generate_playlist once the session is ready."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("start_profile_session",
			mcp.WithDescription("Open a new profiling conversation. Returns the session ID and the scripted opening message to relay to the listener."),
		),
		mcpStartSession(deps),
	)

	s.AddTool(
		mcp.NewTool("profile_turn",
			mcp.WithDescription("Record one interview exchange: the listener's answer, your next question, and the preference fields you extracted from the answer."),
			mcp.WithString("session_id", mcp.Description("Session ID from start_profile_session"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The listener's message, verbatim"), mcp.Required()),
			mcp.WithString("reply", mcp.Description("Your reply or next question"), mcp.Required()),
			mcp.WithString("profile", mcp.Description("JSON object of preference fields extracted from the message; omit anything the listener did not express"), mcp.Required()),
		),
		mcpProfileTurn(deps),
	)

	s.AddTool(
		mcp.NewTool("generate_playlist",
			mcp.WithDescription("Generate a playlist from a ready session and save it to the listener's library. Refuses with structured guidance when the session needs more turns."),
			mcp.WithString("session_id", mcp.Description("Session ID"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Playlist title (default derived from the date)")),
			mcp.WithNumber("length", mcp.Description("Number of tracks (default 25)")),
		),
		mcpGeneratePlaylist(deps),
	)

	s.AddTool(
		mcp.NewTool("get_profile_code",
			mcp.WithDescription("Return the compact profile code — from a session when session_id is given, otherwise the listener's stored code."),
			mcp.WithString("session_id", mcp.Description("Optional session ID")),
		),
		mcpGetProfileCode(deps),
	)

	s.AddTool(
		mcp.NewTool("import_profile_code",
			mcp.WithDescription("Recover a profile code embedded in free text (e.g. a playlist description) and store it as the listener's profile."),
			mcp.WithString("text", mcp.Description("Text that may contain an embedded profile code"), mcp.Required()),
		),
		mcpImportProfileCode(deps),
	)

	s.AddTool(
		mcp.NewTool("search_music",
			mcp.WithDescription("Search the music catalog."),
			mcp.WithString("query", mcp.Description("Free-text search query"), mcp.Required()),
			mcp.WithString("filter", mcp.Description("Result kind: songs, albums, artists or playlists")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchMusic(deps),
	)

	s.AddTool(
		mcp.NewTool("get_playlist",
			mcp.WithDescription("Fetch one playlist by ID."),
			mcp.WithString("playlist_id", mcp.Description("Playlist ID"), mcp.Required()),
		),
		mcpGetPlaylist(deps),
	)

	s.AddTool(
		mcp.NewTool("record_play",
			mcp.WithDescription("Record that the listener played a track. Listening history feeds the familiarity and novelty scoring."),
			mcp.WithString("catalog_id", mcp.Description("Catalog track ID"), mcp.Required()),
			mcp.WithString("artist", mcp.Description("Primary artist name")),
		),
		mcpRecordPlay(deps),
	)

	s.AddTool(
		mcp.NewTool("get_library_playlists",
			mcp.WithDescription("List the playlists in the listener's library."),
		),
		mcpLibraryPlaylists(deps),
	)

	s.AddTool(
		mcp.NewTool("create_playlist",
			mcp.WithDescription("Create an empty playlist. The listener's profile code is embedded in the description so a future conversation can pick the profile back up."),
			mcp.WithString("title", mcp.Description("Playlist title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Playlist description")),
			mcp.WithString("privacy", mcp.Description("PRIVATE, PUBLIC or UNLISTED (default PRIVATE)")),
		),
		mcpCreatePlaylist(deps),
	)

	s.AddTool(
		mcp.NewTool("add_songs_to_playlist",
			mcp.WithDescription("Append catalog tracks to an existing playlist."),
			mcp.WithString("playlist_id", mcp.Description("Playlist ID"), mcp.Required()),
			mcp.WithArray("track_ids", mcp.Description("Catalog track IDs to append"), mcp.Required()),
		),
		mcpAddSongs(deps),
	)

	s.AddTool(
		mcp.NewTool("remove_songs_from_playlist",
			mcp.WithDescription("Remove catalog tracks from an existing playlist."),
			mcp.WithString("playlist_id", mcp.Description("Playlist ID"), mcp.Required()),
			mcp.WithArray("track_ids", mcp.Description("Catalog track IDs to remove"), mcp.Required()),
		),
		mcpRemoveSongs(deps),
	)

	s.AddTool(
		mcp.NewTool("edit_playlist",
			mcp.WithDescription("Change a playlist's title and/or description. Empty fields are left unchanged."),
			mcp.WithString("playlist_id", mcp.Description("Playlist ID"), mcp.Required()),
			mcp.WithString("title", mcp.Description("New title")),
			mcp.WithString("description", mcp.Description("New description")),
		),
		mcpEditPlaylist(deps),
	)

	s.AddTool(
		mcp.NewTool("delete_playlist",
			mcp.WithDescription("Delete a playlist from the listener's library."),
			mcp.WithString("playlist_id", mcp.Description("Playlist ID"), mcp.Required()),
		),
		mcpDeletePlaylist(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"user://profile",
			"Listener Profile",
			mcp.WithResourceDescription("The stored profile code and its decoded dimensions as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfile(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"sessions://recent",
			"Recent Sessions",
			mcp.WithResourceDescription("Last 10 profiling sessions (state and progress only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func mcpStartSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, err := deps.Sessions.Start(ctx, deps.UserID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start session: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{
			"session_id": sess.ID,
			"message":    sess.Turns[0].Content,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal session: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpProfileTurn(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		reply, err := req.RequireString("reply")
		if err != nil {
			return mcpError("reply is required"), nil
		}
		profileJSON, err := req.RequireString("profile")
		if err != nil {
			return mcpError("profile is required"), nil
		}

		// Unmarshal over a fresh all-Unknown profile so absent fields stay
		// unknown instead of collapsing to zero, which is a real preference.
		partial := profile.New()
		if err := json.Unmarshal([]byte(profileJSON), &partial); err != nil {
			return mcpError(fmt.Sprintf("invalid profile JSON: %v", err)), nil
		}

		sess, err := deps.Sessions.AddTurn(ctx, sessionID, message, reply, partial)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to record turn: %v", err)), nil
		}

		b, err := json.Marshal(turnStatus(sess, time.Now()))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

// turnStatus is the progress snapshot returned after every recorded turn. The
// missing list tells the calling model what to ask about next.
func turnStatus(sess *conversation.Session, now time.Time) map[string]any {
	return map[string]any{
		"session_id": sess.ID,
		"state":      sess.State(now),
		"confidence": sess.Confidence,
		"turns":      sess.QuestionCount,
		"missing":    profile.MissingGroups(sess.Profile),
	}
}

func mcpGeneratePlaylist(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		title := req.GetString("title", "")
		length := req.GetInt("length", 0)

		out, err := generateForSession(ctx, deps.Store, deps.Sessions, deps.Generator, deps.Catalog,
			deps.UserID, sessionID, title, length)
		var refusal *conversation.RefusalError
		if errors.As(err, &refusal) {
			// A refusal is a designed outcome the model relays to the
			// listener, not a tool failure.
			b, mErr := json.Marshal(map[string]any{
				"status":  "refused",
				"refusal": refusal.Refusal,
			})
			if mErr != nil {
				return mcpError(fmt.Sprintf("failed to marshal refusal: %v", mErr)), nil
			}
			return mcpText(string(b)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"status":   "created",
			"playlist": out,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal playlist: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetProfileCode(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID := req.GetString("session_id", "")

		if sessionID != "" {
			sess, err := deps.Sessions.Get(ctx, sessionID)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to load session: %v", err)), nil
			}
			code, err := profile.Encode(sess.Profile)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to encode profile: %v", err)), nil
			}
			return mcpText(code), nil
		}

		code, err := deps.Store.GetProfileCode(ctx, deps.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError("no stored profile code yet; run a profiling session first"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to load profile code: %v", err)), nil
		}
		return mcpText(code), nil
	}
}

func mcpImportProfileCode(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}

		code, ok := profile.ExtractCode(text)
		if !ok {
			return mcpError("no profile code found in the text"), nil
		}
		// Validate before storing; a truncated or corrupted marker must not
		// overwrite a good profile.
		if _, err := profile.Decode(code); err != nil {
			return mcpError(fmt.Sprintf("embedded code is invalid: %v", err)), nil
		}

		if err := deps.Store.SetProfileCode(ctx, deps.UserID, code); err != nil {
			return mcpError(fmt.Sprintf("failed to store profile code: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{"status": "imported", "code": code})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpSearchMusic(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		filter := req.GetString("filter", "")
		limit := req.GetInt("limit", 10)
		if limit <= 0 {
			limit = 10
		}
		if limit > 50 {
			limit = 50
		}

		results, err := deps.Catalog.Search(ctx, query, filter, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(results) == 0 {
			return mcpText("[]"), nil
		}

		// Song results are likely playlist material; warm their feature
		// cache in the background so later generation rarely fetches inline.
		if filter == "" || filter == "songs" {
			enrich.EnqueueCandidates(deps.Store, results)
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetPlaylist(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		playlistID, err := req.RequireString("playlist_id")
		if err != nil {
			return mcpError("playlist_id is required"), nil
		}

		pl, err := deps.Catalog.Playlist(ctx, playlistID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get playlist: %v", err)), nil
		}

		b, err := json.Marshal(pl)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal playlist: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecordPlay(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		catalogID, err := req.RequireString("catalog_id")
		if err != nil {
			return mcpError("catalog_id is required"), nil
		}
		artist := req.GetString("artist", "")

		if err := deps.Store.RecordPlay(ctx, deps.UserID, catalogID, artist, time.Now()); err != nil {
			return mcpError(fmt.Sprintf("failed to record play: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Recorded play of %s", catalogID)), nil
	}
}

func mcpLibraryPlaylists(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		playlists, err := deps.Catalog.LibraryPlaylists(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list playlists: %v", err)), nil
		}
		if len(playlists) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(playlists)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal playlists: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCreatePlaylist(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		title, err := req.RequireString("title")
		if err != nil {
			return mcpError("title is required"), nil
		}
		description := req.GetString("description", "")
		privacy := req.GetString("privacy", "PRIVATE")

		// Carry the profile code in the description when one exists, so the
		// playlist itself can seed a future conversation.
		code, err := deps.Store.GetProfileCode(ctx, deps.UserID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("failed to load profile code: %v", err)), nil
		}
		if code != "" {
			description = profile.EmbedCode(description, code)
		}

		id, err := deps.Catalog.CreatePlaylist(ctx, title, description, privacy)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to create playlist: %v", err)), nil
		}

		b, err := json.Marshal(map[string]string{"id": id, "title": title})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal playlist: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpAddSongs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		playlistID, err := req.RequireString("playlist_id")
		if err != nil {
			return mcpError("playlist_id is required"), nil
		}
		trackIDs := req.GetStringSlice("track_ids", nil)
		if len(trackIDs) == 0 {
			return mcpError("track_ids is required"), nil
		}

		if err := deps.Catalog.AddTracks(ctx, playlistID, trackIDs); err != nil {
			return mcpError(fmt.Sprintf("failed to add tracks: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Added %d tracks to playlist %s", len(trackIDs), playlistID)), nil
	}
}

func mcpRemoveSongs(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		playlistID, err := req.RequireString("playlist_id")
		if err != nil {
			return mcpError("playlist_id is required"), nil
		}
		trackIDs := req.GetStringSlice("track_ids", nil)
		if len(trackIDs) == 0 {
			return mcpError("track_ids is required"), nil
		}

		if err := deps.Catalog.RemoveTracks(ctx, playlistID, trackIDs); err != nil {
			return mcpError(fmt.Sprintf("failed to remove tracks: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Removed %d tracks from playlist %s", len(trackIDs), playlistID)), nil
	}
}

func mcpEditPlaylist(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		playlistID, err := req.RequireString("playlist_id")
		if err != nil {
			return mcpError("playlist_id is required"), nil
		}
		title := req.GetString("title", "")
		description := req.GetString("description", "")
		if title == "" && description == "" {
			return mcpError("nothing to change: give a title and/or description"), nil
		}

		if err := deps.Catalog.EditPlaylist(ctx, playlistID, title, description); err != nil {
			return mcpError(fmt.Sprintf("failed to edit playlist: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Updated playlist %s", playlistID)), nil
	}
}

func mcpDeletePlaylist(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		playlistID, err := req.RequireString("playlist_id")
		if err != nil {
			return mcpError("playlist_id is required"), nil
		}

		if err := deps.Catalog.DeletePlaylist(ctx, playlistID); err != nil {
			return mcpError(fmt.Sprintf("failed to delete playlist: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Deleted playlist %s", playlistID)), nil
	}
}

func mcpResourceProfile(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		code, err := deps.Store.GetProfileCode(ctx, deps.UserID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to get profile code: %w", err)
		}

		payload := map[string]any{"code": code}
		if code != "" {
			p, err := profile.Decode(code)
			if err != nil {
				return nil, fmt.Errorf("failed to decode stored profile: %w", err)
			}
			payload["profile"] = p
		}

		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceSessions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sessions, err := deps.Store.RecentSessions(ctx, deps.UserID, 10)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent sessions: %w", err)
		}

		type sessionSummary struct {
			ID         string             `json:"id"`
			State      conversation.State `json:"state"`
			Confidence int                `json:"confidence"`
			Turns      int                `json:"turns"`
			UpdatedAt  string             `json:"updated_at"`
		}

		now := time.Now()
		summaries := make([]sessionSummary, len(sessions))
		for i, sess := range sessions {
			summaries[i] = sessionSummary{
				ID:         sess.ID,
				State:      sess.State(now),
				Confidence: sess.Confidence,
				Turns:      sess.QuestionCount,
				UpdatedAt:  sess.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
