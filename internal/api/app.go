package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/mixtape/internal/conversation"
	"github.com/kalambet/mixtape/internal/profile"
	"github.com/kalambet/mixtape/internal/scoring"
	"github.com/kalambet/mixtape/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Store     *storage.Store
	Sessions  *conversation.Manager
	Generator PlaylistGenerator
	Catalog   MusicCatalog
	Token     string
	UserID    string
}

// NewAppHandler returns the HTTP API. Everything except /health requires the
// bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/sessions", handleStartSession(deps))
		r.Get("/sessions", handleListSessions(deps))
		r.Get("/sessions/{id}", handleGetSession(deps))
		r.Post("/sessions/{id}/turns", handleAddTurn(deps))
		r.Post("/sessions/{id}/generate", handleGenerate(deps))
		r.Get("/profile", handleGetProfile(deps))
		r.Patch("/profile", handlePatchProfile(deps))
		r.Get("/profile/code", handleGetProfileCode(deps))
		r.Get("/history", handleListHistory(deps))
		r.Post("/history", handleRecordPlay(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleStartSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.Sessions.Start(r.Context(), deps.UserID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to start session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"session_id": sess.ID,
			"message":    sess.Turns[0].Content,
		})
	}
}

// SessionSummary is the listing shape for GET /sessions: lifecycle and
// progress only, no conversation history.
type SessionSummary struct {
	ID         string             `json:"id"`
	State      conversation.State `json:"state"`
	Confidence int                `json:"confidence"`
	Turns      int                `json:"turns"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func handleListSessions(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 10, 100)

		sessions, err := deps.Store.RecentSessions(r.Context(), deps.UserID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sessions: %v", err)
			return
		}

		now := time.Now()
		summaries := make([]SessionSummary, len(sessions))
		for i, sess := range sessions {
			summaries[i] = SessionSummary{
				ID:         sess.ID,
				State:      sess.State(now),
				Confidence: sess.Confidence,
				Turns:      sess.QuestionCount,
				UpdatedAt:  sess.UpdatedAt,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summaries)
	}
}

func handleGetSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		sess, err := deps.Sessions.Get(r.Context(), id)
		if errors.Is(err, conversation.ErrSessionNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sess)
	}
}

// TurnRequest carries one interview exchange. Profile is the partial
// preference object the caller extracted from the listener's message.
type TurnRequest struct {
	Message string          `json:"message"`
	Reply   string          `json:"reply"`
	Profile json.RawMessage `json:"profile"`
}

func handleAddTurn(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		// Absent fields must stay Unknown, so the partial is unmarshalled
		// over a fresh all-Unknown profile rather than a zero struct.
		partial := profile.New()
		if len(req.Profile) > 0 {
			if err := json.Unmarshal(req.Profile, &partial); err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid profile: %v", err)
				return
			}
		}

		sess, err := deps.Sessions.AddTurn(r.Context(), id, req.Message, req.Reply, partial)
		if err != nil {
			writeSessionError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(turnStatus(sess, time.Now()))
	}
}

// GenerateRequest parameterizes playlist generation. All fields are optional.
type GenerateRequest struct {
	Title  string `json:"title"`
	Length int    `json:"length"`
}

func handleGenerate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		out, err := generateForSession(r.Context(), deps.Store, deps.Sessions, deps.Generator, deps.Catalog,
			deps.UserID, id, req.Title, req.Length)
		var refusal *conversation.RefusalError
		if errors.As(err, &refusal) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(refusal.Refusal)
			return
		}
		if err != nil {
			writeSessionError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(out)
	}
}

func handleGetProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := deps.Store.GetProfileCode(r.Context(), deps.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no stored profile")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		}

		p, err := profile.Decode(code)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to decode stored profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"code": code, "profile": p})
	}
}

func handlePatchProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		partial := profile.New()
		if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		base := profile.New()
		code, err := deps.Store.GetProfileCode(r.Context(), deps.UserID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// First patch bootstraps the profile.
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile: %v", err)
			return
		default:
			if base, err = profile.Decode(code); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to decode stored profile: %v", err)
				return
			}
		}

		merged := profile.Merge(base, partial)
		newCode, err := profile.Encode(merged)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "profile out of range: %v", err)
			return
		}
		if err := deps.Store.SetProfileCode(r.Context(), deps.UserID, newCode); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "updated", "code": newCode})
	}
}

func handleGetProfileCode(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := deps.Store.GetProfileCode(r.Context(), deps.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no stored profile")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get profile code: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"code": code})
	}
}

func handleListHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)

		entries, err := deps.Store.ListHistory(r.Context(), deps.UserID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list history: %v", err)
			return
		}
		if entries == nil {
			entries = []storage.HistoryEntry{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

// PlayRequest reports one track play for the listening history.
type PlayRequest struct {
	CatalogID string `json:"catalog_id"`
	Artist    string `json:"artist"`
}

func handleRecordPlay(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req PlayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.CatalogID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "catalog_id is required")
			return
		}

		if err := deps.Store.RecordPlay(r.Context(), deps.UserID, req.CatalogID, req.Artist, time.Now()); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record play: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
	}
}

// GeneratedPlaylist is the response shape shared by the HTTP and MCP generate
// surfaces.
type GeneratedPlaylist struct {
	PlaylistID  string         `json:"playlist_id"`
	Title       string         `json:"title"`
	ProfileCode string         `json:"profile_code"`
	Tracks      []TrackSummary `json:"tracks"`
}

// TrackSummary is one generated playlist entry.
type TrackSummary struct {
	CatalogID string  `json:"catalog_id"`
	Title     string  `json:"title"`
	Artist    string  `json:"artist"`
	Score     float64 `json:"score"`
}

// generateForSession runs the full generation flow for a ready session:
// verify readiness, score and assemble the playlist, save it to the library
// with the profile code embedded in the description, persist the code and
// complete the session. A below-threshold session surfaces as *RefusalError.
func generateForSession(ctx context.Context, store *storage.Store, sessions *conversation.Manager,
	gen PlaylistGenerator, cat MusicCatalog, userID, sessionID, title string, length int) (*GeneratedPlaylist, error) {

	sess, err := sessions.EnsureReady(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sctx := scoring.ContextFromProfile(sess.Profile, now)
	results, err := gen.Generate(ctx, userID, sess.Profile, sctx, length)
	if err != nil {
		return nil, fmt.Errorf("generating playlist: %w", err)
	}

	code, err := profile.Encode(sess.Profile)
	if err != nil {
		return nil, fmt.Errorf("encoding profile: %w", err)
	}

	if title == "" {
		title = "Mixtape " + now.Format("Jan 2, 2006")
	}
	description := profile.EmbedCode("Made from our conversation.", code)

	playlistID, err := cat.CreatePlaylist(ctx, title, description, "PRIVATE")
	if err != nil {
		return nil, fmt.Errorf("creating playlist: %w", err)
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Track.CatalogID
	}
	if err := cat.AddTracks(ctx, playlistID, ids); err != nil {
		return nil, fmt.Errorf("adding tracks to playlist %s: %w", playlistID, err)
	}

	if err := store.SetProfileCode(ctx, userID, code); err != nil {
		return nil, fmt.Errorf("storing profile code: %w", err)
	}
	if _, err := sessions.Complete(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("completing session: %w", err)
	}

	tracks := make([]TrackSummary, len(results))
	for i, r := range results {
		tracks[i] = TrackSummary{
			CatalogID: r.Track.CatalogID,
			Title:     r.Track.Title,
			Artist:    r.Track.Artist(),
			Score:     r.Score,
		}
	}

	return &GeneratedPlaylist{
		PlaylistID:  playlistID,
		Title:       title,
		ProfileCode: code,
		Tracks:      tracks,
	}, nil
}

// writeSessionError maps session lifecycle errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		httpError(w, http.StatusNotFound, "not_found", "session not found")
	case errors.Is(err, conversation.ErrSessionCompleted):
		httpError(w, http.StatusConflict, "invalid_request_error", "session already completed")
	case errors.Is(err, conversation.ErrSessionExpired):
		httpError(w, http.StatusGone, "invalid_request_error", "session expired")
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
