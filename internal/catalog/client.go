package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultTimeout = 10 * time.Second

// Client talks to the music catalog provider over HTTP. All methods return
// validated, tagged response shapes; a non-2xx status is an error the caller
// may treat as "no result" (the aggregator isolates per-source failures).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the given provider base URL. When ts is non-nil
// requests carry OAuth bearer tokens refreshed through it.
func New(baseURL string, ts oauth2.TokenSource) *Client {
	hc := &http.Client{Timeout: defaultTimeout}
	if ts != nil {
		hc = oauth2.NewClient(context.Background(), ts)
		hc.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: hc,
	}
}

type searchResponse struct {
	Results []candidateEntry `json:"results"`
}

type candidateEntry struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	Year       int      `json:"year"`
	Popularity float64  `json:"popularity"`
}

func (e candidateEntry) toCandidate() Candidate {
	return Candidate{
		CatalogID:  e.ID,
		Title:      e.Title,
		Artists:    e.Artists,
		Year:       e.Year,
		Popularity: e.Popularity,
	}
}

// Search runs a free-text catalog search. filter may be "" or one of the
// provider's result kinds (songs, albums, artists, playlists).
func (c *Client) Search(ctx context.Context, query, filter string, limit int) ([]Candidate, error) {
	q := url.Values{}
	q.Set("q", query)
	if filter != "" {
		q.Set("filter", filter)
	}
	q.Set("limit", strconv.Itoa(limit))

	var resp searchResponse
	if err := c.get(ctx, "/v1/search?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("catalog search %q: %w", query, err)
	}
	return validCandidates(resp.Results), nil
}

// LibraryTracks returns up to limit tracks from the user's library.
func (c *Client) LibraryTracks(ctx context.Context, limit int) ([]Candidate, error) {
	var resp searchResponse
	if err := c.get(ctx, "/v1/library/tracks?limit="+strconv.Itoa(limit), &resp); err != nil {
		return nil, fmt.Errorf("library tracks: %w", err)
	}
	return validCandidates(resp.Results), nil
}

// Recommendations asks the similarity recommender for candidates near the
// given seeds and/or mood targets.
func (c *Client) Recommendations(ctx context.Context, seed RecommendationSeed) ([]Candidate, error) {
	q := url.Values{}
	if len(seed.SeedIDs) > 0 {
		q.Set("seeds", strings.Join(seed.SeedIDs, ","))
	}
	if seed.UseTargets {
		q.Set("target_valence", strconv.FormatFloat(seed.TargetValence, 'f', 3, 64))
		q.Set("target_energy", strconv.FormatFloat(seed.TargetEnergy, 'f', 3, 64))
	}
	limit := seed.Limit
	if limit <= 0 {
		limit = 20
	}
	q.Set("limit", strconv.Itoa(limit))

	var resp searchResponse
	if err := c.get(ctx, "/v1/recommendations?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("recommendations: %w", err)
	}
	return validCandidates(resp.Results), nil
}

// Playlist returns one playlist by ID.
func (c *Client) Playlist(ctx context.Context, playlistID string) (Playlist, error) {
	var resp struct {
		Playlist Playlist `json:"playlist"`
	}
	if err := c.get(ctx, "/v1/playlists/"+url.PathEscape(playlistID), &resp); err != nil {
		return Playlist{}, fmt.Errorf("playlist %s: %w", playlistID, err)
	}
	return resp.Playlist, nil
}

// LibraryPlaylists returns the user's playlists.
func (c *Client) LibraryPlaylists(ctx context.Context) ([]Playlist, error) {
	var resp struct {
		Playlists []Playlist `json:"playlists"`
	}
	if err := c.get(ctx, "/v1/library/playlists", &resp); err != nil {
		return nil, fmt.Errorf("library playlists: %w", err)
	}
	return resp.Playlists, nil
}

// CreatePlaylist creates an empty playlist and returns its ID. privacy is
// one of PRIVATE, PUBLIC or UNLISTED.
func (c *Client) CreatePlaylist(ctx context.Context, title, description, privacy string) (string, error) {
	body := map[string]string{
		"title":       title,
		"description": description,
		"privacy":     privacy,
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/v1/playlists", body, &resp); err != nil {
		return "", fmt.Errorf("creating playlist %q: %w", title, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("creating playlist %q: provider returned no id", title)
	}
	return resp.ID, nil
}

// AddTracks appends catalog IDs to an existing playlist.
func (c *Client) AddTracks(ctx context.Context, playlistID string, catalogIDs []string) error {
	body := map[string]any{"track_ids": catalogIDs}
	if err := c.post(ctx, "/v1/playlists/"+url.PathEscape(playlistID)+"/tracks", body, nil); err != nil {
		return fmt.Errorf("adding %d tracks to playlist %s: %w", len(catalogIDs), playlistID, err)
	}
	return nil
}

// RemoveTracks removes catalog IDs from an existing playlist.
func (c *Client) RemoveTracks(ctx context.Context, playlistID string, catalogIDs []string) error {
	body := map[string]any{"track_ids": catalogIDs}
	if err := c.post(ctx, "/v1/playlists/"+url.PathEscape(playlistID)+"/tracks/remove", body, nil); err != nil {
		return fmt.Errorf("removing %d tracks from playlist %s: %w", len(catalogIDs), playlistID, err)
	}
	return nil
}

// EditPlaylist updates a playlist's title and/or description. Empty fields
// are left unchanged by the provider.
func (c *Client) EditPlaylist(ctx context.Context, playlistID, title, description string) error {
	body := map[string]string{"title": title, "description": description}
	if err := c.post(ctx, "/v1/playlists/"+url.PathEscape(playlistID)+"/edit", body, nil); err != nil {
		return fmt.Errorf("editing playlist %s: %w", playlistID, err)
	}
	return nil
}

// DeletePlaylist removes a playlist from the user's library.
func (c *Client) DeletePlaylist(ctx context.Context, playlistID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/playlists/"+url.PathEscape(playlistID), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deleting playlist %s: %w", playlistID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("deleting playlist %s: unexpected status %d", playlistID, resp.StatusCode)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshalling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// validCandidates drops entries missing the fields the pipeline requires.
func validCandidates(entries []candidateEntry) []Candidate {
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" || e.Title == "" {
			continue
		}
		out = append(out, e.toCandidate())
	}
	return out
}
