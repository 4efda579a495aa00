// Package metadata wraps the tag/genre and audio-feature providers. Both are
// best-effort: an unavailable provider degrades to "no metadata", never to a
// pipeline failure.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Tag is a weighted label from the tag provider. Count is the provider's
// association strength (how often the tag was applied).
type Tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Entity is a resolved catalog entity with its tags.
type Entity struct {
	ID   string `json:"id"`
	Tags []Tag  `json:"tags"`
}

// AudioFeatures is the provider-native normalized feature vector. All fields
// except TempoBPM are on a 0–1 scale; Mode is 1 for major, 0 for minor.
type AudioFeatures struct {
	TempoBPM         float64 `json:"tempo"`
	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Danceability     float64 `json:"danceability"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Mode             int     `json:"mode"`
}

// Client talks to the metadata provider (tags and audio features).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client for the given base URL. apiKey may be empty for
// providers that do not require one.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 8 * time.Second},
	}
}

// SearchEntity resolves a named entity of the given kind ("track" or
// "artist") and returns it with its weighted tags. A no-match response
// returns a zero Entity and no error.
func (c *Client) SearchEntity(ctx context.Context, name, kind string) (Entity, error) {
	q := url.Values{}
	q.Set("name", name)
	q.Set("kind", kind)

	var resp struct {
		Entity *Entity `json:"entity"`
	}
	if err := c.get(ctx, "/v1/entity?"+q.Encode(), &resp); err != nil {
		return Entity{}, fmt.Errorf("entity search %q: %w", name, err)
	}
	if resp.Entity == nil {
		return Entity{}, nil
	}
	return *resp.Entity, nil
}

// Features returns the audio-feature vector for a track, looked up by
// catalog ID when available, otherwise by title+artist. A nil result with no
// error means the provider has no data for the track.
func (c *Client) Features(ctx context.Context, catalogID, title, artist string) (*AudioFeatures, error) {
	q := url.Values{}
	if catalogID != "" {
		q.Set("id", catalogID)
	} else {
		q.Set("title", title)
		q.Set("artist", artist)
	}

	var resp struct {
		Features *AudioFeatures `json:"features"`
	}
	if err := c.get(ctx, "/v1/features?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("feature lookup: %w", err)
	}
	return resp.Features, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil // provider reports no data; caller sees zero values
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
