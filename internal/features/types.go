package features

import (
	"time"

	"github.com/kalambet/mixtape/internal/profile"
)

// Track is the canonical per-track feature vector the scorer consumes.
// Dimension fields share the profile's 0–35 scale so proximity math needs no
// rescaling. Cached copies are keyed by CatalogID only; Stats is joined per
// user after the cache and must never be cached globally.
type Track struct {
	CatalogID string   `json:"catalog_id"`
	Title     string   `json:"title"`
	Artists   []string `json:"artists"`
	Year      int      `json:"year"`

	Style          profile.StyleDims `json:"style"`
	Tempo          int               `json:"tempo"`
	Energy         int               `json:"energy"`
	Complexity     int               `json:"complexity"`
	Mode           int               `json:"mode"`
	Predictability int               `json:"predictability"`
	Consonance     int               `json:"consonance"`
	Valence        int               `json:"valence"`
	Arousal        int               `json:"arousal"`

	Genres     []string `json:"genres"`
	Tags       []string `json:"tags"`
	Popularity float64  `json:"popularity"`

	// Proxy marks a vector built from the neutral fallback because no
	// metadata resolved. Proxy tracks stay in the pipeline.
	Proxy bool `json:"proxy,omitempty"`

	// Stats is per-user and excluded from the shared cache.
	Stats ListeningStats `json:"-"`
}

// ListeningStats is the user's history with a track and its artist.
type ListeningStats struct {
	PlayCount       int
	LastPlayedAt    time.Time
	ArtistPlayCount int
	NewArtist       bool
}

// Artist returns the primary artist, or "" when unknown.
func (t Track) Artist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}
