package catalog

// Candidate is a raw track reference returned by the catalog, the library,
// or the similarity recommender. Responses are validated into this shape at
// the client boundary; the core never sees provider payloads.
type Candidate struct {
	CatalogID string   `json:"catalog_id"`
	Title     string   `json:"title"`
	Artists   []string `json:"artists"`
	Year      int      `json:"year,omitempty"`
	// Popularity is the provider's normalized 0–1 popularity signal, 0 when
	// the provider does not report one.
	Popularity float64 `json:"popularity,omitempty"`
}

// Playlist is a playlist reference in the user's library.
type Playlist struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	TrackCount  int    `json:"track_count"`
}

// RecommendationSeed parameterizes a similarity lookup. SeedIDs or the
// target mood coordinates may be empty independently.
type RecommendationSeed struct {
	SeedIDs       []string
	TargetValence float64 // 0–1, ignored if NaN-free zero with UseTargets false
	TargetEnergy  float64
	UseTargets    bool
	Limit         int
}
