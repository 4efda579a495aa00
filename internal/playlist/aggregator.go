// Package playlist turns a profile and a listening context into an ordered
// track list: candidate aggregation from the catalog, per-track scoring,
// diversity enforcement, and flow-aware reordering.
package playlist

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/mixtape/internal/catalog"
	"github.com/kalambet/mixtape/internal/profile"
	"github.com/kalambet/mixtape/internal/scoring"
)

// ErrNoCandidates means every candidate source, including the generic
// fallback search, came back empty.
var ErrNoCandidates = errors.New("playlist: no candidates from any source")

const (
	sourceFetchLimit = 50
	searchFetchLimit = 20
	maxStyleQueries  = 2
)

// Catalog is the candidate-source surface the aggregator needs.
type Catalog interface {
	Recommendations(ctx context.Context, seed catalog.RecommendationSeed) ([]catalog.Candidate, error)
	Search(ctx context.Context, query, filter string, limit int) ([]catalog.Candidate, error)
	LibraryTracks(ctx context.Context, limit int) ([]catalog.Candidate, error)
}

// Aggregator gathers playlist candidates from several catalog sources in
// parallel. Sources fail independently: an unreachable source logs a warning
// and contributes nothing.
type Aggregator struct {
	catalog Catalog
}

// NewAggregator creates an Aggregator over the given catalog client.
func NewAggregator(c Catalog) *Aggregator {
	return &Aggregator{catalog: c}
}

// Aggregate fans out to the similarity recommender, style-derived searches
// and the user's library, then merges the results in that priority order,
// deduplicating by catalog ID. When everything comes back empty it tries one
// generic fallback search before giving up with ErrNoCandidates.
func (a *Aggregator) Aggregate(ctx context.Context, p profile.Profile, sctx scoring.Context) ([]catalog.Candidate, error) {
	queries := searchQueries(p, sctx.Activity)

	// Indexed slots keep the merge order deterministic without a mutex:
	// slot 0 recommendations, then one slot per search, library last.
	slots := make([][]catalog.Candidate, 2+len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)

	g.Go(func() error {
		cands, err := a.catalog.Recommendations(gctx, recommendationSeed(p))
		if err != nil {
			slog.Warn("aggregator: recommendations source failed", "error", err)
			return nil
		}
		slots[0] = cands
		return nil
	})
	for i, q := range queries {
		g.Go(func() error {
			cands, err := a.catalog.Search(gctx, q, "songs", searchFetchLimit)
			if err != nil {
				slog.Warn("aggregator: search source failed", "query", q, "error", err)
				return nil
			}
			slots[1+i] = cands
			return nil
		})
	}
	g.Go(func() error {
		cands, err := a.catalog.LibraryTracks(gctx, sourceFetchLimit)
		if err != nil {
			slog.Warn("aggregator: library source failed", "error", err)
			return nil
		}
		slots[len(slots)-1] = cands
		return nil
	})

	// Goroutines swallow their own errors; Wait only propagates ctx cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := dedupe(slots)
	if len(merged) > 0 {
		return merged, nil
	}

	slog.Warn("aggregator: all sources empty, trying fallback search")
	cands, err := a.catalog.Search(ctx, fallbackQuery(p), "songs", sourceFetchLimit)
	if err != nil || len(cands) == 0 {
		return nil, ErrNoCandidates
	}
	return cands, nil
}

func dedupe(slots [][]catalog.Candidate) []catalog.Candidate {
	seen := make(map[string]struct{})
	var out []catalog.Candidate
	for _, slot := range slots {
		for _, c := range slot {
			if _, ok := seen[c.CatalogID]; ok {
				continue
			}
			seen[c.CatalogID] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// recommendationSeed prefers explicit seed tracks; without them it steers
// the recommender by mood/energy targets derived from the profile.
func recommendationSeed(p profile.Profile) catalog.RecommendationSeed {
	if len(p.SeedTracks) > 0 {
		return catalog.RecommendationSeed{SeedIDs: p.SeedTracks, Limit: sourceFetchLimit}
	}
	return catalog.RecommendationSeed{
		TargetValence: targetUnit(p.Mood.Valence),
		TargetEnergy:  targetUnit(p.Musical.Energy),
		UseTargets:    true,
		Limit:         sourceFetchLimit,
	}
}

func targetUnit(v int) float64 {
	if !profile.Known(v) {
		return 0.5
	}
	return float64(v) / float64(profile.ScaleMax)
}

// styleQueryTerms maps each style dimension to a catalog search phrase.
var styleQueryTerms = []struct {
	value func(profile.StyleDims) int
	term  string
}{
	{func(d profile.StyleDims) int { return d.Mellow }, "acoustic chill"},
	{func(d profile.StyleDims) int { return d.Unpretentious }, "country pop"},
	{func(d profile.StyleDims) int { return d.Sophisticated }, "jazz"},
	{func(d profile.StyleDims) int { return d.Intense }, "rock"},
	{func(d profile.StyleDims) int { return d.Contemporary }, "pop hits"},
}

var activityQueryTerms = map[int]string{
	profile.ActivityWorkout:    "workout",
	profile.ActivityRunning:    "running",
	profile.ActivityStudy:      "focus",
	profile.ActivityWork:       "focus",
	profile.ActivitySleep:      "sleep",
	profile.ActivityMeditation: "ambient",
	profile.ActivityParty:      "party",
	profile.ActivityRelax:      "relaxing",
	profile.ActivityCommute:    "driving",
}

// searchQueries synthesizes up to maxStyleQueries catalog searches from the
// profile's dominant style dimensions, suffixed with an activity term when
// the context pins one.
func searchQueries(p profile.Profile, activity int) []string {
	type scored struct {
		term  string
		value int
	}
	var dominant []scored
	for _, sq := range styleQueryTerms {
		v := sq.value(p.Style)
		if profile.Known(v) && v > profile.Midpoint {
			dominant = append(dominant, scored{term: sq.term, value: v})
		}
	}
	sort.Slice(dominant, func(i, j int) bool { return dominant[i].value > dominant[j].value })
	if len(dominant) > maxStyleQueries {
		dominant = dominant[:maxStyleQueries]
	}

	suffix := activityQueryTerms[activity]
	queries := make([]string, 0, len(dominant))
	for _, d := range dominant {
		q := d.term
		if suffix != "" {
			q += " " + suffix
		}
		queries = append(queries, q)
	}
	return queries
}

// fallbackQuery is the last-resort search when every source came back empty.
func fallbackQuery(p profile.Profile) string {
	if len(p.SeedArtists) > 0 {
		return strings.Join(p.SeedArtists[:1], " ")
	}
	return "popular music"
}
