package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kalambet/mixtape/internal/catalog"
	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/profile"
	"github.com/kalambet/mixtape/internal/scoring"
)

const (
	// DefaultLength is the playlist length when the caller does not ask
	// for one.
	DefaultLength = 25

	resolveBatchSize  = 5
	resolveBatchDelay = 200 * time.Millisecond
)

// Resolver turns a catalog candidate into a feature vector, typically via a
// cache backed by the metadata provider.
type Resolver interface {
	Resolve(ctx context.Context, c catalog.Candidate) (features.Track, error)
}

// History supplies per-user listening stats for a set of catalog IDs.
// Implementations return entries only for tracks the user has history on.
type History interface {
	Stats(ctx context.Context, userID string, catalogIDs []string) (map[string]features.ListeningStats, error)
}

// Generator runs the full recommendation pipeline: aggregate candidates,
// resolve feature vectors, join listening history, score, pick a diverse
// subset and order it for flow.
type Generator struct {
	agg      *Aggregator
	resolver Resolver
	history  History // may be nil: scoring then sees no play history
	scorer   *scoring.Scorer
	mapper   *features.Mapper
}

// NewGenerator wires a Generator. history may be nil.
func NewGenerator(cat Catalog, resolver Resolver, history History, scorer *scoring.Scorer) *Generator {
	return &Generator{
		agg:      NewAggregator(cat),
		resolver: resolver,
		history:  history,
		scorer:   scorer,
		mapper:   features.NewMapper(),
	}
}

// Generate produces up to length recommendations for the profile under the
// given context. It returns ErrNoCandidates when the catalog yields nothing.
func (g *Generator) Generate(ctx context.Context, userID string, p profile.Profile, sctx scoring.Context, length int) ([]scoring.Result, error) {
	if length <= 0 {
		length = DefaultLength
	}

	cands, err := g.agg.Aggregate(ctx, p, sctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate candidates: %w", err)
	}

	tracks, err := g.resolveAll(ctx, cands)
	if err != nil {
		return nil, err
	}

	if g.history != nil {
		g.joinHistory(ctx, userID, tracks)
	}

	results := make([]scoring.Result, 0, len(tracks))
	for _, t := range tracks {
		results = append(results, g.scorer.Score(p, sctx, t))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	selected := applyDiversity(results, length, p.Discovery.NoveltyTolerance)
	ordered := reorderForFlow(selected)

	slog.Debug("playlist generated",
		"candidates", len(cands),
		"selected", len(ordered),
		"requested", length,
	)
	return ordered, nil
}

// resolveAll fetches feature vectors in small batches with a short pause
// between them so the metadata provider is not hammered. A failed lookup
// degrades to a neutral proxy vector instead of dropping the candidate.
func (g *Generator) resolveAll(ctx context.Context, cands []catalog.Candidate) ([]features.Track, error) {
	tracks := make([]features.Track, 0, len(cands))
	for start := 0; start < len(cands); start += resolveBatchSize {
		if start > 0 {
			select {
			case <-time.After(resolveBatchDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		end := start + resolveBatchSize
		if end > len(cands) {
			end = len(cands)
		}
		for _, c := range cands[start:end] {
			t, err := g.resolver.Resolve(ctx, c)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				slog.Debug("resolve failed, using proxy vector", "catalog_id", c.CatalogID, "error", err)
				t = g.mapper.Map(c, nil, nil)
			}
			tracks = append(tracks, t)
		}
	}
	return tracks, nil
}

// joinHistory attaches per-user listening stats to the resolved tracks.
// History failures only cost scoring signal, never the playlist.
func (g *Generator) joinHistory(ctx context.Context, userID string, tracks []features.Track) {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.CatalogID
	}
	stats, err := g.history.Stats(ctx, userID, ids)
	if err != nil {
		slog.Warn("listening history unavailable", "error", err)
		return
	}
	for i := range tracks {
		if s, ok := stats[tracks[i].CatalogID]; ok {
			tracks[i].Stats = s
		}
	}
}
