// Package enrich resolves catalog candidates into feature vectors, through a
// TTL'd shared cache, and runs the background worker that warms that cache
// from the job queue.
package enrich

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kalambet/mixtape/internal/catalog"
	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/metadata"
	"github.com/kalambet/mixtape/internal/storage"
)

// DefaultFeatureTTL is how long a cached feature vector stays fresh. Track
// metadata drifts slowly; a month keeps provider traffic negligible.
const DefaultFeatureTTL = 30 * 24 * time.Hour

// FeatureStore is the cache surface the resolver needs.
type FeatureStore interface {
	GetTrackFeatures(ctx context.Context, catalogID string, ttl time.Duration) (features.Track, error)
	SetTrackFeatures(ctx context.Context, t features.Track) error
}

// Metadata is the provider surface for tags and audio features.
type Metadata interface {
	SearchEntity(ctx context.Context, name, kind string) (metadata.Entity, error)
	Features(ctx context.Context, catalogID, title, artist string) (*metadata.AudioFeatures, error)
}

// Resolver maps candidates to feature vectors, reading through the shared
// cache and writing back on miss.
type Resolver struct {
	cache  FeatureStore
	meta   Metadata
	mapper *features.Mapper
	ttl    time.Duration
}

// NewResolver creates a Resolver. A ttl <= 0 falls back to DefaultFeatureTTL.
func NewResolver(cache FeatureStore, meta Metadata, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultFeatureTTL
	}
	return &Resolver{cache: cache, meta: meta, mapper: features.NewMapper(), ttl: ttl}
}

// Resolve returns the candidate's feature vector, from cache when fresh.
// Provider failures degrade toward the neutral proxy vector inside the
// mapper; only context cancellation propagates as an error.
func (r *Resolver) Resolve(ctx context.Context, c catalog.Candidate) (features.Track, error) {
	t, err := r.cache.GetTrackFeatures(ctx, c.CatalogID, r.ttl)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		slog.Warn("feature cache read failed", "catalog_id", c.CatalogID, "error", err)
	}

	t, err = r.fetch(ctx, c)
	if err != nil {
		return features.Track{}, err
	}
	if err := r.cache.SetTrackFeatures(ctx, t); err != nil {
		slog.Warn("feature cache write failed", "catalog_id", c.CatalogID, "error", err)
	}
	return t, nil
}

// fetch queries both providers and maps whatever they returned. Either call
// may fail or come back empty; the mapper fills the gaps.
func (r *Resolver) fetch(ctx context.Context, c catalog.Candidate) (features.Track, error) {
	var tags []metadata.Tag
	entity, err := r.meta.SearchEntity(ctx, entityQuery(c), "track")
	if err != nil {
		if ctx.Err() != nil {
			return features.Track{}, ctx.Err()
		}
		slog.Debug("tag lookup failed", "catalog_id", c.CatalogID, "error", err)
	} else {
		tags = entity.Tags
	}

	af, err := r.meta.Features(ctx, c.CatalogID, c.Title, primaryArtist(c))
	if err != nil {
		if ctx.Err() != nil {
			return features.Track{}, ctx.Err()
		}
		slog.Debug("audio feature lookup failed", "catalog_id", c.CatalogID, "error", err)
		af = nil
	}

	return r.mapper.Map(c, tags, af), nil
}

func entityQuery(c catalog.Candidate) string {
	if a := primaryArtist(c); a != "" {
		return c.Title + " " + a
	}
	return c.Title
}

func primaryArtist(c catalog.Candidate) string {
	if len(c.Artists) == 0 {
		return ""
	}
	return c.Artists[0]
}
