package scoring

import (
	"math"

	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/profile"
)

// Novelty component weights (sum to 1.0).
const (
	nwArtist     = 0.30
	nwStyle      = 0.25
	nwAttribute  = 0.15
	nwEra        = 0.15
	nwPopularity = 0.15
)

// noveltyScore is the composite 0–1 "how new is this to the listener"
// measure used by the discovery sub-score, contextual modulation, and the
// exploration factor. 0 = deeply familiar, 1 = entirely new territory.
func noveltyScore(p profile.Profile, t features.Track) float64 {
	artist := artistNovelty(t.Stats)
	style := 1 - styleSimilarity(p.Familiarity, t.Style)
	attribute := attributeNovelty(p, t)
	era := eraNovelty(p, t)
	popularity := 1 - clamp01(t.Popularity)

	return clamp01(nwArtist*artist + nwStyle*style + nwAttribute*attribute +
		nwEra*era + nwPopularity*popularity)
}

func artistNovelty(stats features.ListeningStats) float64 {
	if stats.NewArtist || stats.ArtistPlayCount == 0 {
		return 1.0
	}
	plays := stats.ArtistPlayCount
	if plays > 20 {
		plays = 20
	}
	return 1 - float64(plays)/20
}

// attributeNovelty measures how far the track's tempo/energy sit from the
// listener's stated preferences.
func attributeNovelty(p profile.Profile, t features.Track) float64 {
	tempo := 1 - closeness(p.Musical.Tempo, t.Tempo, profile.ScaleMax)
	energy := 1 - closeness(p.Musical.Energy, t.Energy, profile.ScaleMax)
	return (tempo + energy) / 2
}

// eraNovelty measures distance from the listener's formative era.
func eraNovelty(p profile.Profile, t features.Track) float64 {
	if !profile.Known(p.Age.BirthYear) || t.Year == 0 {
		return 0.5
	}
	bumpCenter := 1900 + p.Age.BirthYear + 17
	dist := math.Abs(float64(t.Year - bumpCenter))
	return clamp01(dist / 30)
}
