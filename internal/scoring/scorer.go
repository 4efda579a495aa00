// Package scoring computes a single [0,1] desirability score per track:
// a three-tier weighted sum (primary 0.70, secondary 0.20, tertiary 0.10)
// multiplied by a contextual modulation factor and an exploration factor,
// then clamped. Every leaf sub-score is independently normalized to [0,1].
// Scoring is pure and synchronous; the only injected effect is the random
// source behind the exploration factor.
package scoring

import (
	"math"
	"math/rand"
	"time"

	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/profile"
)

// Tier weights. The ten leaf weights sum to 1.0.
const (
	wFamiliarity    = 0.30
	wMusical        = 0.25
	wContextFit     = 0.15
	wMood           = 0.08
	wAge            = 0.05
	wDiscovery      = 0.04
	wSophistication = 0.03
	wPersonality    = 0.05
	wCognitive      = 0.03
	wCultural       = 0.02
)

// Result pairs a track with its final score and the full breakdown.
type Result struct {
	Track features.Track

	Score float64

	Primary   float64 // weighted sum of the 0.70 tier, pre-normalization share
	Secondary float64
	Tertiary  float64

	Familiarity    float64
	Musical        float64
	ContextFit     float64
	Mood           float64
	Age            float64
	Discovery      float64
	Sophistication float64
	Personality    float64
	Cognitive      float64
	Cultural       float64

	Novelty     float64
	Modulation  float64
	Exploration float64
}

// Scorer evaluates tracks against a profile and context. The random source
// drives only the exploration factor; inject a seeded source for
// deterministic tests.
type Scorer struct {
	rng *rand.Rand
	// now is stubbed in tests for the recency curve.
	now func() time.Time
}

// NewScorer creates a Scorer. A nil rng falls back to a time-seeded source.
func NewScorer(rng *rand.Rand) *Scorer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Scorer{rng: rng, now: time.Now}
}

// Score computes the full breakdown for one track.
func (s *Scorer) Score(p profile.Profile, ctx Context, t features.Track) Result {
	r := Result{Track: t}

	r.Familiarity = familiarityScore(p, t, s.now())
	r.Musical = musicalScore(p, t)
	r.ContextFit = contextFitScore(ctx, t)

	r.Novelty = noveltyScore(p, t)
	r.Mood = moodScore(p, ctx, t)
	r.Age = ageScore(p, t)
	r.Discovery = discoveryScore(p, r.Novelty)
	r.Sophistication = sophisticationScore(p, t)

	r.Personality = personalityScore(p, t)
	r.Cognitive = cognitiveScore(p, t)
	r.Cultural = culturalScore(p, t)

	r.Primary = wFamiliarity*r.Familiarity + wMusical*r.Musical + wContextFit*r.ContextFit
	r.Secondary = wMood*r.Mood + wAge*r.Age + wDiscovery*r.Discovery + wSophistication*r.Sophistication
	r.Tertiary = wPersonality*r.Personality + wCognitive*r.Cognitive + wCultural*r.Cultural

	r.Modulation = modulationFactor(p, ctx, t, r.Novelty)
	r.Exploration = s.explorationFactor(p, r.Novelty)

	base := r.Primary + r.Secondary + r.Tertiary
	r.Score = clamp01(base * r.Modulation * r.Exploration)
	return r
}

// --- shared helpers ---

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// unit converts a bounded scalar to [0,1]. Unknown maps to the neutral 0.5
// so missing profile data neither rewards nor punishes a track.
func unit(v, max int) float64 {
	if !profile.Known(v) {
		return 0.5
	}
	return clamp01(float64(v) / float64(max))
}

// closeness is 1 at equality, falling linearly to 0 at full-scale distance.
// Unknown on either side returns the neutral 0.5.
func closeness(a, b, max int) float64 {
	if !profile.Known(a) || !profile.Known(b) {
		return 0.5
	}
	return 1 - math.Abs(float64(a-b))/float64(max)
}

// invertedU peaks at 1.0 when x equals peak and decays quadratically,
// reaching 0 at distance width.
func invertedU(x, peak, width float64) float64 {
	d := (x - peak) / width
	return clamp01(1 - d*d)
}

// styleSimilarity averages per-dimension closeness over the five style
// dimensions; profile dims may be Unknown.
func styleSimilarity(pref profile.StyleDims, track profile.StyleDims) float64 {
	pairs := [5][2]int{
		{pref.Mellow, track.Mellow},
		{pref.Unpretentious, track.Unpretentious},
		{pref.Sophisticated, track.Sophisticated},
		{pref.Intense, track.Intense},
		{pref.Contemporary, track.Contemporary},
	}
	sum := 0.0
	for _, pair := range pairs {
		sum += closeness(pair[0], pair[1], profile.ScaleMax)
	}
	return sum / 5
}
