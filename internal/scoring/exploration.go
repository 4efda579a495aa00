package scoring

import "github.com/kalambet/mixtape/internal/profile"

// novelThreshold splits tracks into "novel" and "familiar" for the
// exploration coin flip.
const novelThreshold = 0.5

// explorationRatio maps the listener's novelty tolerance tier to the share
// of novel tracks the exploration factor admits at full strength.
func explorationRatio(tolerance int) float64 {
	switch {
	case !profile.Known(tolerance) || tolerance <= 3:
		return 0.10
	case tolerance <= 6:
		return 0.20
	default:
		return 0.30
	}
}

// explorationFactor probabilistically admits or suppresses a track based on
// its novelty. Novel tracks pass at full strength with probability equal to
// the exploration ratio and are damped otherwise; familiar tracks are
// occasionally damped to leave room for exploration. Randomness comes from
// the injected source, so seeded tests are deterministic.
func (s *Scorer) explorationFactor(p profile.Profile, novelty float64) float64 {
	ratio := explorationRatio(p.Discovery.NoveltyTolerance)
	roll := s.rng.Float64()

	if novelty > novelThreshold {
		if roll < ratio {
			return 1.0
		}
		return 0.5
	}
	if roll < ratio {
		return 0.8
	}
	return 1.0
}
