package scoring

import (
	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/profile"
)

// Mood-state thresholds on the unit scale.
const (
	lowValence  = 0.35
	highArousal = 0.65
	highVal     = 0.65
)

// modulationFactor is the second-pass multiplicative adjustment applied
// after the base weighted score. It sits outside the 1.0 weight budget;
// the final product is clamped to [0,1] by the caller.
func modulationFactor(p profile.Profile, ctx Context, t features.Track, novelty float64) float64 {
	m := 1.0

	cv := unit(ctx.MoodValence, profile.ScaleMax)
	ca := unit(ctx.MoodArousal, profile.ScaleMax)

	stressed := profile.Known(ctx.MoodValence) && profile.Known(ctx.MoodArousal) &&
		cv < lowValence && ca > highArousal
	energized := profile.Known(ctx.MoodValence) && profile.Known(ctx.MoodArousal) &&
		cv > highVal && ca > highArousal

	if stressed {
		// Stress suppresses the unfamiliar and rewards the comforting.
		m *= 1 - 0.3*novelty
		if novelty < 0.3 && t.Complexity <= profile.Midpoint {
			m *= 1.15
		}
	}
	if energized {
		m *= 1 + 0.2*novelty
	}

	// Activity hard penalties: a workout with a ballad is a category error,
	// not a taste mismatch.
	if c, ok := activityConstraints[ctx.Activity]; ok && c.hard {
		if (c.minTempo >= 0 && t.Tempo < c.minTempo) ||
			(c.minEnergy >= 0 && t.Energy < c.minEnergy) ||
			(c.maxTempo >= 0 && t.Tempo > c.maxTempo) ||
			(c.maxEnergy >= 0 && t.Energy > c.maxEnergy) {
			m *= 0.4
		}
	}

	// Crowds want hits.
	social := ctx.SocialSetting == profile.SocialPartyCrowd || ctx.SocialSetting == profile.SocialLargeGroup
	if ctx.Activity == profile.ActivityParty || social {
		switch {
		case t.Popularity >= 0.7:
			m *= 1.3
		case t.Popularity < 0.3:
			m *= 0.8
		}
	}

	// Young listeners in social settings get a trending boost.
	if social && isYouth(p) && t.Year >= currentEraYear-2 && t.Popularity >= 0.6 {
		m *= 1.2
	}

	return m
}

func isYouth(p profile.Profile) bool {
	if profile.Known(p.Age.BirthYear) {
		return currentEraYear-(1900+p.Age.BirthYear) < 25
	}
	return profile.Known(p.Age.Bracket) && p.Age.Bracket <= 2
}
