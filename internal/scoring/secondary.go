package scoring

import (
	"math"

	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/profile"
)

// moodScore matches the track's position in 2-D valence/arousal mood space
// against the current mood, blended with the regulation goal's target
// position according to the 0–9 match↔contrast strategy dial.
func moodScore(p profile.Profile, ctx Context, t features.Track) float64 {
	tv := unit(t.Valence, profile.ScaleMax)
	ta := unit(t.Arousal, profile.ScaleMax)

	cv := unit(ctx.MoodValence, profile.ScaleMax)
	ca := unit(ctx.MoodArousal, profile.ScaleMax)
	matchScore := 1 - moodDistance(tv, ta, cv, ca)

	gv, ga := regulationTarget(ctx.RegulationGoal, cv, ca)
	goalScore := 1 - moodDistance(tv, ta, gv, ga)

	// Strategy dial: 0 = mirror the current mood, 9 = steer fully toward
	// the regulation goal.
	w := 0.5
	if profile.Known(p.Mood.RegulationStrategy) {
		w = float64(p.Mood.RegulationStrategy) / 9
	}
	return clamp01((1-w)*matchScore + w*goalScore)
}

// moodDistance is the Euclidean distance in the unit mood square, normalized
// to [0,1] by the square's diagonal.
func moodDistance(v1, a1, v2, a2 float64) float64 {
	return math.Hypot(v1-v2, a1-a2) / math.Sqrt2
}

// regulationTarget maps a regulation goal to target mood coordinates.
// Maintain keeps the current mood as the target.
func regulationTarget(goal int, curValence, curArousal float64) (float64, float64) {
	switch goal {
	case profile.RegulateCalm:
		return 0.60, 0.20
	case profile.RegulateEnergize:
		return 0.70, 0.90
	case profile.RegulateCheerUp:
		return 0.90, 0.60
	case profile.RegulateFocus:
		return 0.50, 0.40
	case profile.RegulateProcess:
		return 0.30, 0.30
	default:
		return curValence, curArousal
	}
}

// ageScore blends a life-stage preference curve with the "reminiscence
// bump": music first heard in one's teens keeps an outsized pull for life.
func ageScore(p profile.Profile, t features.Track) float64 {
	if !profile.Known(p.Age.BirthYear) && !profile.Known(p.Age.Bracket) {
		return 0.5
	}
	if t.Year == 0 {
		return 0.5
	}

	birthYear := 0
	if profile.Known(p.Age.BirthYear) {
		birthYear = 1900 + p.Age.BirthYear
	} else {
		// Bracket midpoint: brackets are five-year steps starting at 10.
		age := 10 + p.Age.Bracket*5 + 2
		birthYear = currentEraYear - age
	}

	// Bump era: roughly ages 12–22, centered on 17.
	bumpCenter := birthYear + 17
	bump := invertedU(float64(t.Year), float64(bumpCenter), 25)

	// Life-stage curve: younger listeners lean contemporary; the lean
	// relaxes with age.
	age := currentEraYear - birthYear
	recency := clamp01(1 - float64(currentEraYear-t.Year)/50)
	var stage float64
	switch {
	case age < 25:
		stage = recency
	case age < 45:
		stage = 0.5 + 0.5*recency
	default:
		stage = 0.8
	}

	return clamp01(0.6*bump + 0.4*stage)
}

// currentEraYear anchors era math. Fixed rather than clock-derived so
// scoring is reproducible; revisit when the catalog's "current" era drifts.
const currentEraYear = 2026

// discoveryScore rewards alignment between the listener's novelty tolerance
// and the track's composite novelty: explorers get credit for novel tracks,
// comfort listeners for familiar ones.
func discoveryScore(p profile.Profile, novelty float64) float64 {
	tolerance := unit(p.Discovery.NoveltyTolerance, 9)
	return clamp01(tolerance*novelty + (1-tolerance)*(1-novelty))
}

// sophisticationScore is an inverted U around the complexity level implied
// by musical training, expertise and style sophistication.
func sophisticationScore(p profile.Profile, t features.Track) float64 {
	known := 0
	level := 0.0
	if profile.Known(p.Sophistication.Training) {
		level += float64(p.Sophistication.Training) / 9
		known++
	}
	if profile.Known(p.Sophistication.Expertise) {
		level += float64(p.Sophistication.Expertise) / 9
		known++
	}
	if profile.Known(p.Sophistication.StyleSophistication) {
		level += float64(p.Sophistication.StyleSophistication) / profile.ScaleMax
		known++
	}
	if known == 0 {
		return 0.5
	}
	target := level / float64(known) * profile.ScaleMax
	return invertedU(float64(t.Complexity), target, float64(profile.ScaleMax))
}
