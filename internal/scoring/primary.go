package scoring

import (
	"math"
	"time"

	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/profile"
)

// familiarityScore blends style-familiarity proximity with the listening
// history's exposure and recency curves.
func familiarityScore(p profile.Profile, t features.Track, now time.Time) float64 {
	style := styleSimilarity(p.Familiarity, t.Style)
	exposure := exposureScore(t.Stats.PlayCount)
	recency := recencyScore(t.Stats.LastPlayedAt, now)
	return clamp01(0.45*style + 0.35*exposure + 0.20*recency)
}

// exposureScore is the play-count "sweet spot" curve: optimal exposure is
// 4–10 plays — enough to be familiar, not enough to be worn out. Zero plays
// is unproven, heavy rotation decays toward fatigue.
func exposureScore(plays int) float64 {
	switch {
	case plays <= 0:
		return 0.30
	case plays < 4:
		// Ramp 1→3 plays up toward the plateau.
		return 0.30 + 0.70*float64(plays)/4
	case plays <= 10:
		return 1.0
	default:
		// Decay past the plateau, floored well above zero so an old
		// favorite is dampened, not buried.
		decay := float64(plays-10) / 40
		return math.Max(0.20, 1.0-0.8*decay)
	}
}

// recencyScore peaks at 1–3 days since last play: recent enough to be in
// rotation, not so recent it feels repetitive. Never-played is neutral.
func recencyScore(lastPlayed time.Time, now time.Time) float64 {
	if lastPlayed.IsZero() {
		return 0.40
	}
	days := now.Sub(lastPlayed).Hours() / 24
	switch {
	case days < 0:
		return 0.40
	case days < 1:
		return 0.60
	case days <= 3:
		return 1.0
	default:
		decay := (days - 3) / 57 // fades over ~two months
		return math.Max(0.30, 1.0-0.7*decay)
	}
}

// musicalScore measures attribute-level fit between the profile's stated
// musical preferences and the track vector.
func musicalScore(p profile.Profile, t features.Track) float64 {
	style := styleSimilarity(p.Style, t.Style)
	tempo := closeness(p.Musical.Tempo, t.Tempo, profile.ScaleMax)
	energy := closeness(p.Musical.Energy, t.Energy, profile.ScaleMax)

	// Complexity preference is an inverted U: too simple bores, too complex
	// alienates.
	complexity := 0.5
	if profile.Known(p.Musical.Complexity) {
		complexity = invertedU(float64(t.Complexity), float64(p.Musical.Complexity), float64(profile.ScaleMax))
	}

	mode := unitCloseness(unit(p.Musical.Mode, 9), unit(t.Mode, profile.ScaleMax))
	predictability := closeness(p.Musical.Predictability, t.Predictability, profile.ScaleMax)
	consonance := closeness(p.Musical.Consonance, t.Consonance, profile.ScaleMax)

	return clamp01(0.30*style + 0.15*tempo + 0.15*energy + 0.15*complexity +
		0.05*mode + 0.10*predictability + 0.10*consonance)
}

func unitCloseness(a, b float64) float64 {
	return 1 - math.Abs(a-b)
}

// activityConstraint bounds track attributes for an activity on the 0–35
// scale. A -1 bound is unconstrained. Hard constraints also feed the
// modulation pass; here they score harshly but not to zero.
type activityConstraint struct {
	minTempo      int
	maxTempo      int
	minEnergy     int
	maxEnergy     int
	maxComplexity int
	hard          bool
}

var unconstrained = activityConstraint{minTempo: -1, maxTempo: -1, minEnergy: -1, maxEnergy: -1, maxComplexity: -1}

var activityConstraints = map[int]activityConstraint{
	profile.ActivityWorkout:    {minTempo: 20, maxTempo: -1, minEnergy: 22, maxEnergy: -1, maxComplexity: -1, hard: true},
	profile.ActivityRunning:    {minTempo: 22, maxTempo: -1, minEnergy: 24, maxEnergy: -1, maxComplexity: -1, hard: true},
	profile.ActivityStudy:      {minTempo: -1, maxTempo: 24, minEnergy: -1, maxEnergy: 18, maxComplexity: 20},
	profile.ActivityWork:       {minTempo: -1, maxTempo: -1, minEnergy: -1, maxEnergy: 24, maxComplexity: 24},
	profile.ActivitySleep:      {minTempo: -1, maxTempo: 12, minEnergy: -1, maxEnergy: 10, maxComplexity: 16, hard: true},
	profile.ActivityMeditation: {minTempo: -1, maxTempo: 14, minEnergy: -1, maxEnergy: 8, maxComplexity: 18, hard: true},
	profile.ActivityParty:      {minTempo: 16, maxTempo: -1, minEnergy: 20, maxEnergy: -1, maxComplexity: -1},
	profile.ActivityCommute:    unconstrained,
	profile.ActivityRelax:      {minTempo: -1, maxTempo: 22, minEnergy: -1, maxEnergy: 20, maxComplexity: -1},
}

// contextFitScore blends activity constraints, social popularity
// expectations, time-of-day energy norms and environment adjustments.
func contextFitScore(ctx Context, t features.Track) float64 {
	activity := activityFit(ctx.Activity, t)
	social := socialFit(ctx.SocialSetting, t)
	tod := timeOfDayFit(ctx.TimeOfDay, t)
	env := environmentFit(ctx.Environment, t)
	return clamp01(0.45*activity + 0.25*social + 0.15*tod + 0.15*env)
}

func activityFit(activity int, t features.Track) float64 {
	c, ok := activityConstraints[activity]
	if !ok {
		return 0.6 // no constraint table: mild neutral
	}
	score := 1.0
	score *= boundPenalty(t.Tempo, c.minTempo, c.maxTempo, c.hard)
	score *= boundPenalty(t.Energy, c.minEnergy, c.maxEnergy, c.hard)
	score *= boundPenalty(t.Complexity, -1, c.maxComplexity, c.hard)
	return score
}

// boundPenalty returns 1.0 inside the bounds, and a graded penalty outside —
// steeper when the constraint is hard.
func boundPenalty(v, min, max int, hard bool) float64 {
	var overshoot int
	if min >= 0 && v < min {
		overshoot = min - v
	}
	if max >= 0 && v > max {
		overshoot = v - max
	}
	if overshoot == 0 {
		return 1.0
	}
	frac := float64(overshoot) / float64(profile.ScaleMax)
	if hard {
		return clamp01(0.35 - frac)
	}
	return clamp01(1.0 - 1.5*frac)
}

// socialFit applies popularity thresholds: crowds want recognizable tracks,
// solo listening is indifferent.
func socialFit(setting int, t features.Track) float64 {
	switch setting {
	case profile.SocialPartyCrowd, profile.SocialLargeGroup:
		if t.Popularity >= 0.6 {
			return 1.0
		}
		return clamp01(0.3 + t.Popularity)
	case profile.SocialSmallGroup:
		return clamp01(0.6 + 0.4*t.Popularity)
	default:
		return 0.8
	}
}

// timeOfDayFit scores the track's energy against the slot's expectation.
func timeOfDayFit(tod int, t features.Track) float64 {
	expected := map[int]int{
		profile.TimeMorning:   20,
		profile.TimeMidday:    22,
		profile.TimeAfternoon: 20,
		profile.TimeEvening:   18,
		profile.TimeNight:     14,
		profile.TimeLateNight: 10,
	}
	want, ok := expected[tod]
	if !ok {
		return 0.7
	}
	return closeness(want, t.Energy, profile.ScaleMax)
}

func environmentFit(env int, t features.Track) float64 {
	switch env {
	case profile.EnvGym:
		return unit(t.Energy, profile.ScaleMax)
	case profile.EnvOffice:
		return 1 - 0.5*unit(t.Energy, profile.ScaleMax)
	case profile.EnvCar:
		// Driving favors steady, predictable material.
		return clamp01(0.4 + 0.6*unit(t.Predictability, profile.ScaleMax))
	case profile.EnvOutdoors, profile.EnvPublic:
		return 0.8
	default:
		return 0.8
	}
}
