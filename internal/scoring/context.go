package scoring

import (
	"time"

	"github.com/kalambet/mixtape/internal/profile"
)

// Context is the momentary situational frame a recommendation request runs
// under. It is ephemeral — derived per request, never persisted.
type Context struct {
	Activity      int
	SocialSetting int
	TimeOfDay     int
	Environment   int
	// MoodValence/MoodArousal are the listener's current mood on the 0–35
	// scale, Unknown when not reported.
	MoodValence    int
	MoodArousal    int
	RegulationGoal int
}

// ContextFromProfile derives the default Context from the profile's
// situational defaults, filling time of day from the clock when the profile
// does not pin one.
func ContextFromProfile(p profile.Profile, now time.Time) Context {
	c := Context{
		Activity:       p.Defaults.Activity,
		SocialSetting:  p.Defaults.SocialSetting,
		TimeOfDay:      p.Defaults.TimeOfDay,
		Environment:    p.Defaults.Environment,
		MoodValence:    p.Mood.Valence,
		MoodArousal:    p.Mood.Arousal,
		RegulationGoal: p.Mood.RegulationGoal,
	}
	if !profile.Known(c.Activity) {
		c.Activity = profile.ActivityNone
	}
	if !profile.Known(c.SocialSetting) {
		c.SocialSetting = profile.SocialAlone
	}
	if !profile.Known(c.TimeOfDay) {
		c.TimeOfDay = timeOfDayFor(now)
	}
	if !profile.Known(c.Environment) {
		c.Environment = profile.EnvHome
	}
	if !profile.Known(c.RegulationGoal) {
		c.RegulationGoal = profile.RegulateMaintain
	}
	return c
}

func timeOfDayFor(now time.Time) int {
	switch h := now.Hour(); {
	case h < 5:
		return profile.TimeLateNight
	case h < 11:
		return profile.TimeMorning
	case h < 14:
		return profile.TimeMidday
	case h < 18:
		return profile.TimeAfternoon
	case h < 22:
		return profile.TimeEvening
	default:
		return profile.TimeNight
	}
}
