package scoring

import (
	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/profile"
)

// personalityScore maps the two personality indicators with the strongest
// published links to music preference: openness → complex/sophisticated
// material, extraversion → energetic/contemporary material.
func personalityScore(p profile.Profile, t features.Track) float64 {
	if !profile.Known(p.Traits.Openness) && !profile.Known(p.Traits.Extraversion) {
		return 0.5
	}

	score, n := 0.0, 0
	if profile.Known(p.Traits.Openness) {
		openness := float64(p.Traits.Openness) / 9
		trackDepth := (unit(t.Complexity, profile.ScaleMax) + unit(t.Style.Sophisticated, profile.ScaleMax)) / 2
		score += 1 - absdiff(openness, trackDepth)
		n++
	}
	if profile.Known(p.Traits.Extraversion) {
		extraversion := float64(p.Traits.Extraversion) / 9
		trackOutgoing := (unit(t.Energy, profile.ScaleMax) + unit(t.Style.Contemporary, profile.ScaleMax)) / 2
		score += 1 - absdiff(extraversion, trackOutgoing)
		n++
	}
	return clamp01(score / float64(n))
}

// cognitiveScore maps the empathizing↔systemizing cognitive-style axis:
// empathizers lean mellow/calm, systemizers lean intense/complex.
func cognitiveScore(p profile.Profile, t features.Track) float64 {
	e := profile.Known(p.Traits.Empathizing)
	s := profile.Known(p.Traits.Systemizing)
	if !e && !s {
		return 0.5
	}

	mellowCalm := (unit(t.Style.Mellow, profile.ScaleMax) + (1 - unit(t.Energy, profile.ScaleMax))) / 2
	intenseComplex := (unit(t.Style.Intense, profile.ScaleMax) + unit(t.Complexity, profile.ScaleMax)) / 2

	ew, sw := 0.0, 0.0
	if e {
		ew = float64(p.Traits.Empathizing) / 9
	}
	if s {
		sw = float64(p.Traits.Systemizing) / 9
	}
	if ew+sw == 0 {
		return 0.5
	}
	return clamp01((ew*mellowCalm + sw*intenseComplex) / (ew + sw))
}

// culturalConsonanceTargets: expected consonance preference (0–35) by
// declared cultural context. Coarse by design — this carries 2% of the
// weight budget.
var culturalConsonanceTargets = map[int]int{
	0: 24, // western pop default
	1: 26, // latin
	2: 26, // east asian pop
	3: 20, // south asian
	4: 22, // african
	5: 20, // middle eastern
	6: 18, // experimental / avant-garde scenes
}

func culturalScore(p profile.Profile, t features.Track) float64 {
	if !profile.Known(p.Traits.CulturalContext) {
		return 0.5
	}
	target, ok := culturalConsonanceTargets[p.Traits.CulturalContext]
	if !ok {
		target = 24
	}
	return closeness(target, t.Consonance, profile.ScaleMax)
}

func absdiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
