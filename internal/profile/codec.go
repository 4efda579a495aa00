package profile

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrFormat is returned when an encoded profile string fails validation.
// Decoding never attempts partial recovery of a malformed code.
var ErrFormat = errors.New("malformed profile code")

// Code layout: one version character, one separator, then 39 base36 field
// characters in the declared order below. An all-'X' field doubles as the
// per-field unknown marker, so the magnitude that encodes to all 'X' is
// unrepresentable at every width (see ClampScale and reservedMagnitude).
const (
	codeVersion   = 'A'
	codeSeparator = '-'
	fieldChars    = 39
	CodeLength    = 2 + fieldChars

	reservedScaleValue = 33 // base36 'X'

	base36Digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var codePattern = regexp.MustCompile(`^A-[0-9A-Z]{39}$`)

// field describes one fixed-width slot in the encoded profile.
type field struct {
	name  string
	width int
	max   int
	get   func(*Profile) int
	set   func(*Profile, int)
}

// fields is the declared encoding order. Changing the order or widths is a
// version bump.
var fields = []field{
	{"style.mellow", 1, ScaleMax, func(p *Profile) int { return p.Style.Mellow }, func(p *Profile, v int) { p.Style.Mellow = v }},
	{"style.unpretentious", 1, ScaleMax, func(p *Profile) int { return p.Style.Unpretentious }, func(p *Profile, v int) { p.Style.Unpretentious = v }},
	{"style.sophisticated", 1, ScaleMax, func(p *Profile) int { return p.Style.Sophisticated }, func(p *Profile, v int) { p.Style.Sophisticated = v }},
	{"style.intense", 1, ScaleMax, func(p *Profile) int { return p.Style.Intense }, func(p *Profile, v int) { p.Style.Intense = v }},
	{"style.contemporary", 1, ScaleMax, func(p *Profile) int { return p.Style.Contemporary }, func(p *Profile, v int) { p.Style.Contemporary = v }},

	{"familiarity.mellow", 1, ScaleMax, func(p *Profile) int { return p.Familiarity.Mellow }, func(p *Profile, v int) { p.Familiarity.Mellow = v }},
	{"familiarity.unpretentious", 1, ScaleMax, func(p *Profile) int { return p.Familiarity.Unpretentious }, func(p *Profile, v int) { p.Familiarity.Unpretentious = v }},
	{"familiarity.sophisticated", 1, ScaleMax, func(p *Profile) int { return p.Familiarity.Sophisticated }, func(p *Profile, v int) { p.Familiarity.Sophisticated = v }},
	{"familiarity.intense", 1, ScaleMax, func(p *Profile) int { return p.Familiarity.Intense }, func(p *Profile, v int) { p.Familiarity.Intense = v }},
	{"familiarity.contemporary", 1, ScaleMax, func(p *Profile) int { return p.Familiarity.Contemporary }, func(p *Profile, v int) { p.Familiarity.Contemporary = v }},

	{"musical.tempo", 1, ScaleMax, func(p *Profile) int { return p.Musical.Tempo }, func(p *Profile, v int) { p.Musical.Tempo = v }},
	{"musical.energy", 1, ScaleMax, func(p *Profile) int { return p.Musical.Energy }, func(p *Profile, v int) { p.Musical.Energy = v }},
	{"musical.complexity", 1, ScaleMax, func(p *Profile) int { return p.Musical.Complexity }, func(p *Profile, v int) { p.Musical.Complexity = v }},
	{"musical.mode", 1, 9, func(p *Profile) int { return p.Musical.Mode }, func(p *Profile, v int) { p.Musical.Mode = v }},
	{"musical.predictability", 1, ScaleMax, func(p *Profile) int { return p.Musical.Predictability }, func(p *Profile, v int) { p.Musical.Predictability = v }},
	{"musical.consonance", 1, ScaleMax, func(p *Profile) int { return p.Musical.Consonance }, func(p *Profile, v int) { p.Musical.Consonance = v }},

	{"mood.valence", 1, ScaleMax, func(p *Profile) int { return p.Mood.Valence }, func(p *Profile, v int) { p.Mood.Valence = v }},
	{"mood.arousal", 1, ScaleMax, func(p *Profile) int { return p.Mood.Arousal }, func(p *Profile, v int) { p.Mood.Arousal = v }},
	{"mood.regulation_goal", 1, 9, func(p *Profile) int { return p.Mood.RegulationGoal }, func(p *Profile, v int) { p.Mood.RegulationGoal = v }},
	{"mood.regulation_strategy", 1, 9, func(p *Profile) int { return p.Mood.RegulationStrategy }, func(p *Profile, v int) { p.Mood.RegulationStrategy = v }},

	{"age.bracket", 1, 15, func(p *Profile) int { return p.Age.Bracket }, func(p *Profile, v int) { p.Age.Bracket = v }},
	{"age.birth_year", 2, 1295, func(p *Profile) int { return p.Age.BirthYear }, func(p *Profile, v int) { p.Age.BirthYear = v }},

	{"discovery.novelty_tolerance", 1, 9, func(p *Profile) int { return p.Discovery.NoveltyTolerance }, func(p *Profile, v int) { p.Discovery.NoveltyTolerance = v }},
	{"discovery.variety_preference", 1, 9, func(p *Profile) int { return p.Discovery.VarietyPreference }, func(p *Profile, v int) { p.Discovery.VarietyPreference = v }},
	{"discovery.era_range", 1, 9, func(p *Profile) int { return p.Discovery.EraRange }, func(p *Profile, v int) { p.Discovery.EraRange = v }},

	{"sophistication.training", 1, 9, func(p *Profile) int { return p.Sophistication.Training }, func(p *Profile, v int) { p.Sophistication.Training = v }},
	{"sophistication.expertise", 1, 9, func(p *Profile) int { return p.Sophistication.Expertise }, func(p *Profile, v int) { p.Sophistication.Expertise = v }},
	{"sophistication.style", 1, ScaleMax, func(p *Profile) int { return p.Sophistication.StyleSophistication }, func(p *Profile, v int) { p.Sophistication.StyleSophistication = v }},

	{"defaults.activity", 1, 15, func(p *Profile) int { return p.Defaults.Activity }, func(p *Profile, v int) { p.Defaults.Activity = v }},
	{"defaults.social_setting", 1, 9, func(p *Profile) int { return p.Defaults.SocialSetting }, func(p *Profile, v int) { p.Defaults.SocialSetting = v }},
	{"defaults.time_of_day", 1, 9, func(p *Profile) int { return p.Defaults.TimeOfDay }, func(p *Profile, v int) { p.Defaults.TimeOfDay = v }},
	{"defaults.environment", 1, 9, func(p *Profile) int { return p.Defaults.Environment }, func(p *Profile, v int) { p.Defaults.Environment = v }},

	{"traits.openness", 1, 9, func(p *Profile) int { return p.Traits.Openness }, func(p *Profile, v int) { p.Traits.Openness = v }},
	{"traits.extraversion", 1, 9, func(p *Profile) int { return p.Traits.Extraversion }, func(p *Profile, v int) { p.Traits.Extraversion = v }},
	{"traits.empathizing", 1, 9, func(p *Profile) int { return p.Traits.Empathizing }, func(p *Profile, v int) { p.Traits.Empathizing = v }},
	{"traits.systemizing", 1, 9, func(p *Profile) int { return p.Traits.Systemizing }, func(p *Profile, v int) { p.Traits.Systemizing = v }},
	{"traits.cultural_context", 1, 15, func(p *Profile) int { return p.Traits.CulturalContext }, func(p *Profile, v int) { p.Traits.CulturalContext = v }},
}

// Encode serializes p into the fixed-width code. The computed confidence is
// appended as the final field so the code is self-describing. Returns
// ErrFormat (wrapped) if any field is out of range.
func Encode(p Profile) (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	b.WriteByte(codeVersion)
	b.WriteByte(codeSeparator)

	for _, f := range fields {
		enc, err := encodeField(f, f.get(&p))
		if err != nil {
			return "", err
		}
		b.WriteString(enc)
	}

	// Confidence follows the same reservation rule as the scalar fields:
	// 33 would encode as the unknown marker, so it snaps to 34.
	conf, err := encodeField(field{name: "confidence", width: 1, max: ScaleMax}, ClampScale(Confidence(p)))
	if err != nil {
		return "", err
	}
	b.WriteString(conf)
	return b.String(), nil
}

func encodeField(f field, v int) (string, error) {
	if v == Unknown {
		return strings.Repeat("X", f.width), nil
	}
	if v < 0 || v > f.max {
		return "", fmt.Errorf("%w: field %s value %d outside 0–%d", ErrFormat, f.name, v, f.max)
	}
	if v == reservedMagnitude(f.width) {
		return "", fmt.Errorf("%w: field %s value %d is reserved for the unknown marker", ErrFormat, f.name, v)
	}
	out := make([]byte, f.width)
	for i := f.width - 1; i >= 0; i-- {
		out[i] = base36Digits[v%36]
		v /= 36
	}
	return string(out), nil
}

// reservedMagnitude is the value whose base36 digits are all 'X' at the
// given width. Encoding it would collide with the unknown marker, so every
// field rejects it: 33 at width 1, 1221 at width 2.
func reservedMagnitude(width int) int {
	v := 0
	for i := 0; i < width; i++ {
		v = v*36 + reservedScaleValue
	}
	return v
}

// Decode parses a fixed-width code back into a Profile. It validates total
// length and character class strictly and fails with ErrFormat on any
// mismatch. The trailing confidence field is validated but discarded —
// Confidence recomputes it from the decoded fields.
func Decode(code string) (Profile, error) {
	if len(code) != CodeLength {
		return Profile{}, fmt.Errorf("%w: length %d, want %d", ErrFormat, len(code), CodeLength)
	}
	if !codePattern.MatchString(code) {
		return Profile{}, fmt.Errorf("%w: %q does not match the code pattern", ErrFormat, code)
	}

	p := New()
	pos := 2
	for _, f := range fields {
		raw := code[pos : pos+f.width]
		pos += f.width
		v, err := decodeField(f, raw)
		if err != nil {
			return Profile{}, err
		}
		f.set(&p, v)
	}
	// Trailing confidence char: already covered by the pattern check.
	return p, nil
}

func decodeField(f field, raw string) (int, error) {
	if raw == strings.Repeat("X", f.width) {
		return Unknown, nil
	}
	v := 0
	for i := 0; i < len(raw); i++ {
		d := strings.IndexByte(base36Digits, raw[i])
		if d < 0 {
			return 0, fmt.Errorf("%w: field %s has invalid character %q", ErrFormat, f.name, raw[i])
		}
		v = v*36 + d
	}
	if v > f.max {
		return 0, fmt.Errorf("%w: field %s value %d exceeds max %d", ErrFormat, f.name, v, f.max)
	}
	return v, nil
}

// confidenceGroup weights reflect each group's scoring influence: style
// familiarity and style preferences dominate the primary tier, so they carry
// the largest share. Weights sum to 35.
type confidenceGroup struct {
	name   string
	weight int
	known  func(*Profile) (known, total int)
}

var confidenceGroups = []confidenceGroup{
	{"style_familiarity", 8, func(p *Profile) (int, int) {
		return countKnown(p.Familiarity.Mellow, p.Familiarity.Unpretentious, p.Familiarity.Sophisticated, p.Familiarity.Intense, p.Familiarity.Contemporary)
	}},
	{"style_preferences", 8, func(p *Profile) (int, int) {
		return countKnown(p.Style.Mellow, p.Style.Unpretentious, p.Style.Sophisticated, p.Style.Intense, p.Style.Contemporary)
	}},
	{"activity", 6, func(p *Profile) (int, int) { return countKnown(p.Defaults.Activity) }},
	{"discovery", 5, func(p *Profile) (int, int) {
		return countKnown(p.Discovery.NoveltyTolerance, p.Discovery.VarietyPreference, p.Discovery.EraRange)
	}},
	{"mood", 4, func(p *Profile) (int, int) {
		return countKnown(p.Mood.Valence, p.Mood.Arousal, p.Mood.RegulationGoal, p.Mood.RegulationStrategy)
	}},
	{"age", 2, func(p *Profile) (int, int) { return countKnown(p.Age.Bracket, p.Age.BirthYear) }},
	{"musical_features", 2, func(p *Profile) (int, int) {
		return countKnown(p.Musical.Tempo, p.Musical.Energy, p.Musical.Complexity, p.Musical.Mode, p.Musical.Predictability, p.Musical.Consonance)
	}},
}

// MissingGroups lists the confidence groups that are not fully answered yet,
// highest weight first. Conversation surfaces use it to steer questioning.
func MissingGroups(p Profile) []string {
	var out []string
	for _, g := range confidenceGroups {
		known, total := g.known(&p)
		if known < total {
			out = append(out, g.name)
		}
	}
	return out
}

func countKnown(vals ...int) (int, int) {
	known := 0
	for _, v := range vals {
		if Known(v) {
			known++
		}
	}
	return known, len(vals)
}

// Confidence computes a 0–35 score from how much of each high-value group is
// present. Adding a previously-unknown field never decreases the result.
func Confidence(p Profile) int {
	// Partial groups count fractionally, so the result is monotone under
	// field additions.
	total := 0.0
	for _, g := range confidenceGroups {
		known, groupTotal := g.known(&p)
		total += float64(g.weight) * float64(known) / float64(groupTotal)
	}
	c := int(total)
	if c > ScaleMax {
		c = ScaleMax
	}
	return c
}

// Marker patterns for embedding a code inside free text (e.g. a playlist
// description), tried in priority order. First match wins.
var markerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[MIXTAPE:(A-[0-9A-Z]{39})\]`),
	regexp.MustCompile(`(?i)mixtape-code:\s*(A-[0-9A-Z]{39})`),
	regexp.MustCompile(`\b(A-[0-9A-Z]{39})\b`),
}

// EmbedCode appends the canonical marker form of code to text.
func EmbedCode(text, code string) string {
	marker := fmt.Sprintf("[MIXTAPE:%s]", code)
	if text == "" {
		return marker
	}
	return text + " " + marker
}

// ExtractCode scans text for an embedded profile code. Returns the first
// match in pattern priority order, or "" and false when none is present.
func ExtractCode(text string) (string, bool) {
	for _, pat := range markerPatterns {
		if m := pat.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}
