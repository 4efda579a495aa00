package profile

// Unknown is the sentinel for a dimension the conversation has not yet
// established. It is distinct from zero: zero is a real (low) preference.
const Unknown = -1

// Scale bounds for the wide preference dimensions.
const (
	ScaleMax = 35
	Midpoint = 17
)

// Activity identifiers (0–15). Stored as a profile default and carried in
// the per-request Context.
const (
	ActivityNone = iota
	ActivityWorkout
	ActivityStudy
	ActivityCommute
	ActivityParty
	ActivityRelax
	ActivitySleep
	ActivityWork
	ActivityCooking
	ActivitySocial
	ActivityGaming
	ActivityTravel
	ActivityChores
	ActivityMeditation
	ActivityRunning
	ActivityOther
)

// Social setting identifiers (0–9).
const (
	SocialAlone = iota
	SocialPartner
	SocialSmallGroup
	SocialLargeGroup
	SocialPartyCrowd
)

// Time-of-day identifiers (0–9).
const (
	TimeMorning = iota
	TimeMidday
	TimeAfternoon
	TimeEvening
	TimeNight
	TimeLateNight
)

// Environment identifiers (0–9).
const (
	EnvHome = iota
	EnvGym
	EnvOffice
	EnvOutdoors
	EnvCar
	EnvPublic
)

// Mood regulation goal identifiers (0–9).
const (
	RegulateMaintain = iota
	RegulateCalm
	RegulateEnergize
	RegulateCheerUp
	RegulateFocus
	RegulateProcess
)

// Profile is the listener's preference vector: 37 scalar dimensions grouped
// by concern. Every scalar is either within its declared range or Unknown.
type Profile struct {
	Style          StyleDims           `json:"style"`
	Familiarity    StyleDims           `json:"familiarity"`
	Musical        MusicalPrefs        `json:"musical"`
	Mood           MoodPrefs           `json:"mood"`
	Age            AgePrefs            `json:"age"`
	Discovery      DiscoveryPrefs      `json:"discovery"`
	Sophistication SophisticationPrefs `json:"sophistication"`
	Defaults       ContextDefaults     `json:"defaults"`
	Traits         Traits              `json:"traits"`

	// SeedArtists and SeedTracks are free-form anchors gathered during the
	// conversation. They are not part of the encoded code; they ride along
	// in session state and drive the similarity source during generation.
	SeedArtists []string `json:"seed_artists,omitempty"`
	SeedTracks  []string `json:"seed_tracks,omitempty"`
}

// StyleDims are the five MUSIC-model style dimensions (0–35 each).
// Used twice: once for preference strength, once for familiarity.
type StyleDims struct {
	Mellow        int `json:"mellow"`
	Unpretentious int `json:"unpretentious"`
	Sophisticated int `json:"sophisticated"`
	Intense       int `json:"intense"`
	Contemporary  int `json:"contemporary"`
}

// MusicalPrefs are direct musical-attribute preferences.
// Tempo, Energy, Complexity, Predictability and Consonance are 0–35;
// Mode is 0–9 (0 = strongly minor, 9 = strongly major).
type MusicalPrefs struct {
	Tempo          int `json:"tempo"`
	Energy         int `json:"energy"`
	Complexity     int `json:"complexity"`
	Mode           int `json:"mode"`
	Predictability int `json:"predictability"`
	Consonance     int `json:"consonance"`
}

// MoodPrefs capture the listener's typical mood and regulation behavior.
// Valence and Arousal are 0–35; RegulationGoal is 0–9 (see Regulate*);
// RegulationStrategy is the 0–9 match↔contrast dial (0 = match the current
// mood, 9 = fully contrast toward the goal).
type MoodPrefs struct {
	Valence            int `json:"valence"`
	Arousal            int `json:"arousal"`
	RegulationGoal     int `json:"regulation_goal"`
	RegulationStrategy int `json:"regulation_strategy"`
}

// AgePrefs hold the life-stage bracket (0–15, five-year steps from 10) and
// the birth year as an offset from 1900 (0–1295, two code characters).
type AgePrefs struct {
	Bracket   int `json:"bracket"`
	BirthYear int `json:"birth_year"`
}

// DiscoveryPrefs are 0–9 each. NoveltyTolerance drives the exploration
// ratio; VarietyPreference drives the per-artist diversity cap; EraRange is
// how far from the listener's formative era they will wander.
type DiscoveryPrefs struct {
	NoveltyTolerance  int `json:"novelty_tolerance"`
	VarietyPreference int `json:"variety_preference"`
	EraRange          int `json:"era_range"`
}

// SophisticationPrefs: Training and Expertise are 0–9,
// StyleSophistication is 0–35.
type SophisticationPrefs struct {
	Training            int `json:"training"`
	Expertise           int `json:"expertise"`
	StyleSophistication int `json:"style_sophistication"`
}

// ContextDefaults are the situational defaults used when a generation
// request does not carry an explicit context. Activity is 0–15, the rest 0–9.
type ContextDefaults struct {
	Activity      int `json:"activity"`
	SocialSetting int `json:"social_setting"`
	TimeOfDay     int `json:"time_of_day"`
	Environment   int `json:"environment"`
}

// Traits are the tertiary personality/cognition indicators. Openness,
// Extraversion, Empathizing and Systemizing are 0–9; CulturalContext is 0–15.
type Traits struct {
	Openness        int `json:"openness"`
	Extraversion    int `json:"extraversion"`
	Empathizing     int `json:"empathizing"`
	Systemizing     int `json:"systemizing"`
	CulturalContext int `json:"cultural_context"`
}

// New returns a Profile with every scalar dimension set to Unknown.
func New() Profile {
	var p Profile
	for _, f := range fields {
		f.set(&p, Unknown)
	}
	return p
}

// ClampScale snaps v onto the representable 0–35 scale. The value 33 is
// reserved by the codec (it would encode as the unknown marker 'X'), so it
// rounds up to 34.
func ClampScale(v int) int {
	if v < 0 {
		return 0
	}
	if v > ScaleMax {
		return ScaleMax
	}
	if v == reservedScaleValue {
		return reservedScaleValue + 1
	}
	return v
}

// Known reports whether v carries information.
func Known(v int) bool { return v != Unknown }
