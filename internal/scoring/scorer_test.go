package scoring

import (
	"math/rand"
	"testing"
	"time"

	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/profile"
)

func testScorer() *Scorer {
	s := NewScorer(rand.New(rand.NewSource(42)))
	s.now = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func workoutProfile() profile.Profile {
	p := profile.New()
	p.Style = profile.StyleDims{Mellow: 5, Unpretentious: 14, Sophisticated: 8, Intense: 30, Contemporary: 30}
	p.Familiarity = profile.StyleDims{Mellow: 5, Unpretentious: 12, Sophisticated: 6, Intense: 32, Contemporary: 32}
	p.Musical = profile.MusicalPrefs{Tempo: 30, Energy: 32, Complexity: 12, Mode: 7, Predictability: 24, Consonance: 22}
	p.Mood = profile.MoodPrefs{Valence: 24, Arousal: 30, RegulationGoal: profile.RegulateEnergize, RegulationStrategy: 7}
	p.Discovery = profile.DiscoveryPrefs{NoveltyTolerance: 2, VarietyPreference: 4, EraRange: 3}
	p.Defaults = profile.ContextDefaults{Activity: profile.ActivityWorkout, SocialSetting: profile.SocialAlone, TimeOfDay: profile.TimeMorning, Environment: profile.EnvGym}
	return p
}

func energeticTrack() features.Track {
	return features.Track{
		CatalogID: "t1", Title: "Pump", Artists: []string{"A"}, Year: 2022,
		Style: profile.StyleDims{Mellow: 4, Unpretentious: 14, Sophisticated: 8, Intense: 30, Contemporary: 31},
		Tempo: 30, Energy: 32, Complexity: 12, Mode: 28, Predictability: 24, Consonance: 22,
		Valence: 26, Arousal: 30, Popularity: 0.7,
		Stats: features.ListeningStats{PlayCount: 6, LastPlayedAt: time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC), ArtistPlayCount: 40},
	}
}

func slowTrack() features.Track {
	t := energeticTrack()
	t.CatalogID = "t2"
	t.Tempo, t.Energy, t.Arousal = 5, 6, 8
	t.Style.Intense, t.Style.Mellow = 6, 30
	return t
}

func TestScore_Bounds(t *testing.T) {
	s := testScorer()
	profiles := []profile.Profile{profile.New(), workoutProfile()}
	tracks := []features.Track{energeticTrack(), slowTrack(), {CatalogID: "proxy", Proxy: true}}

	for _, p := range profiles {
		ctx := ContextFromProfile(p, time.Now())
		for _, tr := range tracks {
			r := s.Score(p, ctx, tr)
			subs := map[string]float64{
				"familiarity": r.Familiarity, "musical": r.Musical, "context": r.ContextFit,
				"mood": r.Mood, "age": r.Age, "discovery": r.Discovery, "sophistication": r.Sophistication,
				"personality": r.Personality, "cognitive": r.Cognitive, "cultural": r.Cultural,
				"novelty": r.Novelty, "final": r.Score,
			}
			for name, v := range subs {
				if v < 0 || v > 1 {
					t.Errorf("track %s: %s = %g out of [0,1]", tr.CatalogID, name, v)
				}
			}
		}
	}
}

func TestScore_PreferenceMatchWins(t *testing.T) {
	s := testScorer()
	p := workoutProfile()
	ctx := ContextFromProfile(p, time.Now())

	match := s.Score(p, ctx, energeticTrack())
	mismatch := s.Score(p, ctx, slowTrack())
	if match.Score <= mismatch.Score {
		t.Errorf("matching track scored %g, mismatched %g — want match to win", match.Score, mismatch.Score)
	}
}

func TestExposureScore_SweetSpot(t *testing.T) {
	for plays := 4; plays <= 10; plays++ {
		inSpot := exposureScore(plays)
		if never := exposureScore(0); inSpot <= never {
			t.Errorf("exposure(%d) = %g not above exposure(0) = %g", plays, inSpot, never)
		}
		if worn := exposureScore(50); inSpot <= worn {
			t.Errorf("exposure(%d) = %g not above exposure(50) = %g", plays, inSpot, worn)
		}
	}
}

func TestRecencyScore_Peak(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	peak := recencyScore(now.Add(-48*time.Hour), now)
	if peak != 1.0 {
		t.Errorf("recency at 2 days = %g, want 1.0", peak)
	}
	if fresh := recencyScore(now.Add(-2*time.Hour), now); fresh >= peak {
		t.Errorf("recency at 2 hours = %g, want below peak", fresh)
	}
	if stale := recencyScore(now.Add(-40*24*time.Hour), now); stale >= peak {
		t.Errorf("recency at 40 days = %g, want below peak", stale)
	}
	if never := recencyScore(time.Time{}, now); never != 0.40 {
		t.Errorf("recency never-played = %g, want 0.40", never)
	}
}

func TestModulation_WorkoutHardPenalty(t *testing.T) {
	p := workoutProfile()
	ctx := ContextFromProfile(p, time.Now())
	if ctx.Activity != profile.ActivityWorkout {
		t.Fatalf("context activity = %d, want workout", ctx.Activity)
	}

	inRange := energeticTrack()
	tooSlow := slowTrack()

	nIn := noveltyScore(p, inRange)
	nSlow := noveltyScore(p, tooSlow)
	mIn := modulationFactor(p, ctx, inRange, nIn)
	mSlow := modulationFactor(p, ctx, tooSlow, nSlow)

	if mSlow > 0.5*mIn {
		t.Errorf("low-tempo modulation %g vs in-range %g: want ratio <= 0.5", mSlow, mIn)
	}
}

func TestModulation_StressSuppressesNovelty(t *testing.T) {
	p := profile.New()
	stressed := Context{Activity: profile.ActivityNone, SocialSetting: profile.SocialAlone,
		MoodValence: 6, MoodArousal: 30, RegulationGoal: profile.RegulateCalm}
	calmCtx := Context{Activity: profile.ActivityNone, SocialSetting: profile.SocialAlone,
		MoodValence: 24, MoodArousal: 14, RegulationGoal: profile.RegulateMaintain}

	tr := energeticTrack()
	novel := 0.9
	if m1, m2 := modulationFactor(p, stressed, tr, novel), modulationFactor(p, calmCtx, tr, novel); m1 >= m2 {
		t.Errorf("stressed modulation %g not below neutral %g for a novel track", m1, m2)
	}
}

func TestModulation_PartyFavorsHits(t *testing.T) {
	p := profile.New()
	ctx := Context{Activity: profile.ActivityParty, SocialSetting: profile.SocialPartyCrowd}

	hit := energeticTrack()
	hit.Popularity = 0.9
	obscure := energeticTrack()
	obscure.Popularity = 0.1

	if mh, mo := modulationFactor(p, ctx, hit, 0.4), modulationFactor(p, ctx, obscure, 0.4); mh <= mo {
		t.Errorf("party modulation: hit %g not above obscure %g", mh, mo)
	}
}

func TestMoodScore_RegulationBlend(t *testing.T) {
	// Strategy 9 steers fully toward the energize target; strategy 0
	// mirrors the current (low-energy) mood.
	base := profile.New()
	ctx := Context{MoodValence: 10, MoodArousal: 6, RegulationGoal: profile.RegulateEnergize}

	energetic := energeticTrack()

	contrast := base
	contrast.Mood.RegulationStrategy = 9
	match := base
	match.Mood.RegulationStrategy = 0

	cScore := moodScore(contrast, ctx, energetic)
	mScore := moodScore(match, ctx, energetic)
	if cScore <= mScore {
		t.Errorf("contrast strategy %g not above match strategy %g for an energetic track in a low mood", cScore, mScore)
	}
}

func TestDiscoveryScore_Alignment(t *testing.T) {
	explorer := profile.New()
	explorer.Discovery.NoveltyTolerance = 9
	comfort := profile.New()
	comfort.Discovery.NoveltyTolerance = 0

	if s := discoveryScore(explorer, 1.0); s != 1.0 {
		t.Errorf("explorer × novel = %g, want 1.0", s)
	}
	if s := discoveryScore(comfort, 0.0); s != 1.0 {
		t.Errorf("comfort × familiar = %g, want 1.0", s)
	}
	if s := discoveryScore(comfort, 1.0); s != 0.0 {
		t.Errorf("comfort × novel = %g, want 0.0", s)
	}
}

func TestNovelty_NewArtistBeatsHeavyRotation(t *testing.T) {
	p := workoutProfile()

	fresh := energeticTrack()
	fresh.Stats = features.ListeningStats{NewArtist: true}

	worn := energeticTrack()
	worn.Stats = features.ListeningStats{PlayCount: 30, ArtistPlayCount: 200}

	if nf, nw := noveltyScore(p, fresh), noveltyScore(p, worn); nf <= nw {
		t.Errorf("new-artist novelty %g not above heavy-rotation novelty %g", nf, nw)
	}
}

func TestExploration_Deterministic(t *testing.T) {
	p := workoutProfile()

	a := NewScorer(rand.New(rand.NewSource(7)))
	b := NewScorer(rand.New(rand.NewSource(7)))
	for i := 0; i < 20; i++ {
		novelty := float64(i) / 20
		if fa, fb := a.explorationFactor(p, novelty), b.explorationFactor(p, novelty); fa != fb {
			t.Fatalf("iteration %d: exploration diverged with identical seeds: %g vs %g", i, fa, fb)
		}
	}
}

func TestExplorationRatio_Tiers(t *testing.T) {
	cases := []struct {
		tolerance int
		want      float64
	}{
		{profile.Unknown, 0.10},
		{0, 0.10}, {3, 0.10},
		{4, 0.20}, {6, 0.20},
		{7, 0.30}, {9, 0.30},
	}
	for _, tc := range cases {
		if got := explorationRatio(tc.tolerance); got != tc.want {
			t.Errorf("explorationRatio(%d) = %g, want %g", tc.tolerance, got, tc.want)
		}
	}
}

func TestContextFit_SocialPopularity(t *testing.T) {
	crowd := Context{Activity: profile.ActivityParty, SocialSetting: profile.SocialPartyCrowd}

	hit := energeticTrack()
	hit.Popularity = 0.9
	obscure := energeticTrack()
	obscure.Popularity = 0.05

	if fh, fo := contextFitScore(crowd, hit), contextFitScore(crowd, obscure); fh <= fo {
		t.Errorf("crowd context fit: hit %g not above obscure %g", fh, fo)
	}
}

func TestContextFromProfile_Fallbacks(t *testing.T) {
	p := profile.New()
	now := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	ctx := ContextFromProfile(p, now)

	if ctx.Activity != profile.ActivityNone {
		t.Errorf("Activity = %d, want none", ctx.Activity)
	}
	if ctx.TimeOfDay != profile.TimeMorning {
		t.Errorf("TimeOfDay = %d, want morning for 08:00", ctx.TimeOfDay)
	}
	if profile.Known(ctx.MoodValence) {
		t.Errorf("MoodValence = %d, want Unknown to stay unknown", ctx.MoodValence)
	}
}
