package playlist

import (
	"fmt"
	"testing"

	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/profile"
	"github.com/kalambet/mixtape/internal/scoring"
)

func res(id, artist string, score float64, genres ...string) scoring.Result {
	return scoring.Result{
		Score: score,
		Track: features.Track{CatalogID: id, Title: id, Artists: []string{artist}, Genres: genres},
	}
}

func TestArtistCap_Tiers(t *testing.T) {
	cases := []struct {
		tolerance int
		want      int
	}{
		{profile.Unknown, 2},
		{0, 2}, {2, 2},
		{3, 3}, {5, 3},
		{6, 4}, {8, 4},
		{9, 5},
	}
	for _, tc := range cases {
		if got := artistCap(tc.tolerance); got != tc.want {
			t.Errorf("artistCap(%d) = %d, want %d", tc.tolerance, got, tc.want)
		}
	}
}

func TestApplyDiversity_ArtistCapHolds(t *testing.T) {
	var ranked []scoring.Result
	for i := 0; i < 20; i++ {
		ranked = append(ranked, res(fmt.Sprintf("same-%d", i), "OneArtist", 1.0-float64(i)*0.01))
	}
	for i := 0; i < 20; i++ {
		ranked = append(ranked, res(fmt.Sprintf("other-%d", i), fmt.Sprintf("Artist%d", i), 0.5))
	}

	out := applyDiversity(ranked, 10, 0) // tolerance 0 → cap 2
	if len(out) != 10 {
		t.Fatalf("got %d tracks, want 10", len(out))
	}
	count := 0
	for _, r := range out {
		if r.Track.Artist() == "OneArtist" {
			count++
		}
	}
	if count > 2 {
		t.Errorf("OneArtist appears %d times, cap is 2", count)
	}
}

func TestApplyDiversity_GenreOverflowOnlyFirstHalf(t *testing.T) {
	// 20 rock tracks ranked above 20 tracks of distinct genres, limit 8 →
	// genre cap 2, so rock beyond the cap rides only on first-half slack.
	var ranked []scoring.Result
	for i := 0; i < 20; i++ {
		ranked = append(ranked, res(fmt.Sprintf("rock-%d", i), fmt.Sprintf("R%d", i), 1.0-float64(i)*0.01, "rock"))
	}
	for i := 0; i < 20; i++ {
		ranked = append(ranked, res(fmt.Sprintf("misc-%d", i), fmt.Sprintf("M%d", i), 0.4, fmt.Sprintf("genre-%d", i)))
	}

	out := applyDiversity(ranked, 8, 9)
	if len(out) != 8 {
		t.Fatalf("got %d tracks, want 8", len(out))
	}
	rockSeen := 0
	for i, r := range out {
		if r.Track.Genres[0] != "rock" {
			continue
		}
		rockSeen++
		if rockSeen > genreCap(8) && i >= 4 {
			t.Errorf("rock overflow track at position %d, overflow is first-half only", i)
		}
	}
	if rockSeen != 4 {
		t.Errorf("rock tracks admitted = %d, want 4 (cap 2 + first-half overflow 2)", rockSeen)
	}
}

func TestApplyDiversity_FillPassRelaxesGenreOnly(t *testing.T) {
	// Only one genre available: the fill pass must still deliver a full
	// playlist, but never bend the artist cap.
	var ranked []scoring.Result
	for i := 0; i < 30; i++ {
		ranked = append(ranked, res(fmt.Sprintf("t-%d", i), fmt.Sprintf("A%d", i%10), 1.0-float64(i)*0.01, "pop"))
	}

	out := applyDiversity(ranked, 20, 0) // artist cap 2, 10 artists → exactly 20 possible
	if len(out) != 20 {
		t.Fatalf("got %d tracks, want 20", len(out))
	}
	perArtist := make(map[string]int)
	for _, r := range out {
		perArtist[r.Track.Artist()]++
	}
	for a, n := range perArtist {
		if n > 2 {
			t.Errorf("artist %s has %d tracks, cap is 2", a, n)
		}
	}
}

func TestApplyDiversity_ShortInput(t *testing.T) {
	out := applyDiversity([]scoring.Result{res("a", "X", 0.9)}, 10, 5)
	if len(out) != 1 {
		t.Fatalf("got %d tracks, want 1", len(out))
	}
	if applyDiversity(nil, 10, 5) != nil {
		t.Error("nil input should give nil output")
	}
}
