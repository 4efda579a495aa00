package playlist

import (
	"github.com/kalambet/mixtape/internal/profile"
	"github.com/kalambet/mixtape/internal/scoring"
)

// artistCap maps the 0–9 novelty tolerance to the maximum number of tracks
// one artist may hold in a playlist. Comfort listeners tolerate less
// repetition headroom being spent on strangers, so they get more of the
// artists they know; either way no one dominates.
func artistCap(tolerance int) int {
	switch {
	case !profile.Known(tolerance) || tolerance <= 2:
		return 2
	case tolerance <= 5:
		return 3
	case tolerance <= 8:
		return 4
	default:
		return 5
	}
}

// genreCap is the soft per-genre ceiling for a playlist of the given length.
func genreCap(limit int) int {
	c := limit / 4
	if c < 2 {
		c = 2
	}
	return c
}

// applyDiversity walks the score-ranked results and admits tracks under a
// hard per-artist cap and a soft per-genre cap. Genre overflow is tolerated
// only while filling the first half of the playlist; the artist cap never
// bends. A second pass relaxes the genre cap if the first could not fill
// the playlist.
func applyDiversity(ranked []scoring.Result, limit, tolerance int) []scoring.Result {
	if limit <= 0 || len(ranked) == 0 {
		return nil
	}
	aCap := artistCap(tolerance)
	gCap := genreCap(limit)

	artistCount := make(map[string]int)
	genreCount := make(map[string]int)
	taken := make(map[string]struct{})
	out := make([]scoring.Result, 0, limit)

	admit := func(r scoring.Result) {
		taken[r.Track.CatalogID] = struct{}{}
		artistCount[r.Track.Artist()]++
		for _, g := range r.Track.Genres {
			genreCount[g]++
		}
		out = append(out, r)
	}

	for _, r := range ranked {
		if len(out) >= limit {
			break
		}
		if artistCount[r.Track.Artist()] >= aCap {
			continue
		}
		if genreOverflow(genreCount, r.Track.Genres, gCap) && len(out) >= limit/2 {
			continue
		}
		admit(r)
	}

	// Fill pass: genre variety is a preference, a short playlist is a bug.
	if len(out) < limit {
		for _, r := range ranked {
			if len(out) >= limit {
				break
			}
			if _, ok := taken[r.Track.CatalogID]; ok {
				continue
			}
			if artistCount[r.Track.Artist()] >= aCap {
				continue
			}
			admit(r)
		}
	}
	return out
}

func genreOverflow(counts map[string]int, genres []string, ceiling int) bool {
	for _, g := range genres {
		if counts[g] >= ceiling {
			return true
		}
	}
	return false
}
