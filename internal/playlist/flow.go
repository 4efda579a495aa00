package playlist

import (
	"math"
	"sort"

	"github.com/kalambet/mixtape/internal/features"
	"github.com/kalambet/mixtape/internal/profile"
	"github.com/kalambet/mixtape/internal/scoring"
)

// smoothThreshold is the minimum transition-cost improvement a smoothing
// swap must deliver. Below it the swap is churn, not flow.
const smoothThreshold = 0.08

// reorderForFlow spaces out repeated artists and then smooths energy/mood
// transitions. The input is score-ranked; within one artist that ranking is
// preserved.
func reorderForFlow(tracks []scoring.Result) []scoring.Result {
	spaced := spaceArtists(tracks)
	smoothTransitions(spaced)
	return spaced
}

// spaceArtists places each repeated artist's tracks at evenly spread ideal
// positions (spacing = length/occurrences), snapping each to the nearest
// free slot that does not sit next to the same artist. Single-occurrence
// tracks fill the remaining slots in rank order.
func spaceArtists(tracks []scoring.Result) []scoring.Result {
	n := len(tracks)
	if n < 3 {
		return append([]scoring.Result(nil), tracks...)
	}

	counts := make(map[string]int, n)
	for _, t := range tracks {
		counts[t.Track.Artist()]++
	}

	slots := make([]*scoring.Result, n)
	// Repeated artists first, most tracks first: they are the hardest to
	// place and deserve the freest board.
	type group struct {
		artist string
		items  []scoring.Result
	}
	var repeated []group
	byArtist := make(map[string]int)
	for _, t := range tracks {
		a := t.Track.Artist()
		if counts[a] < 2 {
			continue
		}
		idx, ok := byArtist[a]
		if !ok {
			byArtist[a] = len(repeated)
			repeated = append(repeated, group{artist: a})
			idx = len(repeated) - 1
		}
		repeated[idx].items = append(repeated[idx].items, t)
	}
	sort.SliceStable(repeated, func(i, j int) bool {
		return len(repeated[i].items) > len(repeated[j].items)
	})

	for _, g := range repeated {
		spacing := float64(n) / float64(len(g.items))
		for k := range g.items {
			ideal := int(math.Round(spacing * float64(k)))
			placeAt(slots, &g.items[k], ideal, g.artist)
		}
	}

	// Singles fill the gaps, best score first.
	free := 0
	for _, t := range tracks {
		if counts[t.Track.Artist()] >= 2 {
			continue
		}
		for free < n && slots[free] != nil {
			free++
		}
		if free < n {
			slots[free] = &t
		}
	}

	out := make([]scoring.Result, 0, n)
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// placeAt puts r in the free slot nearest ideal that is not adjacent to the
// same artist, falling back to the first free slot anywhere.
func placeAt(slots []*scoring.Result, r *scoring.Result, ideal int, artist string) {
	n := len(slots)
	if ideal >= n {
		ideal = n - 1
	}
	for dist := 0; dist < n; dist++ {
		for _, pos := range []int{ideal - dist, ideal + dist} {
			if pos < 0 || pos >= n || slots[pos] != nil {
				continue
			}
			if adjacentArtist(slots, pos, artist) {
				continue
			}
			slots[pos] = r
			return
		}
	}
	for pos := 0; pos < n; pos++ {
		if slots[pos] == nil {
			slots[pos] = r
			return
		}
	}
}

func adjacentArtist(slots []*scoring.Result, pos int, artist string) bool {
	if artist == "" {
		return false
	}
	if pos > 0 && slots[pos-1] != nil && slots[pos-1].Track.Artist() == artist {
		return true
	}
	if pos+1 < len(slots) && slots[pos+1] != nil && slots[pos+1].Track.Artist() == artist {
		return true
	}
	return false
}

// smoothTransitions makes a single pass over sliding windows, swapping the
// middle pair when that strictly lowers the local transition cost by more
// than smoothThreshold and introduces no same-artist adjacency.
func smoothTransitions(tracks []scoring.Result) {
	for i := 0; i+2 < len(tracks); i++ {
		a, b, c := i, i+1, i+2
		before := transitionCost(tracks[a].Track, tracks[b].Track) +
			transitionCost(tracks[b].Track, tracks[c].Track)
		after := transitionCost(tracks[a].Track, tracks[c].Track) +
			transitionCost(tracks[c].Track, tracks[b].Track)
		if i+3 < len(tracks) {
			before += transitionCost(tracks[c].Track, tracks[i+3].Track)
			after += transitionCost(tracks[b].Track, tracks[i+3].Track)
		}
		if before-after <= smoothThreshold {
			continue
		}
		if swapCreatesAdjacency(tracks, b, c) {
			continue
		}
		tracks[b], tracks[c] = tracks[c], tracks[b]
	}
}

func swapCreatesAdjacency(tracks []scoring.Result, b, c int) bool {
	artistAt := func(i int) string {
		if i < 0 || i >= len(tracks) {
			return ""
		}
		return tracks[i].Track.Artist()
	}
	// After the swap, c's track sits at b and b's at c.
	if a := artistAt(c); a != "" && (a == artistAt(b-1)) {
		return true
	}
	if a := artistAt(b); a != "" && (a == artistAt(c+1)) {
		return true
	}
	return false
}

// transitionCost measures how jarring the cut from one track to the next is:
// a weighted blend of energy, valence and tempo jumps, each normalized to
// the 0–35 attribute scale.
func transitionCost(from, to features.Track) float64 {
	scale := float64(profile.ScaleMax)
	de := math.Abs(float64(from.Energy-to.Energy)) / scale
	dv := math.Abs(float64(from.Valence-to.Valence)) / scale
	dt := math.Abs(float64(from.Tempo-to.Tempo)) / scale
	return 0.5*de + 0.3*dv + 0.2*dt
}
