// Package features converts heterogeneous provider metadata — weighted tags
// and/or a normalized audio-feature vector — into the canonical Track vector
// consumed by scoring. Mapping is pure; callers cache results keyed by
// catalog ID.
package features

import (
	"math"
	"sort"
	"strings"

	"github.com/kalambet/mixtape/internal/catalog"
	"github.com/kalambet/mixtape/internal/metadata"
	"github.com/kalambet/mixtape/internal/profile"
)

// tagCountCap bounds a single tag's weight so one massively-applied tag does
// not drown the rest.
const tagCountCap = 100

const maxGenres = 3

// Mapper builds Track vectors from raw candidate metadata.
type Mapper struct{}

// NewMapper returns a Mapper.
func NewMapper() *Mapper { return &Mapper{} }

// Map converts one candidate plus whatever metadata resolved for it. Either
// input may be empty/nil; with no metadata at all the result is the neutral
// proxy vector, never a dropped candidate.
func (m *Mapper) Map(c catalog.Candidate, tags []metadata.Tag, af *metadata.AudioFeatures) Track {
	t := Track{
		CatalogID:  c.CatalogID,
		Title:      c.Title,
		Artists:    c.Artists,
		Year:       c.Year,
		Popularity: c.Popularity,
	}

	if len(tags) == 0 && af == nil {
		return proxyTrack(t)
	}

	normTags := normalizeTags(tags)

	t.Style = styleFromTags(normTags)
	t.Tempo, t.Energy, t.Complexity, t.Mode, t.Predictability, t.Consonance, t.Valence, t.Arousal = attributesFromTags(normTags)

	if af != nil {
		applyAudioFeatures(&t, af)
	}

	t.Genres = genresFromTags(normTags)
	t.Tags = tagNames(normTags)
	return t
}

// proxyTrack fills every dimension with the neutral midpoint so the track
// scores as "no signal" rather than being excluded.
func proxyTrack(t Track) Track {
	mid := profile.Midpoint
	t.Style = profile.StyleDims{Mellow: mid, Unpretentious: mid, Sophisticated: mid, Intense: mid, Contemporary: mid}
	t.Tempo, t.Energy, t.Complexity = mid, mid, mid
	t.Mode, t.Predictability, t.Consonance = mid, mid, mid
	t.Valence, t.Arousal = mid, mid
	t.Proxy = true
	return t
}

func normalizeTags(tags []metadata.Tag) []metadata.Tag {
	out := make([]metadata.Tag, 0, len(tags))
	for _, tag := range tags {
		name := strings.ToLower(strings.TrimSpace(tag.Name))
		if name == "" {
			continue
		}
		count := tag.Count
		if count <= 0 {
			count = 1
		}
		if count > tagCountCap {
			count = tagCountCap
		}
		out = append(out, metadata.Tag{Name: name, Count: count})
	}
	return out
}

// styleFromTags computes each style dimension as the count-weighted average
// of the targets contributed by recognized tags. Dimensions with no
// contributing tag default to the midpoint.
func styleFromTags(tags []metadata.Tag) profile.StyleDims {
	var sum, weight [5]float64
	for _, tag := range tags {
		targets, ok := styleTable[tag.Name]
		if !ok {
			continue
		}
		w := float64(tag.Count)
		for i, target := range [5]int{targets.Mellow, targets.Unpretentious, targets.Sophisticated, targets.Intense, targets.Contemporary} {
			if target == 0 {
				continue
			}
			sum[i] += w * float64(target)
			weight[i] += w
		}
	}

	dim := func(i int) int {
		if weight[i] == 0 {
			return profile.Midpoint
		}
		return profile.ClampScale(int(math.Round(sum[i] / weight[i])))
	}
	return profile.StyleDims{
		Mellow:        dim(0),
		Unpretentious: dim(1),
		Sophisticated: dim(2),
		Intense:       dim(3),
		Contemporary:  dim(4),
	}
}

// attributesFromTags applies the independent keyword heuristics for the
// non-style dimensions. Each dimension averages its hints' targets.
func attributesFromTags(tags []metadata.Tag) (tempo, energy, complexity, mode, predictability, consonance, valence, arousal int) {
	sums := map[string]float64{}
	weights := map[string]float64{}
	for _, tag := range tags {
		hints, ok := attributeHints[tag.Name]
		if !ok {
			continue
		}
		w := float64(tag.Count)
		for _, h := range hints {
			sums[h.dim] += w * float64(h.target)
			weights[h.dim] += w
		}
	}

	dim := func(name string) int {
		if weights[name] == 0 {
			return profile.Midpoint
		}
		return profile.ClampScale(int(math.Round(sums[name] / weights[name])))
	}
	return dim("tempo"), dim("energy"), dim("complexity"), dim("mode"),
		dim("predictability"), dim("consonance"), dim("valence"), dim("arousal")
}

// Audio-feature thresholds for the style-dimension nudges.
const (
	highAcousticness = 0.6
	lowEnergy        = 0.4
	highEnergy       = 0.7
	highInstrumental = 0.7
	highValence      = 0.6
	highDanceability = 0.6
)

// applyAudioFeatures refines the tag-derived dimensions with the provider's
// numeric vector: direct linear rescales where the feature maps one-to-one,
// threshold nudges on the style dimensions.
func applyAudioFeatures(t *Track, af *metadata.AudioFeatures) {
	t.Tempo = scaleFromBPM(af.TempoBPM)
	t.Energy = scaleFromUnit(af.Energy)
	t.Valence = scaleFromUnit(af.Valence)
	// Arousal tracks energy with a danceability component.
	t.Arousal = scaleFromUnit(0.7*af.Energy + 0.3*af.Danceability)
	if af.Mode == 1 {
		t.Mode = 28
	} else {
		t.Mode = 7
	}
	// Danceable, vocal-forward material is more predictable.
	t.Predictability = scaleFromUnit(0.6*af.Danceability + 0.4*(1-af.Instrumentalness))

	if af.Acousticness > highAcousticness && af.Energy < lowEnergy {
		t.Style.Mellow = nudge(t.Style.Mellow, +6)
	}
	if af.Energy > highEnergy {
		t.Style.Intense = nudge(t.Style.Intense, +6)
		t.Style.Mellow = nudge(t.Style.Mellow, -4)
	}
	if af.Valence > highValence && af.Danceability > highDanceability {
		t.Style.Unpretentious = nudge(t.Style.Unpretentious, +4)
		t.Style.Contemporary = nudge(t.Style.Contemporary, +4)
	}
	if af.Instrumentalness > highInstrumental {
		t.Style.Sophisticated = nudge(t.Style.Sophisticated, +4)
		t.Complexity = nudge(t.Complexity, +4)
	}
}

// scaleFromBPM rescales 40–200 BPM linearly onto 0–35.
func scaleFromBPM(bpm float64) int {
	if bpm <= 0 {
		return profile.Midpoint
	}
	unit := (bpm - 40) / 160
	return scaleFromUnit(unit)
}

func scaleFromUnit(v float64) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return profile.ClampScale(int(math.Round(v * profile.ScaleMax)))
}

func nudge(v, delta int) int {
	return profile.ClampScale(v + delta)
}

// genresFromTags picks the top-weighted tags that appear in the fixed genre
// vocabulary.
func genresFromTags(tags []metadata.Tag) []string {
	matched := make([]metadata.Tag, 0, len(tags))
	for _, tag := range tags {
		if genreVocabulary[tag.Name] {
			matched = append(matched, tag)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Count > matched[j].Count
	})
	n := len(matched)
	if n > maxGenres {
		n = maxGenres
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = matched[i].Name
	}
	return out
}

func tagNames(tags []metadata.Tag) []string {
	out := make([]string, len(tags))
	for i, tag := range tags {
		out[i] = tag.Name
	}
	return out
}
