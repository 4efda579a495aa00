package profile

// Merge folds the fields learned in a later turn into an accumulated
// profile. Known incoming values overwrite (a later turn refines an earlier
// answer); Unknown incoming values leave the accumulated value untouched, so
// refining one sub-field never erases previously learned siblings.
func Merge(acc, incoming Profile) Profile {
	out := acc
	for _, f := range fields {
		if v := f.get(&incoming); Known(v) {
			f.set(&out, v)
		}
	}
	out.SeedArtists = mergeLists(acc.SeedArtists, incoming.SeedArtists)
	out.SeedTracks = mergeLists(acc.SeedTracks, incoming.SeedTracks)
	return out
}

// mergeLists appends new entries, preserving first-seen order with
// exact-match dedup.
func mergeLists(acc, incoming []string) []string {
	if len(incoming) == 0 {
		return acc
	}
	seen := make(map[string]bool, len(acc))
	out := make([]string, 0, len(acc)+len(incoming))
	for _, s := range acc {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range incoming {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
