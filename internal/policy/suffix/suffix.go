// Package suffix decomposes a canonical query name into its ordered list of
// dot-suffixes, the sequence the Policy Decider walks from most-specific to
// least-specific when probing the suffix-keyed rule sets (block_wildcard,
// allow_suffix, block_suffix).
package suffix

// MaxLevels bounds the number of suffixes produced for one name, matching
// the original store's 16-level limit (covers the overwhelming majority of
// real-world domain names while keeping the walk O(1)-bounded).
const MaxLevels = 16

// Of returns name itself followed by each suffix obtained by stripping one
// more leading label at a time, e.g. Of("a.b.example.com") returns
// ["a.b.example.com", "b.example.com", "example.com", "com"]. The result
// re-slices name and performs no allocation beyond the returned slice
// header and its backing array. Empty suffixes (a trailing dot) are never
// produced. At most MaxLevels entries are returned.
func Of(name string) []string {
	if name == "" {
		return nil
	}

	suffixes := make([]string, 0, MaxLevels)
	suffixes = append(suffixes, name)

	for i := 0; i < len(name) && len(suffixes) < MaxLevels; i++ {
		if name[i] != '.' {
			continue
		}
		if i+1 < len(name) {
			suffixes = append(suffixes, name[i+1:])
		}
	}

	return suffixes
}
