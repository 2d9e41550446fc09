package harvest

import "sort"

// Sorted returns the identifiers of the set in ascending order, giving
// chunk construction a stable ordering across runs.
func Sorted(set map[Identifier]struct{}) []Identifier {
	out := make([]Identifier, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
