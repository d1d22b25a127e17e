package confhash

import (
	"encoding/json"
	"sort"
)

// Canonicalize returns a deep copy of v in which every sequence whose
// elements are all mappings is sorted into a deterministic order. Plain
// scalar (or mixed) sequences keep their original order. The input is never
// mutated; inputs are assumed acyclic and JSON-compatible.
func Canonicalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Canonicalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			out[i] = Canonicalize(elem)
		}
		if len(out) > 0 && allMappings(out) {
			sortMappings(out)
		}
		return out
	default:
		return v
	}
}

func allMappings(elems []any) bool {
	for _, e := range elems {
		if _, ok := e.(map[string]any); !ok {
			return false
		}
	}
	return true
}

// sortMappings orders a slice of mappings by the JSON encoding of each
// element. The elements are already canonicalized, and encoding/json writes
// map keys in sorted order, so the resulting order is independent of both
// the original element order and map key insertion order.
func sortMappings(elems []any) {
	type keyed struct {
		key  string
		elem any
	}
	pairs := make([]keyed, len(elems))
	for i, e := range elems {
		// Encoding errors leave an empty sort key; the hash step will
		// surface the error for non-encodable input.
		data, _ := json.Marshal(e)
		pairs[i] = keyed{key: string(data), elem: e}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].key < pairs[j].key
	})
	for i := range pairs {
		elems[i] = pairs[i].elem
	}
}
