package confhash

import "strings"

// DeletePath removes every value matched by the given path pattern from v
// and returns the (possibly replaced) tree. Patterns are dot-separated
// segments: a literal segment matches a map key, and "*" matches any
// sequence index. A path that does not exist is a no-op, never an error.
//
// Maps are pruned in place; sequences are rebuilt when elements are removed,
// which is why callers must use the return value.
func DeletePath(v any, pattern string) any {
	segments := strings.Split(pattern, ".")
	if len(segments) == 0 {
		return v
	}
	return deleteSegments(v, segments)
}

func deleteSegments(v any, segments []string) any {
	head, rest := segments[0], segments[1:]

	switch t := v.(type) {
	case map[string]any:
		if head == "*" {
			// Wildcards match sequence indexes only.
			return t
		}
		child, ok := t[head]
		if !ok {
			return t
		}
		if len(rest) == 0 {
			delete(t, head)
			return t
		}
		t[head] = deleteSegments(child, rest)
		return t

	case []any:
		if head != "*" {
			return t
		}
		if len(rest) == 0 {
			return []any{}
		}
		for i, elem := range t {
			t[i] = deleteSegments(elem, rest)
		}
		return t

	default:
		return v
	}
}
