package confhash

import (
	"reflect"
	"testing"
)

func TestDeletePathMapKey(t *testing.T) {
	config := map[string]any{"keep": 1.0, "drop": 2.0}
	got := DeletePath(config, "drop")

	want := map[string]any{"keep": 1.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}
}

func TestDeletePathNested(t *testing.T) {
	config := map[string]any{
		"user": map[string]any{
			"name":               "alice",
			"password_last_used": "2026-08-01",
		},
	}
	got := DeletePath(config, "user.password_last_used")

	want := map[string]any{
		"user": map[string]any{"name": "alice"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}
}

func TestDeletePathWildcardIndex(t *testing.T) {
	config := map[string]any{
		"accesskeys": []any{
			map[string]any{"KeyID": "AKIA1", "LastUsedDate": "2026-08-01"},
			map[string]any{"KeyID": "AKIA2", "LastUsedDate": "2026-08-02"},
		},
	}
	got := DeletePath(config, "accesskeys.*.LastUsedDate")

	want := map[string]any{
		"accesskeys": []any{
			map[string]any{"KeyID": "AKIA1"},
			map[string]any{"KeyID": "AKIA2"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}
}

func TestDeletePathTrailingWildcard(t *testing.T) {
	config := map[string]any{
		"statuses": []any{"pending", "applied"},
		"name":     "cluster-1",
	}
	got := DeletePath(config, "statuses.*")

	want := map[string]any{
		"statuses": []any{},
		"name":     "cluster-1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %#v, got %#v", want, got)
	}
}

func TestDeletePathMissingIsNoop(t *testing.T) {
	config := map[string]any{"present": true}

	for _, pattern := range []string{"absent", "absent.nested", "present.not_a_map", "list.*.field"} {
		got := DeletePath(config, pattern)
		want := map[string]any{"present": true}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("pattern %q: expected %#v, got %#v", pattern, want, got)
		}
	}
}

func TestDeletePathWildcardDoesNotMatchMapKeys(t *testing.T) {
	config := map[string]any{"a": 1.0, "b": 2.0}
	got := DeletePath(config, "*")

	want := map[string]any{"a": 1.0, "b": 2.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("wildcard should only match sequence indexes, got %#v", got)
	}
}

func TestCanonicalizeEmptyStructures(t *testing.T) {
	if got := Canonicalize(map[string]any{}); !reflect.DeepEqual(got, map[string]any{}) {
		t.Errorf("empty map should canonicalize to itself, got %#v", got)
	}
	if got := Canonicalize([]any{}); !reflect.DeepEqual(got, []any{}) {
		t.Errorf("empty slice should canonicalize to itself, got %#v", got)
	}
	if got := Canonicalize(nil); got != nil {
		t.Errorf("nil should canonicalize to itself, got %#v", got)
	}
}

func TestCanonicalizeSortsNestedObjectLists(t *testing.T) {
	config := map[string]any{
		"groups": []any{
			map[string]any{"name": "zeta"},
			map[string]any{"name": "alpha"},
		},
	}
	got := Canonicalize(config).(map[string]any)

	groups := got["groups"].([]any)
	first := groups[0].(map[string]any)
	if first["name"] != "alpha" {
		t.Errorf("expected object list sorted deterministically, got %#v", groups)
	}

	// The original must be untouched.
	original := config["groups"].([]any)[0].(map[string]any)
	if original["name"] != "zeta" {
		t.Errorf("canonicalize mutated its input: %#v", config)
	}
}
