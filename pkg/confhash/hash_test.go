package confhash

import (
	"reflect"
	"testing"
)

func TestHashConfigDeterminism(t *testing.T) {
	config := map[string]any{
		"name":  "web-sg",
		"rules": []any{"tcp/443", "tcp/80"},
		"tags":  map[string]any{"env": "prod", "team": "infra"},
	}

	first, err := HashConfig(config)
	if err != nil {
		t.Fatalf("failed to hash config: %v", err)
	}
	if len(first) != 32 {
		t.Fatalf("expected 32-character hash, got %d characters: %s", len(first), first)
	}

	for i := 0; i < 10; i++ {
		again, err := HashConfig(config)
		if err != nil {
			t.Fatalf("failed to hash config: %v", err)
		}
		if again != first {
			t.Fatalf("hash not stable across calls: %s != %s", again, first)
		}
	}
}

func TestHashConfigKeyOrderIndependence(t *testing.T) {
	a := map[string]any{"alpha": 1.0, "beta": 2.0, "gamma": 3.0}
	b := map[string]any{"gamma": 3.0, "beta": 2.0, "alpha": 1.0}

	hashA, err := HashConfig(a)
	if err != nil {
		t.Fatalf("failed to hash config: %v", err)
	}
	hashB, err := HashConfig(b)
	if err != nil {
		t.Fatalf("failed to hash config: %v", err)
	}
	if hashA != hashB {
		t.Errorf("expected identical hashes for reordered keys, got %s and %s", hashA, hashB)
	}
}

func TestHashConfigListOfObjectOrderIndependence(t *testing.T) {
	a := map[string]any{
		"rules": []any{
			map[string]any{"port": 443.0, "proto": "tcp"},
			map[string]any{"port": 80.0, "proto": "tcp"},
		},
	}
	b := map[string]any{
		"rules": []any{
			map[string]any{"port": 80.0, "proto": "tcp"},
			map[string]any{"port": 443.0, "proto": "tcp"},
		},
	}

	hashA, err := HashConfig(a)
	if err != nil {
		t.Fatalf("failed to hash config: %v", err)
	}
	hashB, err := HashConfig(b)
	if err != nil {
		t.Fatalf("failed to hash config: %v", err)
	}
	if hashA != hashB {
		t.Errorf("expected identical hashes for reordered object lists, got %s and %s", hashA, hashB)
	}
}

func TestHashConfigScalarListOrderMatters(t *testing.T) {
	a := map[string]any{"zones": []any{"us-east-1a", "us-east-1b"}}
	b := map[string]any{"zones": []any{"us-east-1b", "us-east-1a"}}

	hashA, err := HashConfig(a)
	if err != nil {
		t.Fatalf("failed to hash config: %v", err)
	}
	hashB, err := HashConfig(b)
	if err != nil {
		t.Fatalf("failed to hash config: %v", err)
	}
	if hashA == hashB {
		t.Error("expected different hashes for reordered scalar lists")
	}
}

func TestDurableHashEphemeralInvariance(t *testing.T) {
	base := map[string]any{
		"assigned_to": "i-0123456789",
		"rules": []any{
			map[string]any{"port": 443.0, "proto": "tcp"},
		},
	}
	mutated := map[string]any{
		"assigned_to": "i-9876543210",
		"rules": []any{
			map[string]any{"port": 443.0, "proto": "tcp"},
		},
	}
	paths := []string{"assigned_to"}

	baseDurable, err := DurableHash(base, paths)
	if err != nil {
		t.Fatalf("failed to compute durable hash: %v", err)
	}
	mutatedDurable, err := DurableHash(mutated, paths)
	if err != nil {
		t.Fatalf("failed to compute durable hash: %v", err)
	}
	if baseDurable != mutatedDurable {
		t.Errorf("durable hash changed under ephemeral-only mutation: %s != %s", baseDurable, mutatedDurable)
	}

	baseComplete, err := HashConfig(base)
	if err != nil {
		t.Fatalf("failed to compute complete hash: %v", err)
	}
	mutatedComplete, err := HashConfig(mutated)
	if err != nil {
		t.Fatalf("failed to compute complete hash: %v", err)
	}
	if baseComplete == mutatedComplete {
		t.Error("complete hash did not change under ephemeral mutation")
	}
}

func TestDurableHashNonEphemeralChange(t *testing.T) {
	base := map[string]any{"assigned_to": "x", "size": "m5.large"}
	changed := map[string]any{"assigned_to": "x", "size": "m5.xlarge"}
	paths := []string{"assigned_to"}

	baseHash, err := DurableHash(base, paths)
	if err != nil {
		t.Fatalf("failed to compute durable hash: %v", err)
	}
	changedHash, err := DurableHash(changed, paths)
	if err != nil {
		t.Fatalf("failed to compute durable hash: %v", err)
	}
	if baseHash == changedHash {
		t.Error("durable hash did not change under non-ephemeral mutation")
	}
}

func TestDurableHashMissingPathTolerance(t *testing.T) {
	config := map[string]any{"name": "bare"}
	paths := []string{
		"assigned_to",
		"user.password_last_used",
		"accesskeys.*.LastUsedDate",
	}

	withPaths, err := DurableHash(config, paths)
	if err != nil {
		t.Fatalf("durable hash failed on missing paths: %v", err)
	}
	plain, err := HashConfig(config)
	if err != nil {
		t.Fatalf("failed to hash config: %v", err)
	}
	if withPaths != plain {
		t.Errorf("missing paths should not alter the hash: %s != %s", withPaths, plain)
	}
}

func TestDurableHashDoesNotMutateInput(t *testing.T) {
	config := map[string]any{
		"assigned_to": "x",
		"accesskeys": []any{
			map[string]any{"KeyID": "AKIA1", "LastUsedDate": "2026-08-01"},
		},
	}
	want := map[string]any{
		"assigned_to": "x",
		"accesskeys": []any{
			map[string]any{"KeyID": "AKIA1", "LastUsedDate": "2026-08-01"},
		},
	}

	if _, err := DurableHash(config, []string{"assigned_to", "accesskeys.*.LastUsedDate"}); err != nil {
		t.Fatalf("failed to compute durable hash: %v", err)
	}
	if !reflect.DeepEqual(config, want) {
		t.Errorf("input mutated by DurableHash: %#v", config)
	}
}
