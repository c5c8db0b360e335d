package internal

import "testing"

// TestFlattenNested tests that nested objects collapse into dotted keys.
func TestFlattenNested(t *testing.T) {
	out := Flatten(map[string]interface{}{
		"action": "opened",
		"pull_request": map[string]interface{}{
			"draft": false,
			"base":  map[string]interface{}{"ref": "main"},
		},
	})

	if out["action"] != "opened" {
		t.Fatalf("expected top-level key, got %v", out["action"])
	}
	if out["pull_request.draft"] != false {
		t.Fatalf("expected pull_request.draft, got %v", out["pull_request.draft"])
	}
	if out["pull_request.base.ref"] != "main" {
		t.Fatalf("expected pull_request.base.ref, got %v", out["pull_request.base.ref"])
	}
}

// TestFlattenArrays tests that arrays stay reachable at their plain path and
// also expand to indexed keys.
func TestFlattenArrays(t *testing.T) {
	out := Flatten(map[string]interface{}{
		"labels": []interface{}{
			map[string]interface{}{"name": "bug"},
			map[string]interface{}{"name": "ui"},
		},
	})

	if _, ok := out["labels"].([]interface{}); !ok {
		t.Fatalf("expected labels to remain an array, got %T", out["labels"])
	}
	if out["labels[0].name"] != "bug" {
		t.Fatalf("expected labels[0].name, got %v", out["labels[0].name"])
	}
	if out["labels[1].name"] != "ui" {
		t.Fatalf("expected labels[1].name, got %v", out["labels[1].name"])
	}
}
