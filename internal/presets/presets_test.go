package presets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Built-ins ---

func TestBuiltinsAreValid(t *testing.T) {
	all := Builtin()
	if len(all) != 4 {
		t.Fatalf("Builtin count = %d, want 4", len(all))
	}
	for _, p := range all {
		if err := p.Validate(); err != nil {
			t.Errorf("built-in %q: %v", p.Label, err)
		}
		if len(p.Prompts) != 3 {
			t.Errorf("built-in %q has %d prompts, want 3", p.Label, len(p.Prompts))
		}
	}
}

func TestBuiltinReturnsCopy(t *testing.T) {
	a := Builtin()
	a[0].Prompts[0].Text = "changed"
	if Builtin()[0].Prompts[0].Text == "changed" {
		t.Error("Builtin exposed its backing array")
	}
}

func TestFindIsCaseInsensitive(t *testing.T) {
	lib, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p, ok := lib.Find("  night DRIVE ")
	if !ok {
		t.Fatal("Find(night drive) not found")
	}
	if p.Prompts[0].Text != "synthwave" || p.Prompts[0].Weight != 1.2 {
		t.Errorf("first prompt = %+v, want synthwave 1.2", p.Prompts[0])
	}
	if _, ok := lib.Find("polka"); ok {
		t.Error("Find(polka) should miss")
	}
}

// --- Instantiate ---

func TestInstantiateGivesFreshIDs(t *testing.T) {
	p, _ := mustLib(t).Find("Lo-fi study")
	a, b := p.Instantiate(), p.Instantiate()
	seen := map[string]bool{}
	for i := range a {
		if a[i].Text != p.Prompts[i].Text || a[i].Weight != p.Prompts[i].Weight {
			t.Errorf("prompt %d = %+v, want %+v", i, a[i], p.Prompts[i])
		}
		for _, id := range []string{a[i].ID, b[i].ID} {
			if id == "" || seen[id] {
				t.Errorf("id %q empty or reused", id)
			}
			seen[id] = true
		}
	}
}

// --- Loading ---

func TestLoadOverridesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	yaml := `presets:
  - label: night drive
    prompts:
      - text: darkwave
        weight: 1
  - label: Dub sirens
    prompts:
      - {text: dub techno, weight: 1.0}
      - {text: tape delay, weight: 0.4}
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	lib, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lib.Len() != 5 {
		t.Errorf("Len = %d, want 5", lib.Len())
	}
	all := lib.All()
	if all[0].Label != "night drive" || all[0].Prompts[0].Text != "darkwave" {
		t.Errorf("override = %+v, want darkwave in first slot", all[0])
	}
	if all[4].Label != "Dub sirens" || len(all[4].Prompts) != 2 {
		t.Errorf("appended = %+v", all[4])
	}
}

func TestLoadEmptyPath(t *testing.T) {
	lib, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if lib.Len() != 4 {
		t.Errorf("Len = %d, want the 4 built-ins", lib.Len())
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "presets: [", "parse presets"},
		{"no label", "presets:\n  - prompts: [{text: x, weight: 1}]\n", "no label"},
		{"no prompts", "presets:\n  - label: empty\n", "no prompts"},
		{"blank text", "presets:\n  - label: x\n    prompts: [{text: ' ', weight: 1}]\n", "no text"},
		{"zero weight", "presets:\n  - label: x\n    prompts: [{text: y, weight: 0}]\n", "prompt 1"},
		{"heavy weight", "presets:\n  - label: x\n    prompts: [{text: y, weight: 4}]\n", "prompt 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "p.yaml")
			os.WriteFile(path, []byte(tt.body), 0o644)
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load of a missing file should fail")
	}
}

func mustLib(t *testing.T) *Library {
	t.Helper()
	lib, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return lib
}
