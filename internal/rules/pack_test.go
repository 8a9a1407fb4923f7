package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPacks_NonExistentDir(t *testing.T) {
	base := Default()
	result, infos, err := LoadPacks("/nonexistent/rules.d", base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != base || len(infos) != 0 {
		t.Error("expected base returned unchanged")
	}
}

func TestLoadPacks_MergesAndSkipsDisabled(t *testing.T) {
	dir := t.TempDir()
	base := Default()

	pack := `
name: "Realtek cleanup"
version: "1.0.0"
keyword_sets:
  intel_platform: [Intel, "smart sound"]
  realtek: [realtek]
signals:
  - id: realtek_audio
    weight: 10
    rationale: "Realtek audio leftover"
    when: { all: [ { path: item.vendor, op: matches_keywords, keywords: realtek } ] }
`
	disabled := `
signals:
  - id: disabled_signal
    weight: 50
    when: { all: [ { path: item.present, op: eq, value: false } ] }
`
	os.WriteFile(filepath.Join(dir, "realtek.yaml"), []byte(pack), 0644)
	os.WriteFile(filepath.Join(dir, "_off.yml"), []byte(disabled), 0644)
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644)

	result, infos, err := LoadPacks(dir, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 pack infos, got %d", len(infos))
	}
	if len(result.Signals) != len(base.Signals)+1 {
		t.Errorf("expected one extra signal, got %d (base %d)", len(result.Signals), len(base.Signals))
	}
	if len(result.KeywordSets["realtek"]) != 1 {
		t.Error("new keyword set not merged")
	}
	if got := len(result.KeywordSets["intel_platform"]); got != len(base.KeywordSets["intel_platform"])+1 {
		t.Errorf("keyword union wrong: %v", result.KeywordSets["intel_platform"])
	}
	if len(Default().Signals) != len(base.Signals) {
		t.Error("base rule set must not be mutated")
	}
}

func TestLoadPacks_DuplicateSignalRejected(t *testing.T) {
	dir := t.TempDir()
	dup := `
signals:
  - id: non_present_device
    weight: 99
    when: { all: [ { path: item.present, op: eq, value: false } ] }
`
	os.WriteFile(filepath.Join(dir, "dup.yaml"), []byte(dup), 0644)
	if _, _, err := LoadPacks(dir, Default()); err == nil {
		t.Fatal("expected duplicate signal id to fail validation")
	}
}
