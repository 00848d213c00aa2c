package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBuiltinReturnsCopy(t *testing.T) {
	a := Builtin()
	if len(a) == 0 {
		t.Fatalf("expected builtin entries")
	}
	a[0].ID = "mutated"
	b := Builtin()
	if b[0].ID == "mutated" {
		t.Fatalf("builtin catalog mutated via returned slice")
	}
}

func TestByID(t *testing.T) {
	cat := Builtin()
	if _, ok := ByID(cat, "fastvlm-0.5b"); !ok {
		t.Fatalf("expected fastvlm-0.5b in builtin catalog")
	}
	if _, ok := ByID(cat, "nope"); ok {
		t.Fatalf("unexpected hit")
	}
}

func TestLoadYAMLAndMerge(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "catalog.yaml")
	content := `models:
  - id: custom-vlm
    display_name: Custom VLM
    engine: cpu_gpu
    origin_repo: acme/custom-vlm-gguf
    files:
      - custom.gguf
    main_file: custom.gguf
  - id: fastvlm-0.5b
    display_name: FastVLM (patched)
    engine: npu
    origin_repo: apple/FastVLM-0.5B
    files:
      - patched.bin
`
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	extra, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(extra) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(extra))
	}
	merged := Merge(Builtin(), extra)
	d, ok := ByID(merged, "fastvlm-0.5b")
	if !ok || d.DisplayName != "FastVLM (patched)" {
		t.Fatalf("expected user entry to override builtin, got %+v", d)
	}
	if _, ok := ByID(merged, "custom-vlm"); !ok {
		t.Fatalf("expected custom entry appended")
	}
	// builtin count preserved plus one appended
	if len(merged) != len(Builtin())+1 {
		t.Fatalf("unexpected merged size %d", len(merged))
	}
}

func TestLoadRejectsInvalidEntries(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(p, []byte(`{"models":[{"id":"x","files":[]}]}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected error for empty file list")
	}
	p2 := filepath.Join(dir, "catalog.ini")
	if err := os.WriteFile(p2, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p2); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}
