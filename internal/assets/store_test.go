package assets

import (
	"os"
	"path/filepath"
	"testing"

	"lingolens/pkg/types"
)

func testDescriptor() types.ModelDescriptor {
	return types.ModelDescriptor{
		ID:         "fastvlm-0.5b",
		Engine:     types.EngineNPU,
		OriginRepo: "apple/FastVLM-0.5B",
		Files:      []string{"model.bin", "encoder.bin", "tokenizer.json"},
		MainFile:   "model.bin",
	}
}

func writeModelFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestModelDirUsesLastRepoSegment(t *testing.T) {
	s := NewStore("/data/models")
	d := testDescriptor()
	if got := s.ModelDir(d); got != filepath.Join("/data/models", "FastVLM-0.5B") {
		t.Fatalf("unexpected dir: %q", got)
	}
	d.OriginRepo = "flatrepo"
	if got := s.ModelDir(d); got != filepath.Join("/data/models", "flatrepo") {
		t.Fatalf("unexpected dir: %q", got)
	}
}

func TestMainFilePath(t *testing.T) {
	s := NewStore("/data/models")
	d := testDescriptor()
	want := filepath.Join("/data/models", "FastVLM-0.5B", "model.bin")
	if got := s.MainFilePath(d); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	// no main file designated: the directory itself
	d.MainFile = ""
	if got := s.MainFilePath(d); got != s.ModelDir(d) {
		t.Fatalf("expected model dir, got %q", got)
	}
}

func TestIsDownloadedRequiresEveryFile(t *testing.T) {
	s := NewStore(t.TempDir())
	d := testDescriptor()
	if s.IsDownloaded(d) {
		t.Fatalf("expected not downloaded with no directory")
	}
	dir := s.ModelDir(d)
	for _, f := range d.Files {
		writeModelFile(t, dir, f, 8)
	}
	if !s.IsDownloaded(d) {
		t.Fatalf("expected downloaded with all files present")
	}
	// deleting any one file flips it false
	if err := os.Remove(filepath.Join(dir, "encoder.bin")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.IsDownloaded(d) {
		t.Fatalf("expected not downloaded after deleting one file")
	}
}

func TestIsDownloadedRejectsTruncatedFile(t *testing.T) {
	s := NewStore(t.TempDir())
	d := testDescriptor()
	dir := s.ModelDir(d)
	for _, f := range d.Files {
		writeModelFile(t, dir, f, 64)
		if err := s.RecordFileSize(d, f, 64); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if !s.IsDownloaded(d) {
		t.Fatalf("expected downloaded")
	}
	// truncate one file: size no longer matches the manifest
	writeModelFile(t, dir, "model.bin", 12)
	if s.IsDownloaded(d) {
		t.Fatalf("expected truncated file to read as incomplete")
	}
}

func TestIsDownloadedWithoutManifestIsExistenceOnly(t *testing.T) {
	s := NewStore(t.TempDir())
	d := testDescriptor()
	dir := s.ModelDir(d)
	for _, f := range d.Files {
		writeModelFile(t, dir, f, 1)
	}
	if !s.IsDownloaded(d) {
		t.Fatalf("expected existence-only completeness without manifest")
	}
}

func TestTotalDiskUsage(t *testing.T) {
	root := filepath.Join(t.TempDir(), "models")
	s := NewStore(root)
	if got := s.TotalDiskUsage(); got != 0 {
		t.Fatalf("expected 0 for missing root, got %d", got)
	}
	d := testDescriptor()
	writeModelFile(t, s.ModelDir(d), "model.bin", 100)
	writeModelFile(t, s.ModelDir(d), "encoder.bin", 28)
	if got := s.TotalDiskUsage(); got != 128 {
		t.Fatalf("expected 128 bytes, got %d", got)
	}
}

func TestManifestSizeRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	d := testDescriptor()
	writeModelFile(t, s.ModelDir(d), "model.bin", 5)
	if err := s.RecordFileSize(d, "model.bin", 5); err != nil {
		t.Fatalf("record: %v", err)
	}
	size, ok := s.ManifestSize(d, "model.bin")
	if !ok || size != 5 {
		t.Fatalf("manifest size=%d ok=%v", size, ok)
	}
	if _, ok := s.ManifestSize(d, "other.bin"); ok {
		t.Fatalf("unexpected manifest entry")
	}
}
