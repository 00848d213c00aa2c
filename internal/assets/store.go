// Package assets tracks which model files exist on disk: it maps catalog
// descriptors to concrete paths, reports download completeness, and sums
// disk usage. It performs filesystem reads only; the download manager owns
// all writes except the size manifest recorded on file completion.
package assets

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"lingolens/pkg/types"
)

// ManifestName is the sidecar file recording the byte size of every
// completed download in a model directory. A file whose size disagrees with
// its manifest entry is treated as incomplete.
const ManifestName = "manifest.json"

// Store resolves descriptors against a root models directory.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the models root directory.
func (s *Store) Root() string { return s.root }

// ModelDir returns the storage directory for a descriptor: the root joined
// with the last path segment of the origin repo id.
func (s *Store) ModelDir(d types.ModelDescriptor) string {
	folder := d.OriginRepo
	if i := strings.LastIndex(folder, "/"); i >= 0 {
		folder = folder[i+1:]
	}
	if folder == "" {
		folder = d.ID
	}
	return filepath.Join(s.root, folder)
}

// MainFilePath returns the path handed to the engine at load time: the
// designated main file, or the model directory itself for engines that load
// a whole directory.
func (s *Store) MainFilePath(d types.ModelDescriptor) string {
	dir := s.ModelDir(d)
	if d.MainFile == "" {
		return dir
	}
	return filepath.Join(dir, d.MainFile)
}

// ProjectionFilePath returns the auxiliary projection file path, or "" when
// the descriptor has none.
func (s *Store) ProjectionFilePath(d types.ModelDescriptor) string {
	if d.ProjectionFile == "" {
		return ""
	}
	return filepath.Join(s.ModelDir(d), d.ProjectionFile)
}

// IsDownloaded reports whether every required file exists under the model
// directory. It short-circuits on the first missing file. When the manifest
// records a size for a file, the on-disk size must match exactly; files
// without a manifest entry are accepted on existence alone.
func (s *Store) IsDownloaded(d types.ModelDescriptor) bool {
	dir := s.ModelDir(d)
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return false
	}
	manifest := s.readManifest(dir)
	for _, name := range d.Files {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return false
		}
		if want, ok := manifest[name]; ok && fi.Size() != want {
			return false
		}
	}
	return true
}

// TotalDiskUsage sums file sizes under the models root. A missing root
// yields 0. Symlinks are not followed so the sum stays bounded to the tree.
func (s *Store) TotalDiskUsage() int64 {
	var total int64
	_ = filepath.WalkDir(s.root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// RecordFileSize updates the model directory's manifest with the completed
// size of one file.
func (s *Store) RecordFileSize(d types.ModelDescriptor, name string, size int64) error {
	dir := s.ModelDir(d)
	manifest := s.readManifest(dir)
	if manifest == nil {
		manifest = make(map[string]int64)
	}
	manifest[name] = size
	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestName), b, 0o644)
}

// ManifestSize returns the recorded size for a file, if any.
func (s *Store) ManifestSize(d types.ModelDescriptor, name string) (int64, bool) {
	m := s.readManifest(s.ModelDir(d))
	size, ok := m[name]
	return size, ok
}

func (s *Store) readManifest(dir string) map[string]int64 {
	b, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil
	}
	var m map[string]int64
	if err := json.Unmarshal(b, &m); err != nil {
		// A corrupt manifest degrades to existence-only checks.
		return nil
	}
	return m
}
