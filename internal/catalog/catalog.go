// Package catalog holds the static model catalog: which vision models the
// app knows how to download and load. Entries are defined at build time and
// may be extended by a user catalog file.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"lingolens/pkg/types"
)

// Builtin returns the compiled-in model catalog. Callers receive a fresh
// slice on every call and may reorder it freely.
func Builtin() []types.ModelDescriptor {
	return []types.ModelDescriptor{
		{
			ID:          "fastvlm-0.5b",
			DisplayName: "FastVLM 0.5B",
			Engine:      types.EngineNPU,
			OriginRepo:  "apple/FastVLM-0.5B",
			SizeLabel:   "1.1 GB",
			Files: []string{
				"fastvlm_0.5b_stage3.npu.bin",
				"vision_encoder.npu.bin",
				"tokenizer.json",
			},
			MainFile:  "fastvlm_0.5b_stage3.npu.bin",
			MaxEdge:   1024,
			Languages: []string{"en"},
		},
		{
			ID:          "smolvlm2-2.2b-q4",
			DisplayName: "SmolVLM2 2.2B (Q4)",
			Engine:      types.EngineCPUGPU,
			OriginRepo:  "ggml-org/SmolVLM2-2.2B-Instruct-GGUF",
			SizeLabel:   "1.7 GB",
			Files: []string{
				"SmolVLM2-2.2B-Instruct-Q4_K_M.gguf",
				"mmproj-SmolVLM2-2.2B-Instruct-Q8_0.gguf",
			},
			MainFile:       "SmolVLM2-2.2B-Instruct-Q4_K_M.gguf",
			ProjectionFile: "mmproj-SmolVLM2-2.2B-Instruct-Q8_0.gguf",
			Languages:      []string{"en"},
		},
		{
			ID:          "qwen2.5-vl-3b-q4",
			DisplayName: "Qwen2.5-VL 3B (Q4)",
			Engine:      types.EngineCPUGPU,
			OriginRepo:  "ggml-org/Qwen2.5-VL-3B-Instruct-GGUF",
			SizeLabel:   "2.1 GB",
			Files: []string{
				"Qwen2.5-VL-3B-Instruct-Q4_K_M.gguf",
				"mmproj-Qwen2.5-VL-3B-Instruct-f16.gguf",
			},
			MainFile:       "Qwen2.5-VL-3B-Instruct-Q4_K_M.gguf",
			ProjectionFile: "mmproj-Qwen2.5-VL-3B-Instruct-f16.gguf",
			Languages:      []string{"en", "zh"},
		},
	}
}

// catalogFile is the on-disk shape of a user catalog.
type catalogFile struct {
	Models []types.ModelDescriptor `json:"models" yaml:"models" toml:"models"`
}

// Load reads extra descriptors from a catalog file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) ([]types.ModelDescriptor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cf catalogFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cf); err != nil {
			return nil, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cf); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cf); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported catalog extension: %s", ext)
	}
	for i, d := range cf.Models {
		if d.ID == "" {
			return nil, fmt.Errorf("catalog entry %d: missing id", i)
		}
		if len(d.Files) == 0 {
			return nil, fmt.Errorf("catalog entry %q: empty file list", d.ID)
		}
	}
	return cf.Models, nil
}

// Merge overlays extra entries on top of base. A duplicate id replaces the
// base entry in place so user catalogs can override builtin descriptors.
func Merge(base, extra []types.ModelDescriptor) []types.ModelDescriptor {
	out := make([]types.ModelDescriptor, len(base))
	copy(out, base)
	for _, e := range extra {
		replaced := false
		for i := range out {
			if out[i].ID == e.ID {
				out[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, e)
		}
	}
	return out
}

// ByID finds a descriptor in the given catalog.
func ByID(cat []types.ModelDescriptor, id string) (types.ModelDescriptor, bool) {
	for _, d := range cat {
		if d.ID == id {
			return d, true
		}
	}
	return types.ModelDescriptor{}, false
}
