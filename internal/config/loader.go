package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the app core.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr           string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir      string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	CardsFile      string `json:"cards_file" yaml:"cards_file" toml:"cards_file"`
	CardImagesDir  string `json:"card_images_dir" yaml:"card_images_dir" toml:"card_images_dir"`
	TempDir        string `json:"temp_dir" yaml:"temp_dir" toml:"temp_dir"`
	CatalogFile    string `json:"catalog_file" yaml:"catalog_file" toml:"catalog_file"`
	DefaultModel   string `json:"default_model" yaml:"default_model" toml:"default_model"`
	TargetLanguage string `json:"target_language" yaml:"target_language" toml:"target_language"`
	HubBaseURL     string `json:"hub_base_url" yaml:"hub_base_url" toml:"hub_base_url"`
	ClientID       string `json:"client_id" yaml:"client_id" toml:"client_id"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
