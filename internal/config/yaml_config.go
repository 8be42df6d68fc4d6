package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLConfig represents the structure of the optional config.yaml file.
// Lists that are awkward to express as env vars live here.
type YAMLConfig struct {
	Columns ColumnsConfig `yaml:"columns"`
	Uploads UploadsConfig `yaml:"uploads"`
}

// ColumnsConfig extends the header synonyms used to locate spreadsheet columns.
type ColumnsConfig struct {
	Identifier []string `yaml:"identifier"` // e.g. "documento", "cnpj do cliente"
	Tag        []string `yaml:"tag"`        // e.g. "nº processo"
}

// UploadsConfig restricts accepted uploads.
type UploadsConfig struct {
	Extensions []string `yaml:"extensions"` // subset of .csv and .xlsx
}

// LoadYAMLConfig loads the YAML configuration file at path.
// Returns nil without error if the config file doesn't exist.
func LoadYAMLConfig(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Config file is optional
			return nil, nil
		}
		return nil, err
	}

	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	for i, ext := range cfg.Uploads.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Uploads.Extensions[i] = ext
	}

	return &cfg, nil
}

// IdentifierHeaders returns the extra identifier header synonyms.
func (c *YAMLConfig) IdentifierHeaders() []string {
	if c == nil {
		return nil
	}
	return c.Columns.Identifier
}

// TagHeaders returns the extra tag header synonyms.
func (c *YAMLConfig) TagHeaders() []string {
	if c == nil {
		return nil
	}
	return c.Columns.Tag
}

// AllowedExtensions returns the configured upload extensions, or defaults
// when none are configured.
func (c *YAMLConfig) AllowedExtensions(defaults []string) []string {
	if c == nil || len(c.Uploads.Extensions) == 0 {
		return defaults
	}
	return c.Uploads.Extensions
}
