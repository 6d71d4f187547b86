package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/gabriel-vasile/mimetype"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// LoadGlobals reads a seed file of sandbox globals. The format follows the
// extension: .yaml/.yml, .toml or .json. Files without an extension are
// sniffed. The top level must be a mapping.
func LoadGlobals(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read globals file: %w", err)
	}
	return ParseGlobals(filepath.Ext(path), data)
}

// ParseGlobals decodes globals from data in the format named by ext. An
// empty ext detects the format from content: JSON when it parses as JSON,
// YAML otherwise.
func ParseGlobals(ext string, data []byte) (map[string]any, error) {
	globals := make(map[string]any)

	format := strings.ToLower(strings.TrimPrefix(ext, "."))
	if format == "" {
		format = sniffFormat(data)
	}

	var err error
	switch format {
	case "yaml", "yml":
		err = yaml.Unmarshal(data, &globals)
	case "toml":
		err = toml.Unmarshal(data, &globals)
	case "json":
		err = sonic.Unmarshal(data, &globals)
	default:
		return nil, fmt.Errorf("unsupported globals format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse globals: %w", err)
	}
	return globals, nil
}

func sniffFormat(data []byte) string {
	if mimetype.Detect(data).Is("application/json") {
		return "json"
	}
	return "yaml"
}
