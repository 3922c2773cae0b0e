package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// Supported file formats.
const (
	FormatTOML = "toml"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "macrotoggle.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// ErrNoConfig is returned when no path is given and no config file exists
// in the standard locations.
var ErrNoConfig = errors.New("no configuration file found")

// Load reads, validates and returns the configuration at path. An empty path
// searches the standard locations. Environment overrides are applied before
// validation.
func Load(path string) (*Config, error) {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return nil, fmt.Errorf("%w (create %s)", ErrNoConfig, ConfigPath())
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	format, err := detectFormat(path, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	cfg, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrInvalidConfig, err)
	}

	return cfg, nil
}

// Parse decodes a document in the given format, checks it against the
// embedded schema and returns it merged over the defaults. It does not run
// semantic validation.
func Parse(data []byte, format string) (*Config, error) {
	var raw map[string]any
	if err := decode(format, data, &raw); err != nil {
		return nil, err
	}
	if err := ValidateSchema(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cfg := DefaultConfig()
	if err := decode(format, data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateSchema checks a decoded document against the macro schema. The
// document may come from any of the supported decoders.
func ValidateSchema(doc any) error {
	schema, err := macroSchema()
	if err != nil {
		return err
	}

	// The validator only understands encoding/json value types.
	normalized, err := normalize(doc)
	if err != nil {
		return err
	}
	return schema.Validate(normalized)
}

func macroSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

func normalize(doc any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	return out, nil
}

// detectFormat picks the format from the file extension, or by trying each
// decoder in turn when the extension is unknown.
func detectFormat(path string, data []byte) (string, error) {
	switch filepath.Ext(path) {
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}

	// TOML first, then JSON; YAML last since it accepts JSON too.
	for _, format := range []string{FormatTOML, FormatJSON, FormatYAML} {
		var probe map[string]any
		if err := decode(format, data, &probe); err == nil {
			return format, nil
		}
	}
	return "", fmt.Errorf("unable to parse config file (tried TOML, JSON, YAML)")
}

func decode(format string, data []byte, v any) error {
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), v); err != nil {
			return fmt.Errorf("decode TOML: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}
	return nil
}
