package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

const envPrefix = "DOCBED_"

// Load builds the effective configuration. The file path is optional; a
// missing explicit path is an error, an empty one is skipped.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading config defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(yamlFile{path: path}, nil); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return transformEnvKey(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("loading config environment: %w", err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// transformEnvKey converts SERVER_PORT to server.port and
// DATABASE_CONN_STRING to database.conn_string: the first segment is the
// section, the rest stays a snake_case field name.
func transformEnvKey(s string) string {
	s = strings.ToLower(s)
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' })
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + strings.Join(parts[1:], "_")
}

// yamlFile feeds a YAML document to koanf as a nested map.
type yamlFile struct {
	path string
}

func (y yamlFile) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("yaml source does not support raw bytes")
}

func (y yamlFile) Read() (map[string]any, error) {
	data, err := os.ReadFile(y.path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	return out, nil
}
