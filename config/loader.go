package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MapLoader serves a fixed configuration tree.
type MapLoader map[string]any

// LoadRaw returns a shallow copy of the map.
func (l MapLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(l))
	for key, value := range l {
		out[key] = value
	}
	return out, nil
}

// FileLoader reads a YAML document from Path.
type FileLoader struct {
	Path string

	// ExpandEnv substitutes ${VAR} references before parsing.
	ExpandEnv bool
}

// LoadRaw reads and parses the file. An empty document yields an empty map.
func (l FileLoader) LoadRaw(ctx context.Context) (map[string]any, error) {
	if strings.TrimSpace(l.Path) == "" {
		return nil, fmt.Errorf("config: file path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", l.Path, err)
	}
	if l.ExpandEnv {
		data = []byte(os.ExpandEnv(string(data)))
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", l.Path, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}
