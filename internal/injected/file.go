package injected

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix prefixes the variables read by EnvSource.
const DefaultEnvPrefix = "APPBRIDGE_INJECTED_"

// FileSource reads the record from a JSON or YAML file. A missing or empty
// file means the record is absent.
type FileSource struct {
	Path string
}

func (s FileSource) Lookup(context.Context) (*Config, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading injected config file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing injected config file %s: %w", s.Path, err)
	}
	if cfg.isZero() {
		return nil, nil
	}
	return &cfg, nil
}

// EnvSource reads the record from prefixed environment variables
// (<prefix>APP_ID, <prefix>GRAPHQL_URL, <prefix>APP_KEY, <prefix>PREVIEW_ORIGIN).
// If none is set the record is absent.
type EnvSource struct {
	Prefix string
}

func (s EnvSource) Lookup(context.Context) (*Config, error) {
	prefix := s.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return nil, fmt.Errorf("parsing injected config environment: %w", err)
	}
	if cfg.isZero() {
		return nil, nil
	}
	return &cfg, nil
}
