// Package injected resolves the configuration record an external injector
// places into the served page. The record is resolved once at startup and
// passed explicitly to the components that need it; a missing record is a
// normal state meaning backend access is not configured.
package injected

import (
	"context"
	"fmt"

	"github.com/dgellow/appbridge/internal/log"
)

// DefaultGlobal is the global variable name the injector assigns.
const DefaultGlobal = "__APP_CONFIG__"

// Config is the injected record. Every field is optional.
type Config struct {
	AppID         string `json:"appId,omitempty" yaml:"appId,omitempty" env:"APP_ID"`
	GraphQLURL    string `json:"graphqlUrl,omitempty" yaml:"graphqlUrl,omitempty" env:"GRAPHQL_URL"`
	AppKey        string `json:"appKey,omitempty" yaml:"appKey,omitempty" env:"APP_KEY"`
	PreviewOrigin string `json:"previewOrigin,omitempty" yaml:"previewOrigin,omitempty" env:"PREVIEW_ORIGIN"`
}

// Ready reports whether c carries both the query endpoint and the tenant key.
// It is safe to call on a nil *Config.
func (c *Config) Ready() bool {
	return c != nil && c.GraphQLURL != "" && c.AppKey != ""
}

func (c *Config) isZero() bool {
	return c == nil || *c == Config{}
}

// LogFields returns the record with the tenant key redacted.
func (c *Config) LogFields() map[string]any {
	if c == nil {
		return map[string]any{"present": false}
	}
	key := ""
	if c.AppKey != "" {
		key = "***"
	}
	return map[string]any{
		"present":       true,
		"appId":         c.AppID,
		"graphqlUrl":    c.GraphQLURL,
		"appKey":        key,
		"previewOrigin": c.PreviewOrigin,
	}
}

// Source looks up an injected record. A nil *Config with a nil error means
// the record is absent.
type Source interface {
	Lookup(ctx context.Context) (*Config, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (*Config, error)

func (f SourceFunc) Lookup(ctx context.Context) (*Config, error) { return f(ctx) }

// None is a Source that never finds a record.
var None Source = SourceFunc(func(context.Context) (*Config, error) { return nil, nil })

// Static always yields cfg, which may be nil.
func Static(cfg *Config) Source {
	return SourceFunc(func(context.Context) (*Config, error) { return cfg, nil })
}

type chain []Source

// Chain consults sources in order and returns the first present record.
// An error from any source stops the chain.
func Chain(sources ...Source) Source {
	return chain(sources)
}

func (c chain) Lookup(ctx context.Context) (*Config, error) {
	for _, src := range c {
		cfg, err := src.Lookup(ctx)
		if err != nil {
			return nil, err
		}
		if cfg != nil {
			return cfg, nil
		}
	}
	return nil, nil
}

// Resolve looks the record up once. Absence is logged and returned as a nil
// config without error.
func Resolve(ctx context.Context, src Source) (*Config, error) {
	cfg, err := src.Lookup(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving injected config: %w", err)
	}
	if cfg.isZero() {
		log.LogInfoWithFields("injected", "No injected configuration found, backend access disabled", nil)
		return nil, nil
	}
	if !cfg.Ready() {
		log.LogWarnWithFields("injected", "Injected configuration is incomplete, backend access disabled", cfg.LogFields())
	} else {
		log.LogInfoWithFields("injected", "Injected configuration resolved", cfg.LogFields())
	}
	return cfg, nil
}
