package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgellow/appbridge/internal/cookie"
	"github.com/dgellow/appbridge/internal/envutil"
	"github.com/dgellow/appbridge/internal/graphql"
	"github.com/dgellow/appbridge/internal/injected"
	"github.com/dgellow/appbridge/internal/log"
	"github.com/dgellow/appbridge/internal/urlutil"
)

// Defaults applied by Load.
const (
	DefaultUserAgent     = "appbridge"
	DefaultWatchAddr     = ":9090"
	DefaultWatchInterval = 30 * time.Second
)

// LoadDotEnv loads a .env file from the working directory if one exists.
// Variables already present in the environment win.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, Version) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	warnRawConfig(rawConfig)

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// warnRawConfig flags risky values before environment resolution hides them.
func warnRawConfig(rawConfig map[string]any) {
	auth, ok := rawConfig["auth"].(map[string]any)
	if !ok {
		return
	}
	sc, ok := auth["sessionCookie"].(map[string]any)
	if !ok {
		return
	}
	if _, isString := sc["value"].(string); isString {
		log.LogWarnWithFields("config", "Session cookie is stored in plain text, use an environment variable reference", map[string]any{
			"path": "auth.sessionCookie.value",
		})
	}
}

// ApplyDefaults fills unset optional fields.
func ApplyDefaults(config *Config) {
	if config.Injected.Source == "" {
		config.Injected.Source = InjectedSourcePage
	}
	if config.Injected.Global == "" {
		config.Injected.Global = injected.DefaultGlobal
	}
	if config.Injected.EnvPrefix == "" {
		config.Injected.EnvPrefix = injected.DefaultEnvPrefix
	}
	if config.Auth.SessionCookie != nil && config.Auth.SessionCookie.Name == "" {
		config.Auth.SessionCookie.Name = cookie.SessionCookie
	}
	if config.Query.TenantHeader == "" {
		config.Query.TenantHeader = graphql.DefaultTenantHeader
	}
	if config.HTTP.UserAgent == "" {
		config.HTTP.UserAgent = DefaultUserAgent
	}
	if config.Watch.Addr == "" {
		config.Watch.Addr = DefaultWatchAddr
	}
	if config.Watch.Interval == 0 {
		config.Watch.Interval = DefaultWatchInterval
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Page.URL == "" {
		return fmt.Errorf("page.url is required")
	}
	if _, err := urlutil.ParseAbsolute(config.Page.URL); err != nil {
		return fmt.Errorf("page.url: %w", err)
	}
	if config.Page.Origin != "" {
		if _, err := urlutil.ParseAbsolute(config.Page.Origin); err != nil {
			return fmt.Errorf("page.origin: %w", err)
		}
	}

	if config.Auth.BaseURL == "" {
		return fmt.Errorf("auth.baseURL is required")
	}
	base, err := urlutil.ParseAbsolute(config.Auth.BaseURL)
	if err != nil {
		return fmt.Errorf("auth.baseURL: %w", err)
	}
	if err := requireHTTPS(base, "auth.baseURL"); err != nil {
		return err
	}

	if sc := config.Auth.SessionCookie; sc != nil && sc.Value == "" {
		return fmt.Errorf("auth.sessionCookie.value is required when sessionCookie is set")
	}

	if err := validateInjected(&config.Injected); err != nil {
		return fmt.Errorf("injected: %w", err)
	}

	if config.Query.Timeout < 0 {
		return fmt.Errorf("query.timeout cannot be negative")
	}
	if config.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout cannot be negative")
	}
	if config.Watch.Interval < 0 {
		return fmt.Errorf("watch.interval cannot be negative")
	}
	if config.Watch.Interval > 0 && config.Watch.Interval < time.Second {
		log.LogWarn("Watch interval below one second will put load on the auth service")
	}

	return nil
}

func validateInjected(cfg *InjectedConfig) error {
	if !cfg.Source.valid() {
		return fmt.Errorf("invalid source %q - must be page, file, env, auto or none", cfg.Source)
	}
	if cfg.Source == InjectedSourceFile && cfg.Path == "" {
		return fmt.Errorf("path is required for file source")
	}
	if cfg.URL != "" {
		if _, err := urlutil.ParseAbsolute(cfg.URL); err != nil {
			return fmt.Errorf("url: %w", err)
		}
	}
	if cfg.Global != "" && !injected.ValidGlobal(cfg.Global) {
		return fmt.Errorf("global %q is not a valid identifier", cfg.Global)
	}
	return nil
}

// requireHTTPS rejects plain http outside development mode; credentials
// travel with every request to the auth service.
func requireHTTPS(u *url.URL, field string) error {
	if u.Scheme == "https" || envutil.IsDev() {
		return nil
	}
	return fmt.Errorf("%s must use https (set %s=dev to allow http)", field, envutil.EnvVar)
}
