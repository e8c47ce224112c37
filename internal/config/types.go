package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Version is the config format accepted by Load.
const Version = "v0.0.1-DEV_EDITION"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// InjectedSourceKind selects where the injected record is looked up.
type InjectedSourceKind string

const (
	// InjectedSourcePage reads the record from the served page HTML.
	InjectedSourcePage InjectedSourceKind = "page"
	// InjectedSourceFile reads a JSON or YAML file.
	InjectedSourceFile InjectedSourceKind = "file"
	// InjectedSourceEnv reads prefixed environment variables.
	InjectedSourceEnv InjectedSourceKind = "env"
	// InjectedSourceNone leaves backend access unconfigured.
	InjectedSourceNone InjectedSourceKind = "none"
	// InjectedSourceAuto tries the page, then the file when a path is set,
	// then the environment, and takes the first record found.
	InjectedSourceAuto InjectedSourceKind = "auto"
)

func (k InjectedSourceKind) valid() bool {
	switch k {
	case InjectedSourcePage, InjectedSourceFile, InjectedSourceEnv, InjectedSourceNone, InjectedSourceAuto:
		return true
	}
	return false
}

// PageConfig describes the page the host acts for. Origin, when set, is sent
// to the auth service instead of the origin of URL, for pages rendered inside
// another site such as a preview sandbox.
type PageConfig struct {
	URL    string `json:"url"`
	Origin string `json:"origin,omitempty"`
}

// SessionCookieConfig seeds the session cookie a browser would already hold.
type SessionCookieConfig struct {
	Name  string `json:"name"`
	Value Secret `json:"value"`
}

// AuthConfig points at the central auth service.
type AuthConfig struct {
	BaseURL       string               `json:"baseURL"`
	SessionCookie *SessionCookieConfig `json:"sessionCookie,omitempty"`
}

// InjectedConfig configures injected record resolution.
type InjectedConfig struct {
	Source    InjectedSourceKind `json:"source"`
	URL       string             `json:"url,omitempty"`
	Path      string             `json:"path,omitempty"`
	Global    string             `json:"global,omitempty"`
	EnvPrefix string             `json:"envPrefix,omitempty"`
}

// QueryConfig configures the query endpoint client.
type QueryConfig struct {
	TenantHeader string        `json:"tenantHeader"`
	Timeout      time.Duration `json:"timeout"`
}

// HTTPConfig configures the shared HTTP client.
type HTTPConfig struct {
	UserAgent string        `json:"userAgent"`
	Timeout   time.Duration `json:"timeout"`
	Tracing   bool          `json:"tracing"`
}

// WatchConfig configures the long-running watch mode.
type WatchConfig struct {
	Addr     string        `json:"addr"`
	Interval time.Duration `json:"interval"`
}

// Config represents the config structure with resolved values
type Config struct {
	Version  string         `json:"version"`
	Page     PageConfig     `json:"page"`
	Auth     AuthConfig     `json:"auth"`
	Injected InjectedConfig `json:"injected"`
	Query    QueryConfig    `json:"query"`
	HTTP     HTTPConfig     `json:"http"`
	Watch    WatchConfig    `json:"watch"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR"} reference, resolving the reference immediately.
//
// The explicit JSON syntax is used instead of $VAR substitution so that shells
// and CI pipelines never expand values before the config is parsed.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

func parseDuration(s, field string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}
