package config

import (
	"encoding/json"

	"github.com/dgellow/appbridge/internal/cookie"
	"github.com/dgellow/appbridge/internal/graphql"
	"github.com/dgellow/appbridge/internal/injected"
)

// SessionEnvVar is the variable the generated config reads the session
// cookie from.
const SessionEnvVar = "APPBRIDGE_SESSION"

// Default returns a starter config file.
func Default() ([]byte, error) {
	template := map[string]any{
		"version": Version,
		"page": map[string]any{
			"url": "https://app.example.com/",
		},
		"auth": map[string]any{
			"baseURL": "https://auth.example.com",
			"sessionCookie": map[string]any{
				"name":  cookie.SessionCookie,
				"value": map[string]string{"$env": SessionEnvVar},
			},
		},
		"injected": map[string]any{
			"source": string(InjectedSourcePage),
			"global": injected.DefaultGlobal,
		},
		"query": map[string]any{
			"tenantHeader": graphql.DefaultTenantHeader,
			"timeout":      "30s",
		},
		"http": map[string]any{
			"userAgent": DefaultUserAgent,
			"timeout":   "30s",
			"tracing":   false,
		},
		"watch": map[string]any{
			"addr":     DefaultWatchAddr,
			"interval": DefaultWatchInterval.String(),
		},
	}
	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
