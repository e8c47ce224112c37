package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRedaction(t *testing.T) {
	cookie := Secret("s%3Aabcdef.signature")

	assert.Equal(t, "***", cookie.String())
	assert.Equal(t, "session=***", fmt.Sprintf("session=%s", cookie))
	assert.NotContains(t, fmt.Sprintf("%v", cookie), "abcdef")
	assert.Equal(t, "", Secret("").String(), "an unset secret prints as empty")
}

func TestSessionCookieNeverLeaks(t *testing.T) {
	sc := SessionCookieConfig{Name: "session", Value: Secret("s%3Aabcdef.signature")}

	assert.NotContains(t, fmt.Sprintf("%+v", sc), "abcdef.signature")

	cfg := Config{
		Version: Version,
		Auth:    AuthConfig{BaseURL: "https://auth.example.com", SessionCookie: &sc},
	}
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "abcdef.signature")
	assert.Contains(t, string(data), `"***"`)
	assert.Contains(t, string(data), "https://auth.example.com")

	data, err = json.Marshal(SessionCookieConfig{Name: "session"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `""`, "an unset value marshals as an empty string")
}
