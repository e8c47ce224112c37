package cookie

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/dgellow/appbridge/internal/log"
)

// SessionCookie is the default name of the auth service's session cookie.
const SessionCookie = "session"

// Seed places a session cookie into jar for rawURL, standing in for the
// credential a browser would already hold.
func Seed(jar http.CookieJar, rawURL, name, value string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing cookie URL: %w", err)
	}
	if name == "" {
		name = SessionCookie
	}
	jar.SetCookies(u, []*http.Cookie{{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   u.Scheme == "https",
	}})

	log.LogTraceWithFields("cookie", "Session cookie seeded", map[string]any{
		"host": u.Host,
		"name": name,
	})
	return nil
}

// Get returns the value of the named cookie the jar would send to rawURL.
func Get(jar http.CookieJar, rawURL, name string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	for _, c := range jar.Cookies(u) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// Clear removes a cookie by setting MaxAge to -1
func Clear(jar http.CookieJar, rawURL, name string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing cookie URL: %w", err)
	}
	jar.SetCookies(u, []*http.Cookie{{
		Name:   name,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	}})
	log.LogTraceWithFields("cookie", "Session cookie cleared", map[string]any{
		"host": u.Host,
		"name": name,
	})
	return nil
}
