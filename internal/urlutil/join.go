package urlutil

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// JoinPath safely joins URL paths, handling trailing and leading slashes correctly
func JoinPath(base string, paths ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	allPaths := append([]string{u.Path}, paths...)
	u.Path = path.Join(allPaths...)

	// Preserve trailing slash if the last path component had one
	if len(paths) > 0 && strings.HasSuffix(paths[len(paths)-1], "/") {
		u.Path += "/"
	}

	return u.String(), nil
}

// WithQuery returns rawURL with key set to value, keeping any existing
// parameters. The value is encoded exactly once, so decoding the parameter
// yields value verbatim even when it carries its own query or fragment.
func WithQuery(rawURL, key, value string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseAbsolute parses rawURL and requires a scheme and host.
func ParseAbsolute(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q is not an absolute URL", rawURL)
	}
	return u, nil
}

// Origin returns scheme://host[:port] for rawURL, or "" if it is not absolute.
func Origin(rawURL string) string {
	u, err := ParseAbsolute(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
