package injected

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgellow/appbridge/internal/log"
)

// maxPageSize bounds how much of a served page is inspected.
const maxPageSize = 5 << 20

var identRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// ValidGlobal reports whether name can be used as the injected global.
func ValidGlobal(name string) bool {
	return identRegex.MatchString(name)
}

// PageSource fetches the served page and extracts the injected record from it.
type PageSource struct {
	Client *http.Client
	URL    string
	// Global is the assigned variable name; DefaultGlobal when empty.
	Global string
}

func (s PageSource) Lookup(ctx context.Context) (*Config, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating page request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("page %s returned status %d", s.URL, resp.StatusCode)
	}

	log.LogTraceWithFields("injected", "Inspecting served page", map[string]any{
		"url":         s.URL,
		"contentType": resp.Header.Get("Content-Type"),
	})
	return FromHTML(io.LimitReader(resp.Body, maxPageSize), s.Global)
}

// FromHTML scans inline scripts for the injected record. Two forms are
// recognized:
//
//	<script>window.__APP_CONFIG__ = {...};</script>
//	<script id="__APP_CONFIG__" type="application/json">{...}</script>
//
// A page without either form yields (nil, nil).
func FromHTML(r io.Reader, global string) (*Config, error) {
	if global == "" {
		global = DefaultGlobal
	}
	if !identRegex.MatchString(global) {
		return nil, fmt.Errorf("invalid global name %q", global)
	}
	assign := assignmentRegex(global)

	z := html.NewTokenizer(r)
	inScript := false
	jsonScript := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return nil, fmt.Errorf("parsing page: %w", err)
			}
			return nil, nil
		case html.StartTagToken:
			tok := z.Token()
			if tok.Data != "script" {
				continue
			}
			inScript = true
			jsonScript = isJSONScriptFor(tok, global)
		case html.EndTagToken:
			inScript = false
			jsonScript = false
		case html.TextToken:
			if !inScript {
				continue
			}
			text := z.Text()
			if jsonScript {
				return decodeRecord(text)
			}
			if rest, ok := assignedValue(assign, text); ok {
				return decodeRecord(rest)
			}
		}
	}
}

func assignmentRegex(global string) *regexp.Regexp {
	name := regexp.QuoteMeta(global)
	return regexp.MustCompile(`(?:window|globalThis|self)\s*(?:\.\s*` + name + `|\[\s*["']` + name + `["']\s*\])\s*=`)
}

// assignedValue returns the text following the first assignment in script,
// skipping comparisons such as `window.X === undefined`.
func assignedValue(assign *regexp.Regexp, script []byte) ([]byte, bool) {
	for _, loc := range assign.FindAllIndex(script, -1) {
		rest := script[loc[1]:]
		if len(rest) > 0 && rest[0] == '=' {
			continue
		}
		return bytes.TrimLeft(rest, " \t\r\n"), true
	}
	return nil, false
}

func isJSONScriptFor(tok html.Token, global string) bool {
	var id, typ string
	for _, a := range tok.Attr {
		switch a.Key {
		case "id":
			id = a.Val
		case "type":
			typ = strings.ToLower(strings.TrimSpace(a.Val))
		}
	}
	return id == global && typ == "application/json"
}

// decodeRecord reads the first JSON value from data; anything after it (a
// trailing semicolon, further statements) is ignored.
func decodeRecord(data []byte) (*Config, error) {
	var cfg *Config
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding injected config: %w", err)
	}
	if cfg.isZero() {
		return nil, nil
	}
	return cfg, nil
}

// Script renders the inline script an injector embeds into the page. The JSON
// encoder escapes <, > and &, so the payload cannot terminate the element.
func Script(cfg *Config, global string) (string, error) {
	if global == "" {
		global = DefaultGlobal
	}
	if !identRegex.MatchString(global) {
		return "", fmt.Errorf("invalid global name %q", global)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding injected config: %w", err)
	}
	return fmt.Sprintf("<script>window.%s = %s;</script>", global, payload), nil
}
