package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/dgellow/appbridge/internal/injected"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?[A-Z_][A-Z0-9_]*\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": \"%s\"", Version)
	} else if !strings.HasPrefix(version, Version) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, Version, Version)
	}

	validatePageStructure(rawConfig, result)
	validateAuthStructure(rawConfig, result)
	validateInjectedStructure(rawConfig, result)
	validateDurations(rawConfig, result)

	return result, nil
}

func validatePageStructure(rawConfig map[string]any, result *ValidationResult) {
	page, ok := rawConfig["page"].(map[string]any)
	if !ok {
		result.addError("page", "page field is required and must be an object")
		return
	}
	if _, ok := page["url"]; !ok {
		result.addError("page.url", "url is required. Example: \"https://app.example.com/dashboard\"")
	}
	if origin, ok := page["origin"].(string); ok {
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			result.addWarning("page.origin", "origin should be scheme and host only, like \"https://preview.example.com\"")
		}
	}
}

func validateAuthStructure(rawConfig map[string]any, result *ValidationResult) {
	auth, ok := rawConfig["auth"].(map[string]any)
	if !ok {
		result.addError("auth", "auth field is required and must be an object")
		return
	}

	switch v := auth["baseURL"].(type) {
	case nil:
		result.addError("auth.baseURL", "baseURL is required. Example: \"https://auth.example.com\"")
	case string:
		if strings.HasPrefix(v, "http://") {
			result.addWarning("auth.baseURL", "baseURL uses plain http. This is only accepted in development mode")
		}
	}

	sc, ok := auth["sessionCookie"]
	if !ok {
		return
	}
	cookie, ok := sc.(map[string]any)
	if !ok {
		result.addError("auth.sessionCookie", "sessionCookie must be an object")
		return
	}
	switch v := cookie["value"].(type) {
	case nil:
		result.addError("auth.sessionCookie.value", "value is required. Hint: Use {\"$env\": \"APPBRIDGE_SESSION\"}")
	case string:
		result.addWarning("auth.sessionCookie.value", "session cookie is stored in plain text. Hint: Use {\"$env\": \"APPBRIDGE_SESSION\"} so credentials stay out of config files")
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			result.addError("auth.sessionCookie.value", "value must use {\"$env\": \"YOUR_ENV_VAR\"} format, not %v", v)
		}
	default:
		result.addError("auth.sessionCookie.value", "value must be a string or environment variable reference, not %T", v)
	}
}

func validateInjectedStructure(rawConfig map[string]any, result *ValidationResult) {
	raw, ok := rawConfig["injected"]
	if !ok {
		return
	}
	inj, ok := raw.(map[string]any)
	if !ok {
		result.addError("injected", "injected must be an object")
		return
	}

	source := InjectedSourcePage
	if s, ok := inj["source"].(string); ok {
		source = InjectedSourceKind(s)
	}
	if !source.valid() {
		result.addError("injected.source", "invalid source '%s' - must be page, file, env, auto or none", source)
	}
	if source == InjectedSourceFile {
		if _, ok := inj["path"]; !ok {
			result.addError("injected.path", "path is required when source is file")
		}
	}
	if global, ok := inj["global"].(string); ok && global != "" && !injected.ValidGlobal(global) {
		result.addError("injected.global", "'%s' is not a valid identifier", global)
	}
}

func validateDurations(rawConfig map[string]any, result *ValidationResult) {
	fields := []struct{ section, key string }{
		{"query", "timeout"},
		{"http", "timeout"},
		{"watch", "interval"},
	}
	for _, f := range fields {
		section, ok := rawConfig[f.section].(map[string]any)
		if !ok {
			continue
		}
		raw, ok := section[f.key]
		if !ok {
			continue
		}
		path := f.section + "." + f.key
		s, ok := raw.(string)
		if !ok {
			result.addError(path, "%s must be a duration string like \"30s\"", f.key)
			continue
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			result.addError(path, "invalid duration '%s': %v", s, err)
			continue
		}
		if d < 0 {
			result.addError(path, "%s cannot be negative", f.key)
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
