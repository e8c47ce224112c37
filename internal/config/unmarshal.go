package config

import (
	"encoding/json"
	"fmt"
)

// UnmarshalJSON implements custom unmarshaling for PageConfig
func (p *PageConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		URL    json.RawMessage `json:"url"`
		Origin json.RawMessage `json:"origin"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.URL != nil {
		v, err := ParseConfigValue(raw.URL)
		if err != nil {
			return fmt.Errorf("parsing url: %w", err)
		}
		p.URL = v
	}
	if raw.Origin != nil {
		v, err := ParseConfigValue(raw.Origin)
		if err != nil {
			return fmt.Errorf("parsing origin: %w", err)
		}
		p.Origin = v
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for AuthConfig
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		BaseURL       json.RawMessage `json:"baseURL"`
		SessionCookie *struct {
			Name  string          `json:"name"`
			Value json.RawMessage `json:"value"`
		} `json:"sessionCookie"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.BaseURL != nil {
		v, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing baseURL: %w", err)
		}
		a.BaseURL = v
	}

	if raw.SessionCookie != nil {
		c := &SessionCookieConfig{Name: raw.SessionCookie.Name}
		if raw.SessionCookie.Value != nil {
			v, err := ParseConfigValue(raw.SessionCookie.Value)
			if err != nil {
				return fmt.Errorf("parsing sessionCookie.value: %w", err)
			}
			c.Value = Secret(v)
		}
		a.SessionCookie = c
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for InjectedConfig
func (i *InjectedConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Source    InjectedSourceKind `json:"source"`
		URL       json.RawMessage    `json:"url"`
		Path      json.RawMessage    `json:"path"`
		Global    string             `json:"global"`
		EnvPrefix string             `json:"envPrefix"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	i.Source = raw.Source
	i.Global = raw.Global
	i.EnvPrefix = raw.EnvPrefix

	if raw.URL != nil {
		v, err := ParseConfigValue(raw.URL)
		if err != nil {
			return fmt.Errorf("parsing url: %w", err)
		}
		i.URL = v
	}
	if raw.Path != nil {
		v, err := ParseConfigValue(raw.Path)
		if err != nil {
			return fmt.Errorf("parsing path: %w", err)
		}
		i.Path = v
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for QueryConfig
func (q *QueryConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		TenantHeader string `json:"tenantHeader"`
		Timeout      string `json:"timeout"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	timeout, err := parseDuration(raw.Timeout, "timeout")
	if err != nil {
		return err
	}
	q.TenantHeader = raw.TenantHeader
	q.Timeout = timeout
	return nil
}

// UnmarshalJSON implements custom unmarshaling for HTTPConfig
func (h *HTTPConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		UserAgent string `json:"userAgent"`
		Timeout   string `json:"timeout"`
		Tracing   bool   `json:"tracing"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	timeout, err := parseDuration(raw.Timeout, "timeout")
	if err != nil {
		return err
	}
	h.UserAgent = raw.UserAgent
	h.Timeout = timeout
	h.Tracing = raw.Tracing
	return nil
}

// UnmarshalJSON implements custom unmarshaling for WatchConfig
func (w *WatchConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Addr     json.RawMessage `json:"addr"`
		Interval string          `json:"interval"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Addr != nil {
		v, err := ParseConfigValue(raw.Addr)
		if err != nil {
			return fmt.Errorf("parsing addr: %w", err)
		}
		w.Addr = v
	}
	interval, err := parseDuration(raw.Interval, "interval")
	if err != nil {
		return err
	}
	w.Interval = interval
	return nil
}
