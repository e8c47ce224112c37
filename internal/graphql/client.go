// Package graphql issues requests to the multi-tenant query endpoint named
// by the injected configuration.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/appbridge/internal/injected"
	"github.com/dgellow/appbridge/internal/ioutil"
	"github.com/dgellow/appbridge/internal/log"
	"github.com/dgellow/appbridge/internal/metrics"
)

// DefaultTenantHeader carries the application key.
const DefaultTenantHeader = "X-App-Key"

const maxResponseSize = 10 << 20

// Recorder observes completed requests.
type Recorder interface {
	QueryCompleted(outcome string, elapsed time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used for requests. Its cookie jar authorizes
// the user. Defaults to http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTenantHeader changes the header carrying the application key.
func WithTenantHeader(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.tenantHeader = name
		}
	}
}

// WithRecorder reports request outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// Client sends GraphQL requests. It never retries.
type Client struct {
	cfg          *injected.Config
	http         *http.Client
	tenantHeader string
	recorder     Recorder
}

// New creates a client for the injected record cfg, which may be nil.
func New(cfg *injected.Config, opts ...Option) *Client {
	c := &Client{
		cfg:          cfg,
		http:         http.DefaultClient,
		tenantHeader: DefaultTenantHeader,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether requests can be attempted.
func (c *Client) Configured() bool {
	return c.cfg.Ready()
}

type requestBody struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type responseError struct {
	Message string `json:"message"`
}

type responseBody struct {
	Data   json.RawMessage `json:"data"`
	Errors []responseError `json:"errors"`
}

// Request posts query with variables and returns the raw data member of the
// response. Nil variables are sent as an empty object.
func (c *Client) Request(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	start := time.Now()
	if !c.cfg.Ready() {
		c.record(metrics.OutcomeNotConfigured, start)
		return nil, ErrNotConfigured
	}

	data, err := c.do(ctx, query, variables)
	switch {
	case err == nil:
		c.record(metrics.OutcomeOK, start)
	case isEndpointError(err):
		c.record(metrics.OutcomeEndpointError, start)
	default:
		c.record(metrics.OutcomeTransportError, start)
	}
	return data, err
}

func (c *Client) do(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	payload, err := json.Marshal(requestBody{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.GraphQLURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(c.tenantHeader, c.cfg.AppKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadLimited(resp.Body, maxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	log.LogTraceWithFields("graphql", "Query response received", map[string]any{
		"status": resp.StatusCode,
		"bytes":  len(body),
	})

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	// Error bodies are parsed best-effort; they may be empty or not JSON.
	var decoded responseBody
	decodeErr := json.Unmarshal(body, &decoded)
	if !ok {
		return nil, &EndpointError{StatusCode: resp.StatusCode, Message: firstMessage(decoded.Errors, resp.StatusCode)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding response: %w", decodeErr)
	}
	if len(decoded.Errors) > 0 {
		return nil, &EndpointError{StatusCode: resp.StatusCode, Message: firstMessage(decoded.Errors, resp.StatusCode)}
	}
	if len(decoded.Data) == 0 || string(decoded.Data) == "null" {
		return nil, &EndpointError{StatusCode: resp.StatusCode, Message: "response contained no data"}
	}
	return decoded.Data, nil
}

func firstMessage(errs []responseError, status int) string {
	for _, e := range errs {
		if e.Message != "" {
			return e.Message
		}
	}
	return statusMessage(status)
}

func (c *Client) record(outcome string, start time.Time) {
	if c.recorder != nil {
		c.recorder.QueryCompleted(outcome, time.Since(start))
	}
}

// Do sends a request and decodes its data into T. The shape of T is trusted,
// not validated.
func Do[T any](ctx context.Context, c *Client, query string, variables map[string]any) (T, error) {
	var out T
	data, err := c.Request(ctx, query, variables)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decoding data: %w", err)
	}
	return out, nil
}
