// Package transport builds the HTTP client shared by session discovery and
// backend queries. Sharing one cookie jar is what lets both halves act with
// the same browser-equivalent credentials.
package transport

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/publicsuffix"
)

// RequestIDHeader carries a per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// Options configures the shared client.
type Options struct {
	// UserAgent is sent on every request when non-empty.
	UserAgent string
	// Timeout bounds each request. Zero leaves requests unbounded.
	Timeout time.Duration
	// Tracing wraps the transport with OpenTelemetry instrumentation.
	Tracing bool
	// Base is the underlying round tripper; http.DefaultTransport if nil.
	Base http.RoundTripper
}

// NewJar returns a cookie jar that applies public suffix rules, so cookies
// scoped to a parent domain reach sibling hosts the way they would in a
// browser.
func NewJar() (http.CookieJar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// New returns an *http.Client using jar for credentials.
func New(jar http.CookieJar, opts Options) *http.Client {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}

	var rt http.RoundTripper = &headerTransport{base: base, userAgent: opts.UserAgent}
	if opts.Tracing {
		rt = otelhttp.NewTransport(rt)
	}

	return &http.Client{
		Jar:       jar,
		Transport: rt,
		Timeout:   opts.Timeout,
	}
}

type headerTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	if r.Header.Get(RequestIDHeader) == "" {
		r.Header.Set(RequestIDHeader, uuid.NewString())
	}
	if t.userAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(r)
}
