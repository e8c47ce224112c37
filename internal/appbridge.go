package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/dgellow/appbridge/internal/config"
	"github.com/dgellow/appbridge/internal/cookie"
	"github.com/dgellow/appbridge/internal/graphql"
	"github.com/dgellow/appbridge/internal/injected"
	"github.com/dgellow/appbridge/internal/log"
	"github.com/dgellow/appbridge/internal/metrics"
	"github.com/dgellow/appbridge/internal/server"
	"github.com/dgellow/appbridge/internal/session"
	"github.com/dgellow/appbridge/internal/telemetry"
	"github.com/dgellow/appbridge/internal/transport"
	"github.com/dgellow/appbridge/internal/urlutil"
)

// ServiceName identifies the process in traces.
const ServiceName = "appbridge"

const shutdownTimeout = 30 * time.Second

// Option customizes how an App is built.
type Option func(*options)

type options struct {
	version   string
	transport http.RoundTripper
	registry  *prometheus.Registry
}

// WithVersion sets the version reported in traces.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithRoundTripper replaces the network transport underneath the shared client.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithRegistry registers metrics on reg instead of a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// App holds the session bridge and the query client, both sharing one
// cookie jar.
type App struct {
	config   config.Config
	location *session.MutableLocation
	bridge   *session.Bridge
	graphql  *graphql.Client
	injected *injected.Config
	registry *prometheus.Registry

	jar http.CookieJar
	// cookieURLs are the URLs the session cookie was seeded for.
	cookieURLs []string

	shutdownTracing telemetry.ShutdownFunc
}

// New builds every component from cfg and starts the initial session
// discovery. Failing to resolve the injected configuration is not fatal: the
// app runs with backend access disabled.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	log.LogInfoWithFields("appbridge", "Building application", map[string]any{
		"page":     cfg.Page.URL,
		"authBase": cfg.Auth.BaseURL,
		"injected": string(cfg.Injected.Source),
	})

	var (
		shutdownTracing telemetry.ShutdownFunc = func(context.Context) error { return nil }
		tracing         bool
	)
	if cfg.HTTP.Tracing {
		var err error
		shutdownTracing, tracing, err = telemetry.Setup(ctx, ServiceName, o.version)
		if err != nil {
			return nil, fmt.Errorf("failed to setup tracing: %w", err)
		}
	}

	reg := o.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	recorder, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	jar, err := transport.NewJar()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := transport.New(jar, transport.Options{
		UserAgent: cfg.HTTP.UserAgent,
		Timeout:   cfg.HTTP.Timeout,
		Tracing:   tracing,
		Base:      o.transport,
	})

	var cookieURLs []string
	if sc := cfg.Auth.SessionCookie; sc != nil {
		if err := cookie.Seed(jar, cfg.Auth.BaseURL, sc.Name, string(sc.Value)); err != nil {
			return nil, fmt.Errorf("failed to seed session cookie: %w", err)
		}
		cookieURLs = append(cookieURLs, cfg.Auth.BaseURL)
	}

	injectedCfg, err := injected.Resolve(ctx, injectedSource(cfg, client))
	if err != nil {
		log.LogWarnWithFields("appbridge", "Ignoring injected configuration, backend access disabled", map[string]any{
			"error": err.Error(),
		})
		injectedCfg = nil
	}

	// The query endpoint may live on another host than the auth service; the
	// browser would send the same session there.
	if sc := cfg.Auth.SessionCookie; sc != nil && injectedCfg.Ready() &&
		urlutil.Origin(injectedCfg.GraphQLURL) != urlutil.Origin(cfg.Auth.BaseURL) {
		if err := cookie.Seed(jar, injectedCfg.GraphQLURL, sc.Name, string(sc.Value)); err != nil {
			return nil, fmt.Errorf("failed to seed session cookie for query endpoint: %w", err)
		}
		cookieURLs = append(cookieURLs, injectedCfg.GraphQLURL)
	}

	queryClient := client
	if cfg.Query.Timeout > 0 {
		c := *client
		c.Timeout = cfg.Query.Timeout
		queryClient = &c
	}
	gql := graphql.New(injectedCfg,
		graphql.WithHTTPClient(queryClient),
		graphql.WithTenantHeader(cfg.Query.TenantHeader),
		graphql.WithRecorder(recorder),
	)

	location := session.NewMutableLocation(cfg.Page.URL)
	bridgeOpts := []session.Option{
		session.WithHTTPClient(client),
		session.WithRecorder(recorder),
	}
	if cfg.Page.Origin != "" {
		bridgeOpts = append(bridgeOpts, session.WithPageOrigin(urlutil.Origin(cfg.Page.Origin)))
	}
	bridge, err := session.New(ctx, cfg.Auth.BaseURL, location, bridgeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create session bridge: %w", err)
	}

	return &App{
		config:          cfg,
		jar:             jar,
		cookieURLs:      cookieURLs,
		location:        location,
		bridge:          bridge,
		graphql:         gql,
		injected:        injectedCfg,
		registry:        reg,
		shutdownTracing: shutdownTracing,
	}, nil
}

func injectedSource(cfg config.Config, client *http.Client) injected.Source {
	switch cfg.Injected.Source {
	case config.InjectedSourceFile:
		return injected.FileSource{Path: cfg.Injected.Path}
	case config.InjectedSourceEnv:
		return injected.EnvSource{Prefix: cfg.Injected.EnvPrefix}
	case config.InjectedSourceNone:
		return injected.None
	case config.InjectedSourceAuto:
		sources := []injected.Source{pageSource(cfg, client)}
		if cfg.Injected.Path != "" {
			sources = append(sources, injected.FileSource{Path: cfg.Injected.Path})
		}
		return injected.Chain(append(sources, injected.EnvSource{Prefix: cfg.Injected.EnvPrefix})...)
	default:
		return pageSource(cfg, client)
	}
}

func pageSource(cfg config.Config, client *http.Client) injected.PageSource {
	pageURL := cfg.Injected.URL
	if pageURL == "" {
		pageURL = cfg.Page.URL
	}
	return injected.PageSource{Client: client, URL: pageURL, Global: cfg.Injected.Global}
}

// Bridge returns the session bridge.
func (a *App) Bridge() *session.Bridge { return a.bridge }

// GraphQL returns the query client.
func (a *App) GraphQL() *graphql.Client { return a.graphql }

// Injected returns the resolved injected record, nil when absent.
func (a *App) Injected() *injected.Config { return a.injected }

// Location returns the page location used for redirects.
func (a *App) Location() *session.MutableLocation { return a.location }

// Registry returns the metrics registry.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// HasSessionCookie reports whether the jar would send the configured session
// cookie to the auth service.
func (a *App) HasSessionCookie() bool {
	name := cookie.SessionCookie
	if sc := a.config.Auth.SessionCookie; sc != nil {
		name = sc.Name
	}
	_, ok := cookie.Get(a.jar, a.config.Auth.BaseURL, name)
	return ok
}

// ForgetSession drops the seeded session cookie everywhere it was seeded and
// re-checks the session in the background.
func (a *App) ForgetSession() {
	sc := a.config.Auth.SessionCookie
	if sc == nil {
		return
	}
	for _, u := range a.cookieURLs {
		if err := cookie.Clear(a.jar, u, sc.Name); err != nil {
			log.LogWarnWithFields("appbridge", "Failed to clear session cookie", map[string]any{
				"url":   u,
				"error": err.Error(),
			})
		}
	}
	log.LogInfoWithFields("appbridge", "Session cookie cleared", map[string]any{
		"hosts": len(a.cookieURLs),
	})
	go a.bridge.Refresh(context.Background())
}

// WaitSettled blocks until no discovery is outstanding.
func (a *App) WaitSettled(ctx context.Context) (session.State, error) {
	updates, cancel := a.bridge.Subscribe()
	defer cancel()

	for {
		select {
		case st := <-updates:
			if !st.Loading {
				return st, nil
			}
		case <-ctx.Done():
			return a.bridge.State(), ctx.Err()
		}
	}
}

// Close flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	return a.shutdownTracing(ctx)
}

// Run serves the watch endpoints until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := a.Watch(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if cerr := a.Close(closeCtx); cerr != nil {
		log.LogWarnWithFields("appbridge", "Telemetry shutdown error", map[string]any{
			"error": cerr.Error(),
		})
	}
	return err
}

// Watch listens on the configured address and serves until ctx is done.
func (a *App) Watch(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.config.Watch.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.config.Watch.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the status server on ln, refreshes the session every
// watch.interval and logs state transitions. It returns when ctx is done or
// the server fails.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	log.LogInfoWithFields("appbridge", "Starting watch", map[string]any{
		"addr":       ln.Addr().String(),
		"interval":   a.config.Watch.Interval.String(),
		"configured": a.graphql.Configured(),
	})

	router := server.NewRouter(server.RouterOptions{
		Bridge:         a.bridge,
		Configured:     a.graphql.Configured(),
		Gatherer:       a.registry,
		AllowedOrigins: a.allowedOrigins(),
		OnLogout:       a.ForgetSession,
	})
	httpServer := server.NewHTTPServer(router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := httpServer.Serve(ln); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Stop(shutdownCtx)
	})

	g.Go(func() error {
		a.refreshLoop(gctx)
		return nil
	})

	g.Go(func() error {
		a.logTransitions(gctx)
		return nil
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.LogErrorWithFields("appbridge", "Watch stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfoWithFields("appbridge", "Watch stopped", nil)
	return nil
}

func (a *App) allowedOrigins() []string {
	origins := []string{urlutil.Origin(a.config.Page.URL)}
	if a.injected != nil && a.injected.PreviewOrigin != "" {
		origins = append(origins, urlutil.Origin(a.injected.PreviewOrigin))
	}
	return origins
}

// refreshLoop re-checks the session periodically; it can expire or be ended
// from another tab at any time.
func (a *App) refreshLoop(ctx context.Context) {
	if a.config.Watch.Interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(a.config.Watch.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.bridge.Refresh(ctx)
		}
	}
}

func (a *App) logTransitions(ctx context.Context) {
	updates, cancel := a.bridge.Subscribe()
	defer cancel()

	var last *session.State
	for {
		select {
		case <-ctx.Done():
			return
		case st := <-updates:
			if st.Loading || (last != nil && sameSession(*last, st)) {
				continue
			}
			fields := map[string]any{
				"status": st.Status().String(),
				"mode":   st.Mode,
			}
			if st.Identity != nil {
				fields["subject"] = st.Identity.Subject
			}
			log.LogInfoWithFields("appbridge", "Session state changed", fields)
			last = &st
		}
	}
}

func sameSession(a, b session.State) bool {
	if a.Mode != b.Mode || (a.Identity == nil) != (b.Identity == nil) {
		return false
	}
	return a.Identity == nil || *a.Identity == *b.Identity
}
