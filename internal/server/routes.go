package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jsonwriter "github.com/dgellow/appbridge/internal/json"
	"github.com/dgellow/appbridge/internal/session"
)

// Bridge is the session surface exposed by the status server.
type Bridge interface {
	State() session.State
	Refresh(ctx context.Context)
	LoginURL() string
	LogoutURL() string
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Bridge Bridge
	// Configured reports whether backend access was injected.
	Configured bool
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil.
	Gatherer prometheus.Gatherer
	// AllowedOrigins may read the endpoints cross-origin with credentials.
	AllowedOrigins []string
	// OnLogout runs before GET /logout redirects, after the URL is computed.
	OnLogout func()
}

// StateResponse is the body of GET /state and POST /refresh.
type StateResponse struct {
	Status string `json:"status"`
	session.State
	Configured bool   `json:"configured"`
	LoginURL   string `json:"loginUrl"`
	LogoutURL  string `json:"logoutUrl"`
}

// NewRouter builds the status server routes.
func NewRouter(opts RouterOptions) http.Handler {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{bridge: opts.Bridge, configured: opts.Configured, onLogout: opts.OnLogout}

	r := chi.NewRouter()
	r.Use(
		NewRecoverMiddleware("http"),
		NewLoggerMiddleware("http"),
		NewCORSMiddleware(opts.AllowedOrigins...),
	)

	r.Get("/healthz", healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/state", h.state)
	r.Post("/refresh", h.refresh)
	r.Get("/login", h.login)
	r.Get("/logout", h.logout)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteNotFound(w, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonwriter.WriteMethodNotAllowed(w, r.Method+" is not supported on "+r.URL.Path)
	})
	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	_ = jsonwriter.Write(w, map[string]string{"status": "ok"})
}

type handlers struct {
	bridge     Bridge
	configured bool
	onLogout   func()
}

func (h *handlers) snapshot() StateResponse {
	st := h.bridge.State()
	return StateResponse{
		Status:     st.Status().String(),
		State:      st,
		Configured: h.configured,
		LoginURL:   h.bridge.LoginURL(),
		LogoutURL:  h.bridge.LogoutURL(),
	}
}

func (h *handlers) state(w http.ResponseWriter, _ *http.Request) {
	_ = jsonwriter.Write(w, h.snapshot())
}

func (h *handlers) refresh(w http.ResponseWriter, r *http.Request) {
	h.bridge.Refresh(r.Context())
	_ = jsonwriter.Write(w, h.snapshot())
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.bridge.LoginURL(), http.StatusFound)
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	target := h.bridge.LogoutURL()
	if h.onLogout != nil {
		h.onLogout()
	}
	http.Redirect(w, r, target, http.StatusFound)
}
