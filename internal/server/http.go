package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dgellow/appbridge/internal/log"
)

// HTTPServer serves the watch endpoints on a caller-provided listener.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer wraps handler. Responses are small snapshots, so slow clients
// are cut off early.
func NewHTTPServer(handler http.Handler) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Serve blocks until Stop is called or ln fails. A graceful stop returns nil.
func (h *HTTPServer) Serve(ln net.Listener) error {
	log.LogInfoWithFields("http", "Status server listening", map[string]any{
		"addr": ln.Addr().String(),
	})

	if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop waits for in-flight requests until ctx expires.
func (h *HTTPServer) Stop(ctx context.Context) error {
	if err := h.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.LogInfoWithFields("http", "Status server stopped", nil)
	return nil
}
