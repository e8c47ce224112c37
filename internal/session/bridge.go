// Package session discovers whether the user's session cookie is valid,
// exposes the authenticated identity and computes login/logout URLs that
// return the user to the page they were on.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dgellow/appbridge/internal/ioutil"
	"github.com/dgellow/appbridge/internal/log"
	"github.com/dgellow/appbridge/internal/metrics"
	"github.com/dgellow/appbridge/internal/urlutil"
)

// Well-known paths on the auth service.
const (
	MePath     = "/auth/me"
	LoginPath  = "/auth/login"
	LogoutPath = "/auth/logout"
)

// RedirectParam is the query parameter carrying the return location.
const RedirectParam = "redirect"

const maxBodySize = 1 << 20

// Recorder observes settled refreshes.
type Recorder interface {
	RefreshCompleted(outcome string, elapsed time.Duration)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithHTTPClient sets the client used for discovery. Its cookie jar provides
// the session credentials. Defaults to http.DefaultClient.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Bridge) {
		if c != nil {
			b.client = c
		}
	}
}

// WithRecorder reports refresh outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(b *Bridge) {
		b.recorder = r
	}
}

// WithPageOrigin overrides the origin sent with discovery requests, which is
// otherwise derived from the current location.
func WithPageOrigin(origin string) Option {
	return func(b *Bridge) {
		b.pageOrigin = origin
	}
}

// Bridge owns the session state. Only Refresh writes it.
type Bridge struct {
	authOrigin string
	meURL      string
	loginURL   string
	logoutURL  string
	pageOrigin string
	location   Location
	client     *http.Client
	recorder   Recorder

	mu       sync.Mutex
	state    State
	issued   uint64
	applied  uint64
	inflight map[uint64]struct{}
	subs     map[int]chan State
	nextSub  int
}

// New creates a bridge for the auth service at authBase and starts the
// initial discovery in the background.
func New(ctx context.Context, authBase string, loc Location, opts ...Option) (*Bridge, error) {
	if loc == nil {
		return nil, errors.New("location is required")
	}
	base, err := urlutil.ParseAbsolute(authBase)
	if err != nil {
		return nil, fmt.Errorf("invalid auth base URL: %w", err)
	}

	b := &Bridge{
		authOrigin: base.Scheme + "://" + base.Host,
		location:   loc,
		client:     http.DefaultClient,
		state:      State{Loading: true},
		inflight:   make(map[uint64]struct{}),
		subs:       make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.meURL, err = urlutil.JoinPath(authBase, MePath); err != nil {
		return nil, err
	}
	if b.loginURL, err = urlutil.JoinPath(authBase, LoginPath); err != nil {
		return nil, err
	}
	if b.logoutURL, err = urlutil.JoinPath(authBase, LogoutPath); err != nil {
		return nil, err
	}

	go b.Refresh(ctx)
	return b, nil
}

// State returns the current snapshot.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Subscribe returns a channel that always holds the most recent snapshot
// not yet received; older unread snapshots are replaced. The current state is
// delivered immediately. The cancel function closes the channel.
func (b *Bridge) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	ch <- b.state
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// publishLocked must be called with b.mu held, which also orders deliveries.
func (b *Bridge) publishLocked() {
	for _, ch := range b.subs {
		select {
		case <-ch:
		default:
		}
		ch <- b.state
	}
}

// LoginURL returns the login entry point returning to the current location.
func (b *Bridge) LoginURL() string {
	return b.withRedirect(b.loginURL)
}

// LogoutURL returns the logout entry point returning to the current location.
func (b *Bridge) LogoutURL() string {
	return b.withRedirect(b.logoutURL)
}

func (b *Bridge) withRedirect(target string) string {
	u, err := urlutil.WithQuery(target, RedirectParam, b.location.Current())
	if err != nil {
		return target
	}
	return u
}

// Refresh asks the auth service who the current user is. It never fails:
// any error leaves the bridge unauthenticated with an unknown mode. When
// calls overlap, a result is dropped if a later-issued call has already been
// applied, and Loading stays set while a call issued after the applied one is
// outstanding. A call whose ctx ends before it completes changes nothing but
// Loading.
func (b *Bridge) Refresh(ctx context.Context) {
	start := time.Now()

	b.mu.Lock()
	b.issued++
	seq := b.issued
	b.inflight[seq] = struct{}{}
	b.state.Loading = true
	b.publishLocked()
	b.mu.Unlock()

	next, err := b.discover(ctx)
	outcome := metrics.OutcomeUnauthenticated
	switch {
	case err != nil && ctx.Err() != nil:
		outcome = metrics.OutcomeCancelled
	case err != nil:
		outcome = metrics.OutcomeFailed
		log.LogDebugWithFields("session", "Session discovery failed", map[string]any{
			"seq":   seq,
			"error": err.Error(),
		})
	case next.Identity != nil:
		outcome = metrics.OutcomeAuthenticated
	}

	b.mu.Lock()
	delete(b.inflight, seq)
	if outcome == metrics.OutcomeCancelled || seq < b.applied {
		b.settleLocked(false)
		applied := b.applied
		b.mu.Unlock()
		if outcome != metrics.OutcomeCancelled {
			outcome = metrics.OutcomeStale
		}
		log.LogTraceWithFields("session", "Discarding discovery result", map[string]any{
			"seq":     seq,
			"applied": applied,
			"outcome": outcome,
		})
		b.record(outcome, start)
		return
	}
	b.applied = seq
	b.state = next
	b.settleLocked(true)
	b.mu.Unlock()

	fields := map[string]any{
		"seq":    seq,
		"status": next.Status().String(),
		"mode":   next.Mode,
	}
	if next.Identity != nil {
		fields["subject"] = next.Identity.Subject
	}
	log.LogDebugWithFields("session", "Session state applied", fields)
	b.record(outcome, start)
}

// settleLocked recomputes Loading and publishes when the state changed.
// Results of calls issued before the applied one are discarded, so only
// newer calls keep it set.
func (b *Bridge) settleLocked(changed bool) {
	loading := false
	for seq := range b.inflight {
		if seq > b.applied {
			loading = true
			break
		}
	}
	if !changed && loading == b.state.Loading {
		return
	}
	b.state.Loading = loading
	b.publishLocked()
}

func (b *Bridge) record(outcome string, start time.Time) {
	if b.recorder != nil {
		b.recorder.RefreshCompleted(outcome, time.Since(start))
	}
}

// meResponse is the discriminated introspection body. Pointers distinguish
// missing fields from zero values.
type meResponse struct {
	Authenticated *bool     `json:"authenticated"`
	Mode          *string   `json:"mode"`
	User          *Identity `json:"user"`
}

// discover performs one introspection call. The returned State has Loading
// unset; on error it is the zero State.
func (b *Bridge) discover(ctx context.Context) (State, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.meURL, nil)
	if err != nil {
		return State{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	origin := b.pageOrigin
	if origin == "" {
		origin = urlutil.Origin(b.location.Current())
	}
	if origin != "" && origin != b.authOrigin {
		req.Header.Set("Origin", origin)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return State{}, fmt.Errorf("requesting %s: %w", MePath, err)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadLimited(resp.Body, maxBodySize)
	if err != nil {
		return State{}, fmt.Errorf("reading response: %w", err)
	}

	log.LogTraceWithFields("session", "Introspection response received", map[string]any{
		"status": resp.StatusCode,
		"bytes":  len(body),
	})

	var me meResponse
	if err := json.Unmarshal(body, &me); err != nil {
		return State{}, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	return me.toState()
}

func (r meResponse) toState() (State, error) {
	if r.Authenticated == nil {
		return State{}, errors.New("response missing authenticated flag")
	}
	if r.Mode == nil {
		return State{}, errors.New("response missing mode")
	}
	if !*r.Authenticated {
		return State{Mode: *r.Mode}, nil
	}
	if r.User == nil || r.User.Subject == "" {
		return State{}, errors.New("authenticated response missing user")
	}
	return State{Mode: *r.Mode, Identity: r.User}, nil
}
