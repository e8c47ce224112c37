package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgellow/appbridge/internal/cookie"
	"github.com/dgellow/appbridge/internal/metrics"
	"github.com/dgellow/appbridge/internal/transport"
)

const (
	authenticatedBody   = `{"authenticated":true,"mode":"google","user":{"id":"u-1","email":"ada@example.com","name":"Ada","avatarUrl":"https://cdn.example.com/ada.png"}}`
	unauthenticatedBody = `{"authenticated":false,"mode":"google"}`
	pageURL             = "https://app.example.com/orders?page=2#row-7"
)

// bodyServer serves whatever body is currently stored.
type bodyServer struct {
	status atomic.Int32
	body   atomic.Value
}

func newBodyServer(t *testing.T, body string) (*bodyServer, *httptest.Server) {
	t.Helper()
	s := &bodyServer{}
	s.status.Store(http.StatusOK)
	s.body.Store(body)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != MePath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(s.status.Load()))
		_, _ = w.Write([]byte(s.body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *bodyServer) set(status int, body string) {
	s.status.Store(int32(status))
	s.body.Store(body)
}

func waitSettled(t *testing.T, b *Bridge) State {
	t.Helper()
	require.Eventually(t, func() bool { return !b.State().Loading }, 2*time.Second, 5*time.Millisecond)
	return b.State()
}

func newSettledBridge(t *testing.T, authBase string, opts ...Option) *Bridge {
	t.Helper()
	b, err := New(context.Background(), authBase, StaticLocation(pageURL), opts...)
	require.NoError(t, err)
	waitSettled(t, b)
	return b
}

func TestInitialStateAndAutomaticRefresh(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(authenticatedBody))
	}))
	defer srv.Close()

	b, err := New(context.Background(), srv.URL, StaticLocation(pageURL))
	require.NoError(t, err)

	initial := b.State()
	assert.True(t, initial.Loading)
	assert.Empty(t, initial.Mode)
	assert.Nil(t, initial.Identity)
	assert.Equal(t, StatusLoading, initial.Status())

	close(release)
	state := waitSettled(t, b)

	assert.Equal(t, StatusAuthenticated, state.Status())
	assert.Equal(t, "google", state.Mode)
	require.NotNil(t, state.Identity)
	assert.Equal(t, Identity{
		Subject:   "u-1",
		Email:     "ada@example.com",
		Name:      "Ada",
		AvatarURL: "https://cdn.example.com/ada.png",
	}, *state.Identity)
	assert.Equal(t, int32(1), calls.Load(), "construction triggers exactly one refresh")
}

func TestRefreshUnauthenticatedClearsIdentity(t *testing.T) {
	fake, srv := newBodyServer(t, authenticatedBody)
	b := newSettledBridge(t, srv.URL)
	require.Equal(t, StatusAuthenticated, b.State().Status())

	fake.set(http.StatusOK, unauthenticatedBody)
	b.Refresh(context.Background())

	state := b.State()
	assert.False(t, state.Loading)
	assert.Nil(t, state.Identity)
	assert.Equal(t, "google", state.Mode, "mode describes the provider even when logged out")
	assert.Equal(t, StatusUnauthenticated, state.Status())
}

func TestRefreshIgnoresHTTPStatusWhenBodyIsValid(t *testing.T) {
	fake, srv := newBodyServer(t, authenticatedBody)
	b := newSettledBridge(t, srv.URL)

	fake.set(http.StatusUnauthorized, `{"authenticated":false,"mode":"oidc"}`)
	b.Refresh(context.Background())

	assert.Equal(t, State{Mode: "oidc"}, b.State())
}

func TestRefreshFailuresYieldUnknownMode(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "not json", status: http.StatusOK, body: "<html>oops</html>"},
		{name: "empty body", status: http.StatusInternalServerError, body: ""},
		{name: "json array", status: http.StatusOK, body: `[]`},
		{name: "json null", status: http.StatusOK, body: `null`},
		{name: "missing authenticated", status: http.StatusOK, body: `{"mode":"google"}`},
		{name: "authenticated not boolean", status: http.StatusOK, body: `{"authenticated":"true","mode":"google","user":{"id":"u"}}`},
		{name: "missing mode", status: http.StatusOK, body: `{"authenticated":false}`},
		{name: "mode not string", status: http.StatusOK, body: `{"authenticated":false,"mode":42}`},
		{name: "authenticated without user", status: http.StatusOK, body: `{"authenticated":true,"mode":"google"}`},
		{name: "user without id", status: http.StatusOK, body: `{"authenticated":true,"mode":"google","user":{"email":"a@b"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newBodyServer(t, authenticatedBody)
			b := newSettledBridge(t, srv.URL)
			require.NotNil(t, b.State().Identity)

			fake.set(tt.status, tt.body)
			assert.NotPanics(t, func() { b.Refresh(context.Background()) })

			assert.Equal(t, State{}, b.State())
		})
	}
}

func TestRefreshNetworkFailure(t *testing.T) {
	_, srv := newBodyServer(t, authenticatedBody)
	b := newSettledBridge(t, srv.URL)
	require.NotNil(t, b.State().Identity)

	srv.Close()
	b.Refresh(context.Background())

	assert.Equal(t, State{}, b.State())
}

func TestRefreshCancelledContextKeepsSession(t *testing.T) {
	_, srv := newBodyServer(t, authenticatedBody)
	b := newSettledBridge(t, srv.URL)
	before := b.State()
	require.NotNil(t, before.Identity)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Refresh(ctx)

	assert.Equal(t, before, b.State())
}

func TestRefreshAbandonedInFlightKeepsSession(t *testing.T) {
	var slow atomic.Bool
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if slow.Load() {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}
		_, _ = w.Write([]byte(authenticatedBody))
	}))
	defer srv.Close()
	defer close(release)

	rec := &fakeRecorder{}
	b := newSettledBridge(t, srv.URL, WithRecorder(rec))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	slow.Store(true)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	b.Refresh(ctx)

	state := b.State()
	assert.False(t, state.Loading)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "u-1", state.Identity.Subject)
	assert.Equal(t, "google", state.Mode)
	assert.Equal(t, []string{metrics.OutcomeAuthenticated, metrics.OutcomeCancelled}, rec.snapshot())
}

func TestCancelledLatestCallLetsEarlierResultSettle(t *testing.T) {
	var (
		mu      sync.Mutex
		n       int
		gate    = make(chan struct{})
		arrived = make(chan int, 8)
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := n
		n++
		mu.Unlock()
		arrived <- i
		switch i {
		case 0:
			_, _ = w.Write([]byte(unauthenticatedBody))
		case 1:
			<-gate
			_, _ = w.Write([]byte(authenticatedBody))
		default:
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	b, err := New(context.Background(), srv.URL, StaticLocation(pageURL))
	require.NoError(t, err)
	<-arrived
	waitSettled(t, b)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.Refresh(context.Background()) }()
	<-arrived

	ctx, cancel := context.WithCancel(context.Background())
	go func() { defer wg.Done(); b.Refresh(ctx) }()
	<-arrived

	cancel()
	require.Eventually(t, func() bool { return b.State().Loading }, time.Second, 5*time.Millisecond)
	assert.Nil(t, b.State().Identity, "the abandoned call applied nothing")

	close(gate)
	wg.Wait()

	state := b.State()
	assert.False(t, state.Loading)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "u-1", state.Identity.Subject)
}

func TestRefreshSendsCredentialsAndOrigin(t *testing.T) {
	var gotCookie, gotOrigin, gotAccept atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			gotCookie.Store(c.Value)
		}
		gotOrigin.Store(r.Header.Get("Origin"))
		gotAccept.Store(r.Header.Get("Accept"))
		_, _ = w.Write([]byte(authenticatedBody))
	}))
	defer srv.Close()

	jar, err := transport.NewJar()
	require.NoError(t, err)
	require.NoError(t, cookie.Seed(jar, srv.URL, "session", "cookie-value"))
	client := transport.New(jar, transport.Options{})

	b := newSettledBridge(t, srv.URL, WithHTTPClient(client))
	b.Refresh(context.Background())

	assert.Equal(t, "cookie-value", gotCookie.Load())
	assert.Equal(t, "https://app.example.com", gotOrigin.Load())
	assert.Equal(t, "application/json", gotAccept.Load())

	t.Run("same origin omits header", func(t *testing.T) {
		b, err := New(context.Background(), srv.URL, StaticLocation(srv.URL+"/page"), WithHTTPClient(client))
		require.NoError(t, err)
		waitSettled(t, b)
		b.Refresh(context.Background())
		assert.Equal(t, "", gotOrigin.Load())
	})

	t.Run("explicit page origin", func(t *testing.T) {
		b := newSettledBridge(t, srv.URL, WithHTTPClient(client), WithPageOrigin("https://preview.example.com"))
		b.Refresh(context.Background())
		assert.Equal(t, "https://preview.example.com", gotOrigin.Load())
	})
}

func TestLoginLogoutURLs(t *testing.T) {
	_, srv := newBodyServer(t, unauthenticatedBody)
	loc := NewMutableLocation("https://app.example.com/settings?tab=billing&x=1#invoices")

	b, err := New(context.Background(), srv.URL+"/identity/", loc)
	require.NoError(t, err)
	waitSettled(t, b)

	check := func(t *testing.T, raw, wantPath string) {
		t.Helper()
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, wantPath, u.Path)
		assert.Equal(t, loc.Current(), u.Query().Get(RedirectParam))
	}

	check(t, b.LoginURL(), "/identity/auth/login")
	check(t, b.LogoutURL(), "/identity/auth/logout")

	loc.Set("https://app.example.com/other?q=a%20b#top")
	check(t, b.LoginURL(), "/identity/auth/login")
	check(t, b.LogoutURL(), "/identity/auth/logout")
}

func TestOutOfOrderCompletionKeepsLatestIssued(t *testing.T) {
	type pending struct {
		release chan struct{}
		body    string
	}
	var (
		mu      sync.Mutex
		queue   []pending
		arrived = make(chan int, 8)
		n       int
	)
	enqueue := func(body string) chan struct{} {
		mu.Lock()
		defer mu.Unlock()
		p := pending{release: make(chan struct{}), body: body}
		queue = append(queue, p)
		return p.release
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := n
		n++
		p := queue[i]
		mu.Unlock()

		arrived <- i
		<-p.release
		_, _ = w.Write([]byte(p.body))
	}))
	defer srv.Close()

	initial := enqueue(unauthenticatedBody)
	close(initial)
	b, err := New(context.Background(), srv.URL, StaticLocation(pageURL))
	require.NoError(t, err)
	<-arrived
	waitSettled(t, b)

	first := enqueue(`{"authenticated":true,"mode":"google","user":{"id":"alice"}}`)
	second := enqueue(`{"authenticated":true,"mode":"github","user":{"id":"bob"}}`)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.Refresh(context.Background()) }()
	<-arrived
	go func() { defer wg.Done(); b.Refresh(context.Background()) }()
	<-arrived

	assert.True(t, b.State().Loading)

	// The later-issued call finishes first and wins.
	close(second)
	require.Eventually(t, func() bool {
		s := b.State()
		return s.Identity != nil && s.Identity.Subject == "bob"
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, b.State().Loading)

	// The earlier-issued call finishes last and is discarded.
	close(first)
	wg.Wait()

	state := b.State()
	assert.False(t, state.Loading)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "bob", state.Identity.Subject)
	assert.Equal(t, "github", state.Mode)
}

func TestEarlierResultAppliedWhileLaterPending(t *testing.T) {
	var (
		mu      sync.Mutex
		n       int
		gates   = []chan struct{}{make(chan struct{}), make(chan struct{}), make(chan struct{})}
		bodies  = []string{unauthenticatedBody, `{"authenticated":true,"mode":"google","user":{"id":"alice"}}`, `{"authenticated":true,"mode":"google","user":{"id":"bob"}}`}
		arrived = make(chan int, 8)
	)
	close(gates[0])
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		i := n
		n++
		mu.Unlock()
		arrived <- i
		<-gates[i]
		_, _ = w.Write([]byte(bodies[i]))
	}))
	defer srv.Close()

	b, err := New(context.Background(), srv.URL, StaticLocation(pageURL))
	require.NoError(t, err)
	<-arrived
	waitSettled(t, b)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); b.Refresh(context.Background()) }()
	<-arrived
	go func() { defer wg.Done(); b.Refresh(context.Background()) }()
	<-arrived

	close(gates[1])
	require.Eventually(t, func() bool {
		s := b.State()
		return s.Identity != nil && s.Identity.Subject == "alice"
	}, 2*time.Second, 5*time.Millisecond)
	assert.True(t, b.State().Loading, "a newer refresh is still outstanding")

	close(gates[2])
	wg.Wait()

	state := b.State()
	assert.False(t, state.Loading)
	require.NotNil(t, state.Identity)
	assert.Equal(t, "bob", state.Identity.Subject)
}

func TestConcurrentRefreshesAlwaysSettle(t *testing.T) {
	_, srv := newBodyServer(t, authenticatedBody)
	b := newSettledBridge(t, srv.URL)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Refresh(context.Background())
		}()
	}
	wg.Wait()

	state := b.State()
	assert.False(t, state.Loading)
	assert.Equal(t, StatusAuthenticated, state.Status())
}

func TestSubscribe(t *testing.T) {
	fake, srv := newBodyServer(t, authenticatedBody)
	b := newSettledBridge(t, srv.URL)

	updates, cancel := b.Subscribe()

	current := <-updates
	assert.Equal(t, StatusAuthenticated, current.Status())

	fake.set(http.StatusOK, unauthenticatedBody)
	b.Refresh(context.Background())

	// Intermediate snapshots may be coalesced; the settled one must arrive.
	var last State
	require.Eventually(t, func() bool {
		select {
		case last = <-updates:
		default:
		}
		return !last.Loading && last.Status() == StatusUnauthenticated
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, b.State(), last)

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open, "cancel closes the channel")

	assert.NotPanics(t, func() { b.Refresh(context.Background()) })
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *fakeRecorder) RefreshCompleted(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *fakeRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func TestRecorderOutcomes(t *testing.T) {
	fake, srv := newBodyServer(t, authenticatedBody)
	rec := &fakeRecorder{}
	b := newSettledBridge(t, srv.URL, WithRecorder(rec))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	fake.set(http.StatusOK, unauthenticatedBody)
	b.Refresh(context.Background())
	fake.set(http.StatusOK, "garbage")
	b.Refresh(context.Background())

	assert.Equal(t, []string{
		metrics.OutcomeAuthenticated,
		metrics.OutcomeUnauthenticated,
		metrics.OutcomeFailed,
	}, rec.snapshot())
}

func TestNewValidation(t *testing.T) {
	_, err := New(context.Background(), "not-a-url", StaticLocation(pageURL))
	assert.Error(t, err)

	_, err = New(context.Background(), "https://auth.example.com", nil)
	assert.Error(t, err)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "authenticated", StatusAuthenticated.String())
	assert.Equal(t, "unauthenticated", StatusUnauthenticated.String())
	assert.Equal(t, "unknown", Status(99).String())
}
