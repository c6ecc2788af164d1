package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegate/edgegate/internal/cache"
	"github.com/edgegate/edgegate/internal/config"
	"github.com/edgegate/edgegate/internal/fetch"
	"github.com/edgegate/edgegate/internal/lifecycle"
	"github.com/edgegate/edgegate/internal/pending"
	"github.com/edgegate/edgegate/internal/strategy"
)

type testEnv struct {
	server   *Server
	registry cache.Registry
	pending  *pending.Store
	origin   *httptest.Server
	cfg      *config.Config
}

func newTestEnv(t *testing.T, originHandler http.Handler) *testEnv {
	t.Helper()

	origin := httptest.NewServer(originHandler)
	t.Cleanup(origin.Close)

	cfg := config.Default()
	cfg.Origin.URL = origin.URL
	cfg.Assets.Manifest = []string{"/", "/index.html", "/offline.html"}
	cfg.Retry.MaxRetries = 0
	cfg.Retry.InitialDelay = config.Duration(time.Millisecond)
	cfg.Retry.AttemptTimeout = config.Duration(time.Second)
	cfg.Pending.Enabled = true

	registry, err := cache.NewRegistry(&cfg.Cache, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	fetcher := fetch.New(&cfg.Retry)
	manager := lifecycle.NewManager(cfg, registry, fetcher, nil)

	selector, err := strategy.NewSelector(context.Background(), cfg, registry, fetcher, nil)
	require.NoError(t, err)

	pendingStore, err := pending.OpenStore(filepath.Join(t.TempDir(), "pending.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pendingStore.Close() })

	replayer, err := pending.NewReplayer(pendingStore, fetcher, "@every 1h", nil)
	require.NoError(t, err)

	server := New(cfg, selector, fetcher, registry, manager, nil,
		WithPending(pendingStore, replayer))

	return &testEnv{
		server:   server,
		registry: registry,
		pending:  pendingStore,
		origin:   origin,
		cfg:      cfg,
	}
}

func (e *testEnv) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Host = mustHost(e.origin.URL)
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	e.server.Engine().ServeHTTP(w, req)
	return w
}

func mustHost(rawURL string) string {
	// httptest URLs are always http://host:port.
	return rawURL[len("http://"):]
}

func TestServer_Healthz(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := env.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "installing", body["state"])
	assert.Contains(t, body, "cache")
	assert.Contains(t, body, "pendingSubmissions")
}

func TestServer_ServesAPIThroughNetworkFirst(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"posts":[]}`))
	}))

	w := env.do(http.MethodGet, "/api/posts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"posts":[]}`, w.Body.String())
	assert.Equal(t, "api", w.Header().Get("X-Edgegate-Class"))

	// The response landed in the runtime store.
	runtime, err := env.registry.Open(context.Background(), "v1-runtime")
	require.NoError(t, err)
	_, err = runtime.Match(context.Background(), "/api/posts")
	assert.NoError(t, err)
}

func TestServer_ServesStaticFromCache(t *testing.T) {
	var originCalls int32
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&originCalls, 1)
		_, _ = w.Write([]byte("fresh"))
	}))

	primary, err := env.registry.Open(context.Background(), "v1-static")
	require.NoError(t, err)
	require.NoError(t, primary.Put(context.Background(), "/index.html", &cache.Response{
		StatusCode: 200,
		Headers:    map[string][]string{"Content-Type": {"text/html"}},
		Body:       []byte("cached"),
	}, 0))

	w := env.do(http.MethodGet, "/index.html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "cached", w.Body.String())
	assert.Equal(t, "static", w.Header().Get("X-Edgegate-Class"))
}

func TestServer_WriteForwardedToOrigin(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))

	w := env.do(http.MethodPost, "/api/contact", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":1}`, w.Body.String())

	n, err := env.pending.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServer_WriteQueuedWhenOriginUnreachable(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	env.origin.Close()

	w := env.do(http.MethodPost, "/api/contact", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "queued", body["status"])
	assert.NotEmpty(t, body["id"])

	subs, err := env.pending.List(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, http.MethodPost, subs[0].Method)
}

func TestServer_WriteRejectionIsRelayedNotQueued(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid", http.StatusUnprocessableEntity)
	}))

	w := env.do(http.MethodPost, "/api/contact", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	n, err := env.pending.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "an origin rejection must not be queued")
}

func TestServer_OfflineFallbackForDocuments(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	primary, err := env.registry.Open(context.Background(), "v1-static")
	require.NoError(t, err)
	require.NoError(t, primary.Put(context.Background(), "/offline.html", &cache.Response{
		StatusCode: 200,
		Headers:    map[string][]string{"Content-Type": {"text/html"}},
		Body:       []byte("<html>offline</html>"),
	}, 0))

	env.origin.Close()

	header := http.Header{"Accept": {"text/html"}}
	w := env.do(http.MethodGet, "/blog/post-1", header)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>offline</html>", w.Body.String())
}

func TestServer_SynthesizesWhenNothingCanAnswer(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	env.origin.Close()

	w := env.do(http.MethodGet, "/api/posts", nil)

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get(strategy.SyntheticHeader))
	assert.JSONEq(t, `{"error":"service unavailable","source":"edgegate"}`, w.Body.String())
}

type stubTransport struct {
	calls int32
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&s.calls, 1)
	rec := httptest.NewRecorder()
	rec.WriteHeader(http.StatusOK)
	_, _ = rec.WriteString("third-party")
	return rec.Result(), nil
}

func TestServer_CrossOriginRequestsBypass(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("origin must not receive cross-origin traffic")
	}))
	t.Cleanup(origin.Close)

	cfg := config.Default()
	cfg.Origin.URL = origin.URL
	cfg.Assets.Manifest = []string{"/offline.html"}

	registry, err := cache.NewRegistry(&cfg.Cache, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	fetcher := fetch.New(&cfg.Retry)
	manager := lifecycle.NewManager(cfg, registry, fetcher, nil)

	selector, err := strategy.NewSelector(context.Background(), cfg, registry, fetcher, nil)
	require.NoError(t, err)

	rt := &stubTransport{}
	server := New(cfg, selector, fetcher, registry, manager, nil, WithBypassTransport(rt))

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := httptest.NewRequest(method, "http://fonts.example.com/lato.woff2", nil)
		req.Host = "fonts.example.com"
		w := httptest.NewRecorder()
		server.Engine().ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code, method)
		assert.Equal(t, "third-party", w.Body.String(), method)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&rt.calls))
}

func TestServer_RequestIDGeneratedAndEchoed(t *testing.T) {
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := env.do(http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	header := http.Header{RequestIDHeader: {"client-id-1"}}
	w = env.do(http.MethodGet, "/healthz", header)
	assert.Equal(t, "client-id-1", w.Header().Get(RequestIDHeader))
}

func TestServer_RateLimitRejectsBursts(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(origin.Close)

	cfg := config.Default()
	cfg.Origin.URL = origin.URL
	cfg.Assets.Manifest = []string{"/offline.html"}
	cfg.Server.RateLimit = &config.RateLimitConfig{
		Enabled:           true,
		RequestsPerSecond: 1,
		Burst:             1,
	}

	registry, err := cache.NewRegistry(&cfg.Cache, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	fetcher := fetch.New(&cfg.Retry)
	manager := lifecycle.NewManager(cfg, registry, fetcher, nil)

	selector, err := strategy.NewSelector(context.Background(), cfg, registry, fetcher, nil)
	require.NoError(t, err)

	server := New(cfg, selector, fetcher, registry, manager, nil)

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/blog", nil)
		req.Host = mustHost(origin.URL)
		w := httptest.NewRecorder()
		server.Engine().ServeHTTP(w, req)
		return w.Code
	}

	first := do()
	second := do()

	assert.Equal(t, http.StatusOK, first)
	assert.Equal(t, http.StatusTooManyRequests, second)
}
