package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tiendaonline/tienda-api/internal/config"
)

const (
	testDevOrigin      = "http://localhost:5173"
	testFrontendOrigin = "https://tienda.example.com"
	testPrefix         = "/api/test"
)

func testConfig() config.Config {
	return config.Config{
		DevOrigin:   testDevOrigin,
		FrontendURL: testFrontendOrigin,
		BodyLimit:   64 << 10,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// echoGroup answers with the structured body and exposes failure routes.
func echoGroup() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodPost, "/", Adapt(func(w http.ResponseWriter, r *http.Request) error {
		return WriteJSON(w, http.StatusOK, json.RawMessage(BodyFrom(r).Bytes()))
	}))
	r.Method(http.MethodPost, "/fail", Adapt(func(w http.ResponseWriter, r *http.Request) error {
		return errors.New(r.URL.Query().Get("msg"))
	}))
	r.Get("/panic", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})
	r.Method(http.MethodGet, "/late", Adapt(func(w http.ResponseWriter, _ *http.Request) error {
		w.WriteHeader(http.StatusAccepted)
		return errors.New("after header")
	}))
	return r
}

// rawEcho writes back whatever the raw body rule captured.
func rawEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(RawBodyFrom(r))
	})
}

func testMounts() []Mount {
	return []Mount{
		{Prefix: testPrefix, Group: echoGroup()},
		{Prefix: WebhookPrefix, Group: rawEcho()},
	}
}

// fataler is the part of testing.TB that *rapid.T also implements.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func newTestHandler(t fataler, cfg config.Config, opts ...func(*Options)) *Handler {
	t.Helper()
	o := Options{Config: cfg, Mounts: testMounts(), Logger: quietLogger()}
	for _, fn := range opts {
		fn(&o)
	}
	h, err := New(o)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t fataler, body io.Reader) errorEnvelope {
	t.Helper()
	dec := json.NewDecoder(body)
	var env errorEnvelope
	if err := dec.Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if dec.More() {
		t.Fatalf("more than one JSON value in error response")
	}
	if env.Mensaje != faultMessage {
		t.Fatalf("mensaje = %q want %q", env.Mensaje, faultMessage)
	}
	return env
}

type fakeReadiness bool

func (f fakeReadiness) Ready() bool { return bool(f) }

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestRoot(t *testing.T) {
	h := newTestHandler(t, testConfig())

	rec := do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Body.String(); got != "🚀 API activa y funcionando" {
		t.Fatalf("body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, testConfig())

	rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("GET /health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestReady(t *testing.T) {
	cases := []struct {
		name   string
		ready  Readiness
		pinger Pinger
		want   int
	}{
		{"no probes", nil, nil, http.StatusOK},
		{"connected", fakeReadiness(true), fakePinger{}, http.StatusOK},
		{"connecting", fakeReadiness(false), fakePinger{}, http.StatusServiceUnavailable},
		{"ping fails", fakeReadiness(true), fakePinger{err: errors.New("no primary")}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(t, testConfig(), func(o *Options) {
				o.Readiness = tc.ready
				o.Pinger = tc.pinger
			})
			rec := do(h, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tc.want {
				t.Fatalf("status = %d want %d body=%s", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want == http.StatusOK {
				if rec.Body.String() != "ready" {
					t.Fatalf("body = %q", rec.Body.String())
				}
				return
			}
			env := decodeEnvelope(t, rec.Body)
			if env.Error != "database not ready" {
				t.Fatalf("error = %q", env.Error)
			}
		})
	}
}

func TestUnmatchedRoute(t *testing.T) {
	for _, legacy := range []bool{false, true} {
		cfg := testConfig()
		cfg.LegacyErrorStatus = legacy
		h := newTestHandler(t, cfg)

		rec := do(h, httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("legacy=%v status = %d want 404", legacy, rec.Code)
		}
		env := decodeEnvelope(t, rec.Body)
		if env.Error != "Cannot GET /api/nothing" {
			t.Fatalf("error = %q", env.Error)
		}
	}
}

func TestMethodMismatch(t *testing.T) {
	h := newTestHandler(t, testConfig())
	rec := do(h, httptest.NewRequest(http.MethodDelete, "/", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d want 405", rec.Code)
	}
	if env := decodeEnvelope(t, rec.Body); env.Error != "Cannot DELETE /" {
		t.Fatalf("error = %q", env.Error)
	}

	cfg := testConfig()
	cfg.LegacyErrorStatus = true
	h = newTestHandler(t, cfg)
	rec = do(h, httptest.NewRequest(http.MethodDelete, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("legacy status = %d want 404", rec.Code)
	}
}

func TestHandlerErrorEnvelope(t *testing.T) {
	h := newTestHandler(t, testConfig())

	rec := do(h, httptest.NewRequest(http.MethodPost, testPrefix+"/fail?msg=stock+agotado", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d want 500", rec.Code)
	}
	if env := decodeEnvelope(t, rec.Body); env.Error != "stock agotado" {
		t.Fatalf("error = %q", env.Error)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q", ct)
	}
}

func TestPanicRecovered(t *testing.T) {
	h := newTestHandler(t, testConfig())

	rec := do(h, httptest.NewRequest(http.MethodGet, testPrefix+"/panic", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d want 500", rec.Code)
	}
	if env := decodeEnvelope(t, rec.Body); env.Error != "kaboom" {
		t.Fatalf("error = %q", env.Error)
	}

	// the process keeps serving
	rec = do(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("after panic status = %d", rec.Code)
	}
}

func TestErrorAfterHeaderKeepsStatus(t *testing.T) {
	h := newTestHandler(t, testConfig())

	rec := do(h, httptest.NewRequest(http.MethodGet, testPrefix+"/late", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d want %d", rec.Code, http.StatusAccepted)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestCorrelationID(t *testing.T) {
	h := newTestHandler(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-Id", "abc-123")
	rec := do(h, req)
	if got := rec.Header().Get("X-Correlation-Id"); got != "abc-123" {
		t.Fatalf("correlation id = %q", got)
	}

	rec = do(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Correlation-Id") == "" {
		t.Fatalf("expected generated correlation id")
	}
}

func TestReadinessGate(t *testing.T) {
	cfg := testConfig()
	cfg.ReadinessGate = true
	h := newTestHandler(t, cfg, func(o *Options) { o.Readiness = fakeReadiness(false) })

	rec := do(h, httptest.NewRequest(http.MethodPost, testPrefix, strings.NewReader("{}")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("gated status = %d want 503", rec.Code)
	}
	if env := decodeEnvelope(t, rec.Body); env.Error != "database not ready" {
		t.Fatalf("error = %q", env.Error)
	}

	// diagnostics and unmatched routes are not gated
	if rec := do(h, httptest.NewRequest(http.MethodGet, "/health", nil)); rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d", rec.Code)
	}
	if rec := do(h, httptest.NewRequest(http.MethodGet, "/api/nothing", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("unmatched status = %d", rec.Code)
	}
}

func TestReadinessGateOffByDefault(t *testing.T) {
	h := newTestHandler(t, testConfig(), func(o *Options) { o.Readiness = fakeReadiness(false) })

	req := httptest.NewRequest(http.MethodPost, testPrefix, strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := do(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d want 200", rec.Code)
	}
}

func TestNewRejectsBadMounts(t *testing.T) {
	group := http.NotFoundHandler()
	cases := map[string][]Mount{
		"relative":  {{Prefix: "api/x", Group: group}},
		"root":      {{Prefix: "/", Group: group}},
		"trailing":  {{Prefix: "/api/x/", Group: group}},
		"nil group": {{Prefix: "/api/x"}},
		"duplicate": {{Prefix: "/api/x", Group: group}, {Prefix: "/api/x", Group: group}},
	}
	for name, mounts := range cases {
		if _, err := New(Options{Config: testConfig(), Mounts: mounts, Logger: quietLogger()}); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMountsCopy(t *testing.T) {
	h := newTestHandler(t, testConfig())
	m := h.Mounts()
	m[0].Prefix = "/changed"
	if h.Mounts()[0].Prefix != testPrefix {
		t.Fatalf("mount table mutated through Mounts()")
	}
}
