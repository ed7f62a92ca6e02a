package server

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"childservice/internal/api"
	"childservice/internal/observability/metrics"
	"childservice/internal/storage"
)

func newTestHandler(t *testing.T) (*api.Handler, *storage.Store) {
	t.Helper()
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "ChildService.json")
	store, err := storage.NewStore(path, storage.WithLogger(discard))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	return api.NewHandler(store, discard), store
}

func TestAuthMiddlewareAcceptsKnownToken(t *testing.T) {
	handler, store := newTestHandler(t)
	user, token, err := store.RegisterUser("alice", "pw1")
	if err != nil {
		t.Fatalf("RegisterUser error: %v", err)
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		ctxUser, ok := api.UserFromContext(r.Context())
		if !ok {
			t.Fatal("expected user in context")
		}
		if ctxUser.UUID != user.UUID {
			t.Fatalf("expected user %s, got %s", user.UUID, ctxUser.UUID)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header.Set("Authorization", token)
	rec := httptest.NewRecorder()

	authMiddleware(handler, next).ServeHTTP(rec, req)

	if !nextCalled {
		t.Fatal("expected middleware to call next handler")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

func TestAuthMiddlewareMissingHeaderIs401(t *testing.T) {
	handler, _ := newTestHandler(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	rec := httptest.NewRecorder()
	authMiddleware(handler, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareMalformedHeaderIs401(t *testing.T) {
	handler, _ := newTestHandler(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header["Authorization"] = []string{"bad\x01token"}
	rec := httptest.NewRecorder()
	authMiddleware(handler, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareUnknownTokenIs403(t *testing.T) {
	handler, _ := newTestHandler(t)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("next handler must not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/reports", nil)
	req.Header.Set("Authorization", "deadbeef")
	rec := httptest.NewRecorder()
	authMiddleware(handler, next).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAuthMiddlewareSkipsPublicPaths(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, path := range []string{"/healthz", "/metrics", "/api/users/register", "/api/users/login"} {
		nextCalled := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nextCalled = true
		})
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		authMiddleware(handler, next).ServeHTTP(rec, req)
		if !nextCalled {
			t.Fatalf("expected %s to bypass the auth guard", path)
		}
	}
}

func TestNewBuildsServer(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv, err := New(handler, Config{Addr: ":0"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if srv.httpServer.WriteTimeout != 0 {
		t.Fatalf("expected no write timeout for streaming, got %s", srv.httpServer.WriteTimeout)
	}
}

func TestServedChainLogsAndCountsRequests(t *testing.T) {
	handler, _ := newTestHandler(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	recorder := metrics.New()

	srv, err := New(handler, Config{Logger: logger, Metrics: recorder})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := buf.String()
	if !strings.Contains(out, "request completed") {
		t.Fatalf("expected a completion log record, got %s", out)
	}
	if !strings.Contains(out, `"remote_ip":"10.0.0.1"`) {
		t.Fatalf("expected the client ip on the record, got %s", out)
	}
	if !strings.Contains(out, "request_id") {
		t.Fatalf("expected the request id on the record, got %s", out)
	}

	var families bytes.Buffer
	recorder.Write(&families)
	want := `childservice_http_requests_total{method="GET",path="/healthz",status="200"} 1`
	if !strings.Contains(families.String(), want) {
		t.Fatalf("expected the request to be counted:\n%s", families.String())
	}
}

func TestMetricsMiddlewarePreservesFlusher(t *testing.T) {
	flushed := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("expected the wrapped writer to expose Flush")
		}
		flusher.Flush()
		flushed = true
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil)
	metricsMiddleware(metrics.New(), inner).ServeHTTP(rec, req)

	if !flushed {
		t.Fatal("expected the inner handler to flush")
	}
	if !rec.Flushed {
		t.Fatal("expected the flush to reach the client")
	}
}

func TestNewRejectsBadCORSOrigin(t *testing.T) {
	handler, _ := newTestHandler(t)
	if _, err := New(handler, Config{CORS: CORSConfig{AllowedOrigins: []string{"not a url"}}}); err == nil {
		t.Fatal("expected an error for an invalid origin")
	}
}

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	generator := func() string { return "fixed-id" }

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	requestIDMiddlewareWithGenerator(nil, generator, next).ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "fixed-id" {
		t.Fatalf("expected a generated request id, got %q", got)
	}
}

func TestRequestIDMiddlewarePreservesHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "client-id")
	rec := httptest.NewRecorder()
	requestIDMiddleware(nil, next).ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "client-id" {
		t.Fatalf("expected the client id to be kept, got %q", got)
	}
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4321"
	if got := extractClientIP(req); got != "10.0.0.1" {
		t.Fatalf("expected the remote addr host, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := extractClientIP(req); got != "203.0.113.9" {
		t.Fatalf("expected the first forwarded hop, got %q", got)
	}
}
