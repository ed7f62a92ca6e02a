package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecorderWriteRendersFamilies(t *testing.T) {
	recorder := New()
	recorder.ObserveRequest(http.MethodGet, "/api/reports", http.StatusOK, 50*time.Millisecond)
	recorder.ObserveRequest(http.MethodGet, "/api/reports", http.StatusOK, 30*time.Millisecond)
	recorder.ObserveStreamEvent("opened")
	recorder.AddStreamEvents("pruned", 3)
	recorder.SetActiveListeners(2)

	var buf bytes.Buffer
	recorder.Write(&buf)
	out := buf.String()

	for _, want := range []string{
		`childservice_http_requests_total{method="GET",path="/api/reports",status="200"} 2`,
		`childservice_stream_events_total{event="opened"} 1`,
		`childservice_stream_events_total{event="pruned"} 3`,
		"childservice_active_listeners 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestAddStreamEventsIgnoresNonPositive(t *testing.T) {
	recorder := New()
	recorder.AddStreamEvents("pruned", 0)
	recorder.AddStreamEvents("pruned", -4)

	var buf bytes.Buffer
	recorder.Write(&buf)
	if strings.Contains(buf.String(), `event="pruned"`) {
		t.Fatal("expected non-positive increments to be dropped")
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	recorder := New()
	recorder.SetActiveListeners(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/plain") {
		t.Fatalf("expected a text exposition content type, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "childservice_active_listeners 1") {
		t.Fatalf("unexpected body:\n%s", rec.Body)
	}
}

func TestResponseRecorderTracksStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := NewResponseRecorder(rec)

	if wrapped.Status() != http.StatusOK {
		t.Fatalf("expected the default status to be 200, got %d", wrapped.Status())
	}
	wrapped.WriteHeader(http.StatusTeapot)
	if wrapped.Status() != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", wrapped.Status())
	}
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected the status to pass through, got %d", rec.Code)
	}
}

func TestResponseRecorderFlushPassesThrough(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := NewResponseRecorder(rec)
	wrapped.Flush()
	if !rec.Flushed {
		t.Fatal("expected the flush to reach the underlying writer")
	}
}
