package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory counters and gauges for HTTP requests and
// stream lifecycle events. It coordinates concurrent writers via a RWMutex
// while exposing a thread-safe gauge for the active listener count.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration
	streamEvents    map[string]uint64
	activeListeners atomic.Int64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
		streamEvents:    make(map[string]uint64),
	}
}

// Default returns the process-wide recorder instance.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest records one completed HTTP request.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{method: method, path: path, status: strconv.Itoa(status)}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
}

// ObserveStreamEvent increments the named stream lifecycle counter
// (opened, dropped, pruned).
func (r *Recorder) ObserveStreamEvent(event string) {
	r.AddStreamEvents(event, 1)
}

// AddStreamEvents increments the named stream counter by n.
func (r *Recorder) AddStreamEvents(event string, n int) {
	if n <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamEvents[event] += uint64(n)
}

// SetActiveListeners records the current size of the listener registry.
func (r *Recorder) SetActiveListeners(n int) {
	r.activeListeners.Store(int64(n))
}

// ActiveListeners returns the last recorded listener registry size.
func (r *Recorder) ActiveListeners() int64 {
	return r.activeListeners.Load()
}

// Handler serves the recorder state in text exposition format.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders every metric family, with labels sorted for stable output.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	streamEvents := r.sortedStreamEvents()

	fmt.Fprintln(w, "# HELP childservice_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE childservice_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "childservice_http_requests_total{method=%q,path=%q,status=%q} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP childservice_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE childservice_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "childservice_http_request_duration_seconds_sum{method=%q,path=%q,status=%q} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP childservice_stream_events_total Stream lifecycle events by type")
	fmt.Fprintln(w, "# TYPE childservice_stream_events_total counter")
	for _, event := range streamEvents {
		value := r.streamEvents[event]
		fmt.Fprintf(w, "childservice_stream_events_total{event=%q} %d\n", event, value)
	}

	fmt.Fprintln(w, "# HELP childservice_active_listeners Currently registered stream listeners")
	fmt.Fprintln(w, "# TYPE childservice_active_listeners gauge")
	fmt.Fprintf(w, "childservice_active_listeners %d\n", r.activeListeners.Load())
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedStreamEvents() []string {
	events := make([]string, 0, len(r.streamEvents))
	for event := range r.streamEvents {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}
