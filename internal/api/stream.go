package api

import (
	"fmt"
	"net/http"
)

// Stream turns the request into a long-lived chunked push connection. Each
// chunk is one JSON-encoded payload; the initial handshake snapshot arrives
// through the same channel as later broadcasts. The loop runs until the
// client disconnects, at which point the listener is left for the sweeper.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	ch, err := h.Store.OpenStream(r.Context(), user.UUID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.Logger.Info("stream opened", "user_id", user.UUID)
	defer h.Logger.Info("stream closed", "user_id", user.UUID)

	for {
		select {
		case <-r.Context().Done():
			return
		case data := <-ch:
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
