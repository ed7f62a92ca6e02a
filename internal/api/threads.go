package api

import (
	"fmt"
	"net/http"
	"strings"

	"childservice/internal/models"
)

type createThreadRequest struct {
	ReportUUID string `json:"report_uuid"`
}

// canViewThread resolves the thread's soft report reference for the
// ownership check. A dangling reference leaves the thread visible to
// moderators only.
func (h *Handler) canViewThread(user models.User, thread models.Thread) bool {
	if user.AccessLevel.CanModerate() {
		return true
	}
	report, err := h.Store.ReportByUUID(thread.ReportUUID)
	return err == nil && report.UserUUID == user.UUID
}

// Threads serves the thread collection: creation for any authenticated user
// and full listing for moderators.
func (h *Handler) Threads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireModerator(w, r); !ok {
			return
		}
		writeJSON(w, http.StatusOK, h.Store.AllThreads())
	case http.MethodPost:
		user, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		var req createThreadRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		thread, err := h.Store.CreateThread(req.ReportUUID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.Logger.Info("thread created", "thread_id", thread.UUID, "report_id", thread.ReportUUID, "user_id", user.UUID)
		writeJSON(w, http.StatusCreated, thread)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

// ThreadByID serves a single thread and its subresources.
func (h *Handler) ThreadByID(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/threads/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("thread id missing"))
		return
	}
	threadID := parts[0]

	thread, err := h.Store.ThreadByUUID(threadID)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("thread %s not found", threadID))
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, "GET")
			return
		}
		if !h.canViewThread(user, thread) {
			writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
			return
		}
		writeJSON(w, http.StatusOK, thread)
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "messages":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r, "POST")
				return
			}
			if !h.canViewThread(user, thread) {
				writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
				return
			}
			var req messageRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			updated, err := h.Store.AddThreadMessage(threadID, user.UUID, req.Content)
			if err != nil {
				writeError(w, reportErrorStatus(err), err)
				return
			}
			writeJSON(w, http.StatusOK, updated)
		case "resolve":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r, "POST")
				return
			}
			if _, ok := h.requireModerator(w, r); !ok {
				return
			}
			updated, err := h.Store.ResolveThread(threadID)
			if err != nil {
				writeError(w, reportErrorStatus(err), err)
				return
			}
			h.Logger.Info("thread resolved", "thread_id", threadID, "user_id", user.UUID)
			writeJSON(w, http.StatusOK, updated)
		default:
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown thread resource %q", parts[1]))
		}
		return
	}

	writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
}
