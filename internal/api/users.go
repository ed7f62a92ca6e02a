package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"childservice/internal/models"
	"childservice/internal/storage"
)

type setAccessLevelRequest struct {
	AccessLevel string `json:"access_level"`
}

// Users lists every registered public profile for administrators.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if _, ok := h.requireAdmin(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Store.ListUsers())
}

// UserByID serves per-user administrative subresources, currently only the
// access level assignment.
func (h *Handler) UserByID(w http.ResponseWriter, r *http.Request) {
	admin, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/users/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("user id missing"))
		return
	}
	userID := parts[0]

	if len(parts) == 2 && parts[1] == "access" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, "POST")
			return
		}
		var req setAccessLevelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.SetAccessLevel(userID, models.AccessLevel(req.AccessLevel))
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("user %s not found", userID))
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.Logger.Info("access level changed", "user_id", userID, "access_level", updated.AccessLevel, "admin_id", admin.UUID)
		writeJSON(w, http.StatusOK, updated.Public())
		return
	}

	writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
}
