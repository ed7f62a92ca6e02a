package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"childservice/internal/models"
	"childservice/internal/storage"
)

type createReportRequest struct {
	Subject  string `json:"subject"`
	Priority string `json:"priority"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type assignReportRequest struct {
	EmployeeUUID string `json:"employee_uuid"`
}

func canViewReport(user models.User, report models.Report) bool {
	return user.AccessLevel.CanModerate() || report.UserUUID == user.UUID
}

// Reports serves the report collection: listing for the caller and creation.
func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		if user.AccessLevel.CanModerate() {
			writeJSON(w, http.StatusOK, h.Store.AllReports())
			return
		}
		writeJSON(w, http.StatusOK, h.Store.ReportsForUser(user.UUID))
	case http.MethodPost:
		var req createReportRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		priority, ok := models.ParsePriority(req.Priority)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid priority %q", req.Priority))
			return
		}
		report, err := h.Store.CreateReport(user.UUID, req.Subject, priority)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		h.Logger.Info("report created", "report_id", report.UUID, "user_id", user.UUID, "priority", report.Priority)
		writeJSON(w, http.StatusCreated, report)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

// ReportByID serves a single report and its subresources.
func (h *Handler) ReportByID(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("report id missing"))
		return
	}
	reportID := parts[0]

	report, err := h.Store.ReportByUUID(reportID)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("report %s not found", reportID))
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, "GET")
			return
		}
		if !canViewReport(user, report) {
			writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "threads":
			if r.Method != http.MethodGet {
				methodNotAllowed(w, r, "GET")
				return
			}
			if !canViewReport(user, report) {
				writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
				return
			}
			writeJSON(w, http.StatusOK, h.Store.ThreadsForReport(reportID))
		case "messages":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r, "POST")
				return
			}
			if !canViewReport(user, report) {
				writeError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
				return
			}
			var req messageRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			updated, err := h.Store.AddReportMessage(reportID, user.UUID, req.Content)
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
			updated, err := h.Store.ResolveReport(reportID)
			if err != nil {
				writeError(w, reportErrorStatus(err), err)
				return
			}
			h.Logger.Info("report resolved", "report_id", reportID, "user_id", user.UUID)
			writeJSON(w, http.StatusOK, updated)
		case "assign":
			if r.Method != http.MethodPost {
				methodNotAllowed(w, r, "POST")
				return
			}
			if _, ok := h.requireAdmin(w, r); !ok {
				return
			}
			var req assignReportRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			updated, err := h.Store.AssignReport(reportID, req.EmployeeUUID)
			if err != nil {
				writeError(w, reportErrorStatus(err), err)
				return
			}
			h.Logger.Info("report assigned", "report_id", reportID, "employee_id", req.EmployeeUUID)
			writeJSON(w, http.StatusOK, updated)
		default:
			writeError(w, http.StatusNotFound, fmt.Errorf("unknown report resource %q", parts[1]))
		}
		return
	}

	writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
}

func reportErrorStatus(err error) int {
	if errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}
