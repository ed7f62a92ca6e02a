package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"childservice/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

var (
	// ErrMissingToken signals a request without an Authorization header.
	ErrMissingToken = errors.New("missing authorization header")
	// ErrMalformedToken signals an Authorization header that is not plain
	// printable text and therefore cannot be a token.
	ErrMalformedToken = errors.New("malformed authorization header")
)

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractToken returns the raw Authorization header value. Tokens are sent
// bare, without a Bearer prefix.
func ExtractToken(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Authorization"))
}

func printableToken(token string) bool {
	for _, r := range token {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// AuthenticateRequest resolves the bearer token on the request against the
// user map. A missing or unreadable header maps to 401, an unknown token to
// 403; the distinction is carried by the returned error.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, ErrMissingToken
	}
	if !printableToken(token) {
		return models.User{}, ErrMalformedToken
	}
	return h.Store.UserByToken(token)
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, fmt.Errorf("authentication required"))
		return models.User{}, false
	}
	return user, true
}

func (h *Handler) requireModerator(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return models.User{}, false
	}
	if !user.AccessLevel.CanModerate() {
		WriteError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
		return models.User{}, false
	}
	return user, true
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return models.User{}, false
	}
	if user.AccessLevel != models.AccessAdmin {
		WriteError(w, http.StatusForbidden, fmt.Errorf("forbidden"))
		return models.User{}, false
	}
	return user, true
}
