package handlers

import (
	"net/http"

	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/protect"
)

// ProfileHandler returns the signed-in user. It is served under the data
// API as /users/me.
type ProfileHandler struct {
	Guards []protect.Guard
}

func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	if !protect.Run(h.Guards, w, r) {
		return
	}

	h.profile(w, r)
}

func (h *ProfileHandler) profile(w http.ResponseWriter, r *http.Request) {
	user, ok := protect.UserFromContext(r.Context())
	if !ok {
		httpx.WriteAPIError(w, http.StatusUnauthorized, "rest_not_logged_in", "You are not currently logged in.")
		return
	}

	// Safe user info only.
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"role":     user.Role,
		"created":  user.CreatedAt,
	})
}
