package handlers

import (
	"context"
	"net/http"

	"github.com/aabbtree77/headless/internal/auth"
	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/logger"
	"github.com/aabbtree77/headless/internal/protect"
)

type SessionDeleter interface {
	DeleteByToken(ctx context.Context, token string) error
}

type LogoutHandler struct {
	AdminPrefix string
	Sessions    SessionDeleter
	Guards      []protect.Guard
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if !protect.Run(h.Guards, w, r) {
		return
	}

	h.logout(w, r)
}

// logout deletes the session and clears the cookie. It is idempotent.
func (h *LogoutHandler) logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(auth.SessionCookieName); err == nil && c.Value != "" {
		if err := h.Sessions.DeleteByToken(r.Context(), c.Value); err != nil {
			logger.Warn("delete session on logout", "err", err)
		}
	}
	auth.ClearSessionCookie(w, r)

	if isJSON(r) || r.Header.Get("Accept") == "application/json" {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"message": "logged out",
		})
		return
	}
	http.Redirect(w, r, h.AdminPrefix+"/login", http.StatusSeeOther)
}
