package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/logger"
)

type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CronHandler runs the scheduled housekeeping tasks.
type CronHandler struct {
	Sessions SessionPurger
	Now      func() time.Time
}

func (h *CronHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		methodNotAllowed(w, "GET, POST")
		return
	}

	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	n, err := h.Sessions.DeleteExpired(r.Context(), now())
	if err != nil {
		logger.Error("purge expired sessions", "err", err)
		httpx.InternalError(w, "cron failed")
		return
	}
	if n > 0 {
		logger.Info("purged expired sessions", "count", n)
	}
	w.WriteHeader(http.StatusNoContent)
}
