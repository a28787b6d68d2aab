package protect

import (
	"errors"
	"net/http"

	"github.com/aabbtree77/headless/internal/httpx"
)

// BodySizeGuard caps request bodies. A declared length over the limit is
// refused outright; otherwise the body reader is capped and the handler
// sees a *http.MaxBytesError once it reads past the limit.
type BodySizeGuard struct {
	enable bool
	limit  int64
}

func NewBodySizeGuard(enable bool, limit int64) *BodySizeGuard {
	return &BodySizeGuard{enable: enable, limit: limit}
}

func (g *BodySizeGuard) Name() string { return "body-size-limit" }

func (g *BodySizeGuard) Check(w http.ResponseWriter, r *http.Request) bool {
	if !g.enable || g.limit <= 0 || r.Body == nil || r.Body == http.NoBody {
		return true
	}
	if r.ContentLength > g.limit {
		httpx.PayloadTooLarge(w)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, g.limit)
	return true
}

// IsPayloadTooLarge reports whether err came from reading past the cap.
func IsPayloadTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
