package handlers

import (
	"context"
	"net/http"

	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/logger"
	"github.com/aabbtree77/headless/internal/store"
)

type PostLister interface {
	ListPublished(ctx context.Context, limit int) ([]store.Post, error)
}

// PageHandler is the HTML front end. Only the front page exists; every
// other path renders the not-found page.
type PageHandler struct {
	SiteName string
	Posts    PostLister
}

type frontPage struct {
	page
	Posts []store.Post
}

func (h *PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, "GET, HEAD")
		return
	}

	if r.URL.Path != "/" {
		render(w, http.StatusNotFound, "notfound", page{Title: "Page not found", SiteName: h.SiteName})
		return
	}

	posts, err := h.Posts.ListPublished(r.Context(), 10)
	if err != nil {
		logger.Error("list posts for front page", "err", err)
		httpx.InternalError(w, "cannot load posts")
		return
	}

	render(w, http.StatusOK, "front", frontPage{
		page:  page{Title: "Home", SiteName: h.SiteName},
		Posts: posts,
	})
}
