package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/logger"
	"github.com/aabbtree77/headless/internal/protect"
	"github.com/aabbtree77/headless/internal/store"
)

const defaultPerPage = 10

type PostStore interface {
	PostLister
	Get(ctx context.Context, id uuid.UUID) (store.Post, error)
	Create(ctx context.Context, p store.CreatePostParams) (store.Post, error)
}

// DataAPI serves the JSON data API. Whether anonymous callers get this far
// is the Gatekeeper's decision. CreateGuards must include a check that a
// user is signed in.
type DataAPI struct {
	SiteName string
	Prefix   string
	Posts    PostStore
	// CreateGuards run before a post is created.
	CreateGuards []protect.Guard
}

type PostJSON struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Status string `json:"status"`
	Title  string `json:"title"`
	Body   string `json:"content"`
	Author *int64 `json:"author,omitempty"`
}

func toPostJSON(p store.Post) PostJSON {
	return PostJSON{
		ID:     p.ID.String(),
		Date:   p.CreatedAt.UTC().Format(time.RFC3339),
		Status: p.Status,
		Title:  p.Title,
		Body:   p.Body,
		Author: p.AuthorID,
	}
}

type CreatePostInput struct {
	Title  string `json:"title"`
	Body   string `json:"content"`
	Status string `json:"status"`
}

// Index describes the API.
func (a *DataAPI) Index(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"name": a.SiteName,
		"routes": []string{
			a.Prefix,
			a.Prefix + "/posts",
			a.Prefix + "/posts/{id}",
			a.Prefix + "/users/me",
		},
	})
}

func (a *DataAPI) ListPosts(w http.ResponseWriter, r *http.Request) {
	perPage := defaultPerPage
	if v := r.URL.Query().Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			httpx.WriteAPIError(w, http.StatusBadRequest, "rest_invalid_param", "Invalid parameter(s): per_page")
			return
		}
		perPage = n
	}

	posts, err := a.Posts.ListPublished(r.Context(), perPage)
	if err != nil {
		logger.Error("list posts", "err", err)
		httpx.WriteAPIError(w, http.StatusInternalServerError, "rest_internal_error", "Cannot list posts.")
		return
	}

	out := make([]PostJSON, 0, len(posts))
	for _, p := range posts {
		out = append(out, toPostJSON(p))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// GetPost returns one post. Drafts are only visible to signed-in users.
func (a *DataAPI) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteAPIError(w, http.StatusNotFound, "rest_post_invalid_id", "Invalid post ID.")
		return
	}

	p, err := a.Posts.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		httpx.WriteAPIError(w, http.StatusNotFound, "rest_post_invalid_id", "Invalid post ID.")
		return
	}
	if err != nil {
		logger.Error("get post", "id", id, "err", err)
		httpx.WriteAPIError(w, http.StatusInternalServerError, "rest_internal_error", "Cannot load post.")
		return
	}
	if _, ok := protect.UserFromContext(r.Context()); !ok && p.Status != store.PostPublished {
		httpx.WriteAPIError(w, http.StatusNotFound, "rest_post_invalid_id", "Invalid post ID.")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, toPostJSON(p))
}

func (a *DataAPI) CreatePost(w http.ResponseWriter, r *http.Request) {
	if !protect.Run(a.CreateGuards, w, r) {
		return
	}

	user, _ := protect.UserFromContext(r.Context())

	var in CreatePostInput
	if err := decodeJSON(r, &in); err != nil {
		if protect.IsPayloadTooLarge(err) {
			httpx.PayloadTooLarge(w)
			return
		}
		httpx.WriteAPIError(w, http.StatusBadRequest, "rest_invalid_json", "Invalid JSON body passed.")
		return
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		httpx.WriteAPIError(w, http.StatusBadRequest, "rest_invalid_param", "Invalid parameter(s): title")
		return
	}
	switch in.Status {
	case "":
		in.Status = store.PostDraft
	case store.PostDraft, store.PostPublished:
	default:
		httpx.WriteAPIError(w, http.StatusBadRequest, "rest_invalid_param", "Invalid parameter(s): status")
		return
	}

	author := user.ID
	p, err := a.Posts.Create(r.Context(), store.CreatePostParams{
		AuthorID: &author,
		Title:    in.Title,
		Body:     in.Body,
		Status:   in.Status,
	})
	if err != nil {
		logger.Error("create post", "err", err)
		httpx.WriteAPIError(w, http.StatusInternalServerError, "rest_internal_error", "Cannot create post.")
		return
	}

	logger.Info("post created", "id", p.ID, "author", user.Username, "status", p.Status)
	httpx.Created(w, toPostJSON(p))
}
