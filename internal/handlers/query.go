package handlers

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/aabbtree77/headless/internal/graphql"
	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/protect"
)

// QueryHandler serves the query language endpoint over GET and POST.
type QueryHandler struct {
	Executor *graphql.Executor
	Guards   []protect.Guard
}

func (h *QueryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !protect.Run(h.Guards, w, r) {
		return
	}

	var req graphql.Request
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req.Query = q.Get("query")
		req.OperationName = q.Get("operationName")
		if v := q.Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &req.Variables); err != nil {
				httpx.BadRequest(w, "variables must be a JSON object")
				return
			}
		}
	case http.MethodPost:
		mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mt == "application/graphql" {
			b, err := io.ReadAll(r.Body)
			if err != nil {
				h.bodyError(w, err)
				return
			}
			req.Query = string(b)
			break
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.bodyError(w, err)
			return
		}
	default:
		methodNotAllowed(w, "GET, POST")
		return
	}

	if req.Query == "" {
		httpx.BadRequest(w, "query is required")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, h.Executor.Execute(r.Context(), req))
}

func (h *QueryHandler) bodyError(w http.ResponseWriter, err error) {
	if protect.IsPayloadTooLarge(err) {
		httpx.PayloadTooLarge(w)
		return
	}
	httpx.BadRequest(w, "invalid request body")
}
