package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aabbtree77/headless/internal/auth"
	"github.com/aabbtree77/headless/internal/graphql"
	"github.com/aabbtree77/headless/internal/protect"
	"github.com/aabbtree77/headless/internal/store"
)

type stubCreds struct {
	user store.User
	err  error
}

func (s stubCreds) Login(context.Context, string, string) (store.User, error) {
	return s.user, s.err
}

type stubSessions struct {
	created []string
	deleted []string
	purged  int64
	err     error
}

func (s *stubSessions) Create(_ context.Context, userID int64, token string, expires time.Time) (store.Session, error) {
	if s.err != nil {
		return store.Session{}, s.err
	}
	s.created = append(s.created, token)
	return store.Session{UserID: userID, SessionToken: token, ExpiresAt: expires}, nil
}

func (s *stubSessions) DeleteByToken(_ context.Context, token string) error {
	s.deleted = append(s.deleted, token)
	return nil
}

func (s *stubSessions) DeleteExpired(context.Context, time.Time) (int64, error) {
	return s.purged, s.err
}

func newLogin(creds stubCreds, sess *stubSessions) *LoginHandler {
	return &LoginHandler{
		SiteName:    "Test",
		AdminPrefix: "/admin",
		Auth:        creds,
		Sessions:    sess,
		TTL:         time.Hour,
		Guards:      []protect.Guard{protect.NewBodySizeGuard(true, 256)},
	}
}

func TestLoginJSON(t *testing.T) {
	sess := &stubSessions{}
	h := newLogin(stubCreds{user: store.User{ID: 3, Username: "ann"}}, sess)

	r := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"username":"ann","password":"pw"}`))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"username":"ann"`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	if len(sess.created) != 1 || len(sess.created[0]) != auth.TokenByteLen*2 {
		t.Fatalf("session not created: %v", sess.created)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), auth.SessionCookieName+"="+sess.created[0]) {
		t.Fatalf("cookie: %q", w.Header().Get("Set-Cookie"))
	}
}

func TestLoginRejects(t *testing.T) {
	tests := []struct {
		name   string
		creds  stubCreds
		ct     string
		body   string
		status int
	}{
		{"bad json", stubCreds{}, "application/json", `{`, http.StatusBadRequest},
		{"unknown field", stubCreds{}, "application/json", `{"user":"a"}`, http.StatusBadRequest},
		{"missing password", stubCreds{}, "application/json", `{"username":"a"}`, http.StatusBadRequest},
		{"wrong password json", stubCreds{err: auth.ErrUnauthenticated}, "application/json", `{"username":"a","password":"b"}`, http.StatusUnauthorized},
		{"wrong password form", stubCreds{err: auth.ErrUnauthenticated}, "application/x-www-form-urlencoded", "username=a&password=b", http.StatusUnauthorized},
		{"store down", stubCreds{err: errors.New("boom")}, "application/json", `{"username":"a","password":"b"}`, http.StatusInternalServerError},
		{"too large", stubCreds{}, "application/json", `{"username":"` + strings.Repeat("a", 300) + `"}`, http.StatusRequestEntityTooLarge},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sess := &stubSessions{}
			h := newLogin(tc.creds, sess)
			r := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(tc.body))
			r.Header.Set("Content-Type", tc.ct)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tc.status {
				t.Fatalf("status %d, want %d: %s", w.Code, tc.status, w.Body.String())
			}
			if len(sess.created) != 0 {
				t.Fatal("session created on failure")
			}
		})
	}
}

func TestLoginFormRedirects(t *testing.T) {
	cases := map[string]string{
		"":                     "/admin/settings",
		"/admin/settings?x=1":  "/admin/settings?x=1",
		"https://evil.example": "/admin/settings",
		"/administrator":       "/admin/settings",
	}
	for redirectTo, want := range cases {
		h := newLogin(stubCreds{user: store.User{ID: 1}}, &stubSessions{})
		body := "username=a&password=b&redirect_to=" + strings.ReplaceAll(redirectTo, "?", "%3F")
		r := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != want {
			t.Fatalf("redirect_to %q: %d %q", redirectTo, w.Code, w.Header().Get("Location"))
		}
	}
}

func TestLoginFormPage(t *testing.T) {
	h := newLogin(stubCreds{}, &stubSessions{})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/login?redirect_to=/admin/settings", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `action="/admin/login"`) {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `value="/admin/settings"`) {
		t.Fatal("redirect_to not carried into the form")
	}
}

func TestLogout(t *testing.T) {
	sess := &stubSessions{}
	h := &LogoutHandler{AdminPrefix: "/admin", Sessions: sess}

	r := httptest.NewRequest(http.MethodPost, "/admin/logout", nil)
	r.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "tok"})
	r.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if w.Code != http.StatusOK || len(sess.deleted) != 1 || sess.deleted[0] != "tok" {
		t.Fatalf("got %d deleted=%v", w.Code, sess.deleted)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/logout", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET logout: %d", w.Code)
	}
}

func TestLegacyRPC(t *testing.T) {
	h := &LegacyRPCHandler{}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/xmlrpc.php", nil))
	if w.Code != http.StatusOK || w.Body.String() != "XML-RPC server accepts POST requests only." {
		t.Fatalf("GET: %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/xmlrpc.php", strings.NewReader("not xml")))
	if !strings.Contains(w.Body.String(), "<int>-32700</int>") {
		t.Fatalf("parse fault: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/xmlrpc.php",
		strings.NewReader("<methodCall><methodName>system.listMethods</methodName></methodCall>")))
	body := w.Body.String()
	if !strings.Contains(body, "<int>-32601</int>") || !strings.Contains(body, "system.listMethods") {
		t.Fatalf("method fault: %s", body)
	}
	if w.Header().Get("Content-Type") != "text/xml; charset=utf-8" {
		t.Fatalf("content-type %q", w.Header().Get("Content-Type"))
	}
}

func TestCron(t *testing.T) {
	sess := &stubSessions{purged: 2}
	w := httptest.NewRecorder()
	(&CronHandler{Sessions: sess}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cron", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("got %d", w.Code)
	}

	sess.err = errors.New("db down")
	w = httptest.NewRecorder()
	(&CronHandler{Sessions: sess}).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cron", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got %d", w.Code)
	}
}

type emptyPosts struct{}

func (emptyPosts) ListPublished(context.Context, int) ([]store.Post, error) { return nil, nil }

func TestQueryHandlerRequests(t *testing.T) {
	h := &QueryHandler{Executor: &graphql.Executor{Posts: nil}}

	tests := []struct {
		name   string
		method string
		target string
		ct     string
		body   string
		status int
		want   string
	}{
		{"get", http.MethodGet, "/graphql?query=%7B__typename%7D", "", "", http.StatusOK, `{"data":{"__typename":"Query"}}`},
		{"post json", http.MethodPost, "/graphql", "application/json", `{"query":"{__typename}"}`, http.StatusOK, `{"data":{"__typename":"Query"}}`},
		{"post graphql", http.MethodPost, "/graphql", "application/graphql", `{__typename}`, http.StatusOK, `{"data":{"__typename":"Query"}}`},
		{"empty", http.MethodGet, "/graphql", "", "", http.StatusBadRequest, ""},
		{"bad variables", http.MethodGet, "/graphql?query=%7B__typename%7D&variables=%5B", "", "", http.StatusBadRequest, ""},
		{"bad body", http.MethodPost, "/graphql", "application/json", `{`, http.StatusBadRequest, ""},
		{"put", http.MethodPut, "/graphql", "", "", http.StatusMethodNotAllowed, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
			if tc.ct != "" {
				r.Header.Set("Content-Type", tc.ct)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tc.status {
				t.Fatalf("status %d: %s", w.Code, w.Body.String())
			}
			if tc.want != "" && strings.TrimSpace(w.Body.String()) != tc.want {
				t.Fatalf("body %s", w.Body.String())
			}
		})
	}
}

func TestPageHandler(t *testing.T) {
	h := &PageHandler{SiteName: "Test", Posts: emptyPosts{}}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Nothing here yet.") {
		t.Fatalf("front: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing: %d", w.Code)
	}
}

func TestCreatePostNeedsUser(t *testing.T) {
	a := &DataAPI{
		Prefix: "/api",
		CreateGuards: []protect.Guard{
			protect.AuthenticatedGuard{Code: "rest_cannot_create", Message: "Sorry, you are not allowed to create posts as this user."},
		},
	}
	r := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"title":"x"}`))
	w := httptest.NewRecorder()
	a.CreatePost(w, r)
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "rest_cannot_create") {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
}
