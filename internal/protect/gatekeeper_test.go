package protect

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aabbtree77/headless/internal/auth"
	"github.com/aabbtree77/headless/internal/config"
	"github.com/aabbtree77/headless/internal/settings"
	"github.com/aabbtree77/headless/internal/store"
)

type stubAuth struct {
	user  *store.User
	err   error
	calls int
}

func (s *stubAuth) Authenticate(*http.Request) (store.User, error) {
	s.calls++
	if s.err != nil {
		return store.User{}, s.err
	}
	if s.user == nil {
		return store.User{}, auth.ErrUnauthenticated
	}
	return *s.user, nil
}

type brokenStore struct{}

func (brokenStore) GetOption(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}
func (brokenStore) SetOption(context.Context, string, []byte) error { return nil }
func (brokenStore) AddOption(context.Context, string, []byte) (bool, error) {
	return false, nil
}

func testRoutes() config.RoutesConfig {
	return config.Default().Routes
}

type fixture struct {
	store   *settings.MemoryStore
	auth    *stubAuth
	gk      *Gatekeeper
	handler http.Handler
	reached int
}

func newFixture(t *testing.T, rec *settings.Record) *fixture {
	t.Helper()
	f := &fixture{store: settings.NewMemoryStore(), auth: &stubAuth{}}
	if rec != nil {
		if err := settings.Set(context.Background(), f.store, *rec); err != nil {
			t.Fatalf("seed settings: %v", err)
		}
	}
	f.gk = NewGatekeeper(f.store, f.auth, Classifier{Routes: testRoutes()})
	f.handler = f.gk.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.reached++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "reached")
	}))
	return f
}

func (f *fixture) do(method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func allOn() *settings.Record {
	rec := settings.Defaults()
	return &rec
}

func TestGatekeeperScenarios(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		accept      string
		status      int
		contentType string
		body        string
	}{
		{
			name:        "browser page",
			method:      http.MethodGet,
			target:      "/",
			accept:      "text/html",
			status:      http.StatusForbidden,
			contentType: "text/plain; charset=utf-8",
			body:        "This site is headless. Please use the API.",
		},
		{
			name:        "json page",
			method:      http.MethodGet,
			target:      "/hello-world",
			accept:      "application/json",
			status:      http.StatusForbidden,
			contentType: "application/json; charset=utf-8",
			body:        `{"message":"This site is headless. Please use the API."}`,
		},
		{
			name:        "data api root",
			method:      http.MethodGet,
			target:      "/api",
			status:      http.StatusUnauthorized,
			contentType: "application/json; charset=utf-8",
			body:        `{"code":"rest_cannot_access","message":"Only authenticated users can access the REST API.","data":{"status":401}}`,
		},
		{
			name:        "rest_route on the front page",
			method:      http.MethodGet,
			target:      "/?rest_route=/posts",
			accept:      "text/html",
			status:      http.StatusUnauthorized,
			contentType: "application/json; charset=utf-8",
			body:        `{"code":"rest_cannot_access","message":"Only authenticated users can access the REST API.","data":{"status":401}}`,
		},
		{
			name:        "graphql post",
			method:      http.MethodPost,
			target:      "/graphql",
			status:      http.StatusUnauthorized,
			contentType: "application/json; charset=utf-8",
			body:        `{"errors":[{"message":"Only authenticated users can access the GraphQL endpoint.","extensions":{"category":"authentication"}}]}`,
		},
		{
			name:        "graphql trailing slash",
			method:      http.MethodGet,
			target:      "/graphql/",
			status:      http.StatusUnauthorized,
			contentType: "application/json; charset=utf-8",
			body:        `{"errors":[{"message":"Only authenticated users can access the GraphQL endpoint.","extensions":{"category":"authentication"}}]}`,
		},
		{
			name:        "legacy rpc",
			method:      http.MethodPost,
			target:      "/xmlrpc.php",
			status:      http.StatusForbidden,
			contentType: "text/plain; charset=utf-8",
			body:        "XML-RPC is disabled on this site.",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, allOn())
			w := f.do(tc.method, tc.target, map[string]string{"Accept": tc.accept})

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %q)", w.Code, tc.status, w.Body.String())
			}
			if got := w.Header().Get("Content-Type"); got != tc.contentType {
				t.Fatalf("content-type = %q", got)
			}
			if got := w.Body.String(); got != tc.body {
				t.Fatalf("body = %q, want %q", got, tc.body)
			}
			if f.reached != 0 {
				t.Fatal("denied request reached the handler")
			}
		})
	}
}

func TestGatekeeperLegacyRPCSkipsAuthentication(t *testing.T) {
	f := newFixture(t, allOn())
	for i := 0; i < 3; i++ {
		w := f.do(http.MethodPost, "/xmlrpc.php", nil)
		if w.Code != http.StatusForbidden || w.Body.String() != "XML-RPC is disabled on this site." {
			t.Fatalf("attempt %d: %d %q", i, w.Code, w.Body.String())
		}
	}
	if f.auth.calls != 0 {
		t.Fatalf("authentication ran %d times before the legacy block", f.auth.calls)
	}
}

func TestGatekeeperAllowsThrough(t *testing.T) {
	tests := []struct {
		name   string
		rec    *settings.Record
		user   *store.User
		target string
		hdr    map[string]string
	}{
		{"admin page", allOn(), nil, "/admin/settings", nil},
		{"cron", allOn(), nil, "/cron", nil},
		{"authenticated api", allOn(), &store.User{ID: 1}, "/api/posts", nil},
		{"authenticated graphql", allOn(), &store.User{ID: 1}, "/graphql", nil},
		{"headless off", &settings.Record{ProtectDataAPI: true}, nil, "/", map[string]string{"Accept": "text/html"}},
		{"legacy rpc enabled", &settings.Record{}, nil, "/xmlrpc.php", nil},
		{"legacy rpc with headless mode", &settings.Record{HeadlessMode: true}, nil, "/xmlrpc.php", map[string]string{"Accept": "text/html"}},
		{"graphqlx is a page", &settings.Record{ProtectQueryAPI: true}, nil, "/graphqlx", nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.rec)
			f.auth.user = tc.user
			w := f.do(http.MethodGet, tc.target, tc.hdr)
			if w.Code != http.StatusOK || f.reached != 1 {
				t.Fatalf("status=%d reached=%d body=%q", w.Code, f.reached, w.Body.String())
			}
		})
	}
}

func TestGatekeeperBypassFilter(t *testing.T) {
	f := newFixture(t, allOn())
	f.gk.AddBypassFilter(PreviewTokenFilter("X-Headless-Preview", "tok"))

	if w := f.do(http.MethodGet, "/", map[string]string{"X-Headless-Preview": "tok"}); w.Code != http.StatusOK {
		t.Fatalf("preview not bypassed: %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/", map[string]string{"X-Headless-Preview": "nope"}); w.Code != http.StatusForbidden {
		t.Fatalf("wrong token bypassed: %d", w.Code)
	}

	// A later filter can revoke what an earlier one granted.
	f.gk.AddBypassFilter(func(*http.Request, bool) bool { return false })
	if w := f.do(http.MethodGet, "/", map[string]string{"X-Headless-Preview": "tok"}); w.Code != http.StatusForbidden {
		t.Fatalf("revoked bypass still applied: %d", w.Code)
	}
}

func TestGatekeeperBypassDoesNotCoverAPIs(t *testing.T) {
	f := newFixture(t, allOn())
	f.gk.AddBypassFilter(func(*http.Request, bool) bool { return true })

	if w := f.do(http.MethodGet, "/api/posts", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("bypass leaked into data api: %d", w.Code)
	}
	if w := f.do(http.MethodPost, "/xmlrpc.php", nil); w.Code != http.StatusForbidden {
		t.Fatalf("bypass leaked into legacy rpc: %d", w.Code)
	}
}

func TestGatekeeperNestedGraphQLPathIsAPage(t *testing.T) {
	f := newFixture(t, &settings.Record{HeadlessMode: true})
	w := f.do(http.MethodGet, "/blog/graphql", map[string]string{"Accept": "text/html"})
	if w.Code != http.StatusForbidden || w.Body.String() != "This site is headless. Please use the API." {
		t.Fatalf("nested graphql path: %d %q", w.Code, w.Body.String())
	}
	if f.reached != 0 {
		t.Fatal("blocked page reached the handler")
	}
}

func TestGatekeeperMissingSettings(t *testing.T) {
	f := newFixture(t, nil)
	if w := f.do(http.MethodGet, "/", nil); w.Code != http.StatusOK {
		t.Fatalf("absent settings must fail open, got %d", w.Code)
	}

	f.gk.FailClosed = true
	if w := f.do(http.MethodGet, "/", nil); w.Code != http.StatusForbidden {
		t.Fatalf("fail-closed gate let a page through: %d", w.Code)
	}
}

func TestGatekeeperCorruptSettingsFailOpen(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.store.SetOption(context.Background(), settings.OptionName, []byte("garbage"))
	if w := f.do(http.MethodGet, "/", nil); w.Code != http.StatusOK {
		t.Fatalf("corrupt settings must fail open, got %d", w.Code)
	}
}

func TestGatekeeperStoreErrorFailOpen(t *testing.T) {
	a := &stubAuth{}
	gk := NewGatekeeper(brokenStore{}, a, Classifier{Routes: testRoutes()})
	h := gk.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("store failure locked the site: %d", w.Code)
	}
}

func TestGatekeeperAuthErrorTreatedAsAnonymous(t *testing.T) {
	f := newFixture(t, allOn())
	f.auth.err = errors.New("db down")
	w := f.do(http.MethodGet, "/api/posts", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d", w.Code)
	}
}

func TestGatekeeperExposesState(t *testing.T) {
	s := settings.NewMemoryStore()
	_ = settings.Set(context.Background(), s, settings.Record{ProtectDataAPI: true})
	a := &stubAuth{user: &store.User{ID: 7, Username: "eve"}}
	gk := NewGatekeeper(s, a, Classifier{Routes: testRoutes()})

	var st *State
	h := gk.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st = FromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	h.ServeHTTP(httptest.NewRecorder(), r)

	if st == nil || !st.Settings.ProtectDataAPI || !st.Request.DataAPIRequest || !st.Request.Authenticated {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.User == nil || st.User.Username != "eve" {
		t.Fatalf("user not exposed: %+v", st.User)
	}
	if !strings.HasPrefix(st.Request.Path, "/api") {
		t.Fatalf("path = %q", st.Request.Path)
	}
}
