package server

import (
	"net/http"
	"strings"

	"github.com/aabbtree77/headless/internal/auth"
	"github.com/aabbtree77/headless/internal/config"
	"github.com/aabbtree77/headless/internal/graphql"
	"github.com/aabbtree77/headless/internal/handlers"
	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/protect"
	"github.com/aabbtree77/headless/internal/store"
)

// maxAPIBodyBytes caps data API and query API request bodies.
const maxAPIBodyBytes = 1 << 20

// Server is the platform's root handler: the Gatekeeper in front of the
// route table.
type Server struct {
	handler http.Handler
}

// New wires repositories, the Gatekeeper and every route.
func New(db *store.DB, cfg *config.Config) *Server {
	users := store.NewUserRepo(db)
	sessions := store.NewSessionRepo(db)
	options := store.NewOptionRepo(db)

	authn := auth.NewAuthenticator(users, sessions)

	gk := protect.NewGatekeeper(options, authn, protect.Classifier{Routes: cfg.Routes})
	gk.FailClosed = cfg.FailClosed()
	if cfg.Bypass.PreviewToken != "" {
		gk.AddBypassFilter(protect.PreviewTokenFilter(cfg.Bypass.PreviewHeader, cfg.Bypass.PreviewToken))
	}

	mux := http.NewServeMux()
	RegisterRoutes(mux, db, cfg, authn)

	return &Server{
		handler: logRequests(gk.Wrap(restRoute(cfg.Routes.DataAPIPrefix, mux))),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RegisterRoutes binds all HTTP routes to the stdlib mux.
func RegisterRoutes(mux *http.ServeMux, db *store.DB, cfg *config.Config, authn *auth.Authenticator) {
	sessions := store.NewSessionRepo(db)
	options := store.NewOptionRepo(db)
	posts := store.NewPostRepo(db)
	routes := cfg.Routes

	// ────────────────────────────────────────
	// Pages
	// ────────────────────────────────────────

	mux.Handle("/", &handlers.PageHandler{
		SiteName: cfg.SiteName,
		Posts:    posts,
	})

	// ────────────────────────────────────────
	// Data API
	// ────────────────────────────────────────

	apiBody := protect.NewBodySizeGuard(true, maxAPIBodyBytes)

	api := &handlers.DataAPI{
		SiteName:     cfg.SiteName,
		Prefix:       routes.DataAPIPrefix,
		Posts:        posts,
		CreateGuards: []protect.Guard{
			protect.AuthenticatedGuard{
				Code:    "rest_cannot_create",
				Message: "Sorry, you are not allowed to create posts as this user.",
			},
			apiBody,
		},
	}

	p := routes.DataAPIPrefix
	mux.HandleFunc("GET "+p, api.Index)
	mux.HandleFunc("GET "+p+"/{$}", api.Index)
	mux.HandleFunc("GET "+p+"/posts", api.ListPosts)
	mux.HandleFunc("POST "+p+"/posts", api.CreatePost)
	mux.HandleFunc("GET "+p+"/posts/{id}", api.GetPost)
	mux.Handle("GET "+p+"/users/me", &handlers.ProfileHandler{})
	mux.HandleFunc(p+"/", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteAPIError(w, http.StatusNotFound, "rest_no_route", "No route was found matching the URL and request method.")
	})

	// ────────────────────────────────────────
	// Query API
	// ────────────────────────────────────────

	query := &handlers.QueryHandler{
		Executor: &graphql.Executor{Posts: posts},
		Guards:   []protect.Guard{apiBody},
	}
	mux.Handle(protect.QueryPath, query)
	mux.Handle(protect.QueryPath+"/{$}", query)

	// ────────────────────────────────────────
	// Legacy RPC and scheduled tasks
	// ────────────────────────────────────────

	rpc := &handlers.LegacyRPCHandler{
		Guards: []protect.Guard{protect.NewBodySizeGuard(true, maxAPIBodyBytes)},
	}
	mux.Handle(routes.LegacyRPCPath, rpc)
	mux.Handle(routes.LegacyRPCPath+"/{$}", rpc)

	cron := &handlers.CronHandler{Sessions: sessions}
	mux.Handle(routes.CronPath, cron)
	mux.Handle(routes.CronPath+"/{$}", cron)

	// ────────────────────────────────────────
	// Admin
	// ────────────────────────────────────────

	a := routes.AdminPrefix
	adminOnly := protect.AdminGuard{LoginPath: a + "/login"}

	loginIPR := protect.NewIPRateGuard(protect.IPRateLimiterConfig{
		Enable:      cfg.Login.IPRateLimiter.Enable,
		MaxRequests: cfg.Login.IPRateLimiter.MaxRequests,
		Window:      cfg.Login.IPRateLimiter.Window(),
	})

	loginBody := protect.NewBodySizeGuard(
		cfg.Login.RBodySizeLimiter.Enable,
		cfg.Login.RBodySizeLimiter.MaxRBodyBytes,
	)

	mux.Handle(a+"/login", &handlers.LoginHandler{
		SiteName:    cfg.SiteName,
		AdminPrefix: a,
		Auth:        authn,
		Sessions:    sessions,
		TTL:         cfg.Session.TTL(),
		Guards:      []protect.Guard{loginIPR, loginBody},
	})

	mux.Handle(a+"/logout", &handlers.LogoutHandler{
		AdminPrefix: a,
		Sessions:    sessions,
		Guards:      []protect.Guard{loginBody},
	})

	mux.Handle(a+"/settings", &handlers.SettingsPageHandler{
		SiteName:    cfg.SiteName,
		AdminPrefix: a,
		Settings:    options,
		Guards:      []protect.Guard{adminOnly},
	})

	mux.Handle(a+"/options", &handlers.OptionsHandler{
		AdminPrefix: a,
		Settings:    options,
		Guards:      []protect.Guard{adminOnly, loginBody},
	})

	toSettings := http.RedirectHandler(a+"/settings", http.StatusFound)
	mux.Handle(a, toSettings)
	mux.Handle(a+"/{$}", toSettings)
}

// restRoute maps ?rest_route=/x on any path onto <prefix>/x so the data API
// handlers see one URL shape.
func restRoute(prefix string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has(protect.RestRouteParam) {
			next.ServeHTTP(w, r)
			return
		}

		route := strings.Trim(q.Get(protect.RestRouteParam), "/")
		q.Del(protect.RestRouteParam)

		u := *r.URL
		u.Path = prefix
		if route != "" {
			u.Path += "/" + route
		}
		u.RawPath = ""
		u.RawQuery = q.Encode()

		r2 := r.WithContext(r.Context())
		r2.URL = &u
		next.ServeHTTP(w, r2)
	})
}
