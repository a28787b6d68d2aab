package protect

import (
	"context"
	"errors"
	"net/http"

	"github.com/aabbtree77/headless/internal/auth"
	"github.com/aabbtree77/headless/internal/gate"
	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/logger"
	"github.com/aabbtree77/headless/internal/settings"
	"github.com/aabbtree77/headless/internal/store"
)

// Authenticator resolves the user behind a request. It returns
// auth.ErrUnauthenticated for anonymous requests.
type Authenticator interface {
	Authenticate(r *http.Request) (store.User, error)
}

// State is everything the Gatekeeper learned about a request. Handlers read
// it with FromContext instead of loading settings or sessions again.
type State struct {
	Settings settings.Record
	Request  gate.RequestContext
	User     *store.User
}

type stateKey struct{}

func withState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, stateKey{}, st)
}

// FromContext returns the request state, or nil outside the Gatekeeper.
func FromContext(ctx context.Context) *State {
	st, _ := ctx.Value(stateKey{}).(*State)
	return st
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (store.User, bool) {
	st := FromContext(ctx)
	if st == nil || st.User == nil {
		return store.User{}, false
	}
	return *st.User, true
}

// RuleGuard adapts a gate.Rule to a Guard. It reads its inputs from the
// request State, so it only works behind the Gatekeeper.
type RuleGuard struct {
	Rule gate.Rule
}

func (g RuleGuard) Name() string { return g.Rule.Name }

func (g RuleGuard) Check(w http.ResponseWriter, r *http.Request) bool {
	st := FromContext(r.Context())
	if st == nil {
		return true
	}
	d := g.Rule.Decide(st.Settings, st.Request)
	if d == nil {
		return true
	}
	logger.Debug("request denied",
		"guard", g.Rule.Name,
		"path", st.Request.Path,
		"status", d.Status,
	)
	httpx.WriteRaw(w, d.Status, d.ContentType, d.Body)
	return false
}

func ruleGuards(rules []gate.Rule) []Guard {
	out := make([]Guard, 0, len(rules))
	for _, r := range rules {
		out = append(out, RuleGuard{Rule: r})
	}
	return out
}

// Gatekeeper is the middleware that fronts the platform. Per request it
// loads the settings record once, classifies the request, runs the early
// guards, authenticates, resolves the bypass chain and runs the late guards.
type Gatekeeper struct {
	Settings   settings.Store
	Auth       Authenticator
	Classifier Classifier
	// FailClosed enables every protection when the record is absent or
	// unreadable. The default keeps a fresh or broken site reachable.
	FailClosed bool

	early   []Guard
	late    []Guard
	filters []BypassFilter
}

func NewGatekeeper(s settings.Store, a Authenticator, c Classifier) *Gatekeeper {
	return &Gatekeeper{
		Settings:   s,
		Auth:       a,
		Classifier: c,
		early:      ruleGuards(gate.Early),
		late:       ruleGuards(gate.Late),
	}
}

// AddBypassFilter appends f to the page-render bypass chain.
func (g *Gatekeeper) AddBypassFilter(f BypassFilter) {
	g.filters = append(g.filters, f)
}

func (g *Gatekeeper) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &State{
			Settings: g.load(r.Context()),
			Request:  g.Classifier.Classify(r),
		}
		r = r.WithContext(withState(r.Context(), st))

		if !Run(g.early, w, r) {
			return
		}

		if g.Auth != nil {
			u, err := g.Auth.Authenticate(r)
			switch {
			case err == nil:
				st.User = &u
				st.Request.Authenticated = true
			case !errors.Is(err, auth.ErrUnauthenticated):
				logger.Error("authenticate request", "path", st.Request.Path, "err", err)
			}
		}
		st.Request.BypassOverride = ApplyBypass(g.filters, r)

		if !Run(g.late, w, r) {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gatekeeper) load(ctx context.Context) settings.Record {
	rec, found, err := settings.Get(ctx, g.Settings)
	if err != nil {
		logger.Error("load headless settings", "err", err)
	}
	if err == nil && found {
		return rec
	}
	if g.FailClosed {
		return settings.Defaults()
	}
	return settings.Record{}
}
