package protect

import (
	"net/http"
	"strings"

	"github.com/aabbtree77/headless/internal/config"
	"github.com/aabbtree77/headless/internal/gate"
)

// QueryPath is the routed query API endpoint.
const QueryPath = "/graphql"

// RestRouteParam addresses the data API from any path, e.g. /?rest_route=/posts.
const RestRouteParam = "rest_route"

// Classifier derives the path-based parts of a gate.RequestContext.
// Authentication and bypass are filled in later by the Gatekeeper.
type Classifier struct {
	Routes config.RoutesConfig
}

func (c Classifier) Classify(r *http.Request) gate.RequestContext {
	p := r.URL.Path
	return gate.RequestContext{
		AdminContext:     underPrefix(p, c.Routes.AdminPrefix),
		ScheduledTask:    samePath(p, c.Routes.CronPath),
		DataAPIRequest:   underPrefix(p, c.Routes.DataAPIPrefix) || r.URL.Query().Has(RestRouteParam),
		QueryAPIRequest:  samePath(p, QueryPath),
		LegacyRPCRequest: samePath(p, c.Routes.LegacyRPCPath),
		Path:             p,
		Accept:           r.Header.Get("Accept"),
	}
}

func samePath(p, want string) bool {
	if want == "" {
		return false
	}
	return p == want || p == want+"/"
}

func underPrefix(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}
