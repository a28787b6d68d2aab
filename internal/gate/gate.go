// Package gate decides whether a request may proceed given the headless
// settings record and what the platform knows about the request.
//
// Rules are pure: they read a settings.Record and a RequestContext and
// either return nil (pass) or a Denial carrying the complete response.
// Writing the response is left to the HTTP layer.
package gate

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/aabbtree77/headless/internal/httpx"
	"github.com/aabbtree77/headless/internal/settings"
)

const (
	MsgHeadless   = "This site is headless. Please use the API."
	MsgDataAPI    = "Only authenticated users can access the REST API."
	MsgQueryAPI   = "Only authenticated users can access the GraphQL endpoint."
	MsgLegacyRPC  = "XML-RPC is disabled on this site."
	CodeDataAPI   = "rest_cannot_access"
	CategoryAuthn = "authentication"

	ContentTypeJSON = "application/json; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
)

// RequestContext is what the platform knows about one request.
type RequestContext struct {
	AdminContext     bool
	ScheduledTask    bool
	DataAPIRequest   bool
	QueryAPIRequest  bool
	LegacyRPCRequest bool
	Path             string
	Accept           string
	Authenticated    bool
	// BypassOverride is the result of the bypass filter chain.
	BypassOverride bool
}

// Denial is a finished response. Nothing else runs for the request.
type Denial struct {
	Rule        string
	Status      int
	ContentType string
	Body        []byte
}

// Rule is one ordered guard.
type Rule struct {
	Name   string
	Decide func(settings.Record, RequestContext) *Denial
}

// Early runs before the platform does any other work for the request,
// authentication included.
var Early = []Rule{LegacyRPC}

// Late runs once the request has been classified and authenticated.
var Late = []Rule{PageRender, DataAPI, QueryAPI}

var (
	LegacyRPC  = Rule{Name: "legacy-rpc", Decide: decideLegacyRPC}
	PageRender = Rule{Name: "page-render", Decide: decidePageRender}
	DataAPI    = Rule{Name: "data-api-auth", Decide: decideDataAPI}
	QueryAPI   = Rule{Name: "query-api-auth", Decide: decideQueryAPI}
)

// Evaluate returns the first denial produced by rules, or nil.
func Evaluate(rules []Rule, rec settings.Record, rc RequestContext) *Denial {
	for _, r := range rules {
		if d := r.Decide(rec, rc); d != nil {
			if d.Rule == "" {
				d.Rule = r.Name
			}
			return d
		}
	}
	return nil
}

// Decide runs the full procedure, early stage first.
func Decide(rec settings.Record, rc RequestContext) *Denial {
	if d := Evaluate(Early, rec, rc); d != nil {
		return d
	}
	return Evaluate(Late, rec, rc)
}

var queryPath = regexp.MustCompile(`/graphql/?$`)

// IsQueryPath reports whether path addresses the query endpoint.
func IsQueryPath(path string) bool {
	return queryPath.MatchString(path)
}

// AcceptsJSON reports whether an Accept header asks for JSON.
func AcceptsJSON(accept string) bool {
	return strings.Contains(accept, "application/json")
}

func decidePageRender(rec settings.Record, rc RequestContext) *Denial {
	if !rec.HeadlessMode || rc.BypassOverride {
		return nil
	}
	// API traffic is judged only by its own guards.
	if rc.AdminContext || rc.ScheduledTask || rc.DataAPIRequest || rc.QueryAPIRequest || rc.LegacyRPCRequest {
		return nil
	}

	if AcceptsJSON(rc.Accept) {
		return jsonDenial(http.StatusForbidden, MessageBody{Message: MsgHeadless})
	}
	return textDenial(http.StatusForbidden, MsgHeadless)
}

func decideDataAPI(rec settings.Record, rc RequestContext) *Denial {
	if !rc.DataAPIRequest || !rec.ProtectDataAPI || rc.Authenticated {
		return nil
	}
	status := AuthorizationRequiredStatus(rc.Authenticated)
	return jsonDenial(status, httpx.APIError{
		Code:    CodeDataAPI,
		Message: MsgDataAPI,
		Data:    httpx.APIErrorData{Status: status},
	})
}

func decideQueryAPI(rec settings.Record, rc RequestContext) *Denial {
	if !rec.ProtectQueryAPI || rc.Authenticated || !IsQueryPath(rc.Path) {
		return nil
	}
	return jsonDenial(http.StatusUnauthorized, QueryErrors{
		Errors: []QueryError{{
			Message:    MsgQueryAPI,
			Extensions: QueryErrorExtensions{Category: CategoryAuthn},
		}},
	})
}

func decideLegacyRPC(rec settings.Record, rc RequestContext) *Denial {
	if !rec.DisableLegacyRPC || !rc.LegacyRPCRequest {
		return nil
	}
	return textDenial(http.StatusForbidden, MsgLegacyRPC)
}

// AuthorizationRequiredStatus is the data-API status for a request that
// lacks permission: 401 when nobody is logged in, 403 otherwise.
func AuthorizationRequiredStatus(authenticated bool) int {
	if authenticated {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

func jsonDenial(status int, v any) *Denial {
	body, err := json.Marshal(v)
	if err != nil {
		// Every payload here is a fixed struct of strings and ints.
		panic("gate: marshal denial: " + err.Error())
	}
	return &Denial{Status: status, ContentType: ContentTypeJSON, Body: body}
}

func textDenial(status int, msg string) *Denial {
	return &Denial{Status: status, ContentType: ContentTypeText, Body: []byte(msg)}
}
