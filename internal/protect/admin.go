package protect

import (
	"net/http"
	"net/url"

	"github.com/aabbtree77/headless/internal/httpx"
)

// AdminGuard lets through users with the admin role. Anonymous callers are
// sent to LoginPath; authenticated non-admins get a 403.
type AdminGuard struct {
	LoginPath string
}

func (g AdminGuard) Name() string { return "admin-only" }

func (g AdminGuard) Check(w http.ResponseWriter, r *http.Request) bool {
	u, ok := UserFromContext(r.Context())
	if !ok {
		target := g.LoginPath + "?redirect_to=" + url.QueryEscape(r.URL.RequestURI())
		http.Redirect(w, r, target, http.StatusSeeOther)
		return false
	}
	if !u.IsAdmin() {
		httpx.WriteText(w, http.StatusForbidden, "Sorry, you are not allowed to manage options for this site.")
		return false
	}
	return true
}

// AuthenticatedGuard answers anonymous data API calls with the API error
// envelope, whatever the data API protection setting says. Post creation
// runs behind it.
type AuthenticatedGuard struct {
	Code    string
	Message string
}

func (g AuthenticatedGuard) Name() string { return "authenticated" }

func (g AuthenticatedGuard) Check(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := UserFromContext(r.Context()); ok {
		return true
	}
	httpx.WriteAPIError(w, http.StatusUnauthorized, g.Code, g.Message)
	return false
}
