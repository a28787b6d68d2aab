package protect

import (
	"crypto/subtle"
	"net/http"
)

// BypassFilter is one link of the page-render bypass chain. It receives the
// value produced by the previous filters and returns the new one, so a later
// filter can both grant and revoke a bypass.
type BypassFilter func(r *http.Request, bypass bool) bool

// ApplyBypass runs filters in registration order starting from false.
func ApplyBypass(filters []BypassFilter, r *http.Request) bool {
	bypass := false
	for _, f := range filters {
		bypass = f(r, bypass)
	}
	return bypass
}

// PreviewTokenFilter grants a bypass to requests that present token in the
// named header, for preview tools rendering unpublished pages.
func PreviewTokenFilter(header, token string) BypassFilter {
	return func(r *http.Request, bypass bool) bool {
		if bypass || token == "" {
			return bypass
		}
		got := r.Header.Get(header)
		return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
	}
}
