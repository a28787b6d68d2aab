package protect

import "net/http"

/*

Guard is a "request gate", an interface implemented by each protection mechanism in this
package: the headless rules (legacy RPC, page render, data API, query API) as well as the
login limiters (ip rate, request body size).

Having this single type we can iterate over or compose an ordered chain of guards, either in
the Gatekeeper middleware that fronts the whole platform or inside individual handlers such as
the admin login.

The return value of Check signals whether the request should continue (true) or stop (false).

Writing the response (403, 401, 429, etc.) is the guard's responsibility if it returns false.

*/

type Guard interface {
	Check(w http.ResponseWriter, r *http.Request) bool
}

// Run applies guards in order and reports whether the request survived all of them.
func Run(guards []Guard, w http.ResponseWriter, r *http.Request) bool {
	for _, g := range guards {
		if !g.Check(w, r) {
			return false
		}
	}
	return true
}
