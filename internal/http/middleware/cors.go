package middleware

import (
	"net/http"
	"strings"
)

// CORS grants the gateway's HTTP surface to configured web-app origins.
// Snapshot reads and action posts are called cross-origin from the browser;
// the websocket feed is not governed by CORS at all (upgrade handshakes sit
// outside the protocol), which is why the feed authenticates with a query
// token instead of a header.
//
// "*" in the list echoes any caller's origin back; otherwise grants are
// exact-match only.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin != "" && policy.grants(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID")
				h.Set("Access-Control-Max-Age", "600")
			}

			if isPreflight(r) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isPreflight matches the browser's OPTIONS check ahead of a cross-origin
// call. A preflight from an ungranted origin still ends here, just without
// grant headers; the browser enforces the denial.
func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

type originPolicy struct {
	any   bool
	exact map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: make(map[string]struct{})}
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			p.any = true
		default:
			p.exact[origin] = struct{}{}
		}
	}
	return p
}

func (p originPolicy) grants(origin string) bool {
	if p.any {
		return true
	}
	_, ok := p.exact[origin]
	return ok
}
