package httpmw

import (
	"net/http"
	"strings"
)

// CORSPolicy is the immutable cross-origin policy for the server. It is
// built once at startup from the deployment mode and origin allow-list and
// never consulted for mode again per request.
type CORSPolicy struct {
	// AllowedOrigins are matched exactly against the Origin header.
	AllowedOrigins []string
	// AllowAny echoes any origin back (development).
	AllowAny bool
	// OnRejected, if set, is called with the rejected origin (metrics).
	OnRejected func(origin string)

	allowed map[string]struct{}
}

const (
	corsAllowMethods  = "GET, POST, PUT, DELETE, PATCH, OPTIONS"
	corsAllowHeaders  = "Origin, X-Requested-With, Content-Type, Accept, Authorization, Cache-Control, X-API-Key"
	corsExposeHeaders = "X-Total-Count, X-Page-Count"
	corsMaxAge        = "86400"
)

// compile builds the lookup set. Called lazily so a zero-value policy works.
func (p *CORSPolicy) compile() {
	if p.allowed != nil {
		return
	}
	p.allowed = make(map[string]struct{}, len(p.AllowedOrigins))
	for _, o := range p.AllowedOrigins {
		p.allowed[o] = struct{}{}
	}
}

func (p *CORSPolicy) permits(origin string) bool {
	if p.AllowAny {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// CORS applies the policy. Requests without an Origin header (curl, mobile
// apps, server-to-server) pass through untouched. Allowed origins are
// echoed back with credentials enabled; preflights are answered here and
// never reach the router. Rejected origins get no Access-Control-* headers
// at all, which makes the browser refuse the response; the request itself
// still proceeds so non-browser clients are unaffected.
func CORS(policy CORSPolicy) func(http.Handler) http.Handler {
	policy.compile()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Responses differ by Origin from here on.
			w.Header().Add("Vary", "Origin")

			preflight := r.Method == http.MethodOptions &&
				r.Header.Get("Access-Control-Request-Method") != ""

			if !policy.permits(origin) {
				if policy.OnRejected != nil {
					policy.OnRejected(origin)
				}
				if preflight {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")

			if preflight {
				w.Header().Set("Access-Control-Allow-Methods", corsAllowMethods)
				w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			w.Header().Set("Access-Control-Expose-Headers", corsExposeHeaders)
			next.ServeHTTP(w, r)
		})
	}
}

// NormalizeOrigins trims whitespace and drops empty entries.
func NormalizeOrigins(origins []string) []string {
	out := origins[:0:0]
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
