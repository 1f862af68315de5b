package httpmw

import (
	"net/http"
	"net/url"
)

// DedupeParams collapses repeated query parameters to a single value so
// handlers never see `?id=1&id=2` style pollution. The last occurrence
// wins, matching what a client iterating its own params would observe.
// Keys on the whitelist (paging and filtering params that legitimately
// repeat) are left untouched.
func DedupeParams(whitelist ...string) func(http.Handler) http.Handler {
	keep := make(map[string]struct{}, len(whitelist))
	for _, k := range whitelist {
		keep[k] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery == "" {
				next.ServeHTTP(w, r)
				return
			}

			q, err := url.ParseQuery(r.URL.RawQuery)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			changed := false
			for k, vs := range q {
				if len(vs) <= 1 {
					continue
				}
				if _, ok := keep[k]; ok {
					continue
				}
				q[k] = vs[len(vs)-1:]
				changed = true
			}
			if changed {
				r.URL.RawQuery = q.Encode()
			}

			next.ServeHTTP(w, r)
		})
	}
}
