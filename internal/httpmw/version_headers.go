package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// VersionInfo provides build identity for response headers.
type VersionInfo interface {
	AppVersion() string
	GitCommit() string
}

// VersionHeaders adds X-Api-Version and X-Api-Commit headers to all
// responses and enriches the current trace span with the same identity.
func VersionHeaders(info VersionInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if info != nil {
				v := info.AppVersion()
				c := info.GitCommit()
				if v != "" {
					w.Header().Set("X-Api-Version", v)
				}
				if c != "" {
					// short commit for the header
					if len(c) > 12 {
						c = c[:12]
					}
					w.Header().Set("X-Api-Commit", c)
				}
				if span := trace.SpanFromContext(r.Context()); span != nil && span.IsRecording() {
					if v != "" {
						span.SetAttributes(attribute.String("service.version", v))
					}
					if c != "" {
						span.SetAttributes(attribute.String("service.commit", c))
					}
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
