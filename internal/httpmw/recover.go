package httpmw

import (
	"net/http"

	"github.com/pospon/api/internal/log"
	"github.com/pospon/api/internal/xerrors"
)

// Recover converts handler panics into 500 responses instead of torn
// connections. The panic value is logged with a stack; onPanic (optional)
// is invoked for metrics.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if onPanic != nil {
					onPanic()
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.WithStack(e)
				} else {
					err = xerrors.Newf("panic: %v", rec)
				}

				logger.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				).Error(r.Context(), err, "httpserver panic recovered")

				// same envelope the API error handler writes, with no
				// detail about what went wrong
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"success":false,"message":"Internal Server Error","error":"Internal Server Error","statusCode":500}`))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
