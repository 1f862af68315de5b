package httpmw

import (
	"bytes"
	"encoding/json"
	"errors"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Sanitize HTML-escapes string values in query parameters and JSON request
// bodies before they reach handlers. Escaping happens in place: handlers
// and the validation layer only ever see the neutralized values, so a
// stored "<script>" payload round-trips as inert text.
//
// Non-JSON bodies and bodies that fail to decode pass through untouched;
// the decode failure then surfaces downstream as a validation error.
func Sanitize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "" {
			if q, err := url.ParseQuery(r.URL.RawQuery); err == nil {
				out := make(url.Values, len(q))
				for k, vs := range q {
					ek := html.EscapeString(k)
					for _, v := range vs {
						out.Add(ek, html.EscapeString(v))
					}
				}
				r.URL.RawQuery = out.Encode()
			}
		}

		if hasJSONBody(r) {
			body, err := io.ReadAll(r.Body)
			r.Body.Close()
			if err != nil {
				status := http.StatusBadRequest
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					status = http.StatusRequestEntityTooLarge
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			var v any
			if json.Unmarshal(body, &v) == nil {
				if escaped, err := json.Marshal(escapeValue(v)); err == nil {
					body = escaped
				}
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
		}

		next.ServeHTTP(w, r)
	})
}

func hasJSONBody(r *http.Request) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return false
	}
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct) == "application/json"
}

// escapeValue walks a decoded JSON value and escapes every string,
// including object keys.
func escapeValue(v any) any {
	switch t := v.(type) {
	case string:
		return html.EscapeString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[html.EscapeString(k)] = escapeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = escapeValue(val)
		}
		return out
	default:
		return v
	}
}
