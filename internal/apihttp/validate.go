package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pospon/api/internal/schema"
)

type validatedKey struct{}

// Validated returns the sanitized data stored by a validation
// middleware, or nil when no validation ran on this request.
func Validated(ctx context.Context) map[string]any {
	if m, ok := ctx.Value(validatedKey{}).(map[string]any); ok {
		return m
	}
	return nil
}

// Validator builds validation middleware. OnFailure, when set, is
// called with the schema name every time a request is rejected.
type Validator struct {
	OnFailure func(schemaName string)
}

func (v *Validator) fail(w http.ResponseWriter, name string, details []schema.FieldError) {
	if v.OnFailure != nil {
		v.OnFailure(name)
	}
	WriteValidationError(w, details)
}

// Body validates the JSON request body against s. On success the
// sanitized result is stored in the request context and the body is
// replaced with its re-encoding, so handlers and any downstream reader
// see only normalized data.
func (v *Validator) Body(s schema.Schema) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, ErrorBody{
					Success:    false,
					Message:    "Internal Server Error",
					Error:      "Internal Server Error",
					StatusCode: http.StatusInternalServerError,
				})
				return
			}
			r.Body.Close()

			in := map[string]any{}
			if len(bytes.TrimSpace(raw)) > 0 {
				if err := json.Unmarshal(raw, &in); err != nil {
					v.fail(w, s.Name, []schema.FieldError{{
						Field:   "body",
						Message: "Invalid JSON payload",
						Code:    schema.CodeInvalidType,
					}})
					return
				}
			}

			out, issues := s.Validate(in)
			if len(issues) > 0 {
				v.fail(w, s.Name, issues)
				return
			}

			clean, err := json.Marshal(out)
			if err != nil {
				clean = raw
			}
			r.Body = io.NopCloser(bytes.NewReader(clean))
			r.ContentLength = int64(len(clean))

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), validatedKey{}, out)))
		})
	}
}

// Query validates query parameters against s. Repeated keys collapse
// to their last value, matching the parameter dedupe stage.
func (v *Validator) Query(s schema.Schema) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			in := map[string]any{}
			for k, vs := range r.URL.Query() {
				if len(vs) > 0 {
					in[k] = vs[len(vs)-1]
				}
			}

			out, issues := s.Validate(in)
			if len(issues) > 0 {
				v.fail(w, s.Name, issues)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), validatedKey{}, out)))
		})
	}
}

// Params validates chi route parameters against s.
func (v *Validator) Params(s schema.Schema) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			in := map[string]any{}
			if rc := chi.RouteContext(r.Context()); rc != nil {
				for i, k := range rc.URLParams.Keys {
					if k == "*" {
						continue
					}
					in[k] = rc.URLParams.Values[i]
				}
			}

			out, issues := s.Validate(in)
			if len(issues) > 0 {
				v.fail(w, s.Name, issues)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), validatedKey{}, out)))
		})
	}
}

// ValidateBody validates the request body without a failure hook.
func ValidateBody(s schema.Schema) func(http.Handler) http.Handler {
	return (&Validator{}).Body(s)
}

// ValidateQuery validates query parameters without a failure hook.
func ValidateQuery(s schema.Schema) func(http.Handler) http.Handler {
	return (&Validator{}).Query(s)
}

// ValidateParams validates route parameters without a failure hook.
func ValidateParams(s schema.Schema) func(http.Handler) http.Handler {
	return (&Validator{}).Params(s)
}
