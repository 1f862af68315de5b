package apihttp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pospon/api/internal/httpmw"
)

// AppError is an error with a client-facing message and HTTP status.
// Anything else that reaches the normalizer is treated as an internal
// error and its message is withheld outside development.
type AppError struct {
	Message    string
	StatusCode int
}

func (e *AppError) Error() string { return e.Message }

func NewError(message string, statusCode int) *AppError {
	return &AppError{Message: message, StatusCode: statusCode}
}

func BadRequest(message string) *AppError   { return NewError(message, http.StatusBadRequest) }
func Unauthorized(message string) *AppError { return NewError(message, http.StatusUnauthorized) }
func Forbidden(message string) *AppError    { return NewError(message, http.StatusForbidden) }
func NotFound(message string) *AppError     { return NewError(message, http.StatusNotFound) }
func Conflict(message string) *AppError     { return NewError(message, http.StatusConflict) }

// HandlerFunc is an http handler that may fail; errors flow to the
// normalizer instead of each handler writing its own error body.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// handle adapts a HandlerFunc into an http.HandlerFunc with the error
// normalizer as terminal stage.
func (a *API) handle(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(w, r); err != nil {
			a.writeError(w, r, err)
		}
	}
}

// writeError is the terminal error handler. AppErrors keep their status
// and message; everything else becomes a 500 whose real message is only
// exposed in development.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "Internal Server Error"

	var app *AppError
	if errors.As(err, &app) {
		status = app.StatusCode
		message = app.Message
	}

	a.logger.Error(r.Context(), err, fmt.Sprintf("Error %d: %s", status, message),
		"http.request.method", r.Method,
		"url.path", r.URL.Path,
		"client.address", httpmw.ClientIPFromContext(r.Context()),
		"user_agent.original", r.UserAgent(),
	)

	errMsg := message
	if a.dev {
		errMsg = err.Error()
	}
	writeJSON(w, status, ErrorBody{
		Success:    false,
		Message:    message,
		Error:      errMsg,
		StatusCode: status,
	})
}

// notFound synthesizes the 404 envelope for unrouted paths.
func (a *API) notFound(w http.ResponseWriter, r *http.Request) {
	a.writeError(w, r, NotFound(fmt.Sprintf("Route %s not found", r.URL.RequestURI())))
}

// methodNotAllowed handles routed paths hit with the wrong method.
func (a *API) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	a.writeError(w, r, NewError(
		fmt.Sprintf("Method %s not allowed for route %s", r.Method, r.URL.RequestURI()),
		http.StatusMethodNotAllowed,
	))
}
