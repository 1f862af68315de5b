package apihttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/pospon/api/internal/cfg"
	"github.com/pospon/api/internal/log"
)

// spyLogger captures Error calls for assertions.
type spyLogger struct {
	log.Logger
	mu     sync.Mutex
	errors []spyError
}

type spyError struct {
	msg string
	err error
	kv  []any
}

func newSpyLogger() *spyLogger {
	return &spyLogger{Logger: log.Nop()}
}

func (s *spyLogger) With(kv ...any) log.Logger { return s }

func (s *spyLogger) Error(ctx context.Context, err error, msg string, kv ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, spyError{msg: msg, err: err, kv: kv})
}

func (s *spyLogger) lastError() (spyError, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errors) == 0 {
		return spyError{}, false
	}
	return s.errors[len(s.errors)-1], true
}

func failingAPI(t *testing.T, mode cfg.Mode, err error) (*API, *httptest.ResponseRecorder) {
	t.Helper()
	spy := newSpyLogger()
	a := NewAPI(Config{Logger: spy, Mode: mode})
	h := a.handle(func(w http.ResponseWriter, r *http.Request) error { return err })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/boom", nil))
	return a, rec
}

func TestWriteError_AppErrorKeepsStatusAndMessage(t *testing.T) {
	_, rec := failingAPI(t, cfg.ModeProduction, Forbidden("No access"))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "No access" || body["error"] != "No access" {
		t.Errorf("body = %#v", body)
	}
	if body["statusCode"] != float64(403) {
		t.Errorf("statusCode = %v", body["statusCode"])
	}
}

func TestWriteError_InternalHiddenInProduction(t *testing.T) {
	_, rec := failingAPI(t, cfg.ModeProduction, errors.New("db connection string leaked"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "Internal Server Error" {
		t.Errorf("message = %q", body["message"])
	}
	if body["error"] != "Internal Server Error" {
		t.Errorf("error = %q, must not leak internals", body["error"])
	}
	if strings.Contains(rec.Body.String(), "leaked") {
		t.Error("internal error text leaked in production")
	}
}

func TestWriteError_InternalShownInDevelopment(t *testing.T) {
	_, rec := failingAPI(t, cfg.ModeDevelopment, errors.New("dial tcp: refused"))

	body := decodeBody(t, rec)
	if body["message"] != "Internal Server Error" {
		t.Errorf("message = %q", body["message"])
	}
	if body["error"] != "dial tcp: refused" {
		t.Errorf("error = %q, want real message in development", body["error"])
	}
}

func TestWriteError_LogsRequestContext(t *testing.T) {
	spy := newSpyLogger()
	a := NewAPI(Config{Logger: spy, Mode: cfg.ModeTest})
	h := a.handle(func(w http.ResponseWriter, r *http.Request) error {
		return BadRequest("Nope")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/things", nil)
	req.Header.Set("User-Agent", "test-client/1.0")
	h.ServeHTTP(httptest.NewRecorder(), req)

	e, ok := spy.lastError()
	if !ok {
		t.Fatal("no error logged")
	}
	if e.msg != "Error 400: Nope" {
		t.Errorf("log msg = %q", e.msg)
	}
	fields := map[string]any{}
	for i := 0; i+1 < len(e.kv); i += 2 {
		if k, ok := e.kv[i].(string); ok {
			fields[k] = e.kv[i+1]
		}
	}
	if fields["http.request.method"] != "POST" {
		t.Errorf("method field = %v", fields["http.request.method"])
	}
	if fields["url.path"] != "/api/things" {
		t.Errorf("path field = %v", fields["url.path"])
	}
	if fields["user_agent.original"] != "test-client/1.0" {
		t.Errorf("user agent field = %v", fields["user_agent.original"])
	}
}

func TestHandle_NoErrorWritesNothingExtra(t *testing.T) {
	a := newTestAPI(t)
	h := a.handle(func(w http.ResponseWriter, r *http.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Errorf("code = %d body = %q", rec.Code, rec.Body.String())
	}
}
