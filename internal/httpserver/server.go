// Package httpserver assembles the public API server: the middleware
// pipeline (header hardening, CORS, sanitization, parameter dedupe,
// rate limiting, observability) around the application routes.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pospon/api/internal/httpmw"
	"github.com/pospon/api/internal/log"
	"github.com/pospon/api/internal/xerrors"
)

// DefaultDedupeWhitelist lists the query parameters that may legally
// repeat (pagination and filtering); every other repeated parameter is
// collapsed to its last occurrence.
var DefaultDedupeWhitelist = []string{"sort", "fields", "page", "limit", "filter"}

// NewHandler builds an HTTP handler with routes + middleware
// main() owns *http.Server so it can do graceful shutdown
func NewHandler(opts *Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	// chi router
	r := chi.NewRouter()

	// Compress JSON and text responses
	r.Use(middleware.Compress(5,
		"application/json",
		"text/plain",
		"text/html",
	))

	// Annotate logger and tracer with http.route from chi route pattern if trace is recording
	r.Use(httpmw.AnnotateHTTPRoute)

	// Access log middleware
	r.Use(httpmw.AccessLog())

	if opts.APIRoutes != nil {
		opts.APIRoutes(r)
	}

	// Middleware (outermost first in wrapping order)
	var h http.Handler = r

	// Request-scoped logging (inner so it sees trace_id, etc)
	h = httpmw.WithLogger(opts.Logger)(h)

	// Metrics middleware for prometheus instrumentation
	if opts.MetricsMW != nil {
		h = opts.MetricsMW(h)
	}

	// add trace-id headers to any requests with a recording trace
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	// Add build version/commit headers
	if opts.Version != nil {
		h = httpmw.VersionHeaders(opts.Version)(h)
	}

	h = otelhttp.NewHandler(
		h,
		"http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return shouldTrace(r.URL.Path)
		}),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			// AnnotateHTTPRoute will rename the span later to the final route pattern
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(r *http.Request) bool { return true }),
	)

	// Global rate limit tier, then the flood guard outside it so abusive
	// IPs are cut before they touch window counters
	if opts.GlobalLimitMW != nil {
		h = opts.GlobalLimitMW(h)
	}
	if opts.FloodMW != nil {
		h = opts.FloodMW(h)
	}

	// Parameter dedupe, then sanitization outside it
	whitelist := opts.DedupeWhitelist
	if whitelist == nil {
		whitelist = DefaultDedupeWhitelist
	}
	h = httpmw.DedupeParams(whitelist...)(h)
	h = httpmw.Sanitize(h)

	// Body cap outside sanitization so its reads are bounded too
	maxBody := opts.MaxBodyBytes
	if maxBody == 0 {
		maxBody = 10 << 20
	}
	h = httpmw.MaxBody(maxBody)(h)

	// CORS before any stage that could reject or mutate the request, so
	// even 429s carry the allow-list headers
	if opts.CORS != nil {
		h = httpmw.CORS(*opts.CORS)(h)
	}

	// Client IP resolution (must be before rate limiter and logging in middleware chain)
	h = httpmw.ClientIPWithOptions(opts.ClientIPOpts)(h)

	// Request ID (outer so everything downstream sees it)
	h = httpmw.RequestID("X-Request-Id")(h)

	// Recovery middleware to log panics and serve 500 response
	if opts.UseRecoverMW {
		h = httpmw.Recover(opts.Logger, opts.OnPanic)(h)
	}

	// Security headers outermost to ensure they are served on every response
	h = httpmw.SecurityHeaders(h)
	h = httpmw.HideServer(h)

	return h
}

// shouldTrace decides which requests get spans. Probes and browser
// chrome noise stay out of the trace backend.
func shouldTrace(p string) bool {
	switch p {
	case "/favicon.ico", "/robots.txt", "/api/health":
		return false
	}
	return true
}

// Server timeout defaults, shared with opshttp.
const (
	DefaultReadHeaderTimeout = 5 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1 MB
)

func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		ReadTimeout:       DefaultReadTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}
}

// Start public HTTP server
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, opts *Options) (func(context.Context) error, error) {
	port := opts.Port
	if port == 0 {
		port = 3001
	}
	addr := fmt.Sprintf(":%d", port)

	handler := NewHandler(opts)
	srv := NewServer(addr, handler)

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp4", addr)

	if err != nil {
		return nil, xerrors.EnsureTrace(err)
	}

	go func() {
		opts.Logger.Info(ctx, "http server listening", "addr", addr)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			opts.Logger.Error(ctx, err, "http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			opts.Logger.Info(sctx, "http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}
