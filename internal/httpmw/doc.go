// Package httpmw provides HTTP middleware for the public-facing API server.
//
// Middleware is composed in a fixed order in httpserver.NewHandler:
// server-header strip, security headers, request ID, client IP extraction,
// CORS, input sanitization, parameter de-duplication, rate limiting,
// OTEL tracing, metrics, structured logging, and chi router. The security
// stages run outermost so every response, including short-circuited ones,
// carries the hardened headers.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually.
package httpmw
