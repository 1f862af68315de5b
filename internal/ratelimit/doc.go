// Package ratelimit provides per-IP rate limiting: fixed-window tiers with
// standard RateLimit-* headers, plus a token-bucket flood guard with
// background eviction of stale entries.
//
// Both are single-instance and in-memory, intended for basic abuse
// prevention on a single server. They do not protect against distributed
// attacks, bandwidth-bill attacks, or application-layer DoS that stays under
// the limits. For those, use an upstream WAF or CDN-level rate limiting.
package ratelimit
