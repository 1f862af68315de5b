package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/pospon/api/internal/httpmw"
)

// Store is the counter backend for a fixed-window tier. Implementations
// must make the read-check-increment atomic per key so concurrent bursts
// never exceed the cap.
type Store interface {
	// Incr bumps the counter for key in the window containing now and
	// returns the new count and the window end.
	Incr(key string, now time.Time) (count int, reset time.Time)
	// Decr refunds one slot for key if its window is still open.
	Decr(key string, now time.Time)
	// Reset drops all counters.
	Reset()
}

type windowEntry struct {
	count int
	reset time.Time
}

// MemoryStore is the in-process Store: one mutex-guarded map of fixed
// windows. Counters are per instance; they are not shared or distributed.
type MemoryStore struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]*windowEntry
}

func NewMemoryStore(window time.Duration) *MemoryStore {
	return &MemoryStore{
		window:  window,
		entries: make(map[string]*windowEntry),
	}
}

func (s *MemoryStore) Incr(key string, now time.Time) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.reset) {
		e = &windowEntry{reset: now.Add(s.window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, e.reset
}

func (s *MemoryStore) Decr(key string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && now.Before(e.reset) && e.count > 0 {
		e.count--
	}
}

func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*windowEntry)
}

// StartJanitor evicts expired windows until ctx is cancelled. Sweep
// frequency follows the window length, same as the flood guard's TTL
// cleanup.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.mu.Lock()
				for key, e := range s.entries {
					if !now.Before(e.reset) {
						delete(s.entries, key)
					}
				}
				s.mu.Unlock()
			}
		}
	}()
}

// TierConfig describes one fixed-window limit.
type TierConfig struct {
	// Name identifies the tier in metrics and logs (global, auth, api).
	Name string
	// Window is the fixed window length.
	Window time.Duration
	// Max is the request cap per key per window.
	Max int
	// Message is the error text sent on 429.
	Message string
	// RetryAfterHint is the human-readable retry hint sent on 429.
	RetryAfterHint string
	// SkipPaths are exact request paths the tier never counts.
	SkipPaths []string
	// SkipSuccessful refunds the slot when the response status is below 400.
	SkipSuccessful bool
	// OnDenied is called with the client key on every denial (metrics).
	OnDenied func(key string)
}

// Tier applies one fixed-window limit keyed by client IP.
type Tier struct {
	cfg   TierConfig
	store Store
	skip  map[string]struct{}
}

// NewTier builds a tier over the given store. The store's window must match
// cfg.Window; NewMemoryStore(cfg.Window) is the usual pairing.
func NewTier(cfg TierConfig, store Store) *Tier {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}
	return &Tier{cfg: cfg, store: store, skip: skip}
}

// tierDeniedBody mirrors the standard 429 payload.
type tierDeniedBody struct {
	Error      string `json:"error"`
	RetryAfter string `json:"retryAfter"`
}

// statusRecorder captures the response status for the successful-request
// refund without disturbing the write path.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Middleware enforces the tier. Every response passing through carries the
// standard RateLimit-Limit / RateLimit-Remaining / RateLimit-Reset headers;
// requests over the cap get 429 with Retry-After.
func (t *Tier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := t.skip[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		key := httpmw.ClientIPFromContext(r.Context())
		now := time.Now()
		count, reset := t.store.Incr(key, now)

		remaining := t.cfg.Max - count
		if remaining < 0 {
			remaining = 0
		}
		secsToReset := int(reset.Sub(now).Seconds() + 0.5)
		if secsToReset < 0 {
			secsToReset = 0
		}

		h := w.Header()
		h.Set("RateLimit-Limit", strconv.Itoa(t.cfg.Max))
		h.Set("RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("RateLimit-Reset", strconv.Itoa(secsToReset))

		if count > t.cfg.Max {
			if t.cfg.OnDenied != nil {
				t.cfg.OnDenied(key)
			}
			h.Set("Retry-After", strconv.Itoa(secsToReset))
			h.Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(tierDeniedBody{
				Error:      t.cfg.Message,
				RetryAfter: t.cfg.RetryAfterHint,
			})
			return
		}

		if !t.cfg.SkipSuccessful {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		if rec.status < 400 {
			t.store.Decr(key, time.Now())
		}
	})
}

// Tier presets. Development gets generous caps so local iteration is never
// throttled; production caps match what clients were built against.

func GlobalTier(dev bool, store Store) *Tier {
	max := 100
	if dev {
		max = 1000
	}
	return NewTier(TierConfig{
		Name:           "global",
		Window:         15 * time.Minute,
		Max:            max,
		Message:        "Too many requests from this IP, please try again later.",
		RetryAfterHint: "15 minutes",
		SkipPaths:      []string{"/api/health"},
	}, store)
}

func AuthTier(dev bool, store Store) *Tier {
	max := 5
	if dev {
		max = 100
	}
	return NewTier(TierConfig{
		Name:           "auth",
		Window:         15 * time.Minute,
		Max:            max,
		Message:        "Too many authentication attempts from this IP, please try again later.",
		RetryAfterHint: "15 minutes",
		SkipSuccessful: true,
	}, store)
}

func APITier(dev bool, store Store) *Tier {
	max := 60
	if dev {
		max = 1000
	}
	return NewTier(TierConfig{
		Name:           "api",
		Window:         time.Minute,
		Max:            max,
		Message:        "API rate limit exceeded, please slow down.",
		RetryAfterHint: "1 minute",
	}, store)
}

// Name reports the tier's identifier.
func (t *Tier) Name() string { return t.cfg.Name }

// SetOnDenied registers the denial callback. Called during wiring, before
// the middleware serves traffic.
func (t *Tier) SetOnDenied(fn func(key string)) { t.cfg.OnDenied = fn }
