package health

import (
	"context"
	"sync/atomic"

	"github.com/pospon/api/internal/xerrors"
)

// Probe is evaluated at request time by the /healthz and /readyz
// handlers on the admin listener. nil = OK, non-nil = FAIL with reason.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed returns a probe with a constant answer. The API server's liveness
// probe is Fixed(true, "") since the process serving it is the signal.
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	return func(context.Context) error { return xerrors.New(reason) }
}

// All is AND: passes only if every probe passes, reporting the first
// failure. Nil probes are skipped so optional checks can be wired
// unconditionally.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// Any is OR: passes if at least one probe passes; otherwise reports the
// last failure seen.
func Any(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		last := xerrors.New("no healthy probes")
		for _, p := range ps {
			if p == nil {
				continue
			}
			err := p.Check(ctx)
			if err == nil {
				return nil
			}
			last = err
		}
		return last
	}
}

// ShutdownGate flips readiness to false during drain. main closes it on
// the first SIGTERM so the load balancer's /readyz checks start failing
// before the listeners shut down.
type ShutdownGate struct {
	draining atomic.Bool
	reason   atomic.Value
}

func (g *ShutdownGate) Set(reason string) {
	g.draining.Store(true)
	g.reason.Store(reason)
}

func (g *ShutdownGate) Clear() {
	g.draining.Store(false)
	g.reason.Store("")
}

func (g *ShutdownGate) Probe() CheckFunc {
	return func(context.Context) error {
		if !g.draining.Load() {
			return nil
		}
		r, _ := g.reason.Load().(string)
		if r == "" {
			r = "draining"
		}
		return xerrors.New(r)
	}
}
