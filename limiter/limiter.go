// Package limiter bounds tool-call concurrency at two levels: a global
// permit pool shared by every call and a per-family pool so that one slow
// upstream cannot absorb the whole global budget.
package limiter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/couchpilot/couchpilot/core"
)

// FamilySizer reports the permit cap for a family.
type FamilySizer func(family string) int

// Limiter grants execution permits. A call must hold both the global permit
// and its family permit for its full duration.
type Limiter struct {
	global      *semaphore.Weighted
	acquireWait time.Duration
	sizeFor     FamilySizer

	mu       sync.Mutex
	families map[string]*semaphore.Weighted
}

// New returns a Limiter with the given global permit count. Family pools are
// created on first use with the size reported by sizeFor. Acquisition waits
// at most acquireWait before giving up.
func New(globalPermits int, acquireWait time.Duration, sizeFor FamilySizer) *Limiter {
	return &Limiter{
		global:      semaphore.NewWeighted(int64(globalPermits)),
		acquireWait: acquireWait,
		sizeFor:     sizeFor,
		families:    make(map[string]*semaphore.Weighted),
	}
}

func (l *Limiter) family(name string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	if sem, ok := l.families[name]; ok {
		return sem
	}
	sem := semaphore.NewWeighted(int64(l.sizeFor(name)))
	l.families[name] = sem
	return sem
}

// Acquire obtains the global and family permits for one call, blocking up to
// the configured wait. On success the returned release function must be
// called exactly once when the call completes. A saturated pool yields a
// core.TimeoutError rather than queueing without bound.
func (l *Limiter) Acquire(ctx context.Context, family string) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.acquireWait)
	defer cancel()

	if err := l.global.Acquire(waitCtx, 1); err != nil {
		// The caller giving up is not pool saturation.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.TimeoutError{Op: "acquire global permit", Timeout: l.acquireWait}
	}
	fam := l.family(family)
	if err := fam.Acquire(waitCtx, 1); err != nil {
		l.global.Release(1)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &core.TimeoutError{Op: "acquire " + family + " permit", Timeout: l.acquireWait}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			fam.Release(1)
			l.global.Release(1)
		})
	}, nil
}
