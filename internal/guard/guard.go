// Package guard implements the single-flight admission control for crawl jobs.
package guard

import (
	"sync"
	"time"

	"github.com/JakeFAU/creator-crawler/internal/crawler"
)

// Guard admits at most one job at a time. Rejected callers are never queued.
type Guard struct {
	mu    sync.Mutex
	state crawler.RunState
	clock crawler.Clock
}

// New creates an idle Guard.
func New(clock crawler.Clock) *Guard {
	return &Guard{clock: clock}
}

// TryAdmit marks the guard running for jobID if it is idle. When another job
// is active it returns false together with a snapshot of that job.
func (g *Guard) TryAdmit(jobID string) (crawler.RunState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Running {
		return g.state, false
	}
	g.state = crawler.RunState{
		Running:   true,
		JobID:     jobID,
		StartedAt: g.now(),
	}
	return g.state, true
}

// SetAccount records the account used by the batch in flight.
func (g *Guard) SetAccount(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.state.Running {
		return
	}
	g.state.Account = identity
}

// Release resets the guard to idle unconditionally.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = crawler.RunState{}
}

// State returns a snapshot of the current run state.
func (g *Guard) State() crawler.RunState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) now() time.Time {
	if g.clock == nil {
		return time.Now().UTC()
	}
	return g.clock.Now()
}
