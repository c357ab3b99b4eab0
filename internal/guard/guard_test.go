package guard

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time {
	return f.now
}

func TestGuard_AdmitThenRejectWhileRunning(t *testing.T) {
	t.Parallel()

	g := New(fakeClock{now: time.Unix(100, 0)})
	state, ok := g.TryAdmit("job-1")
	require.True(t, ok)
	require.True(t, state.Running)
	require.Equal(t, "job-1", state.JobID)
	require.Equal(t, time.Unix(100, 0), state.StartedAt)

	g.SetAccount("acct1")
	active, ok := g.TryAdmit("job-2")
	require.False(t, ok)
	require.Equal(t, "job-1", active.JobID)
	require.Equal(t, "acct1", active.Account)

	// The rejected submission must leave the run state untouched.
	require.Equal(t, active, g.State())
}

func TestGuard_ReleaseAllowsNextJob(t *testing.T) {
	t.Parallel()

	g := New(nil)
	_, ok := g.TryAdmit("job-1")
	require.True(t, ok)
	g.Release()
	require.False(t, g.State().Running)

	state, ok := g.TryAdmit("")
	require.True(t, ok)
	require.Empty(t, state.JobID)
	require.False(t, state.StartedAt.IsZero())
}

func TestGuard_SetAccountIgnoredWhenIdle(t *testing.T) {
	t.Parallel()

	g := New(nil)
	g.SetAccount("acct1")
	require.Empty(t, g.State().Account)
}

func TestGuard_ConcurrentAdmissionIsSingleFlight(t *testing.T) {
	t.Parallel()

	g := New(nil)
	var admitted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := g.TryAdmit("job"); ok {
				admitted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	require.Equal(t, int32(1), admitted.Load())
}
