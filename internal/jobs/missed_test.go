package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSweeper struct {
	mu     sync.Mutex
	calls  int
	limits []int
	err    error
}

func (m *mockSweeper) SweepMissed(ctx context.Context, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.limits = append(m.limits, limit)
	if m.err != nil {
		return 0, m.err
	}
	return 1, nil
}

func (m *mockSweeper) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func TestMissedSessionJob_SweepsOnStartAndTick(t *testing.T) {
	sweeper := &mockSweeper{}
	job := NewMissedSessionJob(sweeper, 20*time.Millisecond, 25)

	job.Start()
	require.Eventually(t, func() bool { return sweeper.callCount() >= 2 }, time.Second, 5*time.Millisecond)
	job.Stop()

	calls := sweeper.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, sweeper.callCount(), "no sweeps after Stop")

	sweeper.mu.Lock()
	defer sweeper.mu.Unlock()
	for _, limit := range sweeper.limits {
		assert.Equal(t, 25, limit)
	}
}

func TestMissedSessionJob_ErrorsDoNotStopTheJob(t *testing.T) {
	sweeper := &mockSweeper{err: errors.New("database unavailable")}
	job := NewMissedSessionJob(sweeper, 10*time.Millisecond, 10)

	job.Start()
	defer job.Stop()

	require.Eventually(t, func() bool { return sweeper.callCount() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestMissedSessionJob_StopIsIdempotent(t *testing.T) {
	job := NewMissedSessionJob(&mockSweeper{}, time.Hour, 10)
	job.Start()

	assert.NotPanics(t, func() {
		job.Stop()
		job.Stop()
	})
}
