package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MissedSweeper marks overdue scheduled sessions as missed.
type MissedSweeper interface {
	SweepMissed(ctx context.Context, limit int) (int, error)
}

// MissedSessionJob periodically sweeps scheduled sessions whose start time
// has passed the grace period.
type MissedSessionJob struct {
	sweeper  MissedSweeper
	interval time.Duration
	batch    int
	timeout  time.Duration

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewMissedSessionJob(sweeper MissedSweeper, interval time.Duration, batch int) *MissedSessionJob {
	return &MissedSessionJob{
		sweeper:  sweeper,
		interval: interval,
		batch:    batch,
		timeout:  30 * time.Second,
		done:     make(chan struct{}),
	}
}

func (j *MissedSessionJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Int("batch", j.batch).Msg("missed session job started")
}

// Stop halts the ticker and waits for an in-flight sweep to finish.
func (j *MissedSessionJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		log.Info().Msg("missed session job stopped")
	})
}

func (j *MissedSessionJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *MissedSessionJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	count, err := j.sweeper.SweepMissed(ctx, j.batch)
	if err != nil {
		log.Error().Err(err).Int("marked", count).Msg("failed to sweep missed sessions")
	} else if count > 0 {
		log.Info().Int("count", count).Msg("marked sessions missed")
	}
}
