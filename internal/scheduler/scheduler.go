// Package scheduler runs the bridge periodically.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context)

// PollScheduler runs a job immediately and then on every tick of a fixed
// interval. The job always runs on the scheduler goroutine, so runs never
// overlap; ticks that fall due while a run is in progress are dropped.
type PollScheduler struct {
	job      Job
	interval time.Duration
	logger   zerolog.Logger

	mutex     sync.Mutex
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup

	// Metrics
	runsExecuted int64
	ticksDropped int64
	lastRunAt    atomic.Int64
}

// NewPollScheduler creates a scheduler for job.
func NewPollScheduler(interval time.Duration, job Job, logger zerolog.Logger) *PollScheduler {
	return &PollScheduler{
		job:      job,
		interval: interval,
		logger:   logger.With().Str("component", "poll_scheduler").Logger(),
	}
}

// Start begins polling until ctx is done or Stop is called.
func (ps *PollScheduler) Start(ctx context.Context) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if ps.isRunning {
		return fmt.Errorf("scheduler is already running")
	}
	if ps.interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", ps.interval)
	}

	ps.stopChan = make(chan struct{})
	ps.isRunning = true

	ps.wg.Add(1)
	go ps.pollLoop(ctx, ps.stopChan)

	ps.logger.Info().Dur("interval", ps.interval).Msg("Poll scheduler started")
	return nil
}

// Stop shuts down the scheduler and waits for an in-flight run to finish.
func (ps *PollScheduler) Stop() error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	if !ps.isRunning {
		return fmt.Errorf("scheduler is not running")
	}

	close(ps.stopChan)
	ps.wg.Wait()
	ps.isRunning = false

	ps.logger.Info().Msg("Poll scheduler stopped")
	return nil
}

// Wait blocks until the poll loop exits.
func (ps *PollScheduler) Wait() {
	ps.wg.Wait()
}

// GetMetrics returns scheduler counters.
func (ps *PollScheduler) GetMetrics() map[string]interface{} {
	ps.mutex.Lock()
	running := ps.isRunning
	ps.mutex.Unlock()

	metrics := map[string]interface{}{
		"is_running":    running,
		"interval":      ps.interval.String(),
		"runs_executed": atomic.LoadInt64(&ps.runsExecuted),
		"ticks_dropped": atomic.LoadInt64(&ps.ticksDropped),
	}
	if last := ps.lastRunAt.Load(); last != 0 {
		metrics["last_run_at"] = time.Unix(0, last).UTC().Format(time.RFC3339)
	}
	return metrics
}

func (ps *PollScheduler) pollLoop(ctx context.Context, stop <-chan struct{}) {
	defer ps.wg.Done()

	ticker := time.NewTicker(ps.interval)
	defer ticker.Stop()

	ps.runJob(ctx)

	for {
		select {
		case <-ctx.Done():
			ps.logger.Debug().Msg("Context done, poll loop exiting")
			return
		case <-stop:
			return
		case <-ticker.C:
			ps.runJob(ctx)
		}
	}
}

func (ps *PollScheduler) runJob(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	ps.lastRunAt.Store(start.UnixNano())
	ps.job(ctx)
	elapsed := time.Since(start)
	atomic.AddInt64(&ps.runsExecuted, 1)

	// time.Ticker drops ticks a slow receiver misses.
	if dropped := int64(elapsed / ps.interval); dropped > 0 {
		atomic.AddInt64(&ps.ticksDropped, dropped)
		ps.logger.Warn().
			Dur("elapsed", elapsed).
			Dur("interval", ps.interval).
			Int64("ticks_dropped", dropped).
			Msg("Run took longer than the poll interval")
	}
}
