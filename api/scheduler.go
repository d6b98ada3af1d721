/*
scheduler.go - Periodic job scheduler

PURPOSE:
  Fires the monthly accrual and yearly reset without external cron. A
  background goroutine wakes on a ticker and triggers whichever period
  jobs have not run yet; the database-side job lock makes the trigger
  idempotent, so an aggressive interval or several replicas are safe.

DESIGN:
  - Yearly reset is attempted first in January so the casual zeroing
    lands before the month's accrual (the reset triggers that accrual
    itself on success).
  - ErrAlreadyLocked is the expected outcome on all but the first wake
    of a period and is logged at debug.

USAGE:
  s := api.NewScheduler(jobs, logger)
  s.Start()
  defer s.Stop()

SEE ALSO:
  - leave/jobs.go: the jobs and their locking
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/leave"
)

// Scheduler triggers the periodic jobs from inside the process.
type Scheduler struct {
	Jobs          *leave.JobRunner
	CheckInterval time.Duration
	Log           *zap.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewScheduler(jobs *leave.JobRunner, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		Jobs:          jobs,
		CheckInterval: 1 * time.Hour,
		Log:           log,
		stop:          make(chan struct{}),
	}
}

// Start launches the background loop. One tick runs immediately so a
// restarted server catches up without waiting a full interval.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.Log.Info("scheduler started", zap.Duration("check_interval", s.CheckInterval))
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil

	s.Log.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	s.tick()
	for {
		select {
		case <-s.stop:
			return
		case <-s.ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()

	if now.Month() == time.January {
		if err := s.Jobs.RunYearlyReset(ctx, now, "scheduler"); err != nil {
			if errors.Is(err, leave.ErrAlreadyLocked) {
				s.Log.Debug("yearly reset already ran", zap.Int("year", now.Year()))
			} else {
				s.Log.Error("yearly reset failed", zap.Error(err))
			}
		}
	}

	if err := s.Jobs.RunMonthlyAccrual(ctx, now, "scheduler"); err != nil {
		if errors.Is(err, leave.ErrAlreadyLocked) {
			s.Log.Debug("monthly accrual already ran",
				zap.Int("year", now.Year()), zap.Int("month", int(now.Month())))
		} else {
			s.Log.Error("monthly accrual failed", zap.Error(err))
		}
	}
}
