// Package scheduler runs the login authority's named periodic jobs:
// DB keepalive, ip-ban sweep, presence cleanup, optional WAN IP sync,
// and one-shot ghost-session watchdogs.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a named unit of recurring or one-shot work.
type Job func(ctx context.Context)

type interval struct {
	name   string
	period time.Duration
	job    Job
}

type oneShot struct {
	at  time.Time
	job Job
}

// Scheduler runs registered interval jobs on tickers under Run's
// context, and one-shot watchdog jobs on their own timers with a
// background context; canceling Run's context does not stop pending
// watchdogs.
type Scheduler struct {
	mu        sync.Mutex
	intervals []interval
	watchdogs map[string]*time.Timer
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{watchdogs: make(map[string]*time.Timer)}
}

// ScheduleInterval registers a named recurring job. Call before Run.
func (s *Scheduler) ScheduleInterval(name string, period time.Duration, job Job) {
	s.intervals = append(s.intervals, interval{name: name, period: period, job: job})
}

// Run starts every registered interval job and blocks until ctx is
// canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, iv := range s.intervals {
		wg.Add(1)
		go func(iv interval) {
			defer wg.Done()
			s.runInterval(ctx, iv)
		}(iv)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) runInterval(ctx context.Context, iv interval) {
	ticker := time.NewTicker(iv.period)
	defer ticker.Stop()

	slog.Info("scheduler job started", "job", iv.name, "interval", iv.period)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler job stopping", "job", iv.name)
			return
		case <-ticker.C:
			iv.job(ctx)
		}
	}
}

// Watchdog schedules a one-shot job to run after delay, registered
// under name so a later call with the same name cancels the prior
// timer — used for the 30-second already-online kick watchdog, which
// is re-armed per kick attempt.
func (s *Scheduler) Watchdog(name string, delay time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.watchdogs[name]; ok {
		existing.Stop()
	}
	s.watchdogs[name] = time.AfterFunc(delay, func() {
		job(context.Background())
		s.mu.Lock()
		delete(s.watchdogs, name)
		s.mu.Unlock()
	})
}

// CancelWatchdog stops a pending watchdog before it fires, used when
// the kicked session disconnects cleanly before the grace period ends.
func (s *Scheduler) CancelWatchdog(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.watchdogs[name]; ok {
		t.Stop()
		delete(s.watchdogs, name)
	}
}
