// Package scheduler triggers the daily digest run at a fixed local time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one scheduled run.
type Task func(ctx context.Context) error

// Scheduler manages cron-based digest scheduling.
type Scheduler struct {
	cron     *cron.Cron
	mu       sync.Mutex
	entryID  cron.EntryID
	schedule cron.Schedule
	location *time.Location
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a Scheduler in the given timezone. A run still in progress when
// the next trigger fires causes that trigger to be skipped.
func New(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", timezone, err)
	}

	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     c,
		location: loc,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Location is the zone the schedule is evaluated in.
func (s *Scheduler) Location() *time.Location {
	return s.location
}

// Schedule sets up the daily run at the given time (HH:MM format).
// If a previous schedule exists, it is replaced.
func (s *Scheduler) Schedule(digestTime string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hour, minute, err := parseTime(digestTime)
	if err != nil {
		return err
	}

	expr := fmt.Sprintf("%d %d * * *", minute, hour)
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", expr, err)
	}

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(task) }))
	s.schedule = sched

	slog.Info("digest scheduled", "time", digestTime, "cron", expr, "timezone", s.location.String())
	return nil
}

func (s *Scheduler) fire(task Task) {
	start := time.Now()
	slog.Info("scheduled run starting")
	if err := task(s.ctx); err != nil {
		slog.Error("scheduled run failed", "error", err, "duration", time.Since(start))
		return
	}
	slog.Info("scheduled run finished", "duration", time.Since(start))
}

// NextAfter reports when the schedule next fires after t. It returns the zero
// time when nothing is scheduled.
func (s *Scheduler) NextAfter(t time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schedule == nil {
		return time.Time{}
	}
	return s.schedule.Next(t.In(s.location))
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, cancels a run in progress and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// parseTime extracts hour and minute from HH:MM format.
func parseTime(t string) (int, int, error) {
	if len(t) != 5 || t[2] != ':' {
		return 0, 0, fmt.Errorf("invalid time format %q: must be HH:MM", t)
	}
	parsed, err := time.Parse("15:04", t)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time %q: hour 0-23, minute 0-59", t)
	}
	return parsed.Hour(), parsed.Minute(), nil
}
