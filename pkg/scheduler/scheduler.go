// Package scheduler wraps robfig/cron to run periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of scheduled work.
type Job struct {
	Name string
	// Spec is a cron expression with a leading seconds field.
	Spec string
	Run  func(ctx context.Context) error
	// Timeout bounds one run. Zero means one minute.
	Timeout time.Duration
}

// Engine runs registered jobs on their cron schedules.
type Engine struct {
	cron    *cron.Cron
	logger  *slog.Logger
	entries map[string]cron.EntryID
}

// New creates an Engine. loc sets the time zone schedules are evaluated in.
func New(loc *time.Location, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers a job. Job names must be unique.
func (e *Engine) Add(job Job) error {
	if _, dup := e.entries[job.Name]; dup {
		return fmt.Errorf("scheduler.Add: duplicate job %q", job.Name)
	}
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	id, err := e.cron.AddFunc(job.Spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		if err := job.Run(ctx); err != nil {
			e.logger.Error("scheduled job failed", "job", job.Name, "error", err)
			return
		}
		e.logger.Info("scheduled job ran", "job", job.Name, "duration_ms", time.Since(start).Milliseconds())
	})
	if err != nil {
		return fmt.Errorf("scheduler.Add %q: parse cron: %w", job.Name, err)
	}
	e.entries[job.Name] = id
	return nil
}

// Next returns the next run time of a job, or the zero time if the job is
// unknown or the engine is not running.
func (e *Engine) Next(name string) time.Time {
	id, ok := e.entries[name]
	if !ok {
		return time.Time{}
	}
	return e.cron.Entry(id).Next
}

// Start runs the engine until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.cron.Start()
	go func() {
		<-ctx.Done()
		<-e.cron.Stop().Done()
	}()
}

// Stop halts the engine and waits for running jobs to finish.
func (e *Engine) Stop() {
	<-e.cron.Stop().Done()
}
