// Package scheduler runs periodic housekeeping on robfig/cron.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

// TaskFunc is one run of a scheduled task.
type TaskFunc func(ctx context.Context) error

// Scheduler runs named tasks at fixed intervals.
type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	mu      sync.Mutex
	tasks   map[string]cron.EntryID
	running bool
	timeout time.Duration
}

func NewScheduler(log *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		log:     log.With(logger.Scope("scheduler")),
		tasks:   make(map[string]cron.EntryID),
		timeout: time.Minute,
	}
}

// AddIntervalTask schedules task every interval, replacing a task of the
// same name.
func (s *Scheduler) AddIntervalTask(name string, interval time.Duration, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.tasks[name]; ok {
		s.cron.Remove(id)
		delete(s.tasks, name)
	}

	id, err := s.cron.AddFunc("@every "+interval.String(), func() { s.run(name, task) })
	if err != nil {
		return err
	}
	s.tasks[name] = id
	s.log.Debug("task scheduled", slog.String("name", name), slog.Duration("interval", interval))
	return nil
}

// Tasks returns the scheduled task names, sorted.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", slog.Int("tasks", len(s.tasks)))
	return nil
}

// Stop waits for running tasks until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
	return nil
}

func (s *Scheduler) run(name string, task TaskFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	if err := task(ctx); err != nil {
		s.log.Error("scheduled task failed",
			slog.String("name", name),
			slog.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
	}
}
