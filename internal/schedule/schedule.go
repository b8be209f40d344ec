// Package schedule implements the optional --schedule flag from
// SPEC_FULL.md §6: a cron expression that repeats a full sync
// sequentially, never concurrently. Built on
// github.com/robfig/cron/v3, grounded on
// internal/core/manager.go's scheduler.AddFunc("@every ...", fn)
// usage in the teacher repo.
package schedule

import (
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/torrents3/torrents3/internal/logging"
)

// Scheduler repeats a sync func() error on a cron expression, skipping
// (and logging) any fire that would overlap a run still in progress.
type Scheduler struct {
	cron    *cron.Cron
	logger  *logging.Logger
	mu      sync.Mutex
	running bool
}

// New parses expr (standard 5-field cron syntax) and schedules fn to
// run on every match. It returns an error if expr does not parse.
func New(expr string, fn func() error, logger *logging.Logger) (*Scheduler, error) {
	s := &Scheduler{cron: cron.New(), logger: logger}

	_, err := s.cron.AddFunc(expr, func() {
		s.mu.Lock()
		if s.running {
			s.mu.Unlock()
			s.logger.Warn("schedule: previous sync still running, skipping this fire")
			return
		}
		s.running = true
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()

		if err := fn(); err != nil {
			s.logger.Error("schedule: sync run failed:", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins dispatching in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for any in-flight run to finish, then stops dispatching.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
