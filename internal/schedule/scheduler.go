// Package schedule runs periodic rescoring jobs on a cron schedule.
// Adapted from the teacher's internal/storage/scheduler.go: the same
// cron.Cron-plus-executor-interface shape, reduced to the one job this
// system needs (rescore on a schedule) instead of a general SQL job
// catalog.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Rescorer performs one full rescoring pass. Implementations typically wrap
// a storage.Store and a scoring.Engine; the interface exists so Scheduler
// has no dependency on either package, mirroring the teacher's JobExecutor
// indirection.
type Rescorer interface {
	Rescore(ctx context.Context) error
}

// Scheduler drives a single Rescorer on a cron schedule, refusing overlapping
// runs.
type Scheduler struct {
	cron     *cron.Cron
	executor Rescorer

	mu      sync.Mutex
	running bool

	// MaxRuntime bounds each rescore pass; jobs exceeding it are canceled via
	// context. Defaults to 5 minutes if zero.
	MaxRuntime time.Duration
}

// New returns a Scheduler that invokes executor on the schedules later
// registered with AddCronJob. The cron parser runs in UTC with seconds
// resolution, matching the teacher's scheduler.
func New(executor Rescorer) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		executor: executor,
	}
}

// AddCronJob registers spec (a 6-field cron expression, seconds first) to
// trigger a rescore pass.
func (s *Scheduler) AddCronJob(spec string) error {
	_, err := s.cron.AddFunc(spec, s.runOnce)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Start begins the cron loop in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Println("rescore scheduler started")
}

// Stop waits for any in-flight cron dispatch to finish and halts the loop.
// It does not cancel a rescore pass already running; MaxRuntime bounds that.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("rescore scheduler stopped")
}

func (s *Scheduler) runOnce() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("rescore already running, skipping this trigger")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	timeout := s.MaxRuntime
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Println("rescore job starting")
	if err := s.executor.Rescore(ctx); err != nil {
		log.Printf("rescore job failed: %v", err)
		return
	}
	log.Println("rescore job completed")
}
