package schedule

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type countingRescorer struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	fail  bool
}

func (c *countingRescorer) Rescore(ctx context.Context) error {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.fail {
		return fmt.Errorf("simulated failure")
	}
	return nil
}

func (c *countingRescorer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestSchedulerRunsOnCronTrigger(t *testing.T) {
	exec := &countingRescorer{}
	s := New(exec)
	if err := s.AddCronJob("@every 50ms"); err != nil {
		t.Fatalf("AddCronJob: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for exec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if exec.count() == 0 {
		t.Fatal("expected at least one rescore call within 2s")
	}
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	exec := &countingRescorer{delay: 300 * time.Millisecond}
	s := New(exec)

	// Ten triggers fire while the first 300ms-long run is still in flight;
	// the overlap guard lets only that first run through. (The triggers are
	// fired directly: cron's @every raises sub-second delays to one second.)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runOnce()
		}()
	}
	wg.Wait()

	if exec.count() != 1 {
		t.Fatalf("expected overlap guard to suppress concurrent runs, got %d calls", exec.count())
	}
}

func TestSchedulerRejectsInvalidCronSpec(t *testing.T) {
	s := New(&countingRescorer{})
	if err := s.AddCronJob("not a cron spec"); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}
