package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Sweeper reclaims expired state and reports how many items it removed.
type Sweeper interface {
	Sweep() int
}

// SweepFunc adapts a function to Sweeper.
type SweepFunc func() int

func (f SweepFunc) Sweep() int { return f() }

// Scheduler periodically reclaims memory held by expired cache entries and
// stale rate-limit windows. Correctness never depends on it running.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sweepers  map[string]Sweeper
	interval  time.Duration
}

// New creates a new Scheduler.
func New(interval time.Duration, sweepers map[string]Sweeper) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		sweepers:  sweepers,
		interval:  interval,
	}
}

// Start schedules the sweep job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.sweepers) == 0 {
		log.Println("scheduler: no sweepers configured; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = time.Minute
	}

	_, err := s.scheduler.Every(interval).Do(func() {
		s.RunOnce()
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// RunOnce runs every sweeper and returns the removal count per name.
func (s *Scheduler) RunOnce() map[string]int {
	removed := make(map[string]int, len(s.sweepers))
	for name, sw := range s.sweepers {
		n := sw.Sweep()
		removed[name] = n
		if n > 0 {
			log.Printf("scheduler: %s reclaimed %d entries", name, n)
		}
	}
	return removed
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
