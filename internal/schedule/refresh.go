package schedule

import (
	"sync"
	"time"
)

// Scheduler drives the periodic re-fetch loop. Start is idempotent: starting
// while already running stops the previous loop first, so duplicate tickers
// can never stack up. The tick callback is expected to consult the current
// view at fire time, not at schedule time.
type Scheduler struct {
	mu      sync.Mutex
	running bool
	stop    chan struct{}
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

const defaultPeriod = 30 * time.Second

func (s *Scheduler) Start(period time.Duration, tick func()) {
	// The period is config-supplied; time.NewTicker panics on <= 0.
	if period <= 0 {
		period = defaultPeriod
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	stop := make(chan struct{})
	s.stop = stop
	s.running = true

	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				tick()
			case <-stop:
				return
			}
		}
	}()
}

// Stop is safe to call from inside a tick callback (a 401 discovered during
// a refresh stops the loop it is running on).
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	close(s.stop)
	s.stop = nil
	s.running = false
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
