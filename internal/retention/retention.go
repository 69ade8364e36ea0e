// Package retention prunes finished executions on a cron schedule.
package retention

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Store is the deletion surface the sweeper needs.
type Store interface {
	DeleteFinishedBefore(cutoff time.Time) (int64, error)
}

// Sweeper deletes executions that finished longer ago than the
// retention window.
type Sweeper struct {
	store    Store
	maxAge   time.Duration
	schedule cron.Schedule
	lastRun  time.Time
	running  bool
	mu       sync.Mutex
	stopChan chan struct{}
}

// ParseCron parses a standard five-field cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NewSweeper creates a sweeper. cronExpr decides when it runs, maxAge
// how long finished executions are kept.
func NewSweeper(store Store, cronExpr string, maxAge time.Duration) (*Sweeper, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention age must be positive, got %v", maxAge)
	}
	schedule, err := ParseCron(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parsing retention cron %q: %w", cronExpr, err)
	}

	return &Sweeper{
		store:    store,
		maxAge:   maxAge,
		schedule: schedule,
		stopChan: make(chan struct{}),
	}, nil
}

// NextRun returns the next scheduled sweep time.
func (s *Sweeper) NextRun() time.Time {
	return s.schedule.Next(time.Now())
}

// shouldRun returns true if a sweep is due.
func (s *Sweeper) shouldRun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return false
	}

	lastRun := s.lastRun
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-24 * time.Hour)
	}
	return time.Now().After(s.schedule.Next(lastRun))
}

func (s *Sweeper) markRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

func (s *Sweeper) markComplete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.lastRun = time.Now()
}

// Sweep deletes finished executions older than the retention window.
func (s *Sweeper) Sweep() (int64, error) {
	cutoff := time.Now().Add(-s.maxAge)
	deleted, err := s.store.DeleteFinishedBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention sweep: %w", err)
	}
	if deleted > 0 {
		log.Printf("[retention] deleted %d executions finished before %s", deleted, cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}

// Start begins the scheduler loop. Blocks until Stop is called.
func (s *Sweeper) Start() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if !s.shouldRun() {
				continue
			}
			s.markRunning()
			go func() {
				if _, err := s.Sweep(); err != nil {
					log.Printf("[retention] %v", err)
				}
				s.markComplete()
			}()
		}
	}
}

// Stop stops the scheduler loop.
func (s *Sweeper) Stop() {
	close(s.stopChan)
}
