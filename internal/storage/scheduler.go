package storage

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ==================== Maintenance scheduler ====================
// Periodically sweeps tables for accumulated tail records and merges them.
// Threshold-triggered merges remain the primary mechanism; the sweep
// catches tables that stall below the threshold.

// Scheduler drives periodic merge sweeps from a cron expression.
type Scheduler struct {
	db   *Database
	spec string
	cron *cron.Cron

	mu      sync.Mutex
	running map[string]struct{} // tables with a sweep merge in flight
}

// NewScheduler creates a scheduler sweeping on the given cron spec
// (with-seconds syntax, e.g. "0 */5 * * * *").
func NewScheduler(db *Database, spec string) *Scheduler {
	return &Scheduler{
		db:      db,
		spec:    spec,
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithSeconds()),
		running: make(map[string]struct{}),
	}
}

// Start registers the sweep job and begins the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.Sweep); err != nil {
		return fmt.Errorf("scheduler: invalid sweep spec %q: %w", s.spec, err)
	}
	s.cron.Start()
	log.Printf("lstore: merge sweep scheduled (%s)", s.spec)
	return nil
}

// Stop halts the cron loop and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Printf("lstore: merge sweep stopped")
}

// Sweep merges every table with pending tail records. A table already
// being swept is skipped rather than merged twice.
func (s *Scheduler) Sweep() {
	for _, name := range s.db.Tables() {
		t, err := s.db.GetTable(name)
		if err != nil {
			continue // dropped between listing and lookup
		}
		if t.PendingTailRecords() == 0 {
			continue
		}

		s.mu.Lock()
		if _, busy := s.running[name]; busy {
			s.mu.Unlock()
			continue
		}
		s.running[name] = struct{}{}
		s.mu.Unlock()

		if err := t.MergeNow(); err != nil {
			log.Printf("lstore: sweep merge of %s failed: %v", name, err)
		}

		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
	}
}
