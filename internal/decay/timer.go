package decay

import (
	"context"
	"log"
	"time"

	"github.com/oakmund/sprout/internal/store"
)

// resyncInterval caps how long the scheduler sleeps, so rule edits made
// through the API are picked up without restarting the daemon.
const resyncInterval = time.Minute

// Scheduler drives the engine: every rule carries its own next-run time,
// urgent rules on the fast cadence, everything else on the full cadence.
type Scheduler struct {
	engine *Engine
	db     *store.DB
	stopCh chan struct{}
}

// NewScheduler creates a Scheduler for the given engine.
func NewScheduler(engine *Engine) *Scheduler {
	return &Scheduler{
		engine: engine,
		db:     engine.db,
		stopCh: make(chan struct{}),
	}
}

// Start runs due rules once at startup and then loops in the background.
func (s *Scheduler) Start() {
	s.tick()

	go func() {
		for {
			wait := s.nextWake()
			select {
			case <-time.After(wait):
				s.tick()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop shuts down the scheduler's background goroutine.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

// nextWake returns how long to sleep until the earliest scheduled rule,
// capped at the resync interval.
func (s *Scheduler) nextWake() time.Duration {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rules, err := s.db.ListRules(ctx, true)
	if err != nil {
		log.Printf("decay: scheduler list rules: %v", err)
		return resyncInterval
	}
	q := buildQueue(rules, s.engine.now())
	earliest, ok := q.peek()
	if !ok {
		return resyncInterval
	}
	wait := time.Until(earliest)
	if wait < time.Second {
		wait = time.Second
	}
	if wait > resyncInterval {
		wait = resyncInterval
	}
	return wait
}

// tick runs every rule whose deadline passed and reschedules it.
func (s *Scheduler) tick() {
	timeout := time.Duration(s.engine.cfg.CycleTimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	now := s.engine.now()
	rules, err := s.db.ListRules(ctx, true)
	if err != nil {
		log.Printf("decay: scheduler list rules: %v", err)
		return
	}

	q := buildQueue(rules, now)
	due := q.popDue(now)
	if len(due) == 0 {
		return
	}

	mode := "full"
	allUrgent := true
	for _, r := range due {
		if !r.Urgent {
			allUrgent = false
			break
		}
	}
	if allUrgent {
		mode = "urgent"
	}

	if _, err := s.engine.RunRules(ctx, due, mode); err != nil {
		log.Printf("decay: scheduled %s run: %v", mode, err)
		// Fall through: rescheduling still happens, the checkpoint covers
		// whatever the cycle missed.
	}

	for _, r := range due {
		next := now.Add(s.cadence(&r))
		if err := s.db.SetRuleNextRun(ctx, r.ID, next); err != nil {
			log.Printf("decay: reschedule rule %s: %v", r.ID, err)
		}
	}
}

func (s *Scheduler) cadence(r *store.DecayRule) time.Duration {
	if r.Urgent {
		mins := s.engine.cfg.UrgentIntervalMins
		if mins <= 0 {
			mins = 60
		}
		return time.Duration(mins) * time.Minute
	}
	hours := s.engine.cfg.FullIntervalHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}
