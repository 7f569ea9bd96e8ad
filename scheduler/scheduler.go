package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/mdouchement/logger"
)

// Cores is the number of execution lanes an entry can be pinned to.
const Cores = 2

var ErrInvalidEntry = errors.New("invalid entry")

// A Watchdog supervises the liveness of every running activity.
type Watchdog interface {
	Register(id string, timeout time.Duration) error
	Feed(id string) error
	Deregister(id string) error
}

type Entry struct {
	Name     string
	Core     int
	Period   time.Duration
	Priority int
	// Timeout is the watchdog deadline of the activity. Zero means the scheduler timeout.
	// It must be greater than Period.
	Timeout time.Duration
	Work    func(ctx context.Context) error
}

type Stat struct {
	Name      string        `json:"name"`
	Core      int           `json:"core"`
	Period    time.Duration `json:"period"`
	Priority  int           `json:"priority"`
	Cycles    uint64        `json:"cycles"`
	LastRun   time.Duration `json:"last_run"`
	LastError string        `json:"last_error,omitempty"`
}

type activity struct {
	Entry
	mu    sync.Mutex
	stat  Stat
	ready chan struct{}
}

// A Scheduler runs a static table of periodic activities.
// Each activity owns a goroutine and sleeps exactly its period between two cycles.
type Scheduler struct {
	mu         sync.Mutex
	log        logger.Logger
	watchdog   Watchdog
	timeout    time.Duration
	activities []*activity
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	started    bool
}

func New(log logger.Logger, watchdog Watchdog, timeout time.Duration, entries ...Entry) *Scheduler {
	s := &Scheduler{
		log:      log.WithPrefix("[scheduler]"),
		watchdog: watchdog,
		timeout:  timeout,
	}
	for _, e := range entries {
		s.activities = append(s.activities, &activity{
			Entry: e,
			stat: Stat{
				Name:     e.Name,
				Core:     e.Core,
				Period:   e.Period,
				Priority: e.Priority,
			},
			ready: make(chan struct{}),
		})
	}

	return s
}

func (s *Scheduler) validate() error {
	names := make(map[string]bool, len(s.activities))
	for _, a := range s.activities {
		switch {
		case a.Name == "":
			return fmt.Errorf("empty name: %w", ErrInvalidEntry)
		case names[a.Name]:
			return fmt.Errorf("%s: duplicated name: %w", a.Name, ErrInvalidEntry)
		case a.Period <= 0:
			return fmt.Errorf("%s: non-positive period: %w", a.Name, ErrInvalidEntry)
		case s.deadline(a) <= a.Period:
			return fmt.Errorf("%s: period %s not below watchdog timeout %s: %w", a.Name, a.Period, s.deadline(a), ErrInvalidEntry)
		case a.Core < 0 || a.Core >= Cores:
			return fmt.Errorf("%s: core %d out of range: %w", a.Name, a.Core, ErrInvalidEntry)
		case a.Work == nil:
			return fmt.Errorf("%s: missing work: %w", a.Name, ErrInvalidEntry)
		}
		names[a.Name] = true
	}

	return nil
}

func (s *Scheduler) deadline(a *activity) time.Duration {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return s.timeout
}

// Start registers every activity with the watchdog and launches them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("scheduler already started")
	}
	if err := s.validate(); err != nil {
		return err
	}

	for i, a := range s.activities {
		if err := s.watchdog.Register(a.Name, s.deadline(a)); err != nil {
			for j := i - 1; j >= 0; j-- {
				s.watchdog.Deregister(s.activities[j].Name)
			}
			return fmt.Errorf("register %s: %w", a.Name, err)
		}
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, a := range s.activities {
		s.wg.Add(1)
		go s.run(ctx, a)
	}
	for _, a := range s.activities {
		<-a.ready
	}
	s.started = true

	s.log.Infof("%d activities started", len(s.activities))
	return nil
}

func (s *Scheduler) run(ctx context.Context, a *activity) {
	defer s.wg.Done()

	// Never unlocked: the pinned thread exits with the goroutine instead of returning to the pool.
	runtime.LockOSThread()

	log := s.log.WithPrefix("[" + a.Name + "]")
	if err := pin(a.Core, a.Priority); err != nil {
		log.WithError(err).Debug("Could not pin activity")
	}
	close(a.ready)

	log.Debugf("Running on core %d every %s (priority %d)", a.Core, a.Period, a.Priority)

	timer := time.NewTimer(a.Period)
	defer timer.Stop()

	for {
		start := time.Now()
		err := a.Work(ctx)
		elapsed := time.Since(start)

		if err != nil && ctx.Err() == nil {
			log.WithError(err).Error("Cycle failed")
		}
		a.record(elapsed, err)

		if err := s.watchdog.Feed(a.Name); err != nil {
			log.WithError(err).Error("Could not feed watchdog")
		}

		timer.Reset(a.Period)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

func (a *activity) record(elapsed time.Duration, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stat.Cycles++
	a.stat.LastRun = elapsed
	a.stat.LastError = ""
	if err != nil {
		a.stat.LastError = err.Error()
	}
}

// Stop cancels every activity, waits for them and deregisters them in reverse start order.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.started = false

	s.cancel()
	s.wg.Wait()

	for i := len(s.activities) - 1; i >= 0; i-- {
		name := s.activities[i].Name
		if err := s.watchdog.Deregister(name); err != nil {
			s.log.WithError(err).Errorf("Could not deregister %s", name)
		}
	}

	s.log.Info("Activities stopped")
}

func (s *Scheduler) Stats() []Stat {
	stats := make([]Stat, 0, len(s.activities))
	for _, a := range s.activities {
		a.mu.Lock()
		stats = append(stats, a.stat)
		a.mu.Unlock()
	}

	return stats
}
