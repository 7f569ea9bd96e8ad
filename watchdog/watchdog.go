package watchdog

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mdouchement/logger"
)

var (
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotRegistered     = errors.New("not registered")
	ErrDeadlineMissed    = errors.New("deadline missed")
)

const (
	DefaultTimeout      = 5 * time.Second
	DefaultPollInterval = 100 * time.Millisecond

	touchInterval = time.Second
)

type State uint8

const (
	Running State = iota
	Fatal
)

func (s State) String() string {
	if s == Fatal {
		return "fatal"
	}
	return "running"
}

// An Escalator is called once, when the first deadline is missed.
type Escalator interface {
	Escalate(err error)
}

type EscalatorFunc func(err error)

func (f EscalatorFunc) Escalate(err error) {
	f(err)
}

// ExitEscalator terminates the process so the service manager restarts it.
type ExitEscalator struct {
	Log  logger.Logger
	Code int
}

func (e ExitEscalator) Escalate(err error) {
	e.Log.WithError(err).Error("Watchdog expired, restarting")
	code := e.Code
	if code == 0 {
		code = 3
	}
	os.Exit(code)
}

type Registration struct {
	ID           string        `json:"id"`
	Timeout      time.Duration `json:"timeout"`
	RegisteredAt time.Time     `json:"registered_at"`
	LastFeed     time.Time     `json:"last_feed"`
	lastTouch    time.Time
}

// A Supervisor requires every registered context to feed it within its timeout.
// Missing a single deadline is fatal for the whole process.
type Supervisor struct {
	mu        sync.Mutex
	log       logger.Logger
	escalator Escalator
	now       func() time.Time
	poll      time.Duration
	touchDir  string
	entries   map[string]*Registration
	state     State
}

type Option func(*Supervisor)

func WithClock(now func() time.Time) Option {
	return func(s *Supervisor) {
		s.now = now
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.poll = d
		}
	}
}

// WithTouchDir makes every feed touch <dir>/<id>.touch (at most once per second)
// so an external watchdog can observe liveness.
func WithTouchDir(dir string) Option {
	return func(s *Supervisor) {
		s.touchDir = dir
	}
}

func New(log logger.Logger, escalator Escalator, opts ...Option) *Supervisor {
	s := &Supervisor{
		log:       log.WithPrefix("[watchdog]"),
		escalator: escalator,
		now:       time.Now,
		poll:      DefaultPollInterval,
		entries:   make(map[string]*Registration),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Supervisor) Register(id string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; ok {
		s.log.Errorf("Register %s: %s", id, ErrAlreadyRegistered)
		return fmt.Errorf("%s: %w", id, ErrAlreadyRegistered)
	}

	now := s.now()
	r := &Registration{
		ID:           id,
		Timeout:      timeout,
		RegisteredAt: now,
		LastFeed:     now,
	}
	s.entries[id] = r
	s.touch(r, now)

	s.log.Infof("Registered %s (timeout %s)", id, timeout)
	return nil
}

// Feed resets the deadline of id. Feeding an unknown context is logged and ignored.
func (s *Supervisor) Feed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.entries[id]
	if !ok {
		s.log.Warnf("Feed %s: %s", id, ErrNotRegistered)
		return fmt.Errorf("%s: %w", id, ErrNotRegistered)
	}

	now := s.now()
	if elapsed := now.Sub(r.LastFeed); elapsed > r.Timeout/2 {
		s.log.Warnf("%s took a long time to feed: %s", id, elapsed)
	}
	r.LastFeed = now
	s.touch(r, now)

	return nil
}

func (s *Supervisor) Deregister(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.entries[id]
	if !ok {
		s.log.Warnf("Deregister %s: %s", id, ErrNotRegistered)
		return fmt.Errorf("%s: %w", id, ErrNotRegistered)
	}
	delete(s.entries, id)

	if s.touchDir != "" && !r.lastTouch.IsZero() {
		if err := os.Remove(s.touchFile(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.WithError(err).Errorf("Could not remove touch file of %s", id)
		}
	}

	s.log.Infof("Deregistered %s", id)
	return nil
}

// Check returns the contexts whose deadline elapsed.
// The first time it finds any, the supervisor turns fatal and escalates.
func (s *Supervisor) Check() []string {
	s.mu.Lock()

	now := s.now()
	var expired []string
	for _, id := range slices.Sorted(maps.Keys(s.entries)) {
		r := s.entries[id]
		if now.Sub(r.LastFeed) > r.Timeout {
			expired = append(expired, id)
		}
	}

	if len(expired) == 0 || s.state == Fatal {
		s.mu.Unlock()
		return expired
	}

	s.state = Fatal
	s.mu.Unlock()

	err := fmt.Errorf("%s: %w", strings.Join(expired, ", "), ErrDeadlineMissed)
	s.log.WithError(err).Error("Liveness lost")
	s.escalator.Escalate(err)

	return expired
}

// Run checks deadlines until ctx is done or the supervisor turned fatal.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check()
			if s.State() == Fatal {
				return
			}
		}
	}
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Supervisor) Registrations() []Registration {
	s.mu.Lock()
	defer s.mu.Unlock()

	registrations := make([]Registration, 0, len(s.entries))
	for _, id := range slices.Sorted(maps.Keys(s.entries)) {
		registrations = append(registrations, *s.entries[id])
	}

	return registrations
}

func (s *Supervisor) touchFile(id string) string {
	return filepath.Join(s.touchDir, id+".touch")
}

func (s *Supervisor) touch(r *Registration, now time.Time) {
	if s.touchDir == "" || now.Sub(r.lastTouch) < touchInterval {
		return
	}

	filename := s.touchFile(r.ID)
	if _, err := os.Stat(filename); err != nil {
		file, err := os.Create(filename)
		if err != nil {
			s.log.WithError(err).Errorf("Could not create touch file of %s", r.ID)
			return
		}
		file.Close()
	}

	wall := time.Now()
	if err := os.Chtimes(filename, wall, wall); err != nil {
		s.log.WithError(err).Errorf("Could not touch %s", filename)
		return
	}
	r.lastTouch = now
}
