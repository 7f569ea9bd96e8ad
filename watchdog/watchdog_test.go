package watchdog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mdouchement/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	errors []error
}

func (r *recorder) Escalate(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
}

func (r *recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func discard() logger.Logger {
	return logger.WrapSlogHandler(slog.NewTextHandler(io.Discard, nil))
}

func TestSupervisor_FedInTime(t *testing.T) {
	c := newClock()
	esc := &recorder{}
	s := New(discard(), esc, WithClock(c.Now))

	require.NoError(t, s.Register("sensing", 5*time.Second))

	for range 20 {
		c.Advance(4 * time.Second)
		require.NoError(t, s.Feed("sensing"))
		assert.Empty(t, s.Check())
	}

	assert.Equal(t, 0, esc.Count())
	assert.Equal(t, Running, s.State())
}

func TestSupervisor_EscalatesOnce(t *testing.T) {
	c := newClock()
	esc := &recorder{}
	s := New(discard(), esc, WithClock(c.Now))

	require.NoError(t, s.Register("link", 5*time.Second))
	require.NoError(t, s.Register("battery", 5*time.Second))

	c.Advance(3 * time.Second)
	require.NoError(t, s.Feed("battery"))

	c.Advance(2500 * time.Millisecond)
	assert.Equal(t, []string{"link"}, s.Check())
	assert.Equal(t, Fatal, s.State())
	require.Equal(t, 1, esc.Count())
	assert.ErrorIs(t, esc.errors[0], ErrDeadlineMissed)

	c.Advance(10 * time.Second)
	assert.Equal(t, []string{"battery", "link"}, s.Check())
	assert.Equal(t, 1, esc.Count())
}

func TestSupervisor_ExactDeadline(t *testing.T) {
	c := newClock()
	esc := &recorder{}
	s := New(discard(), esc, WithClock(c.Now))

	require.NoError(t, s.Register("diagnostics", 5*time.Second))
	c.Advance(5 * time.Second)
	assert.Empty(t, s.Check())

	c.Advance(time.Millisecond)
	assert.Equal(t, []string{"diagnostics"}, s.Check())
	assert.Equal(t, 1, esc.Count())
}

func TestSupervisor_Registration(t *testing.T) {
	c := newClock()
	s := New(discard(), &recorder{}, WithClock(c.Now))

	require.NoError(t, s.Register("link", 0))
	assert.ErrorIs(t, s.Register("link", time.Second), ErrAlreadyRegistered)

	registrations := s.Registrations()
	require.Len(t, registrations, 1)
	assert.Equal(t, DefaultTimeout, registrations[0].Timeout)

	assert.ErrorIs(t, s.Feed("ghost"), ErrNotRegistered)
	assert.ErrorIs(t, s.Deregister("ghost"), ErrNotRegistered)

	require.NoError(t, s.Deregister("link"))
	assert.Empty(t, s.Registrations())

	// A deregistered context is not supervised anymore.
	c.Advance(time.Minute)
	assert.Empty(t, s.Check())
}

func TestSupervisor_TouchFiles(t *testing.T) {
	dir := t.TempDir()
	c := newClock()
	s := New(discard(), &recorder{}, WithClock(c.Now), WithTouchDir(dir))

	require.NoError(t, s.Register("sensing", time.Second))
	filename := filepath.Join(dir, "sensing.touch")
	assert.FileExists(t, filename)

	c.Advance(500 * time.Millisecond)
	require.NoError(t, s.Feed("sensing"))
	assert.FileExists(t, filename)

	require.NoError(t, s.Deregister("sensing"))
	_, err := os.Stat(filename)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSupervisor_Run(t *testing.T) {
	esc := &recorder{}
	s := New(discard(), esc, WithPollInterval(5*time.Millisecond))

	require.NoError(t, s.Register("stalled", 20*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("supervisor did not escalate")
	}
	assert.Equal(t, 1, esc.Count())
	assert.Equal(t, Fatal, s.State())
}

func TestEscalatorFunc(t *testing.T) {
	var got error
	EscalatorFunc(func(err error) { got = err }).Escalate(ErrDeadlineMissed)
	assert.ErrorIs(t, got, ErrDeadlineMissed)
}
