package telemetry

import "sync"

// Fake records published telemetry for test assertions.
type Fake struct {
	mu       sync.Mutex
	statuses [][]byte
	events   []Event
	closed   bool

	// PublishError, if set, is returned by every publish.
	PublishError error
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) PublishStatus(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	f.statuses = append(f.statuses, append([]byte(nil), payload...))
	return nil
}

func (f *Fake) PublishEvent(event Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	f.events = append(f.events, event)
	return nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

func (f *Fake) Statuses() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.statuses...)
}

func (f *Fake) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
