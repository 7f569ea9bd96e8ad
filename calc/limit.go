package calc

import (
	"math"
	"sync/atomic"
)

// SafeCurrentLimit is the human safety ceiling of the load current, in amperes.
const SafeCurrentLimit = 0.1

// A Limiter enforces a requested current limit that can never exceed its safety ceiling.
// It is safe for concurrent use.
type Limiter struct {
	ceiling float64
	applied atomic.Uint64
}

// NewLimiter returns a Limiter whose applied limit starts at the ceiling.
func NewLimiter(ceiling float64) *Limiter {
	l := &Limiter{ceiling: ceiling}
	l.applied.Store(math.Float64bits(ceiling))
	return l
}

// Set applies min(requested, ceiling) and returns the applied value.
// A NaN request is clamped to the ceiling.
func (l *Limiter) Set(requested float64) float64 {
	applied := requested
	if !(applied <= l.ceiling) {
		applied = l.ceiling
	}
	l.applied.Store(math.Float64bits(applied))
	return applied
}

func (l *Limiter) Limit() float64 {
	return math.Float64frombits(l.applied.Load())
}

func (l *Limiter) Ceiling() float64 {
	return l.ceiling
}

// Exceeded reports whether current is above the applied limit.
func (l *Limiter) Exceeded(current float64) bool {
	return current > l.Limit()
}
