package pipeline

import (
	"errors"
	"sync"
)

// ErrCapacityExceeded is returned by Acquire when every slot is taken.
var ErrCapacityExceeded = errors.New("pipeline at capacity")

// Limiter caps the number of jobs running at once. There is no queue:
// Acquire either hands out a slot immediately or fails.
type Limiter struct {
	mu     sync.Mutex
	max    int
	active int
}

// NewLimiter returns a Limiter with max slots. max below 1 is treated as 1.
func NewLimiter(max int) *Limiter {
	if max < 1 {
		max = 1
	}
	return &Limiter{max: max}
}

// Acquire takes a slot or returns ErrCapacityExceeded.
func (l *Limiter) Acquire() (*Slot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active >= l.max {
		return nil, ErrCapacityExceeded
	}
	l.active++
	return &Slot{l: l}, nil
}

// Active returns the number of slots currently held.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Max returns the slot count.
func (l *Limiter) Max() int { return l.max }

// Slot is a held unit of capacity. Release may be called any number of times.
type Slot struct {
	l    *Limiter
	once sync.Once
}

func (s *Slot) Release() {
	s.once.Do(func() {
		s.l.mu.Lock()
		s.l.active--
		s.l.mu.Unlock()
	})
}
