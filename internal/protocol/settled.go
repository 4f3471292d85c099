package protocol

import (
	"context"
	"sync"
)

// Settled is a write-once result that any number of goroutines can wait on.
type Settled struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewSettled creates an unresolved value.
func NewSettled() *Settled {
	return &Settled{done: make(chan struct{})}
}

// Resolve stores the outcome. Only the first call has any effect; it reports
// whether this call was the one that settled the value.
func (s *Settled) Resolve(value any, err error) bool {
	settled := false
	s.once.Do(func() {
		s.value = value
		s.err = err
		close(s.done)
		settled = true
	})
	return settled
}

// Done is closed once the value is resolved.
func (s *Settled) Done() <-chan struct{} {
	return s.done
}

// Resolved reports whether Resolve has been called.
func (s *Settled) Resolved() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the value is resolved or ctx is done.
func (s *Settled) Wait(ctx context.Context) (any, error) {
	select {
	case <-s.done:
		return s.value, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the stored outcome without blocking. It is only meaningful
// once Done is closed.
func (s *Settled) Result() (any, error) {
	if !s.Resolved() {
		return nil, nil
	}
	return s.value, s.err
}
