// Package ready provides a one-shot readiness latch.
package ready

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFired is returned by Wait when the latch was never fired nor failed
// before the context ended.
var ErrNotFired = errors.New("readiness latch not fired")

// Latch resolves at most once, either fired or failed. Subscribers registered
// before or after a Fire are invoked exactly once; a failed latch never
// invokes them.
type Latch struct {
	mu          sync.Mutex
	done        chan struct{}
	fired       bool
	err         error
	subscribers []func()
}

// New creates an unresolved latch.
func New() *Latch {
	return &Latch{done: make(chan struct{})}
}

// Fire resolves the latch successfully. Later calls are no-ops.
func (l *Latch) Fire() {
	l.mu.Lock()
	if l.resolvedLocked() {
		l.mu.Unlock()
		return
	}
	l.fired = true
	subs := l.subscribers
	l.subscribers = nil
	close(l.done)
	l.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Fail resolves the latch with err. Later calls are no-ops.
func (l *Latch) Fail(err error) {
	if err == nil {
		err = errors.New("readiness failed")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resolvedLocked() {
		return
	}
	l.err = err
	l.subscribers = nil
	close(l.done)
}

// Done reports whether the latch fired successfully.
func (l *Latch) Done() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fired
}

// Resolved is closed once the latch fires or fails.
func (l *Latch) Resolved() <-chan struct{} {
	return l.done
}

// Err returns the failure, if any.
func (l *Latch) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Wait blocks until the latch resolves or ctx ends.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return l.Err()
	case <-ctx.Done():
		return errors.Join(ErrNotFired, ctx.Err())
	}
}

// Subscribe registers fn to run once the latch fires. If the latch already
// fired, fn runs before Subscribe returns.
func (l *Latch) Subscribe(fn func()) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	if l.fired {
		l.mu.Unlock()
		fn()
		return
	}
	if l.err == nil {
		l.subscribers = append(l.subscribers, fn)
	}
	l.mu.Unlock()
}

func (l *Latch) resolvedLocked() bool {
	return l.fired || l.err != nil
}
