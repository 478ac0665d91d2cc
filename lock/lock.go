// Package lock serializes operations on the same book.
package lock

import (
	"context"
	"sync"
)

// Locker grants exclusive access to a key. Acquire blocks until the key is
// free or ctx is done. The returned release func must be called exactly
// once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process keyed lock. Entries are dropped when no goroutine
// holds or waits for them.
type Local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

type entry struct {
	sem  chan struct{}
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty Local.
func NewLocal() *Local {
	return &Local{keys: make(map[string]*entry)}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.unref(key, e)
		})
	}, nil
}

func (l *Local) unref(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}

// Len returns the number of keys currently held or awaited.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
