// Package lock serializes mutations on accounts and operations.
//
// Keys are plain strings ("account:<id>", "operation:<id>"). A Locker hands
// out an unlock func per key; LockAll takes several keys in sorted order so
// two callers locking overlapping sets can never deadlock.
package lock

import (
	"context"
	"slices"
	"sync"
)

// Locker acquires exclusive access to a key until the returned func runs.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// AccountKey is the lock key for an account.
func AccountKey(id string) string { return "account:" + id }

// OperationKey is the lock key for an operation.
func OperationKey(id string) string { return "operation:" + id }

// Local is an in-process keyed mutex. Entries are reference counted and
// dropped once nobody holds or waits on them.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal creates an empty in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// held returns the number of live keys; used by tests.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// LockAll acquires every key in sorted order, skipping duplicates and
// empty keys. On failure it releases whatever it already took.
func LockAll(ctx context.Context, l Locker, keys ...string) (func(), error) {
	sorted := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			sorted = append(sorted, k)
		}
	}
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	unlocks := make([]func(), 0, len(sorted))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, k := range sorted {
		u, err := l.Lock(ctx, k)
		if err != nil {
			unlockAll()
			return nil, err
		}
		unlocks = append(unlocks, u)
	}
	return unlockAll, nil
}
