package storage

import (
	"context"
	"sync"
)

// processingLock is an exclusive lock guarding derivation work for one
// checksum. It is backed by a one-slot channel so holders can be observed
// (Held) without contending for the lock itself.
type processingLock struct {
	ch chan struct{}
}

func newProcessingLock() *processingLock {
	return &processingLock{ch: make(chan struct{}, 1)}
}

// Acquire blocks until the lock is held or ctx is done.
func (l *processingLock) Acquire(ctx context.Context) error {
	select {
	case l.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the lock without blocking. Returns false if held.
func (l *processingLock) TryAcquire() bool {
	select {
	case l.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees the lock. Calling Release on an unheld lock is a bug and
// panics rather than corrupting the holder count.
func (l *processingLock) Release() {
	select {
	case <-l.ch:
	default:
		panic("storage: release of unheld processing lock")
	}
}

// Held reports whether some task currently holds the lock.
func (l *processingLock) Held() bool {
	return len(l.ch) == 1
}

// lockTable is the per-checksum lock arena. Entries are created lazily on
// first access under the table guard and never removed for the process
// lifetime; an orphaned entry after file deletion is harmless.
//
// Absence of an entry means "no derivation ever attempted or running", not
// "derivation complete".
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*processingLock
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*processingLock)}
}

// get returns the lock for checksum, creating it on first access.
func (t *lockTable) get(checksum string) *processingLock {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[checksum]
	if !ok {
		l = newProcessingLock()
		t.locks[checksum] = l
	}
	return l
}

// held reports whether a derivation task currently holds the lock for
// checksum. A checksum with no lock entry is not processing.
func (t *lockTable) held(checksum string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[checksum]
	return ok && l.Held()
}
