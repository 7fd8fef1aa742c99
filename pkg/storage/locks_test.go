package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingLockExclusive(t *testing.T) {
	lock := newProcessingLock()

	require.True(t, lock.TryAcquire())
	assert.False(t, lock.TryAcquire(), "a held lock must not be acquirable")
	assert.True(t, lock.Held())

	lock.Release()
	assert.False(t, lock.Held())
	assert.True(t, lock.TryAcquire(), "a released lock must be acquirable again")
}

func TestProcessingLockAcquireBlocks(t *testing.T) {
	lock := newProcessingLock()
	require.True(t, lock.TryAcquire())

	acquired := make(chan struct{})
	go func() {
		if err := lock.Acquire(context.Background()); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire succeeded while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	lock.Release()

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire never unblocked after release")
	}
}

func TestProcessingLockAcquireHonorsContext(t *testing.T) {
	lock := newProcessingLock()
	require.True(t, lock.TryAcquire())
	defer lock.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := lock.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessingLockReleaseUnheldPanics(t *testing.T) {
	lock := newProcessingLock()
	assert.Panics(t, func() { lock.Release() })
}

func TestLockTableLazyAndStable(t *testing.T) {
	table := newLockTable()

	a := table.get("checksum-a")
	b := table.get("checksum-b")
	assert.NotSame(t, a, b, "different checksums get different locks")
	assert.Same(t, a, table.get("checksum-a"), "repeated lookups return the same lock")

	assert.False(t, table.held("checksum-a"))
	require.True(t, a.TryAcquire())
	assert.True(t, table.held("checksum-a"))
	assert.False(t, table.held("checksum-b"))
	a.Release()

	assert.False(t, table.held("never-seen"), "querying an unknown checksum must not acquire anything")
}

func TestLockTableConcurrentGet(t *testing.T) {
	table := newLockTable()

	var wg sync.WaitGroup
	locks := make([]*processingLock, 16)
	for i := range locks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locks[i] = table.get("contended")
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(locks); i++ {
		assert.Same(t, locks[0], locks[i], "concurrent first access must converge on one lock")
	}
}
