package keylock

import (
	"sync"
	"testing"
	"time"
)

func TestLocker_SerializesSameKey(t *testing.T) {
	t.Parallel()

	l := New[string]()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("ride-1")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("max concurrent holders=%d, want 1", maxSeen)
	}
	if n := l.Len(); n != 0 {
		t.Fatalf("Len()=%d after all unlocks, want 0", n)
	}
}

func TestLocker_DifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	l := New[string]()
	unlockA := l.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("lock on key b blocked behind key a")
	}
}

func TestLocker_UnlockIsIdempotent(t *testing.T) {
	t.Parallel()

	var l Locker[int]
	unlock := l.Lock(7)
	unlock()
	unlock()

	if n := l.Len(); n != 0 {
		t.Fatalf("Len()=%d, want 0", n)
	}
	// Re-acquiring must not deadlock.
	l.Lock(7)()
}
