// Package keylock provides one exclusive critical section per key.
//
// Unrelated keys never contend with each other; entries are reference counted and
// dropped once nobody holds or waits for them, so the table does not grow with the
// number of keys ever seen.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker is a table of per-key mutexes. The zero value is ready to use.
type Locker[K comparable] struct {
	mu      sync.Mutex
	entries map[K]*entry
}

func New[K comparable]() *Locker[K] {
	return &Locker[K]{entries: make(map[K]*entry)}
}

// Lock blocks until the critical section for key is free and returns its release func.
func (l *Locker[K]) Lock(key K) (unlock func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[K]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len reports how many keys are currently held or waited on.
func (l *Locker[K]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
