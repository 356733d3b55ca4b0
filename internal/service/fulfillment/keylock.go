package fulfillment

import "sync"

// keyedLocks serializes writers per entity key so that unrelated entities
// proceed concurrently. Lock ordering across entity kinds is fixed:
// delivery, then order item, then order. Entries are reference-counted and
// removed once the last holder releases, so the map only holds keys with
// live contention.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*lockEntry)}
}

// acquire locks the mutex for key and returns its release func.
func (k *keyedLocks) acquire(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
