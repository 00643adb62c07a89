/**
 * @description
 * Per-key mutual exclusion. User-triggered mutations and the reconciler
 * sweep serialize on the same listing key, and wallet/carryover flows
 * serialize on the owner key, so the engine behaves like the legacy
 * single-writer queue without being single-threaded.
 */
package app

import "sync"

// keyedMutex hands out one mutex per key. Entries are retained for the
// lifetime of the process; the key space is bounded by the number of
// listings and users touched.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
