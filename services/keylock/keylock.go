// Package keylock serialises work on the same outlet natural key inside one process.
package keylock

import (
	"hash/fnv"
	"sync"
)

// DefaultStripes is used when NewKeyLocker is given a non-positive count
const DefaultStripes = 256

// KeyLocker is a striped mutex keyed by string. Two keys may share a stripe,
// which only costs some parallelism; the same key always maps to one stripe.
type KeyLocker struct {
	stripes []sync.Mutex
}

// NewKeyLocker creates a locker with n stripes
func NewKeyLocker(n int) *KeyLocker {
	if n <= 0 {
		n = DefaultStripes
	}
	return &KeyLocker{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function
func (l *KeyLocker) Lock(key string) func() {
	mu := &l.stripes[l.index(key)]
	mu.Lock()
	return mu.Unlock
}

func (l *KeyLocker) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.stripes)))
}
