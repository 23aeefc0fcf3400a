// Package keylock provides a striped mutex table for serializing work on
// string keys. Operations on the same key run one at a time; operations on
// distinct keys proceed in parallel unless they collide on a stripe.
package keylock

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// Table is a fixed-size set of mutex stripes addressed by key hash
type Table struct {
	stripes []sync.Mutex
}

// New creates a lock table with the given stripe count. A count of zero or
// less selects the default.
func New(stripes int) *Table {
	if stripes <= 0 {
		stripes = defaultStripes
	}
	return &Table{stripes: make([]sync.Mutex, stripes)}
}

func (t *Table) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &t.stripes[h.Sum32()%uint32(len(t.stripes))]
}

// Lock acquires the stripe owning key
func (t *Table) Lock(key string) {
	t.stripe(key).Lock()
}

// Unlock releases the stripe owning key
func (t *Table) Unlock(key string) {
	t.stripe(key).Unlock()
}

// WithLock runs fn while holding the stripe owning key
func (t *Table) WithLock(key string, fn func() error) error {
	m := t.stripe(key)
	m.Lock()
	defer m.Unlock()
	return fn()
}
