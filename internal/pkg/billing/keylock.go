package billing

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// keyMutex serializes operations per string key using a fixed set of lock
// stripes. Customer creation and card-default mutations go through it so
// the at-most-one invariants hold under concurrent callers.
type keyMutex struct {
	stripes [lockStripes]sync.Mutex
}

// Lock acquires the stripe for key and returns it for deferred unlocking.
func (k *keyMutex) Lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &k.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m
}
