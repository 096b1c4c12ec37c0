package service

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryDedup is a bounded recent-history set: least recently seen keys are
// evicted past capacity and entries expire after ttl.
type MemoryDedup struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	ll       *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

type dedupEntry struct {
	key     string
	expires time.Time
}

var _ DedupWindow = (*MemoryDedup)(nil)

// NewMemoryDedup creates a window holding at most capacity keys for ttl each
func NewMemoryDedup(capacity int, ttl time.Duration) *MemoryDedup {
	if capacity <= 0 {
		capacity = 10000
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryDedup{
		ttl:      ttl,
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      time.Now,
	}
}

func (d *MemoryDedup) FirstSeen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if el, ok := d.items[key]; ok {
		entry := el.Value.(*dedupEntry)
		d.ll.MoveToFront(el)
		if now.Before(entry.expires) {
			return false, nil
		}
		entry.expires = now.Add(d.ttl)
		return true, nil
	}

	d.items[key] = d.ll.PushFront(&dedupEntry{key: key, expires: now.Add(d.ttl)})
	for d.ll.Len() > d.capacity {
		oldest := d.ll.Back()
		d.ll.Remove(oldest)
		delete(d.items, oldest.Value.(*dedupEntry).key)
	}
	return true, nil
}

func (d *MemoryDedup) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.items[key]; ok {
		d.ll.Remove(el)
		delete(d.items, key)
	}
	return nil
}

// Len reports how many keys are currently remembered
func (d *MemoryDedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ll.Len()
}
