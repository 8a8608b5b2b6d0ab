package peer

import (
	"container/heap"
	"sync"
	"time"
)

// dedupWindow is a time-indexed set of seen message ids: a min-heap of
// (expiry, id) drained on every lookup, giving O(log n) inserts and bounded
// memory instead of one goroutine per gossip message seen.
type dedupWindow struct {
	ttl time.Duration

	mu    sync.Mutex
	seen  map[string]struct{}
	items expiryHeap
}

type expiryItem struct {
	id     string
	expiry time.Time
}

type expiryHeap []expiryItem

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiry.Before(h[j].expiry) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)         { *h = append(*h, x.(expiryItem)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// newDedupWindow constructs a dedup set whose entries age out after ttl.
func newDedupWindow(ttl time.Duration) *dedupWindow {
	return &dedupWindow{
		ttl:  ttl,
		seen: make(map[string]struct{}),
	}
}

// SeenOrRecord reports whether id has already been recorded within the
// window. If it has not, it is recorded and false is returned. Every call
// first drains entries that have aged out.
func (d *dedupWindow) SeenOrRecord(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for d.items.Len() > 0 && d.items[0].expiry.Before(now) {
		expired := heap.Pop(&d.items).(expiryItem)
		delete(d.seen, expired.id)
	}

	if _, ok := d.seen[id]; ok {
		return true
	}

	d.seen[id] = struct{}{}
	heap.Push(&d.items, expiryItem{id: id, expiry: now.Add(d.ttl)})
	return false
}
