package session

import "time"

// entry is one node in the eviction ordering heap. Entries are append-only:
// bumping a record pushes a fresh entry instead of re-keying the old one, so
// the heap may hold stale entries for superseded records. The registry map
// is the ground truth; stale entries are discarded during eviction.
type entry struct {
	key        Key
	sessionID  string
	lastAccess time.Time
}

// entryHeap is a min-heap ordered by lastAccess (oldest first).
// It implements container/heap.Interface.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	return h[i].lastAccess.Before(h[j].lastAccess)
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
