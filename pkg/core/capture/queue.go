// Package capture maintains the ordered set of auxiliary visual captures
// tied to a session.
package capture

import (
	"sync"

	"github.com/google/uuid"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

// Queue holds capture items in arrival order. Items are only removed by
// explicit deletion or a whole-set clear, never evicted partially.
type Queue struct {
	mu    sync.Mutex
	items []types.CaptureItem
	ids   map[string]struct{}
	refs  map[string]struct{}
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		ids:  make(map[string]struct{}),
		refs: make(map[string]struct{}),
	}
}

// Add appends an item. Duplicates by id or image reference are ignored.
// An item without an id is assigned one.
func (q *Queue) Add(item types.CaptureItem) (types.CaptureItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if _, dup := q.ids[item.ID]; dup {
		return types.CaptureItem{}, false
	}
	if _, dup := q.refs[item.ImageRef]; dup && item.ImageRef != "" {
		return types.CaptureItem{}, false
	}
	q.ids[item.ID] = struct{}{}
	if item.ImageRef != "" {
		q.refs[item.ImageRef] = struct{}{}
	}
	q.items = append(q.items, item)
	return item, true
}

// Delete removes a single item by id.
func (q *Queue) Delete(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, item := range q.items {
		if item.ID != id {
			continue
		}
		delete(q.ids, id)
		delete(q.refs, item.ImageRef)
		q.items = append(q.items[:i], q.items[i+1:]...)
		return true
	}
	return false
}

// Clear empties the set. The engine mirrors this to the backend so peers
// observing the session converge.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.ids = make(map[string]struct{})
	q.refs = make(map[string]struct{})
}

// Hydrate replaces the contents from a snapshot on join or reconnect.
func (q *Queue) Hydrate(items []types.CaptureItem) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.ids = make(map[string]struct{})
	q.refs = make(map[string]struct{})
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if _, dup := q.ids[item.ID]; dup {
			continue
		}
		q.ids[item.ID] = struct{}{}
		if item.ImageRef != "" {
			q.refs[item.ImageRef] = struct{}{}
		}
		q.items = append(q.items, item)
	}
}

// Items returns the captures in arrival order.
func (q *Queue) Items() []types.CaptureItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]types.CaptureItem, len(q.items))
	copy(out, q.items)
	return out
}

// Len reports the number of captures held.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
