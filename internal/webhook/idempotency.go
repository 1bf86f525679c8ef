package webhook

import (
	"sync"
)

// DefaultEventCacheCapacity bounds the processed-event set.
const DefaultEventCacheCapacity = 1000

// EventCache is a bounded, insertion-ordered set of processed provider event
// IDs. Past capacity it evicts exactly the oldest-inserted entry (not
// access-order LRU). It is process-local and forgets on restart, so the
// per-handler status gate remains the second line of defense; this cache is a
// fast-path optimization only.
type EventCache struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	ring     []string
	next     int
	size     int
}

// NewEventCache creates a cache with the given capacity. Non-positive
// capacities fall back to the default.
func NewEventCache(capacity int) *EventCache {
	if capacity <= 0 {
		capacity = DefaultEventCacheCapacity
	}
	return &EventCache{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		ring:     make([]string, capacity),
	}
}

// ProcessEvent records the event ID and reports whether the caller should
// process it. Duplicates report shouldProcess=false with a reason.
func (c *EventCache) ProcessEvent(eventID string) (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[eventID]; ok {
		return false, "event already processed"
	}

	if c.size == c.capacity {
		oldest := c.ring[c.next]
		delete(c.seen, oldest)
		c.size--
	}

	c.ring[c.next] = eventID
	c.next = (c.next + 1) % c.capacity
	c.size++
	c.seen[eventID] = struct{}{}

	return true, ""
}

// Contains reports membership without recording anything
func (c *EventCache) Contains(eventID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[eventID]
	return ok
}

// Len returns the number of tracked event IDs
func (c *EventCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}
