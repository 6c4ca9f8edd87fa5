// ABOUTME: Thread-safe TTL filter that recognises a chat session's own messages coming back
// ABOUTME: A payload is expected once per send and suppressed once per matching receipt

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// pendingEcho tracks how many copies of a payload are still expected.
type pendingEcho struct {
	key     string
	count   int
	expires time.Time
}

// EchoFilter remembers payloads this session just published so the live
// listener can skip them when the channel delivers them back.
// Uses a doubly-linked list in expectation order for O(1) eviction.
type EchoFilter struct {
	mu         sync.Mutex
	pending    map[string]*list.Element
	order      *list.List // *pendingEcho, oldest at front
	ttl        time.Duration
	maxPending int
	now        func() time.Time
	done       chan struct{}
	closed     bool
}

// NewEchoFilter creates a filter whose expectations lapse after ttl. At most
// maxPending distinct payloads are tracked; the oldest is dropped beyond that.
// A background goroutine periodically removes lapsed entries.
func NewEchoFilter(ttl time.Duration, maxPending int) *EchoFilter {
	if maxPending <= 0 {
		maxPending = 1024
	}
	f := &EchoFilter{
		pending:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxPending: maxPending,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go f.cleanup()
	return f
}

// Expect records that key is about to be published by this session.
// Calling it twice for the same key expects two echoes.
func (f *EchoFilter) Expect(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	expires := f.now().Add(f.ttl)
	if elem, ok := f.pending[key]; ok {
		p := elem.Value.(*pendingEcho)
		p.count++
		p.expires = expires
		f.order.MoveToBack(elem)
		return
	}

	if len(f.pending) >= f.maxPending {
		f.evictOldest()
	}
	f.pending[key] = f.order.PushBack(&pendingEcho{key: key, count: 1, expires: expires})
}

// Suppress reports whether key is an expected echo, consuming one expectation.
// Returns false for anything this session did not publish (or published too long ago).
func (f *EchoFilter) Suppress(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	elem, ok := f.pending[key]
	if !ok {
		return false
	}
	p := elem.Value.(*pendingEcho)
	if f.now().After(p.expires) {
		f.removeLocked(elem)
		return false
	}

	p.count--
	if p.count == 0 {
		f.removeLocked(elem)
	}
	return true
}

// Len returns the number of distinct payloads still expected.
func (f *EchoFilter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// removeLocked drops an entry. Must be called with mu held.
func (f *EchoFilter) removeLocked(elem *list.Element) {
	p := elem.Value.(*pendingEcho)
	f.order.Remove(elem)
	delete(f.pending, p.key)
}

// evictOldest removes the oldest expectation. Must be called with mu held.
func (f *EchoFilter) evictOldest() {
	if front := f.order.Front(); front != nil {
		f.removeLocked(front)
	}
}

// cleanup runs in a background goroutine, periodically removing lapsed entries.
func (f *EchoFilter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.runCleanup()
		case <-f.done:
			return
		}
	}
}

// runCleanup removes lapsed entries. Entries are refreshed on MoveToBack, so
// the front of the list is always the next to lapse.
func (f *EchoFilter) runCleanup() {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	for front := f.order.Front(); front != nil; front = f.order.Front() {
		if !now.After(front.Value.(*pendingEcho).expires) {
			return
		}
		f.removeLocked(front)
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (f *EchoFilter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		close(f.done)
		f.closed = true
	}
}
