package exchange

import (
	"sync"
	"time"

	"github.com/backkem/coap/pkg/message"
)

// dedupEntry remembers a received message ID and the answer sent for it.
type dedupEntry struct {
	response *message.Message
	timer    *time.Timer
}

// DedupTable detects duplicate requests (RFC 7252 Section 4.5).
// Entries expire after the lifetime given to Track.
//
// Thread-safe for concurrent access.
type DedupTable struct {
	entries map[peerKey]*dedupEntry
	mu      sync.Mutex
}

// NewDedupTable creates an empty table.
func NewDedupTable() *DedupTable {
	return &DedupTable{entries: make(map[peerKey]*dedupEntry)}
}

// Track records key as seen. It returns false and the stored answer (which
// may still be nil) when key was already seen.
func (t *DedupTable) Track(key peerKey, lifetime time.Duration) (*message.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.entries[key]; ok {
		return entry.response, false
	}

	entry := &dedupEntry{}
	entry.timer = time.AfterFunc(lifetime, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if current, ok := t.entries[key]; ok && current == entry {
			delete(t.entries, key)
		}
	})
	t.entries[key] = entry
	return nil, true
}

// SetResponse stores the answer to replay for key.
func (t *DedupTable) SetResponse(key peerKey, response *message.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.entries[key]; ok {
		entry.response = response
	}
}

// Lookup returns the stored answer for key.
func (t *DedupTable) Lookup(key peerKey) (*message.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	return entry.response, true
}

// Count returns the number of remembered message IDs.
func (t *DedupTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear forgets everything.
func (t *DedupTable) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, entry := range t.entries {
		entry.timer.Stop()
		delete(t.entries, key)
	}
}
