package exchange

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/backkem/coap/pkg/transport"
)

// peerKey identifies a message ID sent to (or received from) one peer.
type peerKey struct {
	peer string
	id   uint16
}

func newPeerKey(addr net.Addr, id uint16) peerKey {
	return peerKey{peer: transport.AddrKey(addr), id: id}
}

// pendingAck is a separate CON response waiting for its ACK.
// There is at most one entry per (peer, message ID).
type pendingAck struct {
	key       peerKey
	processor *Processor

	// timer fires the ACK timeout. It is re-armed for every retry.
	timer *time.Timer

	// ctx is cancelled when the entry leaves the table, so a timer that
	// already fired sees the entry as stale.
	ctx    context.Context
	cancel context.CancelFunc
}

// AckTable tracks separate responses awaiting acknowledgement.
//
// Thread-safe for concurrent access.
type AckTable struct {
	entries map[peerKey]*pendingAck
	mu      sync.Mutex
}

// NewAckTable creates an empty table.
func NewAckTable() *AckTable {
	return &AckTable{entries: make(map[peerKey]*pendingAck)}
}

// Track registers p as awaiting an ACK for key and arms the first timeout.
// onTimeout runs on the timer goroutine, and only if the entry is still
// the current one for key.
func (t *AckTable) Track(key peerKey, p *Processor, timeout time.Duration, onTimeout func(*pendingAck)) (*pendingAck, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[key]; exists {
		return nil, ErrAlreadyTracked
	}

	ctx, cancel := context.WithCancel(context.Background())
	entry := &pendingAck{key: key, processor: p, ctx: ctx, cancel: cancel}
	entry.timer = time.AfterFunc(timeout, func() {
		if entry.ctx.Err() != nil || !t.isCurrent(entry) {
			return
		}
		onTimeout(entry)
	})
	t.entries[key] = entry
	return entry, nil
}

// Rearm restarts the timeout of a still-tracked entry.
func (t *AckTable) Rearm(entry *pendingAck, timeout time.Duration) bool {
	if !t.isCurrent(entry) {
		return false
	}
	entry.timer.Reset(timeout)
	return true
}

func (t *AckTable) isCurrent(entry *pendingAck) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.entries[entry.key]
	return ok && current == entry
}

// Stop removes the entry for key and stops its timer. It returns the
// processor that was waiting, or nil when nothing was tracked (a second
// ACK for the same ID, for example).
func (t *AckTable) Stop(key peerKey) *Processor {
	t.mu.Lock()
	entry, ok := t.entries[key]
	if ok {
		delete(t.entries, key)
	}
	t.mu.Unlock()

	if !ok {
		return nil
	}
	entry.cancel()
	entry.timer.Stop()
	return entry.processor
}

// remove drops entry if it is still current.
func (t *AckTable) remove(entry *pendingAck) {
	t.mu.Lock()
	if current, ok := t.entries[entry.key]; ok && current == entry {
		delete(t.entries, entry.key)
	}
	t.mu.Unlock()

	entry.cancel()
	entry.timer.Stop()
}

// Has reports whether key is awaiting an ACK.
func (t *AckTable) Has(key peerKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	return ok
}

// Count returns the number of pending entries.
func (t *AckTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear removes all entries. Used for shutdown.
func (t *AckTable) Clear() {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[peerKey]*pendingAck)
	t.mu.Unlock()

	for _, entry := range entries {
		entry.cancel()
		entry.timer.Stop()
	}
}
