package client

import (
	"context"
	"sync"
	"time"

	"github.com/backkem/coap/pkg/message"
)

// WaitRecord is one request awaiting its response.
type WaitRecord struct {
	token     string
	messageID uint16

	response *message.Message
	done     chan struct{}
	acked    chan struct{}
	once     sync.Once
	mu       sync.Mutex
}

// MessageID returns the ID of the request being waited on.
func (r *WaitRecord) MessageID() uint16 { return r.messageID }

// SetResponse stores msg and wakes the waiter. Only the first response is
// kept; SetResponse reports whether msg was it.
func (r *WaitRecord) SetResponse(msg *message.Message) bool {
	set := false
	r.once.Do(func() {
		r.mu.Lock()
		r.response = msg
		r.mu.Unlock()
		close(r.done)
		set = true
	})
	return set
}

// Response returns the stored response, nil if none arrived yet.
func (r *WaitRecord) Response() *message.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.response
}

// Acknowledge records an empty ACK for the request.
func (r *WaitRecord) Acknowledge() {
	select {
	case r.acked <- struct{}{}:
	default:
	}
}

// Wait blocks until a response arrives, an empty ACK arrives
// (ErrAcknowledged), timeout elapses (ErrTimeout) or ctx is done.
func (r *WaitRecord) Wait(ctx context.Context, timeout time.Duration) (*message.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.done:
		return r.Response(), nil
	case <-r.acked:
		return nil, ErrAcknowledged
	case <-timer.C:
		// A response may have raced the timer.
		if resp := r.Response(); resp != nil {
			return resp, nil
		}
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitHolder releases a WaitRecord from its table on Close.
type WaitHolder struct {
	*WaitRecord
	table *WaitTable
}

// Close removes the record from the table. Safe to call more than once.
func (h *WaitHolder) Close() error {
	h.table.remove(h.WaitRecord)
	return nil
}

// WaitTable maps outstanding request tokens to their wait records.
// Empty ACKs and RSTs carry no token and are matched by message ID.
//
// Thread-safe for concurrent access.
type WaitTable struct {
	byToken map[string]*WaitRecord
	byID    map[uint16]*WaitRecord
	mu      sync.Mutex
}

// NewWaitTable creates an empty table.
func NewWaitTable() *WaitTable {
	return &WaitTable{
		byToken: make(map[string]*WaitRecord),
		byID:    make(map[uint16]*WaitRecord),
	}
}

// WaitResponse registers req and returns a holder that must be closed.
func (t *WaitTable) WaitResponse(req *message.Message) (*WaitHolder, error) {
	r := &WaitRecord{
		token:     string(req.Token),
		messageID: req.MessageID(),
		done:      make(chan struct{}),
		acked:     make(chan struct{}, 1),
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byToken[r.token]; ok {
		return nil, ErrAlreadyWaiting
	}
	t.byToken[r.token] = r
	t.byID[r.messageID] = r
	return &WaitHolder{WaitRecord: r, table: t}, nil
}

// Get returns the record msg answers. Messages with a token are matched by
// token and, when checkMessageID is set, must also carry the request's
// message ID. Messages without a token are matched by message ID.
func (t *WaitTable) Get(msg *message.Message, checkMessageID bool) *WaitRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(msg.Token) == 0 {
		if r, ok := t.byID[msg.MessageID()]; ok {
			return r
		}
		if !msg.IsEmpty() {
			return t.byToken[""]
		}
		return nil
	}
	r, ok := t.byToken[string(msg.Token)]
	if !ok {
		return nil
	}
	if checkMessageID && r.messageID != msg.MessageID() {
		return nil
	}
	return r
}

// Len returns the number of outstanding records.
func (t *WaitTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byToken)
}

func (t *WaitTable) remove(r *WaitRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.byToken[r.token]; ok && cur == r {
		delete(t.byToken, r.token)
	}
	if cur, ok := t.byID[r.messageID]; ok && cur == r {
		delete(t.byID, r.messageID)
	}
}
