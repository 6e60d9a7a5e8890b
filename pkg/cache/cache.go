// Package cache implements the proxy's representation cache.
//
// Entries are kept on a most-recently-used list. When the total payload
// size passes the configured threshold, the least recently used entries
// are evicted, but the most recent one always stays.
package cache

import (
	"sync"
	"time"

	"github.com/backkem/coap/pkg/message"
	"github.com/pion/logging"
)

// DefaultSizeThreshold is the payload budget used when none is configured.
const DefaultSizeThreshold = 1 << 20

// Config configures a Cache.
type Config struct {
	// SizeThreshold is the total payload size above which entries are
	// evicted. Defaults to DefaultSizeThreshold.
	SizeThreshold int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// LoggerFactory for creating loggers. If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// node is an MRU list element. The sentinel has no entry and is always
// the last node.
type node struct {
	keys  []Keys
	entry *Entry
	prev  *node
	next  *node
}

func (n *node) matches(k Keys) bool {
	for _, nk := range n.keys {
		if nk.Equal(k) {
			return true
		}
	}
	return false
}

func (n *node) addKeys(k Keys) {
	for _, nk := range n.keys {
		if nk == k {
			return
		}
	}
	n.keys = append(n.keys, k)
}

// Cache stores representations fetched from origin servers.
//
// Keys match on either component, which is not an equivalence relation,
// so lookups walk the MRU list instead of hashing.
//
// Thread-safe for concurrent access.
type Cache struct {
	head      *node
	sentinel  *node
	count     int
	size      int
	threshold int
	now       func() time.Time
	log       logging.LeveledLogger
	mu        sync.Mutex
}

// New creates an empty cache.
func New(config Config) *Cache {
	if config.SizeThreshold <= 0 {
		config.SizeThreshold = DefaultSizeThreshold
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	sentinel := &node{}
	c := &Cache{
		head:      sentinel,
		sentinel:  sentinel,
		threshold: config.SizeThreshold,
		now:       config.Now,
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("coap-cache")
	}
	return c
}

// TryGetValue returns a copy of the entry matching req at origin if it is
// fresh and relevant. A hit moves the entry to the front.
func (c *Cache) TryGetValue(req *message.Message, origin string) (*Entry, bool) {
	keys := ComputeKeys(req, origin)
	var etag []byte
	if opt, ok := req.Options.ETag(); ok {
		etag = opt.Value
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.find(keys)
	if n == nil || !IsFreshAndRelevant(n.entry, etag, c.now()) {
		return nil, false
	}
	c.moveToFront(n)
	return n.entry.Clone(), true
}

// Refresh records resp, received from origin for req, and returns a copy
// of the resulting entry.
//
// A 2.03 Valid response only extends the expiry of the stored entry and
// is not stored when nothing matches. Any other response replaces the
// stored ETag and payload, or is inserted as a new entry.
func (c *Cache) Refresh(req, resp *message.Message, origin string) *Entry {
	requestKeys := ComputeKeys(req, origin)
	responseKeys := ComputeKeys(resp, origin)
	if requestKeys != responseKeys && c.log != nil {
		c.log.Debugf("cache key for request %d changed from %v to %v",
			req.MessageID(), requestKeys, responseKeys)
	}
	var etag []byte
	if opt, ok := resp.Options.ETag(); ok {
		etag = opt.Value
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expire := c.now().Add(resp.Options.MaxAge())

	n := c.find(responseKeys)
	if n == nil {
		n = c.find(requestKeys)
	}
	if n != nil {
		if resp.Code() != message.Valid {
			c.size += len(resp.Payload) - n.entry.Size()
			n.entry.ETag = append([]byte(nil), etag...)
			n.entry.Payload = append([]byte(nil), resp.Payload...)
		}
		n.entry.ExpireTime = expire
		n.addKeys(requestKeys)
		n.addKeys(responseKeys)
		c.moveToFront(n)
		c.trim()
		return n.entry.Clone()
	}

	if resp.Code() == message.Valid {
		if c.log != nil {
			c.log.Warnf("2.03 Valid for request %d matches no stored entry", req.MessageID())
		}
		return nil
	}

	n = &node{
		entry: &Entry{
			ETag:       append([]byte(nil), etag...),
			Payload:    append([]byte(nil), resp.Payload...),
			ExpireTime: expire,
		},
	}
	n.addKeys(responseKeys)
	n.addKeys(requestKeys)
	c.pushFront(n)
	c.trim()
	return n.entry.Clone()
}

// Evict removes the entry matching req at origin.
func (c *Cache) Evict(req *message.Message, origin string) bool {
	keys := ComputeKeys(req, origin)

	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.find(keys)
	if n == nil {
		return false
	}
	c.remove(n)
	return true
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = c.sentinel
	c.sentinel.prev = nil
	c.count = 0
	c.size = 0
}

// Trim evicts least recently used entries until the total size is within
// the threshold or a single entry is left. It returns the number evicted.
func (c *Cache) Trim() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trim()
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Size returns the total payload size of all entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Threshold returns the configured size threshold.
func (c *Cache) Threshold() int { return c.threshold }

func (c *Cache) trim() int {
	evicted := 0
	for n := c.sentinel.prev; n != nil && c.count > 1 && c.size > c.threshold; {
		prev := n.prev
		c.remove(n)
		evicted++
		n = prev
	}
	if evicted > 0 && c.log != nil {
		c.log.Debugf("evicted %d entries, %d bytes left", evicted, c.size)
	}
	return evicted
}

func (c *Cache) find(k Keys) *node {
	for n := c.head; n != c.sentinel; n = n.next {
		if n.matches(k) {
			return n
		}
	}
	return nil
}

func (c *Cache) pushFront(n *node) {
	n.prev = nil
	n.next = c.head
	c.head.prev = n
	c.head = n
	c.count++
	c.size += n.entry.Size()
}

func (c *Cache) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

func (c *Cache) remove(n *node) {
	c.unlink(n)
	c.count--
	c.size -= n.entry.Size()
}

func (c *Cache) moveToFront(n *node) {
	if c.head == n {
		return
	}
	c.unlink(n)
	n.next = c.head
	c.head.prev = n
	c.head = n
}

// record is a stored entry with its keys, as persisted by Store.
type record struct {
	Keys  []Keys `json:"keys"`
	Entry Entry  `json:"entry"`
}

// snapshot returns the entries from least to most recently used.
func (c *Cache) snapshot() []record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]record, 0, c.count)
	for n := c.sentinel.prev; n != nil; n = n.prev {
		out = append(out, record{
			Keys:  append([]Keys(nil), n.keys...),
			Entry: *n.entry.Clone(),
		})
	}
	return out
}

// restore inserts r at the front unless it has expired or one of its keys
// is already present.
func (c *Cache) restore(r record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r.Entry.ExpireTime.Before(c.now()) || len(r.Keys) == 0 {
		return false
	}
	for _, k := range r.Keys {
		if c.find(k) != nil {
			return false
		}
	}
	entry := r.Entry
	c.pushFront(&node{keys: r.Keys, entry: &entry})
	c.trim()
	return true
}
