package cache

import (
	"bytes"
	"time"
)

// Entry is a cached representation.
type Entry struct {
	ETag       []byte
	Payload    []byte
	ExpireTime time.Time
}

// Size returns the bytes the entry counts against the size threshold.
func (e *Entry) Size() int { return len(e.Payload) }

// Clone returns a deep copy.
func (e *Entry) Clone() *Entry {
	return &Entry{
		ETag:       bytes.Clone(e.ETag),
		Payload:    bytes.Clone(e.Payload),
		ExpireTime: e.ExpireTime,
	}
}

// IsFreshAndRelevant reports whether entry may answer a request carrying
// etag at time now: it has not expired and, if the request names an ETag,
// the stored one matches.
func IsFreshAndRelevant(entry *Entry, etag []byte, now time.Time) bool {
	if entry == nil {
		return false
	}
	if entry.ExpireTime.Before(now) {
		return false
	}
	return etag == nil || bytes.Equal(entry.ETag, etag)
}
