package cache

import (
	"fmt"
	"hash/fnv"

	"github.com/backkem/coap/pkg/message"
)

// safeKeySeed is mixed into every SafeKey so that an origin with no
// cache-key options still hashes away from zero.
const safeKeySeed uint64 = 0x15A5A5A5

// Keys identifies a cached representation.
//
// ETag is derived from the message's ETag option and the origin; Safe from
// the origin and every safe-to-forward option that is part of the cache
// key. Two Keys are equal when either component matches.
type Keys struct {
	ETag    uint64
	HasETag bool
	Safe    uint64
}

// ComputeKeys derives the keys of msg for a representation held by origin.
// origin should name the target resource (endpoint and path): Uri-Path is
// unsafe to forward and does not contribute to Safe.
func ComputeKeys(msg *message.Message, origin string) Keys {
	originHash := hashString(origin)

	k := Keys{Safe: safeKeySeed ^ originHash}
	if etag, ok := msg.Options.ETag(); ok {
		k.ETag = etag.Hash() ^ originHash
		k.HasETag = true
	}
	for _, opt := range msg.Options.All() {
		if opt.Number.IsSafeToForward() && !opt.Number.IsNoCacheKey() {
			k.Safe ^= opt.Hash()
		}
	}
	return k
}

// Equal reports whether k and other match on ETag or on Safe. An absent
// ETag never matches.
func (k Keys) Equal(other Keys) bool {
	if k.HasETag && other.HasETag && k.ETag == other.ETag {
		return true
	}
	return k.Safe == other.Safe
}

// String formats the keys for logs.
func (k Keys) String() string {
	if !k.HasETag {
		return fmt.Sprintf("ETagKey=none,SafeKey=%#x", k.Safe)
	}
	return fmt.Sprintf("ETagKey=%#x,SafeKey=%#x", k.ETag, k.Safe)
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
