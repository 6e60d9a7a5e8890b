package message

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
)

// IDGenerator hands out message IDs. The high nibble is fixed by the
// endpoint's unique value; the low 12 bits start at a random value and
// increment, wrapping within the nibble.
// It is safe for concurrent use.
type IDGenerator struct {
	unique uint16
	value  atomic.Uint32
}

// NewIDGenerator creates a generator seeded with
// (random & 0x0FFF) | (unique & 0xF000).
func NewIDGenerator(unique uint16) *IDGenerator {
	g := &IDGenerator{unique: unique & 0xF000}
	g.value.Store(uint32(randomUint16()&0x0FFF | g.unique))
	return g
}

// NewIDGeneratorWithValue creates a generator whose first ID is initial.
func NewIDGeneratorWithValue(initial uint16) *IDGenerator {
	g := &IDGenerator{unique: initial & 0xF000}
	g.value.Store(uint32(initial))
	return g
}

// Next returns the current ID and advances the generator.
func (g *IDGenerator) Next() uint16 {
	for {
		current := g.value.Load()
		next := uint32(g.unique) | (current+1)&0x0FFF
		if g.value.CompareAndSwap(current, next) {
			return uint16(current)
		}
	}
}

// Current returns the next ID without advancing.
func (g *IDGenerator) Current() uint16 {
	return uint16(g.value.Load())
}

// TokenSource produces request tokens. The first byte carries the high
// byte of the endpoint's unique value so tokens from different endpoints
// sharing a proxy do not collide; the rest is random.
type TokenSource struct {
	unique byte
	length int
}

// NewTokenSource creates a source of tokens of the given length (1-8).
func NewTokenSource(unique uint16, length int) *TokenSource {
	if length <= 0 || length > MaxTokenLength {
		length = DefaultTokenLength
	}
	return &TokenSource{unique: byte(unique >> 8), length: length}
}

// Next returns a fresh token.
func (t *TokenSource) Next() []byte {
	token := make([]byte, t.length)
	_, _ = rand.Read(token)
	token[0] = t.unique
	return token
}

// Length returns the token length.
func (t *TokenSource) Length() int { return t.length }

func randomUint16() uint16 {
	var buf [2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return binary.BigEndian.Uint16(buf[:])
}
