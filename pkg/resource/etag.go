package resource

import (
	"golang.org/x/crypto/blake2b"
)

// ETagLength is the size of generated ETags (the option's maximum).
const ETagLength = 8

// ETagFor returns a content-hash ETag for payload.
func ETagFor(payload []byte) []byte {
	h, err := blake2b.New(ETagLength, nil)
	if err != nil {
		// Only reachable with an invalid size.
		panic(err)
	}
	h.Write(payload)
	return h.Sum(nil)
}
