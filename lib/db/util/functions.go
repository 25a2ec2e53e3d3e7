package util

import (
	"crypto/rand"
	"encoding/binary"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// GenerateSeed returns a random seed, engines pick one per instance so the
// key distribution of two processes differs
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hashing
// --------------------------------------------------------------------------

// UintKey is the 64 bit hash of a record key
type UintKey uint64

var digests = sync.Pool{New: func() any { return xxhash.New() }}

// HashString hashes s with the seeded xxhash64 variant.
// Seed 0 gives the plain xxhash64 value, which is stable across processes.
func HashString(s string, seed uint64) UintKey {
	if seed == 0 {
		return UintKey(xxhash.Sum64String(s))
	}
	d := digests.Get().(*xxhash.Digest)
	d.ResetWithSeed(seed)
	_, _ = d.WriteString(s)
	h := d.Sum64()
	digests.Put(d)
	return UintKey(h)
}

// Stripe maps a key to one of n buckets. The low bits select the map bucket
// inside a shard, so the stripe is taken from the higher bits.
func Stripe(key UintKey, n int) int {
	return int((uint64(key) >> 7) % uint64(n))
}
