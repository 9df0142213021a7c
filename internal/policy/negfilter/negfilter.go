// Package negfilter implements the Negative Filter (spec §4.3, C3): a
// fixed-size Bloom filter guarding the exact-match rule set so that queries
// for names never added as exact blocks skip the store entirely.
//
// The hash derivation is fixed by the spec and ported byte-for-byte from
// the original store's bloom_hash1/bloom_hash2 (original_source
// OLD/dnsmasq2.91-PATCH/src/db.c) rather than delegated to a general-purpose
// bloom library, whose internal hash family would not reproduce these exact
// bit positions. See DESIGN.md for the full justification.
package negfilter

import (
	"math"
	"sync"
)

// NumHashes is the fixed number of double-hashed probes per element (k),
// matching the original store's BLOOM_HASHES.
const NumHashes = 7

// MinBits and MaxBits clamp the computed bit-array size, matching the
// original store's BLOOM_MIN_SIZE / BLOOM_MAX_SIZE (in bits, not bytes).
const (
	MinBits uint64 = 1_000_000 * 8
	MaxBits uint64 = 4_500_000_000 * 8
)

// Size computes the bit-array size m for n expected elements and a target
// false-positive rate p, using m = ceil(-n*ln(p) / (ln2)^2), clamped to
// [MinBits, MaxBits].
func Size(n uint64, p float64) uint64 {
	if n == 0 {
		n = 1
	}
	if !(p > 0 && p < 1) {
		p = 0.01
	}
	ln2 := math.Ln2
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (ln2 * ln2)))
	if m < MinBits {
		m = MinBits
	}
	if m > MaxBits {
		m = MaxBits
	}
	return m
}

// hash1 is the 31-multiplicative hash: h = h*31 + c.
func hash1(s string, m uint64) uint64 {
	var h uint64
	for i := 0; i < len(s); i++ {
		h = h*31 + uint64(s[i])
	}
	return h % m
}

// hash2 is the DJB2-XOR variant: h = ((h<<5)+h) ^ c, seed 5381.
func hash2(s string, m uint64) uint64 {
	h := uint64(5381)
	for i := 0; i < len(s); i++ {
		h = ((h << 5) + h) ^ uint64(s[i])
	}
	return h % m
}

// Filter is a fixed-size, add-then-freeze Bloom filter. The zero value is
// not usable; construct with New. Safe for concurrent readers once loading
// is complete; Add takes a write lock, Check never blocks a reader against
// another reader (spec's read-mostly concurrency model, §Concurrency).
type Filter struct {
	mu   sync.RWMutex
	bits []uint64 // packed bit array, 64 bits per word
	m    uint64   // number of bits
}

// New constructs a Filter sized for n elements at target false-positive
// rate p.
func New(n uint64, p float64) *Filter {
	m := Size(n, p)
	words := (m + 63) / 64
	return &Filter{
		bits: make([]uint64, words),
		m:    m,
	}
}

// Add inserts name into the filter.
func (f *Filter) Add(name string) {
	h1 := hash1(name, f.m)
	h2 := hash2(name, f.m)

	f.mu.Lock()
	defer f.mu.Unlock()
	for i := uint64(0); i < NumHashes; i++ {
		pos := (h1 + i*h2) % f.m
		f.bits[pos/64] |= 1 << (pos % 64)
	}
}

// Check reports whether name might be in the filter. A false result means
// name is definitely absent; a true result may be a false positive.
func (f *Filter) Check(name string) bool {
	h1 := hash1(name, f.m)
	h2 := hash2(name, f.m)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for i := uint64(0); i < NumHashes; i++ {
		pos := (h1 + i*h2) % f.m
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Bits reports the size of the underlying bit array, for observability.
func (f *Filter) Bits() uint64 {
	return f.m
}
