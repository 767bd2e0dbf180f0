// Package hash implements the fast modular hash used to index the context
// tables of the reference model, plus the rolling symbol context it hashes.
package hash

import "github.com/jbarham/primegen"

// Hash mixes n with the salt s and reduces the result to [0, max).
func Hash(n uint32, s uint32, max uint32) uint32 {
	// mixing stage, mix input with salt using subtraction
	var m = uint32(n) - uint32(s)

	// hashing stage, use xor shift with prime coefficients
	m ^= m << 2
	m ^= m << 3
	m ^= m >> 5
	m ^= m >> 7
	m ^= m << 11
	m ^= m << 13
	m ^= m >> 17
	m ^= m << 19

	// mixing stage 2, mix input with salt using addition
	m += s

	// multiply shift reduction instead of modulo, see
	// https://lemire.me/blog/2016/06/27/a-fast-alternative-to-the-modulo-reduction/
	return uint32((uint64(m) * uint64(max)) >> 32)
}

// SymbolBits is the width of one symbol inside a Context.
const SymbolBits = 5

// MaxOrder is the longest history a Context can hold.
const MaxOrder = 32 / SymbolBits

// Context is the last few symbols of a stream packed 5 bits each, newest in
// the low bits. The zero Context is the empty history.
type Context uint32

// Push appends sym and keeps only the newest order symbols. The stored value
// is sym+1 so that a history of blanks differs from the empty history.
func (c Context) Push(sym byte, order int) Context {
	if order > MaxOrder {
		order = MaxOrder
	}
	mask := uint32(1)<<(uint(order)*SymbolBits) - 1
	return Context((uint32(c)<<SymbolBits | uint32(sym+1)) & mask)
}

// Bucket hashes the context into a table of size buckets.
func (c Context) Bucket(salt, buckets uint32) uint32 {
	return Hash(uint32(c), salt, buckets)
}

// PrimeAtLeast returns the smallest prime >= n. Table sizes are kept prime
// so that contexts differing only in high bits spread evenly.
func PrimeAtLeast(n uint64) uint64 {
	if n <= 2 {
		return 2
	}
	p := primegen.New()
	p.SkipTo(n)
	return p.Next()
}
