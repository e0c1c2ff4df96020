// Package rng provides a splittable, deterministic pseudo-random key.
//
// A Key is an immutable value. Split derives independent child keys and
// Rand materializes a generator, so a fixed seed reproduces a run exactly
// regardless of how many draws any single consumer makes.
package rng

import (
	"math/rand/v2"
)

// Key is a splittable PRNG seed.
type Key struct {
	hi, lo uint64
}

// New creates a key from a seed.
func New(seed uint64) Key {
	return Key{hi: mix(seed), lo: mix(seed ^ 0x9e3779b97f4a7c15)}
}

// Split derives n independent child keys.
func (k Key) Split(n int) []Key {
	src := rand.NewPCG(k.hi, k.lo)
	keys := make([]Key, n)
	for i := range keys {
		keys[i] = Key{hi: mix(src.Uint64()), lo: mix(src.Uint64())}
	}
	return keys
}

// Split2 is Split(2) unpacked, the common "advance and consume" step.
func (k Key) Split2() (Key, Key) {
	keys := k.Split(2)
	return keys[0], keys[1]
}

// Source returns a fresh PCG source seeded from the key.
func (k Key) Source() rand.Source {
	return rand.NewPCG(k.hi, k.lo)
}

// Rand returns a fresh generator seeded from the key.
func (k Key) Rand() *rand.Rand {
	return rand.New(k.Source())
}

// splitmix64 finalizer
func mix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
