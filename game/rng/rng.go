// Package rng wraps a seedable PCG source so that a simulation can be replayed
// exactly from its seed.
package rng

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/exp/rand"
)

// ErrInvalidSeed is returned for seeds that cannot be represented as uint64
var ErrInvalidSeed = errors.New("invalid seed")

// RNG is an explicit random handle. It is not safe for concurrent use; every
// simulation owns its own.
type RNG struct {
	seed  uint64
	src   *rand.Rand
	draws int64
}

func New(seed uint64) *RNG {
	return &RNG{
		seed: seed,
		src:  rand.New(rand.NewSource(seed)),
	}
}

// Seed returns the seed the generator was last (re)seeded with
func (r *RNG) Seed() uint64 {
	return r.seed
}

// Reseed restarts the sequence from the given seed
func (r *RNG) Reseed(seed uint64) {
	r.seed = seed
	r.src.Seed(seed)
	r.draws = 0
}

// Intn returns a value in [0, n)
func (r *RNG) Intn(n int) int {
	r.draws++
	return r.src.Intn(n)
}

// Float64 returns a value in [0, 1)
func (r *RNG) Float64() float64 {
	r.draws++
	return r.src.Float64()
}

// Draws is the number of values drawn since the last (re)seed
func (r *RNG) Draws() int64 {
	return r.draws
}

// NewSeed draws a seed from the system entropy source. The clock is only used
// if that source fails.
func NewSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// ParseSeed parses a decimal seed. Negative, empty or overflowing values are rejected.
func ParseSeed(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidSeed)
	}
	seed, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSeed, s)
	}
	return seed, nil
}
