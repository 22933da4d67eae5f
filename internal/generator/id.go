package generator

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/jxskiss/base62"
)

// Alphabet is the character set of generated codes.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// MaxCodeLength bounds both generated and custom codes.
const MaxCodeLength = 32

const (
	StrategyRandom  = "random"
	StrategyCounter = "counter"
)

var codePattern = regexp.MustCompile(`^[0-9A-Za-z_-]{1,32}$`)

// ValidCode reports whether s has the shape of a short code.
func ValidCode(s string) bool {
	return codePattern.MatchString(s)
}

// Generator produces candidate short codes. Uniqueness is enforced by the store.
type Generator interface {
	Next() (string, error)
}

// New returns the generator for the named strategy.
func New(strategy string, length int) (Generator, error) {
	if length <= 0 || length > MaxCodeLength {
		return nil, fmt.Errorf("code length must be in 1..%d, got %d", MaxCodeLength, length)
	}

	switch strategy {
	case "", StrategyRandom:
		return NewRandomGenerator(length), nil
	case StrategyCounter:
		return NewCounterGenerator(length)
	default:
		return nil, fmt.Errorf("unknown code strategy %q", strategy)
	}
}

// RandomGenerator draws fixed-length base62 codes from crypto/rand.
type RandomGenerator struct {
	length int
}

// NewRandomGenerator creates a RandomGenerator for codes of the given length.
func NewRandomGenerator(length int) *RandomGenerator {
	return &RandomGenerator{length: length}
}

// Next returns a fresh random code.
func (g *RandomGenerator) Next() (string, error) {
	return GenerateID(g.length)
}

// GenerateID returns a random base62 identifier of exactly the given length.
func GenerateID(length int) (string, error) {
	// 248 is the largest multiple of 62 below 256; bytes above it are rejected
	// to keep every symbol equally likely.
	const limit = 248

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, Alphabet[b%62])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}

// CounterGenerator derives codes from a monotonically increasing counter.
// The counter lives in [62^(length-1), 62^length) so every code has the same
// length until the space is exhausted.
type CounterGenerator struct {
	counter atomic.Uint64
	floor   uint64
	span    uint64
}

// NewCounterGenerator creates a counter generator starting at a random point
// of its code space, so restarts do not replay codes that are already stored.
func NewCounterGenerator(length int) (*CounterGenerator, error) {
	floor, span := codeSpace(length)

	var seed [8]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("failed to seed counter: %w", err)
	}

	g := &CounterGenerator{floor: floor, span: span}
	g.counter.Store(binary.BigEndian.Uint64(seed[:]) % span)
	return g, nil
}

// Next returns the code for the next counter value.
func (g *CounterGenerator) Next() (string, error) {
	n := g.counter.Add(1) % g.span
	return string(base62.FormatUint(g.floor + n)), nil
}

func codeSpace(length int) (floor, span uint64) {
	// 62^11 already exceeds uint64, so long codes share the 10-digit space.
	if length > 10 {
		length = 10
	}
	floor = 1
	for i := 1; i < length; i++ {
		floor *= 62
	}
	if length == 1 {
		return 0, 62
	}
	return floor, floor*62 - floor
}
