package gacha

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// RandomSource yields uniform values in [0, 1).
// Every engine call takes one explicitly so identical sources replay identical pulls.
type RandomSource interface {
	Float64() float64
}

// cryptoRNG is the default for live simulations where nobody needs a replay
type cryptoRNG struct{}

func (cryptoRNG) Float64() float64 {
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err != nil {
		return rand.Float64()
	}
	u := binary.BigEndian.Uint64(buf[:]) >> 11 // 53 bits
	return float64(u) / (1 << 53)
}

func DefaultRNG() RandomSource { return cryptoRNG{} }

// seededRNG is reproducible, used by tests and Monte Carlo runs
type seededRNG struct{ r *rand.Rand }

// NewSeededRNG returns a PCG-backed source; equal seeds give equal streams.
func NewSeededRNG(seed uint64) RandomSource {
	return &seededRNG{r: rand.New(rand.NewPCG(seed, 0))}
}

func (s *seededRNG) Float64() float64 { return s.r.Float64() }

// pickIndex maps one uniform draw onto [0, n)
func pickIndex(rng RandomSource, n int) int {
	if n <= 1 {
		return 0
	}
	i := int(rng.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
