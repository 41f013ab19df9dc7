package delegation

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"sync"
)

// SaltLength is the number of random bytes drawn per salt.
const SaltLength = 8

// SaltGenerator draws delegation salts from a cryptographic source.
// Uniqueness is probabilistic: 64 bits of entropy and no collision tracking.
type SaltGenerator struct {
	mu  sync.Mutex
	src io.Reader
}

// NewSaltGenerator returns a generator reading from src. A nil src selects
// crypto/rand.
func NewSaltGenerator(src io.Reader) *SaltGenerator {
	if src == nil {
		src = rand.Reader
	}
	return &SaltGenerator{src: src}
}

var defaultSalts = NewSaltGenerator(nil)

// NewSalt draws a salt from the process-wide crypto/rand generator.
func NewSalt() (*big.Int, error) {
	return defaultSalts.Next()
}

// Next returns a non-zero salt. It is safe for concurrent use.
func (g *SaltGenerator) Next() (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var buf [SaltLength]byte
	// An all-zero draw would be rejected by the builder, so draw again.
	for attempt := 0; attempt < 4; attempt++ {
		if _, err := io.ReadFull(g.src, buf[:]); err != nil {
			return nil, fmt.Errorf("failed to read salt entropy: %w", err)
		}
		salt := new(big.Int).SetBytes(buf[:])
		if salt.Sign() != 0 {
			return salt, nil
		}
	}
	return nil, ErrEmptySaltEntropy
}
