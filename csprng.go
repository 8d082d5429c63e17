package vault

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

// RandomSource is the C4 CSPRNG abstraction: either OS-backed (default) or
// seeded deterministic. Deterministic mode is for non-secret material
// generated within a single operation only (e.g. golden-test nonces); the
// Master Key and every per-file key always come from OS entropy regardless
// of which RandomSource an operation was given, per spec.md §4.4.
type RandomSource interface {
	// Read fills p with random bytes and always returns len(p), nil.
	Read(p []byte) (int, error)
}

// osRandomSource reads directly from the OS CSPRNG.
type osRandomSource struct{}

func (osRandomSource) Read(p []byte) (int, error) {
	return rand.Read(p)
}

// OSRandom is the default, OS-backed random source.
var OSRandom RandomSource = osRandomSource{}

// seededRandomSource produces a deterministic byte stream from a 32-byte
// seed using ChaCha20 as a keystream generator, mirroring the
// ChaCha20Rng-based SecureEngine of the original implementation
// (original_source/secure_rng.rs): same seed in, same bytes out, forever.
type seededRandomSource struct {
	cipher *chacha20.Cipher
}

// NewSeededRandom creates a deterministic random source from a 32-byte
// seed (e.g. hashed mouse/touch entropy mixed with OS randomness at
// collection time). The zero nonce is safe here because each seed is used
// to key exactly one ephemeral stream for the lifetime of one operation;
// the seed itself, not the nonce, is what must never repeat across
// operations that need distinct output.
func NewSeededRandom(seed [32]byte) (RandomSource, error) {
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], make([]byte, chacha20.NonceSize))
	if err != nil {
		return nil, fmt.Errorf("vault: failed to init seeded random source: %w", err)
	}
	return &seededRandomSource{cipher: c}, nil
}

func (s *seededRandomSource) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	s.cipher.XORKeyStream(p, p)
	return len(p), nil
}

// randomBytes draws n bytes from src.
func randomBytes(src RandomSource, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := src.Read(b); err != nil {
		return nil, fmt.Errorf("vault: failed to read random bytes: %w", err)
	}
	return b, nil
}
