package vault

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams configures the memory-hard KDF used to turn a password or
// recovery code into a key-wrapping key. Zero-value fields fall back to
// DefaultArgon2idParams, which matches the hardcoded values the original
// desktop build shipped (kept for backward compatibility with records that
// predate configurable KDF parameters).
type Argon2idParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltSize    int
	KeySize     int
}

// DefaultArgon2idParams are the parameters every newly created Keychain slot
// is stamped with.
var DefaultArgon2idParams = Argon2idParams{
	Memory:      19456, // 19 MiB
	Iterations:  2,
	Parallelism: 1,
	SaltSize:    32,
	KeySize:     32,
}

// withDefaults fills any zero field with its DefaultArgon2idParams value, so
// a Keychain record that predates a given parameter (or an empty
// Argon2idParams passed at init time) derives the same way the original
// hardcoded build did.
func (p Argon2idParams) withDefaults() Argon2idParams {
	d := DefaultArgon2idParams
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Iterations == 0 {
		p.Iterations = d.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	if p.SaltSize == 0 {
		p.SaltSize = d.SaltSize
	}
	if p.KeySize == 0 {
		p.KeySize = d.KeySize
	}
	return p
}

// DeriveKey runs Argon2id over secret and salt under p, returning a key of
// p.KeySize bytes (after defaulting). secret is typically a password or a
// recovery code; it is never zeroed here since callers may need to retry it.
func DeriveKey(secret, salt []byte, p Argon2idParams) ([]byte, error) {
	if len(secret) == 0 {
		return nil, NewError(ErrBadCredential, "kdf.derive_key", fmt.Errorf("secret cannot be empty"))
	}
	if len(salt) == 0 {
		return nil, NewError(ErrIOFailure, "kdf.derive_key", fmt.Errorf("salt cannot be empty"))
	}

	p = p.withDefaults()
	key := argon2.IDKey(secret, salt, p.Iterations, p.Memory, p.Parallelism, uint32(p.KeySize))
	return key, nil
}

// GenerateSalt draws a fresh salt of p.SaltSize bytes (after defaulting)
// from src.
func GenerateSalt(src RandomSource, p Argon2idParams) ([]byte, error) {
	p = p.withDefaults()
	salt, err := randomBytes(src, p.SaltSize)
	if err != nil {
		return nil, NewError(ErrIOFailure, "kdf.generate_salt", err)
	}
	return salt, nil
}
