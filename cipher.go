package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherEngine provides AEAD encryption/decryption
type CipherEngine interface {
	// Encrypt encrypts plaintext with the given nonce
	Encrypt(nonce, plaintext []byte) ([]byte, error)

	// Decrypt decrypts ciphertext with the given nonce
	Decrypt(nonce, ciphertext []byte) ([]byte, error)

	// NonceSize returns the size of nonces in bytes
	NonceSize() int

	// Overhead returns the authentication tag size
	Overhead() int
}

// aeadSealer is an internal extension of CipherEngine for callers that
// need to bind associated data to a seal/open, such as the streaming V5
// envelope's per-chunk AAD (chunk index, final flag, file identity tag).
// It stays unexported because the rest of the package only ever deals in
// nonce/plaintext pairs; only envelope_v5.go needs AAD.
type aeadSealer interface {
	SealWithAAD(nonce, plaintext, aad []byte) ([]byte, error)
	OpenWithAAD(nonce, ciphertext, aad []byte) ([]byte, error)
}

// AESGCMEngine implements CipherEngine using AES-256-GCM
type AESGCMEngine struct {
	aead cipher.AEAD
}

// NewAESGCMEngine creates a new AES-256-GCM cipher engine
func NewAESGCMEngine(key []byte) (*AESGCMEngine, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("AES-256 requires a 32-byte key, got %d bytes", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCMEngine{aead: aead}, nil
}

// Encrypt encrypts plaintext using AES-256-GCM
func (e *AESGCMEngine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}

	ciphertext := e.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nil
}

// Decrypt decrypts ciphertext using AES-256-GCM
func (e *AESGCMEngine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, NewError(ErrBadCredential, "cipher.aes_gcm.decrypt", err)
	}

	return plaintext, nil
}

// SealWithAAD encrypts plaintext binding it to aad, for callers (V5
// chunks) that need associated-data authentication.
func (e *AESGCMEngine) SealWithAAD(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	return e.aead.Seal(nil, nonce, plaintext, aad), nil
}

// OpenWithAAD decrypts ciphertext, requiring it to match aad exactly.
func (e *AESGCMEngine) OpenWithAAD(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, NewError(ErrChunkAuthFailure, "cipher.aes_gcm.open_with_aad", err)
	}
	return plaintext, nil
}

// NonceSize returns the nonce size for AES-GCM (12 bytes)
func (e *AESGCMEngine) NonceSize() int {
	return e.aead.NonceSize()
}

// Overhead returns the authentication tag size (16 bytes)
func (e *AESGCMEngine) Overhead() int {
	return e.aead.Overhead()
}

// ChaCha20Poly1305Engine implements CipherEngine using ChaCha20-Poly1305
type ChaCha20Poly1305Engine struct {
	aead cipher.AEAD
}

// NewChaCha20Poly1305Engine creates a new ChaCha20-Poly1305 cipher engine
func NewChaCha20Poly1305Engine(key []byte) (*ChaCha20Poly1305Engine, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("ChaCha20-Poly1305 requires a %d-byte key, got %d bytes",
			chacha20poly1305.KeySize, len(key))
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 cipher: %w", err)
	}

	return &ChaCha20Poly1305Engine{aead: aead}, nil
}

// Encrypt encrypts plaintext using ChaCha20-Poly1305
func (e *ChaCha20Poly1305Engine) Encrypt(nonce, plaintext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}

	ciphertext := e.aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nil
}

// Decrypt decrypts ciphertext using ChaCha20-Poly1305
func (e *ChaCha20Poly1305Engine) Decrypt(nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, NewError(ErrBadCredential, "cipher.chacha20poly1305.decrypt", err)
	}

	return plaintext, nil
}

// SealWithAAD encrypts plaintext binding it to aad, for callers (V5
// chunks) that need associated-data authentication.
func (e *ChaCha20Poly1305Engine) SealWithAAD(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	return e.aead.Seal(nil, nonce, plaintext, aad), nil
}

// OpenWithAAD decrypts ciphertext, requiring it to match aad exactly.
func (e *ChaCha20Poly1305Engine) OpenWithAAD(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != e.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", e.NonceSize(), len(nonce))
	}
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, NewError(ErrChunkAuthFailure, "cipher.chacha20poly1305.open_with_aad", err)
	}
	return plaintext, nil
}

// NonceSize returns the nonce size for ChaCha20-Poly1305 (12 bytes)
func (e *ChaCha20Poly1305Engine) NonceSize() int {
	return e.aead.NonceSize()
}

// Overhead returns the authentication tag size (16 bytes)
func (e *ChaCha20Poly1305Engine) Overhead() int {
	return e.aead.Overhead()
}

// NewCipherEngine creates a new cipher engine based on the cipher suite.
func NewCipherEngine(suite CipherSuite, key []byte) (CipherEngine, error) {
	switch suite {
	case CipherAES256GCM:
		return NewAESGCMEngine(key)
	case CipherChaCha20Poly1305:
		return NewChaCha20Poly1305Engine(key)
	default:
		return nil, NewError(ErrIOFailure, "cipher.new_engine", fmt.Errorf("unsupported cipher suite %d", suite))
	}
}

// GenerateNonce generates a random 12-byte nonce from OS entropy.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}
