package vault

// CipherSuite selects the AEAD primitive used to wrap a wrapping key,
// per-file key, or chunk body. Both members satisfy spec.md's C2 profile:
// 256-bit key, 96-bit nonce, 128-bit tag.
type CipherSuite uint8

const (
	// CipherAES256GCM uses AES-256 with Galois/Counter Mode (default).
	CipherAES256GCM CipherSuite = iota
	// CipherChaCha20Poly1305 uses ChaCha20-Poly1305.
	CipherChaCha20Poly1305
)

func (c CipherSuite) String() string {
	switch c {
	case CipherAES256GCM:
		return "aes-256-gcm"
	case CipherChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return "unknown"
	}
}

// CompressionMode selects how a payload is compressed before encryption,
// per spec.md §6.1.
type CompressionMode uint8

const (
	// CompressionAuto picks a light level (1) for already-compressed
	// extensions and a moderate level (3) otherwise. This is the default.
	CompressionAuto CompressionMode = iota
	// CompressionStore uses the fastest zstd level (1). The payload is
	// still zstd-framed and compressed; it is not stored raw.
	CompressionStore
	// CompressionExtreme forces the highest zstd level (19).
	CompressionExtreme
)

// ShredTargetClass distinguishes rotational/SSD desktop storage (which
// gets a real overwrite pass) from flash-backed storage (which does not),
// per spec.md §4.9.
type ShredTargetClass uint8

const (
	// ShredTargetDesktop enables the overwrite path: one pass of OS-random
	// bytes over the whole file before it is renamed and unlinked.
	ShredTargetDesktop ShredTargetClass = iota
	// ShredTargetFlash replaces shredding with a plain unlink.
	ShredTargetFlash
)

// ValidationMagic is the constant plaintext the validation tag must
// decrypt to, per spec.md §3/§4.7.
const ValidationMagic = "QRE_VALID"

// RecoveryCodePrefix is the fixed prefix for generated recovery codes.
const RecoveryCodePrefix = "QRE-"

const (
	// MasterKeySize is the fixed size of the Master Key in bytes.
	MasterKeySize = 32
	// FileKeySize is the fixed size of a per-file key in bytes.
	FileKeySize = 32
	// NonceSize is the AEAD nonce size used throughout the envelopes.
	NonceSize = 12
	// SaltMinSize is the minimum acceptable KDF salt length.
	SaltMinSize = 16
	// DefaultSaltSize is the salt length generated for new Keychain slots.
	DefaultSaltSize = 32
)

// V4SizeLimit is the 4 GiB per-item ceiling for whole-payload envelopes,
// per spec.md §7 (SizeLimitExceeded). V5 has no such limit.
const V4SizeLimit = 4 * 1024 * 1024 * 1024
