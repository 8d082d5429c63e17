package vault

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteTo serializes env as `version:u32 | header | ciphertext`, using the
// fixed field order validation_nonce, encrypted_validation_tag,
// key_wrapping_nonce, encrypted_file_key, body_nonce, uses_keyfile,
// original_hash. All integers are little-endian; byte strings are
// u32-length-prefixed.
func (env *EnvelopeV4) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.LittleEndian, EnvelopeV4Version); err != nil {
		return 0, err
	}

	buf.Write(env.ValidationNonce)
	writeLenPrefixed(&buf, env.EncryptedValidationTag)
	buf.Write(env.KeyWrappingNonce)
	writeLenPrefixed(&buf, env.EncryptedFileKey)
	buf.Write(env.BodyNonce)

	if env.UsesKeyfile {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	if len(env.OriginalHash) > 0 {
		buf.WriteByte(1)
		buf.Write(env.OriginalHash)
	} else {
		buf.WriteByte(0)
	}

	writeLenPrefixed(&buf, env.Ciphertext)

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadEnvelopeV4 peeks the version tag and dispatches to the current (V4)
// or a legacy (V2/V3) decoder, up-converting legacy containers in memory.
func ReadEnvelopeV4(r io.Reader) (*EnvelopeV4, error) {
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, NewError(ErrIOFailure, "envelope_v4.read", fmt.Errorf("failed to read version: %w", err))
	}

	switch version {
	case EnvelopeV4Version:
		return readEnvelopeV4Body(r)
	case legacyV3Version:
		return readLegacyEnvelope(r, true)
	case legacyV2Version:
		return readLegacyEnvelope(r, false)
	default:
		return nil, NewError(ErrUnsupportedVersion, "envelope_v4.read", fmt.Errorf("unsupported envelope version %d", version))
	}
}

func readEnvelopeV4Body(r io.Reader) (*EnvelopeV4, error) {
	env := &EnvelopeV4{}

	var err error
	if env.ValidationNonce, err = readFixed(r, NonceSize); err != nil {
		return nil, wrapEnvelopeReadErr("validation_nonce", err)
	}
	if env.EncryptedValidationTag, err = readLenPrefixedFrom(r); err != nil {
		return nil, wrapEnvelopeReadErr("encrypted_validation_tag", err)
	}
	if env.KeyWrappingNonce, err = readFixed(r, NonceSize); err != nil {
		return nil, wrapEnvelopeReadErr("key_wrapping_nonce", err)
	}
	if env.EncryptedFileKey, err = readLenPrefixedFrom(r); err != nil {
		return nil, wrapEnvelopeReadErr("encrypted_file_key", err)
	}
	if env.BodyNonce, err = readFixed(r, NonceSize); err != nil {
		return nil, wrapEnvelopeReadErr("body_nonce", err)
	}

	usesKeyfile, err := readByte(r)
	if err != nil {
		return nil, wrapEnvelopeReadErr("uses_keyfile", err)
	}
	env.UsesKeyfile = usesKeyfile != 0

	hasHash, err := readByte(r)
	if err != nil {
		return nil, wrapEnvelopeReadErr("original_hash presence", err)
	}
	if hasHash != 0 {
		if env.OriginalHash, err = readFixed(r, sha256Size); err != nil {
			return nil, wrapEnvelopeReadErr("original_hash", err)
		}
	}

	if env.Ciphertext, err = readLenPrefixedFrom(r); err != nil {
		return nil, wrapEnvelopeReadErr("ciphertext", err)
	}

	return env, nil
}

// readLegacyEnvelope decodes a V2 (withHash=false) or V3 (withHash=true)
// container: {wrapping_nonce, encrypted_private_key, validation_nonce,
// encrypted_validation_tag, hybrid_nonce, kyber_encapped_session_key,
// uses_keyfile, [original_hash]}, then maps its fields onto EnvelopeV4 so
// DecryptV4 can treat it uniformly. V2 had no original_hash field at all;
// per spec, a missing hash up-converts to absent, never zero.
func readLegacyEnvelope(r io.Reader, withHash bool) (*EnvelopeV4, error) {
	env := &EnvelopeV4{}

	var err error
	if env.legacyWrappingNonce, err = readFixed(r, NonceSize); err != nil {
		return nil, wrapEnvelopeReadErr("legacy wrapping_nonce", err)
	}
	if env.legacyWrappedSecretKey, err = readLenPrefixedFrom(r); err != nil {
		return nil, wrapEnvelopeReadErr("legacy encrypted_private_key", err)
	}
	if env.ValidationNonce, err = readFixed(r, NonceSize); err != nil {
		return nil, wrapEnvelopeReadErr("legacy validation_nonce", err)
	}
	if env.EncryptedValidationTag, err = readLenPrefixedFrom(r); err != nil {
		return nil, wrapEnvelopeReadErr("legacy encrypted_validation_tag", err)
	}
	if env.BodyNonce, err = readFixed(r, NonceSize); err != nil {
		return nil, wrapEnvelopeReadErr("legacy hybrid_nonce", err)
	}
	if env.legacyKyberCiphertext, err = readLenPrefixedFrom(r); err != nil {
		return nil, wrapEnvelopeReadErr("legacy kyber_encapped_session_key", err)
	}

	usesKeyfile, err := readByte(r)
	if err != nil {
		return nil, wrapEnvelopeReadErr("legacy uses_keyfile", err)
	}
	env.UsesKeyfile = usesKeyfile != 0

	if withHash {
		hasHash, err := readByte(r)
		if err != nil {
			return nil, wrapEnvelopeReadErr("legacy original_hash presence", err)
		}
		if hasHash != 0 {
			if env.OriginalHash, err = readFixed(r, sha256Size); err != nil {
				return nil, wrapEnvelopeReadErr("legacy original_hash", err)
			}
		}
	}

	if env.Ciphertext, err = readLenPrefixedFrom(r); err != nil {
		return nil, wrapEnvelopeReadErr("legacy ciphertext", err)
	}

	return env, nil
}

const sha256Size = 32

func readFixed(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readByte(r io.Reader) (byte, error) {
	buf, err := readFixed(r, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func readLenPrefixedFrom(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	return readFixed(r, int(n))
}

func wrapEnvelopeReadErr(field string, err error) error {
	return NewError(ErrIntegrityFailure, "envelope_v4.read", fmt.Errorf("failed to read %s: %w", field, err))
}
