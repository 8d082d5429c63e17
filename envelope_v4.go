package vault

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// EnvelopeV4Version identifies the whole-payload file envelope.
const EnvelopeV4Version uint32 = 4

// legacyV2Version and legacyV3Version identify the historical,
// KEM-wrapped container shapes this package still reads. No code here
// ever writes them: every new EncryptV4 call produces EnvelopeV4Version.
const (
	legacyV2Version uint32 = 2
	legacyV3Version uint32 = 3
)

// EnvelopeV4 is the parsed form of a whole-payload file container.
type EnvelopeV4 struct {
	ValidationNonce        []byte
	EncryptedValidationTag []byte
	KeyWrappingNonce       []byte
	EncryptedFileKey       []byte
	BodyNonce              []byte
	UsesKeyfile            bool
	OriginalHash           []byte // nil when absent
	Ciphertext             []byte

	// Legacy-only fields; empty for envelopes produced by EncryptV4.
	legacyKyberCiphertext  []byte
	legacyWrappedSecretKey []byte
	legacyWrappingNonce    []byte
}

// innerRecord is the fixed, self-describing binary record sealed inside a
// V4 body: {filename, compressed payload}.
type innerRecord struct {
	Filename   string
	Compressed []byte
}

func encodeInnerRecord(r innerRecord) []byte {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, []byte(r.Filename))
	writeLenPrefixed(&buf, r.Compressed)
	return buf.Bytes()
}

func decodeInnerRecord(data []byte) (innerRecord, error) {
	r := bytes.NewReader(data)
	filename, err := readLenPrefixedFrom(r)
	if err != nil {
		return innerRecord{}, fmt.Errorf("filename: %w", err)
	}
	compressed, err := readLenPrefixedFrom(r)
	if err != nil {
		return innerRecord{}, fmt.Errorf("compressed payload: %w", err)
	}
	return innerRecord{Filename: string(filename), Compressed: compressed}, nil
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

// deriveWrappingKey computes WK = SHA256(MK || domain_tag || keyfile_hash?).
func deriveWrappingKey(masterKey, keyfileHash []byte) []byte {
	h := sha256.New()
	h.Write(masterKey)
	if len(keyfileHash) > 0 {
		h.Write([]byte("KEYFILE_MIX"))
		h.Write(keyfileHash)
	} else {
		h.Write([]byte("NO_KEYFILE"))
	}
	return h.Sum(nil)
}

// EncryptV4 seals filename/payload under masterKey (and, if keyfileHash is
// non-empty, bound to that keyfile) into a whole-payload container.
func EncryptV4(masterKey, keyfileHash []byte, filename string, payload []byte, cipherSuite CipherSuite, mode CompressionMode) (*EnvelopeV4, error) {
	if err := ValidateKey(masterKey, MasterKeySize); err != nil {
		return nil, err
	}
	if len(payload) > V4SizeLimit {
		return nil, NewError(ErrSizeLimitExceeded, "envelope_v4.encrypt", fmt.Errorf("payload of %d bytes exceeds the %d byte limit", len(payload), V4SizeLimit))
	}

	originalHash := sha256.Sum256(payload)

	compressed, err := compressBytes(payload, mode, filename)
	if err != nil {
		return nil, err
	}
	record := encodeInnerRecord(innerRecord{Filename: filename, Compressed: compressed})

	wk := deriveWrappingKey(masterKey, keyfileHash)
	defer Zero(wk)
	wkEngine, err := NewCipherEngine(cipherSuite, wk)
	if err != nil {
		return nil, err
	}

	fileKey, err := randomBytes(OSRandom, FileKeySize)
	if err != nil {
		return nil, NewError(ErrIOFailure, "envelope_v4.encrypt", err)
	}
	defer Zero(fileKey)

	bodyNonce, err := GenerateNonce()
	if err != nil {
		return nil, NewError(ErrIOFailure, "envelope_v4.encrypt", err)
	}
	keyWrappingNonce, err := GenerateNonce()
	if err != nil {
		return nil, NewError(ErrIOFailure, "envelope_v4.encrypt", err)
	}
	validationNonce, err := GenerateNonce()
	if err != nil {
		return nil, NewError(ErrIOFailure, "envelope_v4.encrypt", err)
	}

	encryptedValidationTag, err := wkEngine.Encrypt(validationNonce, []byte(ValidationMagic))
	if err != nil {
		return nil, NewError(ErrIOFailure, "envelope_v4.encrypt", err)
	}
	encryptedFileKey, err := wkEngine.Encrypt(keyWrappingNonce, fileKey)
	if err != nil {
		return nil, NewError(ErrIOFailure, "envelope_v4.encrypt", err)
	}

	fileEngine, err := NewCipherEngine(cipherSuite, fileKey)
	if err != nil {
		return nil, err
	}
	ciphertext, err := fileEngine.Encrypt(bodyNonce, record)
	if err != nil {
		return nil, NewError(ErrIOFailure, "envelope_v4.encrypt", err)
	}

	logOp(packageLogger, "envelope_v4.encrypt").Debug().Str("filename", filename).Int("payload_bytes", len(payload)).Msg("sealed V4 envelope")
	return &EnvelopeV4{
		ValidationNonce:        validationNonce,
		EncryptedValidationTag: encryptedValidationTag,
		KeyWrappingNonce:       keyWrappingNonce,
		EncryptedFileKey:       encryptedFileKey,
		BodyNonce:              bodyNonce,
		UsesKeyfile:            len(keyfileHash) > 0,
		OriginalHash:           originalHash[:],
		Ciphertext:             ciphertext,
	}, nil
}

// DecryptV4 opens env under masterKey (and keyfileHash, if the envelope
// requires one), returning the original filename and payload bytes.
func DecryptV4(masterKey, keyfileHash []byte, env *EnvelopeV4, cipherSuite CipherSuite) (filename string, payload []byte, err error) {
	if err := ValidateKey(masterKey, MasterKeySize); err != nil {
		return "", nil, err
	}
	if env.UsesKeyfile && len(keyfileHash) == 0 {
		return "", nil, NewError(ErrKeyfileRequired, "envelope_v4.decrypt", fmt.Errorf("this file requires a keyfile"))
	}

	wk := deriveWrappingKey(masterKey, keyfileHash)
	defer Zero(wk)
	wkEngine, err := NewCipherEngine(cipherSuite, wk)
	if err != nil {
		return "", nil, err
	}

	tag, err := wkEngine.Decrypt(env.ValidationNonce, env.EncryptedValidationTag)
	if err != nil {
		logOp(packageLogger, "envelope_v4.decrypt").Warn().Msg("validation tag rejected")
		return "", nil, NewError(ErrBadCredential, "envelope_v4.decrypt", nil)
	}
	if !bytes.Equal(tag, []byte(ValidationMagic)) {
		return "", nil, NewError(ErrValidationMismatch, "envelope_v4.decrypt", nil)
	}

	var fileKey []byte
	if len(env.legacyKyberCiphertext) > 0 {
		fileKey, err = unwrapLegacyFileKey(wkEngine, env)
	} else {
		fileKey, err = wkEngine.Decrypt(env.KeyWrappingNonce, env.EncryptedFileKey)
	}
	if err != nil {
		return "", nil, NewError(ErrBadCredential, "envelope_v4.decrypt", nil)
	}
	defer Zero(fileKey)

	fileEngine, err := NewCipherEngine(cipherSuite, fileKey)
	if err != nil {
		return "", nil, err
	}
	recordBytes, err := fileEngine.Decrypt(env.BodyNonce, env.Ciphertext)
	if err != nil {
		return "", nil, NewError(ErrBadCredential, "envelope_v4.decrypt", nil)
	}

	record, err := decodeInnerRecord(recordBytes)
	if err != nil {
		return "", nil, NewError(ErrIntegrityFailure, "envelope_v4.decrypt", fmt.Errorf("malformed inner record: %w", err))
	}

	out, err := decompressBytes(record.Compressed)
	if err != nil {
		return "", nil, err
	}

	if len(env.OriginalHash) > 0 {
		actual := sha256.Sum256(out)
		if !bytes.Equal(actual[:], env.OriginalHash) {
			return "", nil, NewError(ErrIntegrityFailure, "envelope_v4.decrypt", fmt.Errorf("decrypted payload does not match stored hash"))
		}
	}

	logOp(packageLogger, "envelope_v4.decrypt").Debug().Str("filename", record.Filename).Int("payload_bytes", len(out)).Msg("opened V4 envelope")
	return record.Filename, out, nil
}

// unwrapLegacyFileKey recovers the per-file key from a legacy V2/V3
// container, where the key under WK is actually an ML-KEM-1024 secret key
// and the file key is the decapsulated shared secret, normalized to 32
// bytes. See kem.go.
func unwrapLegacyFileKey(wkEngine CipherEngine, env *EnvelopeV4) ([]byte, error) {
	secretKeyBytes, err := wkEngine.Decrypt(env.legacyWrappingNonce, env.legacyWrappedSecretKey)
	if err != nil {
		return nil, err
	}
	sharedSecret, err := kemDecapsulateLegacy(secretKeyBytes, env.legacyKyberCiphertext)
	if err != nil {
		return nil, err
	}
	if len(sharedSecret) > FileKeySize {
		sharedSecret = sharedSecret[:FileKeySize]
	}
	return sharedSecret, nil
}
