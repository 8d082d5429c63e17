package vault

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"testing"
)

// buildLegacyV3Container hand-assembles a V3 envelope the way the original
// desktop build wrote one: the file key is the KEM-decapsulated shared
// secret rather than a directly wrapped random key, and the KEM secret key
// itself is wrapped under the Wrapping Key.
func buildLegacyV3Container(t *testing.T, masterKey []byte, filename string, payload []byte) []byte {
	t.Helper()

	wk := deriveWrappingKey(masterKey, nil)
	defer Zero(wk)
	wkEngine, err := NewCipherEngine(CipherAES256GCM, wk)
	if err != nil {
		t.Fatalf("NewCipherEngine: %v", err)
	}

	kp, err := generateLegacyKEMKeypair()
	if err != nil {
		t.Fatalf("generateLegacyKEMKeypair: %v", err)
	}
	sharedSecret, ciphertext, err := kemEncapsulate(kp.publicBytes())
	if err != nil {
		t.Fatalf("kemEncapsulate: %v", err)
	}
	fileKey := sharedSecret[:FileKeySize]

	compressed, err := compressBytes(payload, CompressionAuto, filename)
	if err != nil {
		t.Fatalf("compressBytes: %v", err)
	}
	record := encodeInnerRecord(innerRecord{Filename: filename, Compressed: compressed})

	fileEngine, err := NewCipherEngine(CipherAES256GCM, fileKey)
	if err != nil {
		t.Fatalf("NewCipherEngine: %v", err)
	}
	bodyNonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	sealedBody, err := fileEngine.Encrypt(bodyNonce, record)
	if err != nil {
		t.Fatalf("Encrypt body: %v", err)
	}

	wrappingNonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	wrappedSecretKey, err := wkEngine.Encrypt(wrappingNonce, kp.secretBytes())
	if err != nil {
		t.Fatalf("Encrypt secret key: %v", err)
	}

	validationNonce, err := GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	encryptedValidationTag, err := wkEngine.Encrypt(validationNonce, []byte(ValidationMagic))
	if err != nil {
		t.Fatalf("Encrypt validation tag: %v", err)
	}

	originalHash := sha256.Sum256(payload)

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, legacyV3Version)
	buf.Write(wrappingNonce)
	writeLenPrefixed(&buf, wrappedSecretKey)
	buf.Write(validationNonce)
	writeLenPrefixed(&buf, encryptedValidationTag)
	buf.Write(bodyNonce) // hybrid_nonce position, reused as the body nonce
	writeLenPrefixed(&buf, ciphertext)
	buf.WriteByte(0) // uses_keyfile = false
	buf.WriteByte(1) // original_hash present
	buf.Write(originalHash[:])
	writeLenPrefixed(&buf, sealedBody)

	return buf.Bytes()
}

func TestDecryptV4UpconvertsLegacyV3Container(t *testing.T) {
	mk := testMasterKey(t)
	payload := []byte("a legacy password entry")

	wire := buildLegacyV3Container(t, mk, "legacy.txt", payload)

	env, err := ReadEnvelopeV4(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("ReadEnvelopeV4: %v", err)
	}

	filename, out, err := DecryptV4(mk, nil, env, CipherAES256GCM)
	if err != nil {
		t.Fatalf("DecryptV4 on legacy V3 container: %v", err)
	}
	if filename != "legacy.txt" {
		t.Fatalf("filename = %q, want legacy.txt", filename)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("legacy V3 payload did not survive up-conversion")
	}
}
