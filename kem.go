package vault

import (
	"crypto/mlkem"
	"fmt"
)

// Legacy key-encapsulation support. Versions 2 and 3 of the file envelope
// wrapped a per-file session key in an ML-KEM-1024 ciphertext instead of
// wrapping the file key directly under the Wrapping Key; see envelope_v4.go
// for how a legacy container is read and up-converted on decrypt. No code
// path here is reachable from an encrypt operation: new files only ever
// produce a V4 (or V5 streaming) container, which carries the file key
// wrapped directly and has no KEM step at all.

// kemKeypair holds a legacy encapsulation/decapsulation key pair.
type kemKeypair struct {
	dk *mlkem.DecapsulationKey1024
}

// generateLegacyKEMKeypair creates a fresh ML-KEM-1024 key pair. Only used
// by tests that build legacy-format fixtures; production encrypt paths
// never call this.
func generateLegacyKEMKeypair() (*kemKeypair, error) {
	dk, err := mlkem.GenerateKey1024()
	if err != nil {
		return nil, NewError(ErrIOFailure, "kem.generate_keypair", err)
	}
	return &kemKeypair{dk: dk}, nil
}

// kemEncapsulate returns the shared secret and its ciphertext under pub.
// Only used by legacy-fixture tests.
func kemEncapsulate(pub []byte) (sharedSecret, ciphertext []byte, err error) {
	ek, err := mlkem.NewEncapsulationKey1024(pub)
	if err != nil {
		return nil, nil, NewError(ErrIOFailure, "kem.encapsulate", fmt.Errorf("invalid encapsulation key: %w", err))
	}
	sharedSecret, ciphertext = ek.Encapsulate()
	return sharedSecret, ciphertext, nil
}

// kemDecapsulateLegacy recovers the shared secret for a legacy V2/V3
// container's kyber_encapped_session_key field, given the decrypted
// legacy secret key bytes and the stored ciphertext.
func kemDecapsulateLegacy(secretKeyBytes, ciphertext []byte) ([]byte, error) {
	dk, err := mlkem.NewDecapsulationKey1024(secretKeyBytes)
	if err != nil {
		return nil, NewError(ErrIntegrityFailure, "kem.decapsulate", fmt.Errorf("invalid legacy secret key: %w", err))
	}
	sharedSecret, err := dk.Decapsulate(ciphertext)
	if err != nil {
		return nil, NewError(ErrIntegrityFailure, "kem.decapsulate", fmt.Errorf("failed to decapsulate legacy session key: %w", err))
	}
	return sharedSecret, nil
}

// secretBytes returns the decapsulation (secret) key's seed encoding, as it would
// be stored wrapped under the Wrapping Key in a legacy container.
func (k *kemKeypair) secretBytes() []byte {
	return k.dk.Bytes()
}

// publicBytes returns the encapsulation (public) key's encoding.
func (k *kemKeypair) publicBytes() []byte {
	return k.dk.EncapsulationKey().Bytes()
}
