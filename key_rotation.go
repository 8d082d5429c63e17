package vault

import (
	"bytes"
	"fmt"
)

// RotateKeyfileV4 re-wraps env's file key under a new keyfile binding
// without touching the encrypted body: the validation tag and file key
// are unwrapped under the old wrapping key (derived from masterKey and
// oldKeyfileHash) and re-sealed under a fresh wrapping key (derived from
// masterKey and newKeyfileHash), with fresh nonces for both. Pass a nil or
// empty newKeyfileHash to remove a keyfile requirement entirely. The
// returned envelope shares env's BodyNonce and Ciphertext: rotating the
// keyfile is always cheaper than re-encrypting the payload.
func RotateKeyfileV4(masterKey, oldKeyfileHash, newKeyfileHash []byte, env *EnvelopeV4, cipherSuite CipherSuite) (*EnvelopeV4, error) {
	if err := ValidateKey(masterKey, MasterKeySize); err != nil {
		return nil, err
	}
	if env.UsesKeyfile && len(oldKeyfileHash) == 0 {
		return nil, NewError(ErrKeyfileRequired, "key_rotation.rotate_v4", fmt.Errorf("this file requires its current keyfile to rotate"))
	}

	oldWK := deriveWrappingKey(masterKey, oldKeyfileHash)
	defer Zero(oldWK)
	oldEngine, err := NewCipherEngine(cipherSuite, oldWK)
	if err != nil {
		return nil, err
	}

	tag, err := oldEngine.Decrypt(env.ValidationNonce, env.EncryptedValidationTag)
	if err != nil {
		return nil, NewError(ErrBadCredential, "key_rotation.rotate_v4", nil)
	}
	if !bytes.Equal(tag, []byte(ValidationMagic)) {
		return nil, NewError(ErrValidationMismatch, "key_rotation.rotate_v4", nil)
	}

	var fileKey []byte
	if len(env.legacyKyberCiphertext) > 0 {
		fileKey, err = unwrapLegacyFileKey(oldEngine, env)
	} else {
		fileKey, err = oldEngine.Decrypt(env.KeyWrappingNonce, env.EncryptedFileKey)
	}
	if err != nil {
		return nil, NewError(ErrBadCredential, "key_rotation.rotate_v4", nil)
	}
	defer Zero(fileKey)

	newWK := deriveWrappingKey(masterKey, newKeyfileHash)
	defer Zero(newWK)
	newEngine, err := NewCipherEngine(cipherSuite, newWK)
	if err != nil {
		return nil, err
	}

	newValidationNonce, err := GenerateNonce()
	if err != nil {
		return nil, NewError(ErrIOFailure, "key_rotation.rotate_v4", err)
	}
	newKeyWrappingNonce, err := GenerateNonce()
	if err != nil {
		return nil, NewError(ErrIOFailure, "key_rotation.rotate_v4", err)
	}

	newEncryptedValidationTag, err := newEngine.Encrypt(newValidationNonce, []byte(ValidationMagic))
	if err != nil {
		return nil, NewError(ErrIOFailure, "key_rotation.rotate_v4", err)
	}
	newEncryptedFileKey, err := newEngine.Encrypt(newKeyWrappingNonce, fileKey)
	if err != nil {
		return nil, NewError(ErrIOFailure, "key_rotation.rotate_v4", err)
	}

	return &EnvelopeV4{
		ValidationNonce:        newValidationNonce,
		EncryptedValidationTag: newEncryptedValidationTag,
		KeyWrappingNonce:       newKeyWrappingNonce,
		EncryptedFileKey:       newEncryptedFileKey,
		BodyNonce:              env.BodyNonce,
		UsesKeyfile:            len(newKeyfileHash) > 0,
		OriginalHash:           env.OriginalHash,
		Ciphertext:             env.Ciphertext,
	}, nil
}
