package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// keychainFileName is the on-disk name of the keychain record within a
// Keychain's data directory.
const keychainFileName = "keychain.json"

// keychainSlot is one of the two independently-derived encryptions of the
// Master Key: one under a password-derived key, one under a recovery-code-
// derived key. Both slots decrypt to the same Master Key bytes.
type keychainSlot struct {
	Salt            []byte `json:"salt"`
	Nonce           []byte `json:"nonce"`
	EncryptedMaster []byte `json:"encrypted_master_key"`
}

// keychainRecord is the serialized form of a Keychain, written as
// indented JSON so it can be inspected by hand if something goes wrong.
// KDFMemory/Iterations/Parallelism default (via Argon2idParams.withDefaults)
// when absent, so records written before these fields existed still load.
type keychainRecord struct {
	VaultID        string       `json:"vault_id"`
	KDFMemory      uint32       `json:"kdf_memory,omitempty"`
	KDFIterations  uint32       `json:"kdf_iterations,omitempty"`
	KDFParallelism uint8        `json:"kdf_parallelism,omitempty"`
	Password       keychainSlot `json:"password_slot"`
	Recovery       keychainSlot `json:"recovery_slot"`
}

func (r *keychainRecord) params() Argon2idParams {
	return Argon2idParams{
		Memory:      r.KDFMemory,
		Iterations:  r.KDFIterations,
		Parallelism: r.KDFParallelism,
	}.withDefaults()
}

// Keychain manages the on-disk record that protects a vault's Master Key
// behind a password slot and a recovery-code slot.
type Keychain struct {
	path string
}

// NewKeychain returns a Keychain rooted at dataDir. dataDir is created if
// it does not already exist.
func NewKeychain(dataDir string) (*Keychain, error) {
	if dataDir == "" {
		return nil, NewError(ErrIOFailure, "keychain.new", fmt.Errorf("data directory cannot be empty"))
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, NewError(ErrIOFailure, "keychain.new", err)
	}
	return &Keychain{path: filepath.Join(dataDir, keychainFileName)}, nil
}

// Exists reports whether a keychain record is already present.
func (k *Keychain) Exists() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

// Init creates a brand-new keychain record: a random Master Key, a
// password slot wrapping it, and a recovery slot wrapping it under a
// freshly generated recovery code. It fails if a record already exists.
func (k *Keychain) Init(password []byte) (recoveryCode string, masterKey []byte, err error) {
	if k.Exists() {
		return "", nil, NewError(ErrIOFailure, "keychain.init", fmt.Errorf("keychain already exists"))
	}
	if len(password) == 0 {
		return "", nil, NewError(ErrBadCredential, "keychain.init", fmt.Errorf("password cannot be empty"))
	}

	params := DefaultArgon2idParams

	mk, err := randomBytes(OSRandom, MasterKeySize)
	if err != nil {
		return "", nil, NewError(ErrIOFailure, "keychain.init", err)
	}

	recoveryCode, err = GenerateRecoveryCode(OSRandom)
	if err != nil {
		Zero(mk)
		return "", nil, err
	}

	passwordSlot, err := sealSlot(mk, password, params)
	if err != nil {
		Zero(mk)
		return "", nil, err
	}
	recoverySlot, err := sealSlot(mk, []byte(recoveryCode), params)
	if err != nil {
		Zero(mk)
		return "", nil, err
	}

	record := &keychainRecord{
		VaultID:        uuid.New().String(),
		KDFMemory:      params.Memory,
		KDFIterations:  params.Iterations,
		KDFParallelism: params.Parallelism,
		Password:       passwordSlot,
		Recovery:       recoverySlot,
	}
	if err := writeRecordAtomic(k.path, record); err != nil {
		Zero(mk)
		return "", nil, err
	}

	logOp(packageLogger, "keychain.init").Info().Str("vault_id", record.VaultID).Msg("keychain initialized")
	return recoveryCode, mk, nil
}

// Unlock decrypts the Master Key using the password slot.
func (k *Keychain) Unlock(password []byte) ([]byte, error) {
	record, err := readRecord(k.path)
	if err != nil {
		return nil, err
	}
	mk, err := openSlot(record.Password, password, record.params(), "keychain.unlock")
	if err != nil {
		logOp(packageLogger, "keychain.unlock").Warn().Str("vault_id", record.VaultID).Msg("unlock rejected")
		return nil, err
	}
	logOp(packageLogger, "keychain.unlock").Info().Str("vault_id", record.VaultID).Msg("unlock succeeded")
	return mk, nil
}

// Recover decrypts the Master Key using the recovery code, then re-wraps it
// under newPassword, replacing the password slot in place. The recovery
// slot is left untouched: recovery codes are rotated explicitly via
// RotateRecovery, not implicitly on use.
func (k *Keychain) Recover(recoveryCode string, newPassword []byte) ([]byte, error) {
	record, err := readRecord(k.path)
	if err != nil {
		return nil, err
	}

	mk, err := openSlot(record.Recovery, []byte(recoveryCode), record.params(), "keychain.recover")
	if err != nil {
		logOp(packageLogger, "keychain.recover").Warn().Str("vault_id", record.VaultID).Msg("recovery rejected")
		return nil, err
	}

	newSlot, err := sealSlot(mk, newPassword, record.params())
	if err != nil {
		Zero(mk)
		return nil, err
	}
	record.Password = newSlot

	if err := writeRecordAtomic(k.path, record); err != nil {
		Zero(mk)
		return nil, err
	}

	logOp(packageLogger, "keychain.recover").Info().Str("vault_id", record.VaultID).Msg("recovered and password slot rotated")
	return mk, nil
}

// ChangePassword re-wraps the already-unlocked Master Key under newPassword.
func (k *Keychain) ChangePassword(masterKey, newPassword []byte) error {
	if err := ValidateKey(masterKey, MasterKeySize); err != nil {
		return err
	}
	record, err := readRecord(k.path)
	if err != nil {
		return err
	}

	newSlot, err := sealSlot(masterKey, newPassword, record.params())
	if err != nil {
		return err
	}
	record.Password = newSlot
	return writeRecordAtomic(k.path, record)
}

// RotateRecovery generates a fresh recovery code and re-wraps the
// already-unlocked Master Key under it, replacing the recovery slot.
func (k *Keychain) RotateRecovery(masterKey []byte) (newRecoveryCode string, err error) {
	if err := ValidateKey(masterKey, MasterKeySize); err != nil {
		return "", err
	}
	record, err := readRecord(k.path)
	if err != nil {
		return "", err
	}

	newRecoveryCode, err = GenerateRecoveryCode(OSRandom)
	if err != nil {
		return "", err
	}

	newSlot, err := sealSlot(masterKey, []byte(newRecoveryCode), record.params())
	if err != nil {
		return "", err
	}
	record.Recovery = newSlot

	if err := writeRecordAtomic(k.path, record); err != nil {
		return "", err
	}
	return newRecoveryCode, nil
}

// sealSlot derives a key-wrapping key from secret and a fresh salt, then
// encrypts masterKey under it.
func sealSlot(masterKey, secret []byte, params Argon2idParams) (keychainSlot, error) {
	salt, err := GenerateSalt(OSRandom, params)
	if err != nil {
		return keychainSlot{}, err
	}
	kek, err := DeriveKey(secret, salt, params)
	if err != nil {
		return keychainSlot{}, err
	}
	defer Zero(kek)

	aead, err := newSlotAEAD(kek)
	if err != nil {
		return keychainSlot{}, err
	}
	nonce, err := randomBytes(OSRandom, NonceSize)
	if err != nil {
		return keychainSlot{}, NewError(ErrIOFailure, "keychain.seal_slot", err)
	}

	return keychainSlot{
		Salt:            salt,
		Nonce:           nonce,
		EncryptedMaster: aead.Seal(nil, nonce, masterKey, nil),
	}, nil
}

// openSlot derives the key-wrapping key from secret and the slot's stored
// salt, then decrypts the Master Key. Every failure collapses to
// ErrBadCredential: a wrong password, a wrong recovery code, and a
// corrupted slot must be indistinguishable to the caller.
func openSlot(slot keychainSlot, secret []byte, params Argon2idParams, op string) ([]byte, error) {
	kek, err := DeriveKey(secret, slot.Salt, params)
	if err != nil {
		return nil, NewError(ErrBadCredential, op, nil)
	}
	defer Zero(kek)

	aead, err := newSlotAEAD(kek)
	if err != nil {
		return nil, NewError(ErrBadCredential, op, nil)
	}

	mk, err := aead.Open(nil, slot.Nonce, slot.EncryptedMaster, nil)
	if err != nil {
		return nil, NewError(ErrBadCredential, op, nil)
	}
	return mk, nil
}

func newSlotAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func readRecord(path string) (*keychainRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewError(ErrSetupNeeded, "keychain.read", err)
		}
		return nil, NewError(ErrIOFailure, "keychain.read", err)
	}
	var record keychainRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, NewError(ErrIntegrityFailure, "keychain.read", fmt.Errorf("corrupted keychain record: %w", err))
	}
	return &record, nil
}

// writeRecordAtomic serializes record and replaces the keychain file in a
// single rename, so a crash mid-write never leaves a half-written record
// behind. The temp file is created in the same directory as the target so
// the rename stays on one filesystem.
func writeRecordAtomic(path string, record *keychainRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return NewError(ErrIOFailure, "keychain.write", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".keychain-*.tmp")
	if err != nil {
		return NewError(ErrIOFailure, "keychain.write", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return NewError(ErrIOFailure, "keychain.write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return NewError(ErrIOFailure, "keychain.write", err)
	}
	if err := tmp.Close(); err != nil {
		return NewError(ErrIOFailure, "keychain.write", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return NewError(ErrIOFailure, "keychain.write", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return NewError(ErrIOFailure, "keychain.write", err)
	}
	return nil
}
