package vault

import "fmt"

// Defensive validation helpers shared by the envelope and keychain code.

// ValidateBuffer checks that a buffer is non-nil and at least minSize bytes.
func ValidateBuffer(buf []byte, name string, minSize int) error {
	if buf == nil {
		return NewError(ErrIOFailure, "validate."+name, fmt.Errorf("%s: buffer cannot be nil", name))
	}
	if minSize > 0 && len(buf) < minSize {
		return NewError(ErrIOFailure, "validate."+name, fmt.Errorf("%s: too small: got %d bytes, need at least %d", name, len(buf), minSize))
	}
	return nil
}

// ValidateKey checks that a key has the expected size.
func ValidateKey(key []byte, expectedSize int) error {
	if key == nil || len(key) != expectedSize {
		return NewError(ErrIOFailure, "validate.key", fmt.Errorf("invalid key size: got %d bytes, expected %d", len(key), expectedSize))
	}
	return nil
}

// ValidateFilePath checks that a path is non-empty.
func ValidateFilePath(path string) error {
	if path == "" {
		return NewError(ErrIOFailure, "validate.path", fmt.Errorf("file path cannot be empty"))
	}
	return nil
}
