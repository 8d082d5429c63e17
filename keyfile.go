package vault

import (
	"crypto/sha256"
	"io"
	"os"
)

// keyfileBlockSize is the read chunk size for streaming keyfile hashing, so
// an arbitrarily large keyfile never needs to be held in memory at once.
const keyfileBlockSize = 4096

// HashKeyfile streams path through SHA-256 in keyfileBlockSize blocks and
// returns the digest. An empty path means "no keyfile" and returns nil,
// nil: callers distinguish "no keyfile" from "hash of an empty file" by
// checking for a nil result rather than a zero-length one.
func HashKeyfile(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, NewError(ErrIOFailure, "keyfile.hash", err)
	}
	defer f.Close()

	if _, err := f.Stat(); err != nil {
		return nil, NewError(ErrIOFailure, "keyfile.hash", err)
	}

	h := sha256.New()
	buf := make([]byte, keyfileBlockSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, NewError(ErrIOFailure, "keyfile.hash", err)
	}

	return h.Sum(nil), nil
}

// HashKeyfileBytes hashes caller-supplied keyfile bytes directly, for
// callers that already hold the keyfile in memory (e.g. drag-and-drop from
// a UI layer). An empty slice means "no keyfile", matching HashKeyfile.
func HashKeyfileBytes(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	sum := sha256.Sum256(data)
	return sum[:]
}
