package vault

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
)

func TestHashKeyfileMatchesBytesHash(t *testing.T) {
	dir := t.TempDir()
	data := bytes.Repeat([]byte("keyfile material "), 1000)
	path := filepath.Join(dir, "key.bin")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fromFile, err := HashKeyfile(path)
	if err != nil {
		t.Fatalf("HashKeyfile: %v", err)
	}
	fromBytes := HashKeyfileBytes(data)

	if !bytes.Equal(fromFile, fromBytes) {
		t.Fatal("file hash and in-memory hash disagree")
	}

	want := sha256.Sum256(data)
	if !bytes.Equal(fromFile, want[:]) {
		t.Fatal("hash does not match a direct sha256.Sum256")
	}
}

func TestHashKeyfileIndependentOfChunking(t *testing.T) {
	dir := t.TempDir()

	sizes := []int{0, 1, keyfileBlockSize - 1, keyfileBlockSize, keyfileBlockSize + 1, keyfileBlockSize*3 + 7}
	for _, size := range sizes {
		data := bytes.Repeat([]byte{0x5A}, size)
		path := filepath.Join(dir, "key.bin")
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}

		got, err := HashKeyfile(path)
		if err != nil {
			t.Fatalf("HashKeyfile (size=%d): %v", size, err)
		}
		want := sha256.Sum256(data)
		if !bytes.Equal(got, want[:]) {
			t.Fatalf("hash mismatch at size %d", size)
		}
	}
}

func TestHashKeyfileEmptyPathMeansNoKeyfile(t *testing.T) {
	got, err := HashKeyfile("")
	if err != nil {
		t.Fatalf("HashKeyfile(\"\"): %v", err)
	}
	if got != nil {
		t.Fatal("empty path should report no keyfile as a nil hash")
	}
}

func TestHashKeyfileBytesEmptyMeansNoKeyfile(t *testing.T) {
	if got := HashKeyfileBytes(nil); got != nil {
		t.Fatal("empty bytes should report no keyfile as a nil hash")
	}
}
