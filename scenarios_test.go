package vault

import (
	"bytes"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
)

// TestScenarioInitRelockUnlock is end-to-end scenario 1: init, relock,
// unlock with the right password, reject the wrong one.
func TestScenarioInitRelockUnlock(t *testing.T) {
	withFastKDF(t)
	dir := t.TempDir()

	kc, err := NewKeychain(dir)
	if err != nil {
		t.Fatalf("NewKeychain: %v", err)
	}
	_, _, err = kc.Init([]byte("correct horse"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	s := CurrentSession()
	s.Lock()
	t.Cleanup(s.Lock)

	mk, err := kc.Unlock([]byte("correct horse"))
	if err != nil {
		t.Fatalf("login with correct password: %v", err)
	}
	if err := s.Set(mk); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s.Lock() // logout

	if _, err := kc.Unlock([]byte("wrong")); !Is(err, ErrBadCredential) {
		t.Fatalf("login with wrong password = %v, want ErrBadCredential", err)
	}
	if _, err := kc.Unlock([]byte("correct horse")); err != nil {
		t.Fatalf("login with correct password after the wrong attempt: %v", err)
	}
}

// TestScenarioRecovery is end-to-end scenario 2: recover with R, new
// password works, old password fails, R keeps working for further recovery.
func TestScenarioRecovery(t *testing.T) {
	withFastKDF(t)
	dir := t.TempDir()

	kc, err := NewKeychain(dir)
	if err != nil {
		t.Fatalf("NewKeychain: %v", err)
	}
	recoveryCode, _, err := kc.Init([]byte("correct horse"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if _, err := kc.Recover(recoveryCode, []byte("new pw")); err != nil {
		t.Fatalf("recover(R, \"new pw\"): %v", err)
	}
	if _, err := kc.Unlock([]byte("new pw")); err != nil {
		t.Fatalf("login(\"new pw\") after recovery: %v", err)
	}
	if _, err := kc.Unlock([]byte("correct horse")); !Is(err, ErrBadCredential) {
		t.Fatalf("login(\"correct horse\") after recovery = %v, want ErrBadCredential", err)
	}
	if _, err := kc.Recover(recoveryCode, []byte("third")); err != nil {
		t.Fatalf("recover(R, \"third\"): R should still work after a prior recovery, got %v", err)
	}
	if _, err := kc.Unlock([]byte("third")); err != nil {
		t.Fatalf("login(\"third\") after second recovery: %v", err)
	}
}

// TestScenarioSmallFileRoundTrip is end-to-end scenario 3.
func TestScenarioSmallFileRoundTrip(t *testing.T) {
	mk := testMasterKey(t)
	payload := []byte("hello, qre-world!")

	env, err := EncryptV4(mk, nil, "note.txt", payload, CipherAES256GCM, CompressionAuto)
	if err != nil {
		t.Fatalf("EncryptV4: %v", err)
	}

	filename, out, err := DecryptV4(mk, nil, env, CipherAES256GCM)
	if err != nil {
		t.Fatalf("DecryptV4: %v", err)
	}
	if filename != "note.txt" {
		t.Fatalf("filename = %q, want note.txt", filename)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("payload bytes changed across V4 round trip")
	}
	want := sha256.Sum256(payload)
	if !bytes.Equal(env.OriginalHash, want[:]) {
		t.Fatal("original_hash does not match the plaintext's SHA-256")
	}
}

// TestScenarioLargeFileRoundTrip is end-to-end scenario 4, scaled down from
// the literal 3 GiB to a few chunk-spanning megabytes: the invariant under
// test (SHA-256 and byte length survive a streamed V5 round trip) does not
// depend on the absolute size, and a multi-gigabyte allocation is not a
// reasonable default test workload.
func TestScenarioLargeFileRoundTrip(t *testing.T) {
	mk := testMasterKey(t)
	dir := t.TempDir()

	payload := make([]byte, 9*DefaultChunkSize+4096)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	wantHash := sha256.Sum256(payload)
	wantLen := int64(len(payload))

	inPath := writeTempFile(t, dir, "large-input.bin", payload)
	encPath := filepath.Join(dir, "large-input.qre")

	if err := EncryptV5(mk, nil, inPath, encPath, CipherAES256GCM, CompressionAuto, 0, nil); err != nil {
		t.Fatalf("EncryptV5: %v", err)
	}

	outDir := t.TempDir()
	outName, err := DecryptV5(mk, nil, encPath, outDir, CipherAES256GCM, nil)
	if err != nil {
		t.Fatalf("DecryptV5: %v", err)
	}

	outPath := filepath.Join(outDir, outName)
	info, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("Stat decrypted output: %v", err)
	}
	if info.Size() != wantLen {
		t.Fatalf("decrypted length = %d, want %d", info.Size(), wantLen)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	gotHash := sha256.Sum256(got)
	if gotHash != wantHash {
		t.Fatal("decrypted file's SHA-256 does not match the original")
	}
}

// TestScenarioTamperDetectionLeavesNoOutput is end-to-end scenario 5.
func TestScenarioTamperDetectionLeavesNoOutput(t *testing.T) {
	mk := testMasterKey(t)
	dir := t.TempDir()

	payload := bytes.Repeat([]byte("tamper scenario payload "), 10000)
	inPath := writeTempFile(t, dir, "plain.bin", payload)
	encPath := filepath.Join(dir, "sealed.qre")

	if err := EncryptV5(mk, nil, inPath, encPath, CipherAES256GCM, CompressionAuto, 64*1024, nil); err != nil {
		t.Fatalf("EncryptV5: %v", err)
	}

	sealed, err := os.ReadFile(encPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	mid := len(sealed) / 2
	sealed[mid] ^= 0xFF
	if err := os.WriteFile(encPath, sealed, 0o600); err != nil {
		t.Fatalf("WriteFile (tampered): %v", err)
	}

	outDir := t.TempDir()
	if _, err := DecryptV5(mk, nil, encPath, outDir, CipherAES256GCM, nil); !Is(err, ErrChunkAuthFailure) {
		t.Fatalf("decrypt of tampered ciphertext = %v, want ErrChunkAuthFailure", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("tampered decrypt left %d file(s) on disk: %v", len(entries), entries)
	}
}

// TestScenarioKeyfileBinding is end-to-end scenario 6.
func TestScenarioKeyfileBinding(t *testing.T) {
	mk := testMasterKey(t)

	correctKeyfile := bytes.Repeat([]byte{0x00}, 4096)
	wrongKeyfile := bytes.Repeat([]byte{0x01}, 4096)
	correctHash := HashKeyfileBytes(correctKeyfile)
	wrongHash := HashKeyfileBytes(wrongKeyfile)

	env, err := EncryptV4(mk, correctHash, "bound.txt", []byte("payload"), CipherAES256GCM, CompressionAuto)
	if err != nil {
		t.Fatalf("EncryptV4: %v", err)
	}

	if _, _, err := DecryptV4(mk, nil, env, CipherAES256GCM); !Is(err, ErrKeyfileRequired) {
		t.Fatalf("decrypt without keyfile = %v, want ErrKeyfileRequired", err)
	}
	if _, _, err := DecryptV4(mk, wrongHash, env, CipherAES256GCM); !Is(err, ErrBadCredential) {
		t.Fatalf("decrypt with wrong keyfile = %v, want ErrBadCredential", err)
	}
	if _, out, err := DecryptV4(mk, correctHash, env, CipherAES256GCM); err != nil || string(out) != "payload" {
		t.Fatalf("decrypt with correct keyfile: out=%q err=%v", out, err)
	}
}
