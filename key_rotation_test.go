package vault

import "testing"

func TestRotateKeyfileV4AddRemoveAndSwap(t *testing.T) {
	mk := testMasterKey(t)
	payload := []byte("rotate me")

	env, err := EncryptV4(mk, nil, "doc.txt", payload, CipherAES256GCM, CompressionAuto)
	if err != nil {
		t.Fatalf("EncryptV4: %v", err)
	}

	keyfileHash := HashKeyfileBytes([]byte("a keyfile"))
	withKeyfile, err := RotateKeyfileV4(mk, nil, keyfileHash, env, CipherAES256GCM)
	if err != nil {
		t.Fatalf("RotateKeyfileV4 (add keyfile): %v", err)
	}
	if !withKeyfile.UsesKeyfile {
		t.Fatal("rotated envelope should now require a keyfile")
	}
	if string(withKeyfile.Ciphertext) != string(env.Ciphertext) {
		t.Fatal("rotating the keyfile should not touch the encrypted body")
	}

	if _, _, err := DecryptV4(mk, nil, withKeyfile, CipherAES256GCM); !Is(err, ErrKeyfileRequired) {
		t.Fatalf("expected ErrKeyfileRequired without the new keyfile, got %v", err)
	}
	filename, out, err := DecryptV4(mk, keyfileHash, withKeyfile, CipherAES256GCM)
	if err != nil {
		t.Fatalf("DecryptV4 with rotated-in keyfile: %v", err)
	}
	if filename != "doc.txt" || string(out) != "rotate me" {
		t.Fatal("payload changed across keyfile rotation")
	}

	withoutKeyfile, err := RotateKeyfileV4(mk, keyfileHash, nil, withKeyfile, CipherAES256GCM)
	if err != nil {
		t.Fatalf("RotateKeyfileV4 (remove keyfile): %v", err)
	}
	if withoutKeyfile.UsesKeyfile {
		t.Fatal("rotated envelope should no longer require a keyfile")
	}
	_, out, err = DecryptV4(mk, nil, withoutKeyfile, CipherAES256GCM)
	if err != nil {
		t.Fatalf("DecryptV4 after removing keyfile: %v", err)
	}
	if string(out) != "rotate me" {
		t.Fatal("payload changed after removing keyfile binding")
	}
}

func TestRotateKeyfileV4RequiresOldKeyfile(t *testing.T) {
	mk := testMasterKey(t)
	keyfileHash := HashKeyfileBytes([]byte("a keyfile"))

	env, err := EncryptV4(mk, keyfileHash, "doc.txt", []byte("data"), CipherAES256GCM, CompressionAuto)
	if err != nil {
		t.Fatalf("EncryptV4: %v", err)
	}

	if _, err := RotateKeyfileV4(mk, nil, nil, env, CipherAES256GCM); !Is(err, ErrKeyfileRequired) {
		t.Fatalf("expected ErrKeyfileRequired, got %v", err)
	}
}
