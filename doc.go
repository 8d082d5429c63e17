// Package vault implements the core of a local, at-rest data-protection
// engine: a password- and recovery-code-protected Master Key, two envelope
// formats for sealing files under it (a whole-payload container and a
// chunked streaming container), a process-wide Session holding the
// unlocked key, and the supporting primitives (KDF, AEAD, legacy KEM,
// CSPRNG, keyfiles, recovery codes, secure deletion, directory packing,
// progress reporting, configuration, and logging) those formats are built
// from.
//
// # Basic usage
//
//	kc, err := vault.NewKeychain(dataDir)
//	recoveryCode, mk, err := kc.Init([]byte("correct horse battery staple"))
//	defer vault.Zero(mk)
//
//	env, err := vault.EncryptV4(mk, nil, "notes.txt", payload, vault.CipherAES256GCM, vault.CompressionAuto)
//	filename, out, err := vault.DecryptV4(mk, nil, env, vault.CipherAES256GCM)
//
// Large files use the streaming envelope instead, which seals directly
// between two paths rather than holding the whole payload in memory:
//
//	err := vault.EncryptV5(mk, nil, inPath, outPath, vault.CipherAES256GCM, vault.CompressionAuto, 0, nil)
//	name, err := vault.DecryptV5(mk, nil, inPath, outDir, vault.CipherAES256GCM, nil)
//
// A locked vault is restored to use with Keychain.Unlock or
// Keychain.Recover, and the resulting Master Key handed to
// Session.Set so CurrentSession can hold it for the life of the process:
//
//	mk, err := kc.Unlock(password)
//	err = vault.CurrentSession().Set(mk)
//	// ... later ...
//	vault.CurrentSession().Lock()
//
// # Supporting operations
//
// Beyond the envelope formats, the package exposes the primitives a
// caller builds a full vault application from: Shred and ShredTargetClass
// for secure deletion, PackDirectory/UnpackDirectory for turning a
// directory into a single stream before it is sealed, HashKeyfile and
// HashKeyfileBytes for deriving the optional keyfile binding,
// RotateKeyfileV4 for re-binding a V4 envelope to a new keyfile without
// touching its ciphertext body, GenerateRecoveryCode for the
// human-transcribable recovery format, LoadConfig for reading the
// on-disk/environment configuration, and NewLogger for structured,
// secret-free diagnostic logging.
//
// # Cipher suites
//
//   - AES-256-GCM (default)
//   - ChaCha20-Poly1305
//
// Both provide 256-bit keys, 96-bit nonces, and 128-bit authentication
// tags. Nonce reuse under the same key is forbidden; whole-payload
// envelopes use random per-file nonces, streaming envelopes use a
// structured per-chunk counter bound into the associated data (see
// envelope_v5.go).
//
// # Security considerations
//
// Protected against: unauthorized reads of encrypted data at rest, silent
// tampering (AEAD + validation tag + integrity hash/length check), offline
// brute force (memory-hard KDF), and chunk reordering/truncation/splicing
// in the streaming format (associated-data binding).
//
// Not protected against: memory dumps while the Session is unlocked,
// side-channel attacks beyond what the underlying ciphers provide,
// compromised host OS/keyloggers, or metadata leakage (file sizes, access
// times). See SPEC_FULL.md for the complete list of non-goals.
package vault
