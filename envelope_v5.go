package vault

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnvelopeV5Version identifies the chunked streaming file envelope.
const EnvelopeV5Version uint32 = 5

// DefaultChunkSize is the chunk size new V5 envelopes are written with
// unless the caller requests otherwise. It must be a power of two.
const DefaultChunkSize = 1 << 20 // 1 MiB

// chunkTerminator and its accompanying final-flag byte close a V5 stream,
// distinguishing a clean end from a stream cut short mid-chunk.
const chunkTerminator uint32 = 0xFFFFFFFF

const (
	chunkFlagNonFinal byte = 0x00
	chunkFlagFinal    byte = 0x01
)

// v5Header is the framed metadata that precedes a V5 envelope's chunk
// stream: the same validation/key-wrapping construct as V4, plus the
// chunk size, stream salt, original filename, and (if known) the
// uncompressed length.
type v5Header struct {
	ValidationNonce        []byte
	EncryptedValidationTag []byte
	KeyWrappingNonce       []byte
	EncryptedFileKey       []byte
	UsesKeyfile            bool
	ChunkSize              uint32
	StreamSalt             []byte // 8 bytes
	Filename               string
	OriginalLength         uint64 // 0 means unknown
	HasOriginalLength      bool
}

// ProgressFunc receives (bytesProcessed, bytesTotal) as a streaming
// operation advances. bytesTotal is 0 when the total cannot be known in
// advance. Implementations MUST NOT block the caller indefinitely; see
// progress.go for the coalescing emitter built on top of this signature.
type ProgressFunc func(bytesProcessed, bytesTotal int64)

// EncryptV5 streams inputPath through compression and chunked AEAD sealing
// into outputPath. It is used for payloads too large to hold entirely in
// memory, and for packed directories (see packer.go).
func EncryptV5(masterKey, keyfileHash []byte, inputPath, outputPath string, cipherSuite CipherSuite, mode CompressionMode, chunkSize uint32, progress ProgressFunc) (err error) {
	if err := ValidateKey(masterKey, MasterKeySize); err != nil {
		return err
	}
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return NewError(ErrIOFailure, "envelope_v5.encrypt", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return NewError(ErrIOFailure, "envelope_v5.encrypt", err)
	}
	totalSize := info.Size()

	out, err := os.OpenFile(outputPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return NewError(ErrIOFailure, "envelope_v5.encrypt", err)
	}
	// On any failure after this point, remove the partial output rather
	// than leave a truncated envelope behind.
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	wk := deriveWrappingKey(masterKey, keyfileHash)
	defer Zero(wk)
	wkEngine, wkErr := NewCipherEngine(cipherSuite, wk)
	if wkErr != nil {
		err = wkErr
		return err
	}

	fileKey, ferr := randomBytes(OSRandom, FileKeySize)
	if ferr != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", ferr)
		return err
	}
	defer Zero(fileKey)

	fileEngine, feErr := NewCipherEngine(cipherSuite, fileKey)
	if feErr != nil {
		err = feErr
		return err
	}

	validationNonce, nErr := GenerateNonce()
	if nErr != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", nErr)
		return err
	}
	keyWrappingNonce, nErr := GenerateNonce()
	if nErr != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", nErr)
		return err
	}
	streamSalt, sErr := randomBytes(OSRandom, 8)
	if sErr != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", sErr)
		return err
	}

	encryptedValidationTag, eErr := wkEngine.Encrypt(validationNonce, []byte(ValidationMagic))
	if eErr != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", eErr)
		return err
	}
	encryptedFileKey, eErr := wkEngine.Encrypt(keyWrappingNonce, fileKey)
	if eErr != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", eErr)
		return err
	}

	header := v5Header{
		ValidationNonce:        validationNonce,
		EncryptedValidationTag: encryptedValidationTag,
		KeyWrappingNonce:       keyWrappingNonce,
		EncryptedFileKey:       encryptedFileKey,
		UsesKeyfile:            len(keyfileHash) > 0,
		ChunkSize:              chunkSize,
		StreamSalt:             streamSalt,
		Filename:               filepath.Base(inputPath),
		OriginalLength:         uint64(totalSize),
		HasOriginalLength:      true,
	}

	if err2 := binary.Write(out, binary.LittleEndian, EnvelopeV5Version); err2 != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", err2)
		return err
	}
	headerBytes := encodeV5Header(header)
	if err2 := binary.Write(out, binary.BigEndian, uint64(len(headerBytes))); err2 != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", err2)
		return err
	}
	if _, err2 := out.Write(headerBytes); err2 != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", err2)
		return err
	}

	// identityTag binds every chunk's AAD to this specific envelope,
	// preventing ciphertext splicing across files sealed under the same
	// Master Key.
	identityTag := firstBytes(encryptedValidationTag, 16)

	level := zstdLevelFor(mode, header.Filename)

	var chunkIndex uint32
	var processed int64
	readBuf := make([]byte, chunkSize)

	// Whether a given chunk is the last one is only knowable once the next
	// read comes back empty, which may happen only after a full-size read
	// (an input whose length is an exact multiple of chunkSize). So each
	// iteration holds the previous chunk back until it knows whether
	// another one follows.
	var pending []byte
	havePending := false

	emit := func(plaintext []byte, isFinal bool) error {
		compressed, cErr := compressChunk(plaintext, level)
		if cErr != nil {
			return cErr
		}
		flag := chunkFlagNonFinal
		if isFinal {
			flag = chunkFlagFinal
		}
		nonce := chunkNonce(streamSalt, chunkIndex)
		aad := chunkAAD(chunkIndex, flag, identityTag)

		sealed, sErr := sealChunkAEAD(fileEngine, nonce, compressed, aad)
		if sErr != nil {
			return sErr
		}
		if wErr := binary.Write(out, binary.BigEndian, uint32(len(sealed))); wErr != nil {
			return NewError(ErrIOFailure, "envelope_v5.encrypt", wErr)
		}
		if _, wErr := out.Write(sealed); wErr != nil {
			return NewError(ErrIOFailure, "envelope_v5.encrypt", wErr)
		}

		processed += int64(len(plaintext))
		if progress != nil {
			progress(processed, totalSize)
		}
		chunkIndex++
		return nil
	}

	for {
		n, readErr := io.ReadFull(in, readBuf)
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			err = NewError(ErrIOFailure, "envelope_v5.encrypt", readErr)
			return err
		}

		if n == 0 {
			// No more data: whatever is pending was the last chunk. If
			// nothing is pending (empty input), emit a single empty final
			// chunk so every envelope has at least one.
			if havePending {
				if err2 := emit(pending, true); err2 != nil {
					err = err2
					return err
				}
			} else {
				if err2 := emit(nil, true); err2 != nil {
					err = err2
					return err
				}
			}
			break
		}

		if havePending {
			if err2 := emit(pending, false); err2 != nil {
				err = err2
				return err
			}
		}

		if n < len(readBuf) {
			// Short read: definitely the last chunk, no need to look ahead.
			if err2 := emit(readBuf[:n], true); err2 != nil {
				err = err2
				return err
			}
			havePending = false
			break
		}

		pending = append([]byte(nil), readBuf[:n]...)
		havePending = true
	}

	if err2 := binary.Write(out, binary.BigEndian, chunkTerminator); err2 != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", err2)
		return err
	}
	if _, err2 := out.Write([]byte{chunkFlagFinal}); err2 != nil {
		err = NewError(ErrIOFailure, "envelope_v5.encrypt", err2)
		return err
	}

	logOp(packageLogger, "envelope_v5.encrypt").Info().
		Str("filename", header.Filename).Int64("total_bytes", totalSize).
		Uint32("chunks", chunkIndex).Msg("sealed V5 envelope")
	return nil
}

// firstBytes returns up to n leading bytes of b.
func firstBytes(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}

// chunkNonce builds the 12-byte nonce for chunk index i: an 8-byte stream
// salt followed by a 4-byte big-endian counter.
func chunkNonce(streamSalt []byte, index uint32) []byte {
	nonce := make([]byte, NonceSize)
	copy(nonce, streamSalt)
	binary.BigEndian.PutUint32(nonce[8:], index)
	return nonce
}

// chunkAAD builds the associated data a chunk's AEAD seal is bound to:
// the 4-byte big-endian chunk index, the final-flag byte, and the
// envelope's identity tag.
func chunkAAD(index uint32, flag byte, identityTag []byte) []byte {
	aad := make([]byte, 4+1+len(identityTag))
	binary.BigEndian.PutUint32(aad[0:4], index)
	aad[4] = flag
	copy(aad[5:], identityTag)
	return aad
}

// DecryptV5 reads a V5 envelope at inputPath and restores the original
// file into outputDir, returning the collision-safe filename it was
// written under.
func DecryptV5(masterKey, keyfileHash []byte, inputPath, outputDir string, cipherSuite CipherSuite, progress ProgressFunc) (outputName string, err error) {
	if err := ValidateKey(masterKey, MasterKeySize); err != nil {
		return "", err
	}

	in, openErr := os.Open(inputPath)
	if openErr != nil {
		return "", NewError(ErrIOFailure, "envelope_v5.decrypt", openErr)
	}
	defer in.Close()

	var version uint32
	if rErr := binary.Read(in, binary.LittleEndian, &version); rErr != nil {
		return "", NewError(ErrUnsupportedVersion, "envelope_v5.decrypt", fmt.Errorf("truncated before version tag: %w", rErr))
	}
	if version != EnvelopeV5Version {
		return "", NewError(ErrUnsupportedVersion, "envelope_v5.decrypt", fmt.Errorf("not a V5 envelope: version %d", version))
	}

	var headerLen uint64
	if rErr := binary.Read(in, binary.BigEndian, &headerLen); rErr != nil {
		return "", NewError(ErrUnsupportedVersion, "envelope_v5.decrypt", fmt.Errorf("truncated before header length: %w", rErr))
	}
	headerBytes := make([]byte, headerLen)
	if _, rErr := io.ReadFull(in, headerBytes); rErr != nil {
		return "", NewError(ErrUnsupportedVersion, "envelope_v5.decrypt", fmt.Errorf("truncated inside header: %w", rErr))
	}
	header, hErr := decodeV5Header(headerBytes)
	if hErr != nil {
		return "", hErr
	}

	if header.UsesKeyfile && len(keyfileHash) == 0 {
		return "", NewError(ErrKeyfileRequired, "envelope_v5.decrypt", fmt.Errorf("this file requires a keyfile"))
	}

	wk := deriveWrappingKey(masterKey, keyfileHash)
	defer Zero(wk)
	wkEngine, weErr := NewCipherEngine(cipherSuite, wk)
	if weErr != nil {
		return "", weErr
	}

	tag, tErr := wkEngine.Decrypt(header.ValidationNonce, header.EncryptedValidationTag)
	if tErr != nil {
		logOp(packageLogger, "envelope_v5.decrypt").Warn().Msg("validation tag rejected")
		return "", NewError(ErrBadCredential, "envelope_v5.decrypt", nil)
	}
	if !bytes.Equal(tag, []byte(ValidationMagic)) {
		return "", NewError(ErrValidationMismatch, "envelope_v5.decrypt", nil)
	}

	fileKey, kErr := wkEngine.Decrypt(header.KeyWrappingNonce, header.EncryptedFileKey)
	if kErr != nil {
		return "", NewError(ErrBadCredential, "envelope_v5.decrypt", nil)
	}
	defer Zero(fileKey)

	fileEngine, feErr := NewCipherEngine(cipherSuite, fileKey)
	if feErr != nil {
		return "", feErr
	}

	outputName = collisionSafeName(outputDir, header.Filename)
	outPath := filepath.Join(outputDir, outputName)
	out, createErr := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if createErr != nil {
		return "", NewError(ErrIOFailure, "envelope_v5.decrypt", createErr)
	}
	removePartial := true
	defer func() {
		out.Close()
		if removePartial {
			os.Remove(outPath)
		}
	}()

	identityTag := firstBytes(header.EncryptedValidationTag, 16)

	var chunkIndex uint32
	var written int64
	sawFinal := false

	for {
		var lenOrTerminator uint32
		if rErr := binary.Read(in, binary.BigEndian, &lenOrTerminator); rErr != nil {
			return "", NewError(ErrChunkAuthFailure, "envelope_v5.decrypt", fmt.Errorf("stream ended before terminator: %w", rErr))
		}

		if lenOrTerminator == chunkTerminator {
			if !sawFinal {
				return "", NewError(ErrChunkAuthFailure, "envelope_v5.decrypt", fmt.Errorf("terminator reached before the final chunk"))
			}
			var flag byte
			if rErr := binary.Read(in, binary.BigEndian, &flag); rErr != nil {
				return "", NewError(ErrChunkAuthFailure, "envelope_v5.decrypt", fmt.Errorf("stream ended inside terminator: %w", rErr))
			}
			trailing, _ := io.ReadAll(in)
			if len(trailing) > 0 {
				return "", NewError(ErrTrailingData, "envelope_v5.decrypt", fmt.Errorf("%d unexpected trailing bytes after terminator", len(trailing)))
			}
			break
		}

		if sawFinal {
			return "", NewError(ErrTrailingData, "envelope_v5.decrypt", fmt.Errorf("chunk data follows the final chunk"))
		}

		sealed := make([]byte, lenOrTerminator)
		if _, rErr := io.ReadFull(in, sealed); rErr != nil {
			return "", NewError(ErrChunkAuthFailure, "envelope_v5.decrypt", fmt.Errorf("stream ended mid-chunk: %w", rErr))
		}

		nonce := chunkNonce(header.StreamSalt, chunkIndex)

		var compressed []byte
		var openErr error
		for _, flag := range []byte{chunkFlagNonFinal, chunkFlagFinal} {
			aad := chunkAAD(chunkIndex, flag, identityTag)
			compressed, openErr = openChunkAEAD(fileEngine, nonce, sealed, aad)
			if openErr == nil {
				sawFinal = flag == chunkFlagFinal
				break
			}
		}
		if openErr != nil {
			return "", NewError(ErrChunkAuthFailure, "envelope_v5.decrypt", openErr)
		}

		plaintext, dErr := decompressChunk(compressed)
		if dErr != nil {
			return "", dErr
		}

		if _, wErr := out.Write(plaintext); wErr != nil {
			return "", NewError(ErrIOFailure, "envelope_v5.decrypt", wErr)
		}

		written += int64(len(plaintext))
		if progress != nil {
			progress(written, int64(header.OriginalLength))
		}
		chunkIndex++
	}

	if header.HasOriginalLength && written != int64(header.OriginalLength) {
		return "", NewError(ErrIntegrityFailure, "envelope_v5.decrypt", fmt.Errorf("decrypted length %d does not match stored length %d", written, header.OriginalLength))
	}

	removePartial = false
	logOp(packageLogger, "envelope_v5.decrypt").Info().
		Str("filename", outputName).Int64("written_bytes", written).
		Uint32("chunks", chunkIndex).Msg("opened V5 envelope")
	return outputName, nil
}

// sealChunkAEAD seals plaintext under the engine's key with aad bound,
// through the unexported aeadSealer extension that both CipherEngine
// implementations in this package provide; an engine without it is
// rejected with an error. The assertion keeps AAD off CipherEngine's
// public contract, since only the streaming envelope needs it.
func sealChunkAEAD(engine CipherEngine, nonce, plaintext, aad []byte) ([]byte, error) {
	aeadEngine, ok := engine.(aeadSealer)
	if !ok {
		return nil, fmt.Errorf("cipher engine does not support associated data")
	}
	return aeadEngine.SealWithAAD(nonce, plaintext, aad)
}

func openChunkAEAD(engine CipherEngine, nonce, ciphertext, aad []byte) ([]byte, error) {
	aeadEngine, ok := engine.(aeadSealer)
	if !ok {
		return nil, fmt.Errorf("cipher engine does not support associated data")
	}
	return aeadEngine.OpenWithAAD(nonce, ciphertext, aad)
}

// collisionSafeName returns filename, or filename with " (1)", " (2)", …
// inserted before its extension, until a name that does not already exist
// in dir is found.
func collisionSafeName(dir, filename string) string {
	if _, err := os.Stat(filepath.Join(dir, filename)); err != nil {
		return filename
	}
	ext := filepath.Ext(filename)
	base := filename[:len(filename)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, i, ext)
		if _, err := os.Stat(filepath.Join(dir, candidate)); err != nil {
			return candidate
		}
	}
}
