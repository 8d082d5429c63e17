package vault

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// encodeV5Header serializes a v5Header in the same length-prefixed,
// fixed-field-order style as the V4 envelope body.
func encodeV5Header(h v5Header) []byte {
	var buf bytes.Buffer

	buf.Write(h.ValidationNonce)
	writeLenPrefixed(&buf, h.EncryptedValidationTag)
	buf.Write(h.KeyWrappingNonce)
	writeLenPrefixed(&buf, h.EncryptedFileKey)

	if h.UsesKeyfile {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	var chunkSizeBuf [4]byte
	binary.LittleEndian.PutUint32(chunkSizeBuf[:], h.ChunkSize)
	buf.Write(chunkSizeBuf[:])

	buf.Write(h.StreamSalt)
	writeLenPrefixed(&buf, []byte(h.Filename))

	if h.HasOriginalLength {
		buf.WriteByte(1)
		var lenBuf [8]byte
		binary.LittleEndian.PutUint64(lenBuf[:], h.OriginalLength)
		buf.Write(lenBuf[:])
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

func decodeV5Header(data []byte) (v5Header, error) {
	r := bytes.NewReader(data)
	h := v5Header{}

	var err error
	if h.ValidationNonce, err = readFixed(r, NonceSize); err != nil {
		return h, wrapV5HeaderErr("validation_nonce", err)
	}
	if h.EncryptedValidationTag, err = readLenPrefixedFrom(r); err != nil {
		return h, wrapV5HeaderErr("encrypted_validation_tag", err)
	}
	if h.KeyWrappingNonce, err = readFixed(r, NonceSize); err != nil {
		return h, wrapV5HeaderErr("key_wrapping_nonce", err)
	}
	if h.EncryptedFileKey, err = readLenPrefixedFrom(r); err != nil {
		return h, wrapV5HeaderErr("encrypted_file_key", err)
	}

	usesKeyfile, err := readByte(r)
	if err != nil {
		return h, wrapV5HeaderErr("uses_keyfile", err)
	}
	h.UsesKeyfile = usesKeyfile != 0

	chunkSizeBuf, err := readFixed(r, 4)
	if err != nil {
		return h, wrapV5HeaderErr("chunk_size", err)
	}
	h.ChunkSize = binary.LittleEndian.Uint32(chunkSizeBuf)

	if h.StreamSalt, err = readFixed(r, 8); err != nil {
		return h, wrapV5HeaderErr("stream_salt", err)
	}

	filename, err := readLenPrefixedFrom(r)
	if err != nil {
		return h, wrapV5HeaderErr("filename", err)
	}
	h.Filename = string(filename)

	hasLength, err := readByte(r)
	if err != nil {
		return h, wrapV5HeaderErr("original_length presence", err)
	}
	if hasLength != 0 {
		lenBuf, err := readFixed(r, 8)
		if err != nil {
			return h, wrapV5HeaderErr("original_length", err)
		}
		h.OriginalLength = binary.LittleEndian.Uint64(lenBuf)
		h.HasOriginalLength = true
	}

	if r.Len() != 0 {
		return h, NewError(ErrIntegrityFailure, "envelope_v5.read", fmt.Errorf("%d trailing bytes in header", r.Len()))
	}

	return h, nil
}

func wrapV5HeaderErr(field string, err error) error {
	if err == io.EOF {
		err = fmt.Errorf("unexpected end of header")
	}
	return NewError(ErrIntegrityFailure, "envelope_v5.read", fmt.Errorf("failed to read %s: %w", field, err))
}
