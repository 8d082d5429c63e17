package vault

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// alreadyCompressedExtensions lists extensions whose content is already
// compressed (images, archives, AV media), so CompressionAuto skips
// spending CPU on data that will not shrink further.
var alreadyCompressedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".zip": true, ".7z": true, ".rar": true, ".gz": true, ".bz2": true, ".xz": true,
	".mp4": true, ".mkv": true, ".mov": true, ".avi": true, ".webm": true,
	".mp3": true, ".aac": true, ".flac": true, ".wav": true, ".pdf": true,
}

// zstdLevelFor resolves a CompressionMode (and, for auto mode, a filename)
// to the concrete zstd compression level to use.
func zstdLevelFor(mode CompressionMode, filename string) zstd.EncoderLevel {
	switch mode {
	case CompressionStore:
		return zstd.SpeedFastest
	case CompressionExtreme:
		return zstd.SpeedBestCompression
	case CompressionAuto:
		ext := strings.ToLower(filepath.Ext(filename))
		if alreadyCompressedExtensions[ext] {
			return zstd.SpeedFastest
		}
		return zstd.SpeedDefault
	default:
		return zstd.SpeedDefault
	}
}

// compressBytes compresses data in one shot, for the whole-payload V4
// envelope.
func compressBytes(data []byte, mode CompressionMode, filename string) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevelFor(mode, filename)))
	if err != nil {
		return nil, NewError(ErrIOFailure, "compression.compress", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// decompressBytes reverses compressBytes.
func decompressBytes(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, NewError(ErrIOFailure, "compression.decompress", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, NewError(ErrIntegrityFailure, "compression.decompress", fmt.Errorf("corrupted compressed payload: %w", err))
	}
	return out, nil
}

// compressChunk compresses one chunk of plaintext independently, so each
// chunk is a self-contained zstd frame that can be decompressed on its own
// as chunks stream in, under bounded memory.
func compressChunk(data []byte, level zstd.EncoderLevel) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, NewError(ErrIOFailure, "compression.compress_chunk", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

// decompressChunk reverses compressChunk.
func decompressChunk(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, NewError(ErrIOFailure, "compression.decompress_chunk", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, NewError(ErrChunkAuthFailure, "compression.decompress_chunk", fmt.Errorf("corrupted chunk payload: %w", err))
	}
	return out, nil
}
