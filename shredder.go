package vault

import (
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// shredBufferSize is the overwrite chunk size, matching the 16 MiB buffer
// the original desktop shredder used.
const shredBufferSize = 16 * 1024 * 1024

// Shred destroys path. Directories are descended depth-first: every entry
// is shredded before the directory itself is removed. Regular files on
// ShredTargetDesktop are overwritten in place with OS-random bytes before
// being renamed to a throwaway UUID and unlinked, so that any directory
// entry recovered from a crash dump or journal never names the original
// file. ShredTargetFlash skips the overwrite entirely: wear leveling on
// flash media makes an in-place overwrite meaningless, so only a plain
// unlink is performed.
func Shred(path string, target ShredTargetClass, progress ProgressFunc) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return NewError(ErrIOFailure, "shredder.shred", err)
	}

	var shredErr error
	if info.IsDir() {
		shredErr = shredDir(path, target, progress)
	} else {
		shredErr = shredFile(path, info.Size(), target, progress)
	}

	logger := logOp(packageLogger, "shredder.shred")
	if shredErr != nil {
		logger.Warn().Err(shredErr).Str("path", path).Msg("shred failed")
	} else {
		logger.Info().Str("path", path).Bool("dir", info.IsDir()).Msg("shred complete")
	}
	return shredErr
}

func shredDir(path string, target ShredTargetClass, progress ProgressFunc) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return NewError(ErrIOFailure, "shredder.shred_dir", err)
	}

	for _, entry := range entries {
		childPath := filepath.Join(path, entry.Name())
		if entry.IsDir() {
			if err := shredDir(childPath, target, progress); err != nil {
				return err
			}
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return NewError(ErrIOFailure, "shredder.shred_dir", err)
		}
		if err := shredFile(childPath, info.Size(), target, progress); err != nil {
			return err
		}
	}

	if err := os.Remove(path); err != nil {
		return NewError(ErrIOFailure, "shredder.shred_dir", err)
	}
	return nil
}

func shredFile(path string, size int64, target ShredTargetClass, progress ProgressFunc) error {
	if target == ShredTargetFlash {
		if err := os.Remove(path); err != nil {
			return NewError(ErrIOFailure, "shredder.unlink", err)
		}
		return nil
	}

	if size > 0 {
		if err := overwriteFile(path, size, progress); err != nil {
			return err
		}
	}

	return unlinkShredded(path)
}

// overwriteFile fills path end to end with OS-random bytes, in
// shredBufferSize chunks, fsyncing before returning so the overwrite
// cannot be lost to a write-back cache.
func overwriteFile(path string, size int64, progress ProgressFunc) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return NewError(ErrIOFailure, "shredder.overwrite", err)
	}
	defer f.Close()

	buf := make([]byte, shredBufferSize)
	var written int64
	lastBoundary := -1

	for written < size {
		chunkLen := int64(len(buf))
		if remaining := size - written; remaining < chunkLen {
			chunkLen = remaining
		}
		chunk := buf[:chunkLen]
		if _, err := io.ReadFull(osRandomReader{}, chunk); err != nil {
			return NewError(ErrIOFailure, "shredder.overwrite", err)
		}
		if _, err := f.Write(chunk); err != nil {
			return NewError(ErrIOFailure, "shredder.overwrite", err)
		}
		written += chunkLen

		if progress != nil {
			boundary := int(written * 100 / size / 5)
			if boundary != lastBoundary {
				lastBoundary = boundary
				progress(written, size)
			}
		}
	}

	if err := f.Sync(); err != nil {
		return NewError(ErrIOFailure, "shredder.overwrite", err)
	}
	return nil
}

// osRandomReader adapts OSRandom (a RandomSource) to io.Reader for use
// with io.ReadFull.
type osRandomReader struct{}

func (osRandomReader) Read(p []byte) (int, error) {
	b, err := randomBytes(OSRandom, len(p))
	if err != nil {
		return 0, err
	}
	copy(p, b)
	return len(p), nil
}

// unlinkShredded renames path to a fresh UUID in the same directory before
// unlinking, so the directory entry no longer carries the original name.
// If the rename fails (e.g. a restrictive filesystem), it falls back to
// unlinking the original path directly.
func unlinkShredded(path string) error {
	dir := filepath.Dir(path)
	shredName := filepath.Join(dir, uuid.New().String())

	if err := os.Rename(path, shredName); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			return NewError(ErrIOFailure, "shredder.unlink", rmErr)
		}
		return nil
	}

	if err := os.Remove(shredName); err != nil {
		return NewError(ErrIOFailure, "shredder.unlink", err)
	}
	return nil
}
