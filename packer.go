package vault

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// packerEntryFile and packerEntryDir tag the two kinds of entry a packed
// archive can hold. Directory entries exist purely to preserve empty
// directories; everything else is implied by the file entries' paths.
const (
	packerEntryFile byte = 0
	packerEntryDir  byte = 1
)

// PackDirectory walks root depth-first and writes a single deterministic
// stream to w: one entry per file or empty directory, each a
// {type byte, POSIX relative path (len-prefixed), [file size u64 LE,
// content]}. Entry names are relative to root's parent, matching how the
// original zip-based packer named its members, and always use forward
// slashes regardless of host OS. File content is stored uncompressed: the
// outer V5 envelope's chunk compressor is the one that actually shrinks
// the bytes on the wire.
func PackDirectory(root string, w io.Writer) error {
	parent := filepath.Dir(root)

	var walk func(dir string) error
	walk = func(dir string) error {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return NewError(ErrIOFailure, "packer.pack", err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		if len(entries) == 0 {
			// An empty directory, including a wholly empty root, has no
			// file entry to imply it on unpack, so it needs one of its own.
			return writeDirEntry(w, parent, dir)
		}

		for _, entry := range entries {
			childPath := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				if err := walk(childPath); err != nil {
					return err
				}
				continue
			}
			if err := writeFileEntry(w, parent, childPath); err != nil {
				return err
			}
		}
		return nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return NewError(ErrIOFailure, "packer.pack", err)
	}
	if !info.IsDir() {
		return NewError(ErrIOFailure, "packer.pack", fmt.Errorf("%s is not a directory", root))
	}

	return walk(root)
}

func relativeEntryName(parent, path string) string {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		rel = path
	}
	return strings.ReplaceAll(rel, "\\", "/")
}

func writeDirEntry(w io.Writer, parent, path string) error {
	if _, err := w.Write([]byte{packerEntryDir}); err != nil {
		return NewError(ErrIOFailure, "packer.pack", err)
	}
	return writeEntryName(w, relativeEntryName(parent, path))
}

func writeFileEntry(w io.Writer, parent, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return NewError(ErrIOFailure, "packer.pack", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return NewError(ErrIOFailure, "packer.pack", err)
	}

	if _, err := w.Write([]byte{packerEntryFile}); err != nil {
		return NewError(ErrIOFailure, "packer.pack", err)
	}
	if err := writeEntryName(w, relativeEntryName(parent, path)); err != nil {
		return err
	}

	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], uint64(info.Size()))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return NewError(ErrIOFailure, "packer.pack", err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return NewError(ErrIOFailure, "packer.pack", err)
	}
	return nil
}

func writeEntryName(w io.Writer, name string) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(name)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return NewError(ErrIOFailure, "packer.pack", err)
	}
	if _, err := w.Write([]byte(name)); err != nil {
		return NewError(ErrIOFailure, "packer.pack", err)
	}
	return nil
}

// PackDirectoryToTempFile packs root into a temporary file created in
// root's parent directory, so the temp file lands on the same
// filesystem volume as the source (avoiding a cross-volume copy, and
// keeping any later rename atomic). The caller is responsible for
// encrypting the returned file and must call the returned cleanup func
// exactly once, whether encryption succeeds or fails, so the plaintext
// archive never lingers on disk.
func PackDirectoryToTempFile(root string) (path string, cleanup func(), err error) {
	parent := filepath.Dir(root)
	f, err := os.CreateTemp(parent, ".qrevault-pack-*.tmp")
	if err != nil {
		return "", nil, NewError(ErrIOFailure, "packer.pack_to_temp", err)
	}
	tmpPath := f.Name()
	cleanup = func() { os.Remove(tmpPath) }

	if err := PackDirectory(root, f); err != nil {
		f.Close()
		cleanup()
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, NewError(ErrIOFailure, "packer.pack_to_temp", err)
	}

	return tmpPath, cleanup, nil
}

// UnpackDirectory reads a stream produced by PackDirectory and recreates
// its entries under destRoot, which must already exist.
func UnpackDirectory(r io.Reader, destRoot string) error {
	for {
		var kind [1]byte
		if _, err := io.ReadFull(r, kind[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return NewError(ErrIntegrityFailure, "packer.unpack", err)
		}

		name, err := readEntryName(r)
		if err != nil {
			return err
		}
		targetPath := filepath.Join(destRoot, filepath.FromSlash(name))

		switch kind[0] {
		case packerEntryDir:
			if err := os.MkdirAll(targetPath, 0700); err != nil {
				return NewError(ErrIOFailure, "packer.unpack", err)
			}
		case packerEntryFile:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0700); err != nil {
				return NewError(ErrIOFailure, "packer.unpack", err)
			}
			if err := unpackFileEntry(r, targetPath); err != nil {
				return err
			}
		default:
			return NewError(ErrIntegrityFailure, "packer.unpack", fmt.Errorf("unknown entry type %d", kind[0]))
		}
	}
}

func unpackFileEntry(r io.Reader, targetPath string) error {
	var sizeBuf [8]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return NewError(ErrIntegrityFailure, "packer.unpack", err)
	}
	size := binary.LittleEndian.Uint64(sizeBuf[:])

	f, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return NewError(ErrIOFailure, "packer.unpack", err)
	}
	defer f.Close()

	if _, err := io.CopyN(f, r, int64(size)); err != nil {
		return NewError(ErrIntegrityFailure, "packer.unpack", err)
	}
	return nil
}

func readEntryName(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", NewError(ErrIntegrityFailure, "packer.unpack", err)
	}
	nameLen := binary.LittleEndian.Uint32(lenBuf[:])
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return "", NewError(ErrIntegrityFailure, "packer.unpack", err)
	}
	return string(nameBuf), nil
}
