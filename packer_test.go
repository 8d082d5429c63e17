package vault

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func buildTestTree(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "project")

	mustWrite := func(rel string, data []byte) {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	mustWrite("readme.txt", []byte("hello project"))
	mustWrite("src/main.go", []byte("package main"))
	mustWrite("src/lib/util.go", []byte("package lib"))

	if err := os.MkdirAll(filepath.Join(root, "empty-dir"), 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	return root
}

func TestPackAndUnpackDirectoryRoundTrip(t *testing.T) {
	root := buildTestTree(t)

	var buf bytes.Buffer
	if err := PackDirectory(root, &buf); err != nil {
		t.Fatalf("PackDirectory: %v", err)
	}

	destRoot := filepath.Join(t.TempDir(), "restored")
	if err := os.MkdirAll(destRoot, 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := UnpackDirectory(&buf, destRoot); err != nil {
		t.Fatalf("UnpackDirectory: %v", err)
	}

	projectName := filepath.Base(root)
	check := func(rel string, want []byte) {
		got, err := os.ReadFile(filepath.Join(destRoot, projectName, rel))
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", rel, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("content mismatch for %s: got %q want %q", rel, got, want)
		}
	}
	check("readme.txt", []byte("hello project"))
	check("src/main.go", []byte("package main"))
	check("src/lib/util.go", []byte("package lib"))

	if info, err := os.Stat(filepath.Join(destRoot, projectName, "empty-dir")); err != nil || !info.IsDir() {
		t.Fatalf("empty-dir was not recreated: %v", err)
	}
}

func TestPackDirectoryToTempFileCleansUp(t *testing.T) {
	root := buildTestTree(t)
	parent := filepath.Dir(root)

	path, cleanup, err := PackDirectoryToTempFile(root)
	if err != nil {
		t.Fatalf("PackDirectoryToTempFile: %v", err)
	}
	if filepath.Dir(path) != parent {
		t.Fatalf("temp file %s is not in the source's parent directory %s", path, parent)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("temp archive missing before cleanup: %v", err)
	}

	cleanup()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("temp archive still present after cleanup")
	}
}

func TestPackAndUnpackFullyEmptyRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "empty-project")
	if err := os.MkdirAll(root, 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	var buf bytes.Buffer
	if err := PackDirectory(root, &buf); err != nil {
		t.Fatalf("PackDirectory: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("packing a fully empty root produced an empty stream, recreating nothing on unpack")
	}

	destRoot := filepath.Join(t.TempDir(), "restored")
	if err := os.MkdirAll(destRoot, 0o700); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := UnpackDirectory(&buf, destRoot); err != nil {
		t.Fatalf("UnpackDirectory: %v", err)
	}

	projectName := filepath.Base(root)
	info, err := os.Stat(filepath.Join(destRoot, projectName))
	if err != nil {
		t.Fatalf("fully empty root was not recreated: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("recreated root entry is not a directory")
	}
}

func TestPackDirectoryUsesForwardSlashes(t *testing.T) {
	root := buildTestTree(t)

	var buf bytes.Buffer
	if err := PackDirectory(root, &buf); err != nil {
		t.Fatalf("PackDirectory: %v", err)
	}

	if bytes.Contains(buf.Bytes(), []byte(`\`)) {
		t.Fatal("packed stream contains a backslash path separator")
	}
}
