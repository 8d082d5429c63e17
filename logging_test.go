package vault

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerWritesOpField(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)
	logOp(logger, "keychain.init").Info().Msg("ready")

	out := buf.String()
	if !strings.Contains(out, "op=keychain.init") {
		t.Fatalf("logger output missing op field: %q", out)
	}
	if !strings.Contains(out, "ready") {
		t.Fatalf("logger output missing message: %q", out)
	}
}

func TestSetLoggerRedirectsPackageLogger(t *testing.T) {
	var buf bytes.Buffer
	original := packageLogger
	defer func() { packageLogger = original }()

	SetLogger(NewLogger(&buf))
	logOp(packageLogger, "shredder.shred").Info().Msg("shred complete")

	if !strings.Contains(buf.String(), "op=shredder.shred") {
		t.Fatalf("SetLogger did not redirect the package-wide logger: %q", buf.String())
	}
}

func TestKeychainInitLogsWithoutSecrets(t *testing.T) {
	var buf bytes.Buffer
	original := packageLogger
	defer func() { packageLogger = original }()
	SetLogger(NewLogger(&buf))

	withFastKDF(t)
	dir := t.TempDir()
	kc, err := NewKeychain(dir)
	if err != nil {
		t.Fatalf("NewKeychain: %v", err)
	}
	password := []byte("a secret password nobody should see logged")
	if _, _, err := kc.Init(password); err != nil {
		t.Fatalf("Init: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "op=keychain.init") {
		t.Fatalf("Init did not log through the package logger: %q", out)
	}
	if strings.Contains(out, string(password)) {
		t.Fatal("keychain logging leaked the password into the log output")
	}
}
