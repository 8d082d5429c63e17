package vault

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the package's zerolog.Logger, writing human-readable
// output to w (pass os.Stdout for a console, any io.Writer for tests).
// Secrets never pass through here: callers must never log a master key,
// password, recovery code, or derived wrapping/file key. Log call sites in
// this package attach operation names, vault IDs, filenames or paths, and
// byte/chunk counts, never key material.
func NewLogger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(console).With().Timestamp().Logger()
}

// logOp returns a sub-logger tagged with the calling operation's name, the
// same "op" naming used by NewError throughout this package.
func logOp(logger zerolog.Logger, op string) zerolog.Logger {
	return logger.With().Str("op", op).Logger()
}

// packageLogger is the process-wide sink for the keychain, envelope, and
// shredder operations below. It defaults to stderr and can be redirected
// with SetLogger, e.g. into a file or a test buffer.
var packageLogger = NewLogger(os.Stderr)

// SetLogger replaces the package-wide logger used by Keychain, EncryptV4/
// DecryptV4, EncryptV5/DecryptV5, and Shred.
func SetLogger(logger zerolog.Logger) {
	packageLogger = logger
}
