package vault

import "fmt"

// GenerateRecoveryCode produces a code of the form QRE-XXXX-XXXX-XXXX-XXXX,
// where each group is four uppercase hex digits drawn from an independent
// 16-bit sample of src. The format matches the one the desktop build has
// always issued, so existing recovery codes keep working against a
// Keychain built by this package.
func GenerateRecoveryCode(src RandomSource) (string, error) {
	groups := make([]string, 4)
	for i := range groups {
		b, err := randomBytes(src, 2)
		if err != nil {
			return "", NewError(ErrIOFailure, "recovery.generate", err)
		}
		groups[i] = fmt.Sprintf("%02X%02X", b[0], b[1])
	}
	return fmt.Sprintf("%s%s-%s-%s-%s", RecoveryCodePrefix, groups[0], groups[1], groups[2], groups[3]), nil
}
