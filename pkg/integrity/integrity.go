// Package integrity checks a downloaded runtime payload against the SHA-512
// digest declared by its descriptor.
package integrity

import (
	"crypto/sha512"
	"crypto/subtle"
	"fmt"
	"log/slog"

	"github.com/runtimeboot/runtimeboot/pkg/descriptor"
	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

// HashMismatchError reports a payload whose digest differs from the
// descriptor. It is never retried.
type HashMismatchError struct {
	Expected descriptor.Digest
	Actual   descriptor.Digest
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("mismatching runtime hash, the download may have been tampered with (expected %s, got %s)",
		e.Expected, e.Actual)
}

func (e *HashMismatchError) Kind() errors.Kind { return errors.KindHashMismatch }

// Sum returns the SHA-512 digest of payload.
func Sum(payload []byte) descriptor.Digest {
	return descriptor.Digest(sha512.Sum512(payload))
}

// Verify hashes the complete payload and compares it with expected in
// constant time.
func Verify(payload []byte, expected descriptor.Digest) error {
	actual := Sum(payload)
	if subtle.ConstantTimeCompare(actual[:], expected[:]) != 1 {
		slog.Error("integrity_mismatch", "expected", expected.String(), "actual", actual.String(), "bytes", len(payload))
		return &HashMismatchError{Expected: expected, Actual: actual}
	}

	slog.Info("integrity_verified", "sha512", actual.String(), "bytes", len(payload))
	return nil
}
