package descriptor

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // ProtonMail's maintained fork
)

// SignatureSuffixes are tried in order when looking for a detached signature
// next to a descriptor file.
var SignatureSuffixes = []string{".sig", ".asc"}

// FindSignature returns the first existing detached signature for the
// descriptor at path, or "" when there is none.
func FindSignature(path string) string {
	for _, suffix := range SignatureSuffixes {
		if _, err := os.Stat(path + suffix); err == nil {
			return path + suffix
		}
	}
	return ""
}

// verifySignature checks a detached OpenPGP signature over signed, the
// contents of the descriptor file at path, against an armored keyring.
// Armored and binary signatures are both accepted. Any failure is reported
// as a *ParseError.
func verifySignature(path string, signed []byte, sigPath, keyringPath string) error {
	fail := func(err error) error {
		slog.Error("descriptor_signature_invalid", "path", path, "signature", sigPath, "error", err)
		return &ParseError{Path: path, Err: err}
	}

	keyData, err := os.ReadFile(keyringPath)
	if err != nil {
		return fail(fmt.Errorf("read keyring: %w", err))
	}
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(keyData))
	if err != nil {
		return fail(fmt.Errorf("parse keyring: %w", err))
	}

	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return fail(fmt.Errorf("read signature: %w", err))
	}

	_, err = openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(signed), bytes.NewReader(sig), nil)
	if err != nil {
		_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(signed), bytes.NewReader(sig), nil)
	}
	if err != nil {
		return fail(fmt.Errorf("verify signature: %w", err))
	}

	slog.Info("descriptor_signature_verified", "path", path, "signature", sigPath)
	return nil
}
