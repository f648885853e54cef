// Package descriptor loads runtime descriptors: per-target records of the
// runtime version to install, where to download it from, the expected
// SHA-512 digest of the download and its archive format.
//
// A descriptor file is a YAML mapping keyed by target identifier:
//
//	linux-x86_64:
//	  version: 8.0.5
//	  download: https://example.org/dotnet-runtime-8.0.5-linux-x64.tar.gz
//	  download-sha512: 5b0c…e1
//	  download-format: targz
//
// The digest key may also be spelled download-hash.
package descriptor

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

// DigestSize is the size in bytes of a SHA-512 digest.
const DigestSize = 64

// Digest is an expected SHA-512 digest.
type Digest [DigestSize]byte

// String returns the lowercase hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest decodes a hex-encoded SHA-512 digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return d, fmt.Errorf("invalid hex digest: %w", err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// ArchiveFormat is the packaging of a runtime download.
type ArchiveFormat int

const (
	FormatTarGz ArchiveFormat = iota + 1
	FormatZip
)

// String returns the descriptor-file spelling of the format.
func (f ArchiveFormat) String() string {
	switch f {
	case FormatTarGz:
		return "targz"
	case FormatZip:
		return "zip"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat parses the descriptor-file spelling of an archive format.
func ParseFormat(s string) (ArchiveFormat, error) {
	switch s {
	case "targz":
		return FormatTarGz, nil
	case "zip":
		return FormatZip, nil
	default:
		return 0, fmt.Errorf("unknown download format %q (want targz or zip)", s)
	}
}

// Descriptor describes one installable runtime. It is immutable once parsed.
type Descriptor struct {
	Version      string
	DownloadURL  string
	DownloadHash Digest
	Format       ArchiveFormat
}

// ParseError reports a missing, unreadable or malformed descriptor file.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse runtime descriptor file %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Kind() errors.Kind { return errors.KindDescriptorParse }

// UnsupportedTargetError reports that the descriptor file has no entry for
// the current target.
type UnsupportedTargetError struct {
	Target string
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("current runtime target %q is not supported", e.Target)
}

func (e *UnsupportedTargetError) Kind() errors.Kind { return errors.KindUnsupportedTarget }
