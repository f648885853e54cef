// Package security sanitizes archive entry names and enforces the extraction
// limits that guard an install directory.
package security

import (
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

var (
	// ErrPathTraversal is wrapped by every rejection of an entry name or
	// symlink target that would land outside the destination.
	ErrPathTraversal = errors.New("security: path escapes destination")
	// ErrLimitExceeded is wrapped by every size or ratio violation.
	ErrLimitExceeded = errors.New("security: extraction limit exceeded")
)

// Limits bounds what a single extraction may write.
type Limits struct {
	MaxFileSize         int64
	MaxTotalSize        int64
	MaxCompressionRatio float64
}

// DefaultLimits fit a full managed runtime with room to spare.
var DefaultLimits = Limits{
	MaxFileSize:         512 * 1024 * 1024,
	MaxTotalSize:        4 * 1024 * 1024 * 1024,
	MaxCompressionRatio: 100.0,
}

// Validator checks archive entries before they reach disk. A Validator
// tracks the running total of one extraction; call Reset between runs.
type Validator struct {
	limits Limits

	mu        sync.Mutex
	totalSize int64
}

// NewValidator creates a validator enforcing limits.
func NewValidator(limits Limits) *Validator {
	slog.Debug("security_validator_init",
		"max_file_size_mb", limits.MaxFileSize/1024/1024,
		"max_total_size_mb", limits.MaxTotalSize/1024/1024,
		"max_compression_ratio", limits.MaxCompressionRatio)

	return &Validator{limits: limits}
}

// SanitizePath turns an archive entry name into a clean slash-separated path
// relative to the destination. Absolute, drive-qualified and UNC names and
// any ".." component are rejected. Both '/' and '\' count as separators so a
// Windows-authored archive cannot smuggle a traversal past a Unix check.
// The archive root itself ("", ".", "./") sanitizes to "".
func (v *Validator) SanitizePath(name string) (string, error) {
	reject := func(reason string) (string, error) {
		slog.Error("security_path_validation_failed", "path", name, "reason", reason)
		return "", fmt.Errorf("%w: %q (%s)", ErrPathTraversal, name, reason)
	}

	if strings.ContainsRune(name, 0) {
		return reject("nul_byte")
	}

	normalized := strings.ReplaceAll(name, `\`, "/")
	switch {
	case strings.HasPrefix(normalized, "//"):
		return reject("unc_path")
	case strings.HasPrefix(normalized, "/"):
		return reject("absolute_path")
	case hasDrivePrefix(normalized):
		return reject("drive_qualified")
	}

	var parts []string
	for _, part := range strings.Split(normalized, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			return reject("path_traversal")
		}
		parts = append(parts, part)
	}
	return path.Join(parts...), nil
}

func hasDrivePrefix(p string) bool {
	if len(p) < 2 || p[1] != ':' {
		return false
	}
	c := p[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// ValidateSymlink checks that a symlink at linkPath (sanitized, relative to
// the destination) pointing at target stays inside the destination.
// Absolute targets always escape.
func (v *Validator) ValidateSymlink(linkPath, target string) error {
	normalized := strings.ReplaceAll(target, `\`, "/")
	if normalized == "" || strings.HasPrefix(normalized, "/") || hasDrivePrefix(normalized) {
		slog.Error("security_symlink_validation_failed", "symlink", linkPath, "target", target, "reason", "absolute_target")
		return fmt.Errorf("%w: symlink %s -> %s", ErrPathTraversal, linkPath, target)
	}

	depth := strings.Count(path.Dir(linkPath), "/") + 1
	if path.Dir(linkPath) == "." {
		depth = 0
	}
	for _, part := range strings.Split(normalized, "/") {
		switch part {
		case "", ".":
		case "..":
			depth--
		default:
			depth++
		}
		if depth < 0 {
			slog.Error("security_symlink_validation_failed", "symlink", linkPath, "target", target, "reason", "path_traversal")
			return fmt.Errorf("%w: symlink %s -> %s", ErrPathTraversal, linkPath, target)
		}
	}

	slog.Debug("security_symlink_validated", "symlink", linkPath, "target", target)
	return nil
}

// ValidateFileSize checks a single entry against the per-file limit.
func (v *Validator) ValidateFileSize(name string, size int64) error {
	if size > v.limits.MaxFileSize {
		slog.Error("security_file_size_exceeded",
			"path", name,
			"file_size_mb", size/1024/1024,
			"max_file_size_mb", v.limits.MaxFileSize/1024/1024)
		return fmt.Errorf("%w: %s is %d bytes, max %d", ErrLimitExceeded, name, size, v.limits.MaxFileSize)
	}
	return nil
}

// AddExtractedSize adds size to the running total and checks the total limit.
func (v *Validator) AddExtractedSize(size int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.totalSize += size
	if v.totalSize > v.limits.MaxTotalSize {
		slog.Error("security_total_size_exceeded",
			"current_total_mb", v.totalSize/1024/1024,
			"max_total_mb", v.limits.MaxTotalSize/1024/1024)
		return fmt.Errorf("%w: total extracted size %d exceeds max %d", ErrLimitExceeded, v.totalSize, v.limits.MaxTotalSize)
	}
	return nil
}

// ValidateCompressionRatio rejects archives that expand far beyond their
// compressed size.
func (v *Validator) ValidateCompressionRatio(compressedSize, uncompressedSize int64) error {
	if compressedSize <= 0 {
		return fmt.Errorf("%w: compressed size must be positive", ErrLimitExceeded)
	}

	ratio := float64(uncompressedSize) / float64(compressedSize)
	if ratio > v.limits.MaxCompressionRatio {
		slog.Error("security_compression_bomb_detected",
			"ratio", ratio,
			"max_ratio", v.limits.MaxCompressionRatio,
			"compressed_bytes", compressedSize,
			"uncompressed_bytes", uncompressedSize)
		return fmt.Errorf("%w: compression ratio %.2f exceeds max %.2f", ErrLimitExceeded, ratio, v.limits.MaxCompressionRatio)
	}
	return nil
}

// Reset clears the running total.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.totalSize = 0
}

// TotalSize returns the running total of extracted bytes.
func (v *Validator) TotalSize() int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalSize
}
