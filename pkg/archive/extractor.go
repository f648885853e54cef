// Package archive unpacks a verified runtime payload into an install
// directory. Every entry name goes through the security validator before
// anything is written.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/runtimeboot/runtimeboot/pkg/descriptor"
	"github.com/runtimeboot/runtimeboot/pkg/errors"
	"github.com/runtimeboot/runtimeboot/pkg/progress"
	"github.com/runtimeboot/runtimeboot/pkg/security"
)

// Stats summarizes a finished extraction.
type Stats struct {
	Entries int
	Bytes   int64
}

// Extractor unpacks tar.gz and zip payloads.
type Extractor struct {
	validator *security.Validator
}

// NewExtractor returns an extractor enforcing limits.
func NewExtractor(limits security.Limits) *Extractor {
	return &Extractor{validator: security.NewValidator(limits)}
}

// Extract unpacks payload into dest according to format. The sink receives
// "Unpacking archive: n/N" after every entry and is checked for cancellation
// right after; a cancelled extraction returns errors.ErrCancelled and leaves
// whatever was already written.
//
// All writes go through an os.Root opened on dest, and an entry whose parent
// directories include a symlink is rejected, so links planted by earlier
// entries cannot redirect later ones.
func (e *Extractor) Extract(format descriptor.ArchiveFormat, payload []byte, dest string, sink progress.Sink) (Stats, error) {
	if sink == nil {
		sink = progress.Noop{}
	}
	e.validator.Reset()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return Stats{}, &errors.IOError{Op: "create install directory", Path: dest, Err: err}
	}
	root, err := os.OpenRoot(dest)
	if err != nil {
		return Stats{}, &errors.IOError{Op: "open install directory", Path: dest, Err: err}
	}
	defer root.Close()

	slog.Info("extract_start", "format", format.String(), "dest", dest, "compressed_bytes", len(payload))

	var stats Stats
	switch format {
	case descriptor.FormatTarGz:
		stats, err = e.extractTarGz(payload, root, sink)
	case descriptor.FormatZip:
		stats, err = e.extractZip(payload, root, sink)
	default:
		return Stats{}, &DecompressionError{Format: format.String(), Err: fmt.Errorf("unsupported archive format")}
	}
	if err != nil {
		if !errors.IsCancelled(err) {
			slog.Error("extract_failed", "format", format.String(), "dest", dest, "entries", stats.Entries, "error", err)
		}
		return stats, err
	}

	slog.Info("extract_complete", "format", format.String(), "dest", dest, "entries", stats.Entries, "bytes", stats.Bytes)
	return stats, nil
}

// step reports progress for entry n of total and checks for cancellation.
func step(sink progress.Sink, n, total int) error {
	fraction := 1.0
	if total > 0 {
		fraction = float64(n) / float64(total)
	}
	sink.ReportProgress(fmt.Sprintf("Unpacking archive: %d/%d", n, total), fraction)
	if sink.IsCancelled() {
		slog.Info("extract_cancelled", "entries", n, "total", total)
		return errors.ErrCancelled
	}
	return nil
}

// sanitize turns an entry name into a slash-separated path relative to the
// root. rel is "" for the archive root.
func (e *Extractor) sanitize(name string) (string, error) {
	rel, err := e.validator.SanitizePath(name)
	if err != nil {
		return "", &PathTraversalError{Entry: name, Err: err}
	}
	return rel, nil
}

// checkParents rejects rel when an existing parent directory under root is
// a symlink.
func checkParents(root *os.Root, entry, rel string) error {
	dir := path.Dir(rel)
	if dir == "." {
		return nil
	}
	parts := strings.Split(dir, "/")
	for i := range parts {
		parent := filepath.FromSlash(strings.Join(parts[:i+1], "/"))
		fi, err := root.Lstat(parent)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return &errors.IOError{Op: "inspect directory", Path: parent, Err: err}
		}
		if fi.Mode()&fs.ModeSymlink != 0 {
			slog.Error("extract_symlinked_parent", "entry", entry, "parent", parent)
			return &PathTraversalError{Entry: entry, Err: fmt.Errorf("%w: parent %s is a symlink", security.ErrPathTraversal, parent)}
		}
		if !fi.IsDir() {
			return nil
		}
	}
	return nil
}

// prepare makes the parent directories of rel and removes any non-directory
// already at rel, so a new entry never writes through an old link.
func prepare(root *os.Root, entry, rel string) error {
	if err := checkParents(root, entry, rel); err != nil {
		return err
	}
	target := filepath.FromSlash(rel)
	if dir := filepath.Dir(target); dir != "." {
		if err := root.MkdirAll(dir, 0755); err != nil {
			return &errors.IOError{Op: "create directory", Path: dir, Err: err}
		}
	}
	fi, err := root.Lstat(target)
	switch {
	case os.IsNotExist(err):
		return nil
	case err != nil:
		return &errors.IOError{Op: "inspect entry", Path: target, Err: err}
	case fi.IsDir():
		return nil
	}
	if err := root.Remove(target); err != nil {
		return &errors.IOError{Op: "replace entry", Path: target, Err: err}
	}
	return nil
}

func mkdir(root *os.Root, entry, rel string) error {
	if err := checkParents(root, entry, rel); err != nil {
		return err
	}
	target := filepath.FromSlash(rel)
	if err := root.MkdirAll(target, 0755); err != nil {
		return &errors.IOError{Op: "create directory", Path: target, Err: err}
	}
	return nil
}

// limit maps validator limit errors onto the archive taxonomy.
func limit(format string, err error) error {
	if err == nil {
		return nil
	}
	return &DecompressionError{Format: format, Err: err}
}

func (e *Extractor) checkFile(format, name string, size int64, compressed int) error {
	if err := e.validator.ValidateFileSize(name, size); err != nil {
		return limit(format, err)
	}
	if err := e.validator.AddExtractedSize(size); err != nil {
		return limit(format, err)
	}
	return limit(format, e.validator.ValidateCompressionRatio(int64(compressed), e.validator.TotalSize()))
}

func (e *Extractor) symlink(root *os.Root, entry, rel, linkTarget string) error {
	if err := e.validator.ValidateSymlink(rel, linkTarget); err != nil {
		return &PathTraversalError{Entry: entry, Err: err}
	}
	if err := prepare(root, entry, rel); err != nil {
		return err
	}
	target := filepath.FromSlash(rel)
	if err := root.Symlink(filepath.FromSlash(linkTarget), target); err != nil {
		return &errors.IOError{Op: "create symlink", Path: target, Err: err}
	}
	return nil
}

func (e *Extractor) hardlink(root *os.Root, entry, rel, linkName string) error {
	linkRel, err := e.sanitize(linkName)
	if err != nil {
		return err
	}
	if linkRel == "" {
		return &PathTraversalError{Entry: entry, Err: errors.New("hard link to archive root")}
	}
	if err := checkParents(root, entry, linkRel); err != nil {
		return err
	}
	if err := prepare(root, entry, rel); err != nil {
		return err
	}
	target := filepath.FromSlash(rel)
	if err := root.Link(filepath.FromSlash(linkRel), target); err != nil {
		return &errors.IOError{Op: "create hard link", Path: target, Err: err}
	}
	return nil
}

// writeFile streams exactly size bytes from r into rel under root. A stream
// that yields more or fewer bytes than its header declared is corrupt.
func writeFile(root *os.Root, format string, r io.Reader, entry, rel string, mode fs.FileMode, size int64) error {
	if err := prepare(root, entry, rel); err != nil {
		return err
	}
	target := filepath.FromSlash(rel)

	out, err := root.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fileMode(mode))
	if err != nil {
		return &errors.IOError{Op: "create file", Path: target, Err: err}
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(r, size+1))
	if err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return &errors.IOError{Op: "write file", Path: target, Err: err}
		}
		return &DecompressionError{Format: format, Err: fmt.Errorf("read %s: %w", target, err)}
	}
	if n != size {
		return &DecompressionError{Format: format, Err: fmt.Errorf("entry %s: header declares %d bytes, stream has %d", target, size, n)}
	}
	if err := out.Close(); err != nil {
		return &errors.IOError{Op: "close file", Path: target, Err: err}
	}
	return nil
}

// fileMode keeps the permission bits of an entry and guarantees the owner
// can read and write the extracted file.
func fileMode(mode fs.FileMode) fs.FileMode {
	return mode.Perm() | 0600
}
