package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
	"github.com/runtimeboot/runtimeboot/pkg/progress"
)

const formatZip = "zip"

// maxSymlinkTarget bounds how much of a zip symlink entry is read as its
// target.
const maxSymlinkTarget = 4096

func (e *Extractor) extractZip(payload []byte, root *os.Root, sink progress.Sink) (Stats, error) {
	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return Stats{}, &DecompressionError{Format: formatZip, Err: err}
	}

	var stats Stats
	total := len(zr.File)
	for _, f := range zr.File {
		if err := e.extractZipEntry(f, root, len(payload), &stats); err != nil {
			return stats, err
		}

		stats.Entries++
		if err := step(sink, stats.Entries, total); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (e *Extractor) extractZipEntry(f *zip.File, root *os.Root, compressed int, stats *Stats) error {
	rel, err := e.sanitize(f.Name)
	if err != nil {
		return err
	}
	if rel == "" {
		return nil
	}

	mode := f.Mode()
	switch {
	case mode.IsDir() || strings.HasSuffix(f.Name, "/"):
		return mkdir(root, f.Name, rel)

	case mode&fs.ModeSymlink != 0:
		rc, err := f.Open()
		if err != nil {
			return &DecompressionError{Format: formatZip, Err: err}
		}
		defer rc.Close()
		linkTarget, err := io.ReadAll(io.LimitReader(rc, maxSymlinkTarget))
		if err != nil {
			return &DecompressionError{Format: formatZip, Err: err}
		}
		return e.symlink(root, f.Name, rel, string(linkTarget))
	}

	size := int64(f.UncompressedSize64)
	if err := e.checkFile(formatZip, rel, size, compressed); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return &DecompressionError{Format: formatZip, Err: err}
	}
	defer rc.Close()

	if err := writeFile(root, formatZip, rc, f.Name, rel, mode, size); err != nil {
		return err
	}
	stats.Bytes += size
	return nil
}
