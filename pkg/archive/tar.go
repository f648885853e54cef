package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"log/slog"
	"os"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
	"github.com/runtimeboot/runtimeboot/pkg/progress"
)

const formatTarGz = "targz"

func openTarGz(payload []byte) (*tar.Reader, io.Closer, error) {
	gz, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, &DecompressionError{Format: formatTarGz, Err: err}
	}
	return tar.NewReader(gz), gz, nil
}

// next advances tr. Insecure names are reported by the sanitizer, not here.
func next(tr *tar.Reader) (*tar.Header, error) {
	hdr, err := tr.Next()
	if errors.Is(err, tar.ErrInsecurePath) {
		return hdr, nil
	}
	return hdr, err
}

// countTarEntries decompresses the payload once to learn the entry count
// so progress can be reported as a fraction.
func countTarEntries(payload []byte) (int, error) {
	tr, closer, err := openTarGz(payload)
	if err != nil {
		return 0, err
	}
	defer closer.Close()

	count := 0
	for {
		_, err := next(tr)
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, &DecompressionError{Format: formatTarGz, Err: err}
		}
		count++
	}
}

func (e *Extractor) extractTarGz(payload []byte, root *os.Root, sink progress.Sink) (Stats, error) {
	total, err := countTarEntries(payload)
	if err != nil {
		return Stats{}, err
	}
	slog.Info("extract_tar_scanned", "entries", total)

	tr, closer, err := openTarGz(payload)
	if err != nil {
		return Stats{}, err
	}
	defer closer.Close()

	var stats Stats
	for {
		hdr, err := next(tr)
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, &DecompressionError{Format: formatTarGz, Err: err}
		}

		if err := e.extractTarEntry(tr, hdr, root, len(payload), &stats); err != nil {
			return stats, err
		}

		stats.Entries++
		if err := step(sink, stats.Entries, total); err != nil {
			return stats, err
		}
	}
}

func (e *Extractor) extractTarEntry(tr *tar.Reader, hdr *tar.Header, root *os.Root, compressed int, stats *Stats) error {
	rel, err := e.sanitize(hdr.Name)
	if err != nil {
		return err
	}
	if rel == "" {
		return nil
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return mkdir(root, hdr.Name, rel)

	case tar.TypeReg:
		if err := e.checkFile(formatTarGz, rel, hdr.Size, compressed); err != nil {
			return err
		}
		if err := writeFile(root, formatTarGz, tr, hdr.Name, rel, hdr.FileInfo().Mode(), hdr.Size); err != nil {
			return err
		}
		stats.Bytes += hdr.Size

	case tar.TypeSymlink:
		return e.symlink(root, hdr.Name, rel, hdr.Linkname)

	case tar.TypeLink:
		return e.hardlink(root, hdr.Name, rel, hdr.Linkname)

	default:
		slog.Warn("extract_entry_skipped", "entry", hdr.Name, "type", string(hdr.Typeflag))
	}
	return nil
}
