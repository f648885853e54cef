package archive

import (
	"fmt"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

// PathTraversalError reports an entry whose name or link target would land
// outside the destination. Nothing is written for that entry.
type PathTraversalError struct {
	Entry string
	Err   error
}

func (e *PathTraversalError) Error() string {
	return fmt.Sprintf("archive entry %q escapes the install directory: %v", e.Entry, e.Err)
}

func (e *PathTraversalError) Unwrap() error { return e.Err }

func (e *PathTraversalError) Kind() errors.Kind { return errors.KindPathTraversal }

// DecompressionError reports a corrupt archive stream or an archive that
// breaks the extraction limits.
type DecompressionError struct {
	Format string
	Err    error
}

func (e *DecompressionError) Error() string {
	return fmt.Sprintf("failed to decompress %s archive: %v", e.Format, e.Err)
}

func (e *DecompressionError) Unwrap() error { return e.Err }

func (e *DecompressionError) Kind() errors.Kind { return errors.KindDecompression }
