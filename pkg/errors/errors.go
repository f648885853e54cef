// Package errors provides error wrapping utilities and the failure taxonomy
// shared by every stage of the runtime setup pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies a pipeline failure so callers can branch on it without
// parsing messages.
type Kind int

const (
	// KindUnknown is reported for errors that carry no classification.
	KindUnknown Kind = iota
	KindDescriptorParse
	KindUnsupportedTarget
	KindServerUnreachable
	KindTransfer
	KindHashMismatch
	KindPathTraversal
	KindDecompression
	KindIO
	KindHosting
	// KindCancelled marks a user opt-out. It is not a failure.
	KindCancelled
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindDescriptorParse:   "descriptor_parse",
	KindUnsupportedTarget: "unsupported_target",
	KindServerUnreachable: "server_unreachable",
	KindTransfer:          "transfer",
	KindHashMismatch:      "hash_mismatch",
	KindPathTraversal:     "path_traversal",
	KindDecompression:     "decompression",
	KindIO:                "io",
	KindHosting:           "hosting",
	KindCancelled:         "cancelled",
}

// String returns the snake_case name used in logs and the install history.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Classified is implemented by every typed pipeline error.
type Classified interface {
	error
	Kind() Kind
}

// ErrCancelled is returned by the transfer engine and the extractors when the
// progress sink reports that the user cancelled.
var ErrCancelled = &cancelledError{}

type cancelledError struct{}

func (*cancelledError) Error() string { return "operation cancelled by user" }
func (*cancelledError) Kind() Kind    { return KindCancelled }

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var c Classified
	if stderrors.As(err, &c) {
		return c.Kind()
	}
	return KindUnknown
}

// IsCancelled reports whether err is (or wraps) a cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

// Wrap wraps an error with additional context information.
// If err is nil, it returns nil without wrapping.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Is and As re-export the standard library helpers so callers importing this
// package under the name errors keep access to them.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// New re-exports errors.New.
func New(text string) error { return stderrors.New(text) }

// IOError reports a filesystem failure while preparing or finalizing an
// install directory.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Kind() Kind { return KindIO }
