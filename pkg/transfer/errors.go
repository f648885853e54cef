package transfer

import (
	"fmt"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

// ServerUnreachableError reports a failed connectivity preflight. No request
// was sent.
type ServerUnreachableError struct {
	Server string
	Err    error
}

func (e *ServerUnreachableError) Error() string {
	return fmt.Sprintf("unable to connect to the runtime download server '%s': %v", e.Server, e.Err)
}

func (e *ServerUnreachableError) Unwrap() error { return e.Err }

func (e *ServerUnreachableError) Kind() errors.Kind { return errors.KindServerUnreachable }

// Error reports a failed transfer after the preflight succeeded.
type Error struct {
	URL string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("failed to download runtime from %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Kind() errors.Kind { return errors.KindTransfer }

// ErrUnknownLength is wrapped when the server does not declare the payload
// size up front.
var ErrUnknownLength = errors.New("server did not report a content length")
