package setup

import (
	"fmt"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

// Status is the terminal status of a setup run.
type Status int

const (
	Success Status = iota
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is produced exactly once per Run. Err is the first failure,
// unchanged, when Status is Failed.
type Outcome struct {
	Status Status
	Err    error
	RunID  string
}

// Kind classifies a failed outcome.
func (o Outcome) Kind() errors.Kind {
	switch o.Status {
	case Cancelled:
		return errors.KindCancelled
	case Failed:
		return errors.KindOf(o.Err)
	default:
		return errors.KindUnknown
	}
}

func (o Outcome) String() string {
	switch o.Status {
	case Failed:
		return fmt.Sprintf("failed (%s): %v", o.Kind(), o.Err)
	case Cancelled:
		return "cancelled: user opted out"
	default:
		return o.Status.String()
	}
}

func failed(runID string, err error) Outcome {
	return Outcome{Status: Failed, Err: err, RunID: runID}
}
