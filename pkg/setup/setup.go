// Package setup runs the runtime acquisition pipeline for an install
// directory and reports a single Outcome: success, cancelled by the user, or
// failed with a typed error.
package setup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/superfly/fsm"

	"github.com/runtimeboot/runtimeboot/pkg/archive"
	"github.com/runtimeboot/runtimeboot/pkg/db"
	"github.com/runtimeboot/runtimeboot/pkg/descriptor"
	"github.com/runtimeboot/runtimeboot/pkg/errors"
	appfsm "github.com/runtimeboot/runtimeboot/pkg/fsm"
	"github.com/runtimeboot/runtimeboot/pkg/identity"
	"github.com/runtimeboot/runtimeboot/pkg/progress"
	"github.com/runtimeboot/runtimeboot/pkg/transfer"
)

// Options wires a Setup.
type Options struct {
	// StateDir holds the state machine database.
	StateDir  string
	Repo      *db.Repository
	Engine    *transfer.Engine
	Extractor *archive.Extractor
}

// Setup owns the state machine manager. The caller guarantees at most one
// run per install directory at a time.
type Setup struct {
	manager *fsm.Manager
	machine *appfsm.Machine
	start   fsm.Start[appfsm.SetupRequest, appfsm.SetupResponse]
}

// New starts a state machine manager under opts.StateDir.
func New(ctx context.Context, opts Options) (*Setup, error) {
	fsmDir := filepath.Join(opts.StateDir, "fsm")
	if err := os.MkdirAll(fsmDir, 0755); err != nil {
		return nil, &errors.IOError{Op: "create state directory", Path: fsmDir, Err: err}
	}

	manager, err := fsm.New(fsm.Config{DBPath: fsmDir})
	if err != nil {
		return nil, errors.Wrap(err, "FSM manager failed")
	}

	machine := appfsm.NewMachine(opts.Repo, opts.Engine, opts.Extractor)
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		manager.Shutdown(time.Second)
		return nil, errors.Wrap(err, "FSM register failed")
	}

	return &Setup{manager: manager, machine: machine, start: start}, nil
}

// Close shuts the state machine manager down.
func (s *Setup) Close() {
	s.manager.Shutdown(10 * time.Second)
}

// Run provisions desc for target into dir. dir is expected to have been
// wiped by the caller. The identity marker is written only when every step
// succeeded, so a cancelled or failed run leaves an install the gate rejects.
func (s *Setup) Run(ctx context.Context, target string, desc *descriptor.Descriptor, dir string, sink progress.Sink) Outcome {
	runID := uuid.NewString()
	logger := slog.With("run_id", runID, "target", target, "version", desc.Version, "install_dir", dir)

	run, err := s.machine.Begin(ctx, runID, target, dir, desc, sink)
	if err != nil {
		return failed(runID, err)
	}
	defer s.machine.Forget(runID)

	req := &appfsm.SetupRequest{
		RunID:       runID,
		Target:      target,
		Version:     desc.Version,
		DownloadURL: desc.DownloadURL,
		SHA512:      desc.DownloadHash.String(),
		Format:      desc.Format.String(),
		InstallDir:  dir,
	}
	resp := &appfsm.SetupResponse{}

	logger.Info("setup_start", "url", desc.DownloadURL)
	version, err := s.start(ctx, runID, fsm.NewRequest(req, resp))
	if err != nil {
		logger.Error("setup_start_failed", "error", err)
		return failed(runID, errors.Wrap(err, "FSM start failed"))
	}

	if err := s.manager.Wait(ctx, version); err != nil {
		logger.Debug("setup_wait_returned", "error", err)
	}
	if ctx.Err() != nil {
		// The run sees the cancelled ctx at its next check. Wait for it to
		// stop so no worker is still writing into dir after we return.
		logger.Info("setup_interrupted_waiting")
		if err := s.manager.Wait(context.WithoutCancel(ctx), version); err != nil {
			logger.Debug("setup_wait_returned", "error", err)
		}
	}

	state, runErr := run.Result()
	switch {
	case errors.IsCancelled(runErr):
		logger.Info("setup_cancelled", "state", state)
		return Outcome{Status: Cancelled, RunID: runID}
	case runErr != nil:
		return failed(runID, runErr)
	case ctx.Err() != nil && state != db.StateDone:
		logger.Info("setup_interrupted", "state", state)
		return Outcome{Status: Cancelled, RunID: runID}
	case state != db.StateDone:
		logger.Error("setup_incomplete", "state", state)
		return failed(runID, fmt.Errorf("setup stopped in state %s", state))
	}

	logger.Info("setup_complete")
	return Outcome{Status: Success, RunID: runID}
}

// Wipe removes an install directory and everything in it. The identity
// marker goes first, so a wipe that fails halfway never leaves a directory
// the gate accepts.
func Wipe(dir string) error {
	slog.Info("install_dir_wipe", "dir", dir)
	if err := identity.Remove(dir); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return &errors.IOError{Op: "wipe install directory", Path: dir, Err: err}
	}
	return nil
}

// Find returns the first candidate directory whose install is compatible
// with desc and target.
func Find(dirs []string, target string, desc *descriptor.Descriptor) (string, bool) {
	for _, dir := range dirs {
		res := identity.Check(dir, desc, target)
		slog.Debug("install_dir_checked", "dir", dir, "status", res.Status.String())
		if res.Usable() {
			return dir, true
		}
	}
	return "", false
}

// Ensure makes sure a compatible runtime is installed. Candidates are
// searched in order; when none is usable the first candidate is wiped and
// rebuilt. It returns the usable directory, or "" with a non-success outcome.
func (s *Setup) Ensure(ctx context.Context, dirs []string, target string, desc *descriptor.Descriptor, sink progress.Sink) (string, Outcome) {
	if len(dirs) == 0 {
		return "", failed("", fmt.Errorf("no install directory configured"))
	}
	if dir, ok := Find(dirs, target, desc); ok {
		slog.Info("runtime_compatible", "dir", dir, "target", target, "version", desc.Version)
		return dir, Outcome{Status: Success}
	}

	primary := dirs[0]
	res := identity.Check(primary, desc, target)
	slog.Info("runtime_rebuild", "dir", primary, "reason", res.String())

	if err := Wipe(primary); err != nil {
		return "", failed("", err)
	}

	out := s.Run(ctx, target, desc, primary, sink)
	if out.Status != Success {
		return "", out
	}
	return primary, out
}
