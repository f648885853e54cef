package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/superfly/fsm"

	"github.com/runtimeboot/runtimeboot/pkg/db"
	"github.com/runtimeboot/runtimeboot/pkg/errors"
	"github.com/runtimeboot/runtimeboot/pkg/identity"
	"github.com/runtimeboot/runtimeboot/pkg/integrity"
)

type (
	setupRequest  = fsm.Request[SetupRequest, SetupResponse]
	setupResponse = fsm.Response[SetupResponse]
)

// enter resolves the run behind a request and records the state change.
func (m *Machine) enter(req *setupRequest, state, historyState string) (*Run, *SetupResponse, error) {
	r, err := m.lookup(req.Msg.RunID)
	if err != nil {
		slog.Error("fsm_run_missing", "run_id", req.Msg.RunID, "state", state)
		return nil, nil, fsm.Abort(err)
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &SetupResponse{}
	}
	resp.State = state

	r.setState(state)
	m.history(req.Msg.RunID, func() error { return m.repo.UpdateState(req.Msg.RunID, historyState) })
	return r, resp, nil
}

// fail records the first failure of a run and aborts the machine. A
// cancellation takes the same path but is recorded as cancelled.
func (m *Machine) fail(req *setupRequest, r *Run, resp *SetupResponse, err error) (*setupResponse, error) {
	if r.ctx.Err() != nil && !errors.IsCancelled(err) {
		err = fmt.Errorf("%w: %v", errors.ErrCancelled, err)
	}
	kind := errors.KindOf(err)
	state := db.StateFailed
	if kind == errors.KindCancelled {
		state = db.StateCancelled
		slog.Info("fsm_run_cancelled", "run_id", req.Msg.RunID, "state", resp.State)
	} else {
		slog.Error("fsm_run_failed", "run_id", req.Msg.RunID, "state", resp.State, "error_kind", kind.String(), "error", err)
	}

	r.setErr(err)
	resp.ErrorKind = kind.String()
	resp.ErrorMessage = err.Error()
	m.history(req.Msg.RunID, func() error {
		return m.repo.Finish(req.Msg.RunID, state, kind.String(), err.Error())
	})

	return nil, fsm.Abort(err)
}

// history applies a history update. The install history is bookkeeping, so
// a failure is logged and the pipeline continues.
func (m *Machine) history(runID string, update func() error) {
	if m.repo == nil {
		return
	}
	if err := update(); err != nil {
		slog.Warn("fsm_history_update_failed", "run_id", runID, "error", err)
	}
}

// handleConnectivityCheck dials the download server before any request is
// made.
func (m *Machine) handleConnectivityCheck(ctx context.Context, req *setupRequest) (*setupResponse, error) {
	slog.Info("fsm_state_connectivity_check", "run_id", req.Msg.RunID, "url", req.Msg.DownloadURL)

	r, resp, err := m.enter(req, StateConnectivityCheck, db.StateConnectivityCheck)
	if err != nil {
		return nil, err
	}

	server, err := m.engine.Server(r.desc.DownloadURL)
	if err == nil {
		resp.Server = server
		r.sink.Log(fmt.Sprintf("Connecting to %s", server))
	}
	if err := m.engine.Preflight(r.ctx, r.desc.DownloadURL); err != nil {
		return m.fail(req, r, resp, err)
	}

	return fsm.NewResponse(resp), nil
}

// handleDownload streams the payload into the run's buffer.
func (m *Machine) handleDownload(ctx context.Context, req *setupRequest) (*setupResponse, error) {
	slog.Info("fsm_state_download", "run_id", req.Msg.RunID, "url", req.Msg.DownloadURL)

	r, resp, err := m.enter(req, StateDownload, db.StateDownloading)
	if err != nil {
		return nil, err
	}

	payload, err := m.engine.Fetch(r.ctx, r.desc, r.sink)
	if err != nil {
		return m.fail(req, r, resp, err)
	}

	r.mu.Lock()
	r.payload = payload
	r.mu.Unlock()
	resp.Bytes = int64(len(payload))

	slog.Info("download_complete", "run_id", req.Msg.RunID, "bytes", len(payload))
	return fsm.NewResponse(resp), nil
}

// handleVerify checks the buffered payload against the descriptor digest
// before anything touches the install directory.
func (m *Machine) handleVerify(ctx context.Context, req *setupRequest) (*setupResponse, error) {
	slog.Info("fsm_state_verify", "run_id", req.Msg.RunID)

	r, resp, err := m.enter(req, StateVerify, db.StateVerifying)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	payload := r.payload
	r.mu.Unlock()

	r.sink.ReportProgress("Verifying runtime download", 1)
	if err := integrity.Verify(payload, r.desc.DownloadHash); err != nil {
		return m.fail(req, r, resp, err)
	}

	resp.SHA512 = r.desc.DownloadHash.String()
	m.history(req.Msg.RunID, func() error {
		return m.repo.RecordPayload(req.Msg.RunID, resp.SHA512, resp.Bytes)
	})

	return fsm.NewResponse(resp), nil
}

// handleExtract unpacks the verified payload and releases the buffer.
func (m *Machine) handleExtract(ctx context.Context, req *setupRequest) (*setupResponse, error) {
	slog.Info("fsm_state_extract", "run_id", req.Msg.RunID, "install_dir", req.Msg.InstallDir, "format", req.Msg.Format)

	r, resp, err := m.enter(req, StateExtract, db.StateExtracting)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	payload := r.payload
	r.payload = nil
	r.mu.Unlock()

	stats, err := m.extractor.Extract(r.desc.Format, payload, r.dir, r.sink)
	resp.Entries = stats.Entries
	if err != nil {
		return m.fail(req, r, resp, err)
	}

	m.history(req.Msg.RunID, func() error { return m.repo.RecordEntries(req.Msg.RunID, stats.Entries) })
	return fsm.NewResponse(resp), nil
}

// handleFinalize writes the identity marker, which makes the install visible
// to the compatibility gate.
func (m *Machine) handleFinalize(ctx context.Context, req *setupRequest) (*setupResponse, error) {
	slog.Info("fsm_state_finalize", "run_id", req.Msg.RunID, "install_dir", req.Msg.InstallDir)

	r, resp, err := m.enter(req, StateFinalize, db.StateFinalizing)
	if err != nil {
		return nil, err
	}

	if err := identity.Commit(r.dir, r.target, r.desc); err != nil {
		return m.fail(req, r, resp, err)
	}

	resp.State = db.StateDone
	r.setState(db.StateDone)
	m.history(req.Msg.RunID, func() error { return m.repo.Finish(req.Msg.RunID, db.StateDone, "", "") })

	slog.Info("fsm_complete", "run_id", req.Msg.RunID, "target", r.target, "version", r.desc.Version)
	return fsm.NewResponse(resp), nil
}
