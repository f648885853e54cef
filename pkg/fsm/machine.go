// Package fsm implements the runtime setup state machine on top of
// superfly/fsm. It drives one install directory from the connectivity
// preflight through download, verification and extraction to the identity
// commit, aborting on the first failure.
package fsm

import (
	"context"
	"fmt"
	"sync"

	"github.com/superfly/fsm"

	"github.com/runtimeboot/runtimeboot/pkg/archive"
	"github.com/runtimeboot/runtimeboot/pkg/db"
	"github.com/runtimeboot/runtimeboot/pkg/descriptor"
	"github.com/runtimeboot/runtimeboot/pkg/errors"
	"github.com/runtimeboot/runtimeboot/pkg/progress"
	"github.com/runtimeboot/runtimeboot/pkg/transfer"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	repo      *db.Repository
	engine    *transfer.Engine
	extractor *archive.Extractor

	mu   sync.Mutex
	runs map[string]*Run
}

// NewMachine creates a new FSM machine with dependencies. repo may be nil, in
// which case no history is recorded.
func NewMachine(repo *db.Repository, engine *transfer.Engine, extractor *archive.Extractor) *Machine {
	return &Machine{
		repo:      repo,
		engine:    engine,
		extractor: extractor,
		runs:      make(map[string]*Run),
	}
}

// Run is the in-memory side of one pipeline run. It owns the payload buffer
// between the download and extract states.
type Run struct {
	ctx    context.Context
	desc   *descriptor.Descriptor
	target string
	dir    string
	sink   progress.Sink

	mu      sync.Mutex
	payload []byte
	state   string
	err     error
}

// Result returns the last state the run reached and its first failure.
func (r *Run) Result() (state string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.err
}

func (r *Run) setState(state string) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

// setErr keeps the first failure only.
func (r *Run) setErr(err error) {
	r.mu.Lock()
	if r.err == nil {
		r.err = err
	}
	r.mu.Unlock()
}

// Begin registers a run before it is started on the manager. ctx bounds the
// network operations of the run; once it is done the run stops at its next
// cancellation check.
func (m *Machine) Begin(ctx context.Context, runID, target, dir string, desc *descriptor.Descriptor, sink progress.Sink) (*Run, error) {
	sink = progress.WithContext(ctx, sink)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; ok {
		return nil, fmt.Errorf("run %s already registered", runID)
	}
	r := &Run{ctx: ctx, desc: desc, target: target, dir: dir, sink: sink, state: db.StatePending}
	m.runs[runID] = r

	m.history(runID, func() error {
		return m.repo.Create(&db.Install{RunID: runID, Target: target, Version: desc.Version, InstallDir: dir})
	})
	return r, nil
}

// Forget drops a finished run and its payload buffer.
func (m *Machine) Forget(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
}

func (m *Machine) lookup(runID string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s is not registered", runID)
	}
	return r, nil
}

// Register registers the runtime setup FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[SetupRequest, SetupResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[SetupRequest, SetupResponse](manager, "runtime-setup").
		Start(StateConnectivityCheck, m.handleConnectivityCheck).
		To(StateDownload, m.handleDownload).
		To(StateVerify, m.handleVerify).
		To(StateExtract, m.handleExtract).
		To(StateFinalize, m.handleFinalize).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}
