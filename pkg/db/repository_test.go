package db

import (
	"path/filepath"
	"testing"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "state", "history.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := newTestRepository(t)

	in := &Install{
		RunID:      "run-1",
		Target:     "linux-x86_64",
		Version:    "8.0.5",
		InstallDir: "/opt/app/runtime",
	}
	if err := repo.Create(in); err != nil {
		t.Fatalf("failed to create install: %v", err)
	}
	if in.ID == 0 {
		t.Error("ID not assigned")
	}

	got, err := repo.GetByRunID("run-1")
	if err != nil {
		t.Fatalf("failed to get install: %v", err)
	}
	if got == nil {
		t.Fatal("install not found")
	}
	if got.Target != in.Target || got.Version != in.Version || got.State != StatePending {
		t.Errorf("retrieved install mismatch: got %+v", got)
	}

	missing, err := repo.GetByRunID("nope")
	if err != nil || missing != nil {
		t.Errorf("GetByRunID(nope) = %v, %v", missing, err)
	}
}

func TestRepository_Lifecycle(t *testing.T) {
	repo := newTestRepository(t)

	in := &Install{RunID: "run-1", Target: "linux-x86_64", Version: "8.0.5", InstallDir: "/rt"}
	if err := repo.Create(in); err != nil {
		t.Fatalf("failed to create install: %v", err)
	}

	for _, state := range []string{StateConnectivityCheck, StateDownloading, StateVerifying} {
		if err := repo.UpdateState("run-1", state); err != nil {
			t.Fatalf("failed to update state to %s: %v", state, err)
		}
	}
	if err := repo.RecordPayload("run-1", "abcdef", 1234); err != nil {
		t.Fatalf("failed to record payload: %v", err)
	}
	if err := repo.RecordEntries("run-1", 42); err != nil {
		t.Fatalf("failed to record entries: %v", err)
	}
	if err := repo.Finish("run-1", StateFailed, "path_traversal", "entry ../evil"); err != nil {
		t.Fatalf("failed to finish: %v", err)
	}

	got, err := repo.GetByRunID("run-1")
	if err != nil {
		t.Fatalf("failed to get install: %v", err)
	}
	if got.State != StateFailed || got.SHA512 != "abcdef" || got.Bytes != 1234 || got.Entries != 42 {
		t.Errorf("unexpected install: %+v", got)
	}
	if got.ErrorKind != "path_traversal" || got.ErrorMessage != "entry ../evil" {
		t.Errorf("error not recorded: %+v", got)
	}

	if err := repo.UpdateState("missing", StateDone); err == nil {
		t.Error("expected error updating unknown run")
	}
	if err := repo.UpdateState("run-1", "bogus"); err == nil {
		t.Error("expected constraint error for unknown state")
	}
}

func TestRepository_ListAndPrune(t *testing.T) {
	repo := newTestRepository(t)

	for i, dir := range []string{"/a", "/b", "/a", "/a"} {
		in := &Install{RunID: string(rune('1' + i)), Target: "linux-x86_64", Version: "8.0.5", InstallDir: dir}
		if err := repo.Create(in); err != nil {
			t.Fatalf("failed to create install: %v", err)
		}
	}

	all, err := repo.List(0)
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(all) != 4 || all[0].RunID != "4" {
		t.Fatalf("List(0) returned %d rows, first %v", len(all), all[0].RunID)
	}

	limited, err := repo.List(2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("List(2) = %d rows, %v", len(limited), err)
	}

	byDir, err := repo.ListByDir("/a")
	if err != nil || len(byDir) != 3 {
		t.Fatalf("ListByDir = %d rows, %v", len(byDir), err)
	}

	removed, err := repo.Prune(1)
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if removed != 3 {
		t.Errorf("Prune removed %d rows, want 3", removed)
	}
	rest, _ := repo.List(0)
	if len(rest) != 1 || rest[0].RunID != "4" {
		t.Errorf("unexpected rows after prune: %+v", rest)
	}
}

func TestRepository_MarkInterrupted(t *testing.T) {
	repo := newTestRepository(t)

	repo.Create(&Install{RunID: "done", Target: "t", Version: "1", InstallDir: "/a"})
	repo.Finish("done", StateDone, "", "")
	repo.Create(&Install{RunID: "stuck", Target: "t", Version: "1", InstallDir: "/a"})
	repo.UpdateState("stuck", StateExtracting)

	n, err := repo.MarkInterrupted()
	if err != nil {
		t.Fatalf("MarkInterrupted failed: %v", err)
	}
	if n != 1 {
		t.Errorf("marked %d runs, want 1", n)
	}

	got, _ := repo.GetByRunID("stuck")
	if got.State != StateFailed || got.ErrorKind != "interrupted" {
		t.Errorf("stuck run not failed: %+v", got)
	}
	done, _ := repo.GetByRunID("done")
	if done.State != StateDone || done.ErrorKind != "" {
		t.Errorf("finished run changed: %+v", done)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []string{StateDone, StateCancelled, StateFailed} {
		if !Terminal(s) {
			t.Errorf("Terminal(%s) = false", s)
		}
	}
	if Terminal(StateExtracting) {
		t.Error("Terminal(extracting) = true")
	}
}
