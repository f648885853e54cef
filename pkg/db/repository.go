package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for the install history
type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the history database at dbPath.
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create database directory")
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}
	// The pipeline worker and the CLI share the handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Debug("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

const installColumns = `id, run_id, target, version, install_dir, state, sha512, bytes, entries,
	error_kind, error_message, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanInstall(s scanner) (*Install, error) {
	var in Install
	var sha, kind, msg sql.NullString
	err := s.Scan(&in.ID, &in.RunID, &in.Target, &in.Version, &in.InstallDir, &in.State,
		&sha, &in.Bytes, &in.Entries, &kind, &msg, &in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		return nil, err
	}
	in.SHA512 = sha.String
	in.ErrorKind = kind.String
	in.ErrorMessage = msg.String
	return &in, nil
}

// Create inserts a new run in the pending state.
func (r *Repository) Create(in *Install) error {
	if in.State == "" {
		in.State = StatePending
	}
	slog.Debug("database_create_install", "run_id", in.RunID, "target", in.Target, "version", in.Version)

	result, err := r.db.Exec(`
		INSERT INTO installs (run_id, target, version, install_dir, state)
		VALUES (?, ?, ?, ?, ?)`,
		in.RunID, in.Target, in.Version, in.InstallDir, in.State)
	if err != nil {
		slog.Error("database_insert_failed", "run_id", in.RunID, "error", err)
		return errors.Wrap(err, "failed to insert install")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to get last insert id")
	}
	in.ID = id
	return nil
}

// GetByRunID retrieves a run, or nil when it does not exist.
func (r *Repository) GetByRunID(runID string) (*Install, error) {
	row := r.db.QueryRow(`SELECT `+installColumns+` FROM installs WHERE run_id = ?`, runID)
	in, err := scanInstall(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("database_query_failed", "run_id", runID, "error", err)
		return nil, errors.Wrap(err, "failed to query install")
	}
	return in, nil
}

func (r *Repository) exec(runID, what, query string, args ...any) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		slog.Error("database_update_failed", "run_id", runID, "update", what, "error", err)
		return errors.Wrap(err, "failed to update "+what)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return fmt.Errorf("install not found: run_id=%s", runID)
	}
	return nil
}

// UpdateState moves a run to state.
func (r *Repository) UpdateState(runID, state string) error {
	slog.Debug("database_update_state", "run_id", runID, "state", state)
	return r.exec(runID, "state",
		`UPDATE installs SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE run_id = ?`,
		state, runID)
}

// RecordPayload stores the digest and size of a verified download.
func (r *Repository) RecordPayload(runID, sha512 string, size int64) error {
	return r.exec(runID, "payload",
		`UPDATE installs SET sha512 = ?, bytes = ?, updated_at = CURRENT_TIMESTAMP WHERE run_id = ?`,
		sha512, size, runID)
}

// RecordEntries stores the number of extracted archive entries.
func (r *Repository) RecordEntries(runID string, entries int) error {
	return r.exec(runID, "entries",
		`UPDATE installs SET entries = ?, updated_at = CURRENT_TIMESTAMP WHERE run_id = ?`,
		entries, runID)
}

// Finish records the terminal state of a run and, for failures, the error
// kind and message.
func (r *Repository) Finish(runID, state, errorKind, errorMessage string) error {
	slog.Debug("database_finish_install", "run_id", runID, "state", state, "error_kind", errorKind)
	return r.exec(runID, "finish",
		`UPDATE installs SET state = ?, error_kind = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE run_id = ?`,
		state, nullable(errorKind), nullable(errorMessage), runID)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns the most recent runs first. limit <= 0 returns all of them.
func (r *Repository) List(limit int) ([]*Install, error) {
	query := `SELECT ` + installColumns + ` FROM installs ORDER BY id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.query(query, args...)
}

// ListByDir returns the runs for one install directory, most recent first.
func (r *Repository) ListByDir(dir string) ([]*Install, error) {
	return r.query(`SELECT `+installColumns+` FROM installs WHERE install_dir = ? ORDER BY id DESC`, dir)
}

func (r *Repository) query(query string, args ...any) ([]*Install, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list installs")
	}
	defer rows.Close()

	var installs []*Install
	for rows.Next() {
		in, err := scanInstall(rows)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}
		installs = append(installs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows error")
	}
	return installs, nil
}

// Prune deletes all but the keep most recent runs and returns how many rows
// were removed.
func (r *Repository) Prune(keep int) (int64, error) {
	slog.Info("database_prune_installs", "keep", keep)

	result, err := r.db.Exec(`
		DELETE FROM installs WHERE id NOT IN (
			SELECT id FROM installs ORDER BY id DESC LIMIT ?
		)`, keep)
	if err != nil {
		slog.Error("database_prune_failed", "error", err)
		return 0, errors.Wrap(err, "failed to prune installs")
	}
	return result.RowsAffected()
}

// MarkInterrupted fails every run that never reached a terminal state, such
// as runs of a process that was killed mid-install.
func (r *Repository) MarkInterrupted() (int64, error) {
	result, err := r.db.Exec(`
		UPDATE installs SET state = ?, error_kind = 'interrupted', error_message = 'run did not finish',
		       updated_at = CURRENT_TIMESTAMP
		WHERE state NOT IN (?, ?, ?)`,
		StateFailed, StateDone, StateCancelled, StateFailed)
	if err != nil {
		return 0, errors.Wrap(err, "failed to mark interrupted installs")
	}
	return result.RowsAffected()
}
