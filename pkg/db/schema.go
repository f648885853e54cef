package db

// Schema defines the install history. One row per setup pipeline run, keyed
// by the run id the state machine uses.
const Schema = `
CREATE TABLE IF NOT EXISTS installs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    target TEXT NOT NULL,
    version TEXT NOT NULL,
    install_dir TEXT NOT NULL,
    state TEXT NOT NULL CHECK(state IN ('pending', 'connectivity_check', 'downloading', 'verifying',
                                        'extracting', 'finalizing', 'done', 'cancelled', 'failed')),
    sha512 TEXT,
    bytes INTEGER NOT NULL DEFAULT 0,
    entries INTEGER NOT NULL DEFAULT 0,
    error_kind TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_installs_install_dir ON installs(install_dir);
CREATE INDEX IF NOT EXISTS idx_installs_state ON installs(state);
CREATE INDEX IF NOT EXISTS idx_installs_created_at ON installs(created_at);
`

// State constants
const (
	StatePending           = "pending"
	StateConnectivityCheck = "connectivity_check"
	StateDownloading       = "downloading"
	StateVerifying         = "verifying"
	StateExtracting        = "extracting"
	StateFinalizing        = "finalizing"
	StateDone              = "done"
	StateCancelled         = "cancelled"
	StateFailed            = "failed"
)

// Terminal reports whether state ends a run.
func Terminal(state string) bool {
	return state == StateDone || state == StateCancelled || state == StateFailed
}

// Install is one recorded pipeline run.
type Install struct {
	ID           int64
	RunID        string
	Target       string
	Version      string
	InstallDir   string
	State        string
	SHA512       string
	Bytes        int64
	Entries      int
	ErrorKind    string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
