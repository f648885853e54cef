package fsm

// SetupRequest is the FSM input. It only carries plain values; the payload
// buffer and the progress sink stay in the machine's run registry.
type SetupRequest struct {
	RunID       string
	Target      string
	Version     string
	DownloadURL string
	SHA512      string
	Format      string
	InstallDir  string
}

// SetupResponse is the FSM output (accumulated across transitions)
type SetupResponse struct {
	// From ConnectivityCheck
	Server string

	// From Download and Verify
	Bytes  int64
	SHA512 string

	// From Extract
	Entries int

	// From Finalize/Failed
	State        string
	ErrorKind    string
	ErrorMessage string
}

// State names
const (
	StateConnectivityCheck = "connectivity_check"
	StateDownload          = "download"
	StateVerify            = "verify"
	StateExtract           = "extract"
	StateFinalize          = "finalize"
	StateFailed            = "failed"
)
