// Package launch hands execution to the application once a runtime is
// available. The Launcher interface isolates the runtime host; Exec runs the
// host executable and Fake stands in for it in tests.
package launch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

// App describes one launch.
type App struct {
	// RuntimeDir is the runtime root. Empty means the system runtime.
	RuntimeDir string
	AppPath    string
	Args       []string
}

// Launcher runs an application to completion and returns its exit code, or a
// *HostingError when the runtime host itself failed.
type Launcher interface {
	Launch(ctx context.Context, app App) (int, error)
}

// CheckApp verifies that the application binary exists before anything
// else happens.
func CheckApp(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return &errors.IOError{Op: "find application binary", Path: path, Err: err}
	}
	if fi.IsDir() {
		return &errors.IOError{Op: "find application binary", Path: path, Err: fmt.Errorf("is a directory")}
	}
	return nil
}

// HostName is the runtime host executable inside a runtime root.
const HostName = "dotnet"

// Exec launches the application through the runtime host executable with
// DOTNET_ROOT pointing at the runtime root and the root prepended to PATH.
type Exec struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func hostExecutable(root string) string {
	name := HostName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(root, name)
}

// Environ returns env with DOTNET_ROOT set to root and root prepended to
// PATH. An empty root leaves env unchanged.
func Environ(env []string, root string) []string {
	if root == "" {
		return env
	}

	out := make([]string, 0, len(env)+2)
	path := ""
	for _, kv := range env {
		switch {
		case strings.HasPrefix(kv, "PATH="):
			path = strings.TrimPrefix(kv, "PATH=")
		case strings.HasPrefix(kv, "DOTNET_ROOT="):
		default:
			out = append(out, kv)
		}
	}
	if path != "" {
		path = root + string(os.PathListSeparator) + path
	} else {
		path = root
	}
	return append(out, "PATH="+path, "DOTNET_ROOT="+root)
}

func (e *Exec) Launch(ctx context.Context, app App) (int, error) {
	host := HostName
	if app.RuntimeDir != "" {
		host = hostExecutable(app.RuntimeDir)
	} else if found, err := exec.LookPath(HostName); err == nil {
		host = found
	} else {
		return 0, &HostingError{Err: fmt.Errorf("no system runtime found: %w", err)}
	}

	args := append([]string{app.AppPath}, app.Args...)
	cmd := exec.CommandContext(ctx, host, args...)
	cmd.Env = Environ(os.Environ(), app.RuntimeDir)
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr

	slog.Info("launch_start", "host", host, "app", app.AppPath, "runtime_dir", app.RuntimeDir, "system_runtime", app.RuntimeDir == "")

	err := cmd.Run()
	if err == nil {
		slog.Info("launch_exit", "app", app.AppPath, "code", 0)
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code, hostErr := ClassifyStatus(exitErr.ExitCode())
		slog.Info("launch_exit", "app", app.AppPath, "code", code, "hosting_error", hostErr != nil)
		return code, hostErr
	}

	slog.Error("launch_failed", "host", host, "error", err)
	return 0, &HostingError{Err: err}
}

// Fake returns canned results and records every launch.
type Fake struct {
	Code int
	Err  error

	mu    sync.Mutex
	calls []App
}

func (f *Fake) Launch(ctx context.Context, app App) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, app)
	f.mu.Unlock()
	return f.Code, f.Err
}

// Calls returns the launches seen so far.
func (f *Fake) Calls() []App {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]App(nil), f.calls...)
}
