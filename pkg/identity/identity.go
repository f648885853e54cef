// Package identity reads and writes the install identity marker that records
// which runtime target and version an install directory holds.
package identity

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/runtimeboot/runtimeboot/pkg/descriptor"
	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

// MarkerFile is the name of the identity marker inside an install directory.
const MarkerFile = "runtime-id.txt"

// Status is the classification of an install directory.
type Status int

const (
	NotInstalled Status = iota
	MalformedIdentity
	WrongTarget
	WrongVersion
	Compatible
)

func (s Status) String() string {
	switch s {
	case NotInstalled:
		return "not_installed"
	case MalformedIdentity:
		return "malformed_identity"
	case WrongTarget:
		return "wrong_target"
	case WrongVersion:
		return "wrong_version"
	case Compatible:
		return "compatible"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of Check. Found holds the recorded target for
// WrongTarget and the recorded version for WrongVersion.
type Result struct {
	Status   Status
	Found    string
	Expected string
}

// Usable reports whether the install can be used without rebuilding.
func (r Result) Usable() bool { return r.Status == Compatible }

func (r Result) String() string {
	switch r.Status {
	case NotInstalled:
		return "no runtime installed"
	case MalformedIdentity:
		return "runtime identity marker is malformed"
	case WrongTarget:
		return fmt.Sprintf("installed runtime targets %s, need %s", r.Found, r.Expected)
	case WrongVersion:
		return fmt.Sprintf("installed runtime %s is %s than required %s", r.Found, compareVersions(r.Found, r.Expected), r.Expected)
	case Compatible:
		return fmt.Sprintf("runtime %s installed", r.Expected)
	default:
		return r.Status.String()
	}
}

// compareVersions describes found relative to expected. Versions that are not
// valid semver are just "different".
func compareVersions(found, expected string) string {
	f, e := canonical(found), canonical(expected)
	if !semver.IsValid(f) || !semver.IsValid(e) {
		return "different"
	}
	switch semver.Compare(f, e) {
	case -1:
		return "older"
	case 1:
		return "newer"
	default:
		return "different"
	}
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// MarkerPath returns the path of the identity marker for dir.
func MarkerPath(dir string) string {
	return filepath.Join(dir, MarkerFile)
}

// Check classifies the install directory against desc and target. It only
// reads the marker and never modifies anything.
func Check(dir string, desc *descriptor.Descriptor, target string) Result {
	res := Result{Status: NotInstalled}
	if desc != nil {
		res.Expected = desc.Version
	}

	data, err := os.ReadFile(MarkerPath(dir))
	if err != nil {
		return res
	}

	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		res.Status = MalformedIdentity
		return res
	}

	switch {
	case fields[0] != target:
		res.Status = WrongTarget
		res.Found = fields[0]
		res.Expected = target
	case desc == nil || fields[1] != desc.Version:
		res.Status = WrongVersion
		res.Found = fields[1]
	default:
		res.Status = Compatible
	}
	return res
}

// Commit records target and desc.Version as the identity of dir. It is the
// last step of a successful install.
func Commit(dir, target string, desc *descriptor.Descriptor) error {
	path := MarkerPath(dir)
	tmp := path + ".tmp"
	line := fmt.Sprintf("%s %s", target, desc.Version)

	if err := os.WriteFile(tmp, []byte(line), 0644); err != nil {
		return &errors.IOError{Op: "write identity", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return &errors.IOError{Op: "commit identity", Path: path, Err: err}
	}

	slog.Info("identity_committed", "dir", dir, "target", target, "version", desc.Version)
	return nil
}

// Remove deletes the identity marker of dir, if any.
func Remove(dir string) error {
	if err := os.Remove(MarkerPath(dir)); err != nil && !os.IsNotExist(err) {
		return &errors.IOError{Op: "remove identity", Path: MarkerPath(dir), Err: err}
	}
	return nil
}
