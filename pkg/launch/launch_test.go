package launch

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		wantCode int
		wantName string
	}{
		{0, 0, ""},
		{1, 1, ""},
		{42, 42, ""},
		{0x80008096, 0x80008096, "FrameworkMissingFailure"},
		{0x80008083, 0x80008083, "CoreHostLibMissingFailure"},
		{0x80008086, 0x80008086, ""},
	}

	for _, tt := range tests {
		code, err := ClassifyStatus(tt.status)
		if code != tt.wantCode {
			t.Errorf("ClassifyStatus(%#x) code = %#x", tt.status, code)
		}
		if tt.wantName == "" {
			if err != nil {
				t.Errorf("ClassifyStatus(%#x): unexpected error %v", tt.status, err)
			}
			continue
		}
		var hostErr *HostingError
		if !errors.As(err, &hostErr) || hostErr.Name != tt.wantName {
			t.Errorf("ClassifyStatus(%#x) = %v, want %s", tt.status, err, tt.wantName)
		}
		if errors.KindOf(err) != errors.KindHosting {
			t.Errorf("KindOf = %v", errors.KindOf(err))
		}
	}
}

func TestEnviron(t *testing.T) {
	sep := string(os.PathListSeparator)
	env := []string{"HOME=/home/u", "PATH=/usr/bin" + sep + "/bin", "DOTNET_ROOT=/old"}

	got := Environ(env, "/opt/rt")
	want := map[string]bool{}
	for _, kv := range []string{"HOME=/home/u", "PATH=/opt/rt" + sep + "/usr/bin" + sep + "/bin", "DOTNET_ROOT=/opt/rt"} {
		want[kv] = true
	}
	if len(got) != len(want) {
		t.Fatalf("Environ = %v", got)
	}
	for _, kv := range got {
		if !want[kv] {
			t.Errorf("unexpected entry %q", kv)
		}
	}

	if got := Environ(env, ""); len(got) != len(env) {
		t.Errorf("system runtime changed the environment: %v", got)
	}
	if got := Environ([]string{"HOME=/h"}, "/opt/rt"); got[len(got)-2] != "PATH=/opt/rt" {
		t.Errorf("PATH not created: %v", got)
	}
}

func TestExecLaunch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the runtime host")
	}

	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "out.txt")
	script := "#!/bin/sh\n" +
		"echo \"$DOTNET_ROOT|$1|$2|${PATH%%:*}\" > " + out + "\n" +
		"exit 7\n"
	if err := os.WriteFile(filepath.Join(root, HostName), []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake host: %v", err)
	}

	code, err := (&Exec{}).Launch(context.Background(), App{RuntimeDir: root, AppPath: "app.dll", Args: []string{"--flag"}})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if code != 7 {
		t.Errorf("code = %d, want 7", code)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("host did not run: %v", err)
	}
	want := root + "|app.dll|--flag|" + root
	if strings.TrimSpace(string(data)) != want {
		t.Errorf("host saw %q, want %q", strings.TrimSpace(string(data)), want)
	}
}

func TestExecMissingHost(t *testing.T) {
	_, err := (&Exec{}).Launch(context.Background(), App{RuntimeDir: t.TempDir(), AppPath: "app.dll"})
	if errors.KindOf(err) != errors.KindHosting {
		t.Fatalf("expected hosting error, got %v", err)
	}
}

func TestCheckApp(t *testing.T) {
	dir := t.TempDir()
	app := filepath.Join(dir, "app.dll")
	if err := os.WriteFile(app, []byte("MZ"), 0644); err != nil {
		t.Fatalf("failed to write app: %v", err)
	}

	if err := CheckApp(app); err != nil {
		t.Errorf("CheckApp(existing) = %v", err)
	}
	if err := CheckApp(filepath.Join(dir, "missing.dll")); errors.KindOf(err) != errors.KindIO {
		t.Errorf("CheckApp(missing) = %v", err)
	}
	if err := CheckApp(dir); err == nil {
		t.Error("CheckApp(dir) accepted a directory")
	}
}

func TestFake(t *testing.T) {
	f := &Fake{Code: 3}
	code, err := f.Launch(context.Background(), App{AppPath: "a"})
	if code != 3 || err != nil {
		t.Errorf("Launch = %d, %v", code, err)
	}
	if calls := f.Calls(); len(calls) != 1 || calls[0].AppPath != "a" {
		t.Errorf("Calls = %+v", calls)
	}
}
