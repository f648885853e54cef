package platform

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

func TestTarget(t *testing.T) {
	tests := []struct {
		goos   string
		goarch string
		want   string
	}{
		{"linux", "amd64", "linux-x86_64"},
		{"linux", "arm64", "linux-aarch64"},
		{"darwin", "arm64", "macos-aarch64"},
		{"windows", "386", "windows-x86"},
		{"freebsd", "amd64", "freebsd-x86_64"},
		{"linux", "mips", "linux-mips"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Target(tt.goos, tt.goarch); got != tt.want {
				t.Errorf("Target(%q, %q) = %q, want %q", tt.goos, tt.goarch, got, tt.want)
			}
		})
	}
}

func TestCurrentMatchesRuntime(t *testing.T) {
	want := Target(runtime.GOOS, runtime.GOARCH)
	if got := Current(); got != want {
		t.Errorf("Current() = %q, want %q", got, want)
	}
	if strings.ContainsAny(Current(), " \t") {
		t.Error("target identifier must not contain whitespace")
	}
}

func TestDetect(t *testing.T) {
	info, err := Detect(context.Background())
	if err != nil {
		t.Fatalf("Detect() error: %v", err)
	}
	if info.Target != Current() {
		t.Errorf("Detect().Target = %q, want %q", info.Target, Current())
	}
	if info.Target != info.OS+"-"+info.Arch {
		t.Errorf("target %q is not OS-Arch (%q, %q)", info.Target, info.OS, info.Arch)
	}
}

func TestEmulated(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want bool
	}{
		{"unknown_kernel", Info{Arch: "x86_64"}, false},
		{"native", Info{Arch: "x86_64", KernelArch: "x86_64"}, false},
		{"native_go_name", Info{Arch: "aarch64", KernelArch: "arm64"}, false},
		{"rosetta", Info{Arch: "x86_64", KernelArch: "arm64"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.Emulated(); got != tt.want {
				t.Errorf("Emulated() = %v, want %v", got, tt.want)
			}
		})
	}
}
