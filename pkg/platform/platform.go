// Package platform derives the target identifier used to select a runtime
// descriptor and to stamp installed runtimes.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v4/host"
)

// osNames maps GOOS values to the runtime's OS naming.
var osNames = map[string]string{
	"darwin": "macos",
}

// archNames maps GOARCH values to the runtime's architecture naming.
var archNames = map[string]string{
	"amd64":   "x86_64",
	"arm64":   "aarch64",
	"386":     "x86",
	"arm":     "arm",
	"riscv64": "riscv64",
	"ppc64le": "powerpc64le",
	"s390x":   "s390x",
	"loong64": "loongarch64",
}

// Info describes the host the bootstrapper runs on.
type Info struct {
	OS     string // runtime naming, e.g. "linux", "macos"
	Arch   string // runtime naming, e.g. "x86_64"
	Target string // OS + "-" + Arch

	// Host facts from gopsutil, informational only.
	Platform   string
	Family     string
	Version    string
	KernelArch string
}

// Target builds a target identifier from Go's GOOS/GOARCH pair.
func Target(goos, goarch string) string {
	return fmt.Sprintf("%s-%s", NormalizeOS(goos), NormalizeArch(goarch))
}

// Current returns the target identifier of the running process.
func Current() string {
	return Target(runtime.GOOS, runtime.GOARCH)
}

// NormalizeOS converts a GOOS value to the runtime's naming.
func NormalizeOS(goos string) string {
	goos = strings.ToLower(strings.TrimSpace(goos))
	if name, ok := osNames[goos]; ok {
		return name
	}
	return goos
}

// NormalizeArch converts a GOARCH value to the runtime's naming. Unknown
// values pass through unchanged so the descriptor lookup fails with a clear
// unsupported-target error instead of here.
func NormalizeArch(goarch string) string {
	goarch = strings.ToLower(strings.TrimSpace(goarch))
	if name, ok := archNames[goarch]; ok {
		return name
	}
	return goarch
}

// Detect returns the target of the running process plus host details.
//
// The target always follows the process architecture, not the kernel's: an
// x86_64 build running under emulation on an aarch64 kernel needs an x86_64
// runtime. Host detection failures are not fatal.
func Detect(ctx context.Context) (*Info, error) {
	info := &Info{
		OS:     NormalizeOS(runtime.GOOS),
		Arch:   NormalizeArch(runtime.GOARCH),
		Target: Current(),
	}

	platform, family, version, err := host.PlatformInformationWithContext(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("platform detection cancelled: %w", ctx.Err())
		}
		slog.Warn("platform_host_info_unavailable", "error", err)
	} else {
		info.Platform = strings.ToLower(strings.TrimSpace(platform))
		info.Family = strings.ToLower(strings.TrimSpace(family))
		info.Version = strings.TrimSpace(version)
	}

	kernelArch, err := host.KernelArch()
	if err != nil {
		slog.Warn("platform_kernel_arch_unavailable", "error", err)
	} else {
		info.KernelArch = kernelArch
	}

	return info, nil
}

// Emulated reports whether the process architecture differs from the kernel's.
func (i *Info) Emulated() bool {
	if i.KernelArch == "" {
		return false
	}
	return NormalizeArch(i.KernelArch) != i.Arch && i.KernelArch != i.Arch
}
