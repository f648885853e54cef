package launch

import (
	"fmt"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

// hostingCodes are the status codes the runtime host reports for its own
// failures. An application returning one of them is indistinguishable from a
// hosting failure.
var hostingCodes = map[uint32]string{
	0x80008081: "InvalidArgFailure",
	0x80008082: "CoreHostLibLoadFailure",
	0x80008083: "CoreHostLibMissingFailure",
	0x80008084: "CoreHostEntryPointFailure",
	0x80008085: "CoreHostCurHostFindFailure",
	0x80008087: "CoreClrResolveFailure",
	0x80008088: "CoreClrBindFailure",
	0x80008089: "CoreClrInitFailure",
	0x8000808a: "CoreClrExeFailure",
	0x8000808b: "ResolverInitFailure",
	0x8000808c: "ResolverResolveFailure",
	0x8000808d: "LibHostCurExeFindFailure",
	0x8000808e: "LibHostInitFailure",
	0x80008090: "LibHostExecModeFailure",
	0x80008091: "LibHostSdkFindFailure",
	0x80008092: "LibHostInvalidArgs",
	0x80008093: "InvalidConfigFile",
	0x80008094: "AppArgNotRunnable",
	0x80008095: "AppHostExeNotBoundFailure",
	0x80008096: "FrameworkMissingFailure",
	0x80008097: "HostApiFailed",
	0x80008098: "HostApiBufferTooSmall",
	0x80008099: "LibHostUnknownCommand",
	0x8000809a: "LibHostAppRootFindFailure",
	0x8000809b: "SdkResolverResolveFailure",
	0x8000809c: "FrameworkCompatFailure",
	0x8000809d: "FrameworkCompatRetry",
	0x8000809f: "BundleExtractionFailure",
	0x800080a0: "BundleExtractionIOError",
	0x800080a1: "LibHostDuplicateProperty",
	0x800080a2: "HostApiUnsupportedVersion",
	0x800080a3: "HostInvalidState",
	0x800080a4: "HostPropertyNotFound",
	0x800080a5: "CoreHostIncompatibleConfig",
	0x800080a6: "HostApiUnsupportedScenario",
	0x800080a7: "HostFeatureDisabled",
}

// HostingError reports that the runtime host failed to run the application.
// Code is 0 when the host could not be started at all.
type HostingError struct {
	Code uint32
	Name string
	Err  error
}

func (e *HostingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to start the runtime host: %v", e.Err)
	}
	return fmt.Sprintf("runtime host failed with %s (0x%08x)", e.Name, e.Code)
}

func (e *HostingError) Unwrap() error { return e.Err }

func (e *HostingError) Kind() errors.Kind { return errors.KindHosting }

// ClassifyStatus turns a host status code into an exit code or a
// *HostingError when the code is a known hosting failure.
func ClassifyStatus(status int) (int, error) {
	if name, ok := hostingCodes[uint32(status)]; ok {
		return status, &HostingError{Code: uint32(status), Name: name}
	}
	return status, nil
}
