package security

import (
	"testing"

	"github.com/runtimeboot/runtimeboot/pkg/errors"
)

func testLimits() Limits {
	return Limits{MaxFileSize: 100, MaxTotalSize: 500, MaxCompressionRatio: 10.0}
}

func TestSanitizePath(t *testing.T) {
	v := NewValidator(testLimits())

	tests := []struct {
		name      string
		want      string
		shouldErr bool
	}{
		{"file.txt", "file.txt", false},
		{"dir/file.txt", "dir/file.txt", false},
		{"./dir//file.txt", "dir/file.txt", false},
		{`shared\Microsoft.NETCore.App\8.0.5\System.dll`, "shared/Microsoft.NETCore.App/8.0.5/System.dll", false},
		{"./", "", false},
		{".", "", false},
		{"host/fxr/", "host/fxr", false},
		{"../evil", "", true},
		{"dir/../file.txt", "", true},
		{"dir/../../etc/passwd", "", true},
		{"/etc/passwd", "", true},
		{`C:\Windows\evil.dll`, "", true},
		{"c:relative", "", true},
		{`\\server\share\evil`, "", true},
		{`..\evil`, "", true},
		{"nul\x00byte", "", true},
	}

	for _, tt := range tests {
		got, err := v.SanitizePath(tt.name)
		if tt.shouldErr {
			if !errors.Is(err, ErrPathTraversal) {
				t.Errorf("SanitizePath(%q): expected traversal error, got %v", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("SanitizePath(%q): unexpected error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SanitizePath(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestValidateSymlink(t *testing.T) {
	v := NewValidator(testLimits())

	tests := []struct {
		link      string
		target    string
		shouldErr bool
	}{
		{"dotnet", "host/dotnet", false},
		{"bin/dotnet", "../dotnet", false},
		{"a/b/c", "../../x", false},
		{"a/b/c", "../../../x", true},
		{"link", "../outside", true},
		{"link", "/etc/passwd", true},
		{"link", `C:\evil`, true},
		{"a/link", "x/../../..", true},
		{"link", "", true},
	}

	for _, tt := range tests {
		err := v.ValidateSymlink(tt.link, tt.target)
		if tt.shouldErr && !errors.Is(err, ErrPathTraversal) {
			t.Errorf("ValidateSymlink(%q, %q): expected traversal error, got %v", tt.link, tt.target, err)
		}
		if !tt.shouldErr && err != nil {
			t.Errorf("ValidateSymlink(%q, %q): unexpected error: %v", tt.link, tt.target, err)
		}
	}
}

func TestValidateFileSize(t *testing.T) {
	v := NewValidator(testLimits())

	if err := v.ValidateFileSize("small", 50); err != nil {
		t.Errorf("expected no error for size 50, got: %v", err)
	}
	if err := v.ValidateFileSize("big", 150); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("expected limit error for size 150, got: %v", err)
	}
}

func TestValidateCompressionRatio(t *testing.T) {
	v := NewValidator(testLimits())

	if err := v.ValidateCompressionRatio(10, 100); err != nil {
		t.Errorf("expected no error for ratio 10.0, got: %v", err)
	}
	if err := v.ValidateCompressionRatio(50, 1000); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("expected limit error for ratio 20.0, got: %v", err)
	}
	if err := v.ValidateCompressionRatio(0, 10); err == nil {
		t.Error("expected error for zero compressed size")
	}
}

func TestAddExtractedSize(t *testing.T) {
	v := NewValidator(testLimits())

	if err := v.AddExtractedSize(400); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := v.AddExtractedSize(200); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("expected limit error when total exceeds max, got %v", err)
	}
	if got := v.TotalSize(); got != 600 {
		t.Errorf("TotalSize = %d, want 600", got)
	}

	v.Reset()
	if got := v.TotalSize(); got != 0 {
		t.Errorf("TotalSize after Reset = %d", got)
	}
}
