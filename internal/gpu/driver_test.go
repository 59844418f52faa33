package gpu

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseDriverVersion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  uint32
		ok    bool
	}{
		{"plain", "xxAMD-APP (1912.5)yy", 191205, true},
		{"two digit minor", "AMD-APP (2004.06)", 200406, true},
		{"old", "\x00\x00OpenCL 2.0 AMD-APP (1800.11)\x00", 180011, true},
		{"skips malformed", "AMD-APP (x) AMD-APP (1912.5)", 191205, true},
		{"missing", "no banner here", 0, false},
		{"truncated", "AMD-APP (1912", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDriverVersion([]byte(tt.input))
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseDriverVersion(%q) = %d, %v; want %d, %v", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestDetectFromLibraryPath(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "libamdocl64.so")
	if err := os.WriteFile(lib, []byte("\x7fELF....AMD-APP (2117.7)...."), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(DriverVersionEnv, "")
	t.Setenv(DriverPathEnv, lib)

	if got := detectDriverVersion(); got != 211707 {
		t.Errorf("detectDriverVersion() = %d, want 211707", got)
	}
}

func TestDetectFromEnvironment(t *testing.T) {
	t.Setenv(DriverVersionEnv, "203603")
	t.Setenv(DriverPathEnv, filepath.Join(t.TempDir(), "missing.so"))

	if got := detectDriverVersion(); got != 203603 {
		t.Errorf("detectDriverVersion() = %d, want 203603", got)
	}
}

func TestDetectMissingLibrary(t *testing.T) {
	t.Setenv(DriverVersionEnv, "")
	t.Setenv(DriverPathEnv, filepath.Join(t.TempDir(), "missing.so"))

	if got := detectDriverVersion(); got != 0 {
		t.Errorf("detectDriverVersion() = %d, want 0", got)
	}
}
