package gpu

import (
	"bytes"
	"sync"

	"github.com/xyproto/env/v2"
)

// Environment variables consulted by DetectDriverVersion
const (
	DriverVersionEnv = "GCNASM_DRIVER_VERSION"
	DriverPathEnv    = "GCNASM_AMDOCL_PATH"
)

var driverMarker = []byte("AMD-APP (")

var (
	detectOnce sync.Once
	detected   uint32
)

// DetectDriverVersion returns the version of the installed AMD OpenCL
// runtime in the form major*100+minor (1912.5 becomes 191205), or 0 when
// no runtime can be found. The result is computed once per process.
func DetectDriverVersion() uint32 {
	detectOnce.Do(func() {
		detected = detectDriverVersion()
	})
	return detected
}

func detectDriverVersion() uint32 {
	if v := env.Int(DriverVersionEnv, 0); v > 0 {
		return uint32(v)
	}
	for _, path := range libraryPaths() {
		data, release, err := mapLibrary(path)
		if err != nil {
			continue
		}
		v, ok := ParseDriverVersion(data)
		release()
		if ok {
			return v
		}
	}
	return 0
}

func libraryPaths() []string {
	if p := env.Str(DriverPathEnv); p != "" {
		return []string{p}
	}
	return defaultLibraryPaths
}

// ParseDriverVersion scans a runtime library image for the
// "AMD-APP (major.minor)" banner.
func ParseDriverVersion(data []byte) (uint32, bool) {
	for {
		i := bytes.Index(data, driverMarker)
		if i < 0 {
			return 0, false
		}
		data = data[i+len(driverMarker):]
		major, n := parseDigits(data)
		if n == 0 || n >= len(data) || data[n] != '.' {
			continue
		}
		minor, m := parseDigits(data[n+1:])
		if m == 0 {
			continue
		}
		return major*100 + minor, true
	}
}

func parseDigits(b []byte) (uint32, int) {
	var v uint32
	n := 0
	for n < len(b) && b[n] >= '0' && b[n] <= '9' {
		v = v*10 + uint32(b[n]-'0')
		n++
	}
	return v, n
}
