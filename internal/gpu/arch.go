// Package gpu describes the AMD GCN devices the assembler can target
// and the register and memory limits each architecture imposes.
package gpu

import (
	"fmt"
	"strings"
)

// Architecture is a GCN hardware generation
type Architecture int

const (
	GCN1_0 Architecture = iota
	GCN1_1
	GCN1_2
	GCN1_4
)

func (a Architecture) String() string {
	switch a {
	case GCN1_0:
		return "GCN1.0"
	case GCN1_1:
		return "GCN1.1"
	case GCN1_2:
		return "GCN1.2"
	case GCN1_4:
		return "GCN1.4"
	default:
		return "unknown"
	}
}

// ParseArchitecture parses names like "gcn1.2", "GCN1_2" or "gfx9"
func ParseArchitecture(s string) (Architecture, error) {
	switch strings.ReplaceAll(strings.ToLower(s), "_", ".") {
	case "gcn1.0", "si", "gfx6":
		return GCN1_0, nil
	case "gcn1.1", "ci", "gfx7":
		return GCN1_1, nil
	case "gcn1.2", "vi", "gfx8":
		return GCN1_2, nil
	case "gcn1.4", "vega", "gfx9":
		return GCN1_4, nil
	default:
		return 0, fmt.Errorf("unsupported architecture: %s (supported: gcn1.0, gcn1.1, gcn1.2, gcn1.4)", s)
	}
}

// DeviceType is a concrete GPU device
type DeviceType int

const (
	CapeVerde DeviceType = iota
	Pitcairn
	Tahiti
	Oland
	Bonaire
	Spectre
	Spooky
	Kalindi
	Hainan
	Hawaii
	Iceland
	Tonga
	Mullins
	Fiji
	Carrizo
	Stoney
	Ellesmere
	Baffin
	GFX804
	GFX900
	GFX901
)

var deviceNames = [...]string{
	CapeVerde: "capeverde",
	Pitcairn:  "pitcairn",
	Tahiti:    "tahiti",
	Oland:     "oland",
	Bonaire:   "bonaire",
	Spectre:   "spectre",
	Spooky:    "spooky",
	Kalindi:   "kalindi",
	Hainan:    "hainan",
	Hawaii:    "hawaii",
	Iceland:   "iceland",
	Tonga:     "tonga",
	Mullins:   "mullins",
	Fiji:      "fiji",
	Carrizo:   "carrizo",
	Stoney:    "stoney",
	Ellesmere: "ellesmere",
	Baffin:    "baffin",
	GFX804:    "gfx804",
	GFX900:    "gfx900",
	GFX901:    "gfx901",
}

var deviceArchs = [...]Architecture{
	CapeVerde: GCN1_0,
	Pitcairn:  GCN1_0,
	Tahiti:    GCN1_0,
	Oland:     GCN1_0,
	Bonaire:   GCN1_1,
	Spectre:   GCN1_1,
	Spooky:    GCN1_1,
	Kalindi:   GCN1_1,
	Hainan:    GCN1_0,
	Hawaii:    GCN1_1,
	Iceland:   GCN1_2,
	Tonga:     GCN1_2,
	Mullins:   GCN1_1,
	Fiji:      GCN1_2,
	Carrizo:   GCN1_2,
	Stoney:    GCN1_2,
	Ellesmere: GCN1_2,
	Baffin:    GCN1_2,
	GFX804:    GCN1_2,
	GFX900:    GCN1_4,
	GFX901:    GCN1_4,
}

func (d DeviceType) String() string {
	if d < 0 || int(d) >= len(deviceNames) {
		return "unknown"
	}
	return deviceNames[d]
}

// MarshalText encodes the device by name
func (d DeviceType) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts any name ParseDeviceType does
func (d *DeviceType) UnmarshalText(text []byte) error {
	dt, err := ParseDeviceType(string(text))
	if err != nil {
		return err
	}
	*d = dt
	return nil
}

// Architecture returns the GCN generation of the device
func (d DeviceType) Architecture() Architecture {
	if d < 0 || int(d) >= len(deviceArchs) {
		return GCN1_0
	}
	return deviceArchs[d]
}

// ParseDeviceType parses a device name (case insensitive)
func ParseDeviceType(s string) (DeviceType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "cape_verde", "verde":
		return CapeVerde, nil
	case "polaris10":
		return Ellesmere, nil
	case "polaris11":
		return Baffin, nil
	}
	for i, n := range deviceNames {
		if n == name {
			return DeviceType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown device type: %s", s)
}

// DeviceNames returns all known device names in table order
func DeviceNames() []string {
	names := make([]string, len(deviceNames))
	copy(names, deviceNames[:])
	return names
}
