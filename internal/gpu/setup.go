package gpu

import "math/bits"

// RegisterType selects scalar or vector registers
type RegisterType int

const (
	RegSGPR RegisterType = iota
	RegVGPR
)

// Program setup flags accepted by SetupMinRegisters
const (
	SetupTGSizeEnabled  uint32 = 1
	SetupScratchEnabled uint32 = 2
)

// Memory limits shared by every supported generation
const (
	MaxLocalSize = 32768
	MaxGDSSize   = 65536
)

// MaxRegisters returns the number of addressable registers of the given type
func MaxRegisters(arch Architecture, regType RegisterType) uint32 {
	if regType == RegVGPR {
		return 256
	}
	if arch >= GCN1_2 {
		return 102
	}
	return 104
}

// SetupMinRegisters returns the SGPR and VGPR counts the hardware fills
// in before the first instruction of a kernel runs.
func SetupMinRegisters(arch Architecture, dimMask, userSGPRs, flags uint32) [2]uint32 {
	dimMask &= 7
	sgprs := userSGPRs + uint32(bits.OnesCount32(dimMask))
	if flags&SetupTGSizeEnabled != 0 {
		sgprs++
	}
	if flags&SetupScratchEnabled != 0 {
		sgprs++
	}
	var vgprs uint32
	switch {
	case dimMask&4 != 0:
		vgprs = 3
	case dimMask&2 != 0:
		vgprs = 2
	case dimMask&1 != 0:
		vgprs = 1
	}
	return [2]uint32{sgprs, vgprs}
}
