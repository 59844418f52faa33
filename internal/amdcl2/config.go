package amdcl2

import "math"

// NotSupplied marks a numeric config field the source left unset. The
// finalizer computes a value for it.
const NotSupplied uint32 = math.MaxUint32

// DefaultDimMask makes the finalizer take the dimensions from pgmrsrc2
const DefaultDimMask uint32 = math.MaxUint32

// Dialect is the flavour of configuration record chosen for a kernel
type Dialect int

const (
	DialectUnset Dialect = iota
	DialectLegacy
	DialectHSA
)

func (d Dialect) String() string {
	switch d {
	case DialectLegacy:
		return "config"
	case DialectHSA:
		return "hsaconfig"
	default:
		return "unset"
	}
}

// ConfigRecord is either a *LegacyConfig or an *HSAConfig
type ConfigRecord interface {
	Dialect() Dialect
}

// KernelConfig is the per-kernel metadata shared by both dialects
type KernelConfig struct {
	Args              []KernelArg
	Samplers          []uint32
	ReqdWorkGroupSize [3]uint32
	DimMask           uint32
	Record            ConfigRecord `json:",omitempty"`
}

func newKernelConfig() *KernelConfig {
	return &KernelConfig{DimMask: DefaultDimMask}
}

// Legacy returns the legacy record or nil
func (c *KernelConfig) Legacy() *LegacyConfig {
	lc, _ := c.Record.(*LegacyConfig)
	return lc
}

// HSA returns the HSA record or nil
func (c *KernelConfig) HSA() *HSAConfig {
	hc, _ := c.Record.(*HSAConfig)
	return hc
}

// LegacyConfig is the AMD CL2 kernel setup record
type LegacyConfig struct {
	UsedSGPRsNum      uint32
	UsedVGPRsNum      uint32
	PgmRSRC1          uint32
	PgmRSRC2          uint32
	FloatMode         uint32
	Priority          uint32
	Exceptions        uint32
	LocalSize         uint32
	GDSSize           uint32
	ScratchBufferSize uint32

	TGSize         bool
	DebugMode      bool
	DX10Clamp      bool
	IEEEMode       bool
	PrivilegedMode bool
	UseArgs        bool
	UseSetup       bool
	UseEnqueue     bool
	UseGeneric     bool
}

// NewLegacyConfig returns a record with the driver defaults
func NewLegacyConfig() *LegacyConfig {
	return &LegacyConfig{
		UsedSGPRsNum: NotSupplied,
		UsedVGPRsNum: NotSupplied,
		FloatMode:    0xc0,
	}
}

func (*LegacyConfig) Dialect() Dialect { return DialectLegacy }

// userSGPRs returns the number of user SGPRs preloaded by the driver
func (c *LegacyConfig) userSGPRs() uint32 {
	switch {
	case c.UseGeneric:
		return 12
	case c.UseEnqueue:
		return 10
	case c.UseSetup:
		return 8
	case c.UseArgs:
		return 6
	default:
		return 4
	}
}

// EnableSgprRegisterFlags bits
const (
	SgprPrivateSegmentBuffer uint16 = 1 << iota
	SgprDispatchPtr
	SgprQueuePtr
	SgprKernargSegmentPtr
	SgprDispatchID
	SgprFlatScratchInit
	SgprPrivateSegmentSize

	// SgprGridWorkgroupCountShift is the position of the 3-bit x/y/z mask
	SgprGridWorkgroupCountShift = 7
)

// EnableFeatureFlags bits
const (
	FeatureOrderedAppendGDS uint16 = 1 << 0
	FeatureUsePtr64         uint16 = 1 << 3
	FeatureDynamicCallStack uint16 = 1 << 4
	FeatureDebugEnabled     uint16 = 1 << 5
	FeatureXNACKEnabled     uint16 = 1 << 6

	// FeaturePrivateElemSizeShift is the position of the 2-bit
	// log2(size)-1 field
	FeaturePrivateElemSizeShift = 1
)

// HSAConfig is the amd_kernel_code_t record of the HSA dialect
type HSAConfig struct {
	CodeVersionMajor uint32
	CodeVersionMinor uint32
	MachineKind      uint16
	MachineMajor     uint16
	MachineMinor     uint16
	MachineStepping  uint16

	KernelCodeEntryOffset    uint64
	KernelCodePrefetchOffset uint64
	KernelCodePrefetchSize   uint64
	MaxScratchBackingMemory  uint64

	ComputePgmRsrc1 uint32
	ComputePgmRsrc2 uint32

	EnableSgprRegisterFlags uint16
	EnableFeatureFlags      uint16

	WorkitemPrivateSegmentSize uint32
	WorkgroupGroupSegmentSize  uint32
	GDSSegmentSize             uint32
	KernargSegmentSize         uint64
	WorkgroupFbarrierCount     uint32

	WavefrontSgprCount uint16
	WorkitemVgprCount  uint16

	ReservedVgprFirst uint16
	ReservedVgprCount uint16
	ReservedSgprFirst uint16
	ReservedSgprCount uint16

	DebugWavefrontPrivateSegmentOffsetSgpr uint16
	DebugPrivateSegmentBufferSgpr          uint16

	// Alignments and the wavefront size are stored as log2
	KernargSegmentAlignment uint8
	GroupSegmentAlignment   uint8
	PrivateSegmentAlignment uint8
	WavefrontSize           uint8

	CallConvention            uint32
	RuntimeLoaderKernelSymbol uint64
	ControlDirective          []byte `json:",omitempty"`

	UsedSGPRsNum   uint32
	UsedVGPRsNum   uint32
	FloatMode      uint32
	Priority       uint32
	Exceptions     uint32
	TGSize         bool
	DebugMode      bool
	DX10Clamp      bool
	IEEEMode       bool
	PrivilegedMode bool
}

// NewHSAConfig returns a record with the defaults of amd_kernel_code_t
func NewHSAConfig() *HSAConfig {
	return &HSAConfig{
		CodeVersionMajor:        1,
		MachineKind:             1,
		KernelCodeEntryOffset:   256,
		KernargSegmentAlignment: 4,
		GroupSegmentAlignment:   4,
		PrivateSegmentAlignment: 4,
		WavefrontSize:           6,
		UsedSGPRsNum:            NotSupplied,
		UsedVGPRsNum:            NotSupplied,
		FloatMode:               0xc0,
	}
}

func (*HSAConfig) Dialect() Dialect { return DialectHSA }

// userSGPRs counts the SGPRs enabled by EnableSgprRegisterFlags
func (c *HSAConfig) userSGPRs() uint32 {
	f := c.EnableSgprRegisterFlags
	var n uint32
	if f&SgprPrivateSegmentBuffer != 0 {
		n += 4
	}
	for _, bit := range []uint16{SgprDispatchPtr, SgprQueuePtr, SgprKernargSegmentPtr, SgprDispatchID, SgprFlatScratchInit} {
		if f&bit != 0 {
			n += 2
		}
	}
	if f&SgprPrivateSegmentSize != 0 {
		n++
	}
	for d := 0; d < 3; d++ {
		if f&(1<<(SgprGridWorkgroupCountShift+d)) != 0 {
			n++
		}
	}
	return n
}

// SetGridWorkgroupCount replaces the x/y/z mask and keeps the other bits
func (c *HSAConfig) SetGridWorkgroupCount(dimMask uint32) {
	const mask = uint16(7) << SgprGridWorkgroupCountShift
	c.EnableSgprRegisterFlags = c.EnableSgprRegisterFlags&^mask |
		uint16(dimMask&7)<<SgprGridWorkgroupCountShift
}

// SetPrivateElemSize packs a private element size of 2, 4, 8 or 16 bytes
func (c *HSAConfig) SetPrivateElemSize(log2Size uint) {
	const mask = uint16(3) << FeaturePrivateElemSizeShift
	c.EnableFeatureFlags = c.EnableFeatureFlags&^mask |
		uint16(log2Size-1)<<FeaturePrivateElemSizeShift&mask
}

func setFlag16(word *uint16, bit uint16, on bool) {
	if on {
		*word |= bit
	} else {
		*word &^= bit
	}
}
