package amdcl2

import (
	"math"

	"github.com/xyproto/gcnasm/internal/asm"
	"github.com/xyproto/gcnasm/internal/gpu"
)

// ELF section types and flags of extra sections
const (
	SHT_PROGBITS = 1
	SHT_NOTE     = 7
	SHT_NOBITS   = 8

	SHF_WRITE     = 0x1
	SHF_ALLOC     = 0x2
	SHF_EXECINSTR = 0x4
)

// BinSectID identifies a section of the emitted binary. Extra sections
// are numbered from zero in creation order within their namespace.
type BinSectID uint32

const (
	BinSectUndef BinSectID = math.MaxUint32 - iota
	BinSectAbs
	BinSectRodata
	BinSectData
	BinSectBss
	BinSectText
)

// Relocation symbol classes of KernelRelocation.Symbol
const (
	RelSymRodata = 0
	RelSymData   = 1
	RelSymBss    = 2
)

// Output is the in-memory model of one CL2 binary
type Output struct {
	Is64Bit    bool
	DeviceType gpu.DeviceType

	// ArchMinor and ArchStepping are math.MaxUint32 when not set
	ArchMinor    uint32
	ArchStepping uint32

	DriverVersion  uint32
	ACLVersion     string
	CompileOptions string

	GlobalData   []byte
	RWData       []byte
	BssSize      uint64
	BssAlignment uint64

	SamplerInit    []byte
	SamplerConfig  bool
	Samplers       []uint32
	SamplerOffsets []uint64

	Kernels []KernelOutput

	ExtraSections      []ExtraSection
	InnerExtraSections []ExtraSection
	ExtraSymbols       []BinSymbol
	InnerExtraSymbols  []BinSymbol
}

// KernelOutput holds everything emitted for one kernel
type KernelOutput struct {
	Name      string
	UseConfig bool
	Config    *KernelConfig

	Code        []byte
	Metadata    []byte
	IsaMetadata []byte
	Setup       []byte
	Stub        []byte

	Relocations []KernelRelocation
}

// KernelRelocation is a code relocation against rodata, data or bss
type KernelRelocation struct {
	Offset uint64
	Type   asm.RelocType
	Symbol uint32
	Addend uint64
}

// ExtraSection is a user-defined section copied into the binary
type ExtraSection struct {
	Name      string
	Data      []byte
	Size      uint64
	Alignment uint64
	Type      uint32
	Flags     uint32
}

// BinSymbol is a symbol copied into the binary in force-add mode
type BinSymbol struct {
	Name    string
	Value   uint64
	Size    uint64
	Section BinSectID
	Binding asm.Binding
}

func newOutput() Output {
	return Output{
		ArchMinor:    math.MaxUint32,
		ArchStepping: math.MaxUint32,
	}
}

func copyBytes(b []byte) []byte {
	return append([]byte{}, b...)
}
