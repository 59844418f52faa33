package asm

import (
	"fmt"
	"math"
)

// SectionID indexes the assembler's section list
type SectionID uint32

const (
	// SectionAbs marks absolute values that belong to no section
	SectionAbs SectionID = math.MaxUint32
	// SectionNone marks a section that does not exist (yet)
	SectionNone SectionID = math.MaxUint32 - 1
)

// KernelID identifies a kernel or one of the two non-kernel namespaces
type KernelID int

const (
	KernelGlobal KernelID = -1
	KernelInner  KernelID = -2
)

// IsKernel reports whether k refers to a concrete kernel
func (k KernelID) IsKernel() bool {
	return k >= 0
}

func (k KernelID) String() string {
	switch k {
	case KernelGlobal:
		return "global"
	case KernelInner:
		return "inner"
	default:
		return fmt.Sprintf("kernel#%d", int(k))
	}
}

// SectionKind is the role a section plays in the output binary
type SectionKind int

const (
	KindCode SectionKind = iota
	KindConfig
	KindData
	KindRWData
	KindBss
	KindSamplerInit
	KindMetadata
	KindIsaMetadata
	KindSetup
	KindStub
	KindControlDirective
	KindExtra
	KindExtraProgbits
	KindExtraNote
	KindExtraNobits
)

func (k SectionKind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindConfig:
		return "config"
	case KindData:
		return "data"
	case KindRWData:
		return "rwdata"
	case KindBss:
		return "bss"
	case KindSamplerInit:
		return "samplerinit"
	case KindMetadata:
		return "metadata"
	case KindIsaMetadata:
		return "isametadata"
	case KindSetup:
		return "setup"
	case KindStub:
		return "stub"
	case KindControlDirective:
		return "control_directive"
	case KindExtra:
		return "extra"
	case KindExtraProgbits:
		return "progbits"
	case KindExtraNote:
		return "note"
	case KindExtraNobits:
		return "nobits"
	default:
		return "unknown"
	}
}

// IsExtra reports whether k is one of the user-defined section kinds
func (k SectionKind) IsExtra() bool {
	return k >= KindExtra
}

// SectionFlags describe how the assembler may treat a section
type SectionFlags uint32

const (
	FlagAddressable SectionFlags = 1 << iota
	FlagWriteable
	FlagAbsAddressable
	FlagUnresolvable
)

// Section attribute flags taken from `.section name, "awx"`
const (
	AttrAlloc uint32 = 1 << iota
	AttrWrite
	AttrExec
)

// SectionInfo is what a format handler reports about one of its sections
type SectionInfo struct {
	Name  string
	Kind  SectionKind
	Flags SectionFlags
}

// Section is the byte storage of one section
type Section struct {
	Name      string
	Kernel    KernelID
	Kind      SectionKind
	Attrs     uint32
	Alignment uint64
	Content   []byte
	// Size is used instead of Content for sections holding no bytes (bss)
	Size uint64
}
