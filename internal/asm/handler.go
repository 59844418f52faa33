package asm

import "errors"

// TargetKind is the shape of the place a value is written to
type TargetKind int

const (
	TargetData8 TargetKind = iota
	TargetData16
	TargetData32
	TargetData64
	// TargetLiteral is the 32-bit literal that follows an instruction word
	TargetLiteral
)

// Target is where an expression value is going to be stored
type Target struct {
	Section SectionID
	Offset  uint64
	Kind    TargetKind
	Pos     SourceLocation
}

// RelocType selects which half of a 64-bit address is patched
type RelocType int

const (
	RelocLow32 RelocType = iota
	RelocHigh32
)

func (t RelocType) String() string {
	if t == RelocHigh32 {
		return "high32"
	}
	return "low32"
}

// Relocation is a patch the loader applies to a section
type Relocation struct {
	Section    SectionID
	Offset     uint64
	Type       RelocType
	RelSection SectionID
	Addend     uint64
}

// FormatHandler owns the kernel and section layout of one binary format.
// The assembler calls it for namespace changes, for directives it does not
// know itself and for values that need a relocation.
type FormatHandler interface {
	AddKernel(name string) (KernelID, error)
	AddSection(name string, kernel KernelID) (SectionID, error)
	SectionID(name string) (SectionID, bool)
	SetCurrentKernel(kernel KernelID) error
	SetCurrentSection(id SectionID) error
	SectionInfo(id SectionID) (SectionInfo, error)

	// ParseDirective handles a directive (name without the leading dot).
	// It returns false when the name is not a directive of this format.
	ParseDirective(name, args string, loc SourceLocation) bool
	DirectiveNames() []string

	ResolveRelocation(expr Expr, target Target) (uint64, SectionID, bool)
	PrepareBinary() bool
}

// HandlerFactory creates the format handler bound to an assembler
type HandlerFactory func(a *Assembler) FormatHandler

// ErrReported is returned by an encoder after it already reported the
// problem through the assembler.
var ErrReported = errors.New("error already reported")

// ISAEncoder translates instructions into machine code and tracks the
// highest registers used by the current kernel.
type ISAEncoder interface {
	Encode(a *Assembler, mnemonic, operands string, loc SourceLocation) error
	AllocatedRegisters() ([]uint32, uint32)
	// SetAllocatedRegisters restores a snapshot; nil regs resets to empty
	SetAllocatedRegisters(regs []uint32, flags uint32)
	RelocationFits(bits int, kind TargetKind) bool
}
