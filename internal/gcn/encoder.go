// Package gcn encodes a small subset of the AMD GCN instruction set. It is
// enough to produce real kernel code, literal relocations and register
// usage counts for the binary format handlers.
package gcn

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/xyproto/gcnasm/internal/asm"
	"github.com/xyproto/gcnasm/internal/gpu"
)

// Register usage flags returned by AllocatedRegisters
const (
	FlagVCCUsed uint32 = 1 << iota
	FlagExecUsed
)

// Operand codes shared by the scalar and vector source fields
const (
	srcVCCLo    = 106
	srcVCCHi    = 107
	srcM0       = 124
	srcExecLo   = 126
	srcExecHi   = 127
	srcLiteral  = 255
	srcVGPRBase = 256
)

// Encoder implements asm.ISAEncoder for one GCN generation
type Encoder struct {
	arch  gpu.Architecture
	sgprs uint32
	vgprs uint32
	flags uint32
}

// New creates an encoder for the architecture
func New(arch gpu.Architecture) *Encoder {
	return &Encoder{arch: arch}
}

// AllocatedRegisters returns {sgprs, vgprs} and usage flags
func (e *Encoder) AllocatedRegisters() ([]uint32, uint32) {
	return []uint32{e.sgprs, e.vgprs}, e.flags
}

func (e *Encoder) SetAllocatedRegisters(regs []uint32, flags uint32) {
	e.sgprs, e.vgprs, e.flags = 0, 0, flags
	if len(regs) > 0 {
		e.sgprs = regs[0]
	}
	if len(regs) > 1 {
		e.vgprs = regs[1]
	}
}

// RelocationFits reports whether a relocation can patch the target
func (e *Encoder) RelocationFits(bits int, kind asm.TargetKind) bool {
	return bits == 32 && kind == asm.TargetLiteral
}

type operand struct {
	code    uint32
	literal asm.Expr
	loc     asm.SourceLocation
}

func (e *Encoder) Encode(a *asm.Assembler, mnemonic, operands string, loc asm.SourceLocation) error {
	r := a.NewArgReader(operands, loc)
	word, lit, err := e.encode(a, r, mnemonic)
	if err != nil {
		return err
	}
	if !r.AtEnd() {
		return asm.Errorf(asm.CategorySyntax, "Garbages at end of line")
	}

	target := asm.Target{
		Section: a.CurrentSection(),
		Offset:  a.Offset(),
		Kind:    asm.TargetLiteral,
		Pos:     lit.loc,
	}
	buf := make([]byte, 4, 8)
	binary.LittleEndian.PutUint32(buf, word)
	if lit.literal != nil {
		v, _ := a.ResolveValue(lit.literal, target)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(a.WarnTruncated(v, 32, lit.loc)))
	}
	a.Write(loc, buf)
	return nil
}

func (e *Encoder) encode(a *asm.Assembler, r *asm.ArgReader, mnemonic string) (uint32, operand, error) {
	switch mnemonic {
	case "s_endpgm":
		return 0xbf810000, operand{}, nil
	case "s_nop":
		v, ok := r.AbsValue()
		if !ok {
			return 0, operand{}, asm.ErrReported
		}
		if v > 15 {
			return 0, operand{}, asm.Errorf(asm.CategoryRange, "s_nop count out of range (0-15)")
		}
		return 0xbf800000 | uint32(v), operand{}, nil
	case "s_mov_b32":
		dst, err := e.scalarDest(r)
		if err != nil {
			return 0, operand{}, err
		}
		src, err := e.source(a, r, false)
		if err != nil {
			return 0, operand{}, err
		}
		op := uint32(3)
		if e.arch >= gpu.GCN1_2 {
			op = 0
		}
		return 0xbe800000 | dst<<16 | op<<8 | src.code, src, nil
	case "s_add_u32":
		dst, err := e.scalarDest(r)
		if err != nil {
			return 0, operand{}, err
		}
		src0, err := e.source(a, r, false)
		if err != nil {
			return 0, operand{}, err
		}
		if !r.Skip(',') {
			return 0, operand{}, asm.Errorf(asm.CategorySyntax, "Expected ',' before second source")
		}
		src1, err := e.source(a, r, false)
		if err != nil {
			return 0, operand{}, err
		}
		if src0.literal != nil && src1.literal != nil {
			return 0, operand{}, asm.Errorf(asm.CategorySyntax, "Only one literal can be used in instruction")
		}
		lit := src0
		if lit.literal == nil {
			lit = src1
		}
		return 0x80000000 | dst<<16 | src1.code<<8 | src0.code, lit, nil
	case "v_mov_b32":
		dst, err := e.vectorDest(r)
		if err != nil {
			return 0, operand{}, err
		}
		src, err := e.source(a, r, true)
		if err != nil {
			return 0, operand{}, err
		}
		return 0x7e000000 | dst<<17 | 1<<9 | src.code, src, nil
	}
	return 0, operand{}, asm.Errorf(asm.CategorySyntax, "Unknown instruction '%s'", mnemonic)
}

func (e *Encoder) useSGPR(n uint32) {
	if n+1 > e.sgprs {
		e.sgprs = n + 1
	}
}

func (e *Encoder) useVGPR(n uint32) {
	if n+1 > e.vgprs {
		e.vgprs = n + 1
	}
}

func registerNumber(name string, prefix byte) (uint32, bool) {
	if len(name) < 2 || name[0] != prefix {
		return 0, false
	}
	n, err := strconv.ParseUint(name[1:], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func (e *Encoder) specialRegister(name string) (uint32, bool) {
	switch name {
	case "vcc_lo":
		e.flags |= FlagVCCUsed
		return srcVCCLo, true
	case "vcc_hi":
		e.flags |= FlagVCCUsed
		return srcVCCHi, true
	case "m0":
		return srcM0, true
	case "exec_lo":
		e.flags |= FlagExecUsed
		return srcExecLo, true
	case "exec_hi":
		e.flags |= FlagExecUsed
		return srcExecHi, true
	}
	return 0, false
}

func (e *Encoder) scalarDest(r *asm.ArgReader) (uint32, error) {
	name := strings.ToLower(r.Name())
	if code, ok := e.specialRegister(name); ok {
		return code, expectComma(r)
	}
	n, ok := registerNumber(name, 's')
	if !ok {
		return 0, asm.Errorf(asm.CategorySyntax, "Expected scalar register")
	}
	if n >= gpu.MaxRegisters(e.arch, gpu.RegSGPR) {
		return 0, asm.Errorf(asm.CategoryRange, "Scalar register number out of range")
	}
	e.useSGPR(n)
	return n, expectComma(r)
}

func (e *Encoder) vectorDest(r *asm.ArgReader) (uint32, error) {
	n, ok := registerNumber(strings.ToLower(r.Name()), 'v')
	if !ok {
		return 0, asm.Errorf(asm.CategorySyntax, "Expected vector register")
	}
	if n >= gpu.MaxRegisters(e.arch, gpu.RegVGPR) {
		return 0, asm.Errorf(asm.CategoryRange, "Vector register number out of range")
	}
	e.useVGPR(n)
	return n, expectComma(r)
}

func expectComma(r *asm.ArgReader) error {
	if !r.Skip(',') {
		return asm.Errorf(asm.CategorySyntax, "Expected ',' after destination")
	}
	return nil
}

// source parses one source operand
func (e *Encoder) source(a *asm.Assembler, r *asm.ArgReader, vector bool) (operand, error) {
	rest := strings.ToLower(r.Rest())
	end := 0
	for end < len(rest) && asm.IsNameChar(rest[end]) {
		end++
	}
	word := rest[:end]

	if code, ok := e.specialRegister(word); ok {
		r.Name()
		return operand{code: code}, nil
	}
	if n, ok := registerNumber(word, 's'); ok {
		r.Name()
		if n >= gpu.MaxRegisters(e.arch, gpu.RegSGPR) {
			return operand{}, asm.Errorf(asm.CategoryRange, "Scalar register number out of range")
		}
		e.useSGPR(n)
		return operand{code: n}, nil
	}
	if n, ok := registerNumber(word, 'v'); ok {
		r.Name()
		if !vector {
			return operand{}, asm.Errorf(asm.CategorySyntax, "Vector register is illegal in scalar instruction")
		}
		if n >= gpu.MaxRegisters(e.arch, gpu.RegVGPR) {
			return operand{}, asm.Errorf(asm.CategoryRange, "Vector register number out of range")
		}
		e.useVGPR(n)
		return operand{code: srcVGPRBase + n}, nil
	}

	expr, loc, ok := r.Expr()
	if !ok {
		return operand{}, asm.ErrReported
	}
	if v, sect, err := expr.Evaluate(a); err == nil && sect == asm.SectionAbs {
		if s := int64(v); s >= 0 && s <= 64 {
			return operand{code: 128 + uint32(s)}, nil
		} else if s < 0 && s >= -16 {
			return operand{code: 192 + uint32(-s)}, nil
		}
	}
	return operand{code: srcLiteral, literal: expr, loc: loc}, nil
}
