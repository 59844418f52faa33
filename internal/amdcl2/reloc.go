package amdcl2

import "github.com/xyproto/gcnasm/internal/asm"

// relocPlaceholder is written where the loader patches a relocation
const relocPlaceholder = 0x55555555

// ResolveRelocation turns a 32-bit code operand referring to rodata, data
// or bss into a relocation. Only the whole address, its low half
// (`x & 0xffffffff`, `x % 0x100000000`) and its high half
// (`x / 0x100000000`, `x >> 32`) can be expressed.
func (h *Handler) ResolveRelocation(expr asm.Expr, target asm.Target) (uint64, asm.SectionID, bool) {
	fail := func(format string, args ...any) (uint64, asm.SectionID, bool) {
		h.a.Error(target.Pos, asm.CategoryRelocation, format, args...)
		return 0, asm.SectionAbs, false
	}
	enc := h.a.Encoder()
	if target.Kind != asm.TargetData32 && (enc == nil || !enc.RelocationFits(32, target.Kind)) {
		return fail("Can't resolve expression for non 32-bit integer")
	}
	if int(target.Section) >= len(h.sections) || h.sections[target.Section].kind != asm.KindCode {
		return fail("Can't resolve expression outside code section")
	}

	relType := asm.RelocLow32
	base := expr
	if be, ok := expr.(*asm.BinaryExpr); ok {
		switch be.Op {
		case asm.OpAnd, asm.OpMod, asm.OpSignedMod, asm.OpDiv, asm.OpSignedDiv, asm.OpShr:
			arg, sect, err := be.Right.Evaluate(h.a)
			if err != nil {
				return fail("%v", err)
			}
			if sect != asm.SectionAbs {
				return fail("Second argument for relocation operand must be absolute")
			}
			var good bool
			switch be.Op {
			case asm.OpAnd:
				good = arg&0xffffffff == 0xffffffff
			case asm.OpMod, asm.OpSignedMod:
				good = arg>>32 != 0 && arg&0xffffffff == 0
			case asm.OpDiv, asm.OpSignedDiv:
				good = arg == 1<<32
				relType = asm.RelocHigh32
			case asm.OpShr:
				good = arg == 32
				relType = asm.RelocHigh32
			}
			if !good {
				return fail("Can't resolve relocation for this expression")
			}
			base = be.Left
		}
	}

	value, sect, err := base.Evaluate(h.a)
	if err != nil {
		return fail("%v", err)
	}
	if sect == asm.SectionAbs || (sect != h.rodata && sect != h.data && sect != h.bss) {
		return fail("Section of this expression must be a global data, rwdata or bss")
	}

	offset := target.Offset
	if target.Kind != asm.TargetData32 {
		offset += 4
	}
	h.a.AddRelocation(asm.Relocation{
		Section:    target.Section,
		Offset:     offset,
		Type:       relType,
		RelSection: sect,
		Addend:     value,
	})
	h.a.Logf("relocation %v at %s+0x%x -> %s+0x%x", relType,
		h.sections[target.Section].name, offset, h.sections[sect].name, value)
	return relocPlaceholder, asm.SectionAbs, true
}
