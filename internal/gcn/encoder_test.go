package gcn

import (
	"encoding/binary"
	"testing"

	"github.com/xyproto/gcnasm/internal/asm"
	"github.com/xyproto/gcnasm/internal/gpu"
)

// codeHandler exposes a single code section and a ".data" section
type codeHandler struct {
	a       *asm.Assembler
	targets []asm.Target
}

func newCodeHandler(a *asm.Assembler) asm.FormatHandler {
	h := &codeHandler{a: a}
	a.SetCursor(asm.KernelGlobal, a.NewSection(".text", asm.KernelGlobal, asm.KindCode))
	return h
}

func (h *codeHandler) AddKernel(string) (asm.KernelID, error) {
	return 0, asm.Errorf(asm.CategoryPlacement, "no kernels")
}

func (h *codeHandler) AddSection(name string, kernel asm.KernelID) (asm.SectionID, error) {
	id := h.a.NewSection(name, kernel, asm.KindData)
	h.a.SetCursor(kernel, id)
	return id, nil
}

func (h *codeHandler) SectionID(name string) (asm.SectionID, bool) {
	for i := 0; i < h.a.SectionCount(); i++ {
		if h.a.Section(asm.SectionID(i)).Name == name {
			return asm.SectionID(i), true
		}
	}
	return asm.SectionNone, false
}

func (h *codeHandler) SetCurrentKernel(asm.KernelID) error { return nil }

func (h *codeHandler) SetCurrentSection(id asm.SectionID) error {
	h.a.SetCursor(asm.KernelGlobal, id)
	return nil
}

func (h *codeHandler) SectionInfo(id asm.SectionID) (asm.SectionInfo, error) {
	s := h.a.Section(id)
	if s == nil {
		return asm.SectionInfo{}, asm.Errorf(asm.CategoryInternal, "bad section")
	}
	flags := asm.FlagAddressable | asm.FlagWriteable
	if s.Kind == asm.KindData {
		flags |= asm.FlagUnresolvable
	}
	return asm.SectionInfo{Name: s.Name, Kind: s.Kind, Flags: flags}, nil
}

func (h *codeHandler) ParseDirective(string, string, asm.SourceLocation) bool { return false }
func (h *codeHandler) DirectiveNames() []string { return nil }
func (h *codeHandler) PrepareBinary() bool { return true }

func (h *codeHandler) ResolveRelocation(expr asm.Expr, target asm.Target) (uint64, asm.SectionID, bool) {
	h.targets = append(h.targets, target)
	return 0x55555555, asm.SectionAbs, true
}

func assemble(t *testing.T, arch gpu.Architecture, source string) (*asm.Assembler, *Encoder) {
	t.Helper()
	enc := New(arch)
	a := asm.New(asm.Options{}, newCodeHandler, enc)
	if !a.Assemble("test.s", source) {
		t.Fatalf("Assemble failed:\n%s", a.Errors().Report(false))
	}
	return a, enc
}

func words(content []byte) []uint32 {
	out := make([]uint32, len(content)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(content[i*4:])
	}
	return out
}

func TestEncodeInstructions(t *testing.T) {
	tests := []struct {
		name   string
		arch   gpu.Architecture
		source string
		want   []uint32
	}{
		{"s_endpgm", gpu.GCN1_2, "s_endpgm", []uint32{0xbf810000}},
		{"s_nop", gpu.GCN1_2, "s_nop 3", []uint32{0xbf800003}},
		{"s_mov inline", gpu.GCN1_2, "s_mov_b32 s2, 5", []uint32{0xbe820085}},
		{"s_mov negative inline", gpu.GCN1_2, "s_mov_b32 s0, -1", []uint32{0xbe8000c1}},
		{"s_mov gcn1.0 opcode", gpu.GCN1_0, "s_mov_b32 s1, s0", []uint32{0xbe810300}},
		{"s_mov literal", gpu.GCN1_2, "s_mov_b32 s1, 0x12345678", []uint32{0xbe8100ff, 0x12345678}},
		{"s_mov m0", gpu.GCN1_2, "s_mov_b32 m0, -16", []uint32{0xbefc00d0}},
		{"s_add", gpu.GCN1_2, "s_add_u32 s4, s5, 64", []uint32{0x8004c005}},
		{"v_mov vgpr", gpu.GCN1_2, "v_mov_b32 v1, v0", []uint32{0x7e020300}},
		{"v_mov sgpr", gpu.GCN1_2, "V_MOV_B32 v3, s7", []uint32{0x7e060207}},
		{"v_mov literal", gpu.GCN1_2, "v_mov_b32 v0, 1000", []uint32{0x7e0002ff, 1000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := assemble(t, tt.arch, tt.source)
			got := words(a.Section(0).Content)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d words %x, want %x", len(got), got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("word %d = %#08x, want %#08x", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRegisterTracking(t *testing.T) {
	_, enc := assemble(t, gpu.GCN1_2, `
        s_mov_b32 s9, s3
        v_mov_b32 v4, vcc_lo
        s_endpgm
`)
	regs, flags := enc.AllocatedRegisters()
	if regs[0] != 10 || regs[1] != 5 {
		t.Errorf("AllocatedRegisters() = %v, want [10 5]", regs)
	}
	if flags&FlagVCCUsed == 0 {
		t.Error("VCC usage not recorded")
	}

	enc.SetAllocatedRegisters(nil, 0)
	regs, flags = enc.AllocatedRegisters()
	if regs[0] != 0 || regs[1] != 0 || flags != 0 {
		t.Errorf("reset gave %v, %d", regs, flags)
	}
}

func TestLiteralRelocationTarget(t *testing.T) {
	a, _ := assemble(t, gpu.GCN1_2, `
        .section .data
buf:    .int 0
        .section .text
        s_nop 0
        s_mov_b32 s0, buf & 0xffffffff
`)
	h := a.Handler().(*codeHandler)
	if len(h.targets) != 1 {
		t.Fatalf("ResolveRelocation called %d times, want 1", len(h.targets))
	}
	if tgt := h.targets[0]; tgt.Kind != asm.TargetLiteral || tgt.Offset != 4 {
		t.Errorf("target = %+v, want literal at instruction offset 4", tgt)
	}
	if got := words(a.Section(0).Content); got[2] != 0x55555555 {
		t.Errorf("literal = %#x, want placeholder", got[2])
	}
	if !New(gpu.GCN1_2).RelocationFits(32, asm.TargetLiteral) {
		t.Error("32-bit literal should fit a relocation")
	}
	if New(gpu.GCN1_2).RelocationFits(32, asm.TargetData64) {
		t.Error("64-bit data should not fit")
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []string{
		"s_mov_b32 v0, 1",
		"s_mov_b32 s200, 1",
		"s_mov_b32 s0, v1",
		"s_nop 99",
		"s_endpgm 1",
		"v_bogus v0, v1",
		"s_add_u32 s0, 100, 200",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			a := asm.New(asm.Options{}, newCodeHandler, New(gpu.GCN1_2))
			if a.Assemble("test.s", src) {
				t.Errorf("Assemble(%q) should fail", src)
			}
		})
	}
}
