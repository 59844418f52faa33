package amdcl2

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/xyproto/gcnasm/internal/asm"
	"github.com/xyproto/gcnasm/internal/gpu"
)

func TestSGPRCeiling(t *testing.T) {
	assembleError(t, testOpts, ".kernel k\n.config\n.usegeneric\n.sgprsnum 100",
		"Number of total SGPRs for kernel 'k' is too high (max 102)")
	assembleError(t, testOpts, ".kernel k\n.config\n.sgprsnum 101",
		"Number of total SGPRs for kernel 'k' is too high (max 102)")

	tests := []struct {
		name   string
		opts   asm.Options
		source string
		want   uint32
	}{
		{"explicit at limit", testOpts, ".kernel k\n.config\n.useenqueue\n.sgprsnum 96", 96},
		{"default clamped", testOpts, ".kernel k\n.config\n.text\ns_mov_b32 s101, 0", 100},
		{"default clamped with enqueue", testOpts, ".kernel k\n.config\n.useenqueue\n.text\ns_mov_b32 s101, 0", 96},
		{"gcn1.0 extra", asm.Options{Device: gpu.Tahiti, DriverVersion: 200406},
			".kernel k\n.config\n.usegeneric\n.text\ns_mov_b32 s103, 0", 100},
		{"user sgprs", testOpts, ".kernel k\n.config\n.usegeneric\n.dims xyz\n.tgsize", 16},
		{"dims from pgmrsrc2", testOpts, ".kernel k\n.config\n.useargs\n.pgmrsrc2 0x180", 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := assemble(t, tt.opts, tt.source)
			if got := h.Output().Kernels[0].Config.Legacy().UsedSGPRsNum; got != tt.want {
				t.Errorf("UsedSGPRsNum = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestControlDirective(t *testing.T) {
	h := assemble(t, testOpts, `
        .kernel k
        .hsaconfig
        .control_directive
        .fill 128, 1, 0x11
        .text
        s_endpgm
`)
	k := h.Output().Kernels[0]
	c := k.Config.HSA()
	if c == nil {
		t.Fatal("no HSA record")
	}
	if !bytes.Equal(c.ControlDirective, bytes.Repeat([]byte{0x11}, 128)) {
		t.Errorf("ControlDirective = %x", c.ControlDirective)
	}

	h = assemble(t, testOpts, ".kernel k\n.control_directive\n.skip 128")
	if k := h.Output().Kernels[0]; k.UseConfig || k.Config.HSA() == nil || len(k.Config.HSA().ControlDirective) != 128 {
		t.Errorf("control directive without config: %+v", k)
	}

	assembleError(t, testOpts, ".kernel k1\n.hsaconfig\n.control_directive\n.fill 100, 1, 0",
		"Section '.control_directive' for kernel 'k1' have wrong size")
}

func TestForcedSymbols(t *testing.T) {
	source := `
        .globl absv, gsym, isym, csym, asym
absv = 42
        .globaldata
        .int 0
gsym:   .int 1
        .inner
        .section .isect
isym:   .int 0
        .main
        .section .gsect
asym:   .byte 0
        .kernel k1
        .config
        .text
        s_endpgm
        .kernel k2
        .config
        .text
        s_nop 0
csym:   s_endpgm
local1: s_endpgm
`
	opts := testOpts
	opts.ForceAddSymbols = true
	out := assemble(t, opts, source).Output()

	find := func(syms []BinSymbol, name string) *BinSymbol {
		for i := range syms {
			if syms[i].Name == name {
				return &syms[i]
			}
		}
		return nil
	}
	tests := []struct {
		name    string
		inner   bool
		value   uint64
		section BinSectID
	}{
		{"absv", false, 42, BinSectAbs},
		{"asym", false, 0, 0},
		{"gsym", true, 4, BinSectRodata},
		{"isym", true, 0, 0},
		// k1 takes 256 bytes of header and its code padded to 256
		{"csym", true, 256 + 256 + 256 + 4, BinSectText},
	}
	for _, tt := range tests {
		list := out.ExtraSymbols
		if tt.inner {
			list = out.InnerExtraSymbols
		}
		sym := find(list, tt.name)
		if sym == nil {
			t.Errorf("symbol %s missing (inner=%v)", tt.name, tt.inner)
			continue
		}
		if sym.Value != tt.value || sym.Section != tt.section || sym.Binding != asm.BindGlobal {
			t.Errorf("symbol %s = %+v, want value %d section %d", tt.name, *sym, tt.value, tt.section)
		}
	}
	if find(out.InnerExtraSymbols, "local1") != nil || find(out.ExtraSymbols, "local1") != nil {
		t.Error("local symbol copied")
	}
	if n := len(out.ExtraSymbols) + len(out.InnerExtraSymbols); n != len(tests) {
		t.Errorf("got %d symbols, want %d", n, len(tests))
	}

	out = assemble(t, testOpts, source).Output()
	if len(out.ExtraSymbols) != 0 || len(out.InnerExtraSymbols) != 0 {
		t.Errorf("symbols copied without ForceAddSymbols: %+v %+v", out.ExtraSymbols, out.InnerExtraSymbols)
	}
}

func TestPrepareBinary(t *testing.T) {
	h := assemble(t, testOpts, `
        .acl_version "AMD-COMP-LIB-v0.8 (0.0.SC_BUILD_NUMBER)"
        .globaldata
table:  .int 10, 20, 30
        .kernel add
        .config
        .dims x
        .setupargs
        .arg n, "uint", uint
        .arg out, "float*", float*, global, , wronly
        .text
        s_mov_b32 s4, table
        v_mov_b32 v1, v0
        s_endpgm
        .kernel scale
        .hsaconfig
        .dims xy
        .use_kernarg_segment_ptr
        .text
        s_mov_b32 s0, table+8
        s_endpgm
`)
	if h.KernelCount() != 2 {
		t.Fatalf("KernelCount() = %d", h.KernelCount())
	}
	out := h.Output()
	if !out.Is64Bit || out.DeviceType != gpu.Fiji || out.DriverVersion != 200406 {
		t.Errorf("header = 64bit %v device %v driver %d", out.Is64Bit, out.DeviceType, out.DriverVersion)
	}
	if len(out.GlobalData) != 12 {
		t.Errorf("GlobalData = %v", out.GlobalData)
	}

	add := out.Kernels[0]
	if add.Name != "add" || !add.UseConfig || len(add.Code) != 16 {
		t.Errorf("add = %+v", add)
	}
	if len(add.Config.Args) != 8 || add.Config.Args[6].Name != "n" {
		t.Fatalf("add args = %+v", add.Config.Args)
	}
	if arg := add.Config.Args[7]; arg.Type != ArgPointer || arg.PointeeType != ArgFloat ||
		arg.Space != SpaceGlobal || arg.Access != 0 || arg.Used != UsedWrite {
		t.Errorf("out arg = %+v", arg)
	}
	if c := add.Config.Legacy(); c.UsedSGPRsNum != 5 || c.UsedVGPRsNum != 2 {
		t.Errorf("add registers = %d/%d, want 5/2", c.UsedSGPRsNum, c.UsedVGPRsNum)
	}
	if len(add.Relocations) != 1 || add.Relocations[0].Offset != 4 || add.Relocations[0].Addend != 0 {
		t.Errorf("add relocations = %+v", add.Relocations)
	}

	scale := out.Kernels[1]
	c := scale.Config.HSA()
	if c == nil {
		t.Fatalf("scale record = %#v", scale.Config.Record)
	}
	if c.UsedSGPRsNum != 4 || c.UsedVGPRsNum != 2 || c.WavefrontSgprCount != 4 {
		t.Errorf("scale registers = %d/%d/%d, want 4/2/4", c.UsedSGPRsNum, c.UsedVGPRsNum, c.WavefrontSgprCount)
	}
	if len(scale.Relocations) != 1 || scale.Relocations[0].Addend != 8 {
		t.Errorf("scale relocations = %+v", scale.Relocations)
	}
}

func TestPrepareBinaryTwice(t *testing.T) {
	opts := testOpts
	opts.ForceAddSymbols = true
	h := assemble(t, opts, `
        .globl g, i
        .section .gx
g:      .int 1
        .inner
        .section .ix
i:      .int 2
        .kernel k
        .config
        .text
        s_endpgm
`)
	out := h.Output()
	counts := func() [4]int {
		return [4]int{len(out.ExtraSections), len(out.InnerExtraSections),
			len(out.ExtraSymbols), len(out.InnerExtraSymbols)}
	}
	first := counts()
	if first != [4]int{1, 1, 1, 1} {
		t.Fatalf("after first pass: %v", first)
	}
	if !h.PrepareBinary() {
		t.Fatal("second PrepareBinary failed")
	}
	if second := counts(); second != first {
		t.Errorf("after second pass: %v, want %v", second, first)
	}
	if c := out.Kernels[0].Config.Legacy(); c.UsedSGPRsNum != 4 || c.UsedVGPRsNum != 0 {
		t.Errorf("registers after second pass = %d/%d, want 4/0", c.UsedSGPRsNum, c.UsedVGPRsNum)
	}
}

func TestTwoKernelsWithPointerArg(t *testing.T) {
	const kernel = `
        .kernel %[1]s
        .%[2]s
        .sgprsnum 8
        .vgprsnum 4
        .arg buf, "float*", float*, global
        .text
        s_endpgm
`
	registers := func(c *KernelConfig) (uint32, uint32) {
		switch r := c.Record.(type) {
		case *LegacyConfig:
			return r.UsedSGPRsNum, r.UsedVGPRsNum
		case *HSAConfig:
			return r.UsedSGPRsNum, r.UsedVGPRsNum
		}
		return 0, 0
	}
	for _, dialect := range []string{"config", "hsaconfig"} {
		t.Run(dialect, func(t *testing.T) {
			source := fmt.Sprintf(kernel, "k1", dialect) + fmt.Sprintf(kernel, "k2", dialect)
			out := assemble(t, testOpts, source).Output()
			if len(out.Kernels) != 2 {
				t.Fatalf("got %d kernels, want 2", len(out.Kernels))
			}
			for _, k := range out.Kernels {
				if !k.UseConfig || k.Config.Record == nil {
					t.Errorf("%s has no config", k.Name)
					continue
				}
				if len(k.Config.Args) != 1 || k.Config.Args[0].Type != ArgPointer || k.Config.Args[0].Space != SpaceGlobal {
					t.Errorf("%s args = %+v, want one global pointer", k.Name, k.Config.Args)
				}
				if sgprs, vgprs := registers(k.Config); sgprs != 8 || vgprs != 4 {
					t.Errorf("%s registers = %d/%d, want 8/4", k.Name, sgprs, vgprs)
				}
				if len(k.Code) != 4 {
					t.Errorf("%s code = %x", k.Name, k.Code)
				}
				if k.Relocations == nil || len(k.Relocations) != 0 {
					t.Errorf("%s relocations = %#v, want empty", k.Name, k.Relocations)
				}
			}
		})
	}
}
