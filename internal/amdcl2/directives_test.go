package amdcl2

import (
	"encoding/binary"
	"math"
	"sort"
	"strings"
	"testing"

	"github.com/xyproto/gcnasm/internal/asm"
)

func TestDirectiveTable(t *testing.T) {
	names := make([]string, len(directives))
	for i, d := range directives {
		names[i] = d.name
	}
	if !sort.StringsAreSorted(names) {
		t.Fatal("directive table is not sorted")
	}
	for i := 1; i < len(names); i++ {
		if names[i] == names[i-1] {
			t.Errorf("duplicate directive %q", names[i])
		}
	}
	for _, name := range names {
		if _, ok := lookupDirective(name); !ok {
			t.Errorf("lookupDirective(%q) failed", name)
		}
	}
	for _, name := range []string{"", "foo", "configs", "aaa", "zzz"} {
		if _, ok := lookupDirective(name); ok {
			t.Errorf("lookupDirective(%q) should fail", name)
		}
	}

	_, h := newAssembler(testOpts)
	if !h.ParseDirective(".HSAConfig", "", asm.SourceLocation{}) {
		t.Error("ParseDirective should accept a dotted mixed-case name")
	}
	if h.ParseDirective("bogus", "", asm.SourceLocation{}) {
		t.Error("ParseDirective accepted an unknown name")
	}
	if got := len(h.DirectiveNames()); got != len(directives) {
		t.Errorf("DirectiveNames() has %d names, want %d", got, len(directives))
	}
}

func TestUnknownDirectiveSuggestion(t *testing.T) {
	a, _ := newAssembler(testOpts)
	if a.Assemble("test.s", ".kernel k\n.hsaconfg") {
		t.Fatal("unknown directive accepted")
	}
	errs := a.Errors().Errors()
	if len(errs) == 0 || !strings.Contains(errs[0].Message, "Unknown pseudo-op '.hsaconfg'") {
		t.Fatalf("errors = %+v", errs)
	}
	if !strings.Contains(errs[0].Context.Suggestion, ".hsaconfig") {
		t.Errorf("suggestion = %q", errs[0].Context.Suggestion)
	}
}

func TestHeaderDirectives(t *testing.T) {
	a, h := newAssembler(testOpts)
	ok := a.Assemble("test.s", `
        .acl_version "AMD-COMP-LIB-v0.8 (0.0.SC_BUILD_NUMBER)"
        .compile_options "-O3 -cl-std=CL2.0"
        .arch_minor 2
        .arch_stepping 0x100000001
`)
	if !ok {
		t.Fatalf("Assemble failed:\n%s", a.Errors().Report(false))
	}
	out := h.Output()
	if out.ACLVersion != "AMD-COMP-LIB-v0.8 (0.0.SC_BUILD_NUMBER)" || out.CompileOptions != "-O3 -cl-std=CL2.0" {
		t.Errorf("strings = %q, %q", out.ACLVersion, out.CompileOptions)
	}
	if out.ArchMinor != 2 || out.ArchStepping != 1 {
		t.Errorf("arch = %d.%d, want 2.1", out.ArchMinor, out.ArchStepping)
	}
	if a.Errors().WarningCount() != 1 {
		t.Errorf("got %d warnings, want 1 for the truncated stepping", a.Errors().WarningCount())
	}

	h = assemble(t, testOpts, "")
	if out := h.Output(); out.ArchMinor != math.MaxUint32 || out.ArchStepping != math.MaxUint32 {
		t.Errorf("unset arch = %d.%d, want the not-set marker", out.ArchMinor, out.ArchStepping)
	}
}

func TestDriverVersion(t *testing.T) {
	testRun := testOpts
	testRun.TestRun = true
	detected := testOpts
	detected.DriverVersion = 0

	tests := []struct {
		name   string
		opts   asm.Options
		source string
		want   uint32
	}{
		{"directive", testOpts, ".driver_version 234567", 234567},
		{"option", testOpts, "", 200406},
		{"detected", detected, "", 203603},
		{"test run", testRun, "", 0},
		{"test run directive", testRun, ".driver_version 191205", 191205},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, h := newAssembler(tt.opts)
			h.detect = func() uint32 { return 203603 }
			if !a.Assemble("test.s", tt.source) {
				t.Fatalf("Assemble failed:\n%s", a.Errors().Report(false))
			}
			if got := h.Output().DriverVersion; got != tt.want {
				t.Errorf("DriverVersion = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetDriverVersion(t *testing.T) {
	h := assemble(t, testOpts, `
        .get_driver_version dv
        .globaldata
        .int dv
`)
	if got := binary.LittleEndian.Uint32(h.Output().GlobalData); got != 200406 {
		t.Errorf("dv = %d, want 200406", got)
	}
	assembleError(t, testOpts, ".get_driver_version .", "Illegal symbol name")
	assembleError(t, testOpts, ".get_driver_version 12", "Illegal symbol name")
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"config outside kernel", ".config", "Kernel config can be defined only inside kernel"},
		{"metadata outside kernel", ".metadata", "Metadata can be defined only inside kernel"},
		{"mixed dialects", ".kernel k\n.config\n.hsaconfig", "Config and HSAConfig can't be mixed"},
		{"mixed dialects reversed", ".kernel k\n.hsaconfig\n.config", "Config and HSAConfig can't be mixed"},
		{"config after metadata", ".kernel k\n.metadata\n.config", "Config can't be defined if metadata,header,setup,stub section exists"},
		{"setup after config", ".kernel k\n.config\n.setup", "Setup can't be defined if configuration was defined"},
		{"config after control directive", ".kernel k\n.control_directive\n.config", "Config and Control directive can't be mixed"},
		{"metadata after control directive", ".kernel k\n.control_directive\n.fill 128, 1, 0\n.metadata",
			"Metadata can't be defined if control directive was defined"},
		{"setup after control directive", ".kernel k\n.control_directive\n.setup", "Setup can't be defined if control directive was defined"},
		{"control directive after config", ".kernel k\n.config\n.control_directive", "Config and Control directive can't be mixed"},
		{"value outside config", ".kernel k\n.sgprsnum 10", "Illegal place of configuration pseudo-op"},
		{"value in global", ".dims x", "Illegal place of configuration pseudo-op"},
		{"hsa value in legacy", ".kernel k\n.config\n.wavefront_size 64", "HSAConfig pseudo-op only in HSAConfig"},
		{"hsa flag in legacy", ".kernel k\n.config\n.use_ptr64", "HSAConfig pseudo-op only in HSAConfig"},
		{"machine in legacy", ".kernel k\n.config\n.machine 1, 8, 0, 3", "HSAConfig pseudo-op only in HSAConfig"},
		{"legacy flag in hsa", ".kernel k\n.hsaconfig\n.useargs", "Illegal config pseudo-op in HSAConfig"},
		{"sgprs range", ".kernel k\n.config\n.sgprsnum 103", "Used SGPRs number out of range (0-102)"},
		{"vgprs range", ".kernel k\n.config\n.vgprsnum 257", "Used VGPRs number out of range (0-256)"},
		{"localsize range", ".kernel k\n.config\n.localsize 40000", "LocalSize out of range (0-32768)"},
		{"gdssize range", ".kernel k\n.hsaconfig\n.gds_segment_size 70000", "GDSSegmentSize out of range (0-65536)"},
		{"small alignment", ".kernel k\n.hsaconfig\n.kernarg_segment_align 8", "Alignment must be not smaller than 16"},
		{"odd alignment", ".kernel k\n.hsaconfig\n.group_segment_align 24", "Alignment must be power of two"},
		{"odd wavefront", ".kernel k\n.hsaconfig\n.wavefront_size 3", "Wavefront size must be power of two"},
		{"big wavefront", ".kernel k\n.hsaconfig\n.wavefront_size 512", "Wavefront size must be not greater than 256"},
		{"private elem size", ".kernel k\n.hsaconfig\n.private_elem_size 32", "Private element size must be in range between 2 and 16"},
		{"debug sgpr", ".kernel k\n.hsaconfig\n.debug_private_segment_buffer_sgpr 102", "SGPR register out of range (0-101)"},
		{"reserved range", ".kernel k\n.hsaconfig\n.reserved_sgprs 5, 3", "Wrong register range"},
		{"reserved vgpr", ".kernel k\n.hsaconfig\n.reserved_vgprs 0, 256", "Last reserved VGPR out of range (0-255)"},
		{"reserved sgpr", ".kernel k\n.hsaconfig\n.reserved_sgprs 102, 102", "First reserved SGPR out of range (0-101)"},
		{"bad dimension", ".kernel k\n.config\n.dims xw", "Unknown dimension type"},
		{"missing dimension", ".kernel k\n.hsaconfig\n.use_grid_workgroup_count", "Missing dimension"},
		{"machine arity", ".kernel k\n.hsaconfig\n.machine 1, 2", "Expected ','"},
		{"bss alignment", ".bssdata align=3", "Alignment must be power of two or zero"},
		{"bss syntax", ".bssdata size=4", "Expected 'align'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assembleError(t, testOpts, tt.source, tt.want)
		})
	}
}

func TestLegacyConfig(t *testing.T) {
	a, h := newAssembler(testOpts)
	ok := a.Assemble("test.s", `
        .kernel k
        .config
        .dims xy
        .cws 8, 4
        .sgprsnum 20
        .vgprsnum 7
        .pgmrsrc2 0x80
        .floatmode 0xfe
        .priority 5
        .localsize 1024
        .scratchbuffer 32
        .tgsize
        .ieeemode
        .useargs
        .text
        s_endpgm
`)
	if !ok {
		t.Fatalf("Assemble failed:\n%s", a.Errors().Report(false))
	}
	k := h.Output().Kernels[0]
	if !k.UseConfig {
		t.Fatal("UseConfig not set")
	}
	if k.Config.DimMask != 3 || k.Config.ReqdWorkGroupSize != [3]uint32{8, 4, 1} {
		t.Errorf("dims = %d, cws = %v", k.Config.DimMask, k.Config.ReqdWorkGroupSize)
	}
	c := k.Config.Legacy()
	if c == nil || k.Config.HSA() != nil {
		t.Fatalf("record = %#v, want legacy", k.Config.Record)
	}
	if c.UsedSGPRsNum != 20 || c.UsedVGPRsNum != 7 || c.PgmRSRC2 != 0x80 || c.FloatMode != 0xfe {
		t.Errorf("values = %+v", c)
	}
	if c.Priority != 1 {
		t.Errorf("Priority = %d, want 5 truncated to 1", c.Priority)
	}
	if a.Errors().WarningCount() != 1 {
		t.Errorf("got %d warnings, want 1", a.Errors().WarningCount())
	}
	if c.LocalSize != 1024 || c.ScratchBufferSize != 32 || !c.TGSize || !c.IEEEMode || !c.UseArgs || c.DX10Clamp {
		t.Errorf("values = %+v", c)
	}
}

func TestConfigDefaults(t *testing.T) {
	h := assemble(t, testOpts, ".kernel k\n.config\n.cws 16")
	k := h.Output().Kernels[0]
	if k.Config.ReqdWorkGroupSize != [3]uint32{16, 1, 1} {
		t.Errorf("cws = %v, want missing sizes as 1", k.Config.ReqdWorkGroupSize)
	}
	if k.Config.DimMask != DefaultDimMask {
		t.Errorf("DimMask = %d", k.Config.DimMask)
	}
	if c := k.Config.Legacy(); c.FloatMode != 0xc0 {
		t.Errorf("FloatMode = %#x, want 0xc0", c.FloatMode)
	}
}

func TestHSAConfig(t *testing.T) {
	h := assemble(t, testOpts, `
        .kernel k
        .hsaconfig
        .dims x
        .use_dispatch_ptr
        .use_kernarg_segment_ptr
        .use_grid_workgroup_count xz
        .use_ptr64
        .use_xnack_enabled
        .private_elem_size 8
        .kernarg_segment_align 32
        .wavefront_size 64
        .machine 1, 8, 0, 3
        .codeversion 1, 2
        .reserved_sgprs 4, 7
        .localsize 512
        .scratchbuffer 64
        .kernarg_segment_size 48
        .call_convention 0x10
        .text
        s_mov_b32 s12, 0
        v_mov_b32 v2, 0
        s_endpgm
`)
	k := h.Output().Kernels[0]
	c := k.Config.HSA()
	if c == nil {
		t.Fatalf("record = %#v, want HSA", k.Config.Record)
	}
	wantSgprFlags := uint16(SgprDispatchPtr | SgprKernargSegmentPtr | 5<<SgprGridWorkgroupCountShift)
	if c.EnableSgprRegisterFlags != wantSgprFlags {
		t.Errorf("EnableSgprRegisterFlags = %#x, want %#x", c.EnableSgprRegisterFlags, wantSgprFlags)
	}
	wantFeatures := uint16(FeatureUsePtr64 | FeatureXNACKEnabled | 2<<FeaturePrivateElemSizeShift)
	if c.EnableFeatureFlags != wantFeatures {
		t.Errorf("EnableFeatureFlags = %#x, want %#x", c.EnableFeatureFlags, wantFeatures)
	}
	if c.KernargSegmentAlignment != 5 || c.WavefrontSize != 6 || c.GroupSegmentAlignment != 4 {
		t.Errorf("log2 fields = %d %d %d", c.KernargSegmentAlignment, c.WavefrontSize, c.GroupSegmentAlignment)
	}
	if c.MachineKind != 1 || c.MachineMajor != 8 || c.MachineMinor != 0 || c.MachineStepping != 3 {
		t.Errorf("machine = %d.%d.%d.%d", c.MachineKind, c.MachineMajor, c.MachineMinor, c.MachineStepping)
	}
	if c.CodeVersionMajor != 1 || c.CodeVersionMinor != 2 {
		t.Errorf("code version = %d.%d", c.CodeVersionMajor, c.CodeVersionMinor)
	}
	if c.ReservedSgprFirst != 4 || c.ReservedSgprCount != 4 {
		t.Errorf("reserved sgprs = %d+%d", c.ReservedSgprFirst, c.ReservedSgprCount)
	}
	if c.WorkgroupGroupSegmentSize != 512 || c.WorkitemPrivateSegmentSize != 64 ||
		c.KernargSegmentSize != 48 || c.CallConvention != 0x10 {
		t.Errorf("sizes = %+v", c)
	}
	if c.KernelCodeEntryOffset != 256 {
		t.Errorf("KernelCodeEntryOffset = %d, want default 256", c.KernelCodeEntryOffset)
	}

	// 6 user SGPRs, one per enabled dimension and one for scratch give a
	// minimum of 8; the code uses s0..s12
	if c.UsedSGPRsNum != 13 || c.UsedVGPRsNum != 3 {
		t.Errorf("registers = %d/%d, want 13/3", c.UsedSGPRsNum, c.UsedVGPRsNum)
	}
	if c.WavefrontSgprCount != 13 || c.WorkitemVgprCount != 3 {
		t.Errorf("wavefront counts = %d/%d", c.WavefrontSgprCount, c.WorkitemVgprCount)
	}
}

func TestGridWorkgroupCountReplacesMask(t *testing.T) {
	h := assemble(t, testOpts, `
        .kernel k
        .hsaconfig
        .use_queue_ptr
        .use_grid_workgroup_count xyz
        .use_grid_workgroup_count y
`)
	c := h.Output().Kernels[0].Config.HSA()
	if want := uint16(SgprQueuePtr | 2<<SgprGridWorkgroupCountShift); c.EnableSgprRegisterFlags != want {
		t.Errorf("EnableSgprRegisterFlags = %#x, want %#x", c.EnableSgprRegisterFlags, want)
	}
}

func TestSamplers(t *testing.T) {
	h := assemble(t, testOpts, `
        .sampler 5, 6
        .globaldata
smp:    .int 0, 0
        .samplerreloc smp+4, 1
        .samplerreloc 12, 0
        .kernel k
        .config
        .sampler 7
`)
	out := h.Output()
	if !out.SamplerConfig || len(out.Samplers) != 2 || out.Samplers[0] != 5 || out.Samplers[1] != 6 {
		t.Errorf("Samplers = %v, SamplerConfig = %v", out.Samplers, out.SamplerConfig)
	}
	if len(out.SamplerOffsets) != 2 || out.SamplerOffsets[0] != 12 || out.SamplerOffsets[1] != 4 {
		t.Errorf("SamplerOffsets = %v", out.SamplerOffsets)
	}
	if s := out.Kernels[0].Config.Samplers; len(s) != 1 || s[0] != 7 {
		t.Errorf("kernel samplers = %v", s)
	}

	h = assemble(t, testOpts, ".samplerinit\n.int 1")
	if got := h.Output().SamplerInit; len(got) != 4 || got[0] != 1 {
		t.Errorf("SamplerInit = %v", got)
	}

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"init after samplers", ".sampler 1\n.samplerinit", "SamplerInit is illegal if sampler definitions are present"},
		{"sampler after init", ".samplerinit\n.main\n.sampler 1", "Illegal sampler definition if samplerinit was defined"},
		{"id range", ".samplerreloc 0, 70000", "Sampler id out of range (0-65535)"},
		{"reloc in kernel", ".kernel k\n.samplerreloc 0, 0", "Illegal place of samplerreloc pseudo-op"},
		{"sampler in kernel code", ".kernel k\n.sampler 1", "Illegal place of configuration pseudo-op"},
		{"reloc offset section", ".rwdata\nx: .int 0\n.samplerreloc x, 0", "Offset can be an absolute value or globaldata place"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assembleError(t, testOpts, tt.source, tt.want)
		})
	}
}

func TestBssData(t *testing.T) {
	h := assemble(t, testOpts, `
        .bssdata align=16
        .skip 64
        .bssdata
        .skip 4
`)
	out := h.Output()
	if out.BssSize != 68 || out.BssAlignment != 16 {
		t.Errorf("bss = %d bytes aligned to %d, want 68/16", out.BssSize, out.BssAlignment)
	}
	assembleError(t, testOpts, ".bssdata\n.int 1", "Writing data into non-writeable section is illegal")
}
