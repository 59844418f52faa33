package amdcl2

import (
	"sort"
	"strings"

	"github.com/xyproto/gcnasm/internal/asm"
)

type directiveFunc func(h *Handler, r *asm.ArgReader, loc asm.SourceLocation)

type directive struct {
	name string
	fn   directiveFunc
}

// directives is sorted by name and searched with sort.Search
var directives = []directive{
	{"acl_version", doACLVersion},
	{"arch_minor", doArchMinor},
	{"arch_stepping", doArchStepping},
	{"arg", doArg},
	{"bssdata", doBssData},
	{"call_convention", configValueDirective(cvCallConvention)},
	{"codeversion", doCodeVersion},
	{"compile_options", doCompileOptions},
	{"config", configDirective(DialectLegacy)},
	{"control_directive", doControlDirective},
	{"cws", doCWS},
	{"debug_private_segment_buffer_sgpr", configValueDirective(cvDebugPrivateSegmentBufferSgpr)},
	{"debug_wavefront_private_segment_offset_sgpr", configValueDirective(cvDebugWavefrontPrivateSegmentOffsetSgpr)},
	{"debugmode", configFlagDirective(cfDebugMode)},
	{"dims", doDims},
	{"driver_version", doDriverVersion},
	{"dx10clamp", configFlagDirective(cfDX10Clamp)},
	{"exceptions", configValueDirective(cvExceptions)},
	{"floatmode", configValueDirective(cvFloatMode)},
	{"gds_segment_size", configValueDirective(cvGDSSegmentSize)},
	{"gdssize", configValueDirective(cvGDSSize)},
	{"get_driver_version", doGetDriverVersion},
	{"globaldata", doGlobalData},
	{"group_segment_align", configValueDirective(cvGroupSegmentAlign)},
	{"hsaconfig", configDirective(DialectHSA)},
	{"ieeemode", configFlagDirective(cfIEEEMode)},
	{"inner", doInner},
	{"isametadata", kernelSectionDirective(asm.KindIsaMetadata)},
	{"kernarg_segment_align", configValueDirective(cvKernargSegmentAlign)},
	{"kernarg_segment_size", configValueDirective(cvKernargSegmentSize)},
	{"kernel_code_entry_offset", configValueDirective(cvKernelCodeEntryOffset)},
	{"kernel_code_prefetch_offset", configValueDirective(cvKernelCodePrefetchOffset)},
	{"kernel_code_prefetch_size", configValueDirective(cvKernelCodePrefetchSize)},
	{"localsize", configValueDirective(cvLocalSize)},
	{"machine", doMachine},
	{"max_scratch_backing_memory", configValueDirective(cvMaxScratchBackingMemory)},
	{"metadata", kernelSectionDirective(asm.KindMetadata)},
	{"pgmrsrc1", configValueDirective(cvPgmRSRC1)},
	{"pgmrsrc2", configValueDirective(cvPgmRSRC2)},
	{"priority", configValueDirective(cvPriority)},
	{"private_elem_size", configValueDirective(cvPrivateElemSize)},
	{"private_segment_align", configValueDirective(cvPrivateSegmentAlign)},
	{"privmode", configFlagDirective(cfPrivMode)},
	{"reserved_sgprs", reservedRegsDirective(false)},
	{"reserved_vgprs", reservedRegsDirective(true)},
	{"runtime_loader_kernel_symbol", configValueDirective(cvRuntimeLoaderKernelSymbol)},
	{"rwdata", doRWData},
	{"sampler", doSampler},
	{"samplerinit", doSamplerInit},
	{"samplerreloc", doSamplerReloc},
	{"scratchbuffer", configValueDirective(cvScratchBuffer)},
	{"setup", kernelSectionDirective(asm.KindSetup)},
	{"setupargs", doSetupArgs},
	{"sgprsnum", configValueDirective(cvSGPRsNum)},
	{"stub", kernelSectionDirective(asm.KindStub)},
	{"tgsize", configFlagDirective(cfTGSize)},
	{"use_debug_enabled", configFlagDirective(cfUseDebugEnabled)},
	{"use_dispatch_id", configFlagDirective(cfUseDispatchID)},
	{"use_dispatch_ptr", configFlagDirective(cfUseDispatchPtr)},
	{"use_dynamic_call_stack", configFlagDirective(cfUseDynamicCallStack)},
	{"use_flat_scratch_init", configFlagDirective(cfUseFlatScratchInit)},
	{"use_grid_workgroup_count", doUseGridWorkgroupCount},
	{"use_kernarg_segment_ptr", configFlagDirective(cfUseKernargSegmentPtr)},
	{"use_ordered_append_gds", configFlagDirective(cfUseOrderedAppendGDS)},
	{"use_private_segment_buffer", configFlagDirective(cfUsePrivateSegmentBuffer)},
	{"use_private_segment_size", configFlagDirective(cfUsePrivateSegmentSize)},
	{"use_ptr64", configFlagDirective(cfUsePtr64)},
	{"use_queue_ptr", configFlagDirective(cfUseQueuePtr)},
	{"use_xnack_enabled", configFlagDirective(cfUseXNACKEnabled)},
	{"useargs", configFlagDirective(cfUseArgs)},
	{"useenqueue", configFlagDirective(cfUseEnqueue)},
	{"usegeneric", configFlagDirective(cfUseGeneric)},
	{"usesetup", configFlagDirective(cfUseSetup)},
	{"vgprsnum", configValueDirective(cvVGPRsNum)},
	{"wavefront_sgpr_count", configValueDirective(cvWavefrontSgprCount)},
	{"wavefront_size", configValueDirective(cvWavefrontSize)},
	{"workgroup_fbarrier_count", configValueDirective(cvWorkgroupFbarrierCount)},
	{"workgroup_group_segment_size", configValueDirective(cvWorkgroupGroupSegmentSize)},
	{"workitem_private_segment_size", configValueDirective(cvWorkitemPrivateSegmentSize)},
	{"workitem_vgpr_count", configValueDirective(cvWorkitemVgprCount)},
}

func lookupDirective(name string) (directiveFunc, bool) {
	i := sort.Search(len(directives), func(i int) bool {
		return directives[i].name >= name
	})
	if i < len(directives) && directives[i].name == name {
		return directives[i].fn, true
	}
	return nil, false
}

// ParseDirective runs a CL2 directive. The leading dot is optional.
func (h *Handler) ParseDirective(name, args string, loc asm.SourceLocation) bool {
	fn, ok := lookupDirective(strings.ToLower(strings.TrimPrefix(name, ".")))
	if !ok {
		return false
	}
	fn(h, h.a.NewArgReader(args, loc), loc)
	return true
}

// DirectiveNames lists the CL2 directives without the leading dot
func (h *Handler) DirectiveNames() []string {
	names := make([]string, len(directives))
	for i, d := range directives {
		names[i] = d.name
	}
	return names
}

func doACLVersion(h *Handler, r *asm.ArgReader, _ asm.SourceLocation) {
	s, ok := r.QuotedString()
	if !ok || !r.ExpectEnd() {
		return
	}
	h.out.ACLVersion = s
}

func doCompileOptions(h *Handler, r *asm.ArgReader, _ asm.SourceLocation) {
	s, ok := r.QuotedString()
	if !ok || !r.ExpectEnd() {
		return
	}
	h.out.CompileOptions = s
}

// absValue32 reads an absolute value and warns when it exceeds 32 bits
func absValue32(h *Handler, r *asm.ArgReader) (uint32, bool) {
	r.SkipSpaces()
	loc := r.Loc()
	v, ok := r.AbsValue()
	if !ok {
		return 0, false
	}
	return uint32(h.a.WarnTruncated(v, 32, loc)), true
}

func doArchMinor(h *Handler, r *asm.ArgReader, _ asm.SourceLocation) {
	v, ok := absValue32(h, r)
	if !ok || !r.ExpectEnd() {
		return
	}
	h.out.ArchMinor = v
}

func doArchStepping(h *Handler, r *asm.ArgReader, _ asm.SourceLocation) {
	v, ok := absValue32(h, r)
	if !ok || !r.ExpectEnd() {
		return
	}
	h.out.ArchStepping = v
}

func doDriverVersion(h *Handler, r *asm.ArgReader, _ asm.SourceLocation) {
	v, ok := absValue32(h, r)
	if !ok || !r.ExpectEnd() {
		return
	}
	h.out.DriverVersion = v
}

func doGetDriverVersion(h *Handler, r *asm.ArgReader, _ asm.SourceLocation) {
	r.SkipSpaces()
	loc := r.Loc()
	name := r.Name()
	if name == "" || name == "." {
		r.Errorf(asm.CategorySyntax, "Illegal symbol name")
		return
	}
	if !r.ExpectEnd() {
		return
	}
	loc.Length = len(name)
	h.a.DefineSymbol(name, uint64(h.DriverVersion()), asm.SectionAbs, loc)
}

func doInner(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	if !r.ExpectEnd() {
		return
	}
	if err := h.SetCurrentKernel(asm.KernelInner); err != nil {
		h.a.ReportError(loc, err)
	}
}

func doGlobalData(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	if !r.ExpectEnd() {
		return
	}
	h.goTo(loc, h.rodata)
}

func doRWData(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	if !r.ExpectEnd() {
		return
	}
	if err := h.requireNewBinary("Global RWData"); err != nil {
		h.a.ReportError(loc, err)
		return
	}
	if h.data == asm.SectionNone {
		h.data = h.newSection(".data", asm.KernelInner, asm.KindRWData, BinSectData)
	}
	h.goTo(loc, h.data)
}

func doBssData(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	var align uint64
	if !r.AtEnd() {
		if strings.ToLower(r.Name()) != "align" {
			r.Errorf(asm.CategorySyntax, "Expected 'align'")
			return
		}
		if !r.Skip('=') {
			r.Errorf(asm.CategorySyntax, "Expected '=' after 'align'")
			return
		}
		r.SkipSpaces()
		alignLoc := r.Loc()
		v, ok := r.AbsValue()
		if !ok {
			return
		}
		if v&(v-1) != 0 {
			h.a.Error(alignLoc, asm.CategoryRange, "Alignment must be power of two or zero")
			return
		}
		align = v
	}
	if !r.ExpectEnd() {
		return
	}
	if err := h.requireNewBinary("Global BSS"); err != nil {
		h.a.ReportError(loc, err)
		return
	}
	if h.bss == asm.SectionNone {
		h.bss = h.newSection(".bss", asm.KernelInner, asm.KindBss, BinSectBss)
	}
	if !h.goTo(loc, h.bss) {
		return
	}
	if s := h.a.Section(h.bss); s != nil && align > s.Alignment {
		s.Alignment = align
	}
}

func doSamplerInit(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	if !r.ExpectEnd() {
		return
	}
	if err := h.requireNewBinary("SamplerInit"); err != nil {
		h.a.ReportError(loc, err)
		return
	}
	if h.out.SamplerConfig {
		h.a.Error(loc, asm.CategoryPlacement, "SamplerInit is illegal if sampler definitions are present")
		return
	}
	if h.samplerInit == asm.SectionNone {
		h.samplerInit = h.newSection(".samplerinit", asm.KernelInner, asm.KindSamplerInit, BinSectUndef)
	}
	h.goTo(loc, h.samplerInit)
}

func doSampler(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	_, kout := h.currentKernelState()
	if kout != nil && h.currentKind() != asm.KindConfig {
		h.a.Error(loc, asm.CategoryPlacement, "Illegal place of configuration pseudo-op")
		return
	}
	if err := h.requireNewBinary("Sampler"); err != nil {
		h.a.ReportError(loc, err)
		return
	}
	var values []uint32
	for !r.AtEnd() {
		v, ok := absValue32(h, r)
		if !ok {
			return
		}
		values = append(values, v)
		if r.AtEnd() {
			break
		}
		if !r.ExpectComma() {
			return
		}
	}
	if kout != nil {
		kout.Config.Samplers = append(kout.Config.Samplers, values...)
		return
	}
	if h.samplerInit != asm.SectionNone {
		h.a.Error(loc, asm.CategoryPlacement, "Illegal sampler definition if samplerinit was defined")
		return
	}
	h.out.SamplerConfig = true
	h.out.Samplers = append(h.out.Samplers, values...)
}

// maxSamplerID bounds the sampler offset table index
const maxSamplerID = 1 << 16

func doSamplerReloc(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	if h.a.CurrentKernel().IsKernel() {
		h.a.Error(loc, asm.CategoryPlacement, "Illegal place of samplerreloc pseudo-op")
		return
	}
	if err := h.requireNewBinary("SamplerReloc"); err != nil {
		h.a.ReportError(loc, err)
		return
	}
	r.SkipSpaces()
	offLoc := r.Loc()
	offset, sect, ok := r.Value()
	if !ok || !r.ExpectComma() {
		return
	}
	r.SkipSpaces()
	idLoc := r.Loc()
	id, ok := r.AbsValue()
	if !ok || !r.ExpectEnd() {
		return
	}
	if sect != asm.SectionAbs && sect != h.rodata {
		h.a.Error(offLoc, asm.CategoryRelocation, "Offset can be an absolute value or globaldata place")
		return
	}
	if id >= maxSamplerID {
		h.a.Error(idLoc, asm.CategoryRange, "Sampler id out of range (0-%d)", maxSamplerID-1)
		return
	}
	for uint64(len(h.out.SamplerOffsets)) <= id {
		h.out.SamplerOffsets = append(h.out.SamplerOffsets, 0)
	}
	h.out.SamplerOffsets[id] = offset
}

// kernelSectionNames maps the precompiled kernel sections to
// their directive names
var kernelSectionNames = map[asm.SectionKind]string{
	asm.KindMetadata:    "Metadata",
	asm.KindIsaMetadata: "ISAMetadata",
	asm.KindSetup:       "Setup",
	asm.KindStub:        "Stub",
}

// kernelSectionDirective opens one of the precompiled kernel sections
// (.metadata, .isametadata, .setup, .stub)
func kernelSectionDirective(kind asm.SectionKind) directiveFunc {
	what := kernelSectionNames[kind]
	return func(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
		ks, _ := h.currentKernelState()
		if ks == nil {
			h.a.Error(loc, asm.CategoryPlacement, "%s can be defined only inside kernel", what)
			return
		}
		if ks.config != asm.SectionNone {
			h.a.Error(loc, asm.CategoryDialect, "%s can't be defined if configuration was defined", what)
			return
		}
		if ks.ctrlDirective != asm.SectionNone {
			h.a.Error(loc, asm.CategoryDialect, "%s can't be defined if control directive was defined", what)
			return
		}
		if kind == asm.KindIsaMetadata || kind == asm.KindStub {
			feature := what
			if kind == asm.KindIsaMetadata {
				feature = "ISA Metadata"
			}
			if err := h.requireOldBinary(feature); err != nil {
				h.a.ReportError(loc, err)
				return
			}
		}
		if !r.ExpectEnd() {
			return
		}
		var field *asm.SectionID
		switch kind {
		case asm.KindMetadata:
			field = &ks.metadata
		case asm.KindIsaMetadata:
			field = &ks.isaMetadata
		case asm.KindSetup:
			field = &ks.setup
		default:
			field = &ks.stub
		}
		if *field == asm.SectionNone {
			*field = h.newSection("."+kind.String(), h.a.CurrentKernel(), kind, BinSectUndef)
		}
		h.goTo(loc, *field)
	}
}

// configDirective opens the kernel's configuration record section and
// fixes its dialect
func configDirective(dialect Dialect) directiveFunc {
	return func(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
		ks, kout := h.currentKernelState()
		if ks == nil {
			h.a.Error(loc, asm.CategoryPlacement, "Kernel config can be defined only inside kernel")
			return
		}
		if ks.hasDescriptionSections() {
			h.a.Error(loc, asm.CategoryDialect, "Config can't be defined if metadata,header,setup,stub section exists")
			return
		}
		if ks.config != asm.SectionNone && ks.dialect != dialect {
			h.a.Error(loc, asm.CategoryDialect, "Config and HSAConfig can't be mixed")
			return
		}
		if dialect == DialectLegacy && ks.ctrlDirective != asm.SectionNone {
			h.a.Error(loc, asm.CategoryDialect, "Config and Control directive can't be mixed")
			return
		}
		if !r.ExpectEnd() {
			return
		}
		if ks.config == asm.SectionNone {
			ks.config = h.newSection(".config", h.a.CurrentKernel(), asm.KindConfig, BinSectUndef)
		}
		if !h.goTo(loc, ks.config) {
			return
		}
		ks.dialect = dialect
		kout.UseConfig = true
		if kout.Config.Record == nil {
			if dialect == DialectHSA {
				kout.Config.Record = NewHSAConfig()
			} else {
				kout.Config.Record = NewLegacyConfig()
			}
		}
	}
}

func doControlDirective(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	ks, kout := h.currentKernelState()
	if ks == nil {
		h.a.Error(loc, asm.CategoryPlacement, "Kernel control directive can be defined only inside kernel")
		return
	}
	if ks.hasDescriptionSections() {
		h.a.Error(loc, asm.CategoryDialect, "Control directive can't be defined if metadata,header,setup,stub section exists")
		return
	}
	if ks.config != asm.SectionNone && ks.dialect != DialectHSA {
		h.a.Error(loc, asm.CategoryDialect, "Config and Control directive can't be mixed")
		return
	}
	if !r.ExpectEnd() {
		return
	}
	if ks.ctrlDirective == asm.SectionNone {
		ks.ctrlDirective = h.newSection(".control_directive", h.a.CurrentKernel(), asm.KindControlDirective, BinSectUndef)
	}
	if !h.goTo(loc, ks.ctrlDirective) {
		return
	}
	if kout.Config.Record == nil {
		kout.Config.Record = NewHSAConfig()
	}
}
