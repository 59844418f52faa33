package amdcl2

import (
	"sort"

	"github.com/xyproto/gcnasm/internal/asm"
	"github.com/xyproto/gcnasm/internal/gpu"
)

// controlDirectiveSize is the size of the amd_kernel_code_t control
// directive block
const controlDirectiveSize = 128

// PrepareBinary builds the output model from the assembled sections. It
// reports every problem it finds and returns false if there was any.
func (h *Handler) PrepareBinary() bool {
	good := true
	h.snapshot()

	opts := h.a.Options()
	h.out.Is64Bit = opts.Is64Bit
	h.out.DeviceType = opts.Device
	h.out.ExtraSections = nil
	h.out.InnerExtraSections = nil
	h.out.ExtraSymbols = nil
	h.out.InnerExtraSymbols = nil

	for i, state := range h.sections {
		s := h.a.Section(asm.SectionID(i))
		if s == nil {
			continue
		}
		var kout *KernelOutput
		if state.kernel.IsKernel() {
			kout = &h.out.Kernels[state.kernel]
		}
		switch state.kind {
		case asm.KindCode:
			kout.Code = copyBytes(s.Content)
		case asm.KindMetadata:
			kout.Metadata = copyBytes(s.Content)
		case asm.KindIsaMetadata:
			kout.IsaMetadata = copyBytes(s.Content)
		case asm.KindSetup:
			kout.Setup = copyBytes(s.Content)
		case asm.KindStub:
			kout.Stub = copyBytes(s.Content)
		case asm.KindData:
			h.out.GlobalData = copyBytes(s.Content)
		case asm.KindRWData:
			h.out.RWData = copyBytes(s.Content)
		case asm.KindBss:
			h.out.BssSize = s.Size
			h.out.BssAlignment = s.Alignment
		case asm.KindSamplerInit:
			h.out.SamplerInit = copyBytes(s.Content)
		case asm.KindControlDirective:
			if s.Size != controlDirectiveSize {
				h.a.Error(asm.SourceLocation{}, asm.CategoryStructural,
					"Section '.control_directive' for kernel '%s' have wrong size", kout.Name)
				good = false
			} else if c := kout.Config.HSA(); c != nil {
				c.ControlDirective = copyBytes(s.Content)
			}
		case asm.KindConfig:
		default:
			h.addExtraSection(state, s)
		}
	}

	if !h.setRegisterDefaults() {
		good = false
	}
	h.collectRelocations()
	if opts.ForceAddSymbols {
		h.collectSymbols()
	}

	if h.out.DriverVersion == 0 && !opts.TestRun {
		if opts.DriverVersion != 0 {
			h.out.DriverVersion = opts.DriverVersion
		} else {
			h.out.DriverVersion = h.detect()
		}
	}
	h.a.Logf("prepared %d kernels, driver version %d", len(h.out.Kernels), h.out.DriverVersion)
	return good
}

func (h *Handler) addExtraSection(state sectionState, s *asm.Section) {
	// the section kind may have been refined by `.section name, @type`
	elfType := uint32(SHT_PROGBITS)
	switch s.Kind {
	case asm.KindExtraNote:
		elfType = SHT_NOTE
	case asm.KindExtraNobits:
		elfType = SHT_NOBITS
	}
	var flags uint32
	if s.Attrs&asm.AttrAlloc != 0 {
		flags |= SHF_ALLOC
	}
	if s.Attrs&asm.AttrWrite != 0 {
		flags |= SHF_WRITE
	}
	if s.Attrs&asm.AttrExec != 0 {
		flags |= SHF_EXECINSTR
	}
	align := s.Alignment
	if align == 0 {
		align = 1
	}
	extra := ExtraSection{
		Name:      state.name,
		Data:      copyBytes(s.Content),
		Size:      s.Size,
		Alignment: align,
		Type:      elfType,
		Flags:     flags,
	}
	if state.kernel == asm.KernelGlobal {
		h.out.ExtraSections = append(h.out.ExtraSections, extra)
	} else {
		h.out.InnerExtraSections = append(h.out.InnerExtraSections, extra)
	}
}

// setRegisterDefaults fills in the SGPR and VGPR counts of kernels with
// a config that left them unset, and checks explicit SGPR counts
func (h *Handler) setRegisterDefaults() bool {
	good := true
	arch := h.arch()
	maxSGPRs := gpu.MaxRegisters(arch, gpu.RegSGPR)

	for i := range h.out.Kernels {
		kout := &h.out.Kernels[i]
		if !kout.UseConfig {
			continue
		}
		ks := h.kernels[i]
		var allocSGPRs, allocVGPRs uint32
		if len(ks.regs) >= 2 {
			allocSGPRs, allocVGPRs = ks.regs[0], ks.regs[1]
		}

		var usedSGPRs, usedVGPRs *uint32
		var userSGPRs, pgmRSRC2, setupFlags, extraSGPRs uint32
		switch rec := kout.Config.Record.(type) {
		case *LegacyConfig:
			usedSGPRs, usedVGPRs = &rec.UsedSGPRsNum, &rec.UsedVGPRsNum
			userSGPRs, pgmRSRC2 = rec.userSGPRs(), rec.PgmRSRC2
			if rec.TGSize {
				setupFlags |= gpu.SetupTGSizeEnabled
			}
			if rec.ScratchBufferSize != 0 {
				setupFlags |= gpu.SetupScratchEnabled
			}
			extraSGPRs = 2
			if rec.UseEnqueue || rec.UseGeneric {
				extraSGPRs = 4
				if arch >= gpu.GCN1_2 {
					extraSGPRs = 6
				}
			}
		case *HSAConfig:
			usedSGPRs, usedVGPRs = &rec.UsedSGPRsNum, &rec.UsedVGPRsNum
			userSGPRs, pgmRSRC2 = rec.userSGPRs(), rec.ComputePgmRsrc2
			if rec.TGSize {
				setupFlags |= gpu.SetupTGSizeEnabled
			}
			if rec.WorkitemPrivateSegmentSize != 0 {
				setupFlags |= gpu.SetupScratchEnabled
			}
			extraSGPRs = 2
		default:
			continue
		}

		dimMask := kout.Config.DimMask
		if dimMask == DefaultDimMask {
			dimMask = (pgmRSRC2 >> 7) & 7
		}
		minRegs := gpu.SetupMinRegisters(arch, dimMask, userSGPRs, setupFlags)

		if *usedSGPRs != NotSupplied && *usedSGPRs > maxSGPRs-extraSGPRs {
			h.a.Error(asm.SourceLocation{}, asm.CategoryStructural,
				"Number of total SGPRs for kernel '%s' is too high (max %d)", kout.Name, maxSGPRs)
			good = false
		}
		if *usedSGPRs == NotSupplied {
			*usedSGPRs = min(maxSGPRs-extraSGPRs, max(minRegs[0], allocSGPRs))
		}
		if *usedVGPRs == NotSupplied {
			*usedVGPRs = max(minRegs[1], allocVGPRs)
		}

		if rec, ok := kout.Config.Record.(*HSAConfig); ok {
			if rec.WavefrontSgprCount == 0 {
				rec.WavefrontSgprCount = uint16(rec.UsedSGPRsNum)
			}
			if rec.WorkitemVgprCount == 0 {
				rec.WorkitemVgprCount = uint16(rec.UsedVGPRsNum)
			}
		}
	}
	return good
}

// collectRelocations moves the code relocations into their kernels,
// ordered by offset
func (h *Handler) collectRelocations() {
	for i := range h.out.Kernels {
		h.out.Kernels[i].Relocations = []KernelRelocation{}
	}
	for _, rel := range h.a.Relocations() {
		owner := h.sections[rel.Section].kernel
		if !owner.IsKernel() {
			continue
		}
		symbol := uint32(RelSymBss)
		switch h.sections[rel.RelSection].kind {
		case asm.KindData:
			symbol = RelSymRodata
		case asm.KindRWData:
			symbol = RelSymData
		}
		kout := &h.out.Kernels[owner]
		kout.Relocations = append(kout.Relocations, KernelRelocation{
			Offset: rel.Offset,
			Type:   rel.Type,
			Symbol: symbol,
			Addend: rel.Addend,
		})
	}
	for i := range h.out.Kernels {
		rels := h.out.Kernels[i].Relocations
		sort.SliceStable(rels, func(a, b int) bool {
			return rels[a].Offset < rels[b].Offset
		})
	}
}

// codeOffsets returns where each kernel's code starts in the inner
// binary's .text: after a 256-byte header (or the setup blob) and
// with every code block padded to 256 bytes.
func (h *Handler) codeOffsets() []uint64 {
	offsets := make([]uint64, len(h.out.Kernels))
	var offset uint64
	for i, k := range h.out.Kernels {
		if k.UseConfig {
			offset += 256
		} else {
			offset += uint64(len(k.Setup))
		}
		offsets[i] = offset
		offset += (uint64(len(k.Code)) + 255) &^ 255
	}
	return offsets
}

// collectSymbols copies the defined non-local symbols into the binary
func (h *Handler) collectSymbols() {
	offsets := h.codeOffsets()
	for _, sym := range h.a.Symbols().Sorted() {
		if !sym.HasValue || sym.Binding == asm.BindLocal {
			continue
		}
		binSym := BinSymbol{
			Name:    sym.Name,
			Value:   sym.Value,
			Size:    sym.Size,
			Section: BinSectAbs,
			Binding: sym.Binding,
		}
		if sym.Section == asm.SectionAbs {
			h.out.ExtraSymbols = append(h.out.ExtraSymbols, binSym)
			continue
		}
		if int(sym.Section) >= len(h.sections) {
			continue
		}
		state := h.sections[sym.Section]
		if state.binID == BinSectUndef {
			continue
		}
		binSym.Section = state.binID
		switch {
		case state.kernel == asm.KernelGlobal:
			h.out.ExtraSymbols = append(h.out.ExtraSymbols, binSym)
		case state.kernel == asm.KernelInner:
			h.out.InnerExtraSymbols = append(h.out.InnerExtraSymbols, binSym)
		case state.kind == asm.KindCode:
			binSym.Value += offsets[state.kernel]
			h.out.InnerExtraSymbols = append(h.out.InnerExtraSymbols, binSym)
		}
	}
}
