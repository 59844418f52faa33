// Package amdcl2 implements the AMD OpenCL 2.0 binary format: the kernel
// and section namespaces, the format directives, code relocations against
// global data and the final output model.
package amdcl2

import (
	"github.com/xyproto/gcnasm/internal/asm"
	"github.com/xyproto/gcnasm/internal/gpu"
)

// NewBinaryVersion is the first driver version producing the new binary
// layout with global data, inner sections and samplers.
const NewBinaryVersion = 191205

type sectionState struct {
	name   string
	kernel asm.KernelID
	kind   asm.SectionKind
	binID  BinSectID
}

type kernelState struct {
	name string

	code          asm.SectionID
	config        asm.SectionID
	ctrlDirective asm.SectionID
	metadata      asm.SectionID
	isaMetadata   asm.SectionID
	setup         asm.SectionID
	stub          asm.SectionID

	saved    asm.SectionID
	regs     []uint32
	regFlags uint32

	argNames map[string]bool
	dialect  Dialect
}

// hasDescriptionSections reports whether the kernel carries
// precompiled metadata, setup or stub sections
func (ks *kernelState) hasDescriptionSections() bool {
	return ks.metadata != asm.SectionNone || ks.isaMetadata != asm.SectionNone ||
		ks.setup != asm.SectionNone || ks.stub != asm.SectionNone
}

// Handler is the CL2 format handler. It keeps, for each section the
// assembler stores, which namespace owns it and its role in the binary.
type Handler struct {
	a   *asm.Assembler
	out Output

	sections []sectionState
	kernels  []*kernelState

	rodata      asm.SectionID
	data        asm.SectionID
	bss         asm.SectionID
	samplerInit asm.SectionID

	extra           map[string]asm.SectionID
	innerExtra      map[string]asm.SectionID
	extraCount      BinSectID
	innerExtraCount BinSectID

	saved      asm.SectionID
	innerSaved asm.SectionID

	detect func() uint32
}

// New creates the handler and its initial .rodata section
func New(a *asm.Assembler) *Handler {
	h := &Handler{
		a:           a,
		out:         newOutput(),
		data:        asm.SectionNone,
		bss:         asm.SectionNone,
		samplerInit: asm.SectionNone,
		extra:       make(map[string]asm.SectionID),
		innerExtra:  make(map[string]asm.SectionID),
		detect:      gpu.DetectDriverVersion,
	}
	h.rodata = h.newSection(".rodata", asm.KernelInner, asm.KindData, BinSectRodata)
	h.saved = h.rodata
	h.innerSaved = h.rodata
	a.SetCursor(asm.KernelGlobal, h.rodata)
	return h
}

// Factory adapts New to asm.HandlerFactory
func Factory(a *asm.Assembler) asm.FormatHandler {
	return New(a)
}

// Output returns the output model. It is complete after PrepareBinary.
func (h *Handler) Output() *Output {
	return &h.out
}

// KernelCount returns the number of kernels added so far
func (h *Handler) KernelCount() int {
	return len(h.kernels)
}

func (h *Handler) newSection(name string, kernel asm.KernelID, kind asm.SectionKind, binID BinSectID) asm.SectionID {
	id := h.a.NewSection(name, kernel, kind)
	h.sections = append(h.sections, sectionState{name: name, kernel: kernel, kind: kind, binID: binID})
	return id
}

func (h *Handler) arch() gpu.Architecture {
	return h.a.Options().Device.Architecture()
}

// DriverVersion returns the version the binary is built for: the one set
// by .driver_version, the assembler option, or the installed driver.
func (h *Handler) DriverVersion() uint32 {
	if h.out.DriverVersion != 0 {
		return h.out.DriverVersion
	}
	if v := h.a.Options().DriverVersion; v != 0 {
		return v
	}
	return h.detect()
}

func (h *Handler) requireNewBinary(feature string) error {
	if v := h.DriverVersion(); v < NewBinaryVersion {
		return asm.Errorf(asm.CategoryVersionGate, "%s allowed only for new binary format", feature).
			WithHelp("driver version %d is below %d; set .driver_version or %s", v, NewBinaryVersion, gpu.DriverVersionEnv)
	}
	return nil
}

func (h *Handler) requireOldBinary(feature string) error {
	if v := h.DriverVersion(); v >= NewBinaryVersion {
		return asm.Errorf(asm.CategoryVersionGate, "%s allowed only for old binary format", feature).
			WithHelp("driver version %d is at or above %d", v, NewBinaryVersion)
	}
	return nil
}

// snapshot stores the cursor of the namespace being left, and the encoder
// registers when leaving a kernel's code section.
func (h *Handler) snapshot() {
	kernel, section := h.a.CurrentKernel(), h.a.CurrentSection()
	switch {
	case kernel.IsKernel():
		ks := h.kernels[kernel]
		if section == ks.code && h.a.Encoder() != nil {
			regs, flags := h.a.Encoder().AllocatedRegisters()
			ks.regs = append([]uint32(nil), regs...)
			ks.regFlags = flags
		}
		ks.saved = section
	case kernel == asm.KernelInner:
		h.innerSaved = section
	default:
		h.saved = section
	}
}

// restore loads the register snapshot when the cursor is on kernel code
func (h *Handler) restore() {
	kernel := h.a.CurrentKernel()
	if !kernel.IsKernel() || h.a.Encoder() == nil {
		return
	}
	ks := h.kernels[kernel]
	if h.a.CurrentSection() == ks.code {
		h.a.Encoder().SetAllocatedRegisters(ks.regs, ks.regFlags)
	}
}

func (h *Handler) moveTo(kernel asm.KernelID, section asm.SectionID) {
	h.snapshot()
	h.a.SetCursor(kernel, section)
	h.restore()
}

// AddKernel creates a kernel with its code section and makes it current
func (h *Handler) AddKernel(name string) (asm.KernelID, error) {
	id := asm.KernelID(len(h.kernels))
	code := h.newSection(".text", id, asm.KindCode, BinSectText)
	h.kernels = append(h.kernels, &kernelState{
		name:          name,
		code:          code,
		config:        asm.SectionNone,
		ctrlDirective: asm.SectionNone,
		metadata:      asm.SectionNone,
		isaMetadata:   asm.SectionNone,
		setup:         asm.SectionNone,
		stub:          asm.SectionNone,
		saved:         code,
		argNames:      make(map[string]bool),
	})
	h.out.Kernels = append(h.out.Kernels, KernelOutput{Name: name, Config: newKernelConfig()})

	h.snapshot()
	h.a.SetCursor(id, code)
	if enc := h.a.Encoder(); enc != nil {
		enc.SetAllocatedRegisters(nil, 0)
	}
	return id, nil
}

// AddSection creates a named section. The global data sections are
// singletons; other names become extra sections of the global namespace
// or, anywhere else, of the inner binary.
func (h *Handler) AddSection(name string, kernel asm.KernelID) (asm.SectionID, error) {
	binaryNS := kernel == asm.KernelGlobal || kernel == asm.KernelInner
	var id asm.SectionID
	switch {
	case binaryNS && name == ".rodata":
		if err := h.requireNewBinary("Global Data"); err != nil {
			return asm.SectionNone, err
		}
		id = h.rodata
	case binaryNS && name == ".data":
		if err := h.requireNewBinary("Global RWData"); err != nil {
			return asm.SectionNone, err
		}
		if h.data == asm.SectionNone {
			h.data = h.newSection(".data", asm.KernelInner, asm.KindRWData, BinSectData)
		}
		id = h.data
	case binaryNS && name == ".bss":
		if err := h.requireNewBinary("Global BSS"); err != nil {
			return asm.SectionNone, err
		}
		if h.bss == asm.SectionNone {
			h.bss = h.newSection(".bss", asm.KernelInner, asm.KindBss, BinSectBss)
		}
		id = h.bss
	case kernel == asm.KernelGlobal:
		if _, ok := h.extra[name]; ok {
			return asm.SectionNone, asm.Errorf(asm.CategoryDuplicate, "Section already exists")
		}
		id = h.newSection(name, asm.KernelGlobal, asm.KindExtra, h.extraCount)
		h.extraCount++
		h.extra[name] = id
	default:
		if err := h.requireNewBinary("Inner section"); err != nil {
			return asm.SectionNone, err
		}
		if _, ok := h.innerExtra[name]; ok {
			return asm.SectionNone, asm.Errorf(asm.CategoryDuplicate, "Section already exists")
		}
		id = h.newSection(name, asm.KernelInner, asm.KindExtra, h.innerExtraCount)
		h.innerExtraCount++
		h.innerExtra[name] = id
	}
	// the caller's kernel stays current so its .text is still found
	h.moveTo(kernel, id)
	return id, nil
}

// SectionID looks a section name up in the current namespace
func (h *Handler) SectionID(name string) (asm.SectionID, bool) {
	kernel := h.a.CurrentKernel()
	var id asm.SectionID
	var ok bool
	switch {
	case kernel.IsKernel():
		if name == ".text" {
			return h.kernels[kernel].code, true
		}
		id, ok = h.innerExtra[name]
	default:
		switch name {
		case ".rodata":
			id, ok = h.rodata, true
		case ".data":
			id, ok = h.data, h.data != asm.SectionNone
		case ".bss":
			id, ok = h.bss, h.bss != asm.SectionNone
		default:
			if kernel == asm.KernelGlobal {
				id, ok = h.extra[name]
			} else {
				id, ok = h.innerExtra[name]
			}
		}
	}
	if !ok {
		return asm.SectionNone, false
	}
	return id, true
}

// SetCurrentKernel switches namespace and resumes its saved section
func (h *Handler) SetCurrentKernel(kernel asm.KernelID) error {
	var section asm.SectionID
	switch {
	case kernel == asm.KernelGlobal:
		section = h.saved
	case kernel == asm.KernelInner:
		section = h.innerSaved
	case kernel.IsKernel() && int(kernel) < len(h.kernels):
		section = h.kernels[kernel].saved
	default:
		return asm.Errorf(asm.CategoryRange, "KernelId out of range")
	}
	h.moveTo(kernel, section)
	return nil
}

// SetCurrentSection moves the cursor to a section and its owner
func (h *Handler) SetCurrentSection(id asm.SectionID) error {
	if int(id) >= len(h.sections) {
		return asm.Errorf(asm.CategoryRange, "SectionId out of range")
	}
	var err error
	switch h.sections[id].kind {
	case asm.KindData:
		err = h.requireNewBinary("Global Data")
	case asm.KindRWData:
		err = h.requireNewBinary("Global RWData")
	case asm.KindBss:
		err = h.requireNewBinary("Global BSS")
	}
	if err != nil {
		return err
	}
	h.moveTo(h.sections[id].kernel, id)
	return nil
}

// SectionInfo reports the name, kind and flags of a section
func (h *Handler) SectionInfo(id asm.SectionID) (asm.SectionInfo, error) {
	if int(id) >= len(h.sections) {
		return asm.SectionInfo{}, asm.Errorf(asm.CategoryRange, "Section doesn't exists")
	}
	s := h.sections[id]
	info := asm.SectionInfo{Name: s.name, Kind: s.kind}
	switch s.kind {
	case asm.KindCode:
		info.Flags = asm.FlagAddressable | asm.FlagWriteable
	case asm.KindData, asm.KindRWData:
		info.Flags = asm.FlagAddressable | asm.FlagUnresolvable | asm.FlagWriteable
	case asm.KindBss:
		info.Flags = asm.FlagAddressable | asm.FlagUnresolvable
	case asm.KindConfig:
	default:
		info.Flags = asm.FlagAddressable | asm.FlagWriteable | asm.FlagAbsAddressable
	}
	return info, nil
}

// goTo switches to a section created by a directive
func (h *Handler) goTo(loc asm.SourceLocation, id asm.SectionID) bool {
	if err := h.SetCurrentSection(id); err != nil {
		h.a.ReportError(loc, err)
		return false
	}
	return true
}

// currentKernelState returns the state of the current concrete kernel
func (h *Handler) currentKernelState() (*kernelState, *KernelOutput) {
	kernel := h.a.CurrentKernel()
	if !kernel.IsKernel() {
		return nil, nil
	}
	return h.kernels[kernel], &h.out.Kernels[kernel]
}

func (h *Handler) currentKind() asm.SectionKind {
	if id := h.a.CurrentSection(); int(id) < len(h.sections) {
		return h.sections[id].kind
	}
	return asm.KindExtra
}
