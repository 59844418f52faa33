package amdcl2

import (
	"math/bits"

	"github.com/xyproto/gcnasm/internal/asm"
	"github.com/xyproto/gcnasm/internal/gpu"
)

type configValue int

const (
	cvSGPRsNum configValue = iota
	cvVGPRsNum
	cvPgmRSRC1
	cvPgmRSRC2
	cvFloatMode
	cvPriority
	cvExceptions
	cvLocalSize
	cvGDSSize
	cvScratchBuffer

	// HSA dialect only
	cvKernelCodeEntryOffset
	cvKernelCodePrefetchOffset
	cvKernelCodePrefetchSize
	cvMaxScratchBackingMemory
	cvWorkitemPrivateSegmentSize
	cvWorkgroupGroupSegmentSize
	cvGDSSegmentSize
	cvKernargSegmentSize
	cvWorkgroupFbarrierCount
	cvWavefrontSgprCount
	cvWorkitemVgprCount
	cvDebugWavefrontPrivateSegmentOffsetSgpr
	cvDebugPrivateSegmentBufferSgpr
	cvKernargSegmentAlign
	cvGroupSegmentAlign
	cvPrivateSegmentAlign
	cvWavefrontSize
	cvCallConvention
	cvRuntimeLoaderKernelSymbol
	cvPrivateElemSize
)

func (v configValue) hsaOnly() bool {
	return v >= cvKernelCodeEntryOffset
}

type configFlag int

const (
	cfTGSize configFlag = iota
	cfDebugMode
	cfDX10Clamp
	cfIEEEMode
	cfPrivMode

	// legacy dialect only
	cfUseArgs
	cfUseSetup
	cfUseEnqueue
	cfUseGeneric

	// HSA dialect only
	cfUsePrivateSegmentBuffer
	cfUseDispatchPtr
	cfUseQueuePtr
	cfUseKernargSegmentPtr
	cfUseDispatchID
	cfUseFlatScratchInit
	cfUsePrivateSegmentSize
	cfUseOrderedAppendGDS
	cfUsePtr64
	cfUseDynamicCallStack
	cfUseDebugEnabled
	cfUseXNACKEnabled
)

func (f configFlag) legacyOnly() bool {
	return f >= cfUseArgs && f <= cfUseGeneric
}

func (f configFlag) hsaOnly() bool {
	return f >= cfUsePrivateSegmentBuffer
}

// HSA flag words and bits set by the HSA-only bool directives
var hsaFlagBits = map[configFlag]struct {
	feature bool
	bit     uint16
}{
	cfUsePrivateSegmentBuffer: {false, SgprPrivateSegmentBuffer},
	cfUseDispatchPtr:          {false, SgprDispatchPtr},
	cfUseQueuePtr:             {false, SgprQueuePtr},
	cfUseKernargSegmentPtr:    {false, SgprKernargSegmentPtr},
	cfUseDispatchID:           {false, SgprDispatchID},
	cfUseFlatScratchInit:      {false, SgprFlatScratchInit},
	cfUsePrivateSegmentSize:   {false, SgprPrivateSegmentSize},
	cfUseOrderedAppendGDS:     {true, FeatureOrderedAppendGDS},
	cfUsePtr64:                {true, FeatureUsePtr64},
	cfUseDynamicCallStack:     {true, FeatureDynamicCallStack},
	cfUseDebugEnabled:         {true, FeatureDebugEnabled},
	cfUseXNACKEnabled:         {true, FeatureXNACKEnabled},
}

// configPlace checks that the cursor is on the config section of a
// concrete kernel
func (h *Handler) configPlace(loc asm.SourceLocation) (*kernelState, *KernelConfig, bool) {
	ks, kout := h.currentKernelState()
	if ks == nil || h.currentKind() != asm.KindConfig {
		h.a.Error(loc, asm.CategoryPlacement, "Illegal place of configuration pseudo-op")
		return nil, nil, false
	}
	return ks, kout.Config, true
}

// hsaPlace is configPlace for directives of the HSA dialect
func (h *Handler) hsaPlace(loc asm.SourceLocation) (*HSAConfig, bool) {
	ks, cfg, ok := h.configPlace(loc)
	if !ok {
		return nil, false
	}
	if ks.dialect != DialectHSA {
		h.a.Error(loc, asm.CategoryDialect, "HSAConfig pseudo-op only in HSAConfig")
		return nil, false
	}
	return cfg.HSA(), true
}

func configValueDirective(target configValue) directiveFunc {
	return func(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
		ks, cfg, ok := h.configPlace(loc)
		if !ok {
			return
		}
		if target.hsaOnly() && ks.dialect != DialectHSA {
			h.a.Error(loc, asm.CategoryDialect, "HSAConfig pseudo-op only in HSAConfig")
			return
		}
		r.SkipSpaces()
		valueLoc := r.Loc()
		value, ok := r.AbsValue()
		if !ok || !r.ExpectEnd() {
			return
		}
		value, ok = h.checkConfigValue(target, value, valueLoc)
		if !ok {
			return
		}
		switch rec := cfg.Record.(type) {
		case *LegacyConfig:
			setLegacyValue(rec, target, value)
		case *HSAConfig:
			setHSAValue(rec, target, value)
		}
	}
}

func isPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

// checkConfigValue validates a value for target, returning it masked or
// converted to the stored form (log2 for alignments and sizes packed as
// exponents). Out of range values are errors; values that are merely too
// wide for their field are truncated with a warning.
func (h *Handler) checkConfigValue(target configValue, value uint64, loc asm.SourceLocation) (uint64, bool) {
	arch := h.arch()
	rangeError := func(format string, args ...any) (uint64, bool) {
		h.a.Error(loc, asm.CategoryRange, format, args...)
		return 0, false
	}
	switch target {
	case cvSGPRsNum:
		if max := gpu.MaxRegisters(arch, gpu.RegSGPR); value > uint64(max) {
			return rangeError("Used SGPRs number out of range (0-%d)", max)
		}
	case cvVGPRsNum:
		if max := gpu.MaxRegisters(arch, gpu.RegVGPR); value > uint64(max) {
			return rangeError("Used VGPRs number out of range (0-%d)", max)
		}
	case cvWavefrontSgprCount:
		if max := gpu.MaxRegisters(arch, gpu.RegSGPR); value > uint64(max) {
			return rangeError("Wavefront SGPR count out of range (0-%d)", max)
		}
	case cvWorkitemVgprCount:
		if max := gpu.MaxRegisters(arch, gpu.RegVGPR); value > uint64(max) {
			return rangeError("Workitem VGPR count out of range (0-%d)", max)
		}
	case cvDebugWavefrontPrivateSegmentOffsetSgpr, cvDebugPrivateSegmentBufferSgpr:
		if max := gpu.MaxRegisters(arch, gpu.RegSGPR); value >= uint64(max) {
			return rangeError("SGPR register out of range (0-%d)", max-1)
		}
	case cvExceptions:
		value = h.a.WarnTruncated(value, 7, loc)
	case cvFloatMode:
		value = h.a.WarnTruncated(value, 8, loc)
	case cvPriority:
		value = h.a.WarnTruncated(value, 2, loc)
	case cvLocalSize:
		if value > gpu.MaxLocalSize {
			return rangeError("LocalSize out of range (0-%d)", gpu.MaxLocalSize)
		}
	case cvWorkgroupGroupSegmentSize:
		if value > gpu.MaxLocalSize {
			return rangeError("WorkgroupGroupSegmentSize out of range (0-%d)", gpu.MaxLocalSize)
		}
	case cvGDSSize:
		if value > gpu.MaxGDSSize {
			return rangeError("GDSSize out of range (0-%d)", gpu.MaxGDSSize)
		}
	case cvGDSSegmentSize:
		if value > gpu.MaxGDSSize {
			return rangeError("GDSSegmentSize out of range (0-%d)", gpu.MaxGDSSize)
		}
	case cvPgmRSRC1, cvPgmRSRC2, cvScratchBuffer, cvWorkitemPrivateSegmentSize,
		cvWorkgroupFbarrierCount, cvCallConvention:
		value = h.a.WarnTruncated(value, 32, loc)
	case cvKernargSegmentAlign, cvGroupSegmentAlign, cvPrivateSegmentAlign:
		if !isPowerOfTwo(value) {
			return rangeError("Alignment must be power of two")
		}
		if value < 16 {
			return rangeError("Alignment must be not smaller than 16")
		}
		value = uint64(bits.TrailingZeros64(value))
	case cvWavefrontSize:
		if !isPowerOfTwo(value) {
			return rangeError("Wavefront size must be power of two")
		}
		if value > 256 {
			return rangeError("Wavefront size must be not greater than 256")
		}
		value = uint64(bits.TrailingZeros64(value))
	case cvPrivateElemSize:
		if !isPowerOfTwo(value) {
			return rangeError("Private element size must be power of two")
		}
		if value < 2 || value > 16 {
			return rangeError("Private element size must be in range between 2 and 16")
		}
		value = uint64(bits.TrailingZeros64(value))
	}
	return value, true
}

func setLegacyValue(c *LegacyConfig, target configValue, value uint64) {
	v := uint32(value)
	switch target {
	case cvSGPRsNum:
		c.UsedSGPRsNum = v
	case cvVGPRsNum:
		c.UsedVGPRsNum = v
	case cvPgmRSRC1:
		c.PgmRSRC1 = v
	case cvPgmRSRC2:
		c.PgmRSRC2 = v
	case cvFloatMode:
		c.FloatMode = v
	case cvPriority:
		c.Priority = v
	case cvExceptions:
		c.Exceptions = v
	case cvLocalSize:
		c.LocalSize = v
	case cvGDSSize:
		c.GDSSize = v
	case cvScratchBuffer:
		c.ScratchBufferSize = v
	}
}

// setHSAValue stores a checked value. The memory sizes shared with the
// legacy record land in the matching amd_kernel_code_t segment fields.
func setHSAValue(c *HSAConfig, target configValue, value uint64) {
	v := uint32(value)
	switch target {
	case cvSGPRsNum:
		c.UsedSGPRsNum = v
	case cvVGPRsNum:
		c.UsedVGPRsNum = v
	case cvPgmRSRC1:
		c.ComputePgmRsrc1 = v
	case cvPgmRSRC2:
		c.ComputePgmRsrc2 = v
	case cvFloatMode:
		c.FloatMode = v
	case cvPriority:
		c.Priority = v
	case cvExceptions:
		c.Exceptions = v
	case cvLocalSize, cvWorkgroupGroupSegmentSize:
		c.WorkgroupGroupSegmentSize = v
	case cvGDSSize, cvGDSSegmentSize:
		c.GDSSegmentSize = v
	case cvScratchBuffer, cvWorkitemPrivateSegmentSize:
		c.WorkitemPrivateSegmentSize = v
	case cvKernelCodeEntryOffset:
		c.KernelCodeEntryOffset = value
	case cvKernelCodePrefetchOffset:
		c.KernelCodePrefetchOffset = value
	case cvKernelCodePrefetchSize:
		c.KernelCodePrefetchSize = value
	case cvMaxScratchBackingMemory:
		c.MaxScratchBackingMemory = value
	case cvKernargSegmentSize:
		c.KernargSegmentSize = value
	case cvWorkgroupFbarrierCount:
		c.WorkgroupFbarrierCount = v
	case cvWavefrontSgprCount:
		c.WavefrontSgprCount = uint16(v)
	case cvWorkitemVgprCount:
		c.WorkitemVgprCount = uint16(v)
	case cvDebugWavefrontPrivateSegmentOffsetSgpr:
		c.DebugWavefrontPrivateSegmentOffsetSgpr = uint16(v)
	case cvDebugPrivateSegmentBufferSgpr:
		c.DebugPrivateSegmentBufferSgpr = uint16(v)
	case cvKernargSegmentAlign:
		c.KernargSegmentAlignment = uint8(v)
	case cvGroupSegmentAlign:
		c.GroupSegmentAlignment = uint8(v)
	case cvPrivateSegmentAlign:
		c.PrivateSegmentAlignment = uint8(v)
	case cvWavefrontSize:
		c.WavefrontSize = uint8(v)
	case cvCallConvention:
		c.CallConvention = v
	case cvRuntimeLoaderKernelSymbol:
		c.RuntimeLoaderKernelSymbol = value
	case cvPrivateElemSize:
		c.SetPrivateElemSize(uint(v))
	}
}

func configFlagDirective(flag configFlag) directiveFunc {
	return func(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
		ks, cfg, ok := h.configPlace(loc)
		if !ok {
			return
		}
		switch {
		case ks.dialect == DialectHSA && flag.legacyOnly():
			h.a.Error(loc, asm.CategoryDialect, "Illegal config pseudo-op in HSAConfig")
			return
		case ks.dialect != DialectHSA && flag.hsaOnly():
			h.a.Error(loc, asm.CategoryDialect, "HSAConfig pseudo-op only in HSAConfig")
			return
		}
		if !r.ExpectEnd() {
			return
		}
		switch rec := cfg.Record.(type) {
		case *LegacyConfig:
			setLegacyFlag(rec, flag)
		case *HSAConfig:
			setHSAFlag(rec, flag)
		}
	}
}

func setLegacyFlag(c *LegacyConfig, flag configFlag) {
	switch flag {
	case cfTGSize:
		c.TGSize = true
	case cfDebugMode:
		c.DebugMode = true
	case cfDX10Clamp:
		c.DX10Clamp = true
	case cfIEEEMode:
		c.IEEEMode = true
	case cfPrivMode:
		c.PrivilegedMode = true
	case cfUseArgs:
		c.UseArgs = true
	case cfUseSetup:
		c.UseSetup = true
	case cfUseEnqueue:
		c.UseEnqueue = true
	case cfUseGeneric:
		c.UseGeneric = true
	}
}

func setHSAFlag(c *HSAConfig, flag configFlag) {
	switch flag {
	case cfTGSize:
		c.TGSize = true
	case cfDebugMode:
		c.DebugMode = true
	case cfDX10Clamp:
		c.DX10Clamp = true
	case cfIEEEMode:
		c.IEEEMode = true
	case cfPrivMode:
		c.PrivilegedMode = true
	default:
		if fb, ok := hsaFlagBits[flag]; ok {
			if fb.feature {
				setFlag16(&c.EnableFeatureFlags, fb.bit, true)
			} else {
				setFlag16(&c.EnableSgprRegisterFlags, fb.bit, true)
			}
		}
	}
}

// parseDimensions reads a subset of "xyz" into a 3-bit mask
func parseDimensions(r *asm.ArgReader) (uint32, bool) {
	word := r.Word()
	if word == "" {
		r.Errorf(asm.CategorySyntax, "Missing dimension")
		return 0, false
	}
	var mask uint32
	for _, c := range word {
		switch c {
		case 'x':
			mask |= 1
		case 'y':
			mask |= 2
		case 'z':
			mask |= 4
		default:
			r.Errorf(asm.CategorySyntax, "Unknown dimension type")
			return 0, false
		}
	}
	return mask, true
}

func doDims(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	_, cfg, ok := h.configPlace(loc)
	if !ok {
		return
	}
	mask, ok := parseDimensions(r)
	if !ok || !r.ExpectEnd() {
		return
	}
	cfg.DimMask = mask
}

func doCWS(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	_, cfg, ok := h.configPlace(loc)
	if !ok {
		return
	}
	size := [3]uint32{1, 1, 1}
	for i := range size {
		if i > 0 {
			if r.AtEnd() {
				break
			}
			if !r.ExpectComma() {
				return
			}
		}
		v, ok := absValue32(h, r)
		if !ok {
			return
		}
		size[i] = v
	}
	if !r.ExpectEnd() {
		return
	}
	cfg.ReqdWorkGroupSize = size
}

// absValues reads n comma separated absolute values, warning when one
// is wider than width bits
func absValues(h *Handler, r *asm.ArgReader, n, width int) ([]uint64, bool) {
	values := make([]uint64, n)
	for i := range values {
		if i > 0 && !r.ExpectComma() {
			return nil, false
		}
		r.SkipSpaces()
		loc := r.Loc()
		v, ok := r.AbsValue()
		if !ok {
			return nil, false
		}
		values[i] = h.a.WarnTruncated(v, width, loc)
	}
	if !r.ExpectEnd() {
		return nil, false
	}
	return values, true
}

func doMachine(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	c, ok := h.hsaPlace(loc)
	if !ok {
		return
	}
	v, ok := absValues(h, r, 4, 16)
	if !ok {
		return
	}
	c.MachineKind = uint16(v[0])
	c.MachineMajor = uint16(v[1])
	c.MachineMinor = uint16(v[2])
	c.MachineStepping = uint16(v[3])
}

func doCodeVersion(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	c, ok := h.hsaPlace(loc)
	if !ok {
		return
	}
	v, ok := absValues(h, r, 2, 32)
	if !ok {
		return
	}
	c.CodeVersionMajor = uint32(v[0])
	c.CodeVersionMinor = uint32(v[1])
}

// reservedRegsDirective handles `.reserved_sgprs first, last` and
// `.reserved_vgprs first, last`
func reservedRegsDirective(vgprs bool) directiveFunc {
	regType, what := gpu.RegSGPR, "SGPR"
	if vgprs {
		regType, what = gpu.RegVGPR, "VGPR"
	}
	return func(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
		c, ok := h.hsaPlace(loc)
		if !ok {
			return
		}
		max := uint64(gpu.MaxRegisters(h.arch(), regType))
		r.SkipSpaces()
		firstLoc := r.Loc()
		first, ok := r.AbsValue()
		if !ok || !r.ExpectComma() {
			return
		}
		r.SkipSpaces()
		lastLoc := r.Loc()
		last, ok := r.AbsValue()
		if !ok || !r.ExpectEnd() {
			return
		}
		if first >= max {
			h.a.Error(firstLoc, asm.CategoryRange, "First reserved %s out of range (0-%d)", what, max-1)
			return
		}
		if last >= max {
			h.a.Error(lastLoc, asm.CategoryRange, "Last reserved %s out of range (0-%d)", what, max-1)
			return
		}
		if first > last {
			h.a.Error(firstLoc, asm.CategoryRange, "Wrong register range")
			return
		}
		if vgprs {
			c.ReservedVgprFirst = uint16(first)
			c.ReservedVgprCount = uint16(last - first + 1)
		} else {
			c.ReservedSgprFirst = uint16(first)
			c.ReservedSgprCount = uint16(last - first + 1)
		}
	}
}

func doUseGridWorkgroupCount(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	c, ok := h.hsaPlace(loc)
	if !ok {
		return
	}
	mask, ok := parseDimensions(r)
	if !ok || !r.ExpectEnd() {
		return
	}
	c.SetGridWorkgroupCount(mask)
}
