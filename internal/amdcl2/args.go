package amdcl2

import (
	"strings"

	"github.com/xyproto/gcnasm/internal/asm"
)

// ArgType is the OpenCL type of a kernel argument
type ArgType int

const (
	ArgVoid ArgType = iota
	ArgUChar
	ArgChar
	ArgUShort
	ArgShort
	ArgUInt
	ArgInt
	ArgULong
	ArgLong
	ArgHalf
	ArgFloat
	ArgDouble
	ArgPointer
	ArgImage
	ArgImage1D
	ArgImage1DArray
	ArgImage1DBuffer
	ArgImage2D
	ArgImage2DArray
	ArgImage3D
	ArgSampler
	ArgQueue
	ArgClkEvent
	ArgStructure
)

var argTypeNames = [...]string{
	ArgVoid:          "void",
	ArgUChar:         "uchar",
	ArgChar:          "char",
	ArgUShort:        "ushort",
	ArgShort:         "short",
	ArgUInt:          "uint",
	ArgInt:           "int",
	ArgULong:         "ulong",
	ArgLong:          "long",
	ArgHalf:          "half",
	ArgFloat:         "float",
	ArgDouble:        "double",
	ArgPointer:       "pointer",
	ArgImage:         "image",
	ArgImage1D:       "image1d",
	ArgImage1DArray:  "image1d_array",
	ArgImage1DBuffer: "image1d_buffer",
	ArgImage2D:       "image2d",
	ArgImage2DArray:  "image2d_array",
	ArgImage3D:       "image3d",
	ArgSampler:       "sampler",
	ArgQueue:         "queue",
	ArgClkEvent:      "clkevent",
	ArgStructure:     "structure",
}

func (t ArgType) String() string {
	if t < 0 || int(t) >= len(argTypeNames) {
		return "unknown"
	}
	return argTypeNames[t]
}

func (t ArgType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t ArgType) isImage() bool {
	return t >= ArgImage && t <= ArgImage3D
}

// vectorizable reports whether the type has OpenCL vector forms
func (t ArgType) vectorizable() bool {
	return t >= ArgUChar && t <= ArgDouble
}

// PtrSpace is the address space of a pointer argument
type PtrSpace int

const (
	SpaceNone PtrSpace = iota
	SpaceGlobal
	SpaceConstant
	SpaceLocal
)

var ptrSpaceNames = [...]string{"none", "global", "constant", "local"}

func (s PtrSpace) MarshalText() ([]byte, error) {
	return []byte(ptrSpaceNames[s]), nil
}

// Pointer qualifiers and image access of KernelArg.Access
const (
	AccessConst    = 1
	AccessRestrict = 2
	AccessVolatile = 4

	AccessReadOnly  = 1
	AccessWriteOnly = 2
	AccessReadWrite = 3
)

// Argument usage of KernelArg.Used
const (
	UsedNone      = 0
	UsedRead      = 1
	UsedWrite     = 2
	UsedReadWrite = 3
)

// KernelArg describes one kernel argument
type KernelArg struct {
	Name     string
	TypeName string `json:",omitempty"`
	Type     ArgType
	// PointeeType and VectorSize describe the element of pointers and vectors
	PointeeType ArgType `json:",omitempty"`
	VectorSize  int     `json:",omitempty"`
	Space       PtrSpace
	Access      int
	Used        int
	StructSize  uint64 `json:",omitempty"`
}

// parseArgType splits names like "float4" into the scalar type and
// vector size
func parseArgType(word string) (ArgType, int, bool) {
	for i, name := range argTypeNames {
		if name == word && ArgType(i) != ArgPointer {
			return ArgType(i), 1, true
		}
	}
	base := strings.TrimRight(word, "0123456789")
	var vec int
	switch word[len(base):] {
	case "2":
		vec = 2
	case "3":
		vec = 3
	case "4":
		vec = 4
	case "8":
		vec = 8
	case "16":
		vec = 16
	default:
		return 0, 0, false
	}
	for i, name := range argTypeNames {
		if name == base && ArgType(i).vectorizable() {
			return ArgType(i), vec, true
		}
	}
	return 0, 0, false
}

func doArg(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	ks, kout := h.currentKernelState()
	if ks == nil || h.currentKind() != asm.KindConfig {
		h.a.Error(loc, asm.CategoryPlacement, "Illegal place of kernel argument")
		return
	}
	arg, ok := parseArg(h, r)
	if !ok {
		return
	}
	if ks.argNames[arg.Name] {
		h.a.Error(loc, asm.CategoryDuplicate, "Kernel argument '%s' is already defined", arg.Name)
		return
	}
	ks.argNames[arg.Name] = true
	kout.Config.Args = append(kout.Config.Args, arg)
}

// parseArg reads `NAME[, "TYPENAME"], TYPE[, ...]`
func parseArg(h *Handler, r *asm.ArgReader) (KernelArg, bool) {
	var arg KernelArg
	name, ok := r.ExpectName("argument name")
	if !ok || !r.ExpectComma() {
		return arg, false
	}
	arg.Name = name
	if r.Peek() == '"' {
		if arg.TypeName, ok = r.QuotedString(); !ok || !r.ExpectComma() {
			return arg, false
		}
	}

	r.SkipSpaces()
	typeLoc := r.Loc()
	word := r.Word()
	pointer := strings.HasSuffix(word, "*")
	if pointer {
		word = strings.TrimSuffix(word, "*")
	}
	t, vec, ok := parseArgType(word)
	if !ok {
		h.a.Error(typeLoc, asm.CategorySyntax, "Unknown argument type")
		return arg, false
	}

	switch {
	case pointer:
		return parsePointerArg(r, arg, t, vec)
	case t.isImage():
		return parseImageArg(r, arg, t)
	case t == ArgStructure:
		arg.Type = ArgStructure
		if !r.ExpectComma() {
			return arg, false
		}
		if arg.StructSize, ok = r.AbsValue(); !ok {
			return arg, false
		}
	default:
		arg.Type = t
		if vec > 1 {
			arg.VectorSize = vec
		}
	}
	arg.Used = UsedRead
	if r.AtEnd() {
		return arg, true
	}
	if !r.ExpectComma() {
		return arg, false
	}
	if w := r.Word(); w != "unused" {
		r.Errorf(asm.CategorySyntax, "Expected 'unused'")
		return arg, false
	}
	arg.Used = UsedNone
	return arg, r.ExpectEnd()
}

func parsePointerArg(r *asm.ArgReader, arg KernelArg, pointee ArgType, vec int) (KernelArg, bool) {
	arg.Type = ArgPointer
	arg.PointeeType = pointee
	if vec > 1 {
		arg.VectorSize = vec
	}
	arg.Used = UsedReadWrite
	if pointee == ArgStructure {
		if !r.ExpectComma() {
			return arg, false
		}
		size, ok := r.AbsValue()
		if !ok {
			return arg, false
		}
		arg.StructSize = size
	}
	if !r.ExpectComma() {
		return arg, false
	}
	switch r.Word() {
	case "global":
		arg.Space = SpaceGlobal
	case "constant":
		arg.Space = SpaceConstant
	case "local":
		arg.Space = SpaceLocal
	default:
		r.Errorf(asm.CategorySyntax, "Expected pointer space (global, constant or local)")
		return arg, false
	}
	if r.AtEnd() {
		return arg, true
	}
	if !r.ExpectComma() {
		return arg, false
	}
	for r.Peek() != ',' && !r.AtEnd() {
		switch r.Word() {
		case "const":
			arg.Access |= AccessConst
		case "restrict":
			arg.Access |= AccessRestrict
		case "volatile":
			arg.Access |= AccessVolatile
		default:
			r.Errorf(asm.CategorySyntax, "Unknown pointer qualifier")
			return arg, false
		}
	}
	if r.AtEnd() {
		return arg, true
	}
	if !r.ExpectComma() {
		return arg, false
	}
	used, ok := parseUsage(r)
	if !ok {
		return arg, false
	}
	arg.Used = used
	return arg, r.ExpectEnd()
}

func parseImageArg(r *asm.ArgReader, arg KernelArg, t ArgType) (KernelArg, bool) {
	arg.Type = t
	arg.Space = SpaceGlobal
	arg.Access = AccessReadOnly
	arg.Used = UsedReadWrite
	if r.AtEnd() {
		return arg, true
	}
	if !r.ExpectComma() {
		return arg, false
	}
	switch r.Word() {
	case "read_only", "rdonly":
		arg.Access = AccessReadOnly
	case "write_only", "wronly":
		arg.Access = AccessWriteOnly
	case "read_write", "rdwr":
		arg.Access = AccessReadWrite
	default:
		r.Errorf(asm.CategorySyntax, "Unknown image access qualifier")
		return arg, false
	}
	if r.AtEnd() {
		return arg, true
	}
	if !r.ExpectComma() {
		return arg, false
	}
	used, ok := parseUsage(r)
	if !ok {
		return arg, false
	}
	arg.Used = used
	return arg, r.ExpectEnd()
}

func parseUsage(r *asm.ArgReader) (int, bool) {
	switch r.Word() {
	case "unused":
		return UsedNone, true
	case "rdonly":
		return UsedRead, true
	case "wronly":
		return UsedWrite, true
	case "rdwr":
		return UsedReadWrite, true
	}
	r.Errorf(asm.CategorySyntax, "Unknown argument usage")
	return 0, false
}

type setupArg struct {
	name  string
	ptr   bool
	usage int
}

var setupArgs = [...]setupArg{
	{name: "_.global_offset_0"},
	{name: "_.global_offset_1"},
	{name: "_.global_offset_2"},
	{name: "_.printf_buffer", ptr: true, usage: UsedReadWrite},
	{name: "_.vqueue_pointer"},
	{name: "_.aqlwrap_pointer"},
}

func doSetupArgs(h *Handler, r *asm.ArgReader, loc asm.SourceLocation) {
	ks, kout := h.currentKernelState()
	if ks == nil || h.currentKind() != asm.KindConfig {
		h.a.Error(loc, asm.CategoryPlacement, "Illegal place of kernel argument")
		return
	}
	if !r.ExpectEnd() {
		return
	}
	if len(ks.argNames) != 0 {
		h.a.Error(loc, asm.CategoryPlacement, "SetupArgs must be as first in argument list")
		return
	}
	sizeType := ArgInt
	if h.a.Options().Is64Bit {
		sizeType = ArgLong
	}
	for _, sa := range setupArgs {
		arg := KernelArg{Name: sa.name, TypeName: "size_t", Type: sizeType, Used: sa.usage}
		if sa.ptr {
			arg.Type = ArgPointer
			arg.PointeeType = ArgVoid
			arg.Space = SpaceGlobal
		}
		ks.argNames[sa.name] = true
		kout.Config.Args = append(kout.Config.Args, arg)
	}
}
