package asm

import "math/bits"

var dataSizes = map[string]int{
	"byte":  1,
	"short": 2,
	"hword": 2,
	"half":  2,
	"int":   4,
	"long":  4,
	"word":  4,
	"quad":  8,
}

var coreDirectives = []string{
	"align", "ascii", "asciz", "balign", "bss", "byte", "data", "equ", "fill",
	"global", "globl", "half", "hword", "int", "kernel", "local", "long",
	"main", "quad", "rodata", "section", "set", "short", "size", "skip",
	"space", "string", "text", "weak", "word",
}

func coreDirectiveNames() []string {
	out := make([]string, len(coreDirectives))
	copy(out, coreDirectives)
	return out
}

// coreDirective handles the format-independent pseudo-ops
func (a *Assembler) coreDirective(name, args string, loc SourceLocation) bool {
	r := a.NewArgReader(args, loc)

	if size, ok := dataSizes[name]; ok {
		a.parseData(r, size)
		return true
	}

	switch name {
	case "kernel":
		kname, ok := r.ExpectName("kernel name")
		if ok && r.ExpectEnd() {
			a.EnterKernel(kname, loc)
		}
	case "main":
		if r.ExpectEnd() {
			if err := a.handler.SetCurrentKernel(KernelGlobal); err != nil {
				a.ReportError(loc, err)
			}
		}
	case "text", "data", "rodata", "bss":
		if r.ExpectEnd() {
			a.GoToSection("."+name, loc)
		}
	case "section":
		a.parseSection(r, loc)
	case "fill":
		a.parseFill(r)
	case "skip", "space":
		a.parseSkip(r)
	case "align", "balign":
		a.parseAlign(r)
	case "ascii", "asciz", "string":
		a.parseASCII(r, name != "ascii")
	case "globl", "global", "local", "weak":
		a.parseBinding(r, name)
	case "size":
		a.parseSize(r)
	case "set", "equ":
		symName, ok := r.ExpectName("symbol name")
		if ok && r.ExpectComma() {
			a.assignSymbol(symName, r.Rest(), r.Loc())
		}
	default:
		return false
	}
	return true
}

func (a *Assembler) parseData(r *ArgReader, size int) {
	if r.AtEnd() {
		return
	}
	for {
		e, loc, ok := r.Expr()
		if !ok {
			return
		}
		a.emitValue(e, size, loc)
		if !r.Skip(',') {
			break
		}
	}
	r.ExpectEnd()
}

func (a *Assembler) parseSection(r *ArgReader, loc SourceLocation) {
	name, ok := r.ExpectName("section name")
	if !ok {
		return
	}
	var attrs uint32
	kind := KindExtra
	typed := false
	if r.Skip(',') {
		if r.Peek() == '"' {
			flags, ok := r.QuotedString()
			if !ok {
				return
			}
			for _, c := range flags {
				switch c {
				case 'a':
					attrs |= AttrAlloc
				case 'w':
					attrs |= AttrWrite
				case 'x':
					attrs |= AttrExec
				default:
					r.Errorf(CategorySyntax, "Unsupported section flag '%c'", c)
					return
				}
			}
			typed = true
		}
		if r.Skip(',') || (!typed && r.Peek() == '@') {
			if !r.Skip('@') {
				r.Errorf(CategorySyntax, "Expected '@' before section type")
				return
			}
			switch t := r.Name(); t {
			case "progbits":
				kind = KindExtraProgbits
			case "note":
				kind = KindExtraNote
			case "nobits":
				kind = KindExtraNobits
			default:
				r.Errorf(CategorySyntax, "Unknown section type '%s'", t)
				return
			}
			typed = true
		}
	}
	if !r.ExpectEnd() {
		return
	}
	id, ok := a.GoToSection(name, loc)
	if !ok || !typed {
		return
	}
	if s := a.Section(id); s != nil && s.Kind.IsExtra() {
		s.Attrs = attrs
		s.Kind = kind
	}
}

func (a *Assembler) parseFill(r *ArgReader) {
	count, ok := r.AbsValue()
	if !ok {
		return
	}
	size, value := uint64(1), uint64(0)
	if r.Skip(',') {
		if size, ok = r.AbsValue(); !ok {
			return
		}
		if r.Skip(',') {
			if value, ok = r.AbsValue(); !ok {
				return
			}
		}
	}
	if !r.ExpectEnd() {
		return
	}
	if size > 8 {
		r.Errorf(CategoryRange, "Fill size must be at most 8")
		return
	}
	loc := r.Loc()
	if value == 0 {
		a.Reserve(loc, count*size, 0)
		return
	}
	var word [8]byte
	for i := range word {
		word[i] = byte(value >> (8 * i))
	}
	for i := uint64(0); i < count; i++ {
		if !a.Write(loc, word[:size]) {
			return
		}
	}
}

func (a *Assembler) parseSkip(r *ArgReader) {
	n, ok := r.AbsValue()
	if !ok {
		return
	}
	var fill uint64
	if r.Skip(',') {
		if fill, ok = r.AbsValue(); !ok {
			return
		}
	}
	if r.ExpectEnd() {
		a.Reserve(r.Loc(), n, byte(a.WarnTruncated(fill, 8, r.Loc())))
	}
}

func (a *Assembler) parseAlign(r *ArgReader) {
	loc := r.Loc()
	align, ok := r.AbsValue()
	if !ok {
		return
	}
	var fill uint64
	if r.Skip(',') {
		if fill, ok = r.AbsValue(); !ok {
			return
		}
	}
	if !r.ExpectEnd() {
		return
	}
	if align == 0 || bits.OnesCount64(align) != 1 {
		a.Error(loc, CategoryRange, "Alignment must be power of two")
		return
	}
	s := a.Section(a.section)
	if s == nil {
		a.Error(loc, CategoryPlacement, "No current section")
		return
	}
	if align > s.Alignment {
		s.Alignment = align
	}
	if pad := (align - s.Size%align) % align; pad > 0 {
		a.Reserve(loc, pad, byte(fill))
	}
}

func (a *Assembler) parseASCII(r *ArgReader, zeroTerminated bool) {
	for {
		loc := r.Loc()
		str, ok := r.QuotedString()
		if !ok {
			return
		}
		data := []byte(str)
		if zeroTerminated {
			data = append(data, 0)
		}
		if !a.Write(loc, data) {
			return
		}
		if !r.Skip(',') {
			break
		}
	}
	r.ExpectEnd()
}

func (a *Assembler) parseBinding(r *ArgReader, directive string) {
	binding := BindGlobal
	switch directive {
	case "local":
		binding = BindLocal
	case "weak":
		binding = BindWeak
	}
	for {
		name, ok := r.ExpectName("symbol name")
		if !ok {
			return
		}
		a.symbols.Get(name).Binding = binding
		if !r.Skip(',') {
			break
		}
	}
	r.ExpectEnd()
}

func (a *Assembler) parseSize(r *ArgReader) {
	name, ok := r.ExpectName("symbol name")
	if !ok || !r.ExpectComma() {
		return
	}
	size, ok := r.AbsValue()
	if ok && r.ExpectEnd() {
		a.symbols.Get(name).Size = size
	}
}
