// Package asm is a small single-pass assembler core. It keeps the symbol
// table and section storage and parses statements. The semantics of a
// particular binary format are delegated to a FormatHandler.
package asm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xyproto/gcnasm/internal/gpu"
)

// Options configure one assembler run
type Options struct {
	Device  gpu.DeviceType
	Is64Bit bool
	// DriverVersion overrides driver detection when non-zero
	DriverVersion uint32
	// ForceAddSymbols copies global symbols into the output binary
	ForceAddSymbols bool
	// TestRun leaves the output driver version unset unless given explicitly
	TestRun   bool
	Verbose   bool
	Log       io.Writer
	MaxErrors int
}

// Assembler holds the state of one assembly. It is not safe for
// concurrent use; run one Assembler per input.
type Assembler struct {
	opts    Options
	handler FormatHandler
	encoder ISAEncoder
	errs    *ErrorCollector

	symbols  *SymbolTable
	sections []*Section
	relocs   []Relocation

	kernel  KernelID
	section SectionID

	kernelIDs map[string]KernelID

	file string
}

// New creates an assembler using the handler built by newHandler
func New(opts Options, newHandler HandlerFactory, encoder ISAEncoder) *Assembler {
	a := &Assembler{
		opts:      opts,
		encoder:   encoder,
		errs:      NewErrorCollector(opts.MaxErrors),
		symbols:   NewSymbolTable(),
		kernel:    KernelGlobal,
		section:   SectionNone,
		kernelIDs: make(map[string]KernelID),
	}
	a.handler = newHandler(a)
	return a
}

func (a *Assembler) Options() Options { return a.opts }
func (a *Assembler) Handler() FormatHandler { return a.handler }
func (a *Assembler) Encoder() ISAEncoder { return a.encoder }
func (a *Assembler) Errors() *ErrorCollector { return a.errs }
func (a *Assembler) Symbols() *SymbolTable { return a.symbols }
func (a *Assembler) Relocations() []Relocation { return a.relocs }
func (a *Assembler) CurrentKernel() KernelID { return a.kernel }
func (a *Assembler) CurrentSection() SectionID { return a.section }
func (a *Assembler) SectionCount() int { return len(a.sections) }
func (a *Assembler) AddRelocation(rel Relocation) { a.relocs = append(a.relocs, rel) }

// SetCursor moves the write position. Only format handlers call this.
func (a *Assembler) SetCursor(kernel KernelID, section SectionID) {
	a.kernel = kernel
	a.section = section
}

// NewSection allocates storage for a section and returns its id
func (a *Assembler) NewSection(name string, kernel KernelID, kind SectionKind) SectionID {
	a.sections = append(a.sections, &Section{
		Name:      name,
		Kernel:    kernel,
		Kind:      kind,
	})
	return SectionID(len(a.sections) - 1)
}

// Section returns the storage of a section or nil for invalid ids
func (a *Assembler) Section(id SectionID) *Section {
	if int(id) >= len(a.sections) {
		return nil
	}
	return a.sections[id]
}

// Offset returns the write offset in the current section
func (a *Assembler) Offset() uint64 {
	if s := a.Section(a.section); s != nil {
		return s.Size
	}
	return 0
}

// Logf writes a progress message in verbose mode
func (a *Assembler) Logf(format string, args ...any) {
	if a.opts.Verbose && a.opts.Log != nil {
		fmt.Fprintf(a.opts.Log, format+"\n", args...)
	}
}

// Error reports an error diagnostic
func (a *Assembler) Error(loc SourceLocation, category ErrorCategory, format string, args ...any) {
	a.errs.AddError(AsmError{
		Level:    LevelError,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Location: a.locate(loc),
	})
}

// Warning reports a warning diagnostic
func (a *Assembler) Warning(loc SourceLocation, format string, args ...any) {
	a.errs.AddWarning(AsmError{
		Category: CategoryRange,
		Message:  fmt.Sprintf(format, args...),
		Location: a.locate(loc),
	})
}

// ReportError turns an error returned by a handler into a diagnostic
func (a *Assembler) ReportError(loc SourceLocation, err error) {
	var fe *FormatError
	if errors.As(err, &fe) {
		a.errs.AddError(AsmError{
			Level:    LevelError,
			Category: fe.Category,
			Message:  fe.Message,
			Location: a.locate(loc),
			Context:  ErrorContext{HelpText: fe.Help},
		})
		return
	}
	a.Error(loc, CategorySyntax, "%v", err)
}

func (a *Assembler) locate(loc SourceLocation) SourceLocation {
	if loc.File == "" {
		loc.File = a.file
	}
	return loc
}

// WarnTruncated warns when value does not fit in bits and returns it masked
func (a *Assembler) WarnTruncated(value uint64, bits int, loc SourceLocation) uint64 {
	if bits >= 64 {
		return value
	}
	mask := uint64(1)<<bits - 1
	if value > mask {
		a.Warning(loc, "Value 0x%x truncated to 0x%x", value, value&mask)
	}
	return value & mask
}

// LookupValue implements Scope. The name "." is the current position.
func (a *Assembler) LookupValue(name string) (uint64, SectionID, bool) {
	if name == "." {
		if a.Section(a.section) == nil {
			return 0, SectionAbs, false
		}
		return a.Offset(), a.section, true
	}
	sym := a.symbols.Lookup(name)
	if sym == nil || !sym.HasValue {
		return 0, SectionAbs, false
	}
	return sym.Value, sym.Section, true
}

// DefineSymbol assigns a value to a symbol. Labels cannot be redefined.
func (a *Assembler) DefineSymbol(name string, value uint64, section SectionID, loc SourceLocation) bool {
	sym := a.symbols.Get(name)
	if sym.Label && sym.HasValue {
		a.Error(loc, CategoryDuplicate, "Symbol '%s' is already defined", name)
		return false
	}
	sym.Value = value
	sym.Section = section
	sym.HasValue = true
	return true
}

// reportEvalError reports an evaluation failure, suggesting a close
// symbol name for undefined references.
func (a *Assembler) reportEvalError(loc SourceLocation, err error) {
	diag := AsmError{
		Level:    LevelError,
		Category: CategorySyntax,
		Message:  err.Error(),
		Location: a.locate(loc),
	}
	var undef *UndefinedSymbolError
	if errors.As(err, &undef) {
		var names []string
		for _, sym := range a.symbols.Sorted() {
			if sym.HasValue {
				names = append(names, sym.Name)
			}
		}
		if similar := findSimilarNames(undef.Name, names, 1); len(similar) > 0 {
			diag.Context.Suggestion = fmt.Sprintf("did you mean '%s'?", similar[0])
		}
	}
	a.errs.AddError(diag)
}

func (a *Assembler) sectionFlags(id SectionID) SectionFlags {
	info, err := a.handler.SectionInfo(id)
	if err != nil {
		return 0
	}
	return info.Flags
}

// ResolveValue evaluates an expression that is about to be stored at
// target. Values relative to a section that cannot be resolved at assembly
// time are passed to the format handler, which may emit a relocation.
func (a *Assembler) ResolveValue(expr Expr, target Target) (uint64, bool) {
	v, sect, err := expr.Evaluate(a)
	if err == nil {
		if sect == SectionAbs || a.sectionFlags(sect)&FlagAbsAddressable != 0 {
			return v, true
		}
	} else if !errors.Is(err, ErrRelative) {
		a.reportEvalError(target.Pos, err)
		return 0, false
	}

	v, sect, ok := a.handler.ResolveRelocation(expr, target)
	if !ok {
		return 0, false
	}
	if sect != SectionAbs {
		a.Error(target.Pos, CategoryRelocation, "Expression must be absolute!")
		return 0, false
	}
	return v, true
}

// Write appends bytes to the current section
func (a *Assembler) Write(loc SourceLocation, data []byte) bool {
	s := a.Section(a.section)
	if s == nil {
		a.Error(loc, CategoryPlacement, "No current section")
		return false
	}
	if a.sectionFlags(a.section)&FlagWriteable == 0 {
		a.Error(loc, CategoryPlacement, "Writing data into non-writeable section is illegal")
		return false
	}
	s.Content = append(s.Content, data...)
	s.Size += uint64(len(data))
	return true
}

// Reserve advances the current section by n bytes, filling with fill
// when the section holds content.
func (a *Assembler) Reserve(loc SourceLocation, n uint64, fill byte) bool {
	s := a.Section(a.section)
	if s == nil {
		a.Error(loc, CategoryPlacement, "No current section")
		return false
	}
	if a.sectionFlags(a.section)&FlagWriteable == 0 {
		if fill != 0 {
			a.Error(loc, CategoryPlacement, "Filling non-writeable section with non-zero values is illegal")
			return false
		}
		s.Size += n
		return true
	}
	for i := uint64(0); i < n; i++ {
		s.Content = append(s.Content, fill)
	}
	s.Size += n
	return true
}

func (a *Assembler) emitValue(expr Expr, size int, loc SourceLocation) {
	kind := TargetData64
	switch size {
	case 1:
		kind = TargetData8
	case 2:
		kind = TargetData16
	case 4:
		kind = TargetData32
	}
	target := Target{Section: a.section, Offset: a.Offset(), Kind: kind, Pos: loc}
	v, ok := a.ResolveValue(expr, target)
	if !ok {
		v = 0
	} else if size < 8 {
		v = a.WarnTruncated(v, size*8, loc)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	a.Write(loc, buf[:size])
}

// Assemble processes the source text and prepares the binary. It returns
// false if any error was reported.
func (a *Assembler) Assemble(file, source string) bool {
	a.file = file
	a.errs.SetSourceCode(source)
	a.Logf("assembling %s", displayName(file))

	for i, raw := range strings.Split(source, "\n") {
		a.processLine(strings.TrimRight(raw, "\r"), i+1)
		if a.errs.ShouldStop() {
			a.errs.AddError(AsmError{
				Level:    LevelFatal,
				Category: CategoryInternal,
				Message:  "too many errors, stopping",
				Location: SourceLocation{File: file, Line: i + 1},
			})
			return false
		}
	}

	if !a.handler.PrepareBinary() {
		return false
	}
	return !a.errs.HasErrors()
}

func displayName(file string) string {
	if file == "" {
		return "<input>"
	}
	return file
}

func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '"' && (i == 0 || line[i-1] != '\\'):
			inString = !inString
		case !inString && (c == '#' || c == ';'):
			return line[:i]
		}
	}
	return line
}

func (a *Assembler) processLine(raw string, lineNum int) {
	line := stripComment(raw)
	col := 1
	loc := func(at int) SourceLocation {
		return SourceLocation{File: a.file, Line: lineNum, Column: col + at}
	}

	for {
		trimmed := strings.TrimLeft(line, " \t")
		col += len(line) - len(trimmed)
		line = trimmed
		if line == "" {
			return
		}

		n := 0
		for n < len(line) && IsNameChar(line[n]) {
			n++
		}
		if n == 0 || !IsNameStart(line[0]) {
			break
		}
		rest := strings.TrimLeft(line[n:], " \t")

		if strings.HasPrefix(rest, ":") {
			a.defineLabel(line[:n], loc(0))
			skip := len(line) - len(rest) + 1
			col += skip
			line = line[skip:]
			continue
		}
		if strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "==") {
			argsAt := len(line) - len(rest) + 1
			a.assignSymbol(line[:n], line[argsAt:], loc(argsAt))
			return
		}
		break
	}

	n := 0
	for n < len(line) && line[n] != ' ' && line[n] != '\t' {
		n++
	}
	word := line[:n]
	rest := strings.TrimLeft(line[n:], " \t")
	argsLoc := loc(len(line) - len(rest))

	if strings.HasPrefix(word, ".") {
		name := strings.ToLower(word[1:])
		if a.coreDirective(name, rest, argsLoc) {
			return
		}
		if a.handler.ParseDirective(name, rest, argsLoc) {
			return
		}
		a.unknownDirective(word, loc(0))
		return
	}

	if a.encoder == nil {
		a.Error(loc(0), CategorySyntax, "No instruction encoder for '%s'", word)
		return
	}
	if err := a.encoder.Encode(a, strings.ToLower(word), rest, argsLoc); err != nil && !errors.Is(err, ErrReported) {
		at := loc(0)
		at.Length = len(word)
		a.ReportError(at, err)
	}
}

func (a *Assembler) unknownDirective(word string, loc SourceLocation) {
	loc.Length = len(word)
	candidates := append(coreDirectiveNames(), a.handler.DirectiveNames()...)
	for i, c := range candidates {
		candidates[i] = "." + c
	}
	err := AsmError{
		Level:    LevelError,
		Category: CategorySyntax,
		Message:  fmt.Sprintf("Unknown pseudo-op '%s'", word),
		Location: a.locate(loc),
	}
	if similar := findSimilarNames(strings.ToLower(word), candidates, 1); len(similar) > 0 {
		err.Context.Suggestion = fmt.Sprintf("did you mean '%s'?", similar[0])
	}
	a.errs.AddError(err)
}

func (a *Assembler) defineLabel(name string, loc SourceLocation) {
	loc.Length = len(name)
	s := a.Section(a.section)
	if s == nil || a.sectionFlags(a.section)&FlagAddressable == 0 {
		a.Error(loc, CategoryPlacement, "Label '%s' defined in non-addressable section", name)
		return
	}
	sym := a.symbols.Get(name)
	if sym.HasValue {
		a.Error(loc, CategoryDuplicate, "Symbol '%s' is already defined", name)
		return
	}
	sym.Value = s.Size
	sym.Section = a.section
	sym.HasValue = true
	sym.Label = true
}

func (a *Assembler) assignSymbol(name, text string, loc SourceLocation) {
	r := a.NewArgReader(text, loc)
	v, sect, ok := r.Value()
	if !ok || !r.ExpectEnd() {
		return
	}
	loc.Length = len(name)
	a.DefineSymbol(name, v, sect, loc)
}

// EnterKernel switches to the named kernel, creating it on first use
func (a *Assembler) EnterKernel(name string, loc SourceLocation) bool {
	if id, ok := a.kernelIDs[name]; ok {
		if err := a.handler.SetCurrentKernel(id); err != nil {
			a.ReportError(loc, err)
			return false
		}
		return true
	}
	id, err := a.handler.AddKernel(name)
	if err != nil {
		a.ReportError(loc, err)
		return false
	}
	a.kernelIDs[name] = id
	a.Logf("kernel %s -> %v", name, id)
	return true
}

// GoToSection switches to a section by name, asking the handler to create
// it when it does not exist yet.
func (a *Assembler) GoToSection(name string, loc SourceLocation) (SectionID, bool) {
	if id, ok := a.handler.SectionID(name); ok {
		if err := a.handler.SetCurrentSection(id); err != nil {
			a.ReportError(loc, err)
			return SectionNone, false
		}
		return id, true
	}
	id, err := a.handler.AddSection(name, a.kernel)
	if err != nil {
		a.ReportError(loc, err)
		return SectionNone, false
	}
	a.Logf("section %s -> %d (%v)", name, id, a.kernel)
	return id, true
}
