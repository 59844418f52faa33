package asm

import "strings"

// ArgReader walks the operand text of a directive. Parse failures are
// reported to the assembler at the failing column and returned as false.
type ArgReader struct {
	a    *Assembler
	text string
	pos  int
	loc  SourceLocation
}

// NewArgReader creates a reader over text that starts at loc
func (a *Assembler) NewArgReader(text string, loc SourceLocation) *ArgReader {
	return &ArgReader{a: a, text: text, loc: loc}
}

// Loc returns the source location of the current position
func (r *ArgReader) Loc() SourceLocation {
	loc := r.loc
	loc.Column += r.pos
	loc.Length = 0
	return loc
}

func (r *ArgReader) SkipSpaces() {
	for r.pos < len(r.text) && (r.text[r.pos] == ' ' || r.text[r.pos] == '\t') {
		r.pos++
	}
}

// AtEnd reports whether only blanks remain
func (r *ArgReader) AtEnd() bool {
	r.SkipSpaces()
	return r.pos >= len(r.text)
}

// Peek returns the next non-blank character or 0
func (r *ArgReader) Peek() byte {
	if r.AtEnd() {
		return 0
	}
	return r.text[r.pos]
}

// Skip consumes c if it is the next non-blank character
func (r *ArgReader) Skip(c byte) bool {
	if r.Peek() == c {
		r.pos++
		return true
	}
	return false
}

// ExpectComma consumes a ',' or reports an error
func (r *ArgReader) ExpectComma() bool {
	if r.Skip(',') {
		return true
	}
	r.Errorf(CategorySyntax, "Expected ','")
	return false
}

// Rest returns the unread text without consuming it
func (r *ArgReader) Rest() string {
	r.SkipSpaces()
	return r.text[r.pos:]
}

// Name reads an identifier. It returns "" without consuming anything when
// the next token is not a name.
func (r *ArgReader) Name() string {
	r.SkipSpaces()
	start := r.pos
	if r.pos < len(r.text) && IsNameStart(r.text[r.pos]) {
		for r.pos < len(r.text) && IsNameChar(r.text[r.pos]) {
			r.pos++
		}
	}
	return r.text[start:r.pos]
}

// ExpectName reads an identifier or reports "Expected <what>"
func (r *ArgReader) ExpectName(what string) (string, bool) {
	name := r.Name()
	if name == "" {
		r.Errorf(CategorySyntax, "Expected %s", what)
		return "", false
	}
	return name, true
}

// Word reads non-blank characters up to the next ',' (lowercased)
func (r *ArgReader) Word() string {
	r.SkipSpaces()
	start := r.pos
	for r.pos < len(r.text) && r.text[r.pos] != ',' && r.text[r.pos] != ' ' && r.text[r.pos] != '\t' {
		r.pos++
	}
	return strings.ToLower(r.text[start:r.pos])
}

// QuotedString reads a double-quoted string with C escapes
func (r *ArgReader) QuotedString() (string, bool) {
	if r.Peek() != '"' {
		r.Errorf(CategorySyntax, "Expected string")
		return "", false
	}
	r.pos++
	var sb strings.Builder
	for r.pos < len(r.text) {
		c := r.text[r.pos]
		r.pos++
		switch c {
		case '"':
			return sb.String(), true
		case '\\':
			if r.pos >= len(r.text) {
				break
			}
			e := r.text[r.pos]
			r.pos++
			switch e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '0':
				sb.WriteByte(0)
			default:
				sb.WriteByte(e)
			}
		default:
			sb.WriteByte(c)
		}
	}
	r.Errorf(CategorySyntax, "Unterminated string")
	return "", false
}

// Expr parses one expression
func (r *ArgReader) Expr() (Expr, SourceLocation, bool) {
	r.SkipSpaces()
	loc := r.Loc()
	e, n, err := ParseExpr(r.text[r.pos:])
	if err != nil {
		r.pos += n
		r.Errorf(CategorySyntax, "%v", err)
		return nil, loc, false
	}
	loc.Length = n
	r.pos += n
	return e, loc, true
}

// Value parses and evaluates an expression
func (r *ArgReader) Value() (uint64, SectionID, bool) {
	e, loc, ok := r.Expr()
	if !ok {
		return 0, SectionAbs, false
	}
	v, sect, err := e.Evaluate(r.a)
	if err != nil {
		r.a.reportEvalError(loc, err)
		return 0, SectionAbs, false
	}
	return v, sect, true
}

// AbsValue parses an expression that must evaluate to an absolute value
func (r *ArgReader) AbsValue() (uint64, bool) {
	r.SkipSpaces()
	loc := r.Loc()
	v, sect, ok := r.Value()
	if !ok {
		return 0, false
	}
	if sect != SectionAbs {
		r.a.Error(loc, CategorySyntax, "Expression must be absolute!")
		return 0, false
	}
	return v, true
}

// ExpectEnd reports trailing garbage
func (r *ArgReader) ExpectEnd() bool {
	if r.AtEnd() {
		return true
	}
	r.Errorf(CategorySyntax, "Garbages at end of line")
	return false
}

// Errorf reports an error at the current position
func (r *ArgReader) Errorf(category ErrorCategory, format string, args ...any) {
	r.a.Error(r.Loc(), category, format, args...)
}

// Warnf reports a warning at the current position
func (r *ArgReader) Warnf(format string, args ...any) {
	r.a.Warning(r.Loc(), format, args...)
}
