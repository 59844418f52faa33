package asm

import (
	"fmt"
	"strings"
)

// ErrorLevel indicates the severity of a diagnostic
type ErrorLevel int

const (
	LevelWarning ErrorLevel = iota
	LevelError
	LevelFatal
)

func (l ErrorLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies a diagnostic
type ErrorCategory int

const (
	CategorySyntax ErrorCategory = iota
	CategoryPlacement
	CategoryDialect
	CategoryDuplicate
	CategoryRange
	CategoryVersionGate
	CategoryRelocation
	CategoryStructural
	CategoryInternal
)

func (c ErrorCategory) String() string {
	switch c {
	case CategorySyntax:
		return "syntax"
	case CategoryPlacement:
		return "placement"
	case CategoryDialect:
		return "dialect"
	case CategoryDuplicate:
		return "duplicate"
	case CategoryRange:
		return "range"
	case CategoryVersionGate:
		return "version"
	case CategoryRelocation:
		return "relocation"
	case CategoryStructural:
		return "structural"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// SourceLocation represents a position in source code
type SourceLocation struct {
	File   string
	Line   int
	Column int
	Length int // Length of the problematic token/expression
}

func (loc SourceLocation) String() string {
	if loc.File == "" {
		return fmt.Sprintf("%d:%d", loc.Line, loc.Column)
	}
	return fmt.Sprintf("%s:%d:%d", loc.File, loc.Line, loc.Column)
}

// ErrorContext provides additional context for a diagnostic
type ErrorContext struct {
	SourceLine string // The actual line of source code
	Suggestion string // "did you mean 'x'?"
	HelpText   string
}

// AsmError is a single diagnostic produced while assembling
type AsmError struct {
	Level    ErrorLevel
	Category ErrorCategory
	Message  string
	Location SourceLocation
	Context  ErrorContext
}

// Error implements the error interface
func (e AsmError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

// Format returns the diagnostic with source context, optionally colored
func (e AsmError) Format(useColor bool) string {
	var sb strings.Builder

	headerColor := "\033[1;31m" // Bold red
	if e.Level == LevelWarning {
		headerColor = "\033[1;33m" // Bold yellow
	}
	if useColor {
		sb.WriteString(headerColor)
	}
	sb.WriteString(e.Level.String())
	sb.WriteString(": ")
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	if useColor {
		sb.WriteString("\033[1;34m") // Bold blue
	}
	sb.WriteString("  --> ")
	sb.WriteString(e.Location.String())
	if useColor {
		sb.WriteString("\033[0m")
	}
	sb.WriteString("\n")

	if e.Context.SourceLine != "" {
		lineNum := fmt.Sprintf("%d", e.Location.Line)
		padding := strings.Repeat(" ", len(lineNum)+1)

		sb.WriteString(padding)
		sb.WriteString("|\n")
		sb.WriteString(lineNum)
		sb.WriteString(" | ")
		sb.WriteString(e.Context.SourceLine)
		sb.WriteString("\n")
		sb.WriteString(padding)
		sb.WriteString("| ")

		if e.Location.Column > 0 {
			sb.WriteString(strings.Repeat(" ", e.Location.Column-1))
			if useColor {
				sb.WriteString(headerColor)
			}
			if e.Location.Length > 0 {
				sb.WriteString(strings.Repeat("^", e.Location.Length))
			} else {
				sb.WriteString("^")
			}
			if useColor {
				sb.WriteString("\033[0m")
			}
		}
		sb.WriteString("\n")
	}

	if e.Context.Suggestion != "" {
		if useColor {
			sb.WriteString("\033[1;32m") // Bold green
		}
		sb.WriteString("   help: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Context.Suggestion)
		sb.WriteString("\n")
	}

	if e.Context.HelpText != "" {
		if useColor {
			sb.WriteString("\033[1;36m") // Bold cyan
		}
		sb.WriteString("   note: ")
		if useColor {
			sb.WriteString("\033[0m")
		}
		sb.WriteString(e.Context.HelpText)
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatError is returned by format handler operations. The assembler turns
// it into a diagnostic at the position of the statement that caused it.
type FormatError struct {
	Category ErrorCategory
	Message  string
	// Help becomes the note line of the diagnostic
	Help string
}

func (e *FormatError) Error() string {
	return e.Message
}

// Errorf builds a FormatError
func Errorf(category ErrorCategory, format string, args ...any) *FormatError {
	return &FormatError{Category: category, Message: fmt.Sprintf(format, args...)}
}

// WithHelp sets the note shown under the diagnostic
func (e *FormatError) WithHelp(format string, args ...any) *FormatError {
	e.Help = fmt.Sprintf(format, args...)
	return e
}

// ErrorCollector accumulates diagnostics during assembly
type ErrorCollector struct {
	errors     []AsmError
	warnings   []AsmError
	maxErrors  int
	sourceCode string
	lines      []string
}

// NewErrorCollector creates a new error collector
func NewErrorCollector(maxErrors int) *ErrorCollector {
	if maxErrors <= 0 {
		maxErrors = 100
	}
	return &ErrorCollector{
		errors:    make([]AsmError, 0),
		warnings:  make([]AsmError, 0),
		maxErrors: maxErrors,
	}
}

// SetSourceCode stores the source code for error context
func (ec *ErrorCollector) SetSourceCode(source string) {
	ec.sourceCode = source
	ec.lines = nil
}

// AddError adds a diagnostic, routing warnings to the warning list
func (ec *ErrorCollector) AddError(err AsmError) {
	if err.Context.SourceLine == "" {
		err.Context.SourceLine = ec.getSourceLine(err.Location.Line)
	}

	if err.Level == LevelFatal || err.Level == LevelError {
		ec.errors = append(ec.errors, err)
	} else {
		ec.warnings = append(ec.warnings, err)
	}
}

// AddWarning adds a warning
func (ec *ErrorCollector) AddWarning(warn AsmError) {
	warn.Level = LevelWarning
	ec.AddError(warn)
}

func (ec *ErrorCollector) getSourceLine(lineNum int) string {
	if ec.sourceCode == "" || lineNum <= 0 {
		return ""
	}
	if ec.lines == nil {
		ec.lines = strings.Split(ec.sourceCode, "\n")
	}
	if lineNum > len(ec.lines) {
		return ""
	}
	return strings.TrimRight(ec.lines[lineNum-1], "\r")
}

// HasErrors returns true if any errors were collected
func (ec *ErrorCollector) HasErrors() bool {
	return len(ec.errors) > 0
}

// ErrorCount returns the number of errors
func (ec *ErrorCollector) ErrorCount() int {
	return len(ec.errors)
}

// WarningCount returns the number of warnings
func (ec *ErrorCollector) WarningCount() int {
	return len(ec.warnings)
}

// Errors returns the collected errors in order
func (ec *ErrorCollector) Errors() []AsmError {
	return ec.errors
}

// Warnings returns the collected warnings in order
func (ec *ErrorCollector) Warnings() []AsmError {
	return ec.warnings
}

// ShouldStop returns true if we've hit the error limit
func (ec *ErrorCollector) ShouldStop() bool {
	return len(ec.errors) >= ec.maxErrors
}

// Report formats all errors and warnings for display
func (ec *ErrorCollector) Report(useColor bool) string {
	var sb strings.Builder

	for i, err := range ec.errors {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(err.Format(useColor))
	}

	for i, warn := range ec.warnings {
		if i > 0 || len(ec.errors) > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(warn.Format(useColor))
	}

	if len(ec.errors) > 0 || len(ec.warnings) > 0 {
		sb.WriteString("\n")
		if len(ec.errors) > 0 {
			if useColor {
				sb.WriteString("\033[1;31m")
			}
			sb.WriteString(fmt.Sprintf("%d error(s)", len(ec.errors)))
			if useColor {
				sb.WriteString("\033[0m")
			}
		}
		if len(ec.warnings) > 0 {
			if len(ec.errors) > 0 {
				sb.WriteString(", ")
			}
			if useColor {
				sb.WriteString("\033[1;33m")
			}
			sb.WriteString(fmt.Sprintf("%d warning(s)", len(ec.warnings)))
			if useColor {
				sb.WriteString("\033[0m")
			}
		}
		sb.WriteString(" found\n")
	}

	return sb.String()
}

// Clear resets the error collector
func (ec *ErrorCollector) Clear() {
	ec.errors = make([]AsmError, 0)
	ec.warnings = make([]AsmError, 0)
}
