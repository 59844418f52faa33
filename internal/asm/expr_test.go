package asm

import (
	"errors"
	"testing"
)

type mapScope map[string]struct {
	value   uint64
	section SectionID
}

func (m mapScope) LookupValue(name string) (uint64, SectionID, bool) {
	v, ok := m[name]
	return v.value, v.section, ok
}

func TestParseExprValues(t *testing.T) {
	scope := mapScope{
		"four": {4, SectionAbs},
		".x":   {10, SectionAbs},
	}
	tests := []struct {
		input string
		want  uint64
	}{
		{"1", 1},
		{"0x10", 16},
		{"0b101", 5},
		{"017", 15},
		{"'A'", 65},
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"1<<4|1", 17},
		{"-1", 0xffffffffffffffff},
		{"~0 & 0xff", 0xff},
		{"four*four-1", 15},
		{".x/3", 3},
		{"-7//2", uint64(0xfffffffffffffffd)},
		{"7%%4", 3},
		{"-8>>>1", uint64(0xfffffffffffffffc)},
		{"0x100000000>>32", 1},
		{"2 == 2 && 3 != 4", 1},
		{"!0", 1},
		{"3 > 4 || 1 <= 0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e, n, err := ParseExpr(tt.input)
			if err != nil {
				t.Fatalf("ParseExpr(%q) error: %v", tt.input, err)
			}
			if n != len(tt.input) {
				t.Errorf("ParseExpr(%q) consumed %d bytes, want %d", tt.input, n, len(tt.input))
			}
			got, sect, err := e.Evaluate(scope)
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.input, err)
			}
			if sect != SectionAbs {
				t.Errorf("Evaluate(%q) section = %d, want absolute", tt.input, sect)
			}
			if got != tt.want {
				t.Errorf("Evaluate(%q) = %#x, want %#x", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseExprStopsAtComma(t *testing.T) {
	e, n, err := ParseExpr("a + 1, 5")
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("consumed %d bytes, want 5", n)
	}
	if e.String() != "(a+1)" {
		t.Errorf("String() = %q, want %q", e.String(), "(a+1)")
	}
}

func TestParseExprErrors(t *testing.T) {
	for _, input := range []string{"", "(1+2", "1+", "0xzz", "@"} {
		if _, _, err := ParseExpr(input); err == nil {
			t.Errorf("ParseExpr(%q) expected error", input)
		}
	}
}

func TestEvaluateSectionArithmetic(t *testing.T) {
	scope := mapScope{
		"a": {8, 1},
		"b": {2, 1},
		"c": {4, 2},
	}
	tests := []struct {
		input    string
		want     uint64
		section  SectionID
		relative bool
	}{
		{"a+4", 12, 1, false},
		{"4+a", 12, 1, false},
		{"a-2", 6, 1, false},
		{"a-b", 6, SectionAbs, false},
		{"a-c", 0, 0, true},
		{"a+c", 0, 0, true},
		{"a&0xffffffff", 0, 0, true},
		{"a>>32", 0, 0, true},
		{"-a", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e, _, err := ParseExpr(tt.input)
			if err != nil {
				t.Fatal(err)
			}
			v, sect, err := e.Evaluate(scope)
			if tt.relative {
				if !errors.Is(err, ErrRelative) {
					t.Errorf("Evaluate(%q) error = %v, want ErrRelative", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.input, err)
			}
			if v != tt.want || sect != tt.section {
				t.Errorf("Evaluate(%q) = %d in %d, want %d in %d", tt.input, v, sect, tt.want, tt.section)
			}
		})
	}
}

func TestEvaluateUndefined(t *testing.T) {
	e, _, _ := ParseExpr("missing+1")
	_, _, err := e.Evaluate(mapScope{})
	var undef *UndefinedSymbolError
	if !errors.As(err, &undef) || undef.Name != "missing" {
		t.Errorf("Evaluate error = %v, want undefined symbol 'missing'", err)
	}
}

func TestDivisionByZero(t *testing.T) {
	for _, input := range []string{"1/0", "1%0", "1//0", "1%%0"} {
		e, _, _ := ParseExpr(input)
		if _, _, err := e.Evaluate(mapScope{}); err == nil {
			t.Errorf("Evaluate(%q) expected division error", input)
		}
	}
}

func TestOutermostOp(t *testing.T) {
	e, _, _ := ParseExpr("(x + 4) & 0xffffffff")
	op, ok := OutermostOp(e)
	if !ok || op != OpAnd {
		t.Errorf("OutermostOp = %v, %v; want &", op, ok)
	}
	e, _, _ = ParseExpr("x")
	if _, ok := OutermostOp(e); ok {
		t.Error("OutermostOp of a symbol should be false")
	}
}
