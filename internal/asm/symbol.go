package asm

import "sort"

// Binding is the ELF-style visibility of a symbol
type Binding int

const (
	BindLocal Binding = iota
	BindGlobal
	BindWeak
)

// Symbol is an entry of the global symbol table
type Symbol struct {
	Name     string
	Value    uint64
	Section  SectionID
	Size     uint64
	Binding  Binding
	HasValue bool
	// Label is set for symbols defined by `name:`; they cannot be redefined
	Label bool
}

// SymbolTable maps names to symbols
type SymbolTable struct {
	symbols map[string]*Symbol
}

// NewSymbolTable creates an empty table
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]*Symbol)}
}

// Lookup returns the named symbol or nil
func (st *SymbolTable) Lookup(name string) *Symbol {
	return st.symbols[name]
}

// Get returns the named symbol, creating an undefined one if needed
func (st *SymbolTable) Get(name string) *Symbol {
	if sym, ok := st.symbols[name]; ok {
		return sym
	}
	sym := &Symbol{Name: name, Section: SectionAbs}
	st.symbols[name] = sym
	return sym
}

// Sorted returns all symbols ordered by name
func (st *SymbolTable) Sorted() []*Symbol {
	out := make([]*Symbol, 0, len(st.symbols))
	for _, sym := range st.symbols {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Names returns all symbol names (unordered)
func (st *SymbolTable) Names() []string {
	names := make([]string, 0, len(st.symbols))
	for name := range st.symbols {
		names = append(names, name)
	}
	return names
}
