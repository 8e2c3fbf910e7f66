package datalog

import "fmt"

// reservedSymbols are present in every SymbolTable from construction, so
// that a Verifier never has to transmit them alongside a token and so that
// two independently-built tables agree on their ids: two tables with
// identical reserved prefixes produce identical ids for reserved names.
var reservedSymbols = [...]string{
	"authority",
	"ambient",
	"resource",
	"operation",
	"time",
	"revocation_id",
}

// SymbolTable is an append-only, bidirectional string <-> small-integer
// mapping. The reserved prefix above always occupies ids [0, len) at the
// front of any table; ids beyond it are assigned on first Insert.
type SymbolTable struct {
	strings []string
	index   map[string]uint64
}

// NewSymbolTable returns a table pre-loaded with the reserved symbols.
func NewSymbolTable() *SymbolTable {
	t := &SymbolTable{
		strings: append([]string(nil), reservedSymbols[:]...),
		index:   make(map[string]uint64, len(reservedSymbols)),
	}
	for i, s := range t.strings {
		t.index[s] = uint64(i)
	}
	return t
}

// Insert interns s, returning its id. Calling Insert twice with the same
// string returns the same id; the table never shrinks or reassigns ids.
func (t *SymbolTable) Insert(s string) String {
	if id, ok := t.index[s]; ok {
		return String(id)
	}
	id := uint64(len(t.strings))
	t.strings = append(t.strings, s)
	t.index[s] = id
	return String(id)
}

// Get returns the id for s without inserting it.
func (t *SymbolTable) Get(s string) (String, bool) {
	id, ok := t.index[s]
	return String(id), ok
}

// Lookup returns the string for id, or a placeholder if id is out of range.
func (t *SymbolTable) Lookup(id String) string {
	i := int(id)
	if i < 0 || i >= len(t.strings) {
		return fmt.Sprintf("<invalid symbol %d>", id)
	}
	return t.strings[i]
}

// Len returns the number of interned strings, reserved symbols included.
func (t *SymbolTable) Len() int {
	return len(t.strings)
}

// Clone returns an independent copy that can grow without affecting t.
func (t *SymbolTable) Clone() *SymbolTable {
	c := &SymbolTable{
		strings: append([]string(nil), t.strings...),
		index:   make(map[string]uint64, len(t.index)),
	}
	for k, v := range t.index {
		c.index[k] = v
	}
	return c
}

// remap translates a String id produced against other into the equivalent
// id in t, interning the string if t doesn't already know it. This is how
// block facts/rules extracted under a token's own symbol table get
// ingested into the verifier's table.
func (t *SymbolTable) remap(other *SymbolTable, id String) String {
	return t.Insert(other.Lookup(id))
}

// Extend interns every string of other into t that t doesn't already have,
// returning a remap function translating other's ids to t's ids. Used when
// merging a token's symbol table into the verifier's.
func (t *SymbolTable) Extend(other *SymbolTable) func(String) String {
	remapped := make([]String, other.Len())
	for i, s := range other.strings {
		remapped[i] = t.Insert(s)
	}
	return func(id String) String {
		i := int(id)
		if i < 0 || i >= len(remapped) {
			return id
		}
		return remapped[i]
	}
}
