package warden

import "github.com/wardenproto/warden/datalog"

// Block is the already-parsed, already-trust-decided content of one layer
// of a capability token. Warden never parses or verifies the signature
// chain that produced a Block; a caller (outside this module's scope) is
// responsible for handing over Blocks it already trusts structurally, in
// the order the token chains them.
//
// RevocationID is the block's own opaque revocation identifier, assigned
// by whatever process produced the block (e.g. derived from its signing
// key or a serial counter). Verify asserts it as a fact before
// evaluating any checks, so a RevocationCheck can reject a token one of
// whose blocks has since been revoked.
type Block struct {
	Symbols      *datalog.SymbolTable
	Facts        []datalog.Fact
	Rules        []datalog.Rule
	Checks       []datalog.Check
	RevocationID int64
}

// Token is a parsed capability token: one authority block plus zero or
// more attenuating blocks, applied in order. Token is a plain
// in-memory value object; building or parsing one from wire bytes is out
// of this module's scope.
type Token struct {
	Authority Block
	Blocks    []Block
}

// RevocationIdentifiers returns the RevocationID of every block of t,
// authority block included, in block order (index 0 is the authority
// block). A caller can check this list against a revocation store
// before attempting Verify at all; Verify itself asserts the same list
// as facts so a registered RevocationCheck can reject the token inline.
func (t *Token) RevocationIdentifiers() []int64 {
	blocks := append([]Block{t.Authority}, t.Blocks...)
	ids := make([]int64, len(blocks))
	for i, b := range blocks {
		ids[i] = b.RevocationID
	}
	return ids
}

// BlockContaining walks the authority block then each attenuating block in
// order and returns the index of the first one whose Facts include a fact
// matching f structurally under its own symbol table, and whether any
// block did. Index 0 is the authority block. This is an audit/debugging
// helper independent of Verify.
func (t *Token) BlockContaining(f datalog.Fact) (int, bool) {
	blocks := append([]Block{t.Authority}, t.Blocks...)
	for i, b := range blocks {
		for _, bf := range b.Facts {
			if bf.Predicate.Equal(f.Predicate) {
				return i, true
			}
		}
	}
	return 0, false
}
