package datalog

import "fmt"

// Rule derives Head from the cross-join of Body, filtered by Expressions.
// A Rule is well-formed only if every Variable in Head also appears in
// Body: a rule cannot invent a binding out of nowhere.
type Rule struct {
	Head        Predicate
	Body        []Predicate
	Expressions []Expression
}

// Clone deep-copies the rule's predicates; Expressions are immutable
// opcode slices and are shared.
func (r Rule) Clone() Rule {
	body := make([]Predicate, len(r.Body))
	for i, p := range r.Body {
		body[i] = p.Clone()
	}
	exprs := make([]Expression, len(r.Expressions))
	copy(exprs, r.Expressions)
	return Rule{Head: r.Head.Clone(), Body: body, Expressions: exprs}
}

// Validate checks that r is well-formed: every variable bound in the head
// must occur somewhere in the body. Malformed rules are rejected at the
// point a block attempts to add them, reported as InvalidBlockRule.
func (r Rule) Validate() error {
	bodyVars := make(map[Variable]bool)
	for _, p := range r.Body {
		for _, t := range p.Terms {
			if v, ok := t.(Variable); ok {
				bodyVars[v] = true
			}
		}
	}
	for _, t := range r.Head.Terms {
		if v, ok := t.(Variable); ok && !bodyVars[v] {
			return fmt.Errorf("datalog: rule head uses variable %s not bound in body", v)
		}
	}
	return nil
}

// forbiddenHeadNames returns whether the rule's head predicate name is one
// of the supplied ids. Used to stop a block rule from deriving an
// authority(...)/ambient(...) fact even indirectly: the rule is accepted
// syntactically but never allowed to fire against a head using one of
// these names.
func (r Rule) forbiddenHeadNames(forbidden ...String) bool {
	for _, f := range forbidden {
		if r.Head.Name == f {
			return true
		}
	}
	return false
}
