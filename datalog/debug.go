package datalog

import (
	"fmt"
	"strings"
)

// Debugger renders datalog values as text using a SymbolTable to turn
// interned String ids back into their names. It exists purely for
// operator introspection; it never affects evaluation.
type Debugger struct {
	Symbols *SymbolTable
}

func (d Debugger) term(t Term) string {
	if s, ok := t.(String); ok {
		return "#" + d.Symbols.Lookup(s)
	}
	return t.String()
}

// Predicate renders p as name(term, term, ...).
func (d Debugger) Predicate(p Predicate) string {
	parts := make([]string, len(p.Terms))
	for i, t := range p.Terms {
		parts[i] = d.term(t)
	}
	return fmt.Sprintf("%s(%s)", d.Symbols.Lookup(p.Name), strings.Join(parts, ", "))
}

// Fact renders f identically to Predicate.
func (d Debugger) Fact(f Fact) string { return d.Predicate(f.Predicate) }

// Rule renders r as "head <- body1, body2" with a trailing
// " | N expression(s)" giving the count of any guard expressions; the
// expressions themselves are not rendered.
func (d Debugger) Rule(r Rule) string {
	body := make([]string, len(r.Body))
	for i, p := range r.Body {
		body[i] = d.Predicate(p)
	}
	s := fmt.Sprintf("%s <- %s", d.Predicate(r.Head), strings.Join(body, ", "))
	if len(r.Expressions) > 0 {
		s += fmt.Sprintf(" | %d expression(s)", len(r.Expressions))
	}
	return s
}

// Query renders q as a comma-joined conjunction of its body predicates.
func (d Debugger) Query(q Query) string {
	parts := make([]string, len(q.Body))
	for i, p := range q.Body {
		parts[i] = d.Predicate(p)
	}
	return strings.Join(parts, ", ")
}

// Check renders c as its OR-joined queries.
func (d Debugger) Check(c Check) string {
	parts := make([]string, len(c.Queries))
	for i, q := range c.Queries {
		parts[i] = d.Query(q)
	}
	return strings.Join(parts, " || ")
}

// Policy renders p with its kind prefix.
func (d Debugger) Policy(p Policy) string {
	parts := make([]string, len(p.Queries))
	for i, q := range p.Queries {
		parts[i] = d.Query(q)
	}
	return fmt.Sprintf("%s if %s", p.Kind, strings.Join(parts, " || "))
}

// World renders every fact then every rule of w, one per line.
func (d Debugger) World(w *World) string {
	var b strings.Builder
	b.WriteString("World {\n  facts:\n")
	for _, f := range w.Facts.All() {
		fmt.Fprintf(&b, "    %s\n", d.Fact(f))
	}
	b.WriteString("  rules:\n")
	for _, r := range w.Rules() {
		fmt.Fprintf(&b, "    %s\n", d.Rule(r))
	}
	b.WriteString("}")
	return b.String()
}
