package warden

import "github.com/wardenproto/warden/datalog"

// FactBuilder constructs a Fact against a particular SymbolTable, interning
// predicate and string-symbol names as it goes. It operates directly on the
// datalog package's Term model rather than a wire-format intermediate,
// since token parsing is out of this module's scope.
type FactBuilder struct {
	Symbols *datalog.SymbolTable
}

// NewFactBuilder returns a FactBuilder backed by symbols.
func NewFactBuilder(symbols *datalog.SymbolTable) FactBuilder {
	return FactBuilder{Symbols: symbols}
}

// Sym interns name as a symbol String term, for use as a predicate/fact
// argument such as a resource or operation name.
func (b FactBuilder) Sym(name string) datalog.String {
	return b.Symbols.Insert(name)
}

// Str builds a Bytes term carrying value's raw text. Use it for operands
// of the string-typed expression operators (Prefix, Suffix, Regex,
// Length): a symbol built with Sym is only a SymbolTable id inside an
// Expression, with no text to inspect, so it never satisfies those
// operators. Str and Sym are not interchangeable terms even when built
// from the same Go string.
func (b FactBuilder) Str(value string) datalog.Bytes {
	return datalog.Bytes(value)
}

// Fact builds a concrete Fact for predicate name over terms.
func (b FactBuilder) Fact(name string, terms ...datalog.Term) datalog.Fact {
	return datalog.Fact{Predicate: datalog.Predicate{Name: b.Sym(name), Terms: terms}}
}

// Predicate builds a (possibly variable-containing) Predicate for name.
func (b FactBuilder) Predicate(name string, terms ...datalog.Term) datalog.Predicate {
	return datalog.Predicate{Name: b.Sym(name), Terms: terms}
}

// Rule builds a Rule from a head predicate, body predicates, and guard
// expressions, validating it before returning.
func (b FactBuilder) Rule(head datalog.Predicate, body []datalog.Predicate, exprs ...datalog.Expression) (datalog.Rule, error) {
	r := datalog.Rule{Head: head, Body: body, Expressions: exprs}
	if err := r.Validate(); err != nil {
		return datalog.Rule{}, err
	}
	return r, nil
}

// Query builds a single Query clause.
func (b FactBuilder) Query(body []datalog.Predicate, exprs ...datalog.Expression) datalog.Query {
	return datalog.Query{Body: body, Expressions: exprs}
}

// Check builds a Check satisfied if any of queries matches.
func (b FactBuilder) Check(queries ...datalog.Query) datalog.Check {
	return datalog.Check{Queries: queries}
}

// AllowPolicy builds an Allow policy matched by any of queries.
func (b FactBuilder) AllowPolicy(queries ...datalog.Query) datalog.Policy {
	return datalog.Policy{Kind: datalog.PolicyAllow, Queries: queries}
}

// DenyPolicy builds a Deny policy matched by any of queries.
func (b FactBuilder) DenyPolicy(queries ...datalog.Query) datalog.Policy {
	return datalog.Policy{Kind: datalog.PolicyDeny, Queries: queries}
}

// DefaultAllowPolicy matches unconditionally, used as a catch-all final
// policy by callers that want default-allow instead of the module's
// baseline default-deny.
func DefaultAllowPolicy() datalog.Policy {
	return datalog.Policy{Kind: datalog.PolicyAllow, Queries: []datalog.Query{{}}}
}

// DefaultDenyPolicy matches unconditionally with Deny kind, making the
// default-deny behavior explicit in a policy list for callers who
// prefer an explicit final policy over relying on ErrNoMatchingPolicy.
func DefaultDenyPolicy() datalog.Policy {
	return datalog.Policy{Kind: datalog.PolicyDeny, Queries: []datalog.Query{{}}}
}
