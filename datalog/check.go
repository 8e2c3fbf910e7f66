package datalog

// Query is one clause of a Check or Policy: a conjunction of body
// predicates constrained by expressions, matched against a World's facts
// without producing new facts.
type Query struct {
	Body        []Predicate
	Expressions []Expression
}

// Clone deep-copies q.
func (q Query) Clone() Query {
	body := make([]Predicate, len(q.Body))
	for i, p := range q.Body {
		body[i] = p.Clone()
	}
	exprs := make([]Expression, len(q.Expressions))
	copy(exprs, q.Expressions)
	return Query{Body: body, Expressions: exprs}
}

// Match reports whether q's body has at least one binding against facts
// under which every expression holds.
func (q Query) Match(facts []Fact) bool {
	return matchQuery(q.Body, q.Expressions, facts)
}

// Check is satisfied if at least one of its Queries matches (OR
// semantics): a check passes if any one of its queries succeeds. A check
// that matches none of its queries fails, contributing one FailedCheck to
// the aggregated verification error.
type Check struct {
	Queries []Query
}

// Satisfied reports whether c holds against facts.
func (c Check) Satisfied(facts []Fact) bool {
	for _, q := range c.Queries {
		if q.Match(facts) {
			return true
		}
	}
	return false
}

// PolicyKind distinguishes an Allow policy from a Deny policy.
type PolicyKind byte

const (
	PolicyAllow PolicyKind = iota
	PolicyDeny
)

func (k PolicyKind) String() string {
	if k == PolicyAllow {
		return "allow"
	}
	return "deny"
}

// Policy pairs a PolicyKind with an OR-matched set of Queries, exactly like
// a Check, but instead of failing verification a Policy selects the
// decision when it matches.
type Policy struct {
	Kind    PolicyKind
	Queries []Query
}

// Matches reports whether any of p's queries holds against facts.
func (p Policy) Matches(facts []Fact) bool {
	for _, q := range p.Queries {
		if q.Match(facts) {
			return true
		}
	}
	return false
}
