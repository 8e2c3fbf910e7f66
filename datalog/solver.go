package datalog

// solve finds every binding of rule.Body's variables against facts that
// satisfies all of rule.Expressions, then instantiates rule.Head once per
// binding. Predicates are matched one at a time against the candidate
// fact list, accumulating a set of bindings via cross-join; expressions
// are evaluated only once every body predicate is bound, and a false
// expression discards that complete binding.
func solve(rule Rule, facts []Fact) []Predicate {
	var results []Predicate

	var recurse func(bodyIdx int, bindings map[Variable]Term)
	recurse = func(bodyIdx int, bindings map[Variable]Term) {
		if bodyIdx == len(rule.Body) {
			if !evaluateExpressions(rule.Expressions, bindings) {
				return
			}
			results = append(results, instantiate(rule.Head, bindings))
			return
		}

		pred := rule.Body[bodyIdx]
		for _, f := range facts {
			newBindings, ok := tryBind(pred, f.Predicate, bindings)
			if !ok {
				continue
			}
			recurse(bodyIdx+1, newBindings)
		}
	}

	recurse(0, map[Variable]Term{})
	return results
}

// tryBind attempts to unify pred (a rule-body predicate, possibly
// containing Variables) against fact (a concrete stored Predicate), given
// bindings already established by earlier body predicates. It returns an
// extended binding map on success, leaving the input map untouched.
func tryBind(pred, fact Predicate, bindings map[Variable]Term) (map[Variable]Term, bool) {
	if pred.Name != fact.Name || len(pred.Terms) != len(fact.Terms) {
		return nil, false
	}

	extended := make(map[Variable]Term, len(bindings)+len(pred.Terms))
	for k, v := range bindings {
		extended[k] = v
	}

	for i, t := range pred.Terms {
		factTerm := fact.Terms[i]
		if variable, ok := t.(Variable); ok {
			if bound, ok := extended[variable]; ok {
				if !bound.Equal(factTerm) {
					return nil, false
				}
				continue
			}
			extended[variable] = factTerm
			continue
		}
		if !t.Equal(factTerm) {
			return nil, false
		}
	}

	return extended, true
}

// evaluateExpressions returns whether every expression evaluates to true
// under bindings. A malformed or unbound expression fails the candidate
// binding, it does not abort the wider solve.
func evaluateExpressions(exprs []Expression, bindings map[Variable]Term) bool {
	for _, e := range exprs {
		result, err := e.Evaluate(bindings)
		if err != nil || !bool(result) {
			return false
		}
	}
	return true
}

// instantiate substitutes every Variable term of pred with its binding,
// producing a concrete Predicate suitable for storing as a Fact.
func instantiate(pred Predicate, bindings map[Variable]Term) Predicate {
	terms := make([]Term, len(pred.Terms))
	for i, t := range pred.Terms {
		if v, ok := t.(Variable); ok {
			terms[i] = bindings[v]
			continue
		}
		terms[i] = t
	}
	return Predicate{Name: pred.Name, Terms: terms}
}

// matchQuery reports whether query (a Check/Policy query predicate list
// plus expressions) has at least one satisfying binding against facts. A
// query is a headless rule: every body predicate must match and every
// expression must hold, but nothing is instantiated.
func matchQuery(body []Predicate, exprs []Expression, facts []Fact) bool {
	found := false

	var recurse func(bodyIdx int, bindings map[Variable]Term)
	recurse = func(bodyIdx int, bindings map[Variable]Term) {
		if found {
			return
		}
		if bodyIdx == len(body) {
			if evaluateExpressions(exprs, bindings) {
				found = true
			}
			return
		}
		pred := body[bodyIdx]
		for _, f := range facts {
			if found {
				return
			}
			newBindings, ok := tryBind(pred, f.Predicate, bindings)
			if !ok {
				continue
			}
			recurse(bodyIdx+1, newBindings)
		}
	}

	recurse(0, map[Variable]Term{})
	return found
}
