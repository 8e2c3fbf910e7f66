package datalog

import (
	"time"
)

// Limits bounds a single World.Run invocation so a pathological or
// adversarial rule set cannot stall or exhaust a verifier. Defaults are
// generous enough for a normal authorization policy, tight enough to
// bound worst case latency.
type Limits struct {
	MaxFacts      int
	MaxIterations int
	MaxTime       time.Duration
}

// DefaultLimits returns the limits used when a caller doesn't override
// them: max_facts=1000, max_iterations=100, max_time=1ms.
func DefaultLimits() Limits {
	return Limits{MaxFacts: 1000, MaxIterations: 100, MaxTime: time.Millisecond}
}

// RunLimitKind distinguishes which bound RunLimitError tripped.
type RunLimitKind byte

const (
	RunLimitTooManyFacts RunLimitKind = iota
	RunLimitTooManyIterations
	RunLimitTimeout
)

// RunLimitError is returned by World.Run when a configured Limits bound is
// exceeded before the fixed point is reached.
type RunLimitError struct {
	Kind RunLimitKind
}

func (e *RunLimitError) Error() string {
	switch e.Kind {
	case RunLimitTooManyFacts:
		return "datalog: run limit exceeded: too many facts"
	case RunLimitTooManyIterations:
		return "datalog: run limit exceeded: too many iterations"
	case RunLimitTimeout:
		return "datalog: run limit exceeded: timed out"
	default:
		return "datalog: run limit exceeded"
	}
}

// World holds the current fact base and the rule set currently eligible to
// fire. Rules are cleared between trust layers via ResetRules so that one
// layer's rules never fire again on facts a later layer brings in.
type World struct {
	Facts  *FactSet
	rules  []Rule
	Limits Limits
}

// NewWorld returns an empty World under the default limits.
func NewWorld() *World {
	return &World{Facts: NewFactSet(), Limits: DefaultLimits()}
}

// AddFact inserts f directly, bypassing rule derivation. Used to ingest a
// block's own asserted facts.
func (w *World) AddFact(f Fact) {
	w.Facts.Insert(f)
}

// AddRule registers r as eligible to fire on the next Run. The caller is
// responsible for calling Rule.Validate beforehand; World does not
// re-validate, so malformed rules are rejected at block-ingestion time,
// not silently dropped during Run.
func (w *World) AddRule(r Rule) {
	w.rules = append(w.rules, r)
}

// Rules returns the currently registered rule set.
func (w *World) Rules() []Rule { return w.rules }

// ResetRules discards every registered rule without touching facts.
func (w *World) ResetRules() {
	w.rules = nil
}

// Run iterates naive fixed-point evaluation: apply every rule against the
// whole current fact base, insert newly derived facts, and repeat until no
// rule derives a fact the World didn't already hold. Each pass re-applies
// every rule to every fact; facts new since the previous pass are not
// tracked separately. Rules whose head uses one of forbiddenHeads are
// skipped entirely and never fire, enforcing an isolation guarantee even
// against rule-derived leakage, not just directly asserted facts.
func (w *World) Run(forbiddenHeads ...String) error {
	deadline := time.Now().Add(w.Limits.MaxTime)

	for iteration := 0; ; iteration++ {
		if iteration >= w.Limits.MaxIterations {
			return &RunLimitError{Kind: RunLimitTooManyIterations}
		}
		if time.Now().After(deadline) {
			return &RunLimitError{Kind: RunLimitTimeout}
		}

		newFactCount := 0
		currentFacts := w.Facts.All()

		for _, rule := range w.rules {
			if rule.forbiddenHeadNames(forbiddenHeads...) {
				continue
			}
			derived := solve(rule, currentFacts)
			for _, pred := range derived {
				if w.Facts.Len() >= w.Limits.MaxFacts {
					return &RunLimitError{Kind: RunLimitTooManyFacts}
				}
				if w.Facts.Insert(Fact{pred}) {
					newFactCount++
				}
			}
		}

		if newFactCount == 0 {
			return nil
		}
	}
}

// Query reports whether q holds against the World's current facts.
func (w *World) Query(q Query) bool {
	return q.Match(w.Facts.All())
}

// QueryRule evaluates rule's body against the World's current facts and
// returns every fact its head would instantiate, without storing any of
// them. Unlike Run, a single pass over the current fact base, not a
// fixed-point iteration: QueryRule never derives from its own output.
func (w *World) QueryRule(rule Rule) []Fact {
	preds := solve(rule, w.Facts.All())
	facts := make([]Fact, len(preds))
	for i, p := range preds {
		facts[i] = Fact{Predicate: p}
	}
	return facts
}

// Clone returns an independent copy of w, including its fact base and
// currently registered rules, so a prepared Verifier can be duplicated
// cheaply across many independent token verifications.
func (w *World) Clone() *World {
	rules := make([]Rule, len(w.rules))
	for i, r := range w.rules {
		rules[i] = r.Clone()
	}
	return &World{
		Facts:  w.Facts.Clone(),
		rules:  rules,
		Limits: w.Limits,
	}
}
