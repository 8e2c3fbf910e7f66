package datalog

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-set/v3"
)

// Predicate is a named tuple of terms, possibly including Variables. Rule
// bodies and heads are built from Predicates; a Fact is a Predicate whose
// terms are all concrete.
type Predicate struct {
	Name  String
	Terms []Term
}

// Clone returns a deep-enough copy: the Terms slice is copied, individual
// Term values are themselves immutable.
func (p Predicate) Clone() Predicate {
	terms := make([]Term, len(p.Terms))
	copy(terms, p.Terms)
	return Predicate{Name: p.Name, Terms: terms}
}

// Equal reports structural equality, used for fact deduplication.
func (p Predicate) Equal(o Predicate) bool {
	if p.Name != o.Name || len(p.Terms) != len(o.Terms) {
		return false
	}
	for i, t := range p.Terms {
		if !t.Equal(o.Terms[i]) {
			return false
		}
	}
	return true
}

// Match reports whether p and o could unify structurally: same name, same
// arity, and every non-Variable term position agrees between them.
func (p Predicate) Match(o Predicate) bool {
	if p.Name != o.Name || len(p.Terms) != len(o.Terms) {
		return false
	}
	for i, t := range p.Terms {
		if t.Type() == TermTypeVariable || o.Terms[i].Type() == TermTypeVariable {
			continue
		}
		if !t.Equal(o.Terms[i]) {
			return false
		}
	}
	return true
}

func (p Predicate) canonicalKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d(", p.Name)
	for i, t := range p.Terms {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d:%s", t.Type(), t.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Fact is a Predicate known to have no Variable terms, stored in a World.
type Fact struct {
	Predicate
}

func (f Fact) key() string { return f.Predicate.canonicalKey() }

// FactSet holds a deduplicated, insertion-ordered collection of facts.
// A naive implementation would do a linear Equal scan over every stored
// fact on every insertion; here membership is tracked in a
// hashicorp/go-set index keyed by each fact's canonical encoding so
// Insert and de-duplication stay cheap as the World approaches its
// configured max_facts.
type FactSet struct {
	index *set.Set[string]
	facts []Fact
}

// NewFactSet returns an empty FactSet.
func NewFactSet() *FactSet {
	return &FactSet{index: set.New[string](0)}
}

// Insert adds f if not already present, returning whether it was new.
func (s *FactSet) Insert(f Fact) bool {
	if s.index == nil {
		s.index = set.New[string](0)
	}
	if s.index.Contains(f.key()) {
		return false
	}
	s.index.Insert(f.key())
	s.facts = append(s.facts, f)
	return true
}

// InsertAll inserts every fact of other, skipping duplicates.
func (s *FactSet) InsertAll(other []Fact) {
	for _, f := range other {
		s.Insert(f)
	}
}

// Len returns the number of distinct facts held.
func (s *FactSet) Len() int {
	return len(s.facts)
}

// All returns the facts in insertion order. Callers must not mutate the
// returned slice's elements.
func (s *FactSet) All() []Fact {
	return s.facts
}

// Clone returns an independent copy sharing no backing storage.
func (s *FactSet) Clone() *FactSet {
	c := NewFactSet()
	c.facts = make([]Fact, len(s.facts))
	copy(c.facts, s.facts)
	for _, f := range s.facts {
		c.index.Insert(f.key())
	}
	return c
}
