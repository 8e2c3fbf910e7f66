package datalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWorldRunFixedPoint(t *testing.T) {
	w := NewWorld()
	w.AddFact(Fact{Predicate{Name: String(1), Terms: []Term{Integer(1)}}})
	w.AddFact(Fact{Predicate{Name: String(1), Terms: []Term{Integer(2)}}})

	w.AddRule(Rule{
		Head: Predicate{Name: String(2), Terms: []Term{Variable(0)}},
		Body: []Predicate{{Name: String(1), Terms: []Term{Variable(0)}}},
	})

	require.NoError(t, w.Run())
	require.Equal(t, 4, w.Facts.Len())
}

func TestWorldRunStopsAtFixedPoint(t *testing.T) {
	w := NewWorld()
	w.AddFact(Fact{Predicate{Name: String(1), Terms: []Term{Integer(1)}}})
	w.AddRule(Rule{
		Head: Predicate{Name: String(1), Terms: []Term{Variable(0)}},
		Body: []Predicate{{Name: String(1), Terms: []Term{Variable(0)}}},
	})
	require.NoError(t, w.Run())
	require.Equal(t, 1, w.Facts.Len())
}

func TestWorldRunRespectsMaxFacts(t *testing.T) {
	w := NewWorld()
	w.Limits.MaxFacts = 2
	for i := 0; i < 5; i++ {
		w.AddFact(Fact{Predicate{Name: String(1), Terms: []Term{Integer(int64(i))}}})
	}
	w.AddRule(Rule{
		Head: Predicate{Name: String(2), Terms: []Term{Variable(0)}},
		Body: []Predicate{{Name: String(1), Terms: []Term{Variable(0)}}},
	})
	err := w.Run()
	require.Error(t, err)
	var limitErr *RunLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, RunLimitTooManyFacts, limitErr.Kind)
}

func TestWorldRunRespectsTimeout(t *testing.T) {
	w := NewWorld()
	w.Limits.MaxTime = 0
	w.AddFact(Fact{Predicate{Name: String(1), Terms: []Term{Integer(1)}}})
	w.AddRule(Rule{
		Head: Predicate{Name: String(2), Terms: []Term{Variable(0)}},
		Body: []Predicate{{Name: String(1), Terms: []Term{Variable(0)}}},
	})
	err := w.Run()
	require.Error(t, err)
}

func TestWorldResetRulesDoesNotDeriveFurther(t *testing.T) {
	w := NewWorld()
	w.AddFact(Fact{Predicate{Name: String(1), Terms: []Term{Integer(1)}}})
	w.AddRule(Rule{
		Head: Predicate{Name: String(2), Terms: []Term{Variable(0)}},
		Body: []Predicate{{Name: String(1), Terms: []Term{Variable(0)}}},
	})
	require.NoError(t, w.Run())
	w.ResetRules()
	require.Empty(t, w.Rules())

	before := w.Facts.Len()
	require.NoError(t, w.Run())
	require.Equal(t, before, w.Facts.Len())
}

func TestWorldRunSkipsForbiddenHeads(t *testing.T) {
	w := NewWorld()
	const authorityID = String(0)
	w.AddFact(Fact{Predicate{Name: String(1), Terms: []Term{Integer(1)}}})
	w.AddRule(Rule{
		Head: Predicate{Name: authorityID, Terms: []Term{Variable(0)}},
		Body: []Predicate{{Name: String(1), Terms: []Term{Variable(0)}}},
	})
	require.NoError(t, w.Run(authorityID))

	for _, f := range w.Facts.All() {
		require.NotEqual(t, authorityID, f.Name, "forbidden head must never be derived")
	}
}

func TestWorldCloneIsIndependent(t *testing.T) {
	w := NewWorld()
	w.AddFact(Fact{Predicate{Name: String(1), Terms: []Term{Integer(1)}}})
	w.AddRule(Rule{Head: Predicate{Name: String(2)}, Body: nil})

	clone := w.Clone()
	clone.AddFact(Fact{Predicate{Name: String(1), Terms: []Term{Integer(2)}}})

	require.Equal(t, 1, w.Facts.Len())
	require.Equal(t, 2, clone.Facts.Len())
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	require.Equal(t, 1000, l.MaxFacts)
	require.Equal(t, 100, l.MaxIterations)
	require.Equal(t, time.Millisecond, l.MaxTime)
}
