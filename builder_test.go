package warden

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wardenproto/warden/datalog"
)

func TestFactBuilderInternsSymbolsIdempotently(t *testing.T) {
	syms := datalog.NewSymbolTable()
	b := NewFactBuilder(syms)

	id1 := b.Sym("read")
	id2 := b.Sym("read")
	require.Equal(t, id1, id2)
}

func TestFactBuilderRuleRejectsUnboundHeadVariable(t *testing.T) {
	syms := datalog.NewSymbolTable()
	b := NewFactBuilder(syms)

	_, err := b.Rule(
		b.Predicate("derived", datalog.Variable(0)),
		[]datalog.Predicate{b.Predicate("source", datalog.Variable(1))},
	)
	require.Error(t, err)
}

func TestDefaultPolicies(t *testing.T) {
	facts := []datalog.Fact{{Predicate: datalog.Predicate{Name: datalog.String(1)}}}
	require.True(t, DefaultAllowPolicy().Matches(facts))
	require.True(t, DefaultDenyPolicy().Matches(facts))
}
