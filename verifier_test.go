package warden

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wardenproto/warden/datalog"
)

// newAuthorityBlock builds a minimal Block with its own fresh symbol
// table, mirroring how a caller would hand over an already-parsed token
// block: warden never constructs one from wire bytes itself.
func newAuthorityBlock(t *testing.T, fn func(b blockBuilder)) Block {
	t.Helper()
	syms := datalog.NewSymbolTable()
	block := &Block{Symbols: syms}
	fn(blockBuilder{FactBuilder: NewFactBuilder(syms), block: block})
	return *block
}

type blockBuilder struct {
	FactBuilder
	block *Block
}

func (b blockBuilder) fact(name string, terms ...datalog.Term) {
	b.block.Facts = append(b.block.Facts, b.Fact(name, terms...))
}

func (b blockBuilder) rule(r datalog.Rule) {
	b.block.Rules = append(b.block.Rules, r)
}

func (b blockBuilder) check(c datalog.Check) {
	b.block.Checks = append(b.block.Checks, c)
}

// A verifier check satisfied by an authority-block fact plus an
// unconditional allow policy should verify cleanly.
func TestVerifyBasicAllow(t *testing.T) {
	authority := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("right", b.Sym("/a/file1.txt"), b.Sym("read"))
	})

	v := NewVerifier()
	b := v.builder()
	v.AddResource("/a/file1.txt")
	v.AddOperation("read")
	v.AddCheck(b.Check(b.Query([]datalog.Predicate{
		b.Predicate("right", datalog.Variable(0), datalog.Variable(1)),
	})))
	v.AddPolicy(DefaultAllowPolicy())

	err := v.Verify(&Token{Authority: authority})
	require.NoError(t, err)
}

// No fact satisfies the verifier's check, so verification fails with
// FailedChecksError regardless of policies.
func TestVerifyFailingCheck(t *testing.T) {
	v := NewVerifier()
	b := v.builder()
	v.AddCheck(b.Check(b.Query([]datalog.Predicate{
		b.Predicate("right", datalog.Variable(0), datalog.Variable(1)),
	})))
	v.AddPolicy(DefaultAllowPolicy())

	err := v.Verify(nil)
	require.Error(t, err)
	var failedErr *FailedChecksError
	require.ErrorAs(t, err, &failedErr)
	require.Len(t, failedErr.Failed, 1)
}

// The last matching policy is a Deny, so verification reports DenyError
// even though an earlier Allow policy also matched: the last policy
// query to match wins.
func TestVerifyExplicitDenyWinsOverEarlierAllow(t *testing.T) {
	v := NewVerifier()
	b := v.builder()
	v.AddFact(b.Fact("flagged", b.Sym("true")))
	v.AddPolicy(DefaultAllowPolicy())
	v.AddPolicy(b.DenyPolicy(b.Query([]datalog.Predicate{
		b.Predicate("flagged", datalog.Variable(0)),
	})))

	err := v.Verify(nil)
	require.Error(t, err)
	var denyErr *DenyError
	require.ErrorAs(t, err, &denyErr)
	require.Equal(t, 1, denyErr.PolicyIndex)
}

func TestVerifyLastAllowWinsOverEarlierDeny(t *testing.T) {
	v := NewVerifier()
	b := v.builder()
	v.AddFact(b.Fact("flagged", b.Sym("true")))
	v.AddPolicy(b.DenyPolicy(b.Query([]datalog.Predicate{
		b.Predicate("flagged", datalog.Variable(0)),
	})))
	v.AddPolicy(DefaultAllowPolicy())

	require.NoError(t, v.Verify(nil))
}

// A rule whose cross-join derives more facts than the configured
// MaxFacts reports a RunLimitError rather than silently truncating the
// result.
func TestVerifyRunLimitPropagates(t *testing.T) {
	authority := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("count", datalog.Integer(1))
		b.fact("count", datalog.Integer(2))
		b.fact("count", datalog.Integer(3))
		b.rule(datalog.Rule{
			Head: b.Predicate("pair", datalog.Variable(0), datalog.Variable(1)),
			Body: []datalog.Predicate{
				b.Predicate("count", datalog.Variable(0)),
				b.Predicate("count", datalog.Variable(1)),
			},
		})
	})

	v := NewVerifier(WithLimits(datalog.Limits{MaxFacts: 3, MaxIterations: 10, MaxTime: time.Second}))
	v.AddPolicy(DefaultAllowPolicy())

	err := v.Verify(&Token{Authority: authority})
	require.Error(t, err)
	var limitErr *RunLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, datalog.RunLimitTooManyFacts, limitErr.Kind)
}

// An attenuating block's rule uses a head variable never bound in its
// own body, which must be rejected before the World ever runs it.
func TestVerifyRejectsIllFormedBlockRule(t *testing.T) {
	authority := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("right", b.Sym("x"))
	})

	badBlock := newAuthorityBlock(t, func(b blockBuilder) {
		b.rule(datalog.Rule{
			Head: b.Predicate("derived", datalog.Variable(9)),
			Body: []datalog.Predicate{b.Predicate("right", datalog.Variable(0))},
		})
	})

	v := NewVerifier()
	v.AddPolicy(DefaultAllowPolicy())

	err := v.Verify(&Token{Authority: authority, Blocks: []Block{badBlock}})
	require.Error(t, err)
	var ruleErr *InvalidBlockRuleError
	require.ErrorAs(t, err, &ruleErr)
	require.Equal(t, 1, ruleErr.BlockID)
}

// Authority/ambient isolation: an attenuating block cannot assert an
// authority(...) fact directly.
func TestVerifyBlockCannotInjectAuthorityFact(t *testing.T) {
	authority := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("right", b.Sym("x"))
	})

	maliciousBlock := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("authority", b.Sym("forged"))
	})

	v := NewVerifier()
	b := v.builder()
	v.AddCheck(b.Check(b.Query([]datalog.Predicate{
		b.Predicate("authority", datalog.Variable(0)),
	})))
	v.AddPolicy(DefaultAllowPolicy())

	err := v.Verify(&Token{Authority: authority, Blocks: []Block{maliciousBlock}})
	require.Error(t, err, "a block-injected authority fact must never satisfy a check")
}

func TestVerifyNoMatchingPolicyDefaultsToDeny(t *testing.T) {
	v := NewVerifier()
	err := v.Verify(nil)
	require.ErrorIs(t, err, ErrNoMatchingPolicy)
}

func TestVerifyMissingReservedSymbols(t *testing.T) {
	v := &Verifier{
		baseWorld:   datalog.NewWorld(),
		baseSymbols: &datalog.SymbolTable{},
		logger:      newNopLogger(),
	}
	err := v.Verify(nil)
	require.Error(t, err)
	var missingErr *MissingSymbolsError
	require.ErrorAs(t, err, &missingErr)
}

func TestVerifierCloneIsIndependent(t *testing.T) {
	v := NewVerifier()
	v.AddPolicy(DefaultAllowPolicy())

	clone := v.Clone()
	clone.AddPolicy(DefaultDenyPolicy())

	require.Len(t, v.policies, 1)
	require.Len(t, clone.policies, 2)
}

func TestTokenRevocationIdentifiers(t *testing.T) {
	authority := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("right", b.Sym("x"))
	})
	authority.RevocationID = 42

	attenuating := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("extra", b.Sym("y"))
	})
	attenuating.RevocationID = 7

	tok := &Token{Authority: authority, Blocks: []Block{attenuating}}
	require.Equal(t, []int64{42, 7}, tok.RevocationIdentifiers())
}

// A verifier with a RevocationCheck registered denies a token one of
// whose blocks carries a blacklisted identifier, even though its checks
// and policies would otherwise allow it.
func TestVerifyRevocationCheckRejectsBlacklistedBlock(t *testing.T) {
	authority := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("right", b.Sym("x"))
	})
	authority.RevocationID = 99

	v := NewVerifier()
	v.RevocationCheck([]int64{99})
	v.AddPolicy(DefaultAllowPolicy())

	err := v.Verify(&Token{Authority: authority})
	require.Error(t, err)
	var failedErr *FailedChecksError
	require.ErrorAs(t, err, &failedErr)
}

func TestVerifyRevocationCheckAllowsCleanBlock(t *testing.T) {
	authority := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("right", b.Sym("x"))
	})
	authority.RevocationID = 1

	v := NewVerifier()
	v.RevocationCheck([]int64{99})
	v.AddPolicy(DefaultAllowPolicy())

	require.NoError(t, v.Verify(&Token{Authority: authority}))
}

// The orchestrator-level deadline trips on a nil Token, where World.Run
// is never called at all: the timeout can only have come from Verify's
// own deadline check before evaluating its checks, not from World.Run
// recomputing a fresh per-call deadline.
func TestVerifyGlobalDeadlineTimesOutWithoutRunningAnyBlock(t *testing.T) {
	v := NewVerifier(WithLimits(datalog.Limits{MaxFacts: 1000, MaxIterations: 100, MaxTime: 0}))
	b := v.builder()
	v.AddCheck(b.Check(b.Query([]datalog.Predicate{
		b.Predicate("right", datalog.Variable(0)),
	})))
	v.AddPolicy(DefaultAllowPolicy())

	err := v.Verify(nil)
	require.Error(t, err)
	var limitErr *RunLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, datalog.RunLimitTimeout, limitErr.Kind)
}

func TestCheckDeadlineReportsTimeout(t *testing.T) {
	err := checkDeadline(time.Now().Add(-time.Second))
	require.Error(t, err)
	var limitErr *RunLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, datalog.RunLimitTimeout, limitErr.Kind)
}

func TestCheckDeadlineOK(t *testing.T) {
	require.NoError(t, checkDeadline(time.Now().Add(time.Hour)))
}

// Query instantiates every fact a rule's head would derive against the
// verifier's base World, without asserting any of them: a second Query
// call against the same Verifier sees the same base facts, unaffected
// by the first call.
func TestVerifierQueryInstantiatesWithoutAsserting(t *testing.T) {
	v := NewVerifier()
	b := v.builder()
	v.AddFact(b.Fact("right", b.Sym("/a/file1.txt"), b.Sym("read")))
	v.AddFact(b.Fact("right", b.Sym("/a/file2.txt"), b.Sym("write")))

	rule, err := b.Rule(
		b.Predicate("grants", datalog.Variable(0)),
		[]datalog.Predicate{b.Predicate("right", datalog.Variable(0), datalog.Variable(1))},
	)
	require.NoError(t, err)

	facts, err := v.Query(rule)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	require.Equal(t, 2, v.baseWorld.Facts.Len())
}

func TestVerifierQueryWithLimitsRejectsOversizedResult(t *testing.T) {
	v := NewVerifier()
	b := v.builder()
	v.AddFact(b.Fact("right", b.Sym("/a/file1.txt"), b.Sym("read")))
	v.AddFact(b.Fact("right", b.Sym("/a/file2.txt"), b.Sym("write")))

	rule, err := b.Rule(
		b.Predicate("grants", datalog.Variable(0)),
		[]datalog.Predicate{b.Predicate("right", datalog.Variable(0), datalog.Variable(1))},
	)
	require.NoError(t, err)

	_, err = v.QueryWithLimits(rule, datalog.Limits{MaxFacts: 1, MaxIterations: 1, MaxTime: time.Second})
	require.Error(t, err)
	var limitErr *RunLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, datalog.RunLimitTooManyFacts, limitErr.Kind)
}

// VerifyWithLimits overrides the bound for this call only; the
// Verifier's own configured limit is untouched for later calls.
func TestVerifyWithLimitsOverridesOnlyThatCall(t *testing.T) {
	authority := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("count", datalog.Integer(1))
		b.fact("count", datalog.Integer(2))
		b.fact("count", datalog.Integer(3))
		b.rule(datalog.Rule{
			Head: b.Predicate("pair", datalog.Variable(0), datalog.Variable(1)),
			Body: []datalog.Predicate{
				b.Predicate("count", datalog.Variable(0)),
				b.Predicate("count", datalog.Variable(1)),
			},
		})
	})

	v := NewVerifier()
	v.AddPolicy(DefaultAllowPolicy())

	err := v.VerifyWithLimits(&Token{Authority: authority}, datalog.Limits{MaxFacts: 3, MaxIterations: 10, MaxTime: time.Second})
	require.Error(t, err)
	var limitErr *RunLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, datalog.RunLimitTooManyFacts, limitErr.Kind)

	require.NoError(t, v.Verify(&Token{Authority: authority}))
}

func TestTokenBlockContaining(t *testing.T) {
	authority := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("right", b.Sym("x"))
	})
	attenuating := newAuthorityBlock(t, func(b blockBuilder) {
		b.fact("extra", b.Sym("y"))
	})
	tok := &Token{Authority: authority, Blocks: []Block{attenuating}}

	idx, ok := tok.BlockContaining(attenuating.Facts[0])
	require.True(t, ok)
	require.Equal(t, 1, idx)
}
