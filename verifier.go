package warden

import (
	"time"

	"go.uber.org/zap"

	"github.com/wardenproto/warden/datalog"
)

// Verifier accumulates verifier-side facts, rules, checks, and policies
// against a base World, then applies a Token's blocks layer by layer to
// decide whether it authorizes the requested action. A Verifier is
// single-threaded and synchronous: callers obtain parallelism by cloning a
// prepared Verifier per independent verification, not by sharing one
// across goroutines.
type Verifier struct {
	baseWorld   *datalog.World
	baseSymbols *datalog.SymbolTable
	checks      []datalog.Check
	policies    []datalog.Policy
	logger      *zap.Logger
}

// Option configures a Verifier at construction time.
type Option func(*Verifier)

// WithLimits overrides the default bounded-evaluation limits.
func WithLimits(limits datalog.Limits) Option {
	return func(v *Verifier) { v.baseWorld.Limits = limits }
}

// WithLogger attaches a structured logger for orchestrator diagnostics.
// The default is a no-op logger: logging must never stall the hot path.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// NewVerifier returns an empty Verifier seeded with a fresh reserved-symbol
// table.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		baseWorld:   datalog.NewWorld(),
		baseSymbols: datalog.NewSymbolTable(),
		logger:      newNopLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Clone returns an independent copy of v's accumulated state, so a
// verifier prepared once with ambient facts and policies can be reused
// across many independent token verifications without rebuilding it each
// time.
func (v *Verifier) Clone() *Verifier {
	checks := make([]datalog.Check, len(v.checks))
	copy(checks, v.checks)
	policies := make([]datalog.Policy, len(v.policies))
	copy(policies, v.policies)
	return &Verifier{
		baseWorld:   v.baseWorld.Clone(),
		baseSymbols: v.baseSymbols.Clone(),
		checks:      checks,
		policies:    policies,
		logger:      v.logger,
	}
}

// builder returns a FactBuilder over v's own symbol table, for callers
// constructing verifier-side facts/rules/checks.
func (v *Verifier) builder() FactBuilder { return NewFactBuilder(v.baseSymbols) }

// AddFact adds a verifier-side ambient fact, available to every
// verification run against this Verifier.
func (v *Verifier) AddFact(f datalog.Fact) {
	v.baseWorld.AddFact(f)
}

// AddRule adds a verifier-side rule.
func (v *Verifier) AddRule(r datalog.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	v.baseWorld.AddRule(r)
	return nil
}

// AddCheck registers a verifier-side check, evaluated against the World
// once the authority block has been applied, before any attenuating block
// is ingested.
func (v *Verifier) AddCheck(c datalog.Check) {
	v.checks = append(v.checks, c)
}

// AddPolicy appends a policy; policies are evaluated in registration order
// and the last one to match wins, intentionally not short-circuited.
func (v *Verifier) AddPolicy(p datalog.Policy) {
	v.policies = append(v.policies, p)
}

// AddResource sets the ambient resource(...) fact, matching the reserved
// "resource" symbol.
func (v *Verifier) AddResource(name string) {
	b := v.builder()
	v.AddFact(b.Fact("resource", b.Sym(name)))
}

// AddOperation sets the ambient operation(...) fact, matching the reserved
// "operation" symbol.
func (v *Verifier) AddOperation(name string) {
	b := v.builder()
	v.AddFact(b.Fact("operation", b.Sym(name)))
}

// SetTime sets the ambient time(...) fact, matching the reserved "time"
// symbol, used by token checks with temporal expiry guards.
func (v *Verifier) SetTime(t time.Time) {
	b := v.builder()
	v.AddFact(b.Fact("time", datalog.Date(t.Unix())))
}

// QueryMatch reports whether q holds against the verifier's base World
// without running a Token through it, useful for ad hoc introspection.
func (v *Verifier) QueryMatch(q datalog.Query) bool {
	return v.baseWorld.Query(q)
}

// Query evaluates rule against the verifier's base World and returns
// every fact its head would instantiate, without asserting any of them
// or running a Token through it. rule must already be built against
// v.Symbols().
func (v *Verifier) Query(rule datalog.Rule) ([]datalog.Fact, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return v.baseWorld.QueryRule(rule), nil
}

// QueryWithLimits is Query with limits overriding the verifier's own
// configured bounds for this call only: a result that would take longer
// than limits.MaxTime to produce, or that returns more than
// limits.MaxFacts facts, is reported as a RunLimitError instead of
// silently returned.
func (v *Verifier) QueryWithLimits(rule datalog.Rule, limits datalog.Limits) ([]datalog.Fact, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(limits.MaxTime)
	facts := v.baseWorld.QueryRule(rule)
	if time.Now().After(deadline) {
		return nil, &datalog.RunLimitError{Kind: datalog.RunLimitTimeout}
	}
	if len(facts) > limits.MaxFacts {
		return nil, &datalog.RunLimitError{Kind: datalog.RunLimitTooManyFacts}
	}
	return facts, nil
}

// RevocationCheck registers a check that fails verification if any of
// the token's per-block RevocationIdentifiers appears in ids. Verify
// asserts the token's identifiers as a single revocation_id(set) fact
// before evaluating checks; this check holds only when that set and ids
// don't intersect, so a token with even one revoked block is rejected,
// not only one whose every block is revoked.
func (v *Verifier) RevocationCheck(ids []int64) {
	b := v.builder()
	forbidden := make(datalog.Set, len(ids))
	for i, id := range ids {
		forbidden[i] = datalog.Integer(id)
	}
	revoked := datalog.Variable(0)
	query := b.Query(
		[]datalog.Predicate{b.Predicate("revocation_id", revoked)},
		datalog.Expression{
			datalog.Value{Term: forbidden},
			datalog.Value{Term: revoked},
			datalog.Binary{Kind: datalog.BinaryIntersection},
			datalog.Unary{Kind: datalog.UnaryLength},
			datalog.Value{Term: datalog.Integer(0)},
			datalog.Binary{Kind: datalog.BinaryEqual},
		},
	)
	v.AddCheck(b.Check(query))
}

// Symbols returns the verifier's own symbol table.
func (v *Verifier) Symbols() *datalog.SymbolTable { return v.baseSymbols }

// PrintWorld renders the verifier's base World for debugging.
func (v *Verifier) PrintWorld() string {
	d := datalog.Debugger{Symbols: v.baseSymbols}
	return d.World(v.baseWorld)
}

// Verify decides whether t authorizes the action described by the
// ambient facts already added to v. It applies the authority block and
// runs the World, evaluates v's checks, the authority block's checks and
// then v's policies, and only then ingests each attenuating block in turn,
// evaluating that block's own checks after it. Policies therefore see
// only the authority layer's facts.
// A nil Token is valid: verification proceeds purely against v's own
// facts, checks, and policies; the World is not run, so v's rules derive
// nothing in that case.
func (v *Verifier) Verify(t *Token) error {
	if missing := v.checkReservedSymbols(); len(missing) > 0 {
		return &MissingSymbolsError{Missing: missing}
	}

	deadline := time.Now().Add(v.baseWorld.Limits.MaxTime)

	world := v.baseWorld.Clone()
	symbols := v.baseSymbols.Clone()

	var failed []FailedCheck

	v.logger.Debug("verify: starting", zap.Bool("token_present", t != nil))

	if t != nil {
		authorityID, _ := symbols.Get("authority")
		ambientID, _ := symbols.Get("ambient")

		if err := ingestBlock(world, symbols, t.Authority, 0); err != nil {
			return err
		}
		insertRevocationFacts(world, symbols, t)
		v.logger.Debug("verify: ingested authority block", zap.Int("facts", world.Facts.Len()))
		if err := world.Run(authorityID, ambientID); err != nil {
			return err
		}
		world.ResetRules()
	}

	v.logger.Debug("verify: evaluating verifier checks", zap.Int("count", len(v.checks)))
	for _, c := range v.checks {
		if err := checkDeadline(deadline); err != nil {
			return err
		}
		if !c.Satisfied(world.Facts.All()) {
			failed = append(failed, FailedCheck{BlockID: -1, Check: debugCheck(c, symbols)})
		}
	}

	if t != nil {
		for _, c := range t.Authority.Checks {
			if err := checkDeadline(deadline); err != nil {
				return err
			}
			translated := translateCheck(c, t.Authority.Symbols, symbols)
			if !translated.Satisfied(world.Facts.All()) {
				failed = append(failed, FailedCheck{BlockID: 0, Check: debugCheck(translated, symbols)})
			}
		}
	}

	policyMatched := false
	var policyResult error

	v.logger.Debug("verify: evaluating policies", zap.Int("count", len(v.policies)))
	for i, p := range v.policies {
		if err := checkDeadline(deadline); err != nil {
			return err
		}
		if p.Matches(world.Facts.All()) {
			policyMatched = true
			if p.Kind == datalog.PolicyDeny {
				policyResult = &DenyError{PolicyIndex: i}
			} else {
				policyResult = nil
			}
		}
	}

	if t != nil {
		authorityID, _ := symbols.Get("authority")
		ambientID, _ := symbols.Get("ambient")

		for blockIdx, block := range t.Blocks {
			if err := checkDeadline(deadline); err != nil {
				return err
			}
			if err := ingestBlock(world, symbols, block, blockIdx+1); err != nil {
				return err
			}
			if err := world.Run(authorityID, ambientID); err != nil {
				return err
			}
			world.ResetRules()
			v.logger.Debug("verify: ingested attenuating block", zap.Int("block", blockIdx+1), zap.Int("facts", world.Facts.Len()))

			for _, c := range block.Checks {
				if err := checkDeadline(deadline); err != nil {
					return err
				}
				translated := translateCheck(c, block.Symbols, symbols)
				if !translated.Satisfied(world.Facts.All()) {
					failed = append(failed, FailedCheck{BlockID: blockIdx + 1, Check: debugCheck(translated, symbols)})
				}
			}
		}
	}

	if len(failed) > 0 {
		v.logger.Info("verify: denied", zap.Int("failed_checks", len(failed)))
		return newFailedChecksError(failed)
	}
	if !policyMatched {
		v.logger.Info("verify: denied", zap.Error(ErrNoMatchingPolicy))
		return ErrNoMatchingPolicy
	}
	v.logger.Info("verify: decided", zap.Bool("allowed", policyResult == nil))
	return policyResult
}

// VerifyWithLimits runs Verify with limits overriding v's own configured
// bounds for this call only; v itself is left untouched.
func (v *Verifier) VerifyWithLimits(t *Token, limits datalog.Limits) error {
	clone := v.Clone()
	clone.baseWorld.Limits = limits
	return clone.Verify(t)
}

// checkDeadline reports a RunLimitError timeout if now is past deadline.
// World.Run enforces its own per-call deadline against Limits.MaxTime,
// but that budget is recomputed fresh for every block; checkDeadline
// enforces a single deadline for the whole Verify call so a token with
// many blocks, or expensive check/policy queries, cannot run past
// max_time in aggregate without ever tripping a timeout.
func checkDeadline(deadline time.Time) error {
	if time.Now().After(deadline) {
		return &datalog.RunLimitError{Kind: datalog.RunLimitTimeout}
	}
	return nil
}

// insertRevocationFacts asserts one revocation_id(set) fact holding
// every block's RevocationID, authority block included, so a
// RevocationCheck registered against v can reject the token inline
// during check evaluation.
func insertRevocationFacts(world *datalog.World, symbols *datalog.SymbolTable, t *Token) {
	revocationID, _ := symbols.Get("revocation_id")
	ids := t.RevocationIdentifiers()
	terms := make(datalog.Set, len(ids))
	for i, id := range ids {
		terms[i] = datalog.Integer(id)
	}
	world.AddFact(datalog.Fact{Predicate: datalog.Predicate{
		Name:  revocationID,
		Terms: []datalog.Term{terms},
	}})
}

// checkReservedSymbols returns the reserved symbol names the verifier's
// own base table is missing. In practice NewVerifier always preloads
// them, but a caller could in principle hand Verify a Verifier built
// around a stripped-down table via direct struct construction in tests, so
// the check is real rather than decorative.
func (v *Verifier) checkReservedSymbols() []string {
	var missing []string
	for _, s := range []string{"authority", "ambient", "resource", "operation", "time", "revocation_id"} {
		if _, ok := v.baseSymbols.Get(s); !ok {
			missing = append(missing, s)
		}
	}
	return missing
}

// ingestBlock merges block's own symbol table into symbols, translates its
// facts and rules into symbols' id-space, rejects any fact asserting
// authority(...)/ambient(...) directly, and registers its rules under a
// forbidden-heads guard so that fixed-point evaluation can never derive
// one either. blockID is used only for InvalidBlockRuleError reporting;
// the authority block passes 0.
func ingestBlock(world *datalog.World, symbols *datalog.SymbolTable, block Block, blockID int) error {
	remap := symbols.Extend(block.Symbols)

	authorityID, _ := symbols.Get("authority")
	ambientID, _ := symbols.Get("ambient")

	for _, f := range block.Facts {
		translated := translatePredicate(f.Predicate, remap)
		if translated.Name == authorityID || translated.Name == ambientID {
			continue
		}
		world.AddFact(datalog.Fact{Predicate: translated})
	}

	for _, r := range block.Rules {
		translated := translateRule(r, remap)
		if err := translated.Validate(); err != nil {
			d := datalog.Debugger{Symbols: symbols}
			return &InvalidBlockRuleError{BlockID: blockID, Rule: d.Rule(translated), Err: err}
		}
		world.AddRule(translated)
	}

	return nil
}

func translatePredicate(p datalog.Predicate, remap func(datalog.String) datalog.String) datalog.Predicate {
	terms := make([]datalog.Term, len(p.Terms))
	for i, t := range p.Terms {
		if s, ok := t.(datalog.String); ok {
			terms[i] = remap(s)
			continue
		}
		terms[i] = t
	}
	return datalog.Predicate{Name: remap(p.Name), Terms: terms}
}

func translateRule(r datalog.Rule, remap func(datalog.String) datalog.String) datalog.Rule {
	body := make([]datalog.Predicate, len(r.Body))
	for i, p := range r.Body {
		body[i] = translatePredicate(p, remap)
	}
	return datalog.Rule{
		Head:        translatePredicate(r.Head, remap),
		Body:        body,
		Expressions: r.Expressions,
	}
}

func translateQuery(q datalog.Query, remap func(datalog.String) datalog.String) datalog.Query {
	body := make([]datalog.Predicate, len(q.Body))
	for i, p := range q.Body {
		body[i] = translatePredicate(p, remap)
	}
	return datalog.Query{Body: body, Expressions: q.Expressions}
}

func translateCheck(c datalog.Check, from, to *datalog.SymbolTable) datalog.Check {
	remap := to.Extend(from)
	queries := make([]datalog.Query, len(c.Queries))
	for i, q := range c.Queries {
		queries[i] = translateQuery(q, remap)
	}
	return datalog.Check{Queries: queries}
}

func debugCheck(c datalog.Check, symbols *datalog.SymbolTable) string {
	d := datalog.Debugger{Symbols: symbols}
	return d.Check(c)
}
