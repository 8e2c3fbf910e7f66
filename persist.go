package warden

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/wardenproto/warden/datalog"
)

// MaxSchemaVersion is the highest persisted blob version this build of
// warden understands. Load rejects anything newer with a FormatError.
const MaxSchemaVersion uint32 = 1

// termTag identifies a Term's concrete type on the wire. The numeric
// values are part of the wire format and must never be renumbered once
// released.
type termTag byte

const (
	tagVariable termTag = iota
	tagInteger
	tagString
	tagDate
	tagBytes
	tagBool
	tagSet
)

// Save encodes v's verifier-side rules, checks, and policies into a
// length-prefixed binary layout: a version (u32) followed by the symbol
// table, fact list, rule list, check list, and policy list, each as a u32
// count followed by that many entries; only strings and byte terms carry
// their own u32 length prefix. No code-generated
// serializer was available in this module's dependency set for this
// format (see DESIGN.md), so it's written directly against the wire
// layout.
func (v *Verifier) Save() ([]byte, error) {
	var buf bytes.Buffer

	if err := binary.Write(&buf, binary.BigEndian, MaxSchemaVersion); err != nil {
		return nil, &FormatError{Kind: FormatSerialization, Err: err}
	}

	if err := writeSymbolTable(&buf, v.baseSymbols); err != nil {
		return nil, &FormatError{Kind: FormatSerialization, Err: err}
	}
	if err := writeFacts(&buf, v.baseWorld.Facts.All()); err != nil {
		return nil, &FormatError{Kind: FormatSerialization, Err: err}
	}
	if err := writeRules(&buf, v.baseWorld.Rules()); err != nil {
		return nil, &FormatError{Kind: FormatSerialization, Err: err}
	}
	if err := writeChecks(&buf, v.checks); err != nil {
		return nil, &FormatError{Kind: FormatSerialization, Err: err}
	}
	if err := writePolicies(&buf, v.policies); err != nil {
		return nil, &FormatError{Kind: FormatSerialization, Err: err}
	}

	return buf.Bytes(), nil
}

// Load adds the facts, rules, checks, and policies decoded from data to
// v's existing verifier-side ones (nothing already in v is removed),
// merging the persisted symbol table into v's own. Load rejects a blob with a version newer than MaxSchemaVersion, or
// any truncated/malformed section, as a FormatError.
func (v *Verifier) Load(data []byte) error {
	r := bytes.NewReader(data)

	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return &FormatError{Kind: FormatDeserialization, Err: err}
	}
	if version > MaxSchemaVersion {
		return &FormatError{Kind: FormatDeserialization, Err: fmt.Errorf("unsupported schema version %d", version)}
	}

	blobSymbols, err := readSymbolTable(r)
	if err != nil {
		return &FormatError{Kind: FormatDeserialization, Err: err}
	}
	remap := v.baseSymbols.Extend(blobSymbols)

	facts, err := readFacts(r, remap)
	if err != nil {
		return &FormatError{Kind: FormatDeserialization, Err: err}
	}
	rules, err := readRules(r, remap)
	if err != nil {
		return &FormatError{Kind: FormatDeserialization, Err: err}
	}
	checks, err := readChecks(r, remap)
	if err != nil {
		return &FormatError{Kind: FormatDeserialization, Err: err}
	}
	policies, err := readPolicies(r, remap)
	if err != nil {
		return &FormatError{Kind: FormatDeserialization, Err: err}
	}

	v.baseWorld.Facts.InsertAll(facts)
	for _, rule := range rules {
		v.baseWorld.AddRule(rule)
	}
	v.checks = append(v.checks, checks...)
	v.policies = append(v.policies, policies...)

	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeSymbolTable(w io.Writer, syms *datalog.SymbolTable) error {
	n := syms.Len()
	if err := binary.Write(w, binary.BigEndian, uint32(n)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := writeString(w, syms.Lookup(datalog.String(i))); err != nil {
			return err
		}
	}
	return nil
}

func readSymbolTable(r io.Reader) (*datalog.SymbolTable, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	tbl := &symbolList{}
	for i := uint32(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		tbl.names = append(tbl.names, s)
	}
	return tbl.toSymbolTable(), nil
}

// symbolList is a flat decode buffer for the persisted symbol table,
// before it's merged into a real SymbolTable (which insists on the
// reserved prefix that a persisted blob already carries at indices
// [0, len(reservedSymbols))).
type symbolList struct{ names []string }

func (l *symbolList) toSymbolTable() *datalog.SymbolTable {
	t := datalog.NewSymbolTable()
	for _, n := range l.names {
		t.Insert(n)
	}
	return t
}

func writeTerm(w io.Writer, t datalog.Term) error {
	switch v := t.(type) {
	case datalog.Variable:
		if err := binary.Write(w, binary.BigEndian, tagVariable); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, uint64(v))
	case datalog.Integer:
		if err := binary.Write(w, binary.BigEndian, tagInteger); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, int64(v))
	case datalog.String:
		if err := binary.Write(w, binary.BigEndian, tagString); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, uint64(v))
	case datalog.Date:
		if err := binary.Write(w, binary.BigEndian, tagDate); err != nil {
			return err
		}
		return binary.Write(w, binary.BigEndian, uint64(v))
	case datalog.Bytes:
		if err := binary.Write(w, binary.BigEndian, tagBytes); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(len(v))); err != nil {
			return err
		}
		_, err := w.Write(v)
		return err
	case datalog.Bool:
		if err := binary.Write(w, binary.BigEndian, tagBool); err != nil {
			return err
		}
		var b byte
		if v {
			b = 1
		}
		return binary.Write(w, binary.BigEndian, b)
	case datalog.Set:
		if err := binary.Write(w, binary.BigEndian, tagSet); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(len(v))); err != nil {
			return err
		}
		for _, e := range v {
			if err := writeTerm(w, e); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("warden: unsupported term type %T", t)
	}
}

func readTerm(r io.Reader, remap func(datalog.String) datalog.String) (datalog.Term, error) {
	var tag termTag
	if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
		return nil, err
	}
	switch tag {
	case tagVariable:
		var v uint64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return datalog.Variable(v), nil
	case tagInteger:
		var v int64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return datalog.Integer(v), nil
	case tagString:
		var v uint64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return remap(datalog.String(v)), nil
	case tagDate:
		var v uint64
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		return datalog.Date(v), nil
	case tagBytes:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return datalog.Bytes(buf), nil
	case tagBool:
		var b byte
		if err := binary.Read(r, binary.BigEndian, &b); err != nil {
			return nil, err
		}
		return datalog.Bool(b != 0), nil
	case tagSet:
		var n uint32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		out := make(datalog.Set, n)
		for i := range out {
			elt, err := readTerm(r, remap)
			if err != nil {
				return nil, err
			}
			out[i] = elt
		}
		return out, nil
	default:
		return nil, fmt.Errorf("warden: unknown term tag %d", tag)
	}
}

func writePredicate(w io.Writer, p datalog.Predicate) error {
	if err := binary.Write(w, binary.BigEndian, uint64(p.Name)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(p.Terms))); err != nil {
		return err
	}
	for _, t := range p.Terms {
		if err := writeTerm(w, t); err != nil {
			return err
		}
	}
	return nil
}

func readPredicate(r io.Reader, remap func(datalog.String) datalog.String) (datalog.Predicate, error) {
	var name uint64
	if err := binary.Read(r, binary.BigEndian, &name); err != nil {
		return datalog.Predicate{}, err
	}
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return datalog.Predicate{}, err
	}
	terms := make([]datalog.Term, n)
	for i := range terms {
		t, err := readTerm(r, remap)
		if err != nil {
			return datalog.Predicate{}, err
		}
		terms[i] = t
	}
	return datalog.Predicate{Name: remap(datalog.String(name)), Terms: terms}, nil
}

func writeFacts(w io.Writer, facts []datalog.Fact) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(facts))); err != nil {
		return err
	}
	for _, f := range facts {
		if err := writePredicate(w, f.Predicate); err != nil {
			return err
		}
	}
	return nil
}

func readFacts(r io.Reader, remap func(datalog.String) datalog.String) ([]datalog.Fact, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]datalog.Fact, n)
	for i := range out {
		p, err := readPredicate(r, remap)
		if err != nil {
			return nil, err
		}
		out[i] = datalog.Fact{Predicate: p}
	}
	return out, nil
}

const (
	opTagValue byte = iota
	opTagUnary
	opTagBinary
)

func writeExpression(w io.Writer, e datalog.Expression) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(e))); err != nil {
		return err
	}
	for _, op := range e {
		switch o := op.(type) {
		case datalog.Value:
			if err := binary.Write(w, binary.BigEndian, opTagValue); err != nil {
				return err
			}
			if err := writeTerm(w, o.Term); err != nil {
				return err
			}
		case datalog.Unary:
			if err := binary.Write(w, binary.BigEndian, opTagUnary); err != nil {
				return err
			}
			if err := binary.Write(w, binary.BigEndian, byte(o.Kind)); err != nil {
				return err
			}
		case datalog.Binary:
			if err := binary.Write(w, binary.BigEndian, opTagBinary); err != nil {
				return err
			}
			if err := binary.Write(w, binary.BigEndian, byte(o.Kind)); err != nil {
				return err
			}
		default:
			return fmt.Errorf("warden: unsupported expression op %T", op)
		}
	}
	return nil
}

func writeExpressionList(w io.Writer, exprs []datalog.Expression) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(exprs))); err != nil {
		return err
	}
	for _, e := range exprs {
		if err := writeExpression(w, e); err != nil {
			return err
		}
	}
	return nil
}

func readExpressionList(r io.Reader, remap func(datalog.String) datalog.String) ([]datalog.Expression, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]datalog.Expression, n)
	for i := range out {
		e, err := readExpression(r, remap)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func readExpression(r io.Reader, remap func(datalog.String) datalog.String) (datalog.Expression, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make(datalog.Expression, n)
	for i := range out {
		var tag byte
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, err
		}
		switch tag {
		case opTagValue:
			term, err := readTerm(r, remap)
			if err != nil {
				return nil, err
			}
			out[i] = datalog.Value{Term: term}
		case opTagUnary:
			var kind byte
			if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
				return nil, err
			}
			out[i] = datalog.Unary{Kind: datalog.UnaryKind(kind)}
		case opTagBinary:
			var kind byte
			if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
				return nil, err
			}
			out[i] = datalog.Binary{Kind: datalog.BinaryKind(kind)}
		default:
			return nil, fmt.Errorf("warden: unknown expression op tag %d", tag)
		}
	}
	return out, nil
}

func writeRules(w io.Writer, rules []datalog.Rule) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(rules))); err != nil {
		return err
	}
	for _, rule := range rules {
		if err := writePredicate(w, rule.Head); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(len(rule.Body))); err != nil {
			return err
		}
		for _, p := range rule.Body {
			if err := writePredicate(w, p); err != nil {
				return err
			}
		}
		if err := writeExpressionList(w, rule.Expressions); err != nil {
			return err
		}
	}
	return nil
}

func readRules(r io.Reader, remap func(datalog.String) datalog.String) ([]datalog.Rule, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]datalog.Rule, n)
	for i := range out {
		head, err := readPredicate(r, remap)
		if err != nil {
			return nil, err
		}
		var bodyLen uint32
		if err := binary.Read(r, binary.BigEndian, &bodyLen); err != nil {
			return nil, err
		}
		body := make([]datalog.Predicate, bodyLen)
		for j := range body {
			p, err := readPredicate(r, remap)
			if err != nil {
				return nil, err
			}
			body[j] = p
		}
		exprs, err := readExpressionList(r, remap)
		if err != nil {
			return nil, err
		}
		out[i] = datalog.Rule{Head: head, Body: body, Expressions: exprs}
	}
	return out, nil
}

func writeQuery(w io.Writer, q datalog.Query) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(q.Body))); err != nil {
		return err
	}
	for _, p := range q.Body {
		if err := writePredicate(w, p); err != nil {
			return err
		}
	}
	return writeExpressionList(w, q.Expressions)
}

func readQuery(r io.Reader, remap func(datalog.String) datalog.String) (datalog.Query, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return datalog.Query{}, err
	}
	body := make([]datalog.Predicate, n)
	for i := range body {
		p, err := readPredicate(r, remap)
		if err != nil {
			return datalog.Query{}, err
		}
		body[i] = p
	}
	exprs, err := readExpressionList(r, remap)
	if err != nil {
		return datalog.Query{}, err
	}
	return datalog.Query{Body: body, Expressions: exprs}, nil
}

func writeChecks(w io.Writer, checks []datalog.Check) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(checks))); err != nil {
		return err
	}
	for _, c := range checks {
		if err := binary.Write(w, binary.BigEndian, uint32(len(c.Queries))); err != nil {
			return err
		}
		for _, q := range c.Queries {
			if err := writeQuery(w, q); err != nil {
				return err
			}
		}
	}
	return nil
}

func readChecks(r io.Reader, remap func(datalog.String) datalog.String) ([]datalog.Check, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]datalog.Check, n)
	for i := range out {
		var qn uint32
		if err := binary.Read(r, binary.BigEndian, &qn); err != nil {
			return nil, err
		}
		queries := make([]datalog.Query, qn)
		for j := range queries {
			q, err := readQuery(r, remap)
			if err != nil {
				return nil, err
			}
			queries[j] = q
		}
		out[i] = datalog.Check{Queries: queries}
	}
	return out, nil
}

func writePolicies(w io.Writer, policies []datalog.Policy) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(policies))); err != nil {
		return err
	}
	for _, p := range policies {
		if err := binary.Write(w, binary.BigEndian, byte(p.Kind)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.BigEndian, uint32(len(p.Queries))); err != nil {
			return err
		}
		for _, q := range p.Queries {
			if err := writeQuery(w, q); err != nil {
				return err
			}
		}
	}
	return nil
}

func readPolicies(r io.Reader, remap func(datalog.String) datalog.String) ([]datalog.Policy, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]datalog.Policy, n)
	for i := range out {
		var kind byte
		if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
			return nil, err
		}
		var qn uint32
		if err := binary.Read(r, binary.BigEndian, &qn); err != nil {
			return nil, err
		}
		queries := make([]datalog.Query, qn)
		for j := range queries {
			q, err := readQuery(r, remap)
			if err != nil {
				return nil, err
			}
			queries[j] = q
		}
		out[i] = datalog.Policy{Kind: datalog.PolicyKind(kind), Queries: queries}
	}
	return out, nil
}
