// Command warden loads a YAML authorization fixture and prints the
// resulting verification decision. It exercises the warden library against
// already-parsed fixture data; it does not parse or verify real signed
// capability tokens (that remains out of scope for this module).
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wardenproto/warden"
	"github.com/wardenproto/warden/datalog"
)

// fixture is the YAML shape the demo CLI reads: a flat list of facts,
// checks, and policies to load into a fresh Verifier before calling
// Verify against a nil Token.
type fixture struct {
	Facts []struct {
		Name  string   `yaml:"name"`
		Terms []string `yaml:"terms"`
	} `yaml:"facts"`
	Checks []struct {
		Predicates []string `yaml:"predicates"`
	} `yaml:"checks"`
	Policies []struct {
		Kind       string   `yaml:"kind"`
		Predicates []string `yaml:"predicates"`
	} `yaml:"policies"`
}

func main() {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Evaluate an authorization fixture against the warden verifier",
	}

	var fixturePath string
	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Load a fixture and print the verification decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(fixturePath)
		},
	}
	evalCmd.Flags().StringVarP(&fixturePath, "fixture", "f", "", "path to a YAML authorization fixture")
	evalCmd.MarkFlagRequired("fixture")

	root.AddCommand(evalCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runEval(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading fixture: %w", err)
	}

	var fx fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("parsing fixture: %w", err)
	}

	v := warden.NewVerifier()
	b := warden.NewFactBuilder(v.Symbols())

	for _, f := range fx.Facts {
		terms := make([]datalog.Term, len(f.Terms))
		for i, t := range f.Terms {
			terms[i] = b.Sym(t)
		}
		v.AddFact(b.Fact(f.Name, terms...))
	}

	for _, c := range fx.Checks {
		v.AddCheck(b.Check(b.Query(fixturePredicates(b, c.Predicates))))
	}

	for _, p := range fx.Policies {
		q := b.Query(fixturePredicates(b, p.Predicates))
		if p.Kind == "deny" {
			v.AddPolicy(b.DenyPolicy(q))
		} else {
			v.AddPolicy(b.AllowPolicy(q))
		}
	}

	err = v.Verify(nil)
	fmt.Println(v.PrintWorld())

	if err != nil {
		fmt.Printf("decision: denied (%v)\n", err)
		return nil
	}
	fmt.Println("decision: allowed")
	return nil
}

// fixturePredicates builds a query body from entries of the form
// "name:term,term", where a term beginning with "$" is a Variable (shared
// across predicates of the same query by its numeric suffix) and any other
// term is interned as a symbol. The demo fixture format deliberately stays
// this simple: a real surface syntax for arbitrary queries and expressions
// is out of scope for this command.
func fixturePredicates(b warden.FactBuilder, predicates []string) []datalog.Predicate {
	out := make([]datalog.Predicate, 0, len(predicates))
	for _, p := range predicates {
		name, rest, _ := strings.Cut(p, ":")
		var terms []datalog.Term
		if rest != "" {
			for _, arg := range strings.Split(rest, ",") {
				terms = append(terms, fixtureTerm(b, arg))
			}
		}
		out = append(out, b.Predicate(name, terms...))
	}
	return out
}

func fixtureTerm(b warden.FactBuilder, arg string) datalog.Term {
	if n, ok := strings.CutPrefix(arg, "$"); ok {
		idx, err := strconv.ParseUint(n, 10, 64)
		if err == nil {
			return datalog.Variable(idx)
		}
	}
	return b.Sym(arg)
}
