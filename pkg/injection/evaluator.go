// Package injection implements the restricted arithmetic evaluator for
// INJECT(...) / INJECT_FROM_PREVIOUS(...) markers (component C1).
//
// The source system evaluated these expressions with Python's eval() under
// a restricted builtins dict. That is a code-injection surface: anything
// reachable from __builtins__ leaks through introspection. Here the
// grammar is closed by construction — a hand-written recursive-descent
// parser over literals, identifiers, four binary operators, unary minus,
// comparisons, parentheses, and eight named functions. There is no
// attribute access, no indexing, and no name lookup outside of Bindings
// and the allowed-function set, so there is nothing to sandbox.
package injection

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/chainlens/nlquery/pkg/types"
)

// SafeDefault is returned whenever evaluation cannot proceed safely.
// LIMIT/OFFSET 0 is a silent-failure trap in SPARQL; 1 yields a
// well-formed query that produces at most a diagnostic miss.
const SafeDefault = 1

var allowedFunctions = map[string]bool{
	"int": true, "float": true, "round": true, "abs": true,
	"min": true, "max": true, "ceil": true, "floor": true,
}

var identifierRE = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// markerRE matches INJECT(...) / INJECT_FROM_PREVIOUS(...) with a balanced
// parenthesized expression of depth at most 1, per spec §4.3 step 1.
var markerRE = regexp.MustCompile(`INJECT(?:_FROM_PREVIOUS)?\((?:[^()]|\([^()]*\))*\)`)

// FindMarkers extracts every INJECT/INJECT_FROM_PREVIOUS occurrence from a
// PlanStep's SPARQL body, in order, as InjectionExpr values with the
// evaluate(...) / wrapper layers still attached to Marker but unwrapped
// into Expr.
func FindMarkers(sparql string) []types.InjectionExpr {
	matches := markerRE.FindAllString(sparql, -1)
	exprs := make([]types.InjectionExpr, 0, len(matches))
	for _, m := range matches {
		exprs = append(exprs, types.InjectionExpr{Marker: m, Expr: Unwrap(m)})
	}
	return exprs
}

var injectWrapperRE = regexp.MustCompile(`(?s)^INJECT(?:_FROM_PREVIOUS)?\((.*)\)$`)
var evaluateWrapperRE = regexp.MustCompile(`(?s)^evaluate\((.*)\)$`)

// Unwrap strips outer INJECT(...)/INJECT_FROM_PREVIOUS(...) and evaluate(...)
// layers, in either order, once each. The source system accepted both
// evaluate(INJECT(...)) and INJECT(evaluate(...)); spec.md §9 leaves this
// ambiguous and tells us to treat it as symmetric, so both orders unwrap.
func Unwrap(expr string) string {
	expr = strings.TrimSpace(expr)
	for i := 0; i < 2; i++ {
		if m := injectWrapperRE.FindStringSubmatch(expr); m != nil {
			expr = strings.TrimSpace(m[1])
			continue
		}
		if m := evaluateWrapperRE.FindStringSubmatch(expr); m != nil {
			expr = strings.TrimSpace(m[1])
			continue
		}
		break
	}
	return expr
}

// Diagnostic records a non-fatal problem encountered while evaluating an
// injection expression (missing variable, parse failure, ...). It never
// aborts the plan; callers log it and clamp to SafeDefault.
type Diagnostic struct {
	Expr   string
	Reason string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("injection %q: %s", d.Expr, d.Reason)
}

// Evaluate computes the clamped integer (or primitive) value of expr
// against bindings. On any failure it returns SafeDefault and a Diagnostic;
// the caller is expected to continue rather than abort.
func Evaluate(expr string, bindings types.Bindings) (int64, *Diagnostic) {
	unwrapped := Unwrap(expr)

	idents := identifiersIn(unwrapped)
	var missing []string
	for _, id := range idents {
		if allowedFunctions[id] {
			continue
		}
		if _, ok := bindings[id]; ok {
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		return SafeDefault, &Diagnostic{Expr: unwrapped, Reason: "undefined variable(s): " + strings.Join(missing, ", ")}
	}

	substituted := substitute(unwrapped, bindings)

	value, err := evalExpr(substituted)
	if err != nil {
		return SafeDefault, &Diagnostic{Expr: unwrapped, Reason: err.Error()}
	}

	return clamp(value), nil
}

func identifiersIn(expr string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range identifierRE.FindAllString(expr, -1) {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// substitute replaces every Bindings identifier present in expr with its
// literal representation: numeric values inline, text single-quoted.
// Longer identifiers are substituted first so one name is never a prefix
// match inside another (e.g. "total" inside "total2").
func substitute(expr string, bindings types.Bindings) string {
	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	// stable, longest-first so overlapping names don't corrupt each other
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if len(names[j]) > len(names[i]) {
				names[i], names[j] = names[j], names[i]
			}
		}
	}

	boundary := `\b`
	for _, name := range names {
		v := bindings[name]
		re := regexp.MustCompile(boundary + regexp.QuoteMeta(name) + boundary)
		expr = re.ReplaceAllStringFunc(expr, func(string) string {
			return literalOf(v)
		})
	}
	return expr
}

func literalOf(v types.BindingValue) string {
	switch {
	case v.IsBool:
		return strconv.FormatBool(v.Bool)
	case v.IsNumeric:
		if v.IsInt {
			return strconv.FormatInt(int64(v.Number), 10)
		}
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	default:
		return "'" + strings.ReplaceAll(v.Text, "'", "\\'") + "'"
	}
}

func clamp(v float64) int64 {
	rounded := int64(math.Round(v))
	if rounded < 1 {
		return SafeDefault
	}
	return rounded
}
