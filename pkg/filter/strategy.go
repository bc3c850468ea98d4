package filter

import "reflect"

// Strategy is how a predicate is integrated with k-NN search.
type Strategy int

const (
	// StrategyAll means the predicate is a tautology: search proceeds
	// unfiltered and every result passes.
	StrategyAll Strategy = iota
	// StrategyEmpty means the predicate is a contradiction: the result
	// set is always empty, short-circuiting the search entirely.
	StrategyEmpty
	// StrategyPrefilter builds the passing-id subset first, then
	// restricts search to it.
	StrategyPrefilter
	// StrategyPostfilter runs unfiltered search with an oversampled k,
	// then filters.
	StrategyPostfilter
	// StrategyHybrid evaluates the predicate in-loop during HNSW
	// expansion, skipping non-matching nodes from results but still
	// using them for navigation.
	StrategyHybrid
)

// SelectorConfig tunes the strategy selector's selectivity thresholds.
type SelectorConfig struct {
	// SLo: selectivity at or below this favors Prefilter.
	SLo float64
	// SHi: selectivity at or above this favors Postfilter.
	SHi float64
	// MaxOversample bounds how large k' can grow relative to k for
	// Postfilter, so a very low estimated selectivity can't request an
	// unbounded candidate set.
	MaxOversample float64
}

// DefaultSelectorConfig returns the default selector thresholds.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{SLo: 0.1, SHi: 0.5, MaxOversample: 20}
}

// Plan is the strategy selector's decision for one search call: which
// strategy to use, the simplified expression to evaluate (nil for
// StrategyAll/StrategyEmpty, which need no evaluation), and the
// oversample factor Postfilter should apply to k.
type Plan struct {
	Strategy   Strategy
	Expr       Expr
	Oversample float64
}

// Select runs tautology/contradiction collapse first, then picks a
// strategy from estimated selectivity using a constant-time heuristic:
// Prefilter below SLo, Postfilter above SHi, Hybrid in between.
// fastMembershipFits should be true when the expected passing id count
// is small enough to build a fast membership structure, the cutoff for
// Prefilter eligibility.
func Select(expr Expr, selectivity float64, fastMembershipFits bool, cfg SelectorConfig) Plan {
	simplified := Simplify(expr)

	if lit, ok := simplified.(Literal); ok {
		if lit.Value {
			return Plan{Strategy: StrategyAll}
		}
		return Plan{Strategy: StrategyEmpty}
	}

	switch {
	case selectivity <= cfg.SLo && fastMembershipFits:
		return Plan{Strategy: StrategyPrefilter, Expr: simplified}
	case selectivity >= cfg.SHi:
		return Plan{Strategy: StrategyPostfilter, Expr: simplified, Oversample: oversampleFactor(selectivity, cfg.MaxOversample)}
	default:
		return Plan{Strategy: StrategyHybrid, Expr: simplified}
	}
}

func oversampleFactor(selectivity float64, max float64) float64 {
	if selectivity <= 0 {
		return max
	}
	factor := 1 / selectivity
	if factor > max {
		return max
	}
	return factor
}

// Simplify applies tautology/contradiction collapse:
// `true`, `x OR NOT x` fold to Literal{true}; `false`, `x AND NOT x` fold
// to Literal{false}. The rewrite is purely structural (exprEqual uses
// reflect.DeepEqual on sub-expressions), so it only catches the case
// where the same sub-expression literally recurs, not semantic
// equivalences a SAT solver would need to prove.
func Simplify(e Expr) Expr {
	switch v := e.(type) {
	case Logical:
		left := Simplify(v.Left)
		if v.Op == OpNot {
			if lit, ok := left.(Literal); ok {
				return Literal{Value: !lit.Value}
			}
			return Logical{Op: OpNot, Left: left}
		}

		right := Simplify(v.Right)

		if isNegationOf(left, right) || isNegationOf(right, left) {
			if v.Op == OpOr {
				return Literal{Value: true}
			}
			return Literal{Value: false}
		}

		if leftLit, ok := left.(Literal); ok {
			if v.Op == OpAnd {
				if !leftLit.Value {
					return Literal{Value: false}
				}
				return right
			}
			if leftLit.Value {
				return Literal{Value: true}
			}
			return right
		}
		if rightLit, ok := right.(Literal); ok {
			if v.Op == OpAnd {
				if !rightLit.Value {
					return Literal{Value: false}
				}
				return left
			}
			if rightLit.Value {
				return Literal{Value: true}
			}
			return left
		}
		return Logical{Op: v.Op, Left: left, Right: right}
	default:
		return e
	}
}

func isNegationOf(a, b Expr) bool {
	neg, ok := a.(Logical)
	if !ok || neg.Op != OpNot {
		return false
	}
	return reflect.DeepEqual(neg.Left, b)
}
