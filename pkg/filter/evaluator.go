// Evaluator semantics for EdgeVec's filter expressions: exact byte-for-
// byte string equality, a fixed epsilon-relative float equality, and
// "soft failure" type mismatches that evaluate to false for that row
// rather than aborting the whole predicate.
package filter

import (
	"math"

	"github.com/edgevec/edgevec/pkg/metadata"
)

// FloatEpsilon is the fixed relative epsilon EdgeVec's evaluator uses for
// float equality: |a-b| <= FloatEpsilon * max(|a|, |b|, 1). A single
// documented constant keeps results bit-identical across hosts and runs.
const FloatEpsilon = 1e-9

// Evaluate recursively evaluates expr against rec. It is a pure function:
// identical inputs always produce identical output, with no locale
// dependence and no NaN propagation beyond always evaluating false for
// any comparison involving NaN.
func Evaluate(expr Expr, rec metadata.Record) bool {
	switch e := expr.(type) {
	case Literal:
		return e.Value
	case Compare:
		return evalCompare(e, rec)
	case InSet:
		return evalInSet(e, rec)
	case ArrayAny:
		return evalArrayAny(e, rec)
	case Between:
		return evalBetween(e, rec)
	case Null:
		return evalNull(e, rec)
	case Logical:
		return evalLogical(e, rec)
	default:
		return false
	}
}

func evalLogical(e Logical, rec metadata.Record) bool {
	switch e.Op {
	case OpAnd:
		return Evaluate(e.Left, rec) && Evaluate(e.Right, rec)
	case OpOr:
		return Evaluate(e.Left, rec) || Evaluate(e.Right, rec)
	case OpNot:
		return !Evaluate(e.Left, rec)
	default:
		return false
	}
}

func evalNull(e Null, rec metadata.Record) bool {
	_, exists := rec[e.Field]
	if e.IsNull {
		return !exists
	}
	return exists
}

func evalCompare(e Compare, rec metadata.Record) bool {
	actual, exists := rec[e.Field]
	if !exists {
		return false
	}
	switch e.Op {
	case OpEq:
		return valuesEqual(actual, e.Value)
	case OpNeq:
		if af, ok := asFloat(actual); ok && math.IsNaN(af) {
			return false
		}
		if bf, ok := asFloat(e.Value); ok && math.IsNaN(bf) {
			return false
		}
		return !valuesEqual(actual, e.Value)
	default:
		ord, ok := compareOrdered(actual, e.Value)
		if !ok {
			return false // FilterTypeMismatch: soft failure, row -> false
		}
		switch e.Op {
		case OpLt:
			return ord < 0
		case OpLte:
			return ord <= 0
		case OpGt:
			return ord > 0
		case OpGte:
			return ord >= 0
		}
		return false
	}
}

func evalInSet(e InSet, rec metadata.Record) bool {
	actual, exists := rec[e.Field]
	if !exists {
		return false
	}
	for _, v := range e.Values {
		if valuesEqual(actual, v) {
			return true
		}
	}
	return false
}

func evalArrayAny(e ArrayAny, rec metadata.Record) bool {
	actual, exists := rec[e.Field]
	if !exists || actual.Kind != metadata.KindStringArray {
		return false
	}
	for _, elem := range actual.Arr {
		for _, v := range e.Values {
			if v.Kind == metadata.KindString && elem == v.Str {
				return true
			}
		}
	}
	return false
}

func evalBetween(e Between, rec metadata.Record) bool {
	actual, exists := rec[e.Field]
	if !exists {
		return false
	}
	loOrd, ok1 := compareOrdered(actual, e.Lo)
	hiOrd, ok2 := compareOrdered(actual, e.Hi)
	if !ok1 || !ok2 {
		return false
	}
	return loOrd >= 0 && hiOrd <= 0
}

// valuesEqual implements equality with coercion: exact byte-for-byte
// string equality, epsilon-relative float equality (numeric cross-type
// between Integer and Float allowed), exact boolean equality. NaN never
// equals anything, including itself.
func valuesEqual(a, b metadata.Value) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			if math.IsNaN(af) || math.IsNaN(bf) {
				return false
			}
			scale := math.Max(math.Max(math.Abs(af), math.Abs(bf)), 1)
			return math.Abs(af-bf) <= FloatEpsilon*scale
		}
	}
	if a.Kind == metadata.KindString && b.Kind == metadata.KindString {
		return a.Str == b.Str
	}
	if a.Kind == metadata.KindBoolean && b.Kind == metadata.KindBoolean {
		return a.Bool == b.Bool
	}
	return false
}

// compareOrdered returns (-1, 0, 1, true) for a well-typed ordered
// comparison, or (0, false) when the two values can't be ordered against
// each other (a FilterTypeMismatch soft failure).
func compareOrdered(a, b metadata.Value) (int, bool) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			if math.IsNaN(af) || math.IsNaN(bf) {
				return 0, false
			}
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if a.Kind == metadata.KindString && b.Kind == metadata.KindString {
		switch {
		case a.Str < b.Str:
			return -1, true
		case a.Str > b.Str:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func asFloat(v metadata.Value) (float64, bool) {
	switch v.Kind {
	case metadata.KindInteger:
		return float64(v.Int), true
	case metadata.KindFloat:
		return v.Flt, true
	default:
		return 0, false
	}
}
