// Package predicate defines the predicate-tree node types the Evaluator and
// ScanEngine consume. The query parser/planner that
// actually builds these trees lives out of this package's scope — predicate
// tree nodes are consumed here, not built; this package only defines the node shapes and the one
// piece of domain logic that has to live close to them: Op.Fold, which
// turns a double bound into a representable integer bound for a given
// column type.
package predicate

import (
	"math"

	"github.com/partdb/partdb/coltype"
)

// Op is a comparison operator, a sum type rather than a stringly-typed
// value with ad-hoc fold rules.
type Op int

const (
	None Op = iota
	Lt
	Le
	Gt
	Ge
	Eq
)

func (o Op) String() string {
	switch o {
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	case Eq:
		return "=="
	default:
		return "none"
	}
}

// Verdict is the outcome of folding a double bound against an integer
// column type: either a normal (threshold, op) pair to compare against,
// or a trivial outcome when the bound falls entirely outside the type's
// representable range.
type Verdict int

const (
	// Normal means (Threshold, Op) should be used for comparison.
	Normal Verdict = iota
	// Always means every value of the column satisfies the bound.
	Always
	// Never means no value of the column satisfies the bound.
	Never
)

// FoldResult is the output of Fold.
type FoldResult struct {
	Verdict   Verdict
	Threshold int64
	Op        Op // only meaningful when Verdict == Normal
}

// Fold converts a single-sided bound (op, bound) against an integer column
// type t into a representable integer threshold: bounds are folded into
// the nearest representable integer according to
// the operator direction before comparison. Only call this for integer
// coltype.Type values; Float/Double/Text/Category/Oid compare directly.
//
// Direction-aware rounding: a fractional bound on Lt/Le folds down (floor)
// and keeps the inequality non-strict on the floored value; a fractional
// bound on Gt/Ge folds up (ceil) and keeps it non-strict. Eq against a
// fractional bound on an integer column can never match: spec requires
// this to yield Never.
func Fold(op Op, bound float64, t coltype.Type) FoldResult {
	lo, hi := t.IntBounds()
	integral := bound == math.Trunc(bound)

	switch op {
	case Eq:
		if !integral {
			return FoldResult{Verdict: Never}
		}
		if bound < lo || bound > hi {
			return FoldResult{Verdict: Never}
		}
		return FoldResult{Verdict: Normal, Threshold: int64OrClamp(bound), Op: Eq}

	case Lt, Le:
		var threshold float64
		newOp := Le
		if integral {
			if op == Lt {
				threshold = bound - 1
			} else {
				threshold = bound
			}
		} else {
			threshold = math.Floor(bound)
		}
		if threshold < lo {
			return FoldResult{Verdict: Never}
		}
		if threshold > hi {
			return FoldResult{Verdict: Always}
		}
		return FoldResult{Verdict: Normal, Threshold: int64OrClamp(threshold), Op: newOp}

	case Gt, Ge:
		var threshold float64
		newOp := Ge
		if integral {
			if op == Gt {
				threshold = bound + 1
			} else {
				threshold = bound
			}
		} else {
			threshold = math.Ceil(bound)
		}
		if threshold > hi {
			return FoldResult{Verdict: Never}
		}
		if threshold < lo {
			return FoldResult{Verdict: Always}
		}
		return FoldResult{Verdict: Normal, Threshold: int64OrClamp(threshold), Op: newOp}

	default: // None
		return FoldResult{Verdict: Always}
	}
}

func int64OrClamp(f float64) int64 {
	if f > math.MaxInt64 {
		return math.MaxInt64
	}
	if f < math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

// Range is a continuous range predicate over one column with independent
// left/right operators, e.g. `3 <= x AND x < 7`. LowOp/HighOp are None
// when that side is unbounded.
type Range struct {
	Column string
	LowOp  Op
	Low    float64
	HighOp Op
	High   float64
}

// DiscreteRange is membership in an explicit, unordered value set.
type DiscreteRange struct {
	Column string
	Values []float64
}

// TextEquality is either a string-equality match against a Text/Category
// column, or — via a row-index passthrough — a direct
// row-number range that bypasses column data entirely when UseRowRange is
// set. Row positions below zero or at/above N are ignored by the engine.
type TextEquality struct {
	Column      string
	Value       string
	Values      []string // for the list form of string equality
	UseRowRange bool
	RowLow      int64
	RowHigh     int64 // exclusive
}

// AnyAny is the "matchAny" predicate: for every column whose name starts
// with Prefix (case-insensitive), scan it for membership in Values and OR
// the per-column hits together.
type AnyAny struct {
	Prefix string
	Values []string
}

// Barrel is the named variable bag ArithmeticExpr.InRange reads from: the
// engine fills one value per referenced column for the current row before
// calling InRange.
type Barrel struct {
	vals map[string]float64
}

// NewBarrel returns an empty Barrel.
func NewBarrel() *Barrel {
	return &Barrel{vals: make(map[string]float64)}
}

// Set stores the current row's value for a named column.
func (b *Barrel) Set(name string, v float64) {
	b.vals[name] = v
}

// Get retrieves the current row's value for a named column.
func (b *Barrel) Get(name string) (float64, bool) {
	v, ok := b.vals[name]
	return v, ok
}

// ArithmeticExpr is a compound predicate over multiple columns, evaluated
// one row at a time via a Barrel. Implementations are supplied by the
// (out-of-scope) query planner; ScanEngine only calls Columns and InRange.
type ArithmeticExpr interface {
	// Columns lists every column name the expression reads, in the order
	// the engine should populate the Barrel.
	Columns() []string
	// InRange reports whether the current row (as populated into barrel)
	// satisfies the expression.
	InRange(barrel *Barrel) bool
}
