package filter

import "github.com/edgevec/edgevec/pkg/metadata"

// Expr is the filter language's tagged-tree AST: a marker interface
// over a closed set of node structs, so the evaluator and strategy
// selector can switch on concrete type.
type Expr interface {
	exprMarker()
}

// Literal is a bare boolean, used for TRUE/FALSE and for tautology or
// contradiction collapse results.
type Literal struct{ Value bool }

func (Literal) exprMarker() {}

// CompareOp enumerates the comparison operators the grammar recognizes.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNeq
	OpLt
	OpLte
	OpGt
	OpGte
)

// Compare is `field op value`.
type Compare struct {
	Field string
	Op    CompareOp
	Value metadata.Value
}

func (Compare) exprMarker() {}

// InSet is `field IN (values...)`.
type InSet struct {
	Field  string
	Values []metadata.Value
}

func (InSet) exprMarker() {}

// ArrayAny is `field ANY (values...)`: true if any element of the
// array-typed field matches any value in the set.
type ArrayAny struct {
	Field  string
	Values []metadata.Value
}

func (ArrayAny) exprMarker() {}

// Between is `field BETWEEN lo AND hi`, inclusive on both ends.
type Between struct {
	Field string
	Lo    metadata.Value
	Hi    metadata.Value
}

func (Between) exprMarker() {}

// Null is `field IS [NOT] NULL`.
type Null struct {
	Field  string
	IsNull bool
}

func (Null) exprMarker() {}

// LogicalOp enumerates AND/OR/NOT.
type LogicalOp int

const (
	OpAnd LogicalOp = iota
	OpOr
	OpNot
)

// Logical is `left AND right`, `left OR right`, or `NOT operand`
// (in which case Right is nil).
type Logical struct {
	Op    LogicalOp
	Left  Expr
	Right Expr
}

func (Logical) exprMarker() {}
