// Package ast defines the program tree consumed by the compiler.
//
// The tree is produced by an external parser (see internal/parser) and is
// assumed to be syntactically valid. Shapes the compiler does not support are
// still representable here so they can be rejected with a SyntaxError instead
// of being dropped silently.
package ast

import "pyvm/internal/errs"

// Position is a source location; the zero value means unknown.
type Position = errs.Position

// Basic interfaces

type Node interface {
	Pos() Position
}

type Stmt interface {
	Node
	stmtNode()
}

type Expr interface {
	Node
	exprNode()
}

// Program is a whole script.
type Program struct {
	Stmts []Stmt
}

func (p *Program) Pos() Position {
	if len(p.Stmts) > 0 {
		return p.Stmts[0].Pos()
	}
	return Position{}
}

// ---------- Operators ----------

// Operator is a binary arithmetic or bitwise operator.
type Operator int

const (
	OpInvalid Operator = iota
	Add
	Sub
	Mult
	MatMult
	Div
	Mod
	Pow
	LShift
	RShift
	BitOr
	BitXor
	BitAnd
	FloorDiv
)

// Operators lists every operator, in declaration order.
var Operators = []Operator{Add, Sub, Mult, MatMult, Div, Mod, Pow, LShift, RShift, BitOr, BitXor, BitAnd, FloorDiv}

func (o Operator) String() string {
	switch o {
	case Add:
		return "+"
	case Sub:
		return "-"
	case Mult:
		return "*"
	case MatMult:
		return "@"
	case Div:
		return "/"
	case Mod:
		return "%"
	case Pow:
		return "**"
	case LShift:
		return "<<"
	case RShift:
		return ">>"
	case BitOr:
		return "|"
	case BitXor:
		return "^"
	case BitAnd:
		return "&"
	case FloorDiv:
		return "//"
	default:
		return "?"
	}
}

// ---------- Statements ----------

type BreakStmt struct {
	At Position
}

type ContinueStmt struct {
	At Position
}

type PassStmt struct {
	At Position
}

// ExprStmt evaluates an expression and discards the result.
type ExprStmt struct {
	At   Position
	Expr Expr
}

type IfStmt struct {
	At     Position
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

type WhileStmt struct {
	At     Position
	Test   Expr
	Body   []Stmt
	Orelse []Stmt
}

type ForStmt struct {
	At     Position
	Target Expr
	Iter   Expr
	Body   []Stmt
	Orelse []Stmt
}

// WithStmt is part of the input contract but is rejected by the compiler.
type WithStmt struct {
	At   Position
	Body []Stmt
}

// Param is a positional function parameter.
type Param struct {
	Name string
	At   Position
}

type FunctionDef struct {
	At     Position
	Name   string
	Params []*Param
	Body   []Stmt

	// Features outside the supported subset, kept so the compiler can
	// reject them explicitly.
	HasDecorators bool
	HasDefaults   bool
	HasVarArgs    bool
	HasKwArgs     bool
}

// ClassDef is part of the input contract but is rejected by the compiler.
type ClassDef struct {
	At   Position
	Name string
	Body []Stmt
}

type AssertStmt struct {
	At   Position
	Test Expr
	Msg  Expr // nil if absent
}

// ReturnStmt returns zero or more values; more than one is packed into a tuple.
type ReturnStmt struct {
	At     Position
	Values []Expr
}

// AssignStmt binds one value to every target: a = b = value.
type AssignStmt struct {
	At      Position
	Targets []Expr
	Value   Expr
}

type DeleteStmt struct {
	At      Position
	Targets []Expr
}

// ImportStmt is part of the input contract but is rejected by the compiler.
type ImportStmt struct {
	At    Position
	Names []string
}

func (s *BreakStmt) Pos() Position    { return s.At }
func (s *ContinueStmt) Pos() Position { return s.At }
func (s *PassStmt) Pos() Position     { return s.At }
func (s *ExprStmt) Pos() Position     { return s.At }
func (s *IfStmt) Pos() Position       { return s.At }
func (s *WhileStmt) Pos() Position    { return s.At }
func (s *ForStmt) Pos() Position      { return s.At }
func (s *WithStmt) Pos() Position     { return s.At }
func (s *FunctionDef) Pos() Position  { return s.At }
func (s *ClassDef) Pos() Position     { return s.At }
func (s *AssertStmt) Pos() Position   { return s.At }
func (s *ReturnStmt) Pos() Position   { return s.At }
func (s *AssignStmt) Pos() Position   { return s.At }
func (s *DeleteStmt) Pos() Position   { return s.At }
func (s *ImportStmt) Pos() Position   { return s.At }

func (*BreakStmt) stmtNode()    {}
func (*ContinueStmt) stmtNode() {}
func (*PassStmt) stmtNode()     {}
func (*ExprStmt) stmtNode()     {}
func (*IfStmt) stmtNode()       {}
func (*WhileStmt) stmtNode()    {}
func (*ForStmt) stmtNode()      {}
func (*WithStmt) stmtNode()     {}
func (*FunctionDef) stmtNode()  {}
func (*ClassDef) stmtNode()     {}
func (*AssertStmt) stmtNode()   {}
func (*ReturnStmt) stmtNode()   {}
func (*AssignStmt) stmtNode()   {}
func (*DeleteStmt) stmtNode()   {}
func (*ImportStmt) stmtNode()   {}

// ---------- Expressions ----------

type BinaryExpr struct {
	At    Position
	Left  Expr
	Op    Operator
	Right Expr
}

type CallExpr struct {
	At   Position
	Func Expr
	Args []Expr

	HasKeywords bool // keyword or starred arguments, rejected by the compiler
}

// NumberLiteral holds the literal as parsed; the compiler checks its range.
type NumberLiteral struct {
	At    Position
	Value int64
}

type StringLiteral struct {
	At    Position
	Value string
}

type Identifier struct {
	At   Position
	Name string
}

type ListLiteral struct {
	At    Position
	Elems []Expr
}

type TupleLiteral struct {
	At    Position
	Elems []Expr
}

// DictLiteral keeps keys and values in source order; len(Keys) == len(Values).
type DictLiteral struct {
	At     Position
	Keys   []Expr
	Values []Expr
}

type TrueLiteral struct {
	At Position
}

type FalseLiteral struct {
	At Position
}

type NoneLiteral struct {
	At Position
}

func (e *BinaryExpr) Pos() Position    { return e.At }
func (e *CallExpr) Pos() Position      { return e.At }
func (e *NumberLiteral) Pos() Position { return e.At }
func (e *StringLiteral) Pos() Position { return e.At }
func (e *Identifier) Pos() Position    { return e.At }
func (e *ListLiteral) Pos() Position   { return e.At }
func (e *TupleLiteral) Pos() Position  { return e.At }
func (e *DictLiteral) Pos() Position   { return e.At }
func (e *TrueLiteral) Pos() Position   { return e.At }
func (e *FalseLiteral) Pos() Position  { return e.At }
func (e *NoneLiteral) Pos() Position   { return e.At }

func (*BinaryExpr) exprNode()    {}
func (*CallExpr) exprNode()      {}
func (*NumberLiteral) exprNode() {}
func (*StringLiteral) exprNode() {}
func (*Identifier) exprNode()    {}
func (*ListLiteral) exprNode()   {}
func (*TupleLiteral) exprNode()  {}
func (*DictLiteral) exprNode()   {}
func (*TrueLiteral) exprNode()   {}
func (*FalseLiteral) exprNode()  {}
func (*NoneLiteral) exprNode()   {}
