// Package ast defines the syntax tree for the analyzed Fortran subset.
//
// The tree is designed to be:
// - Closed: statements and expressions are tagged variants with exhaustive switches
// - Comparable: structural equality ignores source positions
// - Transformable: loop nodes are replaced in place by kernel region nodes
package ast

import (
	"fmt"
	"strings"
)

// ----------------------------------------------------------------------------
// Source Positions
// ----------------------------------------------------------------------------

// Pos is a position in preprocessed source. Line and Col are 1-based;
// the zero Pos means "unknown".
type Pos struct {
	Line int
	Col  int
}

// IsValid reports whether the position is known.
func (p Pos) IsValid() bool {
	return p.Line > 0
}

// Before orders positions by line, then column.
func (p Pos) Before(q Pos) bool {
	if p.Line != q.Line {
		return p.Line < q.Line
	}
	return p.Col < q.Col
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// ----------------------------------------------------------------------------
// Variable References
// ----------------------------------------------------------------------------

// VarRef names a variable at a source position. Two refs denote the same
// variable iff their names match; positions are metadata only.
type VarRef struct {
	Name string
	Pos  Pos
}

// Equal reports whether both refs name the same variable.
func (v VarRef) Equal(o VarRef) bool {
	return v.Name == o.Name
}

// ContainsRef reports whether refs contains a ref naming name.
func ContainsRef(refs []VarRef, name string) bool {
	for _, r := range refs {
		if r.Name == name {
			return true
		}
	}
	return false
}

// MergeRefs unions two ref sets by name, keeping first-seen order.
func MergeRefs(a, b []VarRef) []VarRef {
	out := make([]VarRef, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, r := range a {
		if !seen[r.Name] {
			seen[r.Name] = true
			out = append(out, r)
		}
	}
	for _, r := range b {
		if !seen[r.Name] {
			seen[r.Name] = true
			out = append(out, r)
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// Expressions
// ----------------------------------------------------------------------------

// Expr is an expression node.
type Expr interface {
	isExpr()
	Position() Pos
}

// IntLit is an integer literal.
type IntLit struct {
	Pos   Pos
	Value int64
}

func (*IntLit) isExpr()         {}
func (e *IntLit) Position() Pos { return e.Pos }

// RealLit is a floating-point literal. Text keeps the source spelling.
type RealLit struct {
	Pos   Pos
	Value float64
	Text  string
}

func (*RealLit) isExpr()         {}
func (e *RealLit) Position() Pos { return e.Pos }

// BoolLit is a logical literal (.true. or .false.).
type BoolLit struct {
	Pos   Pos
	Value bool
}

func (*BoolLit) isExpr()         {}
func (e *BoolLit) Position() Pos { return e.Pos }

// VarExpr is a variable reference with an optional index/argument list.
// Array subscripting and function calls share this shape; telling them
// apart requires the declared-names set from the access analysis.
type VarExpr struct {
	Pos  Pos
	Name string
	Args []Expr
}

func (*VarExpr) isExpr()         {}
func (e *VarExpr) Position() Pos { return e.Pos }

// IsPlain reports whether the reference carries no index/argument list.
func (e *VarExpr) IsPlain() bool { return len(e.Args) == 0 }

// Ref returns the reference as a VarRef.
func (e *VarExpr) Ref() VarRef { return VarRef{Name: e.Name, Pos: e.Pos} }

// UnaryExpr is a unary operation.
type UnaryExpr struct {
	Pos     Pos
	Op      UnaryOp
	Operand Expr
}

func (*UnaryExpr) isExpr()         {}
func (e *UnaryExpr) Position() Pos { return e.Pos }

// UnaryOp identifies unary operators.
type UnaryOp uint8

const (
	UnaryNeg UnaryOp = iota // -
	UnaryNot                // .not.
)

func (op UnaryOp) String() string {
	switch op {
	case UnaryNeg:
		return "-"
	case UnaryNot:
		return ".not."
	default:
		return "?"
	}
}

// BinaryExpr is a binary operation.
type BinaryExpr struct {
	Pos   Pos
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (*BinaryExpr) isExpr()         {}
func (e *BinaryExpr) Position() Pos { return e.Pos }

// BinaryOp identifies binary operators.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota // +
	OpSub                 // -
	OpMul                 // *
	OpDiv                 // /
	OpPow                 // **
	OpEq                  // .eq. / ==
	OpNe                  // .ne. / /=
	OpLt                  // .lt. / <
	OpLe                  // .le. / <=
	OpGt                  // .gt. / >
	OpGe                  // .ge. / >=
	OpAnd                 // .and.
	OpOr                  // .or.
)

var binaryOpNames = [...]string{
	OpAdd: "+",
	OpSub: "-",
	OpMul: "*",
	OpDiv: "/",
	OpPow: "**",
	OpEq:  ".eq.",
	OpNe:  ".ne.",
	OpLt:  ".lt.",
	OpLe:  ".le.",
	OpGt:  ".gt.",
	OpGe:  ".ge.",
	OpAnd: ".and.",
	OpOr:  ".or.",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "?"
}

// ----------------------------------------------------------------------------
// Expression Queries
// ----------------------------------------------------------------------------

// ExprEqual compares two expressions structurally, ignoring positions.
func ExprEqual(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch x := a.(type) {
	case *IntLit:
		y, ok := b.(*IntLit)
		return ok && x.Value == y.Value
	case *RealLit:
		y, ok := b.(*RealLit)
		return ok && x.Value == y.Value
	case *BoolLit:
		y, ok := b.(*BoolLit)
		return ok && x.Value == y.Value
	case *VarExpr:
		y, ok := b.(*VarExpr)
		if !ok || x.Name != y.Name || len(x.Args) != len(y.Args) {
			return false
		}
		for i := range x.Args {
			if !ExprEqual(x.Args[i], y.Args[i]) {
				return false
			}
		}
		return true
	case *UnaryExpr:
		y, ok := b.(*UnaryExpr)
		return ok && x.Op == y.Op && ExprEqual(x.Operand, y.Operand)
	case *BinaryExpr:
		y, ok := b.(*BinaryExpr)
		return ok && x.Op == y.Op && ExprEqual(x.Left, y.Left) && ExprEqual(x.Right, y.Right)
	default:
		return false
	}
}

// VisitExprs calls f for e and every expression nested inside it.
func VisitExprs(e Expr, f func(Expr)) {
	if e == nil {
		return
	}
	f(e)
	switch x := e.(type) {
	case *VarExpr:
		for _, a := range x.Args {
			VisitExprs(a, f)
		}
	case *UnaryExpr:
		VisitExprs(x.Operand, f)
	case *BinaryExpr:
		VisitExprs(x.Left, f)
		VisitExprs(x.Right, f)
	}
}

// VarNames returns every variable name reachable from e, in source order,
// without duplicates. Callee/array names are included.
func VarNames(e Expr) []string {
	var names []string
	seen := make(map[string]bool)
	VisitExprs(e, func(sub Expr) {
		if v, ok := sub.(*VarExpr); ok && !seen[v.Name] {
			seen[v.Name] = true
			names = append(names, v.Name)
		}
	})
	return names
}

// ContainsVar reports whether e references name anywhere.
func ContainsVar(e Expr, name string) bool {
	found := false
	VisitExprs(e, func(sub Expr) {
		if v, ok := sub.(*VarExpr); ok && v.Name == name {
			found = true
		}
	})
	return found
}

// FirstVarName returns the first variable name reachable from e.
// Expressions with no contained variable are a reachable input, so the
// absent case is explicit rather than a crash.
func FirstVarName(e Expr) (string, bool) {
	names := VarNames(e)
	if len(names) == 0 {
		return "", false
	}
	return names[0], true
}

// ExprString renders an expression in source-like form.
func ExprString(e Expr) string {
	switch x := e.(type) {
	case nil:
		return ""
	case *IntLit:
		return fmt.Sprintf("%d", x.Value)
	case *RealLit:
		if x.Text != "" {
			return x.Text
		}
		return fmt.Sprintf("%g", x.Value)
	case *BoolLit:
		if x.Value {
			return ".true."
		}
		return ".false."
	case *VarExpr:
		if x.IsPlain() {
			return x.Name
		}
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = ExprString(a)
		}
		return x.Name + "(" + strings.Join(args, ",") + ")"
	case *UnaryExpr:
		if x.Op == UnaryNot {
			return ".not." + ExprString(x.Operand)
		}
		return "-" + ExprString(x.Operand)
	case *BinaryExpr:
		return "(" + ExprString(x.Left) + x.Op.String() + ExprString(x.Right) + ")"
	default:
		return "?"
	}
}

// ----------------------------------------------------------------------------
// Statements
// ----------------------------------------------------------------------------

// Stmt is a statement node.
type Stmt interface {
	isStmt()
	Position() Pos
}

// Block is a statement sequence.
type Block struct {
	Pos   Pos
	Stmts []Stmt
}

func (*Block) isStmt()         {}
func (s *Block) Position() Pos { return s.Pos }

// AssignStmt is an assignment. Targets usually holds a single variable;
// more than one target is an unsupported construct that classification
// diagnoses rather than guesses about.
type AssignStmt struct {
	Pos     Pos
	Targets []*VarExpr
	Rhs     Expr
}

func (*AssignStmt) isStmt()         {}
func (s *AssignStmt) Position() Pos { return s.Pos }

// Target returns the sole assignment target, or nil if there is not
// exactly one.
func (s *AssignStmt) Target() *VarExpr {
	if len(s.Targets) != 1 {
		return nil
	}
	return s.Targets[0]
}

// ForStmt is a counted do loop: do Var = Start, End[, Step].
type ForStmt struct {
	Pos     Pos
	Var     string
	Start   Expr
	End     Expr
	Step    Expr // nil means 1
	Body    *Block
	EndLine int // line of the closing "end do"
}

func (*ForStmt) isStmt()         {}
func (s *ForStmt) Position() Pos { return s.Pos }

// StepOrOne returns the loop step, defaulting to the literal 1.
func (s *ForStmt) StepOrOne() Expr {
	if s.Step != nil {
		return s.Step
	}
	return &IntLit{Value: 1}
}

// IfStmt is a conditional. Else is nil, another *IfStmt, or a *Block.
type IfStmt struct {
	Pos  Pos
	Cond Expr
	Body *Block
	Else Stmt
}

func (*IfStmt) isStmt()         {}
func (s *IfStmt) Position() Pos { return s.Pos }

// CallStmt is a subroutine call statement.
type CallStmt struct {
	Pos  Pos
	Name string
	Args []Expr
}

func (*CallStmt) isStmt()         {}
func (s *CallStmt) Position() Pos { return s.Pos }

// DeclEntry is one declared name with optional array dimensions.
type DeclEntry struct {
	Name string
	Dims []Expr
}

// DeclStmt introduces names: type declarations and dimension statements.
type DeclStmt struct {
	Pos     Pos
	Kind    string // "integer", "real", "logical", "dimension"
	Entries []DeclEntry
}

func (*DeclStmt) isStmt()         {}
func (s *DeclStmt) Position() Pos { return s.Pos }

// OpaqueStmt is a statement the parser did not recognize. It contributes
// no reads or writes to analysis.
type OpaqueStmt struct {
	Pos  Pos
	Text string
}

func (*OpaqueStmt) isStmt()         {}
func (s *OpaqueStmt) Position() Pos { return s.Pos }

// ----------------------------------------------------------------------------
// Kernel Regions
// ----------------------------------------------------------------------------

// LoopVar is one level of a kernel's iteration space.
type LoopVar struct {
	Name  string
	Start Expr
	End   Expr
	Step  Expr
}

// SameLoopVar compares two loop variables structurally, positions ignored.
func SameLoopVar(a, b LoopVar) bool {
	return a.Name == b.Name &&
		ExprEqual(a.Start, b.Start) &&
		ExprEqual(a.End, b.End) &&
		ExprEqual(a.Step, b.Step)
}

// MergeLoopVars unions two loop-variable lists by name, keeping order.
func MergeLoopVars(a, b []LoopVar) []LoopVar {
	out := make([]LoopVar, 0, len(a)+len(b))
	seen := make(map[string]bool, len(a)+len(b))
	for _, lv := range a {
		if !seen[lv.Name] {
			seen[lv.Name] = true
			out = append(out, lv)
		}
	}
	for _, lv := range b {
		if !seen[lv.Name] {
			seen[lv.Name] = true
			out = append(out, lv)
		}
	}
	return out
}

// MapKernel is a loop nest proven to be a data-parallel map.
type MapKernel struct {
	Pos         Pos
	Reads       []VarRef
	Writes      []VarRef
	LoopVars    []LoopVar
	Body        *Block
	EndLine     int
	Annotations []string
}

func (*MapKernel) isStmt()         {}
func (s *MapKernel) Position() Pos { return s.Pos }

// ReduceKernel is a loop nest proven to be an associative reduction.
type ReduceKernel struct {
	Pos           Pos
	Reads         []VarRef
	Writes        []VarRef
	LoopVars      []LoopVar
	ReductionVars []VarRef
	Body          *Block
	EndLine       int
	Annotations   []string
}

func (*ReduceKernel) isStmt()         {}
func (s *ReduceKernel) Position() Pos { return s.Pos }

// SeqLoop is a loop that must stay sequential, with the reasons why.
type SeqLoop struct {
	Pos         Pos
	Loop        *ForStmt
	Annotations []string
}

func (*SeqLoop) isStmt()         {}
func (s *SeqLoop) Position() Pos { return s.Pos }

// ----------------------------------------------------------------------------
// Program Units
// ----------------------------------------------------------------------------

// UnitKind identifies the kind of a program unit.
type UnitKind uint8

const (
	UnitProgram UnitKind = iota
	UnitSubroutine
)

func (k UnitKind) String() string {
	switch k {
	case UnitProgram:
		return "program"
	case UnitSubroutine:
		return "subroutine"
	default:
		return "unknown"
	}
}

// ProgramUnit is one program or subroutine.
type ProgramUnit struct {
	Pos     Pos
	Kind    UnitKind
	Name    string
	Params  []string
	Body    *Block
	EndLine int
}

// Program is a parsed source file.
type Program struct {
	SourcePath string
	Units      []*ProgramUnit
}

// ----------------------------------------------------------------------------
// Traversal
// ----------------------------------------------------------------------------

// WalkStmts visits s and every statement nested inside it, pre-order.
// If f returns false the statement's children are skipped.
func WalkStmts(s Stmt, f func(Stmt) bool) {
	if s == nil || !f(s) {
		return
	}
	switch x := s.(type) {
	case *Block:
		for _, inner := range x.Stmts {
			WalkStmts(inner, f)
		}
	case *ForStmt:
		WalkStmts(x.Body, f)
	case *IfStmt:
		WalkStmts(x.Body, f)
		WalkStmts(x.Else, f)
	case *MapKernel:
		WalkStmts(x.Body, f)
	case *ReduceKernel:
		WalkStmts(x.Body, f)
	case *SeqLoop:
		WalkStmts(x.Loop, f)
	}
}

// ImmediateExprs returns the expressions directly carried by a statement.
func ImmediateExprs(s Stmt) []Expr {
	switch x := s.(type) {
	case *AssignStmt:
		exprs := make([]Expr, 0, len(x.Targets)+1)
		for _, t := range x.Targets {
			exprs = append(exprs, t)
		}
		return append(exprs, x.Rhs)
	case *ForStmt:
		exprs := []Expr{x.Start, x.End}
		if x.Step != nil {
			exprs = append(exprs, x.Step)
		}
		return exprs
	case *IfStmt:
		return []Expr{x.Cond}
	case *CallStmt:
		return x.Args
	default:
		return nil
	}
}

// Annotations returns the annotation list carried by a region node, or nil.
func Annotations(s Stmt) []string {
	switch x := s.(type) {
	case *MapKernel:
		return x.Annotations
	case *ReduceKernel:
		return x.Annotations
	case *SeqLoop:
		return x.Annotations
	default:
		return nil
	}
}

// ListAnnotations concatenates every non-empty annotation in tree order,
// one per line.
func ListAnnotations(prog *Program) string {
	var sb strings.Builder
	for _, unit := range prog.Units {
		WalkStmts(unit.Body, func(s Stmt) bool {
			for _, a := range Annotations(s) {
				if a != "" {
					sb.WriteString(a)
					sb.WriteByte('\n')
				}
			}
			return true
		})
	}
	return sb.String()
}
