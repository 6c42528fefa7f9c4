// Package access performs variable access analysis over one program unit.
//
// A single pass records, per variable, the ordered source positions of
// every read and write, the subroutine argument set, the declared-name
// set (used to tell array subscripting apart from calls to undeclared
// functions), and the last expression assigned to each variable.
//
// None of the queries fail: absent data is an empty record.
package access

import "github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"

// Record holds the ordered read and write positions of one variable.
// Positions are ordered by line, then column, and only ever appended.
type Record struct {
	Reads  []ast.Pos
	Writes []ast.Pos
}

// Analysis is the result of analyzing a program unit.
type Analysis struct {
	// Records maps variable names to their access record.
	Records map[string]*Record

	// Arguments is the set of subroutine formal parameter names. Writes
	// to arguments are observable by the caller, so arguments are never
	// temporary.
	Arguments map[string]bool

	// Declarations is the set of names introduced by declaration
	// statements. A reference with arguments whose name is not declared
	// is presumed to be a function call.
	Declarations map[string]bool

	// LastValues maps each assigned variable to the expression it was
	// most recently computed from.
	LastValues map[string]ast.Expr
}

// Analyze traverses a program unit once and returns its access analysis.
func Analyze(unit *ast.ProgramUnit) *Analysis {
	a := &Analysis{
		Records:      make(map[string]*Record),
		Arguments:    make(map[string]bool),
		Declarations: make(map[string]bool),
		LastValues:   make(map[string]ast.Expr),
	}
	if unit == nil {
		return a
	}

	for _, param := range unit.Params {
		a.Arguments[param] = true
	}

	// Declarations must be known before accesses are classified, since
	// read recording needs the call/subscript disambiguation.
	ast.WalkStmts(unit.Body, func(s ast.Stmt) bool {
		if decl, ok := s.(*ast.DeclStmt); ok {
			for _, entry := range decl.Entries {
				a.Declarations[entry.Name] = true
			}
		}
		return true
	})

	ast.WalkStmts(unit.Body, func(s ast.Stmt) bool {
		a.recordStmt(s)
		return true
	})

	return a
}

func (a *Analysis) record(name string) *Record {
	rec := a.Records[name]
	if rec == nil {
		rec = &Record{}
		a.Records[name] = rec
	}
	return rec
}

func (a *Analysis) recordStmt(s ast.Stmt) {
	switch x := s.(type) {
	case *ast.AssignStmt:
		for _, target := range x.Targets {
			a.record(target.Name).Writes = append(a.record(target.Name).Writes, target.Pos)
			a.LastValues[target.Name] = x.Rhs
		}
		a.recordReads(x.Rhs)

	case *ast.DeclStmt, *ast.OpaqueStmt:
		// Declarations introduce names without accessing them; opaque
		// statements contribute nothing.

	default:
		for _, e := range ast.ImmediateExprs(s) {
			a.recordReads(e)
		}
	}
}

// recordReads records a read for every variable reachable from e. When a
// reference classifies as a function call, the reads come from the call's
// argument expressions, not the call target itself.
func (a *Analysis) recordReads(e ast.Expr) {
	switch x := e.(type) {
	case *ast.VarExpr:
		if a.IsFunctionCall(x) {
			for _, arg := range x.Args {
				a.recordReads(arg)
			}
			return
		}
		rec := a.record(x.Name)
		rec.Reads = append(rec.Reads, x.Pos)
		for _, arg := range x.Args {
			a.recordReads(arg)
		}

	case *ast.UnaryExpr:
		a.recordReads(x.Operand)

	case *ast.BinaryExpr:
		a.recordReads(x.Left)
		a.recordReads(x.Right)
	}
}

// ----------------------------------------------------------------------------
// Queries
// ----------------------------------------------------------------------------

// IsFunctionCall reports whether v is a call to an undeclared (presumed
// intrinsic or external) function: its name is not a declared variable
// and it carries a non-empty argument list.
func (a *Analysis) IsFunctionCall(v *ast.VarExpr) bool {
	return len(v.Args) > 0 && !a.Declarations[v.Name]
}

// IsNonTemporary reports whether the value name holds at endLine is
// observable at or after that line: name is a subroutine argument, or it
// is read at or after endLine with the earliest such read not preceded
// by a shadowing write.
func (a *Analysis) IsNonTemporary(endLine int, name string) bool {
	if a.Arguments[name] {
		return true
	}
	rec := a.Records[name]
	if rec == nil {
		return false
	}

	earliestRead, hasRead := earliestAtOrAfter(rec.Reads, endLine)
	if !hasRead {
		return false
	}
	earliestWrite, hasWrite := earliestAtOrAfter(rec.Writes, endLine)
	if !hasWrite {
		return true
	}
	// A write strictly before the earliest surviving read does not
	// shadow it.
	return earliestRead.Line <= earliestWrite.Line
}

func earliestAtOrAfter(positions []ast.Pos, line int) (ast.Pos, bool) {
	var best ast.Pos
	found := false
	for _, pos := range positions {
		if pos.Line < line {
			continue
		}
		if !found || pos.Before(best) {
			best = pos
			found = true
		}
	}
	return best, found
}

// ReadVars returns the variables read by e, in source order, applying
// the call/subscript disambiguation rule.
func (a *Analysis) ReadVars(e ast.Expr) []ast.VarRef {
	var refs []ast.VarRef
	a.collectReads(e, &refs)
	return refs
}

func (a *Analysis) collectReads(e ast.Expr, refs *[]ast.VarRef) {
	switch x := e.(type) {
	case *ast.VarExpr:
		if !a.IsFunctionCall(x) {
			*refs = append(*refs, x.Ref())
		}
		for _, arg := range x.Args {
			a.collectReads(arg, refs)
		}
	case *ast.UnaryExpr:
		a.collectReads(x.Operand, refs)
	case *ast.BinaryExpr:
		a.collectReads(x.Left, refs)
		a.collectReads(x.Right, refs)
	}
}

// StmtReads returns every variable read anywhere inside s, deduplicated
// by name in first-seen order.
func (a *Analysis) StmtReads(s ast.Stmt) []ast.VarRef {
	var refs []ast.VarRef
	ast.WalkStmts(s, func(inner ast.Stmt) bool {
		switch x := inner.(type) {
		case *ast.AssignStmt:
			refs = append(refs, a.ReadVars(x.Rhs)...)
		case *ast.DeclStmt, *ast.OpaqueStmt:
		default:
			for _, e := range ast.ImmediateExprs(inner) {
				refs = append(refs, a.ReadVars(e)...)
			}
		}
		return true
	})
	return ast.MergeRefs(nil, refs)
}

// StmtWrites returns every variable written anywhere inside s,
// deduplicated by name in first-seen order.
func (a *Analysis) StmtWrites(s ast.Stmt) []ast.VarRef {
	var refs []ast.VarRef
	ast.WalkStmts(s, func(inner ast.Stmt) bool {
		if assign, ok := inner.(*ast.AssignStmt); ok {
			for _, target := range assign.Targets {
				refs = append(refs, target.Ref())
			}
		}
		return true
	})
	return ast.MergeRefs(nil, refs)
}
