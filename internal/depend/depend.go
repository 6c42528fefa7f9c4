// Package depend performs variable dependency analysis over a subtree.
//
// Every assignment contributes edges from the assigned variable to each
// variable-bearing access expression on its right side. Queries cover
// direct dependencies, their transitive closure, and loop-carried
// dependency detection over an enumerated iteration space.
package depend

import (
	"strconv"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/iterspace"
)

// Map records, per assigned variable, the ordered set of expressions it
// was computed from. Entries accumulate across assignments and are never
// overwritten; a variable may depend on itself.
type Map struct {
	deps   map[string][]ast.Expr
	isCall func(*ast.VarExpr) bool
}

// Analyze scans every assignment in subtree and builds its dependency map.
// isCall, when non-nil, marks parenthesised accesses that are function
// calls; a call's arguments are dependees but the call target is not.
func Analyze(subtree ast.Stmt, isCall func(*ast.VarExpr) bool) *Map {
	m := &Map{deps: make(map[string][]ast.Expr), isCall: isCall}
	ast.WalkStmts(subtree, func(s ast.Stmt) bool {
		if assign, ok := s.(*ast.AssignStmt); ok {
			for _, target := range assign.Targets {
				m.add(target.Name, assign.Rhs)
			}
		}
		return true
	})
	return m
}

// add appends every variable access in rhs as a dependee of name.
func (m *Map) add(name string, rhs ast.Expr) {
	ast.VisitExprs(rhs, func(e ast.Expr) {
		v, ok := e.(*ast.VarExpr)
		if !ok || (m.isCall != nil && m.isCall(v)) {
			return
		}
		for _, existing := range m.deps[name] {
			if ast.ExprEqual(existing, v) {
				return
			}
		}
		m.deps[name] = append(m.deps[name], v)
	})
}

// ----------------------------------------------------------------------------
// Queries
// ----------------------------------------------------------------------------

// Direct returns the direct dependees of name, defaulting to empty.
func (m *Map) Direct(name string) []ast.Expr {
	return m.deps[name]
}

// Indirect returns the transitive closure of name's dependencies. The
// closure follows each dependee expression's first named variable and
// tracks processed names, so cyclic dependency graphs terminate.
func (m *Map) Indirect(name string) []ast.Expr {
	var out []ast.Expr
	processed := map[string]bool{name: true}
	pending := []string{name}

	for len(pending) > 0 {
		current := pending[0]
		pending = pending[1:]
		for _, dep := range m.deps[current] {
			duplicate := false
			for _, existing := range out {
				if ast.ExprEqual(existing, dep) {
					duplicate = true
					break
				}
			}
			if !duplicate {
				out = append(out, dep)
			}
			next, ok := ast.FirstVarName(dep)
			if ok && !processed[next] {
				processed[next] = true
				pending = append(pending, next)
			}
		}
	}
	return out
}

// IsDirectlyDependentOn reports whether name directly depends on dep.
func (m *Map) IsDirectlyDependentOn(name, dep string) bool {
	for _, e := range m.deps[name] {
		if v, ok := e.(*ast.VarExpr); ok && v.Name == dep {
			return true
		}
	}
	return false
}

// IsIndirectlyDependentOn reports whether name transitively depends on dep.
func (m *Map) IsIndirectlyDependentOn(name, dep string) bool {
	for _, e := range m.Indirect(name) {
		if v, ok := e.(*ast.VarExpr); ok && v.Name == dep {
			return true
		}
	}
	return false
}

// SelfDependencies returns the dependee expressions in name's closure
// that reference name itself.
func (m *Map) SelfDependencies(name string) []ast.Expr {
	var out []ast.Expr
	for _, e := range m.Indirect(name) {
		if ast.ContainsVar(e, name) {
			out = append(out, e)
		}
	}
	return out
}

// DependsOnSelfOnce reports whether name has exactly one self-dependency
// edge.
func (m *Map) DependsOnSelfOnce(name string) bool {
	return len(m.SelfDependencies(name)) == 1
}

// DependsOnSelfAmbiguously reports whether name has more than one
// self-dependency edge, an ambiguous reduction shape. A conditionally
// updated accumulator may legitimately have none.
func (m *Map) DependsOnSelfAmbiguously(name string) bool {
	return len(m.SelfDependencies(name)) > 1
}

// ----------------------------------------------------------------------------
// Loop-Carried Dependencies
// ----------------------------------------------------------------------------

// IteratorUsage returns the subset of loop iterators appearing as a
// whole index argument of access: p(j,k-1) uses {j}, p(j,k) uses {j,k}.
func IteratorUsage(access *ast.VarExpr, loopVars []ast.LoopVar) map[string]bool {
	usage := make(map[string]bool)
	for _, arg := range access.Args {
		v, ok := arg.(*ast.VarExpr)
		if !ok || !v.IsPlain() {
			continue
		}
		for _, lv := range loopVars {
			if lv.Name == v.Name {
				usage[v.Name] = true
			}
		}
	}
	return usage
}

func sameUsage(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// LoopCarried returns the self-dependencies of the written access whose
// iterator-usage pattern differs from the write's: the variable is
// written under one pattern and (transitively) read under another within
// the same nest, so one iteration's result feeds another's.
//
// When the nest's iteration table can be enumerated it is used to
// confirm that a differing access actually lands on a cell owned by a
// different reachable iteration tuple; an unevaluable (empty) table
// leaves only the usage comparison, with no additional proof either way.
func (m *Map) LoopCarried(loopVars []ast.LoopVar, write *ast.VarExpr) []ast.Expr {
	writeUsage := IteratorUsage(write, loopVars)

	var carried []ast.Expr
	table := iterspace.Build(loopVars)
	for _, dep := range m.SelfDependencies(write.Name) {
		v, ok := dep.(*ast.VarExpr)
		if !ok || ast.ExprEqual(v, write) {
			continue
		}
		if sameUsage(IteratorUsage(v, loopVars), writeUsage) {
			continue
		}
		if table.Empty() || m.confirmOverlap(table, loopVars, write, v) {
			carried = append(carried, dep)
		}
	}
	return carried
}

// confirmOverlap checks whether, for some reachable iteration tuple, the
// read access resolves to a cell that a different iteration writes.
// Symbolic indices that do not fold keep the conservative answer.
func (m *Map) confirmOverlap(table iterspace.Table, loopVars []ast.LoopVar, write, read *ast.VarExpr) bool {
	if len(read.Args) != len(write.Args) {
		return true
	}

	type cell struct {
		write []int64
		read  []int64
	}
	var cells []cell
	written := make(map[string]bool)

	for _, tuple := range table.Tuples() {
		if len(tuple) != len(loopVars) {
			continue
		}
		env := make(iterspace.Env, len(loopVars))
		for i, lv := range loopVars {
			env[lv.Name] = tuple[i]
		}

		writeCell, ok := evalIndices(write.Args, env)
		if !ok {
			return true
		}
		readCell, ok := evalIndices(read.Args, env)
		if !ok {
			return true
		}
		written[cellKey(writeCell)] = true
		cells = append(cells, cell{write: writeCell, read: readCell})
	}

	// The read carries a dependency only when it lands on a cell that
	// some other iteration of this nest writes.
	for _, c := range cells {
		if !sameCell(c.write, c.read) && written[cellKey(c.read)] {
			return true
		}
	}
	return false
}

func cellKey(cell []int64) string {
	var b []byte
	for _, v := range cell {
		b = strconv.AppendInt(b, v, 10)
		b = append(b, ',')
	}
	return string(b)
}

func evalIndices(args []ast.Expr, env iterspace.Env) ([]int64, bool) {
	out := make([]int64, len(args))
	for i, arg := range args {
		v, ok := iterspace.Eval(arg, env)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func sameCell(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
