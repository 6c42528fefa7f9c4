// Package classify decides, loop nest by loop nest, whether a counted
// loop can be re-expressed as a data-parallel map, as an associative
// reduction, or must stay sequential.
//
// Attempts run in order, first success wins: map, then reduce, then
// sequential with the accumulated diagnostics attached. Inner loops are
// always classified before any enclosing loop, so an outer attempt sees
// already-rewritten kernel nodes in its body.
package classify

import (
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/access"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/depend"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/diagnostic"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/intrinsics"
)

// Unit rewrites every loop in unit's body into a MapKernel, ReduceKernel
// or SeqLoop node, in place. The access analysis must have been computed
// for this unit and is only read.
func Unit(unit *ast.ProgramUnit, acc *access.Analysis) {
	c := &classifier{acc: acc}
	c.rewriteBlock(unit.Body, nil)
}

type classifier struct {
	acc *access.Analysis
}

// rewriteBlock replaces loop statements with their classified regions.
// outer carries the loop variables of every enclosing loop.
func (c *classifier) rewriteBlock(block *ast.Block, outer []ast.LoopVar) {
	if block == nil {
		return
	}
	for i, s := range block.Stmts {
		switch x := s.(type) {
		case *ast.ForStmt:
			block.Stmts[i] = c.classifyLoop(x, outer)
		case *ast.IfStmt:
			c.rewriteIf(x, outer)
		case *ast.Block:
			c.rewriteBlock(x, outer)
		}
	}
}

func (c *classifier) rewriteIf(s *ast.IfStmt, outer []ast.LoopVar) {
	c.rewriteBlock(s.Body, outer)
	switch e := s.Else.(type) {
	case *ast.IfStmt:
		c.rewriteIf(e, outer)
	case *ast.Block:
		c.rewriteBlock(e, outer)
	}
}

// classifyLoop classifies one loop after classifying everything nested
// inside it.
func (c *classifier) classifyLoop(f *ast.ForStmt, outer []ast.LoopVar) ast.Stmt {
	own := ast.LoopVar{Name: f.Var, Start: f.Start, End: f.End, Step: f.StepOrOne()}
	enclosing := append(append([]ast.LoopVar(nil), outer...), own)
	c.rewriteBlock(f.Body, enclosing)

	// The nest's loop variables are this loop's plus those of every
	// loop or kernel inside its body, outermost first.
	nest := ast.MergeLoopVars([]ast.LoopVar{own}, collectLoopVars(f.Body))
	full := ast.MergeLoopVars(outer, nest)
	iterNames := loopVarNames(full)

	var diags diagnostic.List

	if pos, unsupported := findMultiTarget(f.Body); unsupported {
		diags.Add(pos, "multi-target assignment is not supported for parallelisation")
		return &ast.SeqLoop{Pos: f.Pos, Loop: f, Annotations: diags.Strings()}
	}

	deps := depend.Analyze(f, c.acc.IsFunctionCall)
	if c.carriedDependencies(f, deps, full, &diags) {
		return &ast.SeqLoop{Pos: f.Pos, Loop: f, Annotations: diags.Strings()}
	}

	var mapDiags diagnostic.List
	if c.mapAttempt(f, iterNames, &mapDiags) {
		return &ast.MapKernel{
			Pos:      f.Pos,
			Reads:    c.regionReads(f, iterNames),
			Writes:   c.regionWrites(f, iterNames),
			LoopVars: nest,
			Body:     f.Body,
			EndLine:  f.EndLine,
		}
	}
	diags.Append(&mapDiags)

	var reduceDiags diagnostic.List
	reductionVars := c.reduceAttempt(f, iterNames, deps, &reduceDiags)
	if reduceDiags.Empty() && len(reductionVars) > 0 {
		// Map diagnostics legitimately coexist with a successful
		// reduction and stay attached for reporting.
		return &ast.ReduceKernel{
			Pos:           f.Pos,
			Reads:         c.regionReads(f, iterNames),
			Writes:        c.regionWrites(f, iterNames),
			LoopVars:      nest,
			ReductionVars: reductionVars,
			Body:          f.Body,
			EndLine:       f.EndLine,
			Annotations:   mapDiags.Strings(),
		}
	}
	diags.Append(&reduceDiags)

	return &ast.SeqLoop{Pos: f.Pos, Loop: f, Annotations: diags.Strings()}
}

// ----------------------------------------------------------------------------
// Loop-Carried Dependencies
// ----------------------------------------------------------------------------

// carriedDependencies reports every indexed write in the nest whose value
// is read back, transitively, at a different iterator-usage pattern.
func (c *classifier) carriedDependencies(f *ast.ForStmt, deps *depend.Map, loopVars []ast.LoopVar, diags *diagnostic.List) bool {
	found := false
	ast.WalkStmts(f.Body, func(s ast.Stmt) bool {
		assign, ok := s.(*ast.AssignStmt)
		if !ok {
			return true
		}
		for _, target := range assign.Targets {
			if target.IsPlain() {
				continue
			}
			for _, carried := range deps.LoopCarried(loopVars, target) {
				diags.Add(target.Pos, "%q has a loop-carried dependency through %s",
					target.Name, ast.ExprString(carried))
				found = true
			}
		}
		return true
	})
	return found
}

// ----------------------------------------------------------------------------
// Map Attempt
// ----------------------------------------------------------------------------

// mapAttempt checks that every non-temporary variable written in the nest
// is indexed by the full set of accumulated loop iterators.
func (c *classifier) mapAttempt(f *ast.ForStmt, iterNames []string, diags *diagnostic.List) bool {
	ast.WalkStmts(f.Body, func(s ast.Stmt) bool {
		assign, ok := s.(*ast.AssignStmt)
		if !ok {
			return true
		}
		for _, target := range assign.Targets {
			if !c.acc.IsNonTemporary(f.EndLine, target.Name) {
				continue
			}
			if !usesAllIterators(target, iterNames) {
				diags.Add(target.Pos, "%q accessed without use of full loop variable", target.Name)
			}
		}
		return true
	})
	return diags.Empty()
}

// usesAllIterators reports whether every iterator name appears somewhere
// in the access's index expressions.
func usesAllIterators(access *ast.VarExpr, iterNames []string) bool {
	for _, name := range iterNames {
		found := false
		for _, arg := range access.Args {
			if ast.ContainsVar(arg, name) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ----------------------------------------------------------------------------
// Reduce Attempt
// ----------------------------------------------------------------------------

// reduceAttempt checks that every non-temporary assignment in the nest is
// a valid under-indexed accumulator combined by an associative operation.
// Guard conditions accumulate while descending through if statements, so
// conditionally updated accumulators (the min/max idiom) qualify.
func (c *classifier) reduceAttempt(f *ast.ForStmt, iterNames []string, deps *depend.Map, diags *diagnostic.List) []ast.VarRef {
	var reductionVars []ast.VarRef
	c.walkGuarded(f.Body, nil, func(assign *ast.AssignStmt, conds []ast.Expr) {
		target := assign.Target()
		if target == nil || !c.acc.IsNonTemporary(f.EndLine, target.Name) {
			return
		}
		if !target.IsPlain() && usesAllIterators(target, iterNames) {
			diags.Add(target.Pos, "%q is indexed by the full set of loop iterators and cannot be a reduction variable", target.Name)
			return
		}

		potential := ast.ContainsVar(assign.Rhs, target.Name) ||
			appearsInConds(target.Name, conds) ||
			deps.IsIndirectlyDependentOn(target.Name, target.Name)
		if !potential {
			diags.Add(target.Pos, "%q is not assigned a value related to itself and does not appear in a preceding conditional", target.Name)
			return
		}
		if deps.DependsOnSelfAmbiguously(target.Name) {
			diags.Add(target.Pos, "%q is related to itself more than once", target.Name)
			return
		}
		if offender, ok := c.associativeCombination(assign.Rhs, target.Name, conds); !ok {
			diags.Add(target.Pos, "%q is not an associative function", offender)
			return
		}

		if !ast.ContainsRef(reductionVars, target.Name) {
			reductionVars = append(reductionVars, target.Ref())
		}
	})
	return reductionVars
}

// walkGuarded visits every assignment under s, accumulating the enclosing
// if conditions for each visit's subtree only.
func (c *classifier) walkGuarded(s ast.Stmt, conds []ast.Expr, visit func(*ast.AssignStmt, []ast.Expr)) {
	switch x := s.(type) {
	case nil:
	case *ast.Block:
		for _, inner := range x.Stmts {
			c.walkGuarded(inner, conds, visit)
		}
	case *ast.IfStmt:
		guarded := append(append([]ast.Expr(nil), conds...), x.Cond)
		c.walkGuarded(x.Body, guarded, visit)
		c.walkGuarded(x.Else, guarded, visit)
	case *ast.ForStmt:
		c.walkGuarded(x.Body, conds, visit)
	case *ast.MapKernel:
		c.walkGuarded(x.Body, conds, visit)
	case *ast.ReduceKernel:
		c.walkGuarded(x.Body, conds, visit)
	case *ast.SeqLoop:
		c.walkGuarded(x.Loop, conds, visit)
	case *ast.AssignStmt:
		visit(x, conds)
	}
}

func appearsInConds(name string, conds []ast.Expr) bool {
	for _, cond := range conds {
		if ast.ContainsVar(cond, name) {
			return true
		}
	}
	return false
}

// associativeCombination checks the combining expression for accumulator
// name. Every operator on a path to an occurrence of the accumulator must
// be associative. When the accumulator never occurs in rhs the update must
// be combined by a whitelisted function, or justified by a guard condition
// naming the accumulator. Returns the offending operation on failure.
func (c *classifier) associativeCombination(rhs ast.Expr, name string, conds []ast.Expr) (string, bool) {
	if !ast.ContainsVar(rhs, name) {
		if intrinsics.ContainsAssociativeCall(rhs) || appearsInConds(name, conds) {
			return "", true
		}
		return ast.ExprString(rhs), false
	}
	return c.combinationOps(rhs, name)
}

func (c *classifier) combinationOps(e ast.Expr, name string) (string, bool) {
	switch x := e.(type) {
	case *ast.BinaryExpr:
		leftHas := ast.ContainsVar(x.Left, name)
		rightHas := ast.ContainsVar(x.Right, name)
		if !leftHas && !rightHas {
			return "", true
		}
		if !intrinsics.IsAssociativeOp(x.Op) {
			return x.Op.String(), false
		}
		if leftHas {
			if offender, ok := c.combinationOps(x.Left, name); !ok {
				return offender, false
			}
		}
		if rightHas {
			if offender, ok := c.combinationOps(x.Right, name); !ok {
				return offender, false
			}
		}
		return "", true

	case *ast.UnaryExpr:
		if ast.ContainsVar(x.Operand, name) {
			return x.Op.String(), false
		}
		return "", true

	case *ast.VarExpr:
		if x.IsPlain() || !c.acc.IsFunctionCall(x) {
			// A plain occurrence or an array access indexed by the
			// accumulator combines nothing by itself.
			return "", true
		}
		if intrinsics.IsAssociativeFunction(x.Name) {
			return "", true
		}
		return x.Name, false

	default:
		return "", true
	}
}

// ----------------------------------------------------------------------------
// Region Construction
// ----------------------------------------------------------------------------

// regionReads returns the variables the nest reads, iterators excluded.
func (c *classifier) regionReads(f *ast.ForStmt, iterNames []string) []ast.VarRef {
	return excludeNames(c.acc.StmtReads(f.Body), iterNames)
}

// regionWrites returns the variables the nest writes, iterators excluded.
func (c *classifier) regionWrites(f *ast.ForStmt, iterNames []string) []ast.VarRef {
	return excludeNames(c.acc.StmtWrites(f.Body), iterNames)
}

func excludeNames(refs []ast.VarRef, names []string) []ast.VarRef {
	out := refs[:0:0]
	for _, ref := range refs {
		excluded := false
		for _, name := range names {
			if ref.Name == name {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, ref)
		}
	}
	return out
}

// collectLoopVars gathers the loop variables of every loop and kernel
// node inside body.
func collectLoopVars(body *ast.Block) []ast.LoopVar {
	var out []ast.LoopVar
	ast.WalkStmts(body, func(s ast.Stmt) bool {
		switch x := s.(type) {
		case *ast.ForStmt:
			out = ast.MergeLoopVars(out, []ast.LoopVar{{Name: x.Var, Start: x.Start, End: x.End, Step: x.StepOrOne()}})
		case *ast.MapKernel:
			out = ast.MergeLoopVars(out, x.LoopVars)
		case *ast.ReduceKernel:
			out = ast.MergeLoopVars(out, x.LoopVars)
		}
		return true
	})
	return out
}

func loopVarNames(loopVars []ast.LoopVar) []string {
	names := make([]string, len(loopVars))
	for i, lv := range loopVars {
		names[i] = lv.Name
	}
	return names
}

// findMultiTarget reports the first assignment with more than one target.
func findMultiTarget(body *ast.Block) (ast.Pos, bool) {
	var pos ast.Pos
	found := false
	ast.WalkStmts(body, func(s ast.Stmt) bool {
		if found {
			return false
		}
		if assign, ok := s.(*ast.AssignStmt); ok && len(assign.Targets) > 1 {
			pos = assign.Pos
			found = true
			return false
		}
		return true
	})
	return pos, found
}
