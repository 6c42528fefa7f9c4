// Package fusion merges neighboring parallel regions when it is provably
// safe. Two rewrite passes run over the classified tree: nested fusion
// collapses a kernel whose entire body is another kernel of the same
// kind, and adjacent fusion combines sequentially composed kernels whose
// iteration spaces match exactly or up to a constant bound offset.
package fusion

import (
	"fmt"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
)

// Program applies the nested pass then the adjacent pass to every unit.
func Program(prog *ast.Program) {
	for _, unit := range prog.Units {
		Unit(unit)
	}
}

// Unit fuses kernels throughout one program unit.
func Unit(unit *ast.ProgramUnit) {
	nestedBlock(unit.Body)
	adjacentBlock(unit.Body)
}

// ----------------------------------------------------------------------------
// Nested Fusion
// ----------------------------------------------------------------------------

// nestedBlock collapses kernel-in-kernel nests, innermost matches first.
func nestedBlock(block *ast.Block) {
	if block == nil {
		return
	}
	for i, s := range block.Stmts {
		block.Stmts[i] = nestedStmt(s)
	}
}

func nestedStmt(s ast.Stmt) ast.Stmt {
	switch x := s.(type) {
	case *ast.MapKernel:
		nestedBlock(x.Body)
		for {
			inner, ok := soleKernel[*ast.MapKernel](x.Body)
			if !ok {
				break
			}
			x.Reads = ast.MergeRefs(x.Reads, inner.Reads)
			x.Writes = ast.MergeRefs(x.Writes, inner.Writes)
			x.LoopVars = ast.MergeLoopVars(x.LoopVars, inner.LoopVars)
			x.Annotations = append(x.Annotations, inner.Annotations...)
			x.Annotations = append(x.Annotations,
				fmt.Sprintf("%s: fused nested map kernel from %s", x.Pos, inner.Pos))
			x.Body = inner.Body
		}
		return x

	case *ast.ReduceKernel:
		nestedBlock(x.Body)
		for {
			inner, ok := soleKernel[*ast.ReduceKernel](x.Body)
			if !ok {
				break
			}
			x.Reads = ast.MergeRefs(x.Reads, inner.Reads)
			x.Writes = ast.MergeRefs(x.Writes, inner.Writes)
			x.LoopVars = ast.MergeLoopVars(x.LoopVars, inner.LoopVars)
			x.ReductionVars = ast.MergeRefs(x.ReductionVars, inner.ReductionVars)
			x.Annotations = append(x.Annotations, inner.Annotations...)
			x.Annotations = append(x.Annotations,
				fmt.Sprintf("%s: fused nested reduction kernel from %s", x.Pos, inner.Pos))
			x.Body = inner.Body
		}
		return x

	case *ast.SeqLoop:
		nestedBlock(x.Loop.Body)
		return x
	case *ast.ForStmt:
		nestedBlock(x.Body)
		return x
	case *ast.IfStmt:
		nestedBlock(x.Body)
		if x.Else != nil {
			x.Else = nestedStmt(x.Else)
		}
		return x
	case *ast.Block:
		nestedBlock(x)
		return x
	default:
		return s
	}
}

// soleKernel returns the body's only statement when it is a kernel of
// kind K.
func soleKernel[K ast.Stmt](body *ast.Block) (K, bool) {
	var zero K
	if body == nil || len(body.Stmts) != 1 {
		return zero, false
	}
	k, ok := body.Stmts[0].(K)
	return k, ok
}

// ----------------------------------------------------------------------------
// Adjacent Fusion
// ----------------------------------------------------------------------------

// adjacentBlock fuses sequentially composed same-kind kernels in every
// block, repeating until no pair combines.
func adjacentBlock(block *ast.Block) {
	if block == nil {
		return
	}
	for _, s := range block.Stmts {
		switch x := s.(type) {
		case *ast.MapKernel:
			adjacentBlock(x.Body)
		case *ast.ReduceKernel:
			adjacentBlock(x.Body)
		case *ast.SeqLoop:
			adjacentBlock(x.Loop.Body)
		case *ast.ForStmt:
			adjacentBlock(x.Body)
		case *ast.IfStmt:
			adjacentBlock(x.Body)
			if inner, ok := x.Else.(*ast.Block); ok {
				adjacentBlock(inner)
			}
		case *ast.Block:
			adjacentBlock(x)
		}
	}

	for {
		fusedAny := false
		for i := 0; i+1 < len(block.Stmts); i++ {
			fused, ok := fusePair(block.Stmts[i], block.Stmts[i+1])
			if !ok {
				continue
			}
			block.Stmts[i] = fused
			block.Stmts = append(block.Stmts[:i+1], block.Stmts[i+2:]...)
			fusedAny = true
			break
		}
		if !fusedAny {
			return
		}
	}
}

// fusePair combines two adjacent statements when both are kernels of the
// same kind with combinable iteration spaces.
func fusePair(first, second ast.Stmt) (ast.Stmt, bool) {
	switch a := first.(type) {
	case *ast.MapKernel:
		b, ok := second.(*ast.MapKernel)
		if !ok {
			return nil, false
		}
		comb, ok := combineLoopVars(a.LoopVars, b.LoopVars)
		if !ok {
			return nil, false
		}
		return &ast.MapKernel{
			Pos:         a.Pos,
			Reads:       ast.MergeRefs(a.Reads, b.Reads),
			Writes:      ast.MergeRefs(a.Writes, b.Writes),
			LoopVars:    comb.loopVars,
			Body:        fusedBody(a.Body, b.Body, comb),
			EndLine:     b.EndLine,
			Annotations: fusionAnnotations(a.Pos, b.Pos, a.Annotations, b.Annotations, comb, "map"),
		}, true

	case *ast.ReduceKernel:
		b, ok := second.(*ast.ReduceKernel)
		if !ok {
			return nil, false
		}
		comb, ok := combineLoopVars(a.LoopVars, b.LoopVars)
		if !ok {
			return nil, false
		}
		return &ast.ReduceKernel{
			Pos:           a.Pos,
			Reads:         ast.MergeRefs(a.Reads, b.Reads),
			Writes:        ast.MergeRefs(a.Writes, b.Writes),
			LoopVars:      comb.loopVars,
			ReductionVars: ast.MergeRefs(a.ReductionVars, b.ReductionVars),
			Body:          fusedBody(a.Body, b.Body, comb),
			EndLine:       b.EndLine,
			Annotations:   fusionAnnotations(a.Pos, b.Pos, a.Annotations, b.Annotations, comb, "reduction"),
		}, true
	}
	return nil, false
}

// combination is the result of reconciling two kernels' loop variables.
// Guards accumulate per kernel when one ran a wider range at some level.
type combination struct {
	loopVars     []ast.LoopVar
	guardsFirst  []ast.Expr
	guardsSecond []ast.Expr
	narrowed     []string // iterators whose bound came from the other kernel
}

// combineLoopVars reconciles loop-variable lists pairwise, outermost to
// innermost. Iterator name, start and step must match at every level;
// ends must match structurally or differ by a literal constant offset,
// in which case the smaller end wins and the wider kernel's body is
// guarded. Any other mismatch fails the whole combination.
func combineLoopVars(a, b []ast.LoopVar) (combination, bool) {
	var comb combination
	if len(a) != len(b) {
		return comb, false
	}
	for i := range a {
		la, lb := a[i], b[i]
		if la.Name != lb.Name ||
			!ast.ExprEqual(la.Start, lb.Start) ||
			!ast.ExprEqual(la.Step, lb.Step) {
			return comb, false
		}
		if ast.ExprEqual(la.End, lb.End) {
			comb.loopVars = append(comb.loopVars, la)
			continue
		}
		switch {
		case endOffsetAbove(la.End, lb.End):
			// First kernel runs wider; the second's end is authoritative.
			comb.loopVars = append(comb.loopVars, lb)
			comb.guardsFirst = append(comb.guardsFirst, boundGuard(la.Name, lb.End))
			comb.narrowed = append(comb.narrowed, la.Name)
		case endOffsetAbove(lb.End, la.End):
			comb.loopVars = append(comb.loopVars, la)
			comb.guardsSecond = append(comb.guardsSecond, boundGuard(la.Name, la.End))
			comb.narrowed = append(comb.narrowed, la.Name)
		default:
			return comb, false
		}
	}
	return comb, true
}

// endOffsetAbove reports whether wide is provably narrow plus a positive
// literal constant: wide = narrow + k written as a literal addition, or
// narrow = wide - k written as a literal subtraction.
func endOffsetAbove(wide, narrow ast.Expr) bool {
	if bin, ok := wide.(*ast.BinaryExpr); ok && bin.Op == ast.OpAdd {
		if lit, ok := bin.Right.(*ast.IntLit); ok && lit.Value > 0 && ast.ExprEqual(bin.Left, narrow) {
			return true
		}
		if lit, ok := bin.Left.(*ast.IntLit); ok && lit.Value > 0 && ast.ExprEqual(bin.Right, narrow) {
			return true
		}
	}
	if bin, ok := narrow.(*ast.BinaryExpr); ok && bin.Op == ast.OpSub {
		if lit, ok := bin.Right.(*ast.IntLit); ok && lit.Value > 0 && ast.ExprEqual(bin.Left, wide) {
			return true
		}
	}
	return false
}

// boundGuard builds the predicate skipping a kernel's surplus iterations.
func boundGuard(iter string, end ast.Expr) ast.Expr {
	return &ast.BinaryExpr{
		Op:    ast.OpLt,
		Left:  &ast.VarExpr{Name: iter},
		Right: end,
	}
}

// fusedBody concatenates the kernels' bodies, second first, each wrapped
// in its accumulated guard when it ran a wider range at some level.
func fusedBody(first, second *ast.Block, comb combination) *ast.Block {
	out := &ast.Block{Pos: first.Pos}
	out.Stmts = append(out.Stmts, guardedStmts(second, comb.guardsSecond)...)
	out.Stmts = append(out.Stmts, guardedStmts(first, comb.guardsFirst)...)
	return out
}

func guardedStmts(body *ast.Block, guards []ast.Expr) []ast.Stmt {
	if len(guards) == 0 {
		return body.Stmts
	}
	cond := guards[0]
	for _, g := range guards[1:] {
		cond = &ast.BinaryExpr{Op: ast.OpAnd, Left: cond, Right: g}
	}
	return []ast.Stmt{&ast.IfStmt{Pos: body.Pos, Cond: cond, Body: body}}
}

func fusionAnnotations(posA, posB ast.Pos, annA, annB []string, comb combination, kind string) []string {
	out := append(append([]string(nil), annA...), annB...)
	msg := fmt.Sprintf("%s: fused adjacent %s kernel from %s", posA, kind, posB)
	for _, iter := range comb.narrowed {
		msg += fmt.Sprintf("; bound of %s narrowed to the smaller range", iter)
	}
	return append(out, msg)
}
