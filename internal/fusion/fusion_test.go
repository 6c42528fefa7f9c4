package fusion

import (
	"strings"
	"testing"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
)

func intLit(v int64) *ast.IntLit { return &ast.IntLit{Value: v} }

func loopVar(name string, start, end int64) ast.LoopVar {
	return ast.LoopVar{Name: name, Start: intLit(start), End: intLit(end), Step: intLit(1)}
}

func assign(target string, index, rhs ast.Expr) *ast.AssignStmt {
	return &ast.AssignStmt{
		Targets: []*ast.VarExpr{{Name: target, Args: []ast.Expr{index}}},
		Rhs:     rhs,
	}
}

func mapKernel(line int, writes []string, loopVars []ast.LoopVar, body ...ast.Stmt) *ast.MapKernel {
	refs := make([]ast.VarRef, len(writes))
	for i, w := range writes {
		refs[i] = ast.VarRef{Name: w}
	}
	return &ast.MapKernel{
		Pos:      ast.Pos{Line: line, Col: 1},
		Writes:   refs,
		LoopVars: loopVars,
		Body:     &ast.Block{Stmts: body},
		EndLine:  line + len(body) + 1,
	}
}

func hasAnnotation(annotations []string, substr string) bool {
	for _, a := range annotations {
		if strings.Contains(a, substr) {
			return true
		}
	}
	return false
}

// ----------------------------------------------------------------------------
// Nested Fusion
// ----------------------------------------------------------------------------

func TestNestedMapFusion(t *testing.T) {
	stmt := assign("p", &ast.VarExpr{Name: "j"}, intLit(1))
	inner := mapKernel(2, []string{"p"}, []ast.LoopVar{loopVar("k", 1, 10)}, stmt)
	outer := mapKernel(1, []string{"p"}, []ast.LoopVar{loopVar("j", 1, 10)}, inner)
	unit := &ast.ProgramUnit{Body: &ast.Block{Stmts: []ast.Stmt{outer}}}

	Unit(unit)

	fused, ok := unit.Body.Stmts[0].(*ast.MapKernel)
	if !ok {
		t.Fatalf("result = %T, want *ast.MapKernel", unit.Body.Stmts[0])
	}
	if len(fused.LoopVars) != 2 || fused.LoopVars[0].Name != "j" || fused.LoopVars[1].Name != "k" {
		t.Errorf("LoopVars = %v, want [j k]", fused.LoopVars)
	}
	if len(fused.Body.Stmts) != 1 || fused.Body.Stmts[0] != ast.Stmt(stmt) {
		t.Errorf("Body = %v, want the innermost statement only", fused.Body.Stmts)
	}
	if !hasAnnotation(fused.Annotations, "fused nested map kernel from 2:1") {
		t.Errorf("Annotations = %v, want nested fusion provenance", fused.Annotations)
	}
}

func TestNestedReduceFusion(t *testing.T) {
	stmt := &ast.AssignStmt{
		Targets: []*ast.VarExpr{{Name: "s"}},
		Rhs: &ast.BinaryExpr{Op: ast.OpAdd,
			Left:  &ast.VarExpr{Name: "s"},
			Right: &ast.VarExpr{Name: "a", Args: []ast.Expr{&ast.VarExpr{Name: "k"}}}},
	}
	inner := &ast.ReduceKernel{
		Pos:           ast.Pos{Line: 2, Col: 1},
		LoopVars:      []ast.LoopVar{loopVar("k", 1, 10)},
		ReductionVars: []ast.VarRef{{Name: "s"}},
		Body:          &ast.Block{Stmts: []ast.Stmt{stmt}},
		EndLine:       4,
	}
	outer := &ast.ReduceKernel{
		Pos:           ast.Pos{Line: 1, Col: 1},
		LoopVars:      []ast.LoopVar{loopVar("j", 1, 10)},
		ReductionVars: []ast.VarRef{{Name: "s"}},
		Body:          &ast.Block{Stmts: []ast.Stmt{inner}},
		EndLine:       5,
	}
	unit := &ast.ProgramUnit{Body: &ast.Block{Stmts: []ast.Stmt{outer}}}

	Unit(unit)

	fused, ok := unit.Body.Stmts[0].(*ast.ReduceKernel)
	if !ok {
		t.Fatalf("result = %T, want *ast.ReduceKernel", unit.Body.Stmts[0])
	}
	if len(fused.LoopVars) != 2 {
		t.Errorf("LoopVars = %v, want [j k]", fused.LoopVars)
	}
	if len(fused.ReductionVars) != 1 || fused.ReductionVars[0].Name != "s" {
		t.Errorf("ReductionVars = %v, want [s] without duplication", fused.ReductionVars)
	}
}

func TestNestedFusionSkipsMixedKinds(t *testing.T) {
	inner := &ast.ReduceKernel{
		Pos:           ast.Pos{Line: 2, Col: 1},
		LoopVars:      []ast.LoopVar{loopVar("k", 1, 10)},
		ReductionVars: []ast.VarRef{{Name: "s"}},
		Body:          &ast.Block{},
		EndLine:       4,
	}
	outer := mapKernel(1, []string{"p"}, []ast.LoopVar{loopVar("j", 1, 10)}, inner)
	unit := &ast.ProgramUnit{Body: &ast.Block{Stmts: []ast.Stmt{outer}}}

	Unit(unit)

	kept, ok := unit.Body.Stmts[0].(*ast.MapKernel)
	if !ok {
		t.Fatalf("result = %T, want *ast.MapKernel", unit.Body.Stmts[0])
	}
	if len(kept.Body.Stmts) != 1 {
		t.Fatal("mixed-kind nest was collapsed")
	}
	if _, ok := kept.Body.Stmts[0].(*ast.ReduceKernel); !ok {
		t.Errorf("inner = %T, want the reduction kernel untouched", kept.Body.Stmts[0])
	}
}

// ----------------------------------------------------------------------------
// Adjacent Fusion
// ----------------------------------------------------------------------------

func TestAdjacentExactFusion(t *testing.T) {
	stmtA := assign("a", &ast.VarExpr{Name: "i"}, intLit(1))
	stmtB := assign("b", &ast.VarExpr{Name: "i"}, intLit(2))
	first := mapKernel(1, []string{"a"}, []ast.LoopVar{loopVar("i", 1, 100)}, stmtA)
	second := mapKernel(5, []string{"b"}, []ast.LoopVar{loopVar("i", 1, 100)}, stmtB)
	unit := &ast.ProgramUnit{Body: &ast.Block{Stmts: []ast.Stmt{first, second}}}

	Unit(unit)

	if len(unit.Body.Stmts) != 1 {
		t.Fatalf("statements = %d, want 1 after fusion", len(unit.Body.Stmts))
	}
	fused := unit.Body.Stmts[0].(*ast.MapKernel)

	// The second kernel's body comes first in the fused region.
	if len(fused.Body.Stmts) != 2 {
		t.Fatalf("fused body = %d statements, want 2", len(fused.Body.Stmts))
	}
	if fused.Body.Stmts[0] != ast.Stmt(stmtB) || fused.Body.Stmts[1] != ast.Stmt(stmtA) {
		t.Error("fused body order is not second kernel first")
	}
	if fused.Pos.Line != 1 || fused.EndLine != second.EndLine {
		t.Errorf("span = %d..%d, want 1..%d", fused.Pos.Line, fused.EndLine, second.EndLine)
	}
	names := make([]string, len(fused.Writes))
	for i, r := range fused.Writes {
		names[i] = r.Name
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Writes = %v, want [a b]", names)
	}
	if !hasAnnotation(fused.Annotations, "1:1: fused adjacent map kernel from 5:1") {
		t.Errorf("Annotations = %v, want adjacent fusion provenance", fused.Annotations)
	}
}

func TestAdjacentOffsetFusion(t *testing.T) {
	// First kernel runs i = 1, n+1; second runs i = 1, n. The smaller
	// end wins and the wider body is guarded.
	wideEnd := &ast.BinaryExpr{Op: ast.OpAdd, Left: &ast.VarExpr{Name: "n"}, Right: intLit(1)}
	narrowEnd := &ast.VarExpr{Name: "n"}

	stmtA := assign("a", &ast.VarExpr{Name: "i"}, intLit(1))
	stmtB := assign("b", &ast.VarExpr{Name: "i"}, intLit(2))
	first := mapKernel(1, []string{"a"}, []ast.LoopVar{{Name: "i", Start: intLit(1), End: wideEnd, Step: intLit(1)}}, stmtA)
	second := mapKernel(5, []string{"b"}, []ast.LoopVar{{Name: "i", Start: intLit(1), End: narrowEnd, Step: intLit(1)}}, stmtB)
	unit := &ast.ProgramUnit{Body: &ast.Block{Stmts: []ast.Stmt{first, second}}}

	Unit(unit)

	if len(unit.Body.Stmts) != 1 {
		t.Fatalf("statements = %d, want 1 after fusion", len(unit.Body.Stmts))
	}
	fused := unit.Body.Stmts[0].(*ast.MapKernel)

	if !ast.ExprEqual(fused.LoopVars[0].End, narrowEnd) {
		t.Errorf("End = %s, want the smaller bound n", ast.ExprString(fused.LoopVars[0].End))
	}

	// Second body unguarded and first, then the guarded wider body.
	if len(fused.Body.Stmts) != 2 {
		t.Fatalf("fused body = %d statements, want 2", len(fused.Body.Stmts))
	}
	if fused.Body.Stmts[0] != ast.Stmt(stmtB) {
		t.Error("narrow kernel's body is not first")
	}
	guard, ok := fused.Body.Stmts[1].(*ast.IfStmt)
	if !ok {
		t.Fatalf("wider body = %T, want *ast.IfStmt guard", fused.Body.Stmts[1])
	}
	if got := ast.ExprString(guard.Cond); got != "(i.lt.n)" {
		t.Errorf("guard = %q, want %q", got, "(i.lt.n)")
	}
	if len(guard.Body.Stmts) != 1 || guard.Body.Stmts[0] != ast.Stmt(stmtA) {
		t.Error("guard does not wrap the wider kernel's body")
	}
	if !hasAnnotation(fused.Annotations, "bound of i narrowed to the smaller range") {
		t.Errorf("Annotations = %v, want the narrowing note", fused.Annotations)
	}
}

func TestAdjacentMismatchUntouched(t *testing.T) {
	first := mapKernel(1, []string{"a"}, []ast.LoopVar{loopVar("i", 1, 100)},
		assign("a", &ast.VarExpr{Name: "i"}, intLit(1)))
	second := mapKernel(5, []string{"b"}, []ast.LoopVar{loopVar("j", 1, 100)},
		assign("b", &ast.VarExpr{Name: "j"}, intLit(2)))
	unit := &ast.ProgramUnit{Body: &ast.Block{Stmts: []ast.Stmt{first, second}}}

	Unit(unit)

	if len(unit.Body.Stmts) != 2 {
		t.Fatalf("statements = %d, want 2: differing iterators must not fuse", len(unit.Body.Stmts))
	}
}

func TestAdjacentMixedKindsUntouched(t *testing.T) {
	first := mapKernel(1, []string{"a"}, []ast.LoopVar{loopVar("i", 1, 100)},
		assign("a", &ast.VarExpr{Name: "i"}, intLit(1)))
	second := &ast.ReduceKernel{
		Pos:           ast.Pos{Line: 5, Col: 1},
		LoopVars:      []ast.LoopVar{loopVar("i", 1, 100)},
		ReductionVars: []ast.VarRef{{Name: "s"}},
		Body:          &ast.Block{},
		EndLine:       7,
	}
	unit := &ast.ProgramUnit{Body: &ast.Block{Stmts: []ast.Stmt{first, second}}}

	Unit(unit)

	if len(unit.Body.Stmts) != 2 {
		t.Fatalf("statements = %d, want 2: kinds must match to fuse", len(unit.Body.Stmts))
	}
}

func TestAdjacentChainFusesRepeatedly(t *testing.T) {
	lv := []ast.LoopVar{loopVar("i", 1, 10)}
	a := mapKernel(1, []string{"a"}, lv, assign("a", &ast.VarExpr{Name: "i"}, intLit(1)))
	b := mapKernel(4, []string{"b"}, lv, assign("b", &ast.VarExpr{Name: "i"}, intLit(2)))
	c := mapKernel(7, []string{"c"}, lv, assign("c", &ast.VarExpr{Name: "i"}, intLit(3)))
	unit := &ast.ProgramUnit{Body: &ast.Block{Stmts: []ast.Stmt{a, b, c}}}

	Unit(unit)

	if len(unit.Body.Stmts) != 1 {
		t.Fatalf("statements = %d, want 1 after chained fusion", len(unit.Body.Stmts))
	}
	fused := unit.Body.Stmts[0].(*ast.MapKernel)
	if len(fused.Body.Stmts) != 3 {
		t.Errorf("fused body = %d statements, want all three", len(fused.Body.Stmts))
	}
}
