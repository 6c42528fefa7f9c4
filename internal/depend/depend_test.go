package depend

import (
	"testing"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/test"
)

func analyzeUnit(t *testing.T, source string) *Map {
	t.Helper()
	unit := test.ParseUnit(t, source)
	return Analyze(unit.Body, nil)
}

func TestDirectDependencies(t *testing.T) {
	m := analyzeUnit(t, "a = a + b*2")

	if !m.IsDirectlyDependentOn("a", "a") {
		t.Error("IsDirectlyDependentOn(a, a) = false, want true")
	}
	if !m.IsDirectlyDependentOn("a", "b") {
		t.Error("IsDirectlyDependentOn(a, b) = false, want true")
	}
	if m.IsDirectlyDependentOn("b", "a") {
		t.Error("IsDirectlyDependentOn(b, a) = true, want false")
	}
}

func TestDependeesAccumulate(t *testing.T) {
	m := analyzeUnit(t, "a = b\na = c")

	if !m.IsDirectlyDependentOn("a", "b") || !m.IsDirectlyDependentOn("a", "c") {
		t.Errorf("Direct(a) = %v, want both b and c", m.Direct("a"))
	}
}

func TestDependeesDeduplicated(t *testing.T) {
	m := analyzeUnit(t, "s = s + s*b")

	count := 0
	for _, e := range m.Direct("s") {
		if v, ok := e.(*ast.VarExpr); ok && v.Name == "s" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("structurally equal dependee s recorded %d times, want 1", count)
	}
}

func TestIndirectDependencies(t *testing.T) {
	m := analyzeUnit(t, "a = b\nb = c\nc = d")

	if !m.IsIndirectlyDependentOn("a", "d") {
		t.Error("IsIndirectlyDependentOn(a, d) = false, want true")
	}
	if m.IsDirectlyDependentOn("a", "d") {
		t.Error("IsDirectlyDependentOn(a, d) = true, want false")
	}
}

func TestIndirectCycleTerminates(t *testing.T) {
	m := analyzeUnit(t, "a = b\nb = a")

	if !m.IsIndirectlyDependentOn("a", "a") {
		t.Error("IsIndirectlyDependentOn(a, a) = false, want true through the cycle")
	}
}

func TestDependsOnSelfOnce(t *testing.T) {
	m := analyzeUnit(t, "real a(10)\ns = s + a(i)")
	if !m.DependsOnSelfOnce("s") {
		t.Error("DependsOnSelfOnce(s) = false, want true")
	}

	// Two structurally distinct self-references.
	m = analyzeUnit(t, "real p(10)\np(i) = p(i-1) + p(i+1)")
	if m.DependsOnSelfOnce("p") {
		t.Errorf("DependsOnSelfOnce(p) = true, want false: %d self deps", len(m.SelfDependencies("p")))
	}
}

func TestCallTargetIsNotADependee(t *testing.T) {
	unit := test.ParseUnit(t, "x = max(x, a(i))")
	isCall := func(v *ast.VarExpr) bool { return v.Name == "max" }
	m := Analyze(unit.Body, isCall)

	if m.IsDirectlyDependentOn("x", "max") {
		t.Error("IsDirectlyDependentOn(x, max) = true, want false for a call target")
	}
	if !m.IsDirectlyDependentOn("x", "x") || !m.IsDirectlyDependentOn("x", "a") {
		t.Errorf("Direct(x) = %v, want the call's argument variables", m.Direct("x"))
	}
	if !m.DependsOnSelfOnce("x") {
		t.Errorf("DependsOnSelfOnce(x) = false, want true: %d self deps", len(m.SelfDependencies("x")))
	}
}

func TestIteratorUsage(t *testing.T) {
	loopVars := []ast.LoopVar{{Name: "j"}, {Name: "k"}}
	full := &ast.VarExpr{Name: "p", Args: []ast.Expr{
		&ast.VarExpr{Name: "j"},
		&ast.VarExpr{Name: "k"},
	}}
	offset := &ast.VarExpr{Name: "p", Args: []ast.Expr{
		&ast.VarExpr{Name: "j"},
		&ast.BinaryExpr{Op: ast.OpSub, Left: &ast.VarExpr{Name: "k"}, Right: &ast.IntLit{Value: 1}},
	}}

	if usage := IteratorUsage(full, loopVars); !usage["j"] || !usage["k"] {
		t.Errorf("usage(p(j,k)) = %v, want {j k}", usage)
	}
	// k-1 is not the whole index argument, so k is not used.
	if usage := IteratorUsage(offset, loopVars); !usage["j"] || usage["k"] {
		t.Errorf("usage(p(j,k-1)) = %v, want {j}", usage)
	}
}

func TestLoopCarried(t *testing.T) {
	source := "dimension p(10,10)\ndo j = 0, 9\ndo k = 0, 9\np(j,k) = p(j,k-1) + 12\nend do\nend do"
	unit := test.ParseUnit(t, source)
	loop := test.FirstLoop(t, unit)
	m := Analyze(loop, nil)

	loopVars := []ast.LoopVar{
		{Name: "j", Start: &ast.IntLit{Value: 0}, End: &ast.IntLit{Value: 9}},
		{Name: "k", Start: &ast.IntLit{Value: 0}, End: &ast.IntLit{Value: 9}},
	}
	write := &ast.VarExpr{Name: "p", Args: []ast.Expr{
		&ast.VarExpr{Name: "j"},
		&ast.VarExpr{Name: "k"},
	}}

	carried := m.LoopCarried(loopVars, write)
	if len(carried) != 1 {
		t.Fatalf("LoopCarried = %v, want one dependee", carried)
	}
	if got := ast.ExprString(carried[0]); got != "p(j,(k-1))" {
		t.Errorf("carried dependee = %q, want %q", got, "p(j,(k-1))")
	}
}

func TestLoopCarriedSameUsageClean(t *testing.T) {
	source := "dimension a(10), b(10)\ndo i = 0, 9\na(i) = b(i) + a(i)\nend do"
	unit := test.ParseUnit(t, source)
	loop := test.FirstLoop(t, unit)
	m := Analyze(loop, nil)

	loopVars := []ast.LoopVar{{Name: "i", Start: &ast.IntLit{Value: 0}, End: &ast.IntLit{Value: 9}}}
	write := &ast.VarExpr{Name: "a", Args: []ast.Expr{&ast.VarExpr{Name: "i"}}}

	if carried := m.LoopCarried(loopVars, write); len(carried) != 0 {
		t.Errorf("LoopCarried = %v, want none for matching usage", carried)
	}
}

func TestLoopCarriedReadOutsideSpace(t *testing.T) {
	// The read lands outside the written cells, so no iteration's result
	// feeds another's and the table enumeration disproves the carry.
	source := "dimension p(40,40)\ndo j = 0, 9\ndo k = 0, 9\np(j,k) = p(j,k+20) + 1\nend do\nend do"
	unit := test.ParseUnit(t, source)
	loop := test.FirstLoop(t, unit)
	m := Analyze(loop, nil)

	loopVars := []ast.LoopVar{
		{Name: "j", Start: &ast.IntLit{Value: 0}, End: &ast.IntLit{Value: 9}},
		{Name: "k", Start: &ast.IntLit{Value: 0}, End: &ast.IntLit{Value: 9}},
	}
	write := &ast.VarExpr{Name: "p", Args: []ast.Expr{
		&ast.VarExpr{Name: "j"},
		&ast.VarExpr{Name: "k"},
	}}

	if carried := m.LoopCarried(loopVars, write); len(carried) != 0 {
		t.Errorf("LoopCarried = %v, want none when reads stay outside written cells", carried)
	}
}

func TestLoopCarriedSymbolicBounds(t *testing.T) {
	// Unfoldable bounds leave only the usage comparison, which flags the
	// offset read.
	source := "dimension p(10,10)\ndo j = 0, n\ndo k = 0, n\np(j,k) = p(j,k-1) + 12\nend do\nend do"
	unit := test.ParseUnit(t, source)
	loop := test.FirstLoop(t, unit)
	m := Analyze(loop, nil)

	loopVars := []ast.LoopVar{
		{Name: "j", Start: &ast.IntLit{Value: 0}, End: &ast.VarExpr{Name: "n"}},
		{Name: "k", Start: &ast.IntLit{Value: 0}, End: &ast.VarExpr{Name: "n"}},
	}
	write := &ast.VarExpr{Name: "p", Args: []ast.Expr{
		&ast.VarExpr{Name: "j"},
		&ast.VarExpr{Name: "k"},
	}}

	if carried := m.LoopCarried(loopVars, write); len(carried) != 1 {
		t.Errorf("LoopCarried = %v, want one dependee on usage alone", carried)
	}
}
