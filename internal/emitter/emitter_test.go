package emitter

import (
	"strings"
	"testing"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/config"
)

func testConfig() config.Config {
	return config.Config{CompilerName: "autoparallel", TabWidth: 2, KernelPrefix: "kernel_"}
}

func intLit(v int64) *ast.IntLit { return &ast.IntLit{Value: v} }

func index(name, iter string) *ast.VarExpr {
	return &ast.VarExpr{Name: name, Args: []ast.Expr{&ast.VarExpr{Name: iter}}}
}

func mustContain(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestMapKernelExtraction(t *testing.T) {
	kernel := &ast.MapKernel{
		Pos:      ast.Pos{Line: 3, Col: 1},
		Reads:    []ast.VarRef{{Name: "b"}},
		Writes:   []ast.VarRef{{Name: "a"}},
		LoopVars: []ast.LoopVar{{Name: "i", Start: intLit(1), End: intLit(100), Step: intLit(1)}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.AssignStmt{
				Targets: []*ast.VarExpr{index("a", "i")},
				Rhs:     &ast.BinaryExpr{Op: ast.OpMul, Left: index("b", "i"), Right: intLit(2)},
			},
		}},
		EndLine: 5,
	}
	prog := &ast.Program{Units: []*ast.ProgramUnit{{
		Name: "main",
		Body: &ast.Block{Stmts: []ast.Stmt{kernel}},
	}}}

	out := New(testConfig()).Program(prog)

	mustContain(t, out,
		"program main",
		"c map kernel extracted from line 3",
		"call kernel_1(b, a)",
		"c autoparallel: map kernel from 3:1",
		"subroutine kernel_1(b, a)",
		"do i = 1, 100",
		"a(i) = (b(i)*2)",
		"end do",
		"end subroutine",
	)
}

func TestReduceKernelHeader(t *testing.T) {
	kernel := &ast.ReduceKernel{
		Pos:           ast.Pos{Line: 2, Col: 1},
		Reads:         []ast.VarRef{{Name: "a"}},
		Writes:        []ast.VarRef{{Name: "s"}},
		LoopVars:      []ast.LoopVar{{Name: "i", Start: intLit(1), End: intLit(100), Step: intLit(1)}},
		ReductionVars: []ast.VarRef{{Name: "s"}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.AssignStmt{
				Targets: []*ast.VarExpr{{Name: "s"}},
				Rhs:     &ast.BinaryExpr{Op: ast.OpAdd, Left: &ast.VarExpr{Name: "s"}, Right: index("a", "i")},
			},
		}},
		EndLine: 4,
	}
	prog := &ast.Program{Units: []*ast.ProgramUnit{{
		Name: "main",
		Body: &ast.Block{Stmts: []ast.Stmt{kernel}},
	}}}

	out := New(testConfig()).Program(prog)

	mustContain(t, out,
		"c reduction kernel extracted from line 2",
		"c autoparallel: reduction kernel from 2:1",
		"c reduction variables: s",
		"s = (s+a(i))",
	)
}

func TestSequentialLoopKeepsAnnotations(t *testing.T) {
	seq := &ast.SeqLoop{
		Pos: ast.Pos{Line: 2, Col: 1},
		Loop: &ast.ForStmt{
			Var:   "i",
			Start: intLit(1),
			End:   intLit(10),
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.AssignStmt{
					Targets: []*ast.VarExpr{index("p", "i")},
					Rhs:     intLit(0),
				},
			}},
			EndLine: 4,
		},
		Annotations: []string{`3:7: "p" has a loop-carried dependency through p((i-1))`},
	}
	prog := &ast.Program{Units: []*ast.ProgramUnit{{
		Name: "main",
		Body: &ast.Block{Stmts: []ast.Stmt{seq}},
	}}}

	out := New(testConfig()).Program(prog)

	mustContain(t, out,
		`c 3:7: "p" has a loop-carried dependency through p((i-1))`,
		"do i = 1, 10",
		"p(i) = 0",
	)
	if strings.Contains(out, "call kernel_") {
		t.Errorf("sequential loop was extracted:\n%s", out)
	}
}

func TestKernelNamesCount(t *testing.T) {
	mk := func(line int) *ast.MapKernel {
		return &ast.MapKernel{
			Pos:      ast.Pos{Line: line, Col: 1},
			Writes:   []ast.VarRef{{Name: "a"}},
			LoopVars: []ast.LoopVar{{Name: "i", Start: intLit(1), End: intLit(10), Step: intLit(1)}},
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.AssignStmt{Targets: []*ast.VarExpr{index("a", "i")}, Rhs: intLit(0)},
			}},
			EndLine: line + 2,
		}
	}
	prog := &ast.Program{Units: []*ast.ProgramUnit{{
		Name: "main",
		Body: &ast.Block{Stmts: []ast.Stmt{mk(2), mk(5)}},
	}}}

	out := New(testConfig()).Program(prog)

	mustContain(t, out, "call kernel_1(a)", "call kernel_2(a)", "subroutine kernel_2(a)")
}

func TestKernelPrefixConfigurable(t *testing.T) {
	cfg := testConfig()
	cfg.KernelPrefix = "par_"
	kernel := &ast.MapKernel{
		Pos:      ast.Pos{Line: 2, Col: 1},
		Writes:   []ast.VarRef{{Name: "a"}},
		LoopVars: []ast.LoopVar{{Name: "i", Start: intLit(1), End: intLit(10), Step: intLit(1)}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.AssignStmt{Targets: []*ast.VarExpr{index("a", "i")}, Rhs: intLit(0)},
		}},
		EndLine: 4,
	}
	prog := &ast.Program{Units: []*ast.ProgramUnit{{
		Name: "main",
		Body: &ast.Block{Stmts: []ast.Stmt{kernel}},
	}}}

	out := New(cfg).Program(prog)

	mustContain(t, out, "call par_1(a)", "subroutine par_1(a)")
}

func TestSubroutineUnitAndStep(t *testing.T) {
	loop := &ast.ForStmt{
		Var:   "i",
		Start: intLit(1),
		End:   intLit(9),
		Step:  intLit(2),
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.CallStmt{Name: "work", Args: []ast.Expr{&ast.VarExpr{Name: "i"}}},
		}},
		EndLine: 4,
	}
	prog := &ast.Program{Units: []*ast.ProgramUnit{{
		Kind:   ast.UnitSubroutine,
		Name:   "driver",
		Params: []string{"n"},
		Body:   &ast.Block{Stmts: []ast.Stmt{loop}},
	}}}

	out := New(testConfig()).Program(prog)

	mustContain(t, out,
		"subroutine driver(n)",
		"do i = 1, 9, 2",
		"call work(i)",
	)
}

func TestNestedKernelRendersInline(t *testing.T) {
	// Without the fusion passes an inner kernel survives inside the
	// outer kernel's body; it must render inline in the outer
	// subroutine, never as a dangling call to an unemitted kernel.
	inner := &ast.MapKernel{
		Pos:      ast.Pos{Line: 3, Col: 1},
		Writes:   []ast.VarRef{{Name: "p"}},
		LoopVars: []ast.LoopVar{{Name: "k", Start: intLit(1), End: intLit(10), Step: intLit(1)}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.AssignStmt{Targets: []*ast.VarExpr{index("p", "k")}, Rhs: intLit(1)},
		}},
		EndLine:     5,
		Annotations: []string{"inner region note"},
	}
	outer := &ast.MapKernel{
		Pos:    ast.Pos{Line: 2, Col: 1},
		Writes: []ast.VarRef{{Name: "p"}},
		LoopVars: []ast.LoopVar{
			{Name: "j", Start: intLit(1), End: intLit(10), Step: intLit(1)},
			{Name: "k", Start: intLit(1), End: intLit(10), Step: intLit(1)},
		},
		Body:    &ast.Block{Stmts: []ast.Stmt{inner}},
		EndLine: 6,
	}
	prog := &ast.Program{Units: []*ast.ProgramUnit{{
		Name: "main",
		Body: &ast.Block{Stmts: []ast.Stmt{outer}},
	}}}

	out := New(testConfig()).Program(prog)

	mustContain(t, out,
		"subroutine kernel_1(p)",
		"c inner region note",
		"p(k) = 1",
	)
	if strings.Contains(out, "kernel_2") {
		t.Errorf("inner kernel was re-extracted:\n%s", out)
	}
	if got := strings.Count(out, "subroutine"); got != 1 {
		t.Errorf("subroutine count = %d, want 1:\n%s", got, out)
	}
	// The outer subroutine's headers cover the whole nest; the inlined
	// kernel must not restore its own loop.
	if got := strings.Count(out, "do k = 1, 10"); got != 1 {
		t.Errorf("inner loop header count = %d, want 1:\n%s", got, out)
	}
}

func TestKernelBoundVariableParams(t *testing.T) {
	kernel := &ast.MapKernel{
		Pos:      ast.Pos{Line: 2, Col: 1},
		Reads:    []ast.VarRef{{Name: "b"}},
		Writes:   []ast.VarRef{{Name: "a"}},
		LoopVars: []ast.LoopVar{{Name: "i", Start: intLit(1), End: &ast.VarExpr{Name: "n"}, Step: intLit(1)}},
		Body: &ast.Block{Stmts: []ast.Stmt{
			&ast.AssignStmt{Targets: []*ast.VarExpr{index("a", "i")}, Rhs: index("b", "i")},
		}},
		EndLine: 4,
	}
	prog := &ast.Program{Units: []*ast.ProgramUnit{{
		Kind:   ast.UnitSubroutine,
		Name:   "s",
		Params: []string{"a", "b", "n"},
		Body:   &ast.Block{Stmts: []ast.Stmt{kernel}},
	}}}

	out := New(testConfig()).Program(prog)

	mustContain(t, out,
		"call kernel_1(b, a, n)",
		"subroutine kernel_1(b, a, n)",
		"do i = 1, n",
	)
}

func TestTree(t *testing.T) {
	kernel := &ast.MapKernel{
		Pos:      ast.Pos{Line: 2, Col: 1},
		Writes:   []ast.VarRef{{Name: "a"}},
		LoopVars: []ast.LoopVar{{Name: "i", Start: intLit(1), End: intLit(10), Step: intLit(1)}},
		Body:     &ast.Block{},
		EndLine:  4,
	}
	seq := &ast.SeqLoop{
		Pos:  ast.Pos{Line: 5, Col: 1},
		Loop: &ast.ForStmt{Var: "j", Start: intLit(1), End: intLit(10), Body: &ast.Block{}, EndLine: 7},
	}
	prog := &ast.Program{Units: []*ast.ProgramUnit{{
		Name: "main",
		Body: &ast.Block{Stmts: []ast.Stmt{kernel, seq}},
	}}}

	out := New(testConfig()).Tree(prog)

	mustContain(t, out, "map (i) [a]", "sequential do j")
}
