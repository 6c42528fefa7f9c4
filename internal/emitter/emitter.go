// Package emitter outputs Fortran-style source from an annotated tree.
//
// Map and reduction kernels become standalone kernel subroutines with a
// provenance header; the original program unit keeps a call at each
// kernel's site. Everything else renders as ordinary Fortran.
package emitter

import (
	"fmt"
	"strings"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/config"
)

// Emitter renders annotated programs.
type Emitter struct {
	cfg config.Config

	buf    strings.Builder
	indent int

	kernels []kernel

	// inKernel is set while a kernel subroutine's body renders. Kernel
	// nodes encountered there are emitted inline, not re-extracted.
	inKernel bool
}

// kernel is one extracted parallel region awaiting rendering.
type kernel struct {
	name          string
	kind          string
	pos           ast.Pos
	params        []string
	loopVars      []ast.LoopVar
	reductionVars []ast.VarRef
	body          *ast.Block
	annotations   []string
}

// New creates an emitter using cfg's compiler name, kernel prefix and
// tab width.
func New(cfg config.Config) *Emitter {
	if cfg.TabWidth <= 0 {
		cfg.TabWidth = 2
	}
	return &Emitter{cfg: cfg}
}

// Program renders the whole program: every unit with kernel call sites,
// then the extracted kernel subroutines.
func (e *Emitter) Program(prog *ast.Program) string {
	e.buf.Reset()
	e.kernels = nil

	for _, unit := range prog.Units {
		e.unit(unit)
		e.newline()
	}
	// Rendering a subroutine can discover further kernels, so iterate by
	// index rather than over a snapshot.
	for i := 0; i < len(e.kernels); i++ {
		e.kernelSubroutine(e.kernels[i])
		e.newline()
	}
	return e.buf.String()
}

// ----------------------------------------------------------------------------
// Units and Statements
// ----------------------------------------------------------------------------

func (e *Emitter) unit(unit *ast.ProgramUnit) {
	switch unit.Kind {
	case ast.UnitSubroutine:
		e.line("subroutine %s(%s)", unit.Name, strings.Join(unit.Params, ", "))
	default:
		e.line("program %s", unit.Name)
	}
	e.indent++
	e.block(unit.Body)
	e.indent--
	e.line("end")
}

func (e *Emitter) block(block *ast.Block) {
	if block == nil {
		return
	}
	for _, s := range block.Stmts {
		e.stmt(s)
	}
}

func (e *Emitter) stmt(s ast.Stmt) {
	switch x := s.(type) {
	case *ast.Block:
		e.block(x)

	case *ast.AssignStmt:
		targets := make([]string, len(x.Targets))
		for i, t := range x.Targets {
			targets[i] = ast.ExprString(t)
		}
		e.line("%s = %s", strings.Join(targets, ", "), ast.ExprString(x.Rhs))

	case *ast.ForStmt:
		e.loop(x.Var, ast.LoopVar{Start: x.Start, End: x.End, Step: x.Step}, x.Body)

	case *ast.IfStmt:
		e.ifStmt(x, "if")

	case *ast.CallStmt:
		args := make([]string, len(x.Args))
		for i, a := range x.Args {
			args[i] = ast.ExprString(a)
		}
		e.line("call %s(%s)", x.Name, strings.Join(args, ", "))

	case *ast.DeclStmt:
		entries := make([]string, len(x.Entries))
		for i, entry := range x.Entries {
			entries[i] = entry.Name
			if len(entry.Dims) > 0 {
				dims := make([]string, len(entry.Dims))
				for j, d := range entry.Dims {
					dims[j] = ast.ExprString(d)
				}
				entries[i] += "(" + strings.Join(dims, ",") + ")"
			}
		}
		e.line("%s %s", x.Kind, strings.Join(entries, ", "))

	case *ast.OpaqueStmt:
		e.line("%s", x.Text)

	case *ast.SeqLoop:
		for _, a := range x.Annotations {
			e.comment(a)
		}
		e.stmt(x.Loop)

	case *ast.MapKernel:
		if e.inKernel {
			e.inlineKernel(x.Annotations, x.Body)
		} else {
			e.callSite(e.extract("map", x.Pos, x.Reads, x.Writes, x.LoopVars, nil, x.Body, x.Annotations))
		}

	case *ast.ReduceKernel:
		if e.inKernel {
			e.inlineKernel(x.Annotations, x.Body)
		} else {
			e.callSite(e.extract("reduction", x.Pos, x.Reads, x.Writes, x.LoopVars, x.ReductionVars, x.Body, x.Annotations))
		}
	}
}

func (e *Emitter) ifStmt(x *ast.IfStmt, keyword string) {
	e.line("%s (%s) then", keyword, ast.ExprString(x.Cond))
	e.indent++
	e.block(x.Body)
	e.indent--
	switch els := x.Else.(type) {
	case *ast.IfStmt:
		e.ifStmt(els, "else if")
		return
	case *ast.Block:
		e.line("else")
		e.indent++
		e.block(els)
		e.indent--
	}
	e.line("end if")
}

func (e *Emitter) loop(name string, lv ast.LoopVar, body *ast.Block) {
	header := fmt.Sprintf("do %s = %s, %s", name, ast.ExprString(lv.Start), ast.ExprString(lv.End))
	if lv.Step != nil && !ast.ExprEqual(lv.Step, &ast.IntLit{Value: 1}) {
		header += ", " + ast.ExprString(lv.Step)
	}
	e.line("%s", header)
	e.indent++
	e.block(body)
	e.indent--
	e.line("end do")
}

// ----------------------------------------------------------------------------
// Kernel Extraction
// ----------------------------------------------------------------------------

// extract registers a kernel subroutine and returns it. Parameters are
// the union of the region's read and write sets plus any variable
// referenced by the restored loop headers' bound expressions.
func (e *Emitter) extract(kind string, pos ast.Pos, reads, writes []ast.VarRef, loopVars []ast.LoopVar, reductionVars []ast.VarRef, body *ast.Block, annotations []string) kernel {
	var params []string
	seen := make(map[string]bool)
	for _, ref := range ast.MergeRefs(reads, writes) {
		params = append(params, ref.Name)
		seen[ref.Name] = true
	}
	for _, lv := range loopVars {
		seen[lv.Name] = true
	}
	for _, lv := range loopVars {
		for _, bound := range []ast.Expr{lv.Start, lv.End, lv.Step} {
			for _, name := range ast.VarNames(bound) {
				if !seen[name] {
					seen[name] = true
					params = append(params, name)
				}
			}
		}
	}
	k := kernel{
		name:          fmt.Sprintf("%s%d", e.cfg.KernelPrefix, len(e.kernels)+1),
		kind:          kind,
		pos:           pos,
		params:        params,
		loopVars:      loopVars,
		reductionVars: reductionVars,
		body:          body,
		annotations:   annotations,
	}
	e.kernels = append(e.kernels, k)
	return k
}

// inlineKernel renders a kernel nested inside an extracted kernel's
// body. The subroutine's loop headers already cover the whole merged
// nest, so only the annotations and body are emitted.
func (e *Emitter) inlineKernel(annotations []string, body *ast.Block) {
	for _, a := range annotations {
		e.comment(a)
	}
	e.block(body)
}

func (e *Emitter) callSite(k kernel) {
	e.comment(fmt.Sprintf("%s kernel extracted from line %d", k.kind, k.pos.Line))
	e.line("call %s(%s)", k.name, strings.Join(k.params, ", "))
}

// kernelSubroutine renders one extracted kernel: provenance header,
// restored loop nest, body.
func (e *Emitter) kernelSubroutine(k kernel) {
	e.comment(fmt.Sprintf("%s: %s kernel from %s", e.cfg.CompilerName, k.kind, k.pos))
	for _, a := range k.annotations {
		e.comment(a)
	}
	if len(k.reductionVars) > 0 {
		names := make([]string, len(k.reductionVars))
		for i, ref := range k.reductionVars {
			names[i] = ref.Name
		}
		e.comment("reduction variables: " + strings.Join(names, ", "))
	}
	e.line("subroutine %s(%s)", k.name, strings.Join(k.params, ", "))
	e.indent++

	open := 0
	for _, lv := range k.loopVars {
		e.loopHeader(lv)
		e.indent++
		open++
	}
	e.inKernel = true
	e.block(k.body)
	e.inKernel = false
	for ; open > 0; open-- {
		e.indent--
		e.line("end do")
	}

	e.indent--
	e.line("end subroutine")
}

func (e *Emitter) loopHeader(lv ast.LoopVar) {
	header := fmt.Sprintf("do %s = %s, %s", lv.Name, ast.ExprString(lv.Start), ast.ExprString(lv.End))
	if lv.Step != nil && !ast.ExprEqual(lv.Step, &ast.IntLit{Value: 1}) {
		header += ", " + ast.ExprString(lv.Step)
	}
	e.line("%s", header)
}

// ----------------------------------------------------------------------------
// Tree Listing
// ----------------------------------------------------------------------------

// Tree renders the annotated region structure of a program, one node per
// line, for reporting.
func (e *Emitter) Tree(prog *ast.Program) string {
	var sb strings.Builder
	for _, unit := range prog.Units {
		fmt.Fprintf(&sb, "%s %s\n", unit.Kind, unit.Name)
		e.treeStmt(&sb, unit.Body, 1)
	}
	return sb.String()
}

func (e *Emitter) treeStmt(sb *strings.Builder, s ast.Stmt, depth int) {
	pad := strings.Repeat(" ", depth*e.cfg.TabWidth)
	switch x := s.(type) {
	case nil:
	case *ast.Block:
		for _, inner := range x.Stmts {
			e.treeStmt(sb, inner, depth)
		}
	case *ast.MapKernel:
		fmt.Fprintf(sb, "%smap %s %s\n", pad, describeLoopVars(x.LoopVars), describeRefs(x.Writes))
		e.treeStmt(sb, x.Body, depth+1)
	case *ast.ReduceKernel:
		fmt.Fprintf(sb, "%sreduce %s %s\n", pad, describeLoopVars(x.LoopVars), describeRefs(x.ReductionVars))
		e.treeStmt(sb, x.Body, depth+1)
	case *ast.SeqLoop:
		fmt.Fprintf(sb, "%ssequential do %s\n", pad, x.Loop.Var)
		e.treeStmt(sb, x.Loop.Body, depth+1)
	case *ast.ForStmt:
		fmt.Fprintf(sb, "%sdo %s\n", pad, x.Var)
		e.treeStmt(sb, x.Body, depth+1)
	case *ast.IfStmt:
		fmt.Fprintf(sb, "%sif %s\n", pad, ast.ExprString(x.Cond))
		e.treeStmt(sb, x.Body, depth+1)
		e.treeStmt(sb, x.Else, depth+1)
	}
}

func describeLoopVars(loopVars []ast.LoopVar) string {
	names := make([]string, len(loopVars))
	for i, lv := range loopVars {
		names[i] = lv.Name
	}
	return "(" + strings.Join(names, ",") + ")"
}

func describeRefs(refs []ast.VarRef) string {
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return "[" + strings.Join(names, ",") + "]"
}

// ----------------------------------------------------------------------------
// Output Helpers
// ----------------------------------------------------------------------------

func (e *Emitter) line(format string, args ...any) {
	e.buf.WriteString(strings.Repeat(" ", e.indent*e.cfg.TabWidth))
	fmt.Fprintf(&e.buf, format, args...)
	e.buf.WriteByte('\n')
}

func (e *Emitter) comment(text string) {
	e.buf.WriteString(strings.Repeat(" ", e.indent*e.cfg.TabWidth))
	e.buf.WriteString("c ")
	e.buf.WriteString(text)
	e.buf.WriteByte('\n')
}

func (e *Emitter) newline() {
	e.buf.WriteByte('\n')
}
