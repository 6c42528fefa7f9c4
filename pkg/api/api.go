// Package api provides the public API for the loop parallelizer.
//
// This package is intended for programmatic use of the parallelizer.
// For CLI usage, see cmd/autoparallel.
package api

import (
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/config"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/transformer"
)

// Options controls parallelization behavior.
type Options struct {
	// Fuse enables the nested and adjacent kernel fusion passes.
	Fuse bool

	// CompilerName is used in emitted provenance headers.
	// Empty means the configured default.
	CompilerName string

	// KernelPrefix prefixes emitted kernel subroutine names.
	// Empty means the configured default.
	KernelPrefix string

	// TabWidth is the indentation width of emitted source.
	// Zero means the configured default.
	TabWidth int
}

// Result contains the parallelization output.
type Result struct {
	// Code is the emitted source with extracted kernel subroutines.
	Code string

	// PreFusion and PostFusion are the annotation listings before and
	// after the fusion passes.
	PreFusion  string
	PostFusion string

	// Tree is the annotated region structure, one node per line.
	Tree string

	// Errors contains any errors encountered during parsing.
	// If non-empty, Code is empty.
	Errors []string
}

// Parallelize rewrites the source's loop nests into parallel kernels
// with default options, fusion included.
func Parallelize(source string) Result {
	return ParallelizeWithOptions(source, Options{Fuse: true})
}

// ParallelizeWithOptions rewrites the source's loop nests with custom
// options.
func ParallelizeWithOptions(source string, opts Options) Result {
	result := transform(source, opts)

	errors := make([]string, len(result.Errors))
	for i, e := range result.Errors {
		errors[i] = e.Message
	}

	return Result{
		Code:       result.Code,
		PreFusion:  result.PreFusion,
		PostFusion: result.PostFusion,
		Tree:       result.Tree,
		Errors:     errors,
	}
}

func transform(source string, opts Options) transformer.Result {
	cfg := config.Default()
	if opts.CompilerName != "" {
		cfg.CompilerName = opts.CompilerName
	}
	if opts.KernelPrefix != "" {
		cfg.KernelPrefix = opts.KernelPrefix
	}
	if opts.TabWidth > 0 {
		cfg.TabWidth = opts.TabWidth
	}

	t := transformer.New(transformer.Options{Config: cfg, Fuse: opts.Fuse})
	return t.Transform(source, "<api>")
}

// ----------------------------------------------------------------------------
// Introspection API
// ----------------------------------------------------------------------------

// AnalyzeResult describes the parallel regions found in a program.
type AnalyzeResult struct {
	// Units contains one entry per program unit.
	Units []UnitInfo `json:"units"`

	// Errors contains any errors encountered during parsing.
	Errors []string `json:"errors,omitempty"`
}

// UnitInfo describes one program unit and its regions.
type UnitInfo struct {
	// Kind is "program" or "subroutine".
	Kind string `json:"kind"`

	// Name is the unit name.
	Name string `json:"name"`

	// Regions lists the unit's classified loop regions in tree order.
	Regions []RegionInfo `json:"regions"`
}

// RegionInfo describes one classified loop region.
type RegionInfo struct {
	// Kind is "map", "reduce" or "sequential".
	Kind string `json:"kind"`

	// Line is the source line of the original loop header.
	Line int `json:"line"`

	// LoopVars lists the region's iterator names, outermost first.
	LoopVars []string `json:"loopVars,omitempty"`

	// Reads and Writes are the region's data dependencies, iterator
	// names excluded.
	Reads  []string `json:"reads,omitempty"`
	Writes []string `json:"writes,omitempty"`

	// ReductionVars lists accumulator names for reduce regions.
	ReductionVars []string `json:"reductionVars,omitempty"`

	// Annotations carries the region's diagnostic and provenance text.
	Annotations []string `json:"annotations,omitempty"`
}

// Analyze classifies and fuses the source's loops and reports the
// resulting region structure without emitting code. This is useful for
// introspection and tooling.
func Analyze(source string) AnalyzeResult {
	result := transform(source, Options{Fuse: true})

	out := AnalyzeResult{}
	for _, e := range result.Errors {
		out.Errors = append(out.Errors, e.Message)
	}
	if result.Program == nil {
		return out
	}

	for _, unit := range result.Program.Units {
		info := UnitInfo{Kind: unit.Kind.String(), Name: unit.Name}
		ast.WalkStmts(unit.Body, func(s ast.Stmt) bool {
			switch x := s.(type) {
			case *ast.MapKernel:
				info.Regions = append(info.Regions, RegionInfo{
					Kind:        "map",
					Line:        x.Pos.Line,
					LoopVars:    loopVarNames(x.LoopVars),
					Reads:       refNames(x.Reads),
					Writes:      refNames(x.Writes),
					Annotations: x.Annotations,
				})
			case *ast.ReduceKernel:
				info.Regions = append(info.Regions, RegionInfo{
					Kind:          "reduce",
					Line:          x.Pos.Line,
					LoopVars:      loopVarNames(x.LoopVars),
					Reads:         refNames(x.Reads),
					Writes:        refNames(x.Writes),
					ReductionVars: refNames(x.ReductionVars),
					Annotations:   x.Annotations,
				})
			case *ast.SeqLoop:
				info.Regions = append(info.Regions, RegionInfo{
					Kind:        "sequential",
					Line:        x.Pos.Line,
					LoopVars:    []string{x.Loop.Var},
					Annotations: x.Annotations,
				})
			}
			return true
		})
		out.Units = append(out.Units, info)
	}
	return out
}

func loopVarNames(loopVars []ast.LoopVar) []string {
	names := make([]string, len(loopVars))
	for i, lv := range loopVars {
		names[i] = lv.Name
	}
	return names
}

func refNames(refs []ast.VarRef) []string {
	if len(refs) == 0 {
		return nil
	}
	names := make([]string, len(refs))
	for i, ref := range refs {
		names[i] = ref.Name
	}
	return names
}
