// Package transformer provides the main parallelization API.
//
// It coordinates preprocessing, parsing, access analysis, loop
// classification, kernel fusion and emission to produce parallelized
// output from sequential source.
package transformer

import (
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/access"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/classify"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/config"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/emitter"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/fusion"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/parser"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/preprocessor"
)

// Options controls transformation behavior.
type Options struct {
	// Config carries the compiler name, tab width and kernel prefix.
	Config config.Config

	// Fuse enables the kernel fusion passes (default true).
	Fuse bool
}

// DefaultOptions returns options for full parallelization.
func DefaultOptions() Options {
	return Options{
		Config: config.Default(),
		Fuse:   true,
	}
}

// Error represents a transformation error.
type Error struct {
	Message string
	Line    int
	Column  int
}

// Stats summarizes one transformation.
type Stats struct {
	Units           int
	MapKernels      int
	ReduceKernels   int
	SequentialLoops int
}

// Result contains the transformation output.
type Result struct {
	// Code is the emitted source with extracted kernel subroutines.
	Code string

	// Tree is the annotated region structure, one node per line.
	Tree string

	// PreFusion and PostFusion are the annotation listings before and
	// after the fusion passes.
	PreFusion  string
	PostFusion string

	// Program is the rewritten tree, for embedders that inspect it.
	Program *ast.Program

	// Errors encountered during transformation.
	Errors []Error

	// Stats about the transformation.
	Stats Stats
}

// Transformer performs loop parallelization.
type Transformer struct {
	options Options
}

// New creates a new transformer with the given options.
func New(options Options) *Transformer {
	return &Transformer{options: options}
}

// Transform parallelizes the given source. path is used only for
// reporting in the resulting tree.
func (t *Transformer) Transform(source, path string) Result {
	result := Result{}

	// 1. Preprocess, preserving line numbering
	clean := preprocessor.Preprocess(source)

	// 2. Parse into the tree
	p := parser.New(clean)
	prog, errs := p.Parse(path)
	if len(errs) > 0 {
		for _, err := range errs {
			result.Errors = append(result.Errors, Error{
				Message: err.Message,
				Line:    err.Line,
				Column:  err.Column,
			})
		}
		return result
	}

	// 3. Access analysis once per unit, then classification bottom-up
	for _, unit := range prog.Units {
		acc := access.Analyze(unit)
		classify.Unit(unit, acc)
	}
	result.PreFusion = ast.ListAnnotations(prog)

	// 4. Fusion passes
	if t.options.Fuse {
		fusion.Program(prog)
	}
	result.PostFusion = ast.ListAnnotations(prog)

	// 5. Emit
	em := emitter.New(t.options.Config)
	result.Code = em.Program(prog)
	result.Tree = em.Tree(prog)
	result.Program = prog
	result.Stats = collectStats(prog)

	return result
}

func collectStats(prog *ast.Program) Stats {
	stats := Stats{Units: len(prog.Units)}
	for _, unit := range prog.Units {
		ast.WalkStmts(unit.Body, func(s ast.Stmt) bool {
			switch s.(type) {
			case *ast.MapKernel:
				stats.MapKernels++
			case *ast.ReduceKernel:
				stats.ReduceKernels++
			case *ast.SeqLoop:
				stats.SequentialLoops++
			}
			return true
		})
	}
	return stats
}
