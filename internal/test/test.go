// Package test provides testing utilities for the parallelizer, with
// helper functions for assertions, diffs, and parsed fixtures.
package test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/parser"
	"github.com/KombuchaShroomz/AutoParallel-Fortran/internal/preprocessor"
)

// AssertEqual checks if two values are equal and reports a test error if not.
func AssertEqual[T comparable](t *testing.T, actual, expected T) {
	t.Helper()
	if actual != expected {
		t.Errorf("\nexpected: %v\nactual:   %v", expected, actual)
	}
}

// AssertEqualWithDiff checks if two strings are equal and shows a diff if not.
func AssertEqualWithDiff(t *testing.T, actual, expected string) {
	t.Helper()
	if actual != expected {
		t.Errorf("\n%s", Diff(expected, actual))
	}
}

// Diff produces a line-by-line diff between two strings with +/- prefixes.
func Diff(expected, actual string) string {
	expectedLines := strings.Split(expected, "\n")
	actualLines := strings.Split(actual, "\n")

	var result strings.Builder
	result.WriteString("--- expected\n+++ actual\n")

	maxLines := len(expectedLines)
	if len(actualLines) > maxLines {
		maxLines = len(actualLines)
	}

	for i := 0; i < maxLines; i++ {
		var expLine, actLine string
		if i < len(expectedLines) {
			expLine = expectedLines[i]
		}
		if i < len(actualLines) {
			actLine = actualLines[i]
		}

		if expLine != actLine {
			if i < len(expectedLines) {
				result.WriteString(fmt.Sprintf("-%s\n", expLine))
			}
			if i < len(actualLines) {
				result.WriteString(fmt.Sprintf("+%s\n", actLine))
			}
		} else {
			result.WriteString(fmt.Sprintf(" %s\n", expLine))
		}
	}

	return result.String()
}

// ParseProgram preprocesses and parses source, failing the test on any
// parse error.
func ParseProgram(t *testing.T, source string) *ast.Program {
	t.Helper()
	p := parser.New(preprocessor.Preprocess(source))
	prog, errs := p.Parse("<test>")
	for _, err := range errs {
		t.Errorf("parse error: %v", err)
	}
	if len(errs) > 0 {
		t.FailNow()
	}
	return prog
}

// ParseUnit parses source and returns its first program unit.
func ParseUnit(t *testing.T, source string) *ast.ProgramUnit {
	t.Helper()
	prog := ParseProgram(t, source)
	if len(prog.Units) == 0 {
		t.Fatal("no program units parsed")
	}
	return prog.Units[0]
}

// FirstLoop returns the first do loop found in the unit's body.
func FirstLoop(t *testing.T, unit *ast.ProgramUnit) *ast.ForStmt {
	t.Helper()
	var loop *ast.ForStmt
	ast.WalkStmts(unit.Body, func(s ast.Stmt) bool {
		if loop != nil {
			return false
		}
		if f, ok := s.(*ast.ForStmt); ok {
			loop = f
			return false
		}
		return true
	})
	if loop == nil {
		t.Fatal("no do loop found")
	}
	return loop
}
