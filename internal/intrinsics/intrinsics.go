// Package intrinsics defines the Fortran intrinsic functions the analyzer
// knows about, including the whitelist of associative combining functions
// used by reduction detection.
package intrinsics

import "github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"

// Kind identifies categories of intrinsic functions.
type Kind uint8

const (
	KindNumeric    Kind = iota // abs, sqrt, exp, ...
	KindMinMax                 // min/max family
	KindConversion             // int, float, real, ...
)

// Info describes one intrinsic function.
type Info struct {
	Kind Kind

	// Associative marks functions whose repeated application commutes
	// across iterations, making them legal reduction combiners.
	Associative bool
}

// table holds every known intrinsic, keyed by lower-case name.
var table = map[string]Info{
	// Min/max family. These are the associative reduction combiners.
	"min":   {Kind: KindMinMax, Associative: true},
	"max":   {Kind: KindMinMax, Associative: true},
	"amin1": {Kind: KindMinMax, Associative: true},
	"amax1": {Kind: KindMinMax, Associative: true},
	"min0":  {Kind: KindMinMax},
	"max0":  {Kind: KindMinMax},

	// Numeric functions.
	"abs":   {Kind: KindNumeric},
	"sqrt":  {Kind: KindNumeric},
	"exp":   {Kind: KindNumeric},
	"log":   {Kind: KindNumeric},
	"sin":   {Kind: KindNumeric},
	"cos":   {Kind: KindNumeric},
	"tan":   {Kind: KindNumeric},
	"atan":  {Kind: KindNumeric},
	"atan2": {Kind: KindNumeric},
	"mod":   {Kind: KindNumeric},
	"sign":  {Kind: KindNumeric},

	// Conversions.
	"int":   {Kind: KindConversion},
	"float": {Kind: KindConversion},
	"real":  {Kind: KindConversion},
	"nint":  {Kind: KindConversion},
}

// IsIntrinsic reports whether name is a known intrinsic function.
func IsIntrinsic(name string) bool {
	_, ok := table[name]
	return ok
}

// IsAssociativeFunction reports whether name is a whitelisted associative
// combining function.
func IsAssociativeFunction(name string) bool {
	info, ok := table[name]
	return ok && info.Associative
}

// IsAssociativeOp reports whether op is an associative combining operator.
// Subtraction and division are deliberately excluded; floating-point
// reassociation beyond this set is out of scope.
func IsAssociativeOp(op ast.BinaryOp) bool {
	switch op {
	case ast.OpAdd, ast.OpMul, ast.OpOr:
		return true
	default:
		return false
	}
}

// ContainsAssociativeCall reports whether any call to a whitelisted
// associative function appears in e.
func ContainsAssociativeCall(e ast.Expr) bool {
	found := false
	ast.VisitExprs(e, func(sub ast.Expr) {
		if v, ok := sub.(*ast.VarExpr); ok && len(v.Args) > 0 && IsAssociativeFunction(v.Name) {
			found = true
		}
	})
	return found
}
