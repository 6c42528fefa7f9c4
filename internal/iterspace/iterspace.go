// Package iterspace constant-folds integer loop-bound expressions and
// enumerates concrete iteration tuples for nested loops.
//
// Folding is deliberately narrow: integer literals, names bound in the
// environment, and integer arithmetic over them. Anything else is
// "unknown", which empties the affected loop level rather than erroring.
package iterspace

import "github.com/KombuchaShroomz/AutoParallel-Fortran/internal/ast"

// Env binds iterator names to concrete integer values during folding.
type Env map[string]int64

// Clone copies the environment.
func (env Env) Clone() Env {
	out := make(Env, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// Eval constant-folds e under env. The second result is false when the
// expression cannot be folded to an integer.
func Eval(e ast.Expr, env Env) (int64, bool) {
	switch x := e.(type) {
	case *ast.IntLit:
		return x.Value, true

	case *ast.VarExpr:
		if x.Name == "mod" && len(x.Args) == 2 {
			l, ok := Eval(x.Args[0], env)
			if !ok {
				return 0, false
			}
			r, ok := Eval(x.Args[1], env)
			if !ok || r == 0 {
				return 0, false
			}
			return l % r, true
		}
		if !x.IsPlain() {
			return 0, false
		}
		v, ok := env[x.Name]
		return v, ok

	case *ast.UnaryExpr:
		if x.Op != ast.UnaryNeg {
			return 0, false
		}
		v, ok := Eval(x.Operand, env)
		if !ok {
			return 0, false
		}
		return -v, true

	case *ast.BinaryExpr:
		l, ok := Eval(x.Left, env)
		if !ok {
			return 0, false
		}
		r, ok := Eval(x.Right, env)
		if !ok {
			return 0, false
		}
		switch x.Op {
		case ast.OpAdd:
			return l + r, true
		case ast.OpSub:
			return l - r, true
		case ast.OpMul:
			return l * r, true
		case ast.OpDiv:
			if r == 0 {
				return 0, false
			}
			return l / r, true
		case ast.OpPow:
			return intPow(l, r)
		}
		return 0, false

	default:
		return 0, false
	}
}

func intPow(base, exp int64) (int64, bool) {
	if exp < 0 {
		return 0, false
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		result *= base
	}
	return result, true
}

// ----------------------------------------------------------------------------
// Iteration Table
// ----------------------------------------------------------------------------

// Table maps concrete iterator values to the sub-table for the next nest
// level. A present key with an empty sub-table is a reachable, fully
// bound iteration tuple.
type Table map[int64]Table

// Build enumerates the iteration space of loopVars, outermost first.
// The table is built one level at a time because inner bounds may
// reference outer iterator values. An unevaluable bound yields an empty
// range at that level.
func Build(loopVars []ast.LoopVar) Table {
	return build(loopVars, Env{})
}

func build(loopVars []ast.LoopVar, env Env) Table {
	table := make(Table)
	if len(loopVars) == 0 {
		return table
	}
	lv := loopVars[0]
	for _, value := range Range(lv, env) {
		inner := env.Clone()
		inner[lv.Name] = value
		table[value] = build(loopVars[1:], inner)
	}
	return table
}

// Range returns the concrete values an iterator takes under env, or nil
// when any bound cannot be folded.
func Range(lv ast.LoopVar, env Env) []int64 {
	start, ok := Eval(lv.Start, env)
	if !ok {
		return nil
	}
	end, ok := Eval(lv.End, env)
	if !ok {
		return nil
	}
	step := int64(1)
	if lv.Step != nil {
		step, ok = Eval(lv.Step, env)
		if !ok || step == 0 {
			return nil
		}
	}

	var values []int64
	if step > 0 {
		for v := start; v <= end; v += step {
			values = append(values, v)
		}
	} else {
		for v := start; v >= end; v += step {
			values = append(values, v)
		}
	}
	return values
}

// Empty reports whether the table enumerates no tuples.
func (t Table) Empty() bool {
	return len(t) == 0
}

// Contains reports whether the concrete tuple is reachable.
func (t Table) Contains(tuple []int64) bool {
	if len(tuple) == 0 {
		return true
	}
	sub, ok := t[tuple[0]]
	if !ok {
		return false
	}
	return sub.Contains(tuple[1:])
}

// Tuples flattens the table into every reachable iteration tuple.
func (t Table) Tuples() [][]int64 {
	if len(t) == 0 {
		return nil
	}
	var out [][]int64
	for value, sub := range t {
		inner := sub.Tuples()
		if inner == nil {
			out = append(out, []int64{value})
			continue
		}
		for _, rest := range inner {
			tuple := append([]int64{value}, rest...)
			out = append(out, tuple)
		}
	}
	return out
}

// Size counts the reachable tuples.
func (t Table) Size() int {
	if len(t) == 0 {
		return 0
	}
	total := 0
	for _, sub := range t {
		if len(sub) == 0 {
			total++
		} else {
			total += sub.Size()
		}
	}
	return total
}
