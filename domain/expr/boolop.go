package expr

import "fmt"

// And is the boolean conjunction of two expressions, short-circuiting on
// a false left-hand side.
type And struct {
	LHS, RHS Expression
}

// Or is the boolean disjunction of two expressions, short-circuiting on a
// true left-hand side.
type Or struct {
	LHS, RHS Expression
}

const (
	precedenceOr  = 5
	precedenceAnd = 10
)

func (a *And) Left() Expression  { return a.LHS }
func (a *And) Right() Expression { return a.RHS }
func (o *Or) Left() Expression   { return o.LHS }
func (o *Or) Right() Expression  { return o.RHS }

func (a *And) Precedence() int { return precedenceAnd }
func (o *Or) Precedence() int  { return precedenceOr }

func (a *And) Children() []Expression { return []Expression{a.LHS, a.RHS} }
func (o *Or) Children() []Expression  { return []Expression{o.LHS, o.RHS} }

func (a *And) Eval(ctx *Context) (bool, error) {
	lv, err := a.LHS.Eval(ctx)
	if err != nil || !lv {
		return false, err
	}
	return a.RHS.Eval(ctx)
}

func (o *Or) Eval(ctx *Context) (bool, error) {
	lv, err := o.LHS.Eval(ctx)
	if err != nil || lv {
		return lv, err
	}
	return o.RHS.Eval(ctx)
}

// Invert applies De Morgan's law: !(a && b) == !a || !b, !(a || b) == !a && !b.
func (a *And) Invert() Expression {
	return &Or{LHS: a.LHS.Invert(), RHS: a.RHS.Invert()}
}

func (o *Or) Invert() Expression {
	return &And{LHS: o.LHS.Invert(), RHS: o.RHS.Invert()}
}

func boolOpString(name string, self Expression, lhs, rhs Expression) string {
	l := lhs.String()
	if lhs.Precedence() < self.Precedence() {
		l = "(" + l + ")"
	}
	r := rhs.String()
	if rhs.Precedence() < self.Precedence() {
		r = "(" + r + ")"
	}
	return fmt.Sprintf("%s %s %s", l, name, r)
}

func (a *And) String() string { return boolOpString("and", a, a.LHS, a.RHS) }
func (o *Or) String() string  { return boolOpString("or", o, o.LHS, o.RHS) }

func (a *And) Compile(symbols *SymbolTable) CompiledExpr {
	l := a.LHS.Compile(symbols)
	r := a.RHS.Compile(symbols)
	return func(ctx *Context) (bool, error) {
		lv, err := l(ctx)
		if err != nil || !lv {
			return false, err
		}
		return r(ctx)
	}
}

func (o *Or) Compile(symbols *SymbolTable) CompiledExpr {
	l := o.LHS.Compile(symbols)
	r := o.RHS.Compile(symbols)
	return func(ctx *Context) (bool, error) {
		lv, err := l(ctx)
		if err != nil || lv {
			return lv, err
		}
		return r(ctx)
	}
}

// And_ combines one or more expressions with And, left-to-right.
func And_(exprs ...Expression) Expression {
	return reduce(exprs, func(l, r Expression) Expression { return &And{LHS: l, RHS: r} })
}

// Or_ combines one or more expressions with Or, left-to-right.
func Or_(exprs ...Expression) Expression {
	return reduce(exprs, func(l, r Expression) Expression { return &Or{LHS: l, RHS: r} })
}

// Not_ returns the logical negation of e.
func Not_(e Expression) Expression {
	return e.Invert()
}

func reduce(exprs []Expression, combine func(l, r Expression) Expression) Expression {
	if len(exprs) == 0 {
		return nil
	}
	acc := exprs[0]
	for _, e := range exprs[1:] {
		acc = combine(acc, e)
	}
	return acc
}
