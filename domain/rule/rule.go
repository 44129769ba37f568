// Package rule implements the first-match routing rule list: an ordered
// sequence of expression -> upstream pairs, evaluated top to bottom.
package rule

import (
	"fmt"

	"github.com/artpar/selector/domain/expr"
	"github.com/artpar/selector/domain/schema"
	"github.com/artpar/selector/domain/upstream"
)

// Entry is either a Rule or a CompiledRule: something that can be matched
// against a shared expr.Context and printed back to its canonical text
// form.
type Entry interface {
	Expression() expr.Expression
	Upstream() *upstream.Upstream
	MatchContext(ctx *expr.Context) (*upstream.Upstream, error)
	String() string
}

func entryEqual(a, b Entry) bool {
	return a.Expression().String() == b.Expression().String() && a.Upstream().Equal(b.Upstream())
}

// Rule is an uncompiled expression -> upstream pair. Each Match call walks
// the expression tree directly against a freshly built context.
type Rule struct {
	Expr expr.Expression
	Up   *upstream.Upstream
}

// NewRule builds a Rule from an already-parsed expression and upstream.
func NewRule(e expr.Expression, u *upstream.Upstream) *Rule {
	return &Rule{Expr: e, Up: u}
}

func (r *Rule) Expression() expr.Expression   { return r.Expr }
func (r *Rule) Upstream() *upstream.Upstream  { return r.Up }

func (r *Rule) MatchContext(ctx *expr.Context) (*upstream.Upstream, error) {
	ok, err := r.Expr.Eval(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return r.Up, nil
}

// Match evaluates the rule against a single request, building an ephemeral
// context and symbol table — the uncompiled, interpreted evaluation mode.
func (r *Rule) Match(req *schema.Request) (*upstream.Upstream, error) {
	ctx := expr.NewContext(req, expr.NewSymbolTable())
	return r.MatchContext(ctx)
}

func (r *Rule) String() string {
	return fmt.Sprintf("%s => %s", r.Expr.String(), r.Up.String())
}

// Compile produces a CompiledRule sharing symbols, so that field
// resolution memoizes across every rule in a Rules list evaluated against
// the same request.
func (r *Rule) Compile(symbols *expr.SymbolTable) *CompiledRule {
	return NewCompiledRule(r.Expr, r.Up, symbols)
}

// CompiledRule is a Rule paired with a closure compiled against a shared
// SymbolTable, avoiding the tree-walk on every Eval.
type CompiledRule struct {
	Expr     expr.Expression
	Up       *upstream.Upstream
	Symbols  *expr.SymbolTable
	compiled expr.CompiledExpr
}

// NewCompiledRule compiles e against symbols, allocating a fresh
// SymbolTable if symbols is nil.
func NewCompiledRule(e expr.Expression, u *upstream.Upstream, symbols *expr.SymbolTable) *CompiledRule {
	if symbols == nil {
		symbols = expr.NewSymbolTable()
	}
	return &CompiledRule{
		Expr:     e,
		Up:       u,
		Symbols:  symbols,
		compiled: e.Compile(symbols),
	}
}

func (c *CompiledRule) Expression() expr.Expression  { return c.Expr }
func (c *CompiledRule) Upstream() *upstream.Upstream { return c.Up }

func (c *CompiledRule) MatchContext(ctx *expr.Context) (*upstream.Upstream, error) {
	ok, err := c.compiled(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return c.Up, nil
}

// Match evaluates the compiled rule against a single request, building a
// context against this rule's own symbol table.
func (c *CompiledRule) Match(req *schema.Request) (*upstream.Upstream, error) {
	ctx := expr.NewContext(req, c.Symbols)
	return c.MatchContext(ctx)
}

func (c *CompiledRule) String() string {
	return fmt.Sprintf("%s => %s", c.Expr.String(), c.Up.String())
}

// Uncompiled returns the plain Rule backing this CompiledRule.
func (c *CompiledRule) Uncompiled() *Rule {
	return &Rule{Expr: c.Expr, Up: c.Up}
}
