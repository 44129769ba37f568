// Package expr implements the boolean expression AST used to describe a
// routing rule's match condition: BoolOp (and/or), FieldOp (comparisons
// against a request field) and UnaryField (bare boolean-field truthiness
// tests). Expressions evaluate against a schema.Request via a Context,
// print to a canonical form that round-trips through the domain/dsl
// parser, support De Morgan inversion, and compile to a closure over a
// SymbolTable for fast repeated evaluation.
package expr

import "github.com/artpar/selector/domain/schema"

// Order selects the relative position of a node's own visit during
// Traverse, matching the three classic tree-walk orders.
type Order int

const (
	PREFIX Order = iota
	INFIX
	POSTFIX
)

// CompiledExpr is a closure produced by Expression.Compile, capturing
// whatever indices/literals it needs from the SymbolTable so repeated
// evaluation against many Contexts avoids re-walking the AST.
type CompiledExpr func(ctx *Context) (bool, error)

// Expression is any node in the AST: a BoolOp, FieldOp, or UnaryField.
type Expression interface {
	// Eval evaluates the expression directly (tree-walking interpreter),
	// resolving field values lazily and memoizing through ctx.
	Eval(ctx *Context) (bool, error)
	// Invert returns the logical negation of this expression. For BoolOp
	// this applies De Morgan's law recursively; for FieldOp/UnaryField it
	// toggles the node's own inv flag.
	Invert() Expression
	// String renders the canonical DSL form of this expression.
	String() string
	// Children returns this node's direct subexpressions (empty for leaves).
	Children() []Expression
	// Precedence is used by BoolOp.String to decide when a child needs
	// parenthesizing.
	Precedence() int
	// Compile produces a closure-based evaluator bound to symbols.
	Compile(symbols *SymbolTable) CompiledExpr
}

// boolNode is implemented by BoolOp and lets Traverse distinguish boolean
// connectives (which recurse into two children) from leaves.
type boolNode interface {
	Expression
	Left() Expression
	Right() Expression
}

// Traverse walks e in the given order, invoking boolOp for each BoolOp
// node visited and fieldOp for each leaf (FieldOp/UnaryField) node
// visited. Either callback may be nil.
func Traverse(e Expression, order Order, boolOp func(Expression), fieldOp func(Expression)) {
	bn, isBool := e.(boolNode)
	visit := func() {
		if isBool {
			if boolOp != nil {
				boolOp(e)
			}
		} else if fieldOp != nil {
			fieldOp(e)
		}
	}

	switch order {
	case PREFIX:
		visit()
		if isBool {
			Traverse(bn.Left(), order, boolOp, fieldOp)
			Traverse(bn.Right(), order, boolOp, fieldOp)
		}
	case INFIX:
		if isBool {
			Traverse(bn.Left(), order, boolOp, fieldOp)
			visit()
			Traverse(bn.Right(), order, boolOp, fieldOp)
		} else {
			visit()
		}
	case POSTFIX:
		if isBool {
			Traverse(bn.Left(), order, boolOp, fieldOp)
			Traverse(bn.Right(), order, boolOp, fieldOp)
		}
		visit()
	}
}

// Context is a single request's evaluation context: it pairs a
// schema.Request with the SymbolTable an expression was compiled against,
// and memoizes field lookups in a slice indexed by symbol index, in
// addition to schema.Request's own by-name memoization. Each access still
// looks the index up in the SymbolTable's map.
type Context struct {
	Request *schema.Request
	Symbols *SymbolTable

	slots []slot
}

type slot struct {
	val      interface{}
	err      error
	resolved bool
}

// NewContext builds a Context for evaluating expressions compiled against
// symbols, over req.
func NewContext(req *schema.Request, symbols *SymbolTable) *Context {
	return &Context{
		Request: req,
		Symbols: symbols,
		slots:   make([]slot, len(symbols.fields)),
	}
}

// FieldValue resolves a field (or, if subfield != "", a dotted subfield)
// by name, memoizing the result against the symbol's slot.
func (c *Context) FieldValue(fieldName, subfield string) (interface{}, error) {
	idx := c.Symbols.internField(fieldName, subfield)
	if idx >= len(c.slots) {
		grown := make([]slot, len(c.Symbols.fields))
		copy(grown, c.slots)
		c.slots = grown
	}
	s := &c.slots[idx]
	if s.resolved {
		return s.val, s.err
	}
	var val interface{}
	var err error
	if subfield == "" {
		val, err = c.Request.Value(fieldName)
	} else {
		val, err = c.Request.SubValue(fieldName, subfield)
	}
	s.val, s.err, s.resolved = val, err, true
	return val, err
}
