package schema

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ComputeRegistry compiles and caches expr-lang programs backing
// user-registered computed fields, so the same expression string is only
// ever compiled once regardless of how many requests evaluate it.
//
// This mirrors app.TransformService's cache map[string]*vm.Program guarded
// by a sync.RWMutex in the gateway this engine's ambient stack is modeled
// on, generalized from response/header transforms to request-schema field
// resolvers.
type ComputeRegistry struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewComputeRegistry returns an empty registry.
func NewComputeRegistry() *ComputeRegistry {
	return &ComputeRegistry{cache: make(map[string]*vm.Program)}
}

func (c *ComputeRegistry) getOrCompile(expression string) (*vm.Program, error) {
	c.mu.RLock()
	p, ok := c.cache[expression]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.cache[expression]; ok {
		return p, nil
	}
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compile computed field %q: %w", expression, err)
	}
	c.cache[expression] = program
	return program, nil
}

// Computed registers a Field whose value is derived by evaluating an
// expr-lang expression against the already-resolved values of deps. The
// expression env exposes each dependency under its field name.
func (c *ComputeRegistry) Computed(name string, kind Kind, deps []string, expression string) *Field {
	return &Field{
		Name: name,
		Kind: kind,
		Resolve: func(r *Request) (interface{}, error) {
			program, err := c.getOrCompile(expression)
			if err != nil {
				return nil, err
			}
			env := make(map[string]interface{}, len(deps))
			for _, dep := range deps {
				v, err := r.Value(dep)
				if err != nil {
					return nil, err
				}
				env[dep] = v
			}
			return expr.Run(program, env)
		},
	}
}
