package expr

import (
	"testing"

	"github.com/artpar/selector/domain/schema"
)

func newCtx(env map[string]interface{}) (*Context, *SymbolTable) {
	s := schema.New()
	s.Register(&schema.Field{
		Name: "method",
		Kind: schema.KindString,
		Resolve: func(r *schema.Request) (interface{}, error) {
			v, _ := r.Env["method"].(string)
			return v, nil
		},
	})
	s.Register(&schema.Field{
		Name: "enabled",
		Kind: schema.KindBool,
		Resolve: func(r *schema.Request) (interface{}, error) {
			v, _ := r.Env["enabled"].(bool)
			return v, nil
		},
	})
	req := schema.NewRequest(env, s)
	symbols := NewSymbolTable()
	return NewContext(req, symbols), symbols
}

func TestFieldOpEqual(t *testing.T) {
	ctx, _ := newCtx(map[string]interface{}{"method": "GET"})
	f := &FieldOp{Field: "method", Op: OpEqual, Literal: "GET"}
	ok, err := f.Eval(ctx)
	if err != nil || !ok {
		t.Fatalf("got %v, %v", ok, err)
	}
}

func TestFieldOpInvertInvolution(t *testing.T) {
	f := &FieldOp{Field: "method", Op: OpEqual, Literal: "GET"}
	inv := f.Invert()
	back := inv.Invert()
	if back.String() != f.String() {
		t.Fatalf("invert is not involutive: %s vs %s", back.String(), f.String())
	}
	ctx, _ := newCtx(map[string]interface{}{"method": "GET"})
	v1, _ := f.Eval(ctx)
	ctx2, _ := newCtx(map[string]interface{}{"method": "GET"})
	v2, _ := inv.Eval(ctx2)
	if v1 == v2 {
		t.Fatalf("inverted expression should evaluate oppositely")
	}
}

func TestDeMorgan(t *testing.T) {
	a := &FieldOp{Field: "method", Op: OpEqual, Literal: "GET"}
	b := &UnaryField{Field: "enabled"}

	and := &And{LHS: a, RHS: b}
	inverted := and.Invert()

	or, ok := inverted.(*Or)
	if !ok {
		t.Fatalf("invert of And must be Or, got %T", inverted)
	}
	if or.LHS.String() != a.Invert().String() || or.RHS.String() != b.Invert().String() {
		t.Fatalf("De Morgan children not inverted correctly: %s", inverted.String())
	}

	// Truth table cross-check across all four combinations.
	for _, methodVal := range []string{"GET", "POST"} {
		for _, enabledVal := range []bool{true, false} {
			ctx, _ := newCtx(map[string]interface{}{"method": methodVal, "enabled": enabledVal})
			andVal, _ := and.Eval(ctx)
			ctx2, _ := newCtx(map[string]interface{}{"method": methodVal, "enabled": enabledVal})
			invVal, _ := inverted.Eval(ctx2)
			if andVal == invVal {
				t.Fatalf("De Morgan failed for method=%s enabled=%v: and=%v inverted=%v", methodVal, enabledVal, andVal, invVal)
			}
		}
	}
}

func TestFieldMemoizedOncePerContext(t *testing.T) {
	calls := 0
	s := schema.New()
	s.Register(&schema.Field{
		Name: "counter",
		Kind: schema.KindInt,
		Resolve: func(r *schema.Request) (interface{}, error) {
			calls++
			return 1, nil
		},
	})
	req := schema.NewRequest(map[string]interface{}{}, s)
	symbols := NewSymbolTable()
	ctx := NewContext(req, symbols)

	f := &UnaryField{Field: "counter"}
	f.Eval(ctx)
	f.Eval(ctx)
	if calls != 1 {
		t.Fatalf("resolver called %d times, want 1", calls)
	}
}

func TestCompileMatchesEval(t *testing.T) {
	a := &FieldOp{Field: "method", Op: OpEqual, Literal: "GET"}
	b := &UnaryField{Field: "enabled"}
	and := &And{LHS: a, RHS: b}

	symbols := NewSymbolTable()
	compiled := and.Compile(symbols)

	s := schema.New()
	s.Register(&schema.Field{
		Name: "method",
		Kind: schema.KindString,
		Resolve: func(r *schema.Request) (interface{}, error) {
			v, _ := r.Env["method"].(string)
			return v, nil
		},
	})
	s.Register(&schema.Field{
		Name: "enabled",
		Kind: schema.KindBool,
		Resolve: func(r *schema.Request) (interface{}, error) {
			v, _ := r.Env["enabled"].(bool)
			return v, nil
		},
	})
	req := schema.NewRequest(map[string]interface{}{"method": "GET", "enabled": true}, s)
	ctx := NewContext(req, symbols)

	evalResult, err := and.Eval(ctx)
	if err != nil {
		t.Fatal(err)
	}
	ctx2 := NewContext(req, symbols)
	compiledResult, err := compiled(ctx2)
	if err != nil {
		t.Fatal(err)
	}
	if evalResult != compiledResult {
		t.Fatalf("compile/eval mismatch: %v vs %v", evalResult, compiledResult)
	}
}

func TestTraverseOrders(t *testing.T) {
	a := &FieldOp{Field: "a", Op: OpEqual, Literal: 1}
	b := &FieldOp{Field: "b", Op: OpEqual, Literal: 2}
	and := &And{LHS: a, RHS: b}

	var visited []string
	Traverse(and, PREFIX, func(e Expression) { visited = append(visited, "bool") }, func(e Expression) { visited = append(visited, "field") })
	want := []string{"bool", "field", "field"}
	if len(visited) != len(want) {
		t.Fatalf("got %v", visited)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Fatalf("got %v, want %v", visited, want)
		}
	}
}
