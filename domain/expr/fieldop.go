package expr

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/artpar/selector/domain/schema"
)

// CompareOp is the comparison a FieldOp performs between a resolved field
// value and a literal.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpNotEqual
	OpLessThan
	OpLessThanEqual
	OpGreaterThan
	OpGreaterThanEqual
	OpStartsWith
	OpEndsWith
	OpMatch
	OpIn
	OpContains
)

var opNames = map[CompareOp]string{
	OpEqual:           "=",
	OpNotEqual:        "!=",
	OpLessThan:        "<",
	OpLessThanEqual:   "<=",
	OpGreaterThan:     ">",
	OpGreaterThanEqual: ">=",
	OpStartsWith:      "startswith",
	OpEndsWith:        "endswith",
	OpMatch:           "~",
	OpIn:              "in",
	OpContains:        "contains",
}

// defaultOnNull reports the pre-inversion evaluation result for an op
// whose field value resolved to nil, per the null-propagation rules: the
// ordered/string-matching family is false regardless of the literal,
// "!=" is true unless the literal is itself null, and "=" falls out of
// the general equality formula (null == null is true).
func defaultOnNull(op CompareOp, literal interface{}) bool {
	switch op {
	case OpEqual:
		return literal == nil
	case OpNotEqual:
		return literal != nil
	default:
		return false
	}
}

// FieldOp compares a (possibly subfield-addressed) request field against
// a literal. Inv, when true, negates the result, including the
// null-propagation default, so an inverted node always evaluates to the
// opposite of the original.
type FieldOp struct {
	Field    string
	Subfield string
	Op       CompareOp
	Literal  interface{}
	Inv      bool

	// CaseInsensitive applies only to OpMatch (the `~*` suffix form).
	CaseInsensitive bool
}

func (f *FieldOp) Children() []Expression { return nil }
func (f *FieldOp) Precedence() int        { return 100 }

func (f *FieldOp) fieldRepr() string {
	if f.Subfield == "" {
		return f.Field
	}
	return f.Field + "." + f.Subfield
}

func (f *FieldOp) Eval(ctx *Context) (bool, error) {
	val, err := ctx.FieldValue(f.Field, f.Subfield)
	if err != nil {
		return false, err
	}
	var result bool
	if val == nil {
		result = defaultOnNull(f.Op, f.Literal)
	} else {
		result, err = evaluate(f.Op, val, f.Literal, f.CaseInsensitive)
		if err != nil {
			return false, err
		}
	}
	return result != f.Inv, nil
}

func (f *FieldOp) Invert() Expression {
	cp := *f
	cp.Inv = !cp.Inv
	return &cp
}

func (f *FieldOp) String() string {
	name := opNames[f.Op]
	lit := literalString(f.Literal)
	var s string
	switch f.Op {
	case OpMatch:
		op := name
		if f.CaseInsensitive {
			op += "*"
			// The parser prepends "(?i)" for `~*`; print the pattern as written.
			if re, ok := f.Literal.(*regexp.Regexp); ok {
				lit = fmt.Sprintf("%q", strings.TrimPrefix(re.String(), "(?i)"))
			}
		}
		s = fmt.Sprintf("%s %s %s", f.fieldRepr(), op, lit)
	case OpContains:
		// canonical reversed form: "literal" in field
		s = fmt.Sprintf("%s in %s", lit, f.fieldRepr())
	case OpIn:
		s = fmt.Sprintf("%s in %s", f.fieldRepr(), lit)
	default:
		s = fmt.Sprintf("%s %s %s", f.fieldRepr(), name, lit)
	}
	if f.Inv {
		return "!(" + s + ")"
	}
	return s
}

func (f *FieldOp) Compile(symbols *SymbolTable) CompiledExpr {
	symbols.internField(f.Field, f.Subfield)
	field, subfield, op, literal, inv, ci := f.Field, f.Subfield, f.Op, f.Literal, f.Inv, f.CaseInsensitive
	return func(ctx *Context) (bool, error) {
		val, err := ctx.FieldValue(field, subfield)
		if err != nil {
			return false, err
		}
		var result bool
		if val == nil {
			result = defaultOnNull(op, literal)
		} else {
			result, err = evaluate(op, val, literal, ci)
			if err != nil {
				return false, err
			}
		}
		return result != inv, nil
	}
}

// UnaryField is a bare boolean-field truthiness test: `field` means
// "field resolves to true", `!field` means "field resolves to false (or
// null)".
type UnaryField struct {
	Field    string
	Subfield string
	Inv      bool
}

func (u *UnaryField) Children() []Expression { return nil }
func (u *UnaryField) Precedence() int        { return 100 }

func (u *UnaryField) fieldRepr() string {
	if u.Subfield == "" {
		return u.Field
	}
	return u.Field + "." + u.Subfield
}

func (u *UnaryField) Eval(ctx *Context) (bool, error) {
	val, err := ctx.FieldValue(u.Field, u.Subfield)
	if err != nil {
		return false, err
	}
	b, _ := val.(bool)
	return b != u.Inv, nil
}

func (u *UnaryField) Invert() Expression {
	cp := *u
	cp.Inv = !cp.Inv
	return &cp
}

func (u *UnaryField) String() string {
	if u.Inv {
		return "!" + u.fieldRepr()
	}
	return u.fieldRepr()
}

func (u *UnaryField) Compile(symbols *SymbolTable) CompiledExpr {
	symbols.internField(u.Field, u.Subfield)
	field, subfield, inv := u.Field, u.Subfield, u.Inv
	return func(ctx *Context) (bool, error) {
		val, err := ctx.FieldValue(field, subfield)
		if err != nil {
			return false, err
		}
		b, _ := val.(bool)
		return b != inv, nil
	}
}

// evaluate performs the non-null comparison for op between a resolved
// field value and a literal.
func evaluate(op CompareOp, value, literal interface{}, caseInsensitive bool) (bool, error) {
	switch op {
	case OpEqual:
		return valuesEqual(value, literal), nil
	case OpNotEqual:
		return !valuesEqual(value, literal), nil
	case OpLessThan, OpLessThanEqual, OpGreaterThan, OpGreaterThanEqual:
		return compareOrdered(op, value, literal)
	case OpStartsWith:
		s, _ := value.(string)
		lit, _ := literal.(string)
		return strings.HasPrefix(s, lit), nil
	case OpEndsWith:
		s, _ := value.(string)
		lit, _ := literal.(string)
		return strings.HasSuffix(s, lit), nil
	case OpMatch:
		s, _ := value.(string)
		re, _ := literal.(*regexp.Regexp)
		if re == nil {
			return false, nil
		}
		if caseInsensitive {
			return re.MatchString(strings.ToLower(s)), nil
		}
		return re.MatchString(s), nil
	case OpIn:
		return inLiteralSet(value, literal), nil
	case OpContains:
		return containsLiteral(value, literal), nil
	default:
		return false, fmt.Errorf("unknown compare op %d", op)
	}
}

func valuesEqual(value, literal interface{}) bool {
	if value == nil || literal == nil {
		return value == nil && literal == nil
	}
	if vip, ok := value.(schema.IPAddress); ok {
		if lip, ok := literal.(schema.IPAddress); ok {
			return vip.Equal(lip)
		}
		return false
	}
	return value == literal
}

func compareOrdered(op CompareOp, value, literal interface{}) (bool, error) {
	vi, ok1 := toInt(value)
	li, ok2 := toInt(literal)
	if !ok1 || !ok2 {
		return false, fmt.Errorf("cannot order-compare %v and %v", value, literal)
	}
	switch op {
	case OpLessThan:
		return vi < li, nil
	case OpLessThanEqual:
		return vi <= li, nil
	case OpGreaterThan:
		return vi > li, nil
	case OpGreaterThanEqual:
		return vi >= li, nil
	}
	return false, nil
}

func toInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	}
	return 0, false
}

func inLiteralSet(value, literal interface{}) bool {
	switch lit := literal.(type) {
	case []interface{}:
		for _, item := range lit {
			if valuesEqual(value, item) {
				return true
			}
		}
		return false
	case *net.IPNet:
		ip, ok := value.(schema.IPAddress)
		if !ok {
			return false
		}
		return lit.Contains(ip.IP)
	default:
		return false
	}
}

func containsLiteral(value, literal interface{}) bool {
	switch haystack := value.(type) {
	case string:
		needle, _ := literal.(string)
		return strings.Contains(haystack, needle)
	case schema.Hash:
		needle, _ := literal.(string)
		_, ok := haystack[needle]
		return ok
	default:
		return false
	}
}

func literalString(lit interface{}) string {
	switch v := lit.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int:
		return fmt.Sprintf("%d", v)
	case *regexp.Regexp:
		return fmt.Sprintf("%q", v.String())
	case *net.IPNet:
		return fmt.Sprintf("%q", v.String())
	case schema.IPAddress:
		return fmt.Sprintf("%q", v.String())
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = literalString(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}
