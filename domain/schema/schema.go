// Package schema defines the typed field system used to describe the shape
// of an inbound request and to resolve field values out of a WSGI-style
// environment map.
package schema

import (
	"fmt"
	"sync"

	"github.com/artpar/selector/domain/rumperr"
)

// Kind is the semantic type of a Field, used to classify which DSL grammar
// bucket a field belongs to.
type Kind int

const (
	KindBool Kind = iota
	KindString
	KindInt
	KindIPAddress
	// KindStringHash is the generic map[string]string kind; HeaderHash and
	// ArgumentHash are both StringHash specializations. All three support
	// dotted subfield access in the DSL.
	KindStringHash
	KindHeaderHash
	KindArgumentHash
	// KindNamedTuple fields are not themselves addressable in the DSL grammar
	// (field_exprs expands them into their member fields instead); they
	// exist so Request resolvers can share a computed intermediate value.
	KindNamedTuple
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindString:
		return "str"
	case KindInt:
		return "int"
	case KindIPAddress:
		return "IPAddress"
	case KindStringHash:
		return "StringHash"
	case KindHeaderHash:
		return "HeaderHash"
	case KindArgumentHash:
		return "ArgumentHash"
	case KindNamedTuple:
		return "NamedTuple"
	default:
		return "unknown"
	}
}

// IsHash reports whether values of this kind support dotted subfield access.
func (k Kind) IsHash() bool {
	return k == KindStringHash || k == KindHeaderHash || k == KindArgumentHash
}

// Resolver computes a field's value from a request. It returns (nil, nil)
// for a field that is legitimately absent (e.g. no Authorization header).
type Resolver func(req *Request) (interface{}, error)

// Field is one addressable member of a Schema.
type Field struct {
	Name     string
	Kind     Kind
	Nullable bool
	Resolve  Resolver
}

// Schema is an ordered, name-indexed collection of Fields. Request
// instances are built against a single Schema.
type Schema struct {
	mu     sync.RWMutex
	order  []string
	fields map[string]*Field
}

// New returns an empty Schema.
func New() *Schema {
	return &Schema{fields: make(map[string]*Field)}
}

// Register adds f to the schema. Registering a field under a name that
// already exists replaces it in place (order is preserved).
func (s *Schema) Register(f *Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.fields[f.Name]; !exists {
		s.order = append(s.order, f.Name)
	}
	s.fields[f.Name] = f
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (*Field, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns all registered fields in registration order.
func (s *Schema) Fields() []*Field {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// MustField looks up a field by name, panicking if absent. Used for
// wiring built-in schemas where a lookup failure is a programming error.
func (s *Schema) MustField(name string) *Field {
	f, ok := s.Field(name)
	if !ok {
		panic(fmt.Sprintf("schema: field %q not registered", name))
	}
	return f
}

// RequireField looks up a field by name, returning a MissingFieldError if
// absent. Used by the DSL parser, where an unknown field name is user input.
func (s *Schema) RequireField(name string) (*Field, error) {
	f, ok := s.Field(name)
	if !ok {
		return nil, &rumperr.MissingFieldError{Field: name}
	}
	return f, nil
}
