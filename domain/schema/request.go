package schema

import (
	"io"
	"sync"

	"github.com/artpar/selector/domain/rumperr"
)

// Hash is the value type produced by StringHash/HeaderHash/ArgumentHash
// fields: a simple string-keyed map supporting dotted subfield access from
// the DSL (e.g. `headers.x_test`, `query.token`).
type Hash map[string]string

// Get returns the member value, or nil if absent — matching the original
// field descriptor's "dict with attribute access that returns None on a
// missing key" behaviour rather than raising.
func (h Hash) Get(member string) interface{} {
	if h == nil {
		return nil
	}
	v, ok := h[member]
	if !ok {
		return nil
	}
	return v
}

// Request is a single inbound request described against a Schema. Env
// holds the raw WSGI-style environment (string keys like "REQUEST_METHOD",
// "HTTP_HOST", a "wsgi.input" io.Reader, etc); Schema fields resolve their
// values lazily out of Env the first time they are accessed and the
// result — including a nil result — is cached for the lifetime of the
// Request.
type Request struct {
	Env    map[string]interface{}
	Schema *Schema

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	val interface{}
	err error
}

// NewRequest builds a Request over env, resolved against schema.
func NewRequest(env map[string]interface{}, schema *Schema) *Request {
	return &Request{
		Env:    env,
		Schema: schema,
		cache:  make(map[string]cacheEntry),
	}
}

// Value resolves and memoizes a top-level field by name.
func (r *Request) Value(name string) (interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.cache[name]; ok {
		return e.val, e.err
	}

	f, ok := r.Schema.Field(name)
	if !ok {
		e := cacheEntry{nil, &rumperr.MissingFieldError{Field: name}}
		r.cache[name] = e
		return e.val, e.err
	}

	val, err := f.Resolve(r)
	r.cache[name] = cacheEntry{val, err}
	return val, err
}

// SubValue resolves a dotted subfield (e.g. field="headers", member="host")
// by first resolving the parent field, then indexing into its Hash value.
// A nil parent value yields a nil subfield value without error, matching
// FieldOp's null-propagation semantics.
func (r *Request) SubValue(name, member string) (interface{}, error) {
	val, err := r.Value(name)
	if err != nil || val == nil {
		return nil, err
	}
	h, ok := val.(Hash)
	if !ok {
		return nil, &rumperr.InvalidFieldError{Field: name, Value: val, Err: errNotHash}
	}
	return h.Get(member), nil
}

var errNotHash = notHashErr{}

type notHashErr struct{}

func (notHashErr) Error() string { return "field is not subfield-addressable" }

// Env helpers used by built-in resolvers.

func envString(key string) Resolver {
	return func(r *Request) (interface{}, error) {
		v, ok := r.Env[key]
		if !ok || v == nil {
			return nil, nil
		}
		s, ok := v.(string)
		if !ok {
			return nil, nil
		}
		return s, nil
	}
}

func envReader(key string) func(r *Request) (io.Reader, bool) {
	return func(r *Request) (io.Reader, bool) {
		v, ok := r.Env[key]
		if !ok || v == nil {
			return nil, false
		}
		rd, ok := v.(io.Reader)
		return rd, ok
	}
}
