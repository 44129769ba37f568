package schema

import (
	"encoding/base64"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/artpar/selector/domain/rumperr"
)

// IPAddress wraps net.IP to give it a canonical String() form and equality
// independent of the 4-byte/16-byte representation net.IP otherwise mixes.
type IPAddress struct {
	net.IP
}

// ParseIPAddress parses a dotted-quad or IPv6 literal.
func ParseIPAddress(s string) (IPAddress, bool) {
	ip := net.ParseIP(s)
	if ip == nil {
		return IPAddress{}, false
	}
	return IPAddress{ip}, true
}

func (a IPAddress) String() string {
	if a.IP == nil {
		return ""
	}
	return a.IP.String()
}

// Equal reports whether two IPAddress values denote the same address.
func (a IPAddress) Equal(b IPAddress) bool {
	return a.IP.Equal(b.IP)
}

// BasicAuthorization is the decoded form of an "Authorization: Basic ..."
// header.
type BasicAuthorization struct {
	Username string
	Password string
}

// NewRequestSchema builds the canonical built-in request schema: the exact
// field set, defaults and resolver semantics of a WSGI-style environment.
func NewRequestSchema() *Schema {
	s := New()

	s.Register(&Field{Name: "method", Kind: KindString, Resolve: envString("REQUEST_METHOD")})
	s.Register(&Field{Name: "path", Kind: KindString, Resolve: envString("PATH_INFO")})
	s.Register(&Field{Name: "query_string", Kind: KindString, Resolve: envString("QUERY_STRING")})

	s.Register(&Field{Name: "query", Kind: KindArgumentHash, Resolve: resolveQuery})

	s.Register(&Field{Name: "content_type", Kind: KindString, Nullable: true, Resolve: envString("CONTENT_TYPE")})
	s.Register(&Field{Name: "content_length", Kind: KindInt, Nullable: true, Resolve: resolveContentLength})

	s.Register(&Field{Name: "headers", Kind: KindHeaderHash, Resolve: resolveHeaders})

	s.Register(&Field{Name: "host", Kind: KindString, Resolve: envString("HTTP_HOST")})

	s.Register(&Field{Name: "authenticated", Kind: KindBool, Resolve: resolveAuthenticated})

	s.Register(&Field{Name: "basic_authorization", Kind: KindNamedTuple, Nullable: true, Resolve: resolveBasicAuthorization})
	s.Register(&Field{Name: "username", Kind: KindString, Nullable: true, Resolve: resolveUsername})
	s.Register(&Field{Name: "password", Kind: KindString, Nullable: true, Resolve: resolvePassword})

	s.Register(&Field{Name: "client_ip4", Kind: KindIPAddress, Nullable: true, Resolve: resolveClientIP4})

	s.Register(&Field{Name: "has_content", Kind: KindBool, Resolve: resolveHasContent})
	s.Register(&Field{Name: "content", Kind: KindString, Nullable: true, Resolve: resolveContent})

	return s
}

func resolveQuery(r *Request) (interface{}, error) {
	qs, err := r.Value("query_string")
	if err != nil {
		return nil, err
	}
	s, _ := qs.(string)
	if s == "" {
		return Hash{}, nil
	}
	values, err := url.ParseQuery(s)
	if err != nil {
		return nil, &rumperr.InvalidFieldError{Field: "query", Value: s, Err: err}
	}
	h := make(Hash, len(values))
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		// last value wins, matching urlparse.parse_qs's last-occurrence semantics
		h[k] = vs[len(vs)-1]
	}
	return h, nil
}

func resolveContentLength(r *Request) (interface{}, error) {
	v, ok := r.Env["CONTENT_LENGTH"]
	if !ok || v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case string:
		if t == "" {
			return nil, nil
		}
		n, err := strconv.Atoi(t)
		if err != nil {
			return nil, &rumperr.InvalidFieldError{Field: "content_length", Value: t, Err: err}
		}
		return n, nil
	default:
		return nil, nil
	}
}

func resolveHeaders(r *Request) (interface{}, error) {
	h := make(Hash)
	for k, v := range r.Env {
		if !strings.HasPrefix(k, "HTTP_") {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		name := strings.ToLower(k[len("HTTP_"):])
		h[name] = s
	}
	return h, nil
}

func resolveAuthenticated(r *Request) (interface{}, error) {
	v, ok := r.Env["HTTP_AUTHORIZATION"]
	if !ok || v == nil {
		return false, nil
	}
	s, ok := v.(string)
	return ok && s != "", nil
}

func resolveBasicAuthorization(r *Request) (interface{}, error) {
	v, ok := r.Env["HTTP_AUTHORIZATION"]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "Basic ") {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, "Basic "))
	if err != nil {
		return nil, nil
	}
	user, pass, found := strings.Cut(string(decoded), ":")
	if !found {
		return nil, nil
	}
	return &BasicAuthorization{Username: user, Password: pass}, nil
}

func resolveUsername(r *Request) (interface{}, error) {
	v, err := r.Value("basic_authorization")
	if err != nil || v == nil {
		return nil, err
	}
	return v.(*BasicAuthorization).Username, nil
}

func resolvePassword(r *Request) (interface{}, error) {
	v, err := r.Value("basic_authorization")
	if err != nil || v == nil {
		return nil, err
	}
	return v.(*BasicAuthorization).Password, nil
}

func resolveClientIP4(r *Request) (interface{}, error) {
	v, ok := r.Env["REMOTE_ADDR"]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil, nil
	}
	ip, ok := ParseIPAddress(s)
	if !ok {
		return nil, &rumperr.InvalidFieldError{Field: "client_ip4", Value: s, Err: errBadIP}
	}
	return ip, nil
}

var errBadIP = badIPErr{}

type badIPErr struct{}

func (badIPErr) Error() string { return "not a valid IP address" }

func resolveHasContent(r *Request) (interface{}, error) {
	ct, err := r.Value("content_type")
	if err != nil {
		return nil, err
	}
	if ct == nil {
		return false, nil
	}
	cl, err := r.Value("content_length")
	if err != nil {
		return nil, err
	}
	if cl == nil {
		return false, nil
	}
	n, _ := cl.(int)
	return n != 0, nil
}

func resolveContent(r *Request) (interface{}, error) {
	hc, err := r.Value("has_content")
	if err != nil {
		return nil, err
	}
	has, _ := hc.(bool)
	if !has {
		return nil, nil
	}
	cl, err := r.Value("content_length")
	if err != nil {
		return nil, err
	}
	n, _ := cl.(int)
	if n <= 0 {
		return "", nil
	}
	readFn := envReader("wsgi.input")
	rd, ok := readFn(r)
	if !ok {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return nil, &rumperr.InvalidFieldError{Field: "content", Value: n, Err: err}
	}
	return string(buf), nil
}
