package schema

import (
	"strings"
	"testing"
)

func newEnv(overrides map[string]interface{}) map[string]interface{} {
	env := map[string]interface{}{
		"REQUEST_METHOD": "GET",
		"PATH_INFO":      "/foo",
		"QUERY_STRING":   "",
		"HTTP_HOST":      "example.com",
		"REMOTE_ADDR":    "10.0.0.1",
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

func TestBuiltinFieldsBasic(t *testing.T) {
	s := NewRequestSchema()
	req := NewRequest(newEnv(nil), s)

	if v, err := req.Value("method"); err != nil || v != "GET" {
		t.Fatalf("method = %v, %v", v, err)
	}
	if v, err := req.Value("path"); err != nil || v != "/foo" {
		t.Fatalf("path = %v, %v", v, err)
	}
	if v, err := req.Value("host"); err != nil || v != "example.com" {
		t.Fatalf("host = %v, %v", v, err)
	}
}

func TestQueryLastValueWins(t *testing.T) {
	s := NewRequestSchema()
	req := NewRequest(newEnv(map[string]interface{}{"QUERY_STRING": "a=1&a=2&b=3"}), s)

	v, err := req.SubValue("query", "a")
	if err != nil {
		t.Fatal(err)
	}
	if v != "2" {
		t.Fatalf("query.a = %v, want 2 (last wins)", v)
	}
	v, err = req.SubValue("query", "b")
	if err != nil || v != "3" {
		t.Fatalf("query.b = %v, %v", v, err)
	}
	v, err = req.SubValue("query", "missing")
	if err != nil || v != nil {
		t.Fatalf("query.missing = %v, %v want nil", v, err)
	}
}

func TestHeadersLowercasedNoSeparatorConversion(t *testing.T) {
	s := NewRequestSchema()
	req := NewRequest(newEnv(map[string]interface{}{"HTTP_USER_AGENT": "curl/8.0"}), s)

	v, err := req.SubValue("headers", "user_agent")
	if err != nil || v != "curl/8.0" {
		t.Fatalf("headers.user_agent = %v, %v", v, err)
	}
}

func TestHeadersRegexSubfield(t *testing.T) {
	s := NewRequestSchema()
	req := NewRequest(newEnv(map[string]interface{}{"HTTP_X_TEST": "v123"}), s)

	v, err := req.SubValue("headers", "x_test")
	if err != nil || v != "v123" {
		t.Fatalf("headers.x_test = %v, %v", v, err)
	}
}

func TestAuthenticatedAndBasicAuth(t *testing.T) {
	s := NewRequestSchema()
	creds := "dXNlcjpwYXNz" // base64("user:pass")
	req := NewRequest(newEnv(map[string]interface{}{"HTTP_AUTHORIZATION": "Basic " + creds}), s)

	v, err := req.Value("authenticated")
	if err != nil || v != true {
		t.Fatalf("authenticated = %v, %v", v, err)
	}
	u, err := req.Value("username")
	if err != nil || u != "user" {
		t.Fatalf("username = %v, %v", u, err)
	}
	p, err := req.Value("password")
	if err != nil || p != "pass" {
		t.Fatalf("password = %v, %v", p, err)
	}
}

func TestAuthenticatedFalseWithoutHeader(t *testing.T) {
	s := NewRequestSchema()
	req := NewRequest(newEnv(nil), s)

	v, err := req.Value("authenticated")
	if err != nil || v != false {
		t.Fatalf("authenticated = %v, %v want false", v, err)
	}
	u, err := req.Value("username")
	if err != nil || u != nil {
		t.Fatalf("username = %v, %v want nil", u, err)
	}
}

func TestHasContentAndContent(t *testing.T) {
	s := NewRequestSchema()
	body := "hello"
	req := NewRequest(newEnv(map[string]interface{}{
		"CONTENT_TYPE":   "text/plain",
		"CONTENT_LENGTH": "5",
		"wsgi.input":     strings.NewReader(body),
	}), s)

	hc, err := req.Value("has_content")
	if err != nil || hc != true {
		t.Fatalf("has_content = %v, %v", hc, err)
	}
	c, err := req.Value("content")
	if err != nil || c != body {
		t.Fatalf("content = %q, %v", c, err)
	}
}

func TestHasContentFalseWhenZeroLength(t *testing.T) {
	s := NewRequestSchema()
	req := NewRequest(newEnv(map[string]interface{}{
		"CONTENT_TYPE":   "text/plain",
		"CONTENT_LENGTH": "0",
	}), s)

	hc, err := req.Value("has_content")
	if err != nil || hc != false {
		t.Fatalf("has_content = %v, %v want false", hc, err)
	}
}

func TestFieldMemoizedOnce(t *testing.T) {
	calls := 0
	s := New()
	s.Register(&Field{
		Name: "counter",
		Kind: KindInt,
		Resolve: func(r *Request) (interface{}, error) {
			calls++
			return calls, nil
		},
	})
	req := NewRequest(map[string]interface{}{}, s)

	v1, _ := req.Value("counter")
	v2, _ := req.Value("counter")
	if v1 != v2 {
		t.Fatalf("expected memoized value, got %v then %v", v1, v2)
	}
	if calls != 1 {
		t.Fatalf("resolver called %d times, want 1", calls)
	}
}

func TestFieldMemoizesNilToo(t *testing.T) {
	calls := 0
	s := New()
	s.Register(&Field{
		Name:     "maybe",
		Kind:     KindString,
		Nullable: true,
		Resolve: func(r *Request) (interface{}, error) {
			calls++
			return nil, nil
		},
	})
	req := NewRequest(map[string]interface{}{}, s)

	req.Value("maybe")
	req.Value("maybe")
	if calls != 1 {
		t.Fatalf("resolver called %d times, want 1 (nil must still be cached)", calls)
	}
}

func TestClientIP4Parses(t *testing.T) {
	s := NewRequestSchema()
	req := NewRequest(newEnv(nil), s)

	v, err := req.Value("client_ip4")
	if err != nil {
		t.Fatal(err)
	}
	ip, ok := v.(IPAddress)
	if !ok || ip.String() != "10.0.0.1" {
		t.Fatalf("client_ip4 = %v", v)
	}
}
