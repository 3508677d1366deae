package curl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
)

func TestParse_SimpleGet(t *testing.T) {
	converter := NewConverter()

	parsed, err := converter.Parse(`curl https://api.example.com/users`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Method != "GET" {
		t.Errorf("expected method GET, got %s", parsed.Method)
	}
	if parsed.URL != "https://api.example.com/users" {
		t.Errorf("expected URL https://api.example.com/users, got %s", parsed.URL)
	}
	if parsed.Name != "get users" {
		t.Errorf("expected name %q, got %q", "get users", parsed.Name)
	}
}

func TestParse_PostWithData(t *testing.T) {
	converter := NewConverter()

	parsed, err := converter.Parse(`curl -X PUT https://api.example.com/users/1 -d '{"name":"John"}'`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Method != "PUT" {
		t.Errorf("expected explicit method PUT to survive -d, got %s", parsed.Method)
	}
	if parsed.Body != `{"name":"John"}` {
		t.Errorf("expected body {\"name\":\"John\"}, got %s", parsed.Body)
	}
}

func TestParse_WithHeaders(t *testing.T) {
	converter := NewConverter()

	parsed, err := converter.Parse(`curl -H "Accept: text/plain" -H "Accept: application/json" -A agent https://api.example.com/users`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []Header{
		{Key: "Accept", Value: "text/plain"},
		{Key: "Accept", Value: "application/json"},
		{Key: "User-Agent", Value: "agent"},
	}
	if len(parsed.Headers) != len(expected) {
		t.Fatalf("expected %d headers, got %d", len(expected), len(parsed.Headers))
	}
	for i, h := range expected {
		if parsed.Headers[i] != h {
			t.Errorf("header %d: expected %v, got %v", i, h, parsed.Headers[i])
		}
	}
}

func TestParse_ImplicitPost(t *testing.T) {
	parsed, err := NewConverter().Parse(`curl -d "name=John" https://api.example.com/users`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if parsed.Method != "POST" {
		t.Errorf("expected implicit POST method, got %s", parsed.Method)
	}
}

func TestParse_Flags(t *testing.T) {
	parsed, err := NewConverter().Parse(`curl -k -L -I https://api.example.com`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !parsed.Insecure {
		t.Error("expected Insecure to be true")
	}
	if !parsed.FollowRedirects {
		t.Error("expected FollowRedirects to be true")
	}
	if parsed.Method != "HEAD" {
		t.Errorf("expected HEAD, got %s", parsed.Method)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []string{
		`curl`,
		`curl -X`,
		`curl -H "Accept: x"`,
	}

	for _, cmd := range tests {
		if _, err := NewConverter().Parse(cmd); err == nil {
			t.Errorf("Parse(%q): expected error", cmd)
		}
	}
}

func TestToTest(t *testing.T) {
	var warnings []string
	converter := NewConverter(
		WithExpectStatus(201),
		WithWarnFunc(func(format string, args ...any) {
			warnings = append(warnings, fmt.Sprintf(format, args...))
		}),
	)

	parsed := &ParsedCurl{
		Method: "POST",
		URL:    "https://api.example.com/users?notify=true",
		Headers: []Header{
			{Key: "Content-Type", Value: "application/json"},
			{Key: "X-B3-TraceId", Value: "abc"},
		},
		Body:      `{"name":"John"}`,
		BasicAuth: "admin:secret",
		Insecure:  true,
		Name:      "post users",
	}

	node := converter.ToTest(parsed)
	def := node.Definition

	if node.Name != "post users" {
		t.Errorf("unexpected name %q", node.Name)
	}
	if def.Endpoint != "https://api.example.com/users" {
		t.Errorf("unexpected endpoint %q", def.Endpoint)
	}
	if def.Query == nil || *def.Query != "notify=true" {
		t.Errorf("expected query notify=true, got %v", def.Query)
	}
	if def.Method != parser.MethodPost {
		t.Errorf("expected POST, got %s", def.Method)
	}
	if len(def.Headers) != 2 {
		t.Fatalf("expected 2 headers, got %v", def.Headers)
	}
	if def.Headers[0].Value != "Basic YWRtaW46c2VjcmV0" {
		t.Errorf("unexpected Authorization %q", def.Headers[0].Value)
	}
	if def.Body == nil || *def.Body != `{"name":"John"}` {
		t.Errorf("unexpected body %v", def.Body)
	}
	if len(def.Expect) != 1 || def.Expect[0].Status != 201 {
		t.Errorf("expected status 201 expectation, got %v", def.Expect)
	}
	if len(warnings) != 2 {
		t.Errorf("expected 2 warnings, got %v", warnings)
	}
}

func TestToTest_DefaultsLeaveMethodUnset(t *testing.T) {
	node := NewConverter().ToTest(&ParsedCurl{Method: "GET", URL: "https://x.io/a", Name: "get a"})

	if node.Definition.Method != parser.MethodNone {
		t.Errorf("expected no method, got %s", node.Definition.Method)
	}
	if len(node.Definition.Expect) != 0 {
		t.Errorf("expected no expectations, got %v", node.Definition.Expect)
	}
}

func TestConvertCommand(t *testing.T) {
	converter := NewConverter(WithExpectStatus(200))

	result, err := converter.ConvertCommand(`curl -X POST -H "Content-Type: application/json" -d '{"name":"John"}' https://api.example.com/users`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `test "post users"
endpoint "https://api.example.com/users"
method POST
headers
  Content-Type "application/json"
body "{\"name\":\"John\"}"
expect
  status 200
`
	if result != expected {
		t.Errorf("unexpected output:\n%s", result)
	}

	file, err := parser.ParseSource(result, "")
	if err != nil {
		t.Fatalf("generated text does not parse: %v", err)
	}
	if len(file.Tests) != 1 || file.Tests[0].Definition.Endpoint != "https://api.example.com/users" {
		t.Errorf("unexpected parse result %+v", file.Tests)
	}
}

func TestConvertFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.sh")
	content := `# smoke tests
curl https://api.example.com/health

curl -X DELETE \
  -H "Authorization: Bearer t" \
  https://api.example.com/users/7
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := NewConverter().ConvertFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	file, err := parser.ParseSource(result, "")
	if err != nil {
		t.Fatalf("generated text does not parse: %v", err)
	}
	if len(file.Tests) != 2 {
		t.Fatalf("expected 2 tests, got %d", len(file.Tests))
	}
	if file.Tests[1].Name != "delete users 7" {
		t.Errorf("unexpected name %q", file.Tests[1].Name)
	}
	if file.Tests[1].Definition.Method != parser.MethodDelete {
		t.Errorf("expected DELETE, got %s", file.Tests[1].Definition.Method)
	}
	if !strings.Contains(result, `Authorization "Bearer t"`) {
		t.Errorf("expected Authorization header in output:\n%s", result)
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{
			input:    `-X POST -d "hello world"`,
			expected: []string{"-X", "POST", "-d", "hello world"},
		},
		{
			input:    `-H 'Content-Type: application/json'`,
			expected: []string{"-H", "Content-Type: application/json"},
		},
		{
			input:    `-d '{"key": "value"}'`,
			expected: []string{"-d", `{"key": "value"}`},
		},
		{
			input:    `-d 'a\nb'`,
			expected: []string{"-d", `a\nb`},
		},
	}

	for _, tt := range tests {
		tokens := tokenize(tt.input)
		if len(tokens) != len(tt.expected) {
			t.Errorf("tokenize(%q): got %d tokens, expected %d", tt.input, len(tokens), len(tt.expected))
			continue
		}
		for i, tok := range tokens {
			if tok != tt.expected[i] {
				t.Errorf("tokenize(%q)[%d]: got %q, expected %q", tt.input, i, tok, tt.expected[i])
			}
		}
	}
}

func TestGenerateName(t *testing.T) {
	tests := []struct {
		url    string
		method string
		expect string
	}{
		{"https://api.example.com/users", "GET", "get users"},
		{"https://api.example.com/users/123", "GET", "get users 123"},
		{"https://api.example.com/", "POST", "post root"},
		{"https://api.example.com/api/v1/user-roles", "PUT", "put api v1 user roles"},
		{"{{baseUrl}}/orders?page=1", "GET", "get orders"},
	}

	for _, tt := range tests {
		result := generateName(tt.url, tt.method)
		if result != tt.expect {
			t.Errorf("generateName(%q, %q): got %q, expected %q", tt.url, tt.method, result, tt.expect)
		}
	}
}
