package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	body := `{"name": "ada"}`
	query := "page=2"
	timeout := uint16(2500)

	def := NewTestDefinition()
	def.Endpoint = "{{baseUrl}}/users"
	def.Method = MethodPost
	def.Query = &query
	def.Headers = []HeaderNode{{Key: "Content-Type", Value: "application/json"}}
	def.Body = &body
	def.Timeout = &timeout
	def.Expect = []ExpectNode{StatusExpectation(201), BodyContainsExpectation(`"id"`)}

	file := &TestFile{Tests: []*ASTNode{
		{Kind: NodeTestDefinition, Name: "Create user", Definition: def},
		{Kind: NodeTestDefinition, Name: "Health", Definition: &TestDefinition{Endpoint: "/health", Method: MethodNone}},
	}}

	expected := `test "Create user"
endpoint "{{baseUrl}}/users"
method POST
query "page=2"
headers
  Content-Type "application/json"
body "{\"name\": \"ada\"}"
timeout 2500
expect
  status 201
  body contains "\"id\""

test "Health"
endpoint "/health"
`
	assert.Equal(t, expected, Format(file))
}

func TestFormat_RoundTrip(t *testing.T) {
	source := `test "Everything"
endpoint 'http://localhost/a?b=1'
method patch
headers
  Accept "text/plain"
  Accept "application/json"
  X-Retry 3
body 'line one
	"quoted" \\ done'
query "x=1"
timeout 100
expect
  status 204
  body equals ''
  body contains "tab\there"

test "Empty"

test "Method only"
delete
`
	original, err := ParseSource(source, "")
	require.NoError(t, err)

	printed := Format(original)
	reparsed, err := ParseSource(printed, "")
	require.NoError(t, err)

	require.Len(t, reparsed.Tests, len(original.Tests))
	for i := range original.Tests {
		assert.Equal(t, original.Tests[i].Name, reparsed.Tests[i].Name)
		assert.Equal(t, original.Tests[i].Definition, reparsed.Tests[i].Definition)
	}

	assert.Equal(t, printed, Format(reparsed))
}

func TestFormat_Empty(t *testing.T) {
	assert.Empty(t, Format(&TestFile{}))
}

func TestIsHeaderName(t *testing.T) {
	tests := []struct {
		key      string
		expected bool
	}{
		{"Content-Type", true},
		{"x_api_key", true},
		{"Accept", true},
		{"Method", true},
		{"", false},
		{"X-B3-TraceId1", false},
		{"-Leading", false},
		{"Body", false},
		{"status", false},
		{"Has Space", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsHeaderName(tt.key))
		})
	}
}
