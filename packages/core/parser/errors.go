package parser

import "fmt"

type TokenErrorKind int

const (
	UnterminatedString TokenErrorKind = iota
	InvalidToken
	NumberOverflow
)

func (k TokenErrorKind) String() string {
	switch k {
	case UnterminatedString:
		return "unterminated string"
	case InvalidToken:
		return "invalid token"
	case NumberOverflow:
		return "number overflow"
	default:
		return "unknown"
	}
}

// TokenError is a lexical error. Text holds the offending input for
// InvalidToken and NumberOverflow.
type TokenError struct {
	Kind   TokenErrorKind
	Text   string
	Line   int
	Column int
}

func (e *TokenError) Error() string {
	if e.Text != "" {
		return fmt.Sprintf("%s %q at line %d, column %d", e.Kind, e.Text, e.Line, e.Column)
	}
	return fmt.Sprintf("%s at line %d, column %d", e.Kind, e.Line, e.Column)
}

// ParseError is a syntactic error. Two parse errors are equal under
// errors.Is when their messages are equal.
type ParseError struct {
	Message string
	Index   int
	File    string
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	switch {
	case e.File != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	case e.File != "":
		return e.File + ": parse error: " + e.Message
	default:
		return "parse error: " + e.Message
	}
}

func (e *ParseError) Is(target error) bool {
	t, ok := target.(*ParseError)
	if !ok {
		return false
	}
	return t.Message == e.Message
}

var (
	ErrExpectedTestName     = &ParseError{Message: "expected test name"}
	ErrExpectedEndpointName = &ParseError{Message: "expected endpoint name"}
	ErrNoTestDefinition     = &ParseError{Message: "no test definition found"}
	ErrExpectedMethod       = &ParseError{Message: "expected http method"}
	ErrExpectedHeaderName   = &ParseError{Message: "expected header name"}
	ErrExpectedHeaderValue  = &ParseError{Message: "expected header value"}
	ErrExpectedHeaderLine   = &ParseError{Message: "expected indented header line"}
	ErrExpectedBodyLiteral  = &ParseError{Message: "expected body literal"}
	ErrExpectedQuery        = &ParseError{Message: "expected query string"}
	ErrExpectedTimeout      = &ParseError{Message: "expected timeout value"}
	ErrTimeoutRange         = &ParseError{Message: "timeout out of range"}
	ErrExpectedStatusCode   = &ParseError{Message: "expected status code"}
	ErrStatusCodeRange      = &ParseError{Message: "status code out of range"}
	ErrExpectedBodyMatcher  = &ParseError{Message: "expected contains or equals"}
	ErrExpectedExpectation  = &ParseError{Message: "expected status or body expectation"}
)
