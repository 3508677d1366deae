package parser

import (
	"fmt"
	"os"
	"strconv"
)

type blockKind int

const (
	blockNone blockKind = iota
	blockHeaders
	blockExpect
)

type ParserOption func(*Parser)

// WithSpans attaches the spans returned by TokenizeWithSpans so parse
// errors and nodes carry source positions and header keys keep their
// original spelling.
func WithSpans(spans []Span) ParserOption {
	return func(p *Parser) {
		p.spans = spans
	}
}

func WithFilename(name string) ParserOption {
	return func(p *Parser) {
		p.file = name
	}
}

type Parser struct {
	tokens []Token
	spans  []Span
	file   string

	pos     int
	block   blockKind
	current *ASTNode
}

func NewParser(tokens []Token, opts ...ParserOption) *Parser {
	p := &Parser{
		tokens: tokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile reads, lexes and parses a test file.
func ParseFile(path string) (*TestFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseSource(string(content), path)
}

func ParseSource(input, filename string) (*TestFile, error) {
	tokens, spans, err := TokenizeWithSpans(input)
	if err != nil {
		if filename != "" {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		return nil, err
	}
	return NewParser(tokens, WithSpans(spans), WithFilename(filename)).Parse()
}

func Parse(tokens []Token) (*TestFile, error) {
	return NewParser(tokens).Parse()
}

func (p *Parser) peek() (Token, bool) {
	if p.pos >= len(p.tokens) {
		return Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *Parser) advance() (Token, bool) {
	tok, ok := p.peek()
	if ok {
		p.pos++
	}
	return tok, ok
}

// Parse consumes the whole token slice. The parser can be reused; every
// call starts from the first token.
func (p *Parser) Parse() (*TestFile, error) {
	p.pos = 0
	p.block = blockNone
	p.current = nil

	file := &TestFile{Path: p.file}

	for {
		start := p.pos
		tok, ok := p.advance()
		if !ok {
			break
		}

		open := p.block
		if tok.Kind != TokenIndent {
			p.block = blockNone
		}

		var err error
		switch tok.Kind {
		case TokenTest:
			err = p.parseTest(file, start)
		case TokenEndpoint:
			err = p.parseEndpoint(start)
		case TokenMethod:
			err = p.setMethod(start, tok.Method)
		case TokenHeaders:
			err = p.openBlock(start, blockHeaders)
		case TokenExpect:
			err = p.openBlock(start, blockExpect)
		case TokenBody:
			err = p.parseBody(start)
		case TokenIndent:
			err = p.parseIndented()
		case TokenItem:
			if open == blockHeaders && !isSoftKeyword(tok.Text) {
				// a header line that lost its indentation, e.g. after a
				// blank line or a CRLF line ending
				err = p.errorf(start, "%s", ErrExpectedHeaderLine.Message)
				break
			}
			err = p.parseSoftKeyword(start, tok.Text)
		case TokenStatus, TokenContains, TokenEquals:
			err = p.errorf(start, "unexpected %s outside expect block", tok.Kind)
		default:
			// Dedent, stray literals and numbers, EOF
		}
		if err != nil {
			return nil, err
		}
	}

	if p.current != nil {
		file.Tests = append(file.Tests, p.current)
	}
	return file, nil
}

func (p *Parser) parseTest(file *TestFile, start int) error {
	name, err := p.expectLiteral(ErrExpectedTestName)
	if err != nil {
		return err
	}

	if p.current != nil {
		file.Tests = append(file.Tests, p.current)
	}
	p.current = &ASTNode{
		Kind:       NodeTestDefinition,
		Name:       name,
		Definition: NewTestDefinition(),
		Line:       p.lineAt(start),
	}
	return nil
}

func (p *Parser) parseEndpoint(start int) error {
	endpoint, err := p.expectLiteral(ErrExpectedEndpointName)
	if err != nil {
		return err
	}
	def, err := p.definition(start)
	if err != nil {
		return err
	}
	def.Endpoint = endpoint
	return nil
}

func (p *Parser) setMethod(start int, m HTTPMethod) error {
	def, err := p.definition(start)
	if err != nil {
		return err
	}
	def.Method = m
	return nil
}

func (p *Parser) openBlock(start int, kind blockKind) error {
	if _, err := p.definition(start); err != nil {
		return err
	}
	p.block = kind
	return nil
}

func (p *Parser) parseBody(start int) error {
	body, err := p.expectLiteral(ErrExpectedBodyLiteral)
	if err != nil {
		return err
	}
	def, err := p.definition(start)
	if err != nil {
		return err
	}
	def.Body = &body
	return nil
}

// parseSoftKeyword handles identifiers that only act as keywords at the
// start of a top-level line. Anything else is ignored.
func (p *Parser) parseSoftKeyword(start int, word string) error {
	switch word {
	case "METHOD":
		tok, ok := p.peek()
		if !ok || tok.Kind != TokenMethod {
			return p.fail(ErrExpectedMethod)
		}
		p.pos++
		return p.setMethod(start, tok.Method)

	case "QUERY":
		query, err := p.expectLiteral(ErrExpectedQuery)
		if err != nil {
			return err
		}
		def, err := p.definition(start)
		if err != nil {
			return err
		}
		def.Query = &query

	case "TIMEOUT":
		ms, err := p.expectUint16(ErrExpectedTimeout, ErrTimeoutRange)
		if err != nil {
			return err
		}
		def, err := p.definition(start)
		if err != nil {
			return err
		}
		def.Timeout = &ms
	}
	return nil
}

func isSoftKeyword(word string) bool {
	switch word {
	case "METHOD", "QUERY", "TIMEOUT":
		return true
	}
	return false
}

func (p *Parser) parseIndented() error {
	switch p.block {
	case blockHeaders:
		return p.parseHeaderLine()
	case blockExpect:
		return p.parseExpectLine()
	default:
		return nil
	}
}

func (p *Parser) parseHeaderLine() error {
	keyIndex := p.pos
	tok, ok := p.peek()
	if !ok || tok.Kind != TokenItem {
		return p.fail(ErrExpectedHeaderName)
	}
	p.pos++

	key := tok.Text
	if keyIndex < len(p.spans) && p.spans[keyIndex].Raw != "" {
		key = p.spans[keyIndex].Raw
	}

	tok, ok = p.peek()
	if !ok {
		return p.fail(ErrExpectedHeaderValue)
	}
	var value string
	switch tok.Kind {
	case TokenLiteral:
		value = tok.Text
	case TokenNumber:
		value = strconv.FormatUint(uint64(tok.Number), 10)
	default:
		return p.fail(ErrExpectedHeaderValue)
	}
	p.pos++

	p.current.Definition.Headers = append(p.current.Definition.Headers, HeaderNode{Key: key, Value: value})
	return nil
}

func (p *Parser) parseExpectLine() error {
	tok, ok := p.peek()
	if !ok {
		return p.fail(ErrExpectedExpectation)
	}

	def := p.current.Definition
	switch tok.Kind {
	case TokenStatus:
		p.pos++
		code, err := p.expectUint16(ErrExpectedStatusCode, ErrStatusCodeRange)
		if err != nil {
			return err
		}
		def.Expect = append(def.Expect, StatusExpectation(code))

	case TokenBody:
		p.pos++
		matcher, ok := p.peek()
		if !ok || (matcher.Kind != TokenContains && matcher.Kind != TokenEquals) {
			return p.fail(ErrExpectedBodyMatcher)
		}
		p.pos++
		value, err := p.expectLiteral(ErrExpectedBodyLiteral)
		if err != nil {
			return err
		}
		if matcher.Kind == TokenContains {
			def.Expect = append(def.Expect, BodyContainsExpectation(value))
		} else {
			def.Expect = append(def.Expect, BodyEqualsExpectation(value))
		}

	default:
		return p.fail(ErrExpectedExpectation)
	}
	return nil
}

// definition returns the test under construction. start is the index of
// the keyword that needs it.
func (p *Parser) definition(start int) (*TestDefinition, error) {
	if p.current == nil {
		return nil, p.errorf(start, "%s", ErrNoTestDefinition.Message)
	}
	return p.current.Definition, nil
}

func (p *Parser) expectLiteral(sentinel *ParseError) (string, error) {
	tok, ok := p.peek()
	if !ok || tok.Kind != TokenLiteral {
		return "", p.fail(sentinel)
	}
	p.pos++
	return tok.Text, nil
}

func (p *Parser) expectUint16(missing, outOfRange *ParseError) (uint16, error) {
	tok, ok := p.peek()
	if !ok || tok.Kind != TokenNumber {
		return 0, p.fail(missing)
	}
	if tok.Number > 0xFFFF {
		return 0, p.fail(outOfRange)
	}
	p.pos++
	return uint16(tok.Number), nil
}

// fail reports sentinel at the token under the cursor, or at the last token
// when the stream is exhausted.
func (p *Parser) fail(sentinel *ParseError) *ParseError {
	index := p.pos
	if index >= len(p.tokens) && len(p.tokens) > 0 {
		index = len(p.tokens) - 1
	}
	return p.errorf(index, "%s", sentinel.Message)
}

func (p *Parser) errorf(index int, format string, args ...any) *ParseError {
	err := &ParseError{
		Message: fmt.Sprintf(format, args...),
		Index:   index,
		File:    p.file,
	}
	if index >= 0 && index < len(p.spans) {
		err.Line = p.spans[index].Line
		err.Column = p.spans[index].Column
	}
	return err
}

func (p *Parser) lineAt(index int) int {
	if index < len(p.spans) {
		return p.spans[index].Line
	}
	return 0
}
