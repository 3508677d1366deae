package parser

import (
	"math"
	"strings"
	"unicode"
)

// cursor is the read state of a Lexer. It is copied by value so the last
// advance can be undone by restoring the previous copy.
type cursor struct {
	index  int // next rune to read
	ch     rune
	eof    bool
	row    int
	column int
}

type Lexer struct {
	buffer []rune
	cur    cursor
	prev   cursor
	span   Span
}

func NewLexer(input string) *Lexer {
	l := &Lexer{
		buffer: []rune(input),
	}
	l.next()
	return l
}

func (l *Lexer) next() {
	l.prev = l.cur
	if l.cur.index >= len(l.buffer) {
		l.cur.ch = 0
		l.cur.eof = true
		return
	}

	l.cur.ch = l.buffer[l.cur.index]
	l.cur.index++

	if l.cur.ch == '\n' {
		l.cur.row++
		l.cur.column = 0
	} else {
		l.cur.column++
	}
}

// undo reverts the most recent next. Only one step is remembered.
func (l *Lexer) undo() {
	l.cur = l.prev
}

func (l *Lexer) line() int {
	return l.cur.row + 1
}

func (l *Lexer) isWhitespace() bool {
	switch l.cur.ch {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func (l *Lexer) isIdentifierPart() bool {
	return unicode.IsLetter(l.cur.ch) || l.cur.ch == '_' || l.cur.ch == '-'
}

func (l *Lexer) isDigit() bool {
	return l.cur.ch >= '0' && l.cur.ch <= '9'
}

func (l *Lexer) isQuote() bool {
	return l.cur.ch == '"' || l.cur.ch == '\''
}

// Span returns the position of the token most recently returned by Next.
func (l *Lexer) Span() Span {
	return l.span
}

// Next returns the next token. Once the input is exhausted it keeps
// returning TokenEOF.
func (l *Lexer) Next() (Token, error) {
	// A newline was just read: two leading spaces on the new line open an
	// indented entry.
	if l.cur.column == 0 {
		count := 0
		for i := 0; i < 2; i++ {
			l.next()
			if l.cur.ch == ' ' {
				count++
			} else {
				l.undo()
				break
			}
		}

		if count == 2 {
			l.span = Span{Line: l.line(), Column: 1}
			return Keyword(TokenIndent), nil
		}
	}

	for !l.cur.eof && l.isWhitespace() {
		l.next()
	}

	switch {
	case unicode.IsLetter(l.cur.ch):
		return l.readIdentifier(), nil
	case l.isDigit():
		return l.readNumber()
	case l.isQuote():
		return l.readLiteral()
	case l.cur.eof:
		l.span = Span{Line: l.line(), Column: l.cur.column}
		return Keyword(TokenEOF), nil
	}

	return Token{}, &TokenError{
		Kind:   InvalidToken,
		Text:   string(l.cur.ch),
		Line:   l.line(),
		Column: l.cur.column,
	}
}

func (l *Lexer) readIdentifier() Token {
	span := Span{Line: l.line(), Column: l.cur.column}

	var builder strings.Builder
	builder.WriteRune(l.cur.ch)
	l.next()
	for l.isIdentifierPart() {
		builder.WriteRune(l.cur.ch)
		l.next()
	}

	span.Raw = builder.String()
	l.span = span
	return lookupIdentifier(strings.ToUpper(span.Raw))
}

func (l *Lexer) readNumber() (Token, error) {
	span := Span{Line: l.line(), Column: l.cur.column}

	var digits strings.Builder
	var value uint64
	overflow := false
	for l.isDigit() {
		digits.WriteRune(l.cur.ch)
		if !overflow {
			value = value*10 + uint64(l.cur.ch-'0')
			overflow = value > math.MaxUint32
		}
		l.next()
	}

	if overflow {
		return Token{}, &TokenError{
			Kind:   NumberOverflow,
			Text:   digits.String(),
			Line:   span.Line,
			Column: span.Column,
		}
	}

	l.span = span
	return Number(uint32(value)), nil
}

func (l *Lexer) readLiteral() (Token, error) {
	span := Span{Line: l.line(), Column: l.cur.column}
	separator := l.cur.ch
	escape := false

	var builder strings.Builder
	l.next()
	for !l.cur.eof && (l.cur.ch != separator || escape) {
		if escape {
			builder.WriteRune(unescape(l.cur.ch))
			escape = false
		} else if l.cur.ch == '\\' {
			escape = true
		} else {
			builder.WriteRune(l.cur.ch)
		}
		l.next()
	}

	if l.cur.eof {
		return Token{}, &TokenError{
			Kind:   UnterminatedString,
			Line:   l.line(),
			Column: l.cur.column,
		}
	}

	// closing quote
	l.next()

	l.span = span
	return Literal(builder.String()), nil
}

func unescape(ch rune) rune {
	switch ch {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		// \\, \", \' and unknown escapes yield the rune itself
		return ch
	}
}

// Tokenize lexes the whole input. The result always ends with exactly one
// TokenEOF.
func Tokenize(input string) ([]Token, error) {
	tokens, _, err := TokenizeWithSpans(input)
	return tokens, err
}

// TokenizeWithSpans is Tokenize plus the source span of every token, index
// for index.
func TokenizeWithSpans(input string) ([]Token, []Span, error) {
	l := NewLexer(input)
	var tokens []Token
	var spans []Span

	for {
		tok, err := l.Next()
		if err != nil {
			return nil, nil, err
		}
		tokens = append(tokens, tok)
		spans = append(spans, l.Span())
		if tok.Kind == TokenEOF {
			return tokens, spans, nil
		}
	}
}
