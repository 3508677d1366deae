package parser

import "strconv"

type TokenKind int

const (
	TokenTest TokenKind = iota
	TokenEndpoint
	TokenMethod

	TokenHeaders

	TokenExpect
	TokenBody
	TokenStatus

	TokenContains
	TokenEquals

	TokenIndent
	// TokenDedent is reserved; the lexer never emits it.
	TokenDedent
	TokenLiteral
	TokenNumber

	// TokenItem is any identifier that is not a keyword.
	TokenItem

	TokenEOF
)

func (k TokenKind) String() string {
	switch k {
	case TokenTest:
		return "TEST"
	case TokenEndpoint:
		return "ENDPOINT"
	case TokenMethod:
		return "METHOD"
	case TokenHeaders:
		return "HEADERS"
	case TokenExpect:
		return "EXPECT"
	case TokenBody:
		return "BODY"
	case TokenStatus:
		return "STATUS"
	case TokenContains:
		return "CONTAINS"
	case TokenEquals:
		return "EQUALS"
	case TokenIndent:
		return "INDENT"
	case TokenDedent:
		return "DEDENT"
	case TokenLiteral:
		return "LITERAL"
	case TokenNumber:
		return "NUMBER"
	case TokenItem:
		return "ITEM"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

type HTTPMethod int

const (
	MethodUnknown HTTPMethod = iota
	MethodGet
	MethodPost
	MethodPut
	MethodDelete
	MethodPatch
	MethodOptions
	MethodHead
	// MethodNone marks a test that never declared a method.
	MethodNone
)

func (m HTTPMethod) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	case MethodPatch:
		return "PATCH"
	case MethodOptions:
		return "OPTIONS"
	case MethodHead:
		return "HEAD"
	case MethodNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// Token is a lexed value. Tokens carry no position; see Span.
type Token struct {
	Kind   TokenKind
	Method HTTPMethod
	Text   string
	Number uint32
}

func Keyword(kind TokenKind) Token {
	return Token{Kind: kind}
}

func Method(m HTTPMethod) Token {
	return Token{Kind: TokenMethod, Method: m}
}

func Literal(s string) Token {
	return Token{Kind: TokenLiteral, Text: s}
}

func Number(n uint32) Token {
	return Token{Kind: TokenNumber, Number: n}
}

func Item(s string) Token {
	return Token{Kind: TokenItem, Text: s}
}

func (t Token) String() string {
	switch t.Kind {
	case TokenMethod:
		return "METHOD(" + t.Method.String() + ")"
	case TokenLiteral:
		return "LITERAL(" + strconv.Quote(t.Text) + ")"
	case TokenNumber:
		return "NUMBER(" + strconv.FormatUint(uint64(t.Number), 10) + ")"
	case TokenItem:
		return "ITEM(" + t.Text + ")"
	default:
		return t.Kind.String()
	}
}

// Span locates a token in the source. Raw is the verbatim spelling of
// identifiers and is empty for other tokens.
type Span struct {
	Line   int
	Column int
	Raw    string
}

var keywords = map[string]Token{
	"TEST":     Keyword(TokenTest),
	"ENDPOINT": Keyword(TokenEndpoint),

	"GET":     Method(MethodGet),
	"POST":    Method(MethodPost),
	"PUT":     Method(MethodPut),
	"DELETE":  Method(MethodDelete),
	"PATCH":   Method(MethodPatch),
	"OPTIONS": Method(MethodOptions),
	"HEAD":    Method(MethodHead),

	"HEADERS": Keyword(TokenHeaders),
	"EXPECT":  Keyword(TokenExpect),
	"BODY":    Keyword(TokenBody),
	"STATUS":  Keyword(TokenStatus),

	"CONTAINS": Keyword(TokenContains),
	"EQUALS":   Keyword(TokenEquals),
}

func lookupIdentifier(upper string) Token {
	if tok, ok := keywords[upper]; ok {
		return tok
	}
	return Item(upper)
}
