package parser

import (
	"strconv"
	"strings"
)

// Format prints f in canonical form. Parsing the output yields the same
// tests, provided every header key is a valid header name.
func Format(f *TestFile) string {
	var b strings.Builder
	for i, node := range f.Tests {
		if i > 0 {
			b.WriteByte('\n')
		}
		formatTest(&b, node)
	}
	return b.String()
}

func formatTest(b *strings.Builder, node *ASTNode) {
	def := node.Definition
	if def == nil {
		def = NewTestDefinition()
	}

	line(b, "test", quote(node.Name))
	if def.Endpoint != "" {
		line(b, "endpoint", quote(def.Endpoint))
	}
	if def.Method != MethodNone && def.Method != MethodUnknown {
		line(b, "method", def.Method.String())
	}
	if def.Query != nil {
		line(b, "query", quote(*def.Query))
	}
	if len(def.Headers) > 0 {
		b.WriteString("headers\n")
		for _, h := range def.Headers {
			line(b, "  "+h.Key, quote(h.Value))
		}
	}
	if def.Body != nil {
		line(b, "body", quote(*def.Body))
	}
	if def.Timeout != nil {
		line(b, "timeout", strconv.Itoa(int(*def.Timeout)))
	}
	if len(def.Expect) > 0 {
		b.WriteString("expect\n")
		for _, e := range def.Expect {
			switch e.Kind {
			case ExpectStatus:
				line(b, "  status", strconv.Itoa(int(e.Status)))
			case ExpectBody:
				line(b, "  body "+e.Body.Match.String(), quote(e.Body.Value))
			}
		}
	}
}

func line(b *strings.Builder, keyword, operand string) {
	b.WriteString(keyword)
	b.WriteByte(' ')
	b.WriteString(operand)
	b.WriteByte('\n')
}

// quote writes s as a double-quoted literal using only the escapes the
// lexer decodes.
func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// IsHeaderName reports whether key can be written as a header name: an
// identifier of letters, '_' and '-' that is not a keyword.
func IsHeaderName(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && r != '_' && r != '-' {
			return false
		}
	}
	return lookupIdentifier(strings.ToUpper(key)).Kind == TokenItem
}
