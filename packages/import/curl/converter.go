// Package curl converts curl commands into apitest tests.
package curl

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
)

var (
	urlPathPattern = regexp.MustCompile(`https?://[^/]+(/[^?#]*)?`)
	nonWordPattern = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// Converter converts curl commands to apitest tests.
type Converter struct {
	expectStatus uint16
	warn         func(format string, args ...any)
}

// Option is a functional option for Converter.
type Option func(*Converter)

// WithExpectStatus adds a status expectation to every generated test. Zero
// leaves tests without expectations, so any 2xx response passes.
func WithExpectStatus(code uint16) Option {
	return func(c *Converter) {
		c.expectStatus = code
	}
}

// WithWarnFunc receives notes about parts of a command that cannot be
// expressed in a test file.
func WithWarnFunc(fn func(format string, args ...any)) Option {
	return func(c *Converter) {
		c.warn = fn
	}
}

func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		warn: func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Header struct {
	Key   string
	Value string
}

// ParsedCurl represents a parsed curl command.
type ParsedCurl struct {
	Method          string
	URL             string
	Headers         []Header
	Body            string
	BasicAuth       string
	Insecure        bool
	FollowRedirects bool
	Name            string
}

// ConvertCommand converts a single curl command to test file text.
func (c *Converter) ConvertCommand(curlCmd string) (string, error) {
	parsed, err := c.Parse(curlCmd)
	if err != nil {
		return "", err
	}
	return parser.Format(&parser.TestFile{Tests: []*parser.ASTNode{c.ToTest(parsed)}}), nil
}

// ConvertFile converts a file containing curl commands, one per line or
// continued with a trailing backslash.
func (c *Converter) ConvertFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	tf, err := c.ConvertReader(file)
	if err != nil {
		return "", err
	}
	tf.Path = path
	return parser.Format(tf), nil
}

// ConvertReader reads curl commands from r and returns one test per command.
func (c *Converter) ConvertReader(r io.Reader) (*parser.TestFile, error) {
	var commands []string
	var current strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasSuffix(line, "\\") {
			current.WriteString(strings.TrimSuffix(line, "\\"))
			current.WriteString(" ")
			continue
		}

		current.WriteString(line)
		commands = append(commands, current.String())
		current.Reset()
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read commands: %w", err)
	}
	if current.Len() > 0 {
		commands = append(commands, current.String())
	}

	tf := &parser.TestFile{}
	for i, cmd := range commands {
		parsed, err := c.Parse(cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to convert command %d: %w", i+1, err)
		}
		tf.Tests = append(tf.Tests, c.ToTest(parsed))
	}
	return tf, nil
}

// Parse parses a curl command string into a ParsedCurl struct.
func (c *Converter) Parse(curlCmd string) (*ParsedCurl, error) {
	parsed := &ParsedCurl{
		Method: "GET",
	}

	curlCmd = strings.TrimSpace(curlCmd)
	if curlCmd == "curl" {
		return nil, fmt.Errorf("no URL specified")
	}
	curlCmd = strings.TrimPrefix(curlCmd, "curl ")

	tokens := tokenize(curlCmd)
	explicitMethod := false

	value := func(i int) (string, error) {
		if i+1 >= len(tokens) {
			return "", fmt.Errorf("missing value for %s", tokens[i])
		}
		return tokens[i+1], nil
	}

	for i := 0; i < len(tokens); i++ {
		token := tokens[i]

		switch token {
		case "-X", "--request":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.Method = strings.ToUpper(v)
			explicitMethod = true
			i++

		case "-H", "--header":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			if key, val, ok := strings.Cut(v, ":"); ok {
				parsed.Headers = append(parsed.Headers, Header{
					Key:   strings.TrimSpace(key),
					Value: strings.TrimSpace(val),
				})
			}
			i++

		case "-d", "--data", "--data-raw", "--data-binary", "--json":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.Body = v
			if !explicitMethod {
				parsed.Method = "POST"
			}
			if token == "--json" {
				parsed.Headers = append(parsed.Headers,
					Header{Key: "Content-Type", Value: "application/json"},
					Header{Key: "Accept", Value: "application/json"})
			}
			i++

		case "-u", "--user":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.BasicAuth = v
			i++

		case "-I", "--head":
			parsed.Method = "HEAD"
			explicitMethod = true

		case "-k", "--insecure":
			parsed.Insecure = true

		case "-L", "--location":
			parsed.FollowRedirects = true

		case "-A", "--user-agent", "-e", "--referer", "-b", "--cookie":
			v, err := value(i)
			if err != nil {
				return nil, err
			}
			parsed.Headers = append(parsed.Headers, Header{Key: flagHeader(token), Value: v})
			i++

		default:
			if strings.HasPrefix(token, "-") {
				// unknown flag, skip its value if it seems to have one
				if i+1 < len(tokens) && !strings.HasPrefix(tokens[i+1], "-") && !isURL(tokens[i+1]) {
					i++
				}
				continue
			}
			if parsed.URL == "" && isURL(token) {
				parsed.URL = token
			}
		}
	}

	if parsed.URL == "" {
		return nil, fmt.Errorf("no URL found in curl command")
	}

	parsed.Name = generateName(parsed.URL, parsed.Method)
	return parsed, nil
}

func flagHeader(flag string) string {
	switch flag {
	case "-A", "--user-agent":
		return "User-Agent"
	case "-e", "--referer":
		return "Referer"
	default:
		return "Cookie"
	}
}

// ToTest builds a test definition from a parsed command. The query string
// moves to the query field and basic auth becomes an Authorization header.
func (c *Converter) ToTest(parsed *ParsedCurl) *parser.ASTNode {
	def := parser.NewTestDefinition()

	endpoint, query, hasQuery := strings.Cut(parsed.URL, "?")
	def.Endpoint = endpoint
	if hasQuery && query != "" {
		def.Query = &query
	}

	method, ok := methods[parsed.Method]
	if !ok {
		c.warn("%s: unsupported method %s, using GET", parsed.Name, parsed.Method)
		method = parser.MethodGet
	}
	if method != parser.MethodGet {
		def.Method = method
	}

	if parsed.BasicAuth != "" {
		encoded := base64.StdEncoding.EncodeToString([]byte(parsed.BasicAuth))
		def.Headers = append(def.Headers, parser.HeaderNode{Key: "Authorization", Value: "Basic " + encoded})
	}
	for _, h := range parsed.Headers {
		if !parser.IsHeaderName(h.Key) {
			c.warn("%s: header %q cannot be written in a test file, skipped", parsed.Name, h.Key)
			continue
		}
		def.Headers = append(def.Headers, parser.HeaderNode{Key: h.Key, Value: h.Value})
	}

	if parsed.Body != "" {
		body := parsed.Body
		def.Body = &body
	}

	if c.expectStatus != 0 {
		def.Expect = append(def.Expect, parser.StatusExpectation(c.expectStatus))
	}
	if parsed.Insecure {
		c.warn("%s: -k has no per-test equivalent, run with --insecure", parsed.Name)
	}

	return &parser.ASTNode{
		Kind:       parser.NodeTestDefinition,
		Name:       parsed.Name,
		Definition: def,
	}
}

var methods = map[string]parser.HTTPMethod{
	"GET":     parser.MethodGet,
	"POST":    parser.MethodPost,
	"PUT":     parser.MethodPut,
	"DELETE":  parser.MethodDelete,
	"PATCH":   parser.MethodPatch,
	"OPTIONS": parser.MethodOptions,
	"HEAD":    parser.MethodHead,
}

// tokenize splits a curl command into tokens, respecting quotes.
func tokenize(cmd string) []string {
	var tokens []string
	var current strings.Builder
	inSingleQuote := false
	inDoubleQuote := false
	escaped := false

	for _, r := range cmd {
		if escaped {
			current.WriteRune(r)
			escaped = false
			continue
		}

		switch r {
		case '\\':
			if inSingleQuote {
				current.WriteRune(r)
			} else {
				escaped = true
			}
		case '\'':
			if !inDoubleQuote {
				inSingleQuote = !inSingleQuote
			} else {
				current.WriteRune(r)
			}
		case '"':
			if !inSingleQuote {
				inDoubleQuote = !inDoubleQuote
			} else {
				current.WriteRune(r)
			}
		case ' ', '\t':
			if inSingleQuote || inDoubleQuote {
				current.WriteRune(r)
			} else if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "{{")
}

// generateName derives a test name like "get users 123" from the method
// and URL path.
func generateName(url, method string) string {
	path := "/"
	if matches := urlPathPattern.FindStringSubmatch(url); len(matches) > 1 && matches[1] != "" {
		path = matches[1]
	} else if _, rest, ok := strings.Cut(url, "}}"); ok {
		path, _, _ = strings.Cut(rest, "?")
	}

	words := strings.Trim(nonWordPattern.ReplaceAllString(path, " "), " ")
	if words == "" {
		words = "root"
	}
	return strings.ToLower(method) + " " + words
}
