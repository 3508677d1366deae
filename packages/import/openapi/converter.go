// Package openapi converts OpenAPI 3 documents into apitest tests, one test
// per operation.
package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
	apihttp "github.com/abdul-hamid-achik/apitest/packages/http"
	"github.com/getkin/kin-openapi/openapi3"
)

// BaseURLVariable is referenced by generated endpoints unless a base URL is
// fixed with WithBaseURL.
const BaseURLVariable = "baseUrl"

// Converter converts OpenAPI specs to apitest tests
type Converter struct {
	baseURL      string
	includeTags  []string
	excludeTags  []string
	includeOnly  []string // specific operation IDs
	expectations bool
	warn         func(format string, args ...any)
}

// Option is a functional option for Converter
type Option func(*Converter)

// WithBaseURL writes endpoints against url instead of {{baseUrl}}
func WithBaseURL(url string) Option {
	return func(c *Converter) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithTags filters operations by tags
func WithTags(tags []string) Option {
	return func(c *Converter) {
		c.includeTags = tags
	}
}

// WithExcludeTags excludes operations with these tags
func WithExcludeTags(tags []string) Option {
	return func(c *Converter) {
		c.excludeTags = tags
	}
}

// WithOperations filters to specific operation IDs
func WithOperations(ops []string) Option {
	return func(c *Converter) {
		c.includeOnly = ops
	}
}

// WithExpectations controls whether a status expectation is generated from
// each operation's documented success response.
func WithExpectations(generate bool) Option {
	return func(c *Converter) {
		c.expectations = generate
	}
}

func WithWarnFunc(fn func(format string, args ...any)) Option {
	return func(c *Converter) {
		c.warn = fn
	}
}

func NewConverter(opts ...Option) *Converter {
	c := &Converter{
		expectations: true,
		warn:         func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads a document from a file path or an http(s) URL. Relative
// references resolve against location.
func Load(ctx context.Context, location string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.Context = ctx

	var doc *openapi3.T
	var err error
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		doc, err = loadURL(ctx, loader, location)
	} else {
		doc, err = loader.LoadFromFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	return doc, nil
}

func loadURL(ctx context.Context, loader *openapi3.Loader, location string) (*openapi3.T, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, err
	}

	resp, err := apihttp.NewClient().Get(ctx, location,
		apihttp.Header{Key: "Accept", Value: "application/json, application/yaml;q=0.9, */*;q=0.8"})
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("GET %s: %s", location, resp.Status)
	}
	return loader.LoadFromDataWithPath(resp.Body, u)
}

// ConvertFile loads the document at location and returns test file text.
func (c *Converter) ConvertFile(ctx context.Context, location string) (string, error) {
	doc, err := Load(ctx, location)
	if err != nil {
		return "", err
	}
	tf, err := c.Convert(doc)
	if err != nil {
		return "", err
	}
	return parser.Format(tf), nil
}

// ConvertData is ConvertFile for an in-memory JSON or YAML document.
func (c *Converter) ConvertData(data []byte) (*parser.TestFile, error) {
	doc, err := openapi3.NewLoader().LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	return c.Convert(doc)
}

// Convert builds one test per operation, ordered by path and then method.
func (c *Converter) Convert(doc *openapi3.T) (*parser.TestFile, error) {
	if doc.Paths == nil {
		return nil, fmt.Errorf("OpenAPI spec has no paths")
	}
	if err := doc.Validate(context.Background()); err != nil {
		c.warn("OpenAPI spec validation: %v", err)
	}
	if c.baseURL == "" {
		c.warn("endpoints use {{%s}}; set it per environment, e.g. %s", BaseURLVariable, ServerURL(doc))
	}

	pathItems := doc.Paths.Map()
	paths := make([]string, 0, len(pathItems))
	for path := range pathItems {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	tf := &parser.TestFile{}
	for _, path := range paths {
		pathItem := pathItems[path]
		if pathItem == nil {
			continue
		}

		operations := []struct {
			method parser.HTTPMethod
			op     *openapi3.Operation
		}{
			{parser.MethodGet, pathItem.Get},
			{parser.MethodPost, pathItem.Post},
			{parser.MethodPut, pathItem.Put},
			{parser.MethodPatch, pathItem.Patch},
			{parser.MethodDelete, pathItem.Delete},
			{parser.MethodHead, pathItem.Head},
			{parser.MethodOptions, pathItem.Options},
		}

		for _, op := range operations {
			if op.op == nil || !c.shouldInclude(op.op) {
				continue
			}
			tf.Tests = append(tf.Tests, c.convertOperation(path, op.method, op.op, pathItem.Parameters))
		}
	}

	return tf, nil
}

// ServerURL returns the first server URL of doc, or a localhost default.
func ServerURL(doc *openapi3.T) string {
	if len(doc.Servers) > 0 && doc.Servers[0].URL != "" {
		return doc.Servers[0].URL
	}
	return "http://localhost:3000"
}

func (c *Converter) shouldInclude(op *openapi3.Operation) bool {
	if len(c.includeOnly) > 0 && !contains(c.includeOnly, op.OperationID) {
		return false
	}

	if len(c.includeTags) > 0 {
		found := false
		for _, tag := range op.Tags {
			if contains(c.includeTags, tag) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for _, tag := range op.Tags {
		if contains(c.excludeTags, tag) {
			return false
		}
	}

	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (c *Converter) convertOperation(path string, method parser.HTTPMethod, op *openapi3.Operation, pathParams openapi3.Parameters) *parser.ASTNode {
	name := op.Summary
	if name == "" {
		name = op.OperationID
	}
	if name == "" {
		name = strings.ToLower(method.String()) + " " + path
	}

	def := parser.NewTestDefinition()
	if method != parser.MethodGet {
		def.Method = method
	}

	base := c.baseURL
	if base == "" {
		base = "{{" + BaseURLVariable + "}}"
	}

	params := make(openapi3.Parameters, 0, len(pathParams)+len(op.Parameters))
	params = append(params, pathParams...)
	params = append(params, op.Parameters...)

	def.Endpoint = base + convertPathParams(path, params)

	var query []string
	for _, paramRef := range params {
		if paramRef == nil || paramRef.Value == nil {
			continue
		}
		param := paramRef.Value
		switch param.In {
		case openapi3.ParameterInQuery:
			if param.Required {
				query = append(query, param.Name+"="+paramExample(param))
			}
		case openapi3.ParameterInHeader:
			if !parser.IsHeaderName(param.Name) {
				c.warn("%s: header %q cannot be written in a test file, skipped", name, param.Name)
				continue
			}
			def.Headers = append(def.Headers, parser.HeaderNode{Key: param.Name, Value: paramExample(param)})
		}
	}
	if len(query) > 0 {
		q := strings.Join(query, "&")
		def.Query = &q
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if contentType, body := requestBody(op.RequestBody.Value); body != "" {
			def.Headers = append(def.Headers, parser.HeaderNode{Key: "Content-Type", Value: contentType})
			def.Body = &body
		}
	}

	if c.expectations {
		if code, ok := successStatus(op); ok {
			def.Expect = append(def.Expect, parser.StatusExpectation(code))
		}
	}

	return &parser.ASTNode{
		Kind:       parser.NodeTestDefinition,
		Name:       name,
		Definition: def,
	}
}

// convertPathParams turns {id} into {{id}}.
func convertPathParams(path string, params openapi3.Parameters) string {
	result := path
	for _, paramRef := range params {
		if paramRef == nil || paramRef.Value == nil || paramRef.Value.In != openapi3.ParameterInPath {
			continue
		}
		name := paramRef.Value.Name
		result = strings.ReplaceAll(result, "{"+name+"}", "{{"+name+"}}")
	}
	return result
}

func schemaType(schema *openapi3.Schema) string {
	if types := schema.Type.Slice(); len(types) > 0 {
		return types[0]
	}
	return ""
}

func paramExample(param *openapi3.Parameter) string {
	if param.Example != nil {
		return fmt.Sprintf("%v", param.Example)
	}

	if param.Schema != nil && param.Schema.Value != nil {
		schema := param.Schema.Value
		if schema.Example != nil {
			return fmt.Sprintf("%v", schema.Example)
		}

		switch schemaType(schema) {
		case openapi3.TypeInteger:
			return "1"
		case openapi3.TypeNumber:
			return "1.0"
		case openapi3.TypeBoolean:
			return "true"
		case openapi3.TypeString:
			return stringExample(schema)
		}
	}

	return "{{" + param.Name + "}}"
}

func stringExample(schema *openapi3.Schema) string {
	switch schema.Format {
	case "date":
		return "2024-01-01"
	case "date-time":
		return "2024-01-01T00:00:00Z"
	case "email":
		return "user@example.com"
	case "uuid":
		return "{{uuid()}}"
	}
	if len(schema.Enum) > 0 {
		return fmt.Sprintf("%v", schema.Enum[0])
	}
	return "example"
}

// requestBody prefers a JSON media type, then form data.
func requestBody(reqBody *openapi3.RequestBody) (string, string) {
	types := make([]string, 0, len(reqBody.Content))
	for contentType := range reqBody.Content {
		types = append(types, contentType)
	}
	sort.Strings(types)

	for _, contentType := range types {
		mediaType := reqBody.Content[contentType]
		if strings.Contains(contentType, "json") && mediaType.Schema != nil {
			data, err := json.MarshalIndent(exampleValue(mediaType.Schema.Value, 0), "", "  ")
			if err != nil {
				continue
			}
			return "application/json", string(data)
		}
	}

	for _, contentType := range types {
		mediaType := reqBody.Content[contentType]
		if strings.Contains(contentType, "form") && mediaType.Schema != nil {
			if form := formBody(mediaType.Schema.Value); form != "" {
				return "application/x-www-form-urlencoded", form
			}
		}
	}

	return "", ""
}

func exampleValue(schema *openapi3.Schema, depth int) any {
	if schema == nil || depth > 5 {
		return nil
	}
	if schema.Example != nil {
		return schema.Example
	}

	switch schemaType(schema) {
	case openapi3.TypeObject:
		obj := make(map[string]any, len(schema.Properties))
		for name, prop := range schema.Properties {
			if prop == nil {
				obj[name] = nil
				continue
			}
			obj[name] = exampleValue(prop.Value, depth+1)
		}
		return obj
	case openapi3.TypeArray:
		if schema.Items != nil && schema.Items.Value != nil {
			return []any{exampleValue(schema.Items.Value, depth+1)}
		}
		return []any{}
	case openapi3.TypeString:
		return stringExample(schema)
	case openapi3.TypeInteger:
		if schema.Min != nil {
			return int64(*schema.Min)
		}
		return 1
	case openapi3.TypeNumber:
		if schema.Min != nil {
			return *schema.Min
		}
		return 1.5
	case openapi3.TypeBoolean:
		return true
	default:
		return nil
	}
}

func formBody(schema *openapi3.Schema) string {
	if schema == nil || len(schema.Properties) == 0 {
		return ""
	}

	parts := make([]string, 0, len(schema.Properties))
	for name, prop := range schema.Properties {
		value := "example"
		if prop != nil && prop.Value != nil && prop.Value.Example != nil {
			value = fmt.Sprintf("%v", prop.Value.Example)
		}
		parts = append(parts, url.QueryEscape(name)+"="+url.QueryEscape(value))
	}
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// successStatus returns the lowest documented 2xx status of op.
func successStatus(op *openapi3.Operation) (uint16, bool) {
	if op.Responses == nil {
		return 0, false
	}

	best := 0
	for code, respRef := range op.Responses.Map() {
		if respRef == nil {
			continue
		}
		n, err := strconv.Atoi(code)
		if err != nil || n < 200 || n > 299 {
			continue
		}
		if best == 0 || n < best {
			best = n
		}
	}
	if best == 0 {
		return 0, false
	}
	return uint16(best), true
}
