package assertions

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
	"github.com/abdul-hamid-achik/apitest/packages/http"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

const (
	SubjectStatus = "status"
	SubjectBody   = "body"

	// maxMessageValue bounds how much of a body is quoted in a failure message
	maxMessageValue = 200
)

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

type Evaluator struct {
	response *http.Response
	bodyJSON gjson.Result
	isJSON   bool
	resolve  func(string) string
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithResolver expands variables in expected body values before comparing.
func WithResolver(resolve func(string) string) EvaluatorOption {
	return func(e *Evaluator) {
		e.resolve = resolve
	}
}

func NewEvaluator(resp *http.Response, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		response: resp,
		resolve:  func(s string) string { return s },
	}
	if gjson.ValidBytes(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
		e.isJSON = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) Evaluate(node parser.ExpectNode) *Result {
	switch node.Kind {
	case parser.ExpectStatus:
		return e.status(int(node.Status))
	case parser.ExpectBody:
		expected := e.resolve(node.Body.Value)
		if node.Body.Match == parser.BodyContains {
			return e.contains(expected)
		}
		return e.equals(expected)
	default:
		return &Result{
			Passed:  false,
			Message: fmt.Sprintf("unknown expectation kind %d", node.Kind),
		}
	}
}

func (e *Evaluator) status(expected int) *Result {
	result := &Result{
		Subject:  SubjectStatus,
		Operator: "equals",
		Expected: expected,
		Actual:   e.response.StatusCode,
	}
	if e.response.StatusCode == expected {
		result.Passed = true
		return result
	}
	result.Message = fmt.Sprintf("expected status %d, got %d", expected, e.response.StatusCode)
	return result
}

// equals compares the body with expected. When both sides are JSON the
// comparison is structural, so formatting and key order do not matter.
// Any other body must match byte for byte.
func (e *Evaluator) equals(expected string) *Result {
	body := e.response.BodyString()
	result := &Result{
		Subject:  SubjectBody,
		Operator: parser.BodyEquals.String(),
		Expected: expected,
		Actual:   body,
	}

	if e.isJSON && gjson.Valid(expected) {
		actual := e.bodyJSON.Value()
		want := gjson.Parse(expected).Value()
		result.Actual = actual
		result.Expected = want
		if reflect.DeepEqual(actual, want) {
			result.Passed = true
			return result
		}
		result.Message = fmt.Sprintf("expected body %s, got %s", truncate(string(pretty.Ugly([]byte(expected)))), truncate(string(pretty.Ugly(e.response.Body))))
		return result
	}

	if body == expected {
		result.Passed = true
		return result
	}
	result.Message = fmt.Sprintf("expected body '%s', got '%s'", truncate(expected), truncate(body))
	return result
}

// contains reports whether expected occurs in the body. A JSON body is also
// searched with its insignificant whitespace removed; expected is only
// compacted when it is a JSON document itself.
func (e *Evaluator) contains(expected string) *Result {
	body := e.response.BodyString()
	result := &Result{
		Subject:  SubjectBody,
		Operator: parser.BodyContains.String(),
		Expected: expected,
		Actual:   body,
	}

	if strings.Contains(body, expected) {
		result.Passed = true
		return result
	}

	if e.isJSON {
		compactBody := string(pretty.Ugly(e.response.Body))
		needle := expected
		if gjson.Valid(expected) {
			needle = string(pretty.Ugly([]byte(expected)))
		}
		if strings.Contains(compactBody, needle) {
			result.Passed = true
			return result
		}
	}

	result.Message = fmt.Sprintf("expected '%s' to contain '%s'", truncate(body), truncate(expected))
	return result
}

// ImplicitSuccess is the check applied to tests that declare no
// expectations: any 2xx status passes.
func ImplicitSuccess(resp *http.Response) *Result {
	result := &Result{
		Subject:  SubjectStatus,
		Operator: "2xx",
		Expected: "2xx",
		Actual:   resp.StatusCode,
	}
	if resp.IsSuccess() {
		result.Passed = true
		return result
	}
	result.Message = fmt.Sprintf("expected a 2xx status, got %d", resp.StatusCode)
	return result
}

func EvaluateAll(resp *http.Response, nodes []parser.ExpectNode, opts ...EvaluatorOption) []*Result {
	if len(nodes) == 0 {
		return []*Result{ImplicitSuccess(resp)}
	}

	evaluator := NewEvaluator(resp, opts...)
	results := make([]*Result, len(nodes))
	for i, n := range nodes {
		results[i] = evaluator.Evaluate(n)
	}
	return results
}

func AllPassed(results []*Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func truncate(s string) string {
	if len(s) <= maxMessageValue {
		return s
	}
	return s[:maxMessageValue] + "..."
}
