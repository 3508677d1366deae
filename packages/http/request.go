package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
)

type Header struct {
	Key   string
	Value string
}

type Request struct {
	Method  string
	URL     string
	Headers []Header
	Body    string
	Timeout time.Duration
}

func NewRequest(method, requestURL string) *Request {
	return &Request{
		Method: method,
		URL:    requestURL,
	}
}

// AddHeader appends a header; earlier values for the same key are kept.
func (r *Request) AddHeader(key, value string) *Request {
	r.Headers = append(r.Headers, Header{Key: key, Value: value})
	return r
}

// Header returns the first value for key, case-insensitively.
func (r *Request) Header(key string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value
		}
	}
	return ""
}

func (r *Request) SetBody(body string) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

// AppendQuery adds a raw query string to the URL, joining with '&' when the
// URL already has one.
func (r *Request) AppendQuery(query string) *Request {
	query = strings.TrimLeft(query, "?&")
	if query == "" {
		return r
	}
	if strings.Contains(r.URL, "?") {
		r.URL += "&" + query
	} else {
		r.URL += "?" + query
	}
	return r
}

// MethodName maps a parsed method to its HTTP verb. Tests that never
// declared a method are sent as GET.
func MethodName(m parser.HTTPMethod) (string, error) {
	switch m {
	case parser.MethodNone, parser.MethodGet:
		return http.MethodGet, nil
	case parser.MethodPost:
		return http.MethodPost, nil
	case parser.MethodPut:
		return http.MethodPut, nil
	case parser.MethodDelete:
		return http.MethodDelete, nil
	case parser.MethodPatch:
		return http.MethodPatch, nil
	case parser.MethodOptions:
		return http.MethodOptions, nil
	case parser.MethodHead:
		return http.MethodHead, nil
	default:
		return "", fmt.Errorf("unsupported http method %s", m)
	}
}

// BuildRequest turns a parsed test definition into a request. resolve is
// applied to every piece of literal text.
func BuildRequest(def *parser.TestDefinition, resolve func(string) string) (*Request, error) {
	method, err := MethodName(def.Method)
	if err != nil {
		return nil, err
	}

	r := NewRequest(method, resolve(def.Endpoint))

	if def.Query != nil {
		r.AppendQuery(resolve(*def.Query))
	}

	for _, h := range def.Headers {
		r.AddHeader(h.Key, resolve(h.Value))
	}

	if def.Body != nil {
		body := resolve(*def.Body)
		r.SetBody(body)
		if r.Header("Content-Type") == "" && json.Valid([]byte(body)) {
			r.AddHeader("Content-Type", "application/json")
		}
	}

	if def.Timeout != nil && *def.Timeout > 0 {
		r.SetTimeout(time.Duration(*def.Timeout) * time.Millisecond)
	}

	return r, nil
}
