package env

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/apitest/packages/builtin"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Resolver expands {{...}} references in literal text. A reference is one
// of $NAME (process environment), name(args) (a builtin function) or a
// plain variable name. Unresolved references are left in place.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]any
	funcs     *builtin.Registry
	warnFunc  WarnFunc
}

func NewResolver() *Resolver {
	return NewResolverWithRegistry(builtin.NewRegistry())
}

func NewResolverWithRegistry(funcs *builtin.Registry) *Resolver {
	return &Resolver{
		variables: make(map[string]any),
		funcs:     funcs,
	}
}

// SetWarnFunc sets a function to be called when warnings occur (e.g., unresolved variables)
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

func (r *Resolver) SetVariables(vars map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
}

func (r *Resolver) Resolve(input string) string {
	return variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		if val, ok := r.lookup(match[2 : len(match)-2]); ok {
			return val
		}
		return match
	})
}

func (r *Resolver) lookup(expr string) (string, bool) {
	expr = strings.TrimSpace(expr)

	if strings.HasPrefix(expr, "$") {
		envVar := expr[1:]
		if val, ok := os.LookupEnv(envVar); ok {
			return val, true
		}
		r.warn("unresolved environment variable: $%s", envVar)
		return "", false
	}

	if strings.Contains(expr, "(") {
		result, ok, err := r.funcs.Call(expr)
		if err != nil {
			r.warn("function call failed: %v", err)
			return "", false
		}
		if !ok {
			r.warn("unresolved function call: %s", expr)
			return "", false
		}
		return fmt.Sprintf("%v", result), true
	}

	r.mu.RLock()
	val, ok := r.variables[expr]
	r.mu.RUnlock()
	if ok {
		return fmt.Sprintf("%v", val), true
	}

	r.warn("unresolved variable: %s", expr)
	return "", false
}

// ResolveAll resolves every value of values into a new map.
func (r *Resolver) ResolveAll(values map[string]string) map[string]string {
	result := make(map[string]string, len(values))
	for k, v := range values {
		result[k] = r.Resolve(v)
	}
	return result
}

// GetUnresolvedVariables returns the plain variable names in input that
// have no value, in order of appearance. Function calls and $NAME
// references are not reported.
func (r *Resolver) GetUnresolvedVariables(input string) []string {
	var missing []string
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		name := strings.TrimSpace(m[1])
		if strings.HasPrefix(name, "$") || strings.Contains(name, "(") {
			continue
		}
		if !r.hasVariable(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

func (r *Resolver) hasVariable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.variables[name]
	return ok
}
