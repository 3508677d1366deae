package builtin

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Func is a built-in function. Arguments arrive unquoted and trimmed.
type Func func(args []string) (any, error)

type Registry struct {
	mu    sync.Mutex
	funcs map[string]Func
	rnd   *rand.Rand
	now   func() time.Time
}

type Option func(*Registry)

// WithSeed makes the random functions deterministic.
func WithSeed(seed int64) Option {
	return func(r *Registry) {
		r.rnd = rand.New(rand.NewSource(seed))
	}
}

// WithClock replaces time.Now for the date and time functions.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		funcs: make(map[string]Func),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["now"] = r.funcNow
	r.funcs["timestamp"] = r.funcTimestamp
	r.funcs["timestampMs"] = r.funcTimestampMs
	r.funcs["date"] = r.funcDate
	r.funcs["uuid"] = funcUUID
	r.funcs["uuidv7"] = funcUUIDv7
	r.funcs["random"] = r.funcRandom
	r.funcs["randomString"] = r.funcRandomString
	r.funcs["randomEmail"] = r.funcRandomEmail
	r.funcs["base64"] = funcBase64
	r.funcs["base64Decode"] = funcBase64Decode
	r.funcs["sha256"] = funcSHA256
	r.funcs["urlEncode"] = funcURLEncode
	r.funcs["env"] = funcEnv
}

// Names lists the registered functions in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var funcCallPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Call evaluates an expression such as `random(1, 10)`. The boolean is false
// when expr is not a call to a registered function.
func (r *Registry) Call(expr string) (any, bool, error) {
	matches := funcCallPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if matches == nil {
		return nil, false, nil
	}

	r.mu.Lock()
	fn, ok := r.funcs[matches[1]]
	r.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	var args []string
	if matches[2] != "" {
		args = parseArgs(matches[2])
	}

	result, err := fn(args)
	if err != nil {
		return nil, true, fmt.Errorf("%s(): %w", matches[1], err)
	}
	return result, true, nil
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inQuote && (ch == '"' || ch == '\'') {
			inQuote = true
			quoteChar = ch
		} else if inQuote && ch == quoteChar {
			inQuote = false
			quoteChar = 0
		} else if !inQuote && ch == ',' {
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		} else {
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}

func intArg(args []string, i int, name string, defaultVal int) (int, error) {
	if len(args) <= i {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%s argument %q is not a valid integer", name, args[i])
	}
	return v, nil
}

func (r *Registry) funcNow(_ []string) (any, error) {
	return r.now().UTC().Format(time.RFC3339), nil
}

func (r *Registry) funcTimestamp(_ []string) (any, error) {
	return r.now().Unix(), nil
}

func (r *Registry) funcTimestampMs(_ []string) (any, error) {
	return r.now().UnixMilli(), nil
}

func (r *Registry) funcDate(args []string) (any, error) {
	format := "2006-01-02"
	if len(args) >= 1 {
		format = args[0]
	}
	return r.now().UTC().Format(format), nil
}

func funcUUID(_ []string) (any, error) {
	return uuid.New().String(), nil
}

func funcUUIDv7(_ []string) (any, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return id.String(), nil
}

func (r *Registry) funcRandom(args []string) (any, error) {
	min, err := intArg(args, 0, "min", 0)
	if err != nil {
		return nil, err
	}
	max, err := intArg(args, 1, "max", 100)
	if err != nil {
		return nil, err
	}
	if max < min {
		return nil, fmt.Errorf("max %d is less than min %d", max, min)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(max-min+1) + min, nil
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func (r *Registry) funcRandomString(args []string) (any, error) {
	length, err := intArg(args, 0, "length", 16)
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, fmt.Errorf("length must not be negative")
	}
	return r.randomString(length, alphanumeric), nil
}

func (r *Registry) funcRandomEmail(_ []string) (any, error) {
	user := r.randomString(8, "abcdefghijklmnopqrstuvwxyz")
	domain := r.randomString(6, "abcdefghijklmnopqrstuvwxyz")
	return fmt.Sprintf("%s@%s.com", user, domain), nil
}

func (r *Registry) randomString(length int, charset string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]byte, length)
	for i := range result {
		result[i] = charset[r.rnd.Intn(len(charset))]
	}
	return string(result)
}

func funcBase64(args []string) (any, error) {
	if len(args) < 1 {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString([]byte(args[0])), nil
}

func funcBase64Decode(args []string) (any, error) {
	if len(args) < 1 {
		return "", nil
	}
	decoded, err := base64.StdEncoding.DecodeString(args[0])
	if err != nil {
		return nil, err
	}
	return string(decoded), nil
}

func funcSHA256(args []string) (any, error) {
	if len(args) < 1 {
		return "", nil
	}
	hash := sha256.Sum256([]byte(args[0]))
	return hex.EncodeToString(hash[:]), nil
}

func funcURLEncode(args []string) (any, error) {
	if len(args) < 1 {
		return "", nil
	}
	return url.QueryEscape(args[0]), nil
}

func funcEnv(args []string) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("missing variable name")
	}
	if val, ok := os.LookupEnv(args[0]); ok {
		return val, nil
	}
	if len(args) >= 2 {
		return args[1], nil
	}
	return nil, fmt.Errorf("environment variable %s is not set", args[0])
}
