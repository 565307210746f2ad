package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
)

// Filter is a compiled CEL subscription filter. A nil *Filter matches
// everything. Expressions see:
//
//	event   string               logical event name
//	source  string               producing service
//	id      string               envelope id
//	data    map(string, dyn)     decoded payload
//	ts_ms   int                  append time of the entry
//	now_ms  int                  evaluation time
type Filter struct {
	expr string
	prog cel.Program
}

// NewFilter compiles expr. An empty expression yields a nil filter.
func NewFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("event", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("filter %q: %w", expr, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q: must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, err
	}
	return &Filter{expr: expr, prog: prog}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the filter against an envelope. Evaluation errors, such as
// a missing data key, count as no match.
func (f *Filter) Match(env events.Envelope, tsMs int64) bool {
	if f == nil {
		return true
	}
	data, err := env.DataMap()
	if err != nil || data == nil {
		data = map[string]any{}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"event":  string(env.Type),
		"source": env.Source,
		"id":     env.ID,
		"data":   data,
		"ts_ms":  tsMs,
		"now_ms": time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
