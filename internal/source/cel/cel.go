// Package cel provides CEL record filters for ordered sources.
//
// A filter sees two variables, id (string) and timestamp (timestamp). The
// same filter must be applied to both sides of a comparison; skipping
// records never reorders a stream, so the merge stays valid.
package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/syntrixbase/indexsync/internal/source"
	"github.com/syntrixbase/indexsync/pkg/model"
)

// Filter is a compiled record predicate.
type Filter struct {
	expr string
	prg  cel.Program
}

// Compile compiles expr. An empty expression yields a nil filter, which
// matches every record.
func Compile(expr string) (*Filter, error) {
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("timestamp", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("CEL environment error: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("CEL filter must return bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("CEL program creation error: %w", err)
	}

	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the filter against r.
func (f *Filter) Match(r model.Record) (bool, error) {
	if f == nil {
		return true, nil
	}

	out, _, err := f.prg.Eval(map[string]any{
		"id":        r.ID,
		"timestamp": r.Timestamp,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation of %q for %s: %w", f.expr, r.ID, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL result is not boolean: %T", out.Value())
	}
	return result, nil
}

// Wrap returns src restricted to matching records. A nil filter returns src.
func (f *Filter) Wrap(src source.OrderedSource) source.OrderedSource {
	if f == nil {
		return src
	}
	return &filtered{src: src, filter: f}
}

type filtered struct {
	src    source.OrderedSource
	filter *Filter
	err    error
}

func (s *filtered) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}
	for s.src.Next(ctx) {
		ok, err := s.filter.Match(s.src.Record())
		if err != nil {
			s.err = err
			return false
		}
		if ok {
			return true
		}
	}
	return false
}

func (s *filtered) Record() model.Record {
	return s.src.Record()
}

func (s *filtered) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.src.Err()
}

func (s *filtered) Close() error {
	return s.src.Close()
}
