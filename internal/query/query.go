// Package query evaluates jq expressions against workflow documents
// and render metadata. It backs the inspect CLI command and the MCP
// inspect tool.
package query

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/nodecanvas/umlview/pkg/schema"
)

// Runner compiles and runs jq expressions. Thread-safe: compiled
// *gojq.Code objects are cached and reused across goroutines.
type Runner struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewRunner creates a query runner with an empty compile cache.
func NewRunner() *Runner {
	return &Runner{cache: make(map[string]*gojq.Code)}
}

// Query runs expression against doc. jq programs can emit multiple
// values: a single value is returned bare, several as []any, none as
// nil.
func (r *Runner) Query(ctx context.Context, expression string, doc any) (any, error) {
	results, err := r.QueryAll(ctx, expression, doc)
	if err != nil {
		return nil, err
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// QueryAll runs expression against doc and returns every emitted
// value.
func (r *Runner) QueryAll(ctx context.Context, expression string, doc any) ([]any, error) {
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty jq expression")
	}

	code, err := r.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalize(doc))

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeValidation,
				"jq evaluation failed for %q: %s", expression, err.Error()).
				WithCause(err).
				WithDetails(map[string]any{"expression": expression})
		}
		results = append(results, val)
	}
	return results, nil
}

// QueryBytes parses raw JSON and runs expression against it.
func (r *Runner) QueryBytes(ctx context.Context, expression string, raw []byte) (any, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeParse, "input is not valid JSON").WithCause(err)
	}
	return r.Query(ctx, expression, doc)
}

// getOrCompile returns a cached compiled program or compiles and
// caches a new one.
func (r *Runner) getOrCompile(expression string) (*gojq.Code, error) {
	r.mu.RLock()
	if code, ok := r.cache[expression]; ok {
		r.mu.RUnlock()
		return code, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if code, ok := r.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	code, err := gojq.Compile(query,
		// Sandbox: block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	r.cache[expression] = code
	return code, nil
}

// normalize converts Go integer types to float64, matching jq's
// number model, so documents built in code behave like parsed JSON.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
