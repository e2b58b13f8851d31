package runtime

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// expressions compiles guardar_variable expressions once and caches the programs.
type expressions struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newExpressions() *expressions {
	return &expressions{cache: make(map[string]*vm.Program)}
}

func (x *expressions) program(expression string) (*vm.Program, error) {
	x.mu.RLock()
	p, ok := x.cache[expression]
	x.mu.RUnlock()
	if ok {
		return p, nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if p, ok = x.cache[expression]; ok {
		return p, nil
	}
	p, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	x.cache[expression] = p
	return p, nil
}

// Eval runs expression over vars and renders the result as a variable value.
// Variables are exposed as strings; arithmetic needs an explicit float() or int().
func (x *expressions) Eval(expression string, vars map[string]string) (string, error) {
	p, err := x.program(expression)
	if err != nil {
		return "", fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	env := make(map[string]any, len(vars))
	for k, v := range vars {
		env[k] = v
	}
	out, err := expr.Run(p, env)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate %q: %w", expression, err)
	}
	switch v := out.(type) {
	case nil:
		return "", nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case string:
		return v, nil
	}
	return fmt.Sprint(out), nil
}
