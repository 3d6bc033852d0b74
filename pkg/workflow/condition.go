package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/driver"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// ConditionEvaluator evaluates the predicate expressions used by
// Conditional actions and while loops. Expressions are expr-lang programs
// evaluated against an environment exposing driver state:
//
//	is_present("#banner")          element presence
//	url()                          current page URL
//	title()                        current page title
//	values                         the run's context value map
//
// Compiled programs are cached per expression text; the cache is shared
// across runs and safe for concurrent use.
type ConditionEvaluator struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

// NewConditionEvaluator creates an evaluator with an empty program cache.
func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate runs expression against the driver and context. A program that
// does not produce a boolean is a validation error, as is one that fails to
// compile.
func (e *ConditionEvaluator) Evaluate(ctx context.Context, drv driver.Driver, ec *action.ExecutionContext, expression string) (bool, error) {
	program, err := e.compile(expression)
	if err != nil {
		return false, err
	}

	env := map[string]any{
		"is_present": func(selector string) (bool, error) {
			return drv.IsPresent(ctx, selector)
		},
		"url": func() (string, error) {
			return drv.CurrentURL(ctx)
		},
		"title": func() (string, error) {
			return drv.Title(ctx)
		},
		"wait_for": func(selector string, seconds float64) (bool, error) {
			err := drv.WaitFor(ctx, selector, time.Duration(seconds*float64(time.Second)))
			if err != nil {
				if driver.FaultCodeOf(err) == driver.FaultTimeout {
					return false, nil
				}
				return false, err
			}
			return true, nil
		},
		"values": ec.Values,
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return false, errors.Wrap(errors.KindAction, fmt.Sprintf("condition %q failed", expression), err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, errors.Newf(errors.KindValidation,
			"condition %q evaluated to %T, expected bool", expression, out)
	}
	return b, nil
}

func (e *ConditionEvaluator) compile(expression string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cache[expression]; ok {
		return p, nil
	}
	p, err := expr.Compile(expression)
	if err != nil {
		return nil, errors.Wrap(errors.KindValidation,
			fmt.Sprintf("condition %q does not compile", expression), err)
	}
	e.cache[expression] = p
	return p, nil
}
