// Package workflow implements the execution engine: the action executor,
// control-flow handlers, the execution manager that sequences a run, the
// result processor that assembles execution logs, and the runner facade that
// ties driver lifetime to one invocation.
package workflow

import (
	"context"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// ErrorStrategy decides whether a failing action aborts the run or merely
// marks it and continues.
type ErrorStrategy string

const (
	// StopOnError aborts the run at the first failure result. Default.
	StopOnError ErrorStrategy = "STOP_ON_ERROR"
	// ContinueOnError records the failure and proceeds to the next step.
	ContinueOnError ErrorStrategy = "CONTINUE_ON_ERROR"
)

// ParseErrorStrategy validates a strategy name. Empty selects the default.
func ParseErrorStrategy(name string) (ErrorStrategy, error) {
	switch ErrorStrategy(name) {
	case "":
		return StopOnError, nil
	case StopOnError, ContinueOnError:
		return ErrorStrategy(name), nil
	default:
		return "", errors.Newf(errors.KindConfig, "unknown error strategy %q", name)
	}
}

// Repository is the slice of the workflow store the engine consumes: the
// template handler resolves named sub-workflows through it and the scheduler
// loads workflows by name before a fire.
type Repository interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) ([]action.Action, error)
}
