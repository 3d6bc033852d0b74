package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// Manager orchestrates one action sequence: it checks cancellation before
// every step, dispatches leaves to the executor and control flow to the
// handlers, collects results in execution order, and enforces the error
// strategy.
//
// The manager never swallows an error raised by a handler; only failures
// reported as results are subject to the strategy. The two errors it raises
// are the workflow stop (cancellation) and the action error that aborts a
// STOP_ON_ERROR run.
type Manager struct {
	executor *Executor
	handlers *Handlers
	strategy ErrorStrategy
	logger   *slog.Logger
}

// NewManager creates an execution manager.
func NewManager(executor *Executor, handlers *Handlers, strategy ErrorStrategy, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if strategy == "" {
		strategy = StopOnError
	}
	return &Manager{executor: executor, handlers: handlers, strategy: strategy, logger: logger}
}

// Strategy returns the manager's error strategy.
func (m *Manager) Strategy() ErrorStrategy {
	return m.strategy
}

// withStrategy returns a manager sharing every collaborator but enforcing a
// different strategy. The error-handling handler uses it to give try
// branches stop-on-error semantics.
func (m *Manager) withStrategy(strategy ErrorStrategy) *Manager {
	clone := *m
	clone.strategy = strategy
	return &clone
}

// ExecuteActions runs actions in order under prefix, which is "" at the top
// level and the extended step path inside control-flow branches. The
// returned results are in execution order and may be shorter than actions
// when STOP_ON_ERROR aborts or the run is cancelled; the accompanying error
// is the terminal error in those cases.
func (m *Manager) ExecuteActions(ctx context.Context, actions []action.Action, ec *action.ExecutionContext, prefix string) ([]action.Result, error) {
	results := make([]action.Result, 0, len(actions))

	for i, act := range actions {
		// Cancellation is observed once before every step; branches inherit
		// the same signal through ctx.
		if ctx.Err() != nil {
			return results, errors.NewStoppedByUser(ec.WorkflowName)
		}

		stepPath := action.ChildPrefix(prefix, fmt.Sprintf("Step %d", i+1))
		if prefix == "" {
			ec.StepIndex = i
		}
		ec.LogPrefix = stepPath

		result, err := m.dispatch(ctx, act, ec, stepPath)
		if err != nil {
			// Handlers only raise for workflow stops; everything else they
			// report as a result.
			return results, err
		}

		results = append(results, result)

		if result.IsSuccess() {
			continue
		}
		ec.MarkActionFailure()

		// A failure produced by an interrupted suspension point is a stop,
		// not an action failure.
		if ctx.Err() != nil {
			return results, errors.NewStoppedByUser(ec.WorkflowName)
		}

		switch m.strategy {
		case ContinueOnError:
			m.logger.Warn("action failed, continuing",
				"workflow", ec.WorkflowName,
				"position", stepPath,
				"action", act.Name(),
				"message", result.Message,
			)
		default:
			return results, errors.NewAction(act.Name(),
				fmt.Sprintf("%s (%s) failed: %s", stepPath, act.Name(), result.Message),
				result.Cause,
			).With(errors.CtxWorkflowName, ec.WorkflowName)
		}
	}

	return results, nil
}

// dispatch routes one action to the matching handler or the leaf executor.
func (m *Manager) dispatch(ctx context.Context, act action.Action, ec *action.ExecutionContext, stepPath string) (action.Result, error) {
	switch a := act.(type) {
	case *action.ConditionalAction:
		return m.handlers.Conditional(ctx, m, a, ec, stepPath)
	case *action.LoopAction:
		return m.handlers.Loop(ctx, m, a, ec, stepPath)
	case *action.ErrorHandlingAction:
		return m.handlers.ErrorHandling(ctx, m, a, ec, stepPath)
	case *action.TemplateAction:
		return m.handlers.Template(ctx, m, a, ec, stepPath)
	default:
		return m.executor.ExecuteAction(ctx, act, ec), nil
	}
}
