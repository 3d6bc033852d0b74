package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/driver"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// Handlers executes the control-flow variants. Each handler re-enters the
// execution manager for its branches with a prefix-extended path, so nested
// positions read "Step 3 > Cond > Step 1 > Loop [iter 2] > Step 4".
//
// A handler returns an error only for a workflow stop; every other outcome,
// including branch failures, is reported as a Result whose data carries the
// branch sub-results.
type Handlers struct {
	drv       driver.Driver
	evaluator *ConditionEvaluator
	templates Repository
	logger    *slog.Logger
}

// NewHandlers creates the control-flow handlers for one run.
func NewHandlers(drv driver.Driver, evaluator *ConditionEvaluator, templates Repository, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if evaluator == nil {
		evaluator = NewConditionEvaluator()
	}
	return &Handlers{drv: drv, evaluator: evaluator, templates: templates, logger: logger}
}

// Conditional evaluates the predicate and executes the matching branch.
func (h *Handlers) Conditional(ctx context.Context, m *Manager, a *action.ConditionalAction, ec *action.ExecutionContext, stepPath string) (action.Result, error) {
	ascend, err := ec.Descend()
	if err != nil {
		return depthFailure(a, err), nil
	}
	defer ascend()

	cond, err := h.evaluator.Evaluate(ctx, h.drv, ec, a.Condition)
	if err != nil {
		return action.Failure(
			fmt.Sprintf("Condition evaluation failed for %s: %v", a.Name(), err),
			map[string]any{action.DataErrorType: errorTypeForEvalError(err)},
			err,
		), nil
	}

	branch := a.FalseBranch
	branchName := "false"
	if cond {
		branch = a.TrueBranch
		branchName = "true"
	}

	results, execErr := m.ExecuteActions(ctx, branch, ec, action.ChildPrefix(stepPath, "Cond"))
	data := map[string]any{
		action.DataBranch:        branchName,
		action.DataBranchResults: action.ResultsToMaps(results),
	}
	if execErr != nil {
		if errors.IsStoppedByUser(execErr) {
			return action.Result{}, execErr
		}
		return action.Failure(
			fmt.Sprintf("Conditional %s took %s branch, which failed: %v", a.Name(), branchName, execErr),
			data, execErr,
		), nil
	}
	if !action.AllSucceeded(results) {
		return action.Failure(
			fmt.Sprintf("Conditional %s took %s branch: %d of %d actions failed",
				a.Name(), branchName, countFailures(results), len(results)),
			data, nil,
		), nil
	}
	return action.Success(
		fmt.Sprintf("Conditional %s took %s branch: %d actions succeeded", a.Name(), branchName, len(results)),
		data,
	), nil
}

// Loop iterates the body under the configured iterator, bounded by the
// iteration cap.
func (h *Handlers) Loop(ctx context.Context, m *Manager, a *action.LoopAction, ec *action.ExecutionContext, stepPath string) (action.Result, error) {
	ascend, err := ec.Descend()
	if err != nil {
		return depthFailure(a, err), nil
	}
	defer ascend()

	var iterationResults []any
	completed := 0
	hadFailures := false

	for iteration := 1; ; iteration++ {
		if iteration > action.MaxLoopIterations {
			return action.Failure(
				fmt.Sprintf("loop cap exceeded: %s stopped after %d iterations", a.Name(), action.MaxLoopIterations),
				map[string]any{action.DataIterations: completed},
				nil,
			), nil
		}

		switch a.Kind {
		case action.LoopKindCount:
			if iteration > a.Count {
				return h.loopDone(a, completed, hadFailures, iterationResults), nil
			}
		case action.LoopKindWhile:
			cond, err := h.evaluator.Evaluate(ctx, h.drv, ec, a.Condition)
			if err != nil {
				return action.Failure(
					fmt.Sprintf("Loop condition failed for %s: %v", a.Name(), err),
					map[string]any{
						action.DataErrorType:  errorTypeForEvalError(err),
						action.DataIterations: completed,
					},
					err,
				), nil
			}
			if !cond {
				return h.loopDone(a, completed, hadFailures, iterationResults), nil
			}
		}

		iterPath := action.ChildPrefix(stepPath, fmt.Sprintf("Loop [iter %d]", iteration))
		results, execErr := m.ExecuteActions(ctx, a.Body, ec, iterPath)
		iterationResults = append(iterationResults, action.ResultsToMaps(results))
		if !action.AllSucceeded(results) {
			hadFailures = true
		}
		if execErr != nil {
			if errors.IsStoppedByUser(execErr) {
				return action.Result{}, execErr
			}
			return action.Failure(
				fmt.Sprintf("Loop %s failed on iteration %d: %v", a.Name(), iteration, execErr),
				map[string]any{
					action.DataIterations:    completed,
					action.DataBranchResults: iterationResults,
				},
				execErr,
			), nil
		}
		completed = iteration
	}
}

func (h *Handlers) loopDone(a *action.LoopAction, completed int, hadFailures bool, iterationResults []any) action.Result {
	data := map[string]any{
		action.DataIterations:    completed,
		action.DataBranchResults: iterationResults,
	}
	if hadFailures {
		return action.Failure(
			fmt.Sprintf("Loop %s completed %d iterations with failures", a.Name(), completed),
			data, nil,
		)
	}
	return action.Success(
		fmt.Sprintf("Loop %s completed %d iterations", a.Name(), completed),
		data,
	)
}

// ErrorHandling runs the try branch with stop-on-error semantics and falls
// back to the catch branch when it fails. The overall result is a success
// iff the try branch fully succeeded or the catch branch did.
func (h *Handlers) ErrorHandling(ctx context.Context, m *Manager, a *action.ErrorHandlingAction, ec *action.ExecutionContext, stepPath string) (action.Result, error) {
	ascend, err := ec.Descend()
	if err != nil {
		return depthFailure(a, err), nil
	}
	defer ascend()

	tryResults, tryErr := m.withStrategy(StopOnError).ExecuteActions(ctx, a.Try, ec, action.ChildPrefix(stepPath, "Try"))
	data := map[string]any{
		"try_results": action.ResultsToMaps(tryResults),
	}
	if tryErr == nil && action.AllSucceeded(tryResults) {
		data[action.DataBranch] = "try"
		return action.Success(
			fmt.Sprintf("ErrorHandling %s: try branch succeeded (%d actions)", a.Name(), len(tryResults)),
			data,
		), nil
	}
	if tryErr != nil && errors.IsStoppedByUser(tryErr) {
		return action.Result{}, tryErr
	}

	h.logger.Info("try branch failed, running catch",
		"action", a.Name(),
		"position", stepPath,
		"error", tryErr,
	)

	catchResults, catchErr := m.withStrategy(StopOnError).ExecuteActions(ctx, a.Catch, ec, action.ChildPrefix(stepPath, "Catch"))
	data[action.DataBranch] = "catch"
	data["catch_results"] = action.ResultsToMaps(catchResults)
	if catchErr != nil {
		if errors.IsStoppedByUser(catchErr) {
			return action.Result{}, catchErr
		}
		return action.Failure(
			fmt.Sprintf("ErrorHandling %s: catch branch failed: %v", a.Name(), catchErr),
			data, catchErr,
		), nil
	}
	return action.Success(
		fmt.Sprintf("ErrorHandling %s: try failed, catch succeeded (%d actions)", a.Name(), len(catchResults)),
		data,
	), nil
}

// Template expands a named sub-workflow in place. Expansions are cycle-free
// by construction: a template already on the expansion path is rejected.
func (h *Handlers) Template(ctx context.Context, m *Manager, a *action.TemplateAction, ec *action.ExecutionContext, stepPath string) (action.Result, error) {
	ascend, err := ec.Descend()
	if err != nil {
		return depthFailure(a, err), nil
	}
	defer ascend()

	if h.templates == nil {
		return action.Failure(
			fmt.Sprintf("Template %s cannot expand: no workflow repository configured", a.Name()),
			map[string]any{action.DataErrorType: action.ErrorTypeUnexpected},
			nil,
		), nil
	}
	if !ec.EnterTemplate(a.TemplateName) {
		return action.Failure(
			fmt.Sprintf("template cycle: %s expands itself", a.TemplateName),
			map[string]any{action.DataTemplateName: a.TemplateName},
			nil,
		), nil
	}
	defer ec.LeaveTemplate(a.TemplateName)

	expanded, err := h.templates.Load(ctx, a.TemplateName)
	if err != nil {
		return action.Failure(
			fmt.Sprintf("Template %s not available: %v", a.TemplateName, err),
			map[string]any{
				action.DataErrorType:    action.ErrorTypeAction,
				action.DataTemplateName: a.TemplateName,
			},
			err,
		), nil
	}

	results, execErr := m.ExecuteActions(ctx, expanded, ec, action.ChildPrefix(stepPath, "Template "+a.TemplateName))
	data := map[string]any{
		action.DataTemplateName:  a.TemplateName,
		action.DataBranchResults: action.ResultsToMaps(results),
	}
	if execErr != nil {
		if errors.IsStoppedByUser(execErr) {
			return action.Result{}, execErr
		}
		return action.Failure(
			fmt.Sprintf("Template %s failed: %v", a.TemplateName, execErr),
			data, execErr,
		), nil
	}
	if !action.AllSucceeded(results) {
		return action.Failure(
			fmt.Sprintf("Template %s: %d of %d actions failed", a.TemplateName, countFailures(results), len(results)),
			data, nil,
		), nil
	}
	return action.Success(
		fmt.Sprintf("Template %s: %d actions succeeded", a.TemplateName, len(results)),
		data,
	), nil
}

func depthFailure(a action.Action, err error) action.Result {
	return action.Failure(
		fmt.Sprintf("%s rejected: %v", a.Name(), err),
		map[string]any{action.DataErrorType: action.ErrorTypeAction},
		err,
	)
}

func errorTypeForEvalError(err error) string {
	if errors.KindOf(err) == errors.KindValidation {
		return action.ErrorTypeValidation
	}
	return action.ErrorTypeAction
}

func countFailures(results []action.Result) int {
	n := 0
	for _, r := range results {
		if !r.IsSuccess() {
			n++
		}
	}
	return n
}
