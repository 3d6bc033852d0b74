package workflow

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/driver"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// Executor validates and executes one leaf action, converting every fault
// into a failure result with a stable error_type tag. Faults never bubble
// past it; the execution manager only ever sees results.
type Executor struct {
	drv    driver.Driver
	creds  action.CredentialProvider
	logger *slog.Logger
	exec   ExecFunc
}

// NewExecutor creates an executor bound to one run's driver handle.
func NewExecutor(drv driver.Driver, creds action.CredentialProvider, logger *slog.Logger, middleware ...Middleware) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{drv: drv, creds: creds, logger: logger}
	e.exec = Chain(e.executeCore, middleware...)
	return e
}

// ExecuteAction runs one leaf action through the middleware chain.
func (e *Executor) ExecuteAction(ctx context.Context, act action.Action, ec *action.ExecutionContext) action.Result {
	return e.exec(ctx, act, ec)
}

func (e *Executor) executeCore(ctx context.Context, act action.Action, ec *action.ExecutionContext) (result action.Result) {
	// A panicking action implementation must not take the run down; it
	// becomes a failure result like any other fault.
	defer func() {
		if r := recover(); r != nil {
			result = action.Failure(
				fmt.Sprintf("Unexpected panic in action %s: %v", act.Name(), r),
				map[string]any{action.DataErrorType: action.ErrorTypeUnexpected},
				fmt.Errorf("panic: %v", r),
			)
		}
	}()

	if err := act.Validate(); err != nil {
		return action.Failure(
			fmt.Sprintf("Validation failed: %v", err),
			map[string]any{action.DataErrorType: action.ErrorTypeValidation},
			err,
		)
	}

	leaf, ok := act.(action.Executable)
	if !ok {
		// Control flow is dispatched to the handlers by the manager; one
		// arriving here is a wiring bug, reported as a failure rather than
		// a crash.
		return action.Failure(
			fmt.Sprintf("implementation error: action %s (%s) is not executable", act.Name(), act.Type()),
			map[string]any{action.DataErrorType: action.ErrorTypeUnexpected},
			nil,
		)
	}

	result, err := leaf.Execute(ctx, e.drv, e.creds, ec)
	if err != nil {
		return e.failureFromError(act, err)
	}
	if result.Status != action.StatusSuccess && result.Status != action.StatusFailure {
		return action.Failure(
			"implementation error: invalid result from action "+act.Name(),
			map[string]any{action.DataErrorType: action.ErrorTypeUnexpected},
			nil,
		)
	}
	return result
}

// failureFromError maps an execution fault to a failure result with the
// stable error_type string callers match on.
func (e *Executor) failureFromError(act action.Action, err error) action.Result {
	errorType := action.ErrorTypeUnexpected
	switch errors.KindOf(err) {
	case errors.KindValidation:
		errorType = action.ErrorTypeValidation
	case errors.KindAction:
		errorType = action.ErrorTypeAction
	case errors.KindCredential:
		errorType = action.ErrorTypeCredential
	case errors.KindWebDriver:
		switch driver.FaultCodeOf(err) {
		case driver.FaultNotFound, driver.FaultNotInteractable:
			errorType = action.ErrorTypeElement
		case driver.FaultStaleElement:
			errorType = action.ErrorTypeStale
		case driver.FaultTimeout:
			errorType = action.ErrorTypeTimeout
		default:
			errorType = action.ErrorTypeWebDriver
		}
	default:
		if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
			errorType = action.ErrorTypeAction
			break
		}
		// Raw backend errors that slipped past the driver wrapper are
		// classified by message so the stable tags still apply.
		switch driver.Classify(err) {
		case driver.FaultNotFound, driver.FaultNotInteractable:
			errorType = action.ErrorTypeElement
		case driver.FaultStaleElement:
			errorType = action.ErrorTypeStale
		case driver.FaultTimeout:
			errorType = action.ErrorTypeTimeout
		default:
			errorType = action.ErrorTypeUnexpected
		}
	}
	return action.Failure(
		fmt.Sprintf("Action %s failed: %v", act.Name(), err),
		map[string]any{action.DataErrorType: errorType},
		err,
	)
}
