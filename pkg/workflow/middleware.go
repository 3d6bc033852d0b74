package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/autoqliq/autoqliq/pkg/action"
)

// ExecFunc executes one leaf action and reports its result.
type ExecFunc func(ctx context.Context, act action.Action, ec *action.ExecutionContext) action.Result

// Middleware wraps leaf execution without touching sequencing semantics.
// Middlewares compose around the executor core in registration order: the
// first registered is the outermost.
type Middleware func(next ExecFunc) ExecFunc

// MetricsCollector receives per-action and per-run measurements. The metrics
// package provides a Prometheus-backed implementation; a nil collector
// disables recording.
type MetricsCollector interface {
	RecordActionDuration(actionType string, d time.Duration)
	RecordActionSuccess(actionType string)
	RecordActionFailure(actionType string)
	RecordRun(finalStatus string, d time.Duration)
}

// Chain composes middlewares around a core exec function.
func Chain(core ExecFunc, middleware ...Middleware) ExecFunc {
	wrapped := core
	for i := len(middleware) - 1; i >= 0; i-- {
		wrapped = middleware[i](wrapped)
	}
	return wrapped
}

// LoggingMiddleware logs every leaf execution with its position and outcome.
func LoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ExecFunc) ExecFunc {
		return func(ctx context.Context, act action.Action, ec *action.ExecutionContext) action.Result {
			start := time.Now()
			result := next(ctx, act, ec)
			logger.Info("action executed",
				"workflow", ec.WorkflowName,
				"position", ec.LogPrefix,
				"action", act.Name(),
				"type", act.Type(),
				"status", string(result.Status),
				"duration", time.Since(start),
			)
			if !result.IsSuccess() {
				logger.Warn("action failed",
					"workflow", ec.WorkflowName,
					"position", ec.LogPrefix,
					"action", act.Name(),
					"message", result.Message,
					"error", result.Cause,
				)
			}
			return result
		}
	}
}

// MetricsMiddleware records duration and outcome per action type.
func MetricsMiddleware(collector MetricsCollector) Middleware {
	return func(next ExecFunc) ExecFunc {
		return func(ctx context.Context, act action.Action, ec *action.ExecutionContext) action.Result {
			if collector == nil {
				return next(ctx, act, ec)
			}
			start := time.Now()
			result := next(ctx, act, ec)
			collector.RecordActionDuration(act.Type(), time.Since(start))
			if result.IsSuccess() {
				collector.RecordActionSuccess(act.Type())
			} else {
				collector.RecordActionFailure(act.Type())
			}
			return result
		}
	}
}
