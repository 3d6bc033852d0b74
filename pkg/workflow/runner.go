package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/driver"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// Runner composes the driver lifecycle, the execution manager, and the
// result processor for one workflow invocation. It is the single component
// that knows both about driver lifetime and log assembly, and the single
// exception firewall: Run never returns an error, the log carries whatever
// terminated the run.
type Runner struct {
	driverManager *driver.Manager
	driverOptions driver.Options
	credentials   action.CredentialProvider
	workflows     Repository
	strategy      ErrorStrategy
	processor     *Processor
	evaluator     *ConditionEvaluator
	metrics       MetricsCollector
	middleware    []Middleware
	logger        *slog.Logger
}

// RunnerConfig wires a Runner. DriverManager is required; everything else
// has a working default.
type RunnerConfig struct {
	DriverManager *driver.Manager
	DriverOptions driver.Options
	Credentials   action.CredentialProvider
	Workflows     Repository
	Strategy      ErrorStrategy
	Processor     *Processor
	Evaluator     *ConditionEvaluator
	Metrics       MetricsCollector
	Middleware    []Middleware
	Logger        *slog.Logger
}

// NewRunner creates a workflow runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Processor == nil {
		cfg.Processor = NewProcessor()
	}
	if cfg.Evaluator == nil {
		cfg.Evaluator = NewConditionEvaluator()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StopOnError
	}
	return &Runner{
		driverManager: cfg.DriverManager,
		driverOptions: cfg.DriverOptions,
		credentials:   cfg.Credentials,
		workflows:     cfg.Workflows,
		strategy:      cfg.Strategy,
		processor:     cfg.Processor,
		evaluator:     cfg.Evaluator,
		metrics:       cfg.Metrics,
		middleware:    cfg.Middleware,
		logger:        cfg.Logger,
	}
}

// Run executes actions as the workflow workflowName and returns its log.
// Cancellation of ctx stops the run at the next step boundary or suspension
// point; the driver is released on every exit path.
func (r *Runner) Run(ctx context.Context, actions []action.Action, workflowName string) *ExecutionLog {
	start := time.Now()
	runID := uuid.NewString()
	ec := action.NewExecutionContext(workflowName, runID)

	r.logger.Info("workflow run starting",
		"workflow", workflowName,
		"run_id", runID,
		"actions", len(actions),
		"strategy", string(r.strategy),
	)

	results, terminalErr := r.execute(ctx, actions, ec)

	log := r.processor.Process(workflowName, results, start, terminalErr, r.strategy)
	if r.metrics != nil {
		r.metrics.RecordRun(string(log.FinalStatus), time.Since(start))
	}
	r.logger.Info("workflow run finished",
		"workflow", workflowName,
		"run_id", runID,
		"status", string(log.FinalStatus),
		"results", len(log.ActionResults),
		"duration_seconds", log.DurationSeconds,
	)
	return log
}

// RunByName loads a stored workflow and runs it.
func (r *Runner) RunByName(ctx context.Context, workflowName string) *ExecutionLog {
	start := time.Now()
	if r.workflows == nil {
		err := errors.New(errors.KindRepository, "no workflow repository configured")
		return r.processor.Process(workflowName, nil, start, err, r.strategy)
	}
	actions, err := r.workflows.Load(ctx, workflowName)
	if err != nil {
		return r.processor.Process(workflowName, nil, start,
			errors.Wrap(errors.KindRepository, fmt.Sprintf("cannot load workflow %q", workflowName), err),
			r.strategy)
	}
	return r.Run(ctx, actions, workflowName)
}

// execute owns driver lifetime: acquisition, the delegation to the
// execution manager, and guaranteed release, with panics contained into the
// terminal error.
func (r *Runner) execute(ctx context.Context, actions []action.Action, ec *action.ExecutionContext) (results []action.Result, terminalErr error) {
	defer func() {
		if rec := recover(); rec != nil {
			terminalErr = errors.Newf(errors.KindWorkflow, "unexpected panic during run: %v", rec).
				With(errors.CtxWorkflowName, ec.WorkflowName)
		}
	}()

	if ctx.Err() != nil {
		return nil, errors.NewStoppedByUser(ec.WorkflowName)
	}

	lease, err := r.driverManager.Acquire(ctx, r.driverOptions)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	drv := lease.Driver()
	executor := NewExecutor(drv, r.credentials, r.logger, r.buildMiddleware()...)
	handlers := NewHandlers(drv, r.evaluator, r.workflows, r.logger)
	manager := NewManager(executor, handlers, r.strategy, r.logger)

	return manager.ExecuteActions(ctx, actions, ec, "")
}

func (r *Runner) buildMiddleware() []Middleware {
	mw := []Middleware{LoggingMiddleware(r.logger)}
	if r.metrics != nil {
		mw = append(mw, MetricsMiddleware(r.metrics))
	}
	return append(mw, r.middleware...)
}
