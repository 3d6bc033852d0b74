package action

import (
	"fmt"
)

// MaxDepth bounds control-flow nesting (conditionals, loops, templates)
// so recursive expansion cannot exhaust the stack.
const MaxDepth = 10

// ExecutionContext is the per-run mutable state threaded through the
// pipeline. It carries coordination state only; the driver and credential
// collaborators are injected arguments, never smuggled through here.
//
// A context is owned by exactly one run and accessed sequentially, so it
// carries no locking.
type ExecutionContext struct {
	WorkflowName string
	RunID        string

	// StepIndex is the zero-based index of the step currently executing at
	// the top level of the run.
	StepIndex int

	// LogPrefix is the human-readable position of the current step, e.g.
	// "Step 3 > Cond > Step 1". Control-flow handlers extend it before
	// recursing.
	LogPrefix string

	// Values are run-scoped values visible to condition expressions.
	Values map[string]any

	// State collects pipeline coordination flags.
	State RunState

	activeTemplates map[string]bool
	depth           int
}

// RunState holds the flags the pipeline records as it goes.
type RunState struct {
	HadActionFailures bool
}

// NewExecutionContext creates the context for one run.
func NewExecutionContext(workflowName, runID string) *ExecutionContext {
	return &ExecutionContext{
		WorkflowName: workflowName,
		RunID:        runID,
		Values:       make(map[string]any),
	}
}

// MarkActionFailure records that at least one action reported failure.
func (ec *ExecutionContext) MarkActionFailure() {
	ec.State.HadActionFailures = true
}

// Descend enters one level of control-flow nesting. The returned function
// must be called when the branch finishes.
func (ec *ExecutionContext) Descend() (func(), error) {
	if ec.depth >= MaxDepth {
		return nil, fmt.Errorf("control-flow nesting exceeds maximum depth %d", MaxDepth)
	}
	ec.depth++
	return func() { ec.depth-- }, nil
}

// EnterTemplate records a template expansion in progress. It reports false
// when the template is already being expanded, which means the expansion
// recursed into itself.
func (ec *ExecutionContext) EnterTemplate(name string) bool {
	if ec.activeTemplates == nil {
		ec.activeTemplates = make(map[string]bool)
	}
	if ec.activeTemplates[name] {
		return false
	}
	ec.activeTemplates[name] = true
	return true
}

// LeaveTemplate clears a template expansion so sibling steps may expand the
// same template again. Only cycles within one expansion chain are rejected.
func (ec *ExecutionContext) LeaveTemplate(name string) {
	delete(ec.activeTemplates, name)
}

// ChildPrefix builds the log prefix for a nested step, producing paths such
// as "Step 3 > Cond > Step 1 > Loop [iter 2] > Step 4".
func ChildPrefix(parent, segment string) string {
	if parent == "" {
		return segment
	}
	return parent + " > " + segment
}
