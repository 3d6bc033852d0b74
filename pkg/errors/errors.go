// Package errors defines the error taxonomy shared by the execution engine.
//
// Every fault that crosses a component boundary is represented by *Error,
// which carries a Kind, a message, an optional underlying cause, and a
// context map for kind-specific detail (action name, workflow name, driver
// type, credential name). Conversion from backend faults into this taxonomy
// happens at the boundaries that own them: the driver lifecycle manager for
// browser faults, the action executor for execution faults, the repositories
// for persistence faults.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error into one of the engine's failure categories.
type Kind string

const (
	// KindValidation marks an action rejected before execution.
	KindValidation Kind = "validation"
	// KindAction marks a leaf action that failed during execution.
	KindAction Kind = "action"
	// KindWorkflow marks an orchestration failure, including user stops.
	KindWorkflow Kind = "workflow"
	// KindWebDriver marks a browser-backend fault.
	KindWebDriver Kind = "webdriver"
	// KindCredential marks a failed credential lookup.
	KindCredential Kind = "credential"
	// KindConfig marks invalid configuration.
	KindConfig Kind = "config"
	// KindRepository marks a persistence-collaborator fault.
	KindRepository Kind = "repository"
)

// Context keys used across the engine. Components attach these so the result
// processor and log sinks can report where a fault originated.
const (
	CtxActionName     = "action_name"
	CtxWorkflowName   = "workflow_name"
	CtxDriverType     = "driver_type"
	CtxCredentialName = "credential_name"
	CtxTemplateName   = "template_name"
	CtxJobID          = "job_id"
)

// StoppedByUserMessage is the canonical message for a cooperative stop. The
// status classifier matches on it to label a run STOPPED rather than FAILED.
const StoppedByUserMessage = "workflow stopped by request"

// Error is the engine's taxonomy error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]any
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// With attaches a context value and returns the error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any, 4)
	}
	e.Context[key] = value
	return e
}

// ContextValue returns a context value attached with With.
func (e *Error) ContextValue(key string) (any, bool) {
	v, ok := e.Context[key]
	return v, ok
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the taxonomy kind of err, or "" when err is not a taxonomy
// error anywhere in its chain.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsKind reports whether err (or anything it wraps) is a taxonomy error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsStoppedByUser reports whether err represents a cooperative user stop.
func IsStoppedByUser(err error) bool {
	if err == nil {
		return false
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == KindWorkflow && strings.Contains(te.Message, "stopped by request")
	}
	return strings.Contains(err.Error(), "stopped by request")
}

// NewStoppedByUser creates the workflow error raised at a cancellation check.
func NewStoppedByUser(workflowName string) *Error {
	return New(KindWorkflow, StoppedByUserMessage).With(CtxWorkflowName, workflowName)
}

// NewValidation creates a validation error for an action.
func NewValidation(actionName, message string) *Error {
	return New(KindValidation, message).With(CtxActionName, actionName)
}

// NewAction creates an action execution error.
func NewAction(actionName, message string, cause error) *Error {
	return Wrap(KindAction, message, cause).With(CtxActionName, actionName)
}

// NewCredential creates a credential lookup error.
func NewCredential(credentialName, message string) *Error {
	return New(KindCredential, message).With(CtxCredentialName, credentialName)
}

// NewConfig creates a configuration error.
func NewConfig(message string) *Error {
	return New(KindConfig, message)
}

// NewRepository creates a persistence error.
func NewRepository(message string, cause error) *Error {
	return Wrap(KindRepository, message, cause)
}

// NewWebDriver creates a driver backend error.
func NewWebDriver(driverType, message string, cause error) *Error {
	return Wrap(KindWebDriver, message, cause).With(CtxDriverType, driverType)
}
