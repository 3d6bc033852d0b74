package action

import (
	"context"

	"github.com/autoqliq/autoqliq/pkg/driver"
)

// Type tags. These are the wire-format literals; the factory rejects
// anything else.
const (
	TypeNavigate      = "Navigate"
	TypeClick         = "Click"
	TypeType          = "Type"
	TypeWait          = "Wait"
	TypeScreenshot    = "Screenshot"
	TypeConditional   = "Conditional"
	TypeLoop          = "Loop"
	TypeErrorHandling = "ErrorHandling"
	TypeTemplate      = "Template"
)

// Action is the contract every variant satisfies. Actions are immutable
// after construction; validation never mutates.
type Action interface {
	// Name returns the author-assigned name, used in logs and error context.
	Name() string

	// Type returns the variant tag.
	Type() string

	// Validate checks the variant's invariants, returning a validation-kind
	// taxonomy error on the first violation.
	Validate() error

	// ToMap renders the action in its wire shape, recursively for nested
	// branches. The factory reverses it exactly.
	ToMap() map[string]any
}

// Executable is implemented by leaf variants, which act on the driver
// directly. Control-flow variants are not Executable; the execution manager
// dispatches them to the control-flow handlers instead.
type Executable interface {
	Action

	// Execute performs the action and reports its outcome as a Result.
	// Backend faults are returned as errors and mapped to failure results by
	// the executor, so leaves stay free of result-formatting policy.
	Execute(ctx context.Context, drv driver.Driver, creds CredentialProvider, ec *ExecutionContext) (Result, error)
}

// ControlFlow is implemented by the branching variants so the handlers can
// reach their children without switching on concrete types everywhere.
type ControlFlow interface {
	Action

	// Children returns every nested action across all branches, in
	// serialization order. Used for whole-tree validation.
	Children() []Action
}

// base carries the common header every variant embeds.
type base struct {
	ActionName string `json:"name"`
}

func (b base) Name() string {
	return b.ActionName
}

// ValidateAll validates a sequence of actions, descending into control flow.
// It returns the first violation found.
func ValidateAll(actions []Action) error {
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return err
		}
		if cf, ok := a.(ControlFlow); ok {
			if err := ValidateAll(cf.Children()); err != nil {
				return err
			}
		}
	}
	return nil
}
