package action

import (
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// MaxLoopIterations caps loop execution regardless of iterator kind. A loop
// that reaches the cap fails rather than running away with the browser.
const MaxLoopIterations = 1000

// Iterator kinds for LoopAction.
const (
	LoopKindCount = "count"
	LoopKindWhile = "while"
)

// ConditionalAction evaluates a predicate over driver state and executes one
// of two branches. Execution happens in the control-flow handlers, which
// re-enter the execution manager; the variant itself only models the tree.
type ConditionalAction struct {
	base
	Condition   string   `json:"condition"`
	TrueBranch  []Action `json:"true_branch"`
	FalseBranch []Action `json:"false_branch"`
}

// NewConditional creates a Conditional action. Either branch may be empty.
func NewConditional(name, condition string, trueBranch, falseBranch []Action) *ConditionalAction {
	return &ConditionalAction{
		base:        base{ActionName: name},
		Condition:   condition,
		TrueBranch:  trueBranch,
		FalseBranch: falseBranch,
	}
}

func (a *ConditionalAction) Type() string { return TypeConditional }

func (a *ConditionalAction) Validate() error {
	if a.Condition == "" {
		return errors.NewValidation(a.ActionName, "conditional requires a condition expression")
	}
	return nil
}

func (a *ConditionalAction) Children() []Action {
	children := make([]Action, 0, len(a.TrueBranch)+len(a.FalseBranch))
	children = append(children, a.TrueBranch...)
	children = append(children, a.FalseBranch...)
	return children
}

func (a *ConditionalAction) ToMap() map[string]any {
	return map[string]any{
		"type":         TypeConditional,
		"name":         a.ActionName,
		"condition":    a.Condition,
		"true_branch":  actionsToMaps(a.TrueBranch),
		"false_branch": actionsToMaps(a.FalseBranch),
	}
}

// LoopAction repeats its body, either a fixed number of times or while a
// condition holds.
type LoopAction struct {
	base
	Kind      string   `json:"kind"`
	Count     int      `json:"count,omitempty"`
	Condition string   `json:"condition,omitempty"`
	Body      []Action `json:"body"`
}

// NewCountLoop creates a Loop that runs its body count times.
func NewCountLoop(name string, count int, body []Action) *LoopAction {
	return &LoopAction{base: base{ActionName: name}, Kind: LoopKindCount, Count: count, Body: body}
}

// NewWhileLoop creates a Loop that runs while condition evaluates true.
func NewWhileLoop(name, condition string, body []Action) *LoopAction {
	return &LoopAction{base: base{ActionName: name}, Kind: LoopKindWhile, Condition: condition, Body: body}
}

func (a *LoopAction) Type() string { return TypeLoop }

func (a *LoopAction) Validate() error {
	if len(a.Body) == 0 {
		return errors.NewValidation(a.ActionName, "loop requires a non-empty body")
	}
	switch a.Kind {
	case LoopKindCount:
		if a.Count <= 0 {
			return errors.NewValidation(a.ActionName, "count loop requires a positive count")
		}
	case LoopKindWhile:
		if a.Condition == "" {
			return errors.NewValidation(a.ActionName, "while loop requires a condition expression")
		}
	default:
		return errors.NewValidation(a.ActionName, "loop kind must be count or while")
	}
	return nil
}

func (a *LoopAction) Children() []Action {
	return append([]Action(nil), a.Body...)
}

func (a *LoopAction) ToMap() map[string]any {
	iterator := map[string]any{"kind": a.Kind}
	switch a.Kind {
	case LoopKindCount:
		iterator["count"] = a.Count
	case LoopKindWhile:
		iterator["condition"] = a.Condition
	}
	return map[string]any{
		"type":     TypeLoop,
		"name":     a.ActionName,
		"iterator": iterator,
		"body":     actionsToMaps(a.Body),
	}
}

// ErrorHandlingAction runs its try branch and, when that fails, the catch
// branch.
type ErrorHandlingAction struct {
	base
	Try   []Action `json:"try"`
	Catch []Action `json:"catch"`
}

// NewErrorHandling creates an ErrorHandling action.
func NewErrorHandling(name string, try, catch []Action) *ErrorHandlingAction {
	return &ErrorHandlingAction{base: base{ActionName: name}, Try: try, Catch: catch}
}

func (a *ErrorHandlingAction) Type() string { return TypeErrorHandling }

func (a *ErrorHandlingAction) Validate() error {
	if len(a.Try) == 0 {
		return errors.NewValidation(a.ActionName, "error handling requires a non-empty try branch")
	}
	if len(a.Catch) == 0 {
		return errors.NewValidation(a.ActionName, "error handling requires a non-empty catch branch")
	}
	return nil
}

func (a *ErrorHandlingAction) Children() []Action {
	children := make([]Action, 0, len(a.Try)+len(a.Catch))
	children = append(children, a.Try...)
	children = append(children, a.Catch...)
	return children
}

func (a *ErrorHandlingAction) ToMap() map[string]any {
	return map[string]any{
		"type":  TypeErrorHandling,
		"name":  a.ActionName,
		"try":   actionsToMaps(a.Try),
		"catch": actionsToMaps(a.Catch),
	}
}

// TemplateAction expands a named sub-workflow in place. Resolution happens
// at execution time through the workflow repository, so a template edit is
// picked up by the next run without re-saving its callers.
type TemplateAction struct {
	base
	TemplateName string `json:"template_name"`
}

// NewTemplate creates a Template action.
func NewTemplate(name, templateName string) *TemplateAction {
	return &TemplateAction{base: base{ActionName: name}, TemplateName: templateName}
}

func (a *TemplateAction) Type() string { return TypeTemplate }

func (a *TemplateAction) Validate() error {
	if a.TemplateName == "" {
		return errors.NewValidation(a.ActionName, "template requires a template name")
	}
	return nil
}

func (a *TemplateAction) ToMap() map[string]any {
	return map[string]any{"type": TypeTemplate, "name": a.ActionName, "template_name": a.TemplateName}
}

func actionsToMaps(actions []Action) []map[string]any {
	out := make([]map[string]any, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.ToMap())
	}
	return out
}

// ToMaps renders an action sequence in wire shape.
func ToMaps(actions []Action) []map[string]any {
	return actionsToMaps(actions)
}
