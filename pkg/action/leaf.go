package action

import (
	"context"
	"fmt"
	"time"

	"github.com/autoqliq/autoqliq/pkg/driver"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// NavigateAction loads a URL.
type NavigateAction struct {
	base
	URL string `json:"url"`
}

// NewNavigate creates a Navigate action.
func NewNavigate(name, url string) *NavigateAction {
	return &NavigateAction{base: base{ActionName: name}, URL: url}
}

func (a *NavigateAction) Type() string { return TypeNavigate }

func (a *NavigateAction) Validate() error {
	if a.URL == "" {
		return errors.NewValidation(a.ActionName, "navigate requires a non-empty url")
	}
	return nil
}

func (a *NavigateAction) Execute(ctx context.Context, drv driver.Driver, _ CredentialProvider, _ *ExecutionContext) (Result, error) {
	if err := drv.Navigate(ctx, a.URL); err != nil {
		return Result{}, err
	}
	return Success(fmt.Sprintf("Navigated to %s", a.URL), nil), nil
}

func (a *NavigateAction) ToMap() map[string]any {
	return map[string]any{"type": TypeNavigate, "name": a.ActionName, "url": a.URL}
}

// ClickAction clicks an element, optionally verifying the page reacted by
// probing a success or failure selector afterwards.
type ClickAction struct {
	base
	Selector             string `json:"selector"`
	CheckSuccessSelector string `json:"check_success_selector,omitempty"`
	CheckFailureSelector string `json:"check_failure_selector,omitempty"`
}

// NewClick creates a Click action.
func NewClick(name, selector string) *ClickAction {
	return &ClickAction{base: base{ActionName: name}, Selector: selector}
}

func (a *ClickAction) Type() string { return TypeClick }

func (a *ClickAction) Validate() error {
	if a.Selector == "" {
		return errors.NewValidation(a.ActionName, "click requires a non-empty selector")
	}
	return nil
}

func (a *ClickAction) Execute(ctx context.Context, drv driver.Driver, _ CredentialProvider, _ *ExecutionContext) (Result, error) {
	if err := drv.Click(ctx, a.Selector); err != nil {
		return Result{}, err
	}
	if a.CheckFailureSelector != "" {
		present, err := drv.IsPresent(ctx, a.CheckFailureSelector)
		if err != nil {
			return Result{}, err
		}
		if present {
			return Failure(fmt.Sprintf("Click on %s triggered failure indicator %s", a.Selector, a.CheckFailureSelector), nil, nil), nil
		}
	}
	if a.CheckSuccessSelector != "" {
		present, err := drv.IsPresent(ctx, a.CheckSuccessSelector)
		if err != nil {
			return Result{}, err
		}
		if !present {
			return Failure(fmt.Sprintf("Click on %s did not produce success indicator %s", a.Selector, a.CheckSuccessSelector), nil, nil), nil
		}
	}
	return Success(fmt.Sprintf("Clicked %s", a.Selector), nil), nil
}

func (a *ClickAction) ToMap() map[string]any {
	m := map[string]any{"type": TypeClick, "name": a.ActionName, "selector": a.Selector}
	if a.CheckSuccessSelector != "" {
		m["check_success_selector"] = a.CheckSuccessSelector
	}
	if a.CheckFailureSelector != "" {
		m["check_failure_selector"] = a.CheckFailureSelector
	}
	return m
}

// Value sources for TypeAction.
const (
	ValueSourceLiteral    = "literal"
	ValueSourceCredential = "credential"
)

// TypeAction types text into an element. The text comes either literally
// from ValueKey or from the credential store, addressed as
// "<credential>.<field>". The resolved secret never lands in the result.
type TypeAction struct {
	base
	Selector    string `json:"selector"`
	ValueSource string `json:"value_source"`
	ValueKey    string `json:"value_key"`
}

// NewTypeLiteral creates a Type action with a literal value.
func NewTypeLiteral(name, selector, value string) *TypeAction {
	return &TypeAction{base: base{ActionName: name}, Selector: selector, ValueSource: ValueSourceLiteral, ValueKey: value}
}

// NewTypeCredential creates a Type action reading "<credential>.<field>".
func NewTypeCredential(name, selector, valueKey string) *TypeAction {
	return &TypeAction{base: base{ActionName: name}, Selector: selector, ValueSource: ValueSourceCredential, ValueKey: valueKey}
}

func (a *TypeAction) Type() string { return TypeType }

func (a *TypeAction) Validate() error {
	if a.Selector == "" {
		return errors.NewValidation(a.ActionName, "type requires a non-empty selector")
	}
	switch a.ValueSource {
	case ValueSourceLiteral:
	case ValueSourceCredential:
		if a.ValueKey == "" {
			return errors.NewValidation(a.ActionName, "credential value requires a \"<credential>.<field>\" key")
		}
	default:
		return errors.NewValidation(a.ActionName,
			fmt.Sprintf("unknown value source %q (expected literal or credential)", a.ValueSource))
	}
	return nil
}

func (a *TypeAction) Execute(ctx context.Context, drv driver.Driver, creds CredentialProvider, _ *ExecutionContext) (Result, error) {
	text := a.ValueKey
	if a.ValueSource == ValueSourceCredential {
		resolved, err := ResolveCredentialValue(ctx, creds, a.ValueKey)
		if err != nil {
			return Result{}, err
		}
		text = resolved
	}
	if err := drv.Type(ctx, a.Selector, text); err != nil {
		return Result{}, err
	}
	return Success(fmt.Sprintf("Typed into %s", a.Selector), nil), nil
}

func (a *TypeAction) ToMap() map[string]any {
	return map[string]any{
		"type":         TypeType,
		"name":         a.ActionName,
		"selector":     a.Selector,
		"value_source": a.ValueSource,
		"value_key":    a.ValueKey,
	}
}

// WaitAction pauses the run. The pause is a suspension point: cancellation
// interrupts it immediately.
type WaitAction struct {
	base
	DurationSeconds float64 `json:"duration_seconds"`
}

// NewWait creates a Wait action.
func NewWait(name string, seconds float64) *WaitAction {
	return &WaitAction{base: base{ActionName: name}, DurationSeconds: seconds}
}

func (a *WaitAction) Type() string { return TypeWait }

func (a *WaitAction) Validate() error {
	if a.DurationSeconds <= 0 {
		return errors.NewValidation(a.ActionName, "wait requires a positive duration")
	}
	return nil
}

func (a *WaitAction) Execute(ctx context.Context, _ driver.Driver, _ CredentialProvider, _ *ExecutionContext) (Result, error) {
	d := time.Duration(a.DurationSeconds * float64(time.Second))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return Success(fmt.Sprintf("Waited %.2fs", a.DurationSeconds), nil), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (a *WaitAction) ToMap() map[string]any {
	return map[string]any{"type": TypeWait, "name": a.ActionName, "duration_seconds": a.DurationSeconds}
}

// ScreenshotAction captures the current page to a file.
type ScreenshotAction struct {
	base
	FilePath string `json:"file_path"`
}

// NewScreenshot creates a Screenshot action.
func NewScreenshot(name, filePath string) *ScreenshotAction {
	return &ScreenshotAction{base: base{ActionName: name}, FilePath: filePath}
}

func (a *ScreenshotAction) Type() string { return TypeScreenshot }

func (a *ScreenshotAction) Validate() error {
	if a.FilePath == "" {
		return errors.NewValidation(a.ActionName, "screenshot requires a non-empty file path")
	}
	return nil
}

func (a *ScreenshotAction) Execute(ctx context.Context, drv driver.Driver, _ CredentialProvider, _ *ExecutionContext) (Result, error) {
	if err := drv.Screenshot(ctx, a.FilePath); err != nil {
		return Result{}, err
	}
	return Success(fmt.Sprintf("Saved screenshot to %s", a.FilePath), nil), nil
}

func (a *ScreenshotAction) ToMap() map[string]any {
	return map[string]any{"type": TypeScreenshot, "name": a.ActionName, "file_path": a.FilePath}
}
