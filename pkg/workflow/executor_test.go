package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/driver"
)

func newTestContext() *action.ExecutionContext {
	return action.NewExecutionContext("test-workflow", "run-1")
}

func TestExecutorSuccess(t *testing.T) {
	drv := newFakeDriver()
	executor := NewExecutor(drv, nil, nil)

	result := executor.ExecuteAction(context.Background(), action.NewNavigate("go", "https://example.com"), newTestContext())

	require.True(t, result.IsSuccess())
	assert.Equal(t, []string{"https://example.com"}, drv.navigated)
}

func TestExecutorValidationFailure(t *testing.T) {
	executor := NewExecutor(newFakeDriver(), nil, nil)

	result := executor.ExecuteAction(context.Background(), action.NewNavigate("go", ""), newTestContext())

	require.False(t, result.IsSuccess())
	assert.Contains(t, result.Message, "Validation failed")
	assert.Equal(t, action.ErrorTypeValidation, result.Data[action.DataErrorType])
}

func TestExecutorErrorTypeMapping(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		errorType string
	}{
		{"element not found", fmt.Errorf("no such element: #missing"), action.ErrorTypeElement},
		{"not interactable", fmt.Errorf("element not interactable"), action.ErrorTypeElement},
		{"stale element", fmt.Errorf("stale element reference"), action.ErrorTypeStale},
		{"timeout", fmt.Errorf("timed out waiting for page"), action.ErrorTypeTimeout},
		{"wrapped fault", driver.NewFault(driver.FaultGeneric, "chrome", "click", fmt.Errorf("session gone")), action.ErrorTypeWebDriver},
		{"unexpected", fmt.Errorf("boom"), action.ErrorTypeUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := newFakeDriver()
			drv.failClick["#b"] = tt.err
			executor := NewExecutor(drv, nil, nil)

			result := executor.ExecuteAction(context.Background(), action.NewClick("click", "#b"), newTestContext())

			require.False(t, result.IsSuccess())
			assert.Equal(t, tt.errorType, result.Data[action.DataErrorType])
		})
	}
}

func TestExecutorCredentialResolution(t *testing.T) {
	drv := newFakeDriver()
	creds := fakeCredentials{
		"acme": {Name: "acme", Username: "alice", Password: "s3cret"},
	}
	executor := NewExecutor(drv, creds, nil)

	result := executor.ExecuteAction(context.Background(),
		action.NewTypeCredential("login", "#pw", "acme.password"), newTestContext())

	require.True(t, result.IsSuccess())
	assert.Equal(t, "s3cret", drv.typed["#pw"])
	// The secret must not leak into the result.
	assert.NotContains(t, result.Message, "s3cret")
}

func TestExecutorCredentialErrors(t *testing.T) {
	tests := []struct {
		name     string
		valueKey string
	}{
		{"malformed key", "just-a-name"},
		{"unknown credential", "nobody.password"},
		{"unknown field", "acme.pin"},
	}
	creds := fakeCredentials{"acme": {Name: "acme", Username: "alice", Password: "pw"}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewExecutor(newFakeDriver(), creds, nil)

			result := executor.ExecuteAction(context.Background(),
				action.NewTypeCredential("login", "#pw", tt.valueKey), newTestContext())

			require.False(t, result.IsSuccess())
			assert.Equal(t, action.ErrorTypeCredential, result.Data[action.DataErrorType])
		})
	}
}

func TestExecutorControlFlowIsNotExecutable(t *testing.T) {
	executor := NewExecutor(newFakeDriver(), nil, nil)
	cond := action.NewConditional("c", "true", nil, nil)

	result := executor.ExecuteAction(context.Background(), cond, newTestContext())

	require.False(t, result.IsSuccess())
	assert.Contains(t, result.Message, "implementation error")
}

func TestExecutorContainsPanics(t *testing.T) {
	executor := NewExecutor(newFakeDriver(), nil, nil)

	result := executor.ExecuteAction(context.Background(), panicAction{}, newTestContext())

	require.False(t, result.IsSuccess())
	assert.Equal(t, action.ErrorTypeUnexpected, result.Data[action.DataErrorType])
}

// fakeCredentials is an in-memory credential provider.
type fakeCredentials map[string]action.Credential

func (f fakeCredentials) Get(_ context.Context, name string) (*action.Credential, error) {
	cred, ok := f[name]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

// panicAction is a leaf whose implementation panics.
type panicAction struct{}

func (panicAction) Name() string           { return "panics" }
func (panicAction) Type() string           { return "Panic" }
func (panicAction) Validate() error        { return nil }
func (panicAction) ToMap() map[string]any  { return map[string]any{"type": "Panic"} }
func (panicAction) Execute(context.Context, driver.Driver, action.CredentialProvider, *action.ExecutionContext) (action.Result, error) {
	panic("implementation bug")
}
