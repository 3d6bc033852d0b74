// Package action defines the workflow action model: the result value every
// executed step produces, the tagged action variants with their validation
// contracts, the execution context threaded through a run, and the factory
// that maps serialized mappings back to concrete variants.
package action

// Status is the outcome tag of one executed step.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Data keys the engine writes into result data. The error_type values are
// part of the stable result contract and matched on by callers.
const (
	DataErrorType     = "error_type"
	DataBranch        = "branch"
	DataBranchResults = "branch_results"
	DataIterations    = "iterations"
	DataTemplateName  = "template_name"
)

// ErrorType values recorded under DataErrorType.
const (
	ErrorTypeValidation = "validation_error"
	ErrorTypeAction     = "action_error"
	ErrorTypeCredential = "credential_error"
	ErrorTypeElement    = "element_error"
	ErrorTypeStale      = "stale_element"
	ErrorTypeTimeout    = "timeout"
	ErrorTypeWebDriver  = "webdriver_error"
	ErrorTypeUnexpected = "unexpected_error"
)

// Result is the canonical outcome of one executed action. Data may carry
// structured detail such as control-flow sub-results; sensitive fields in it
// are redacted at serialization time by the result processor, never here.
type Result struct {
	Status  Status
	Message string
	Data    map[string]any
	Cause   error // not serialized; available to log sinks
}

// Success builds a success result. data may be nil.
func Success(message string, data map[string]any) Result {
	return Result{Status: StatusSuccess, Message: message, Data: data}
}

// Failure builds a failure result. data and cause may be nil.
func Failure(message string, data map[string]any, cause error) Result {
	return Result{Status: StatusFailure, Message: message, Data: data, Cause: cause}
}

// IsSuccess reports whether the result is a success.
func (r Result) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// WithData returns a copy of the result with one data entry added.
func (r Result) WithData(key string, value any) Result {
	data := make(map[string]any, len(r.Data)+1)
	for k, v := range r.Data {
		data[k] = v
	}
	data[key] = value
	r.Data = data
	return r
}

// ToMap renders the result in its wire shape: status, message, and data when
// present. Cause is intentionally omitted.
func (r Result) ToMap() map[string]any {
	m := map[string]any{
		"status":  string(r.Status),
		"message": r.Message,
	}
	if len(r.Data) > 0 {
		m["data"] = r.Data
	}
	return m
}

// AllSucceeded reports whether every result in the slice is a success.
func AllSucceeded(results []Result) bool {
	for _, r := range results {
		if !r.IsSuccess() {
			return false
		}
	}
	return true
}

// ResultsToMaps renders a result slice in wire shape.
func ResultsToMaps(results []Result) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		out = append(out, r.ToMap())
	}
	return out
}
