package driver

import (
	"context"
	goerrors "errors"
	"strings"

	"github.com/autoqliq/autoqliq/pkg/errors"
)

// FaultCode distinguishes the backend faults the executor maps to stable
// error_type strings in action results.
type FaultCode string

const (
	FaultNotFound        FaultCode = "element_not_found"
	FaultNotInteractable FaultCode = "element_not_interactable"
	FaultStaleElement    FaultCode = "stale_element"
	FaultTimeout         FaultCode = "timeout"
	FaultGeneric         FaultCode = "webdriver"
)

// ctxFaultCode is the error-context key the fault code travels under.
const ctxFaultCode = "fault_code"

// NewFault builds a taxonomy error for a backend fault.
func NewFault(code FaultCode, driverType, op string, cause error) *errors.Error {
	return errors.NewWebDriver(driverType, op+" failed", cause).With(ctxFaultCode, string(code))
}

// Convert wraps a raw backend error into the taxonomy, classifying it by
// message. It replaces the decorator the source wrapped every driver call
// in: applied once, at the backend boundary, instead of per method.
func Convert(err error, driverType, op string) error {
	if err == nil {
		return nil
	}
	var te *errors.Error
	if goerrors.As(err, &te) {
		return err
	}
	return NewFault(Classify(err), driverType, op, err)
}

// Classify maps a raw backend error to a fault code by its message. The
// WebDriver wire protocol reports conditions as status strings, so substring
// matching is the only portable classification.
func Classify(err error) FaultCode {
	if err == nil {
		return FaultGeneric
	}
	if goerrors.Is(err, context.DeadlineExceeded) {
		return FaultTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such element") || strings.Contains(msg, "unable to locate element"):
		return FaultNotFound
	case strings.Contains(msg, "not interactable") || strings.Contains(msg, "element not visible"):
		return FaultNotInteractable
	case strings.Contains(msg, "stale element"):
		return FaultStaleElement
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		return FaultTimeout
	default:
		return FaultGeneric
	}
}

// FaultCodeOf extracts the fault code from a taxonomy webdriver error.
// Returns FaultGeneric for webdriver errors without a code and "" for
// anything that is not a webdriver error.
func FaultCodeOf(err error) FaultCode {
	var te *errors.Error
	if !goerrors.As(err, &te) || te.Kind != errors.KindWebDriver {
		return ""
	}
	if v, ok := te.ContextValue(ctxFaultCode); ok {
		if s, ok := v.(string); ok {
			return FaultCode(s)
		}
	}
	return FaultGeneric
}

func errConfigf(format string, args ...any) *errors.Error {
	return errors.Newf(errors.KindConfig, format, args...)
}
