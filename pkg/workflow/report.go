package workflow

import (
	goerrors "errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// FinalStatus classifies one completed run.
type FinalStatus string

const (
	StatusSuccess             FinalStatus = "SUCCESS"
	StatusCompletedWithErrors FinalStatus = "COMPLETED_WITH_ERRORS"
	StatusFailed              FinalStatus = "FAILED"
	StatusStopped             FinalStatus = "STOPPED"
)

// ExecutionLog is the immutable record of one run, in the wire shape
// callers serialize.
type ExecutionLog struct {
	WorkflowName    string           `json:"workflow_name"`
	StartTimeISO    string           `json:"start_time_iso"`
	EndTimeISO      string           `json:"end_time_iso"`
	DurationSeconds float64          `json:"duration_seconds"`
	FinalStatus     FinalStatus      `json:"final_status"`
	ErrorMessage    *string          `json:"error_message"`
	Summary         string           `json:"summary"`
	ErrorStrategy   ErrorStrategy    `json:"error_strategy"`
	ActionResults   []map[string]any `json:"action_results"`
}

// DefaultSensitiveWords are the key fragments whose values the redactor
// masks. Matching is case-insensitive and substring-based.
var DefaultSensitiveWords = []string{"password", "token", "secret", "key", "credential", "auth"}

// DefaultMask replaces redacted values.
const DefaultMask = "********"

// Processor turns per-action results into an ExecutionLog: timing, status
// classification, sensitive-data redaction, and the human renderings. It is
// pure given its inputs; the clock is injectable for tests.
type Processor struct {
	mask           string
	sensitiveWords []string
	now            func() time.Time
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithMask overrides the mask string.
func WithMask(mask string) ProcessorOption {
	return func(p *Processor) { p.mask = mask }
}

// WithSensitiveWords overrides the sensitive key fragments.
func WithSensitiveWords(words []string) ProcessorOption {
	return func(p *Processor) { p.sensitiveWords = words }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a result processor with the default mask and word
// list.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{
		mask:           DefaultMask,
		sensitiveWords: DefaultSensitiveWords,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process assembles the log for one run. terminalErr is the error that
// ended the run early, or nil when every step was dispatched.
func (p *Processor) Process(workflowName string, results []action.Result, start time.Time, terminalErr error, strategy ErrorStrategy) *ExecutionLog {
	end := p.now()
	duration := math.Round(end.Sub(start).Seconds()*100) / 100
	if duration < 0 {
		duration = 0
	}

	status, summary := p.classify(workflowName, results, terminalErr)

	log := &ExecutionLog{
		WorkflowName:    workflowName,
		StartTimeISO:    start.UTC().Format(time.RFC3339),
		EndTimeISO:      end.UTC().Format(time.RFC3339),
		DurationSeconds: duration,
		FinalStatus:     status,
		Summary:         summary,
		ErrorStrategy:   strategy,
		ActionResults:   p.formatResults(results),
	}
	if terminalErr != nil {
		msg := terminalErr.Error()
		log.ErrorMessage = &msg
	}
	return log
}

func (p *Processor) classify(workflowName string, results []action.Result, terminalErr error) (FinalStatus, string) {
	successes := 0
	failures := 0
	for _, r := range results {
		if r.IsSuccess() {
			successes++
		} else {
			failures++
		}
	}

	if terminalErr != nil {
		if errors.IsStoppedByUser(terminalErr) {
			return StatusStopped, fmt.Sprintf("Workflow %q stopped by request after %d actions", workflowName, len(results))
		}
		var te *errors.Error
		if goerrors.As(terminalErr, &te) && te.Kind == errors.KindAction {
			name := "unknown"
			if v, ok := te.ContextValue(errors.CtxActionName); ok {
				name = fmt.Sprintf("%v", v)
			}
			return StatusFailed, fmt.Sprintf("Workflow %q failed at action %q: %s", workflowName, name, te.Message)
		}
		return StatusFailed, fmt.Sprintf("Workflow %q failed: %v", workflowName, terminalErr)
	}
	if failures > 0 {
		return StatusCompletedWithErrors,
			fmt.Sprintf("Workflow %q completed with errors: %d succeeded, %d failed", workflowName, successes, failures)
	}
	return StatusSuccess, fmt.Sprintf("Workflow %q completed successfully: %d actions", workflowName, successes)
}

func (p *Processor) formatResults(results []action.Result) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, r := range results {
		m := map[string]any{
			"status":  string(r.Status),
			"message": r.Message,
		}
		if len(r.Data) > 0 {
			m["data"] = p.Redact(r.Data)
		}
		out = append(out, m)
	}
	return out
}

// Redact walks mappings and sequences recursively and masks the value of
// every key whose lower-cased name contains a sensitive word. The input is
// never mutated.
func (p *Processor) Redact(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			if p.isSensitiveKey(k) {
				out[k] = p.mask
			} else {
				out[k] = p.Redact(item)
			}
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = p.Redact(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = p.Redact(item)
		}
		return out
	default:
		return value
	}
}

func (p *Processor) isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, word := range p.sensitiveWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// DetailedReport renders the multi-line human report: a header followed by
// one line per step.
func (l *ExecutionLog) DetailedReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow: %s\n", l.WorkflowName)
	fmt.Fprintf(&b, "Status:   %s\n", l.FinalStatus)
	fmt.Fprintf(&b, "Started:  %s\n", l.StartTimeISO)
	fmt.Fprintf(&b, "Finished: %s (%.2fs)\n", l.EndTimeISO, l.DurationSeconds)
	fmt.Fprintf(&b, "Strategy: %s\n", l.ErrorStrategy)
	if l.ErrorMessage != nil {
		fmt.Fprintf(&b, "Error:    %s\n", *l.ErrorMessage)
	}
	b.WriteString("\n")
	for i, r := range l.ActionResults {
		mark := "✓"
		if r["status"] == string(action.StatusFailure) {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s Step %d: %v\n", mark, i+1, r["message"])
	}
	return b.String()
}
