// Package scheduler dispatches workflow runs on time triggers: fixed
// intervals, cron expressions, and one-shot dates. Fires are at most once
// per due time, never replayed when missed, and never concurrent for the
// same job.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/autoqliq/autoqliq/pkg/errors"
)

// Trigger computes fire times.
type Trigger interface {
	// Next returns the first fire time strictly after the given instant,
	// or ok=false when the trigger never fires again.
	Next(after time.Time) (next time.Time, ok bool)

	// Describe renders the trigger for job listings.
	Describe() string
}

// Recognized trigger kinds.
const (
	TriggerInterval = "interval"
	TriggerCron     = "cron"
	TriggerDate     = "date"
)

var intervalUnits = map[string]time.Duration{
	"seconds": time.Second,
	"minutes": time.Minute,
	"hours":   time.Hour,
	"days":    24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

// cronParser accepts the five classic fields: minute, hour, day, month,
// day_of_week.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseTrigger validates a trigger configuration mapping and builds the
// trigger. Invalid combinations are config errors raised at schedule time,
// not at fire time. now anchors interval start defaults.
func ParseTrigger(cfg map[string]any, now time.Time) (Trigger, error) {
	kind, _ := cfg["trigger"].(string)
	switch kind {
	case TriggerInterval:
		return parseInterval(cfg, now)
	case TriggerCron:
		return parseCron(cfg)
	case TriggerDate:
		return parseDate(cfg)
	default:
		return nil, errors.Newf(errors.KindConfig,
			"trigger must be one of interval, cron, date (got %q)", kind)
	}
}

func parseInterval(cfg map[string]any, now time.Time) (Trigger, error) {
	var every time.Duration
	var unitName string
	for unit, d := range intervalUnits {
		raw, ok := cfg[unit]
		if !ok {
			continue
		}
		n, ok := asInt(raw)
		if !ok || n <= 0 {
			return nil, errors.Newf(errors.KindConfig, "interval %s must be a positive integer", unit)
		}
		if every != 0 {
			return nil, errors.NewConfig("interval takes exactly one unit field")
		}
		every = time.Duration(n) * d
		unitName = unit
	}
	if every == 0 {
		return nil, errors.NewConfig("interval requires one of seconds, minutes, hours, days, weeks")
	}

	start := now.Add(every)
	if raw, ok := cfg["start_date"]; ok {
		parsed, err := parseTime(raw)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "invalid start_date", err)
		}
		start = parsed
	}
	return &intervalTrigger{every: every, start: start, unit: unitName}, nil
}

func parseCron(cfg map[string]any) (Trigger, error) {
	fields := make([]string, 0, 5)
	for _, key := range []string{"minute", "hour", "day", "month", "day_of_week"} {
		field := "*"
		if raw, ok := cfg[key]; ok {
			s, ok := raw.(string)
			if !ok {
				return nil, errors.Newf(errors.KindConfig, "cron field %s must be a string pattern", key)
			}
			field = s
		}
		fields = append(fields, field)
	}
	spec := strings.Join(fields, " ")
	schedule, err := cronParser.Parse(spec)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, fmt.Sprintf("invalid cron fields %q", spec), err)
	}
	return &cronTrigger{schedule: schedule, spec: spec}, nil
}

func parseDate(cfg map[string]any) (Trigger, error) {
	raw, ok := cfg["run_date"]
	if !ok {
		return nil, errors.NewConfig("date trigger requires run_date")
	}
	when, err := parseTime(raw)
	if err != nil {
		return nil, errors.Wrap(errors.KindConfig, "invalid run_date", err)
	}
	return &dateTrigger{when: when}, nil
}

type intervalTrigger struct {
	every time.Duration
	start time.Time
	unit  string
}

func (t *intervalTrigger) Next(after time.Time) (time.Time, bool) {
	if after.Before(t.start) {
		return t.start, true
	}
	elapsed := after.Sub(t.start)
	periods := elapsed/t.every + 1
	return t.start.Add(periods * t.every), true
}

func (t *intervalTrigger) Describe() string {
	return fmt.Sprintf("interval(every %s)", t.every)
}

type cronTrigger struct {
	schedule cron.Schedule
	spec     string
}

func (t *cronTrigger) Next(after time.Time) (time.Time, bool) {
	next := t.schedule.Next(after)
	return next, !next.IsZero()
}

func (t *cronTrigger) Describe() string {
	return fmt.Sprintf("cron(%s)", t.spec)
}

type dateTrigger struct {
	when time.Time
}

func (t *dateTrigger) Next(after time.Time) (time.Time, bool) {
	if after.Before(t.when) {
		return t.when, true
	}
	return time.Time{}, false
}

func (t *dateTrigger) Describe() string {
	return fmt.Sprintf("date(%s)", t.when.Format(time.RFC3339))
}

func asInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	default:
		return 0, false
	}
}

func parseTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		return time.Parse(time.RFC3339, v)
	default:
		return time.Time{}, fmt.Errorf("expected RFC3339 timestamp, got %T", raw)
	}
}
