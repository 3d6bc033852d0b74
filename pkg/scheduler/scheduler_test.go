package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoqliq/autoqliq/pkg/errors"
	"github.com/autoqliq/autoqliq/pkg/workflow"
)

// virtualClock is a settable clock for driving dispatch by hand.
type virtualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newVirtualClock(at time.Time) *virtualClock {
	return &virtualClock{now: at}
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *virtualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// fakeRunner records fires and can block to simulate a long run.
type fakeRunner struct {
	mu      sync.Mutex
	fired   []string
	creds   []string
	release chan struct{} // when non-nil, RunByName blocks until closed
	started chan struct{} // signalled once per RunByName entry
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{started: make(chan struct{}, 16)}
}

func (r *fakeRunner) factory() RunnerFactory {
	return func(credentialName string) WorkflowRunner {
		r.mu.Lock()
		r.creds = append(r.creds, credentialName)
		r.mu.Unlock()
		return r
	}
}

func (r *fakeRunner) RunByName(_ context.Context, workflowName string) *workflow.ExecutionLog {
	r.started <- struct{}{}
	r.mu.Lock()
	release := r.release
	r.mu.Unlock()
	if release != nil {
		<-release
	}
	r.mu.Lock()
	r.fired = append(r.fired, workflowName)
	r.mu.Unlock()
	return &workflow.ExecutionLog{WorkflowName: workflowName, FinalStatus: workflow.StatusSuccess}
}

func (r *fakeRunner) firedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestScheduleRegistersJob(t *testing.T) {
	clock := newVirtualClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	runner := newFakeRunner()
	s := New(Config{Runner: runner.factory(), Clock: clock})

	id, err := s.Schedule("nightly", "acme", map[string]any{"trigger": "interval", "minutes": 5})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, "nightly", jobs[0].WorkflowName)
	assert.Equal(t, "acme", jobs[0].CredentialName)
	assert.Equal(t, clock.Now().Add(5*time.Minute), jobs[0].NextRunTime)
}

func TestScheduleRejectsInvalidTrigger(t *testing.T) {
	s := New(Config{Runner: newFakeRunner().factory()})

	_, err := s.Schedule("nightly", "", map[string]any{"trigger": "interval"})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
	assert.Empty(t, s.ListJobs())
}

func TestScheduleRejectsSpentDateTrigger(t *testing.T) {
	clock := newVirtualClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	s := New(Config{Runner: newFakeRunner().factory(), Clock: clock})

	past := clock.Now().Add(-time.Hour).Format(time.RFC3339)
	_, err := s.Schedule("late", "", map[string]any{"trigger": "date", "run_date": past})
	require.Error(t, err)
	assert.Equal(t, errors.KindConfig, errors.KindOf(err))
}

func TestDispatchFiresDueJob(t *testing.T) {
	clock := newVirtualClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	runner := newFakeRunner()
	s := New(Config{Runner: runner.factory(), Clock: clock})

	_, err := s.Schedule("nightly", "acme", map[string]any{"trigger": "interval", "seconds": 60})
	require.NoError(t, err)

	// Not due yet.
	s.dispatchDue(clock.Advance(30 * time.Second))
	assert.Zero(t, runner.firedCount())

	s.dispatchDue(clock.Advance(30 * time.Second))
	waitFor(t, func() bool { return runner.firedCount() == 1 })

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, []string{"nightly"}, runner.fired)
	assert.Equal(t, []string{"acme"}, runner.creds)
}

func TestDispatchSkipsWhileRunning(t *testing.T) {
	clock := newVirtualClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	runner := newFakeRunner()
	runner.release = make(chan struct{})
	s := New(Config{Runner: runner.factory(), Clock: clock})

	_, err := s.Schedule("slow", "", map[string]any{"trigger": "interval", "seconds": 60})
	require.NoError(t, err)

	// First due time fires and blocks inside the run.
	s.dispatchDue(clock.Advance(time.Minute))
	<-runner.started

	// Second due time arrives while the first fire is executing: skipped,
	// next run recomputed.
	s.dispatchDue(clock.Advance(time.Minute))
	assert.Zero(t, runner.firedCount())

	// Release the run, then the third due time fires normally.
	close(runner.release)
	runner.mu.Lock()
	runner.release = nil
	runner.mu.Unlock()
	waitFor(t, func() bool { return runner.firedCount() == 1 })

	s.dispatchDue(clock.Advance(time.Minute))
	waitFor(t, func() bool { return runner.firedCount() == 2 })
}

func TestDispatchSkipsMissedFiresWithoutReplay(t *testing.T) {
	clock := newVirtualClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	runner := newFakeRunner()
	s := New(Config{Runner: runner.factory(), Clock: clock})

	_, err := s.Schedule("nightly", "", map[string]any{"trigger": "interval", "seconds": 10})
	require.NoError(t, err)

	// Five periods pass unobserved; exactly one fire happens.
	s.dispatchDue(clock.Advance(50 * time.Second))
	waitFor(t, func() bool { return runner.firedCount() == 1 })

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, clock.Now().Add(10*time.Second), jobs[0].NextRunTime)
}

func TestOneShotJobDeregistersAfterRun(t *testing.T) {
	clock := newVirtualClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	runner := newFakeRunner()
	s := New(Config{Runner: runner.factory(), Clock: clock})

	when := clock.Now().Add(time.Minute).Format(time.RFC3339)
	_, err := s.Schedule("once", "", map[string]any{"trigger": "date", "run_date": when})
	require.NoError(t, err)

	s.dispatchDue(clock.Advance(time.Minute))
	waitFor(t, func() bool { return runner.firedCount() == 1 })
	waitFor(t, func() bool { return len(s.ListJobs()) == 0 })
}

func TestCancelRemovesJob(t *testing.T) {
	clock := newVirtualClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	runner := newFakeRunner()
	s := New(Config{Runner: runner.factory(), Clock: clock})

	id, err := s.Schedule("nightly", "", map[string]any{"trigger": "interval", "minutes": 1})
	require.NoError(t, err)

	assert.True(t, s.Cancel(id))
	assert.False(t, s.Cancel(id))
	assert.False(t, s.Cancel("no-such-job"))

	s.dispatchDue(clock.Advance(time.Hour))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, runner.firedCount())
}

func TestSinkReceivesExecutionLogs(t *testing.T) {
	clock := newVirtualClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	runner := newFakeRunner()

	var mu sync.Mutex
	var recorded []string
	sink := LogSinkFunc(func(_ context.Context, jobID string, log *workflow.ExecutionLog) {
		mu.Lock()
		recorded = append(recorded, jobID+":"+log.WorkflowName)
		mu.Unlock()
	})
	s := New(Config{Runner: runner.factory(), Clock: clock, Sink: sink})

	id, err := s.Schedule("nightly", "", map[string]any{"trigger": "interval", "seconds": 5})
	require.NoError(t, err)

	s.dispatchDue(clock.Advance(5 * time.Second))
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(recorded) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{id + ":nightly"}, recorded)
}

func TestStartStopDispatchLoop(t *testing.T) {
	clock := newVirtualClock(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	runner := newFakeRunner()
	s := New(Config{Runner: runner.factory(), Clock: clock, Poll: time.Millisecond})

	_, err := s.Schedule("nightly", "", map[string]any{"trigger": "interval", "seconds": 1})
	require.NoError(t, err)

	s.Start(context.Background())
	clock.Advance(time.Second)
	waitFor(t, func() bool { return runner.firedCount() >= 1 })
	s.Stop()

	// No further fires after Stop.
	fired := runner.firedCount()
	clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, fired, runner.firedCount())
}
