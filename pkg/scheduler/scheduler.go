package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autoqliq/autoqliq/pkg/errors"
	"github.com/autoqliq/autoqliq/pkg/workflow"
)

// Clock abstracts time for the dispatch loop so tests drive a virtual one.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// WorkflowRunner is the slice of the runner the scheduler invokes per fire.
type WorkflowRunner interface {
	RunByName(ctx context.Context, workflowName string) *workflow.ExecutionLog
}

// RunnerFactory builds a fresh runner for one fire. credentialName is the
// job's configured credential, empty when the job has none; the factory
// decides how to scope the credential provider with it.
type RunnerFactory func(credentialName string) WorkflowRunner

// LogSink receives the execution log of every fire. The default sink only
// logs; persistence-backed sinks plug in here.
type LogSink interface {
	Record(ctx context.Context, jobID string, log *workflow.ExecutionLog)
}

// LogSinkFunc adapts a function to LogSink.
type LogSinkFunc func(ctx context.Context, jobID string, log *workflow.ExecutionLog)

// Record implements LogSink.
func (f LogSinkFunc) Record(ctx context.Context, jobID string, log *workflow.ExecutionLog) {
	f(ctx, jobID, log)
}

// JobInfo is the snapshot ListJobs returns per job.
type JobInfo struct {
	ID             string
	WorkflowName   string
	CredentialName string
	Trigger        string
	NextRunTime    time.Time
}

type job struct {
	id             string
	workflowName   string
	credentialName string
	trigger        Trigger
	nextRun        time.Time
	running        bool
	oneShotDone    bool
}

// Scheduler keeps the trigger→workflow bindings and fires them. The job
// registry is guarded by a mutex; fires run on their own goroutines with
// the same semantics as manual runs. Missed fires are skipped, never
// replayed, and a fire due while the previous one is still executing is
// skipped and logged.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[string]*job
	clock  Clock
	runner RunnerFactory
	sink   LogSink
	logger *slog.Logger
	poll   time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Config wires a Scheduler. Runner is required.
type Config struct {
	Runner RunnerFactory
	Sink   LogSink // default: log-only
	Clock  Clock   // default: wall clock
	Poll   time.Duration
	Logger *slog.Logger
}

// DefaultPollInterval is how often the dispatch loop checks for due jobs.
const DefaultPollInterval = time.Second

// New creates a scheduler.
func New(cfg Config) *Scheduler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPollInterval
	}
	s := &Scheduler{
		jobs:    make(map[string]*job),
		clock:   cfg.Clock,
		runner:  cfg.Runner,
		sink:    cfg.Sink,
		logger:  cfg.Logger,
		poll:    cfg.Poll,
		baseCtx: context.Background(),
	}
	if s.sink == nil {
		s.sink = LogSinkFunc(func(_ context.Context, jobID string, log *workflow.ExecutionLog) {
			cfg.Logger.Info("scheduled run finished",
				"job_id", jobID,
				"workflow", log.WorkflowName,
				"status", string(log.FinalStatus),
				"summary", log.Summary,
			)
		})
	}
	return s
}

// Schedule registers a trigger→workflow binding and returns the job id.
// Invalid trigger configuration fails here with a config error; nothing is
// registered in that case.
func (s *Scheduler) Schedule(workflowName, credentialName string, triggerCfg map[string]any) (string, error) {
	now := s.clock.Now()
	trigger, err := ParseTrigger(triggerCfg, now)
	if err != nil {
		return "", err
	}
	next, ok := trigger.Next(now)
	if !ok {
		return "", errors.NewConfig("trigger would never fire")
	}

	j := &job{
		id:             uuid.NewString(),
		workflowName:   workflowName,
		credentialName: credentialName,
		trigger:        trigger,
		nextRun:        next,
	}

	s.mu.Lock()
	s.jobs[j.id] = j
	s.mu.Unlock()

	s.logger.Info("job scheduled",
		"job_id", j.id,
		"workflow", workflowName,
		"trigger", trigger.Describe(),
		"next_run", next,
	)
	return j.id, nil
}

// ListJobs returns a snapshot of every registered job, sorted by id.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		infos = append(infos, JobInfo{
			ID:             j.id,
			WorkflowName:   j.workflowName,
			CredentialName: j.credentialName,
			Trigger:        j.trigger.Describe(),
			NextRunTime:    j.nextRun,
		})
	}
	sort.Slice(infos, func(i, k int) bool { return infos[i].ID < infos[k].ID })
	return infos
}

// Cancel de-registers a job. It returns false for unknown ids. A fire
// already executing finishes; no further fires happen.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[jobID]; !ok {
		return false
	}
	delete(s.jobs, jobID)
	s.logger.Info("job cancelled", "job_id", jobID)
	return true
}

// Start begins the dispatch loop. Stop (or cancelling ctx) ends it.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.baseCtx = runCtx
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.poll)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.dispatchDue(s.clock.Now())
			}
		}
	}()
}

// Stop ends the dispatch loop and waits for in-flight fires. Runs receive
// the cancellation and stop cooperatively.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// dispatchDue fires every job whose next run time has arrived. A job still
// executing its previous fire is skipped and its next fire recomputed from
// now, which also implements the no-replay policy for missed fires.
func (s *Scheduler) dispatchDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.nextRun.After(now) {
			continue
		}
		if j.running {
			s.logger.Warn("fire skipped: previous run still executing",
				"job_id", j.id,
				"workflow", j.workflowName,
				"due", j.nextRun,
			)
			s.advanceLocked(j, now)
			continue
		}
		j.running = true
		s.advanceLocked(j, now)
		s.wg.Add(1)
		go s.fire(j)
	}
}

// advanceLocked computes the job's next fire from now. Caller holds s.mu.
func (s *Scheduler) advanceLocked(j *job, now time.Time) {
	next, ok := j.trigger.Next(now)
	if !ok {
		j.oneShotDone = true
		return
	}
	j.nextRun = next
}

// fire executes one scheduled run.
func (s *Scheduler) fire(j *job) {
	defer s.wg.Done()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()

	s.logger.Info("firing scheduled job",
		"job_id", j.id,
		"workflow", j.workflowName,
	)

	runner := s.runner(j.credentialName)
	log := runner.RunByName(ctx, j.workflowName)
	s.sink.Record(ctx, j.id, log)

	s.mu.Lock()
	j.running = false
	if j.oneShotDone {
		delete(s.jobs, j.id)
	}
	s.mu.Unlock()
}
