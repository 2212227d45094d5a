package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named, scheduled unit of work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler keeps a registry of jobs and drives them with robfig/cron.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]Job
	log     zerolog.Logger
	cron    *cron.Cron
	started bool
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{jobs: make(map[string]Job), log: log}
}

// Register adds a job. Names must be unique and the schedule must parse as a standard cron
// expression or descriptor (@every 1h, @daily). Registration is closed once Start is called.
func (s *Scheduler) Register(name, schedule string, run func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: cannot register %s after start", name)
	}
	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("scheduler: duplicate job %s", name)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", schedule, name, err)
	}
	s.jobs[name] = Job{Name: name, Schedule: schedule, Run: run}
	return nil
}

// Jobs returns the registered jobs ordered by name.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// RunNow runs one job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job: %s", name)
	}
	return s.run(ctx, j)
}

// Start schedules every registered job. A run that is still going when its next tick fires
// is skipped rather than overlapped. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: already started")
	}

	logger := cronLogger{log: s.log}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	for _, j := range s.jobs {
		j := j
		if _, err := c.AddFunc(j.Schedule, func() { _ = s.run(ctx, j) }); err != nil {
			return fmt.Errorf("scheduler: failed to register job %s: %w", j.Name, err)
		}
		s.log.Info().Str("job", j.Name).Str("schedule", j.Schedule).Msg("job scheduled")
	}
	c.Start()
	s.cron = c
	s.started = true
	return nil
}

// Stop stops scheduling and returns a context that is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}

func (s *Scheduler) run(ctx context.Context, j Job) error {
	s.log.Info().Str("job", j.Name).Msg("job started")
	if err := j.Run(ctx); err != nil {
		s.log.Error().Err(err).Str("job", j.Name).Msg("job failed")
		return err
	}
	s.log.Info().Str("job", j.Name).Msg("job finished")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
