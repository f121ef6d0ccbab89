// Package schedule runs named jobs on cron schedules.
package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultJobTimeout bounds a single job run.
const DefaultJobTimeout = 30 * time.Minute

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// JobInfo describes a scheduled job.
type JobInfo struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run,omitempty"`
}

type entry struct {
	id       cron.EntryID
	schedule string
	job      Job
}

// Scheduler manages periodic jobs. Jobs never overlap with themselves: a
// run still in progress when the next tick arrives makes that tick a no-op.
type Scheduler struct {
	cron    *cron.Cron
	log     zerolog.Logger
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]entry
}

// New creates a stopped scheduler.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
		)),
		log:     log.With().Str("component", "scheduler").Logger(),
		timeout: DefaultJobTimeout,
		jobs:    make(map[string]entry),
	}
}

// Validate reports whether spec is a usable schedule: five cron fields,
// a descriptor such as @hourly, or @every <duration>.
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Add schedules job under name. Adding an existing name replaces it.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if err := Validate(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[name]; ok {
		s.cron.Remove(old.id)
	}
	id, err := s.cron.AddFunc(spec, func() { _ = s.run(context.Background(), name, job) })
	if err != nil {
		return fmt.Errorf("scheduling job %s: %w", name, err)
	}
	s.jobs[name] = entry{id: id, schedule: spec, job: job}
	s.log.Info().Str("job", name).Str("schedule", spec).Msg("job added")
	return nil
}

// Remove unschedules a job. Unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.jobs[name]; ok {
		s.cron.Remove(e.id)
		delete(s.jobs, name)
		s.log.Info().Str("job", name).Msg("job removed")
	}
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.log.Debug().Msg("starting")
	s.cron.Start()
}

// Stop halts scheduling. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	s.log.Debug().Msg("stopping")
	return s.cron.Stop()
}

// RunNow runs a scheduled job immediately on the calling goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no job named %q", name)
	}
	return s.run(ctx, name, e.job)
}

// Jobs lists scheduled jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, e := range s.jobs {
		ce := s.cron.Entry(e.id)
		infos = append(infos, JobInfo{
			Name:     name,
			Schedule: e.schedule,
			NextRun:  ce.Next,
			LastRun:  ce.Prev,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

func (s *Scheduler) run(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	log := s.log.With().Str("job", name).Logger()
	log.Debug().Msg("job started")

	if err := job(ctx); err != nil {
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("job failed")
		return err
	}
	log.Info().Dur("took", time.Since(start)).Msg("job finished")
	return nil
}
