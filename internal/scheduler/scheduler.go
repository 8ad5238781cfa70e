// Package scheduler runs the periodic jobs that drive time-based order and
// cart transitions. Each job ticks on its own interval; a tick that fires
// while the previous run is still going is skipped so a slow scan never
// stacks up concurrent copies of itself.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"lifecycle-service/pkg/logkey"
)

type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
	running  atomic.Bool
}

type Scheduler struct {
	mu   sync.Mutex
	jobs []*job
	wg   sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Register(name string, interval time.Duration, run JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, interval: interval, run: run})
}

// Start launches one ticker goroutine per registered job and returns. Jobs
// stop when ctx is cancelled; Wait blocks until every in-flight run ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		s.wg.Add(1)
		go func(j *job) {
			defer s.wg.Done()
			ticker := time.NewTicker(j.interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.tick(ctx, j)
				}
			}
		}(j)
	}
}

func (s *Scheduler) tick(ctx context.Context, j *job) {
	if !j.running.CompareAndSwap(false, true) {
		slog.Warn("previous run still in progress, skipping tick", slog.String(logkey.Job, j.name))
		return
	}
	defer j.running.Store(false)

	start := time.Now()
	if err := j.run(ctx); err != nil {
		slog.Error("job run failed", slog.String(logkey.Job, j.name), slog.String(logkey.ERROR, err.Error()))
		return
	}
	slog.Info("job run completed", slog.String(logkey.Job, j.name), slog.Duration("Took", time.Since(start)))
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}
