// Package deferred provides cancellable scheduled callbacks.
package deferred

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
)

// CancelFunc stops a scheduled callback. Calling it after the callback ran,
// or more than once, is a no-op.
type CancelFunc func()

// Deferrer schedules callbacks.
type Deferrer interface {
	// After runs fn once, d from now, unless cancelled first.
	After(d time.Duration, fn func()) (CancelFunc, error)
	// Every runs fn every d until cancelled. The first run is d from now.
	Every(d time.Duration, fn func()) (CancelFunc, error)
}

var (
	_ Deferrer = (*Scheduler)(nil)
	_ Deferrer = (*Manual)(nil)
)

// Scheduler is a Deferrer backed by a gocron scheduler.
type Scheduler struct {
	scheduler *gocron.Scheduler
}

// New creates and starts a Scheduler.
func New() *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.StartAsync()
	return &Scheduler{scheduler: s}
}

// Stop terminates all scheduled callbacks.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// After implements Deferrer.
func (s *Scheduler) After(d time.Duration, fn func()) (CancelFunc, error) {
	var once sync.Once
	var job *gocron.Job
	var mu sync.Mutex

	run := func() {
		once.Do(func() {
			mu.Lock()
			j := job
			mu.Unlock()
			if j != nil {
				s.scheduler.RemoveByReference(j)
			}
			fn()
		})
	}

	mu.Lock()
	defer mu.Unlock()
	j, err := s.scheduler.Every(d).WaitForSchedule().LimitRunsTo(1).Do(run)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule callback: %w", err)
	}
	job = j

	return func() {
		once.Do(func() {})
		s.scheduler.RemoveByReference(j)
	}, nil
}

// Every implements Deferrer.
func (s *Scheduler) Every(d time.Duration, fn func()) (CancelFunc, error) {
	job, err := s.scheduler.Every(d).WaitForSchedule().SingletonMode().Do(fn)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule periodic callback: %w", err)
	}
	return func() { s.scheduler.RemoveByReference(job) }, nil
}
