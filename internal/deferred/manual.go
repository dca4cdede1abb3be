package deferred

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Deferrer driven by an explicit clock, for tests. Callbacks run
// synchronously inside Advance.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	tasks  map[int]*manualTask
}

type manualTask struct {
	id     int
	at     time.Time
	period time.Duration
	fn     func()
}

// NewManual returns a Manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, tasks: make(map[int]*manualTask)}
}

// Now returns the manual clock's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending reports how many callbacks are scheduled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// After implements Deferrer.
func (m *Manual) After(d time.Duration, fn func()) (CancelFunc, error) {
	return m.add(d, 0, fn), nil
}

// Every implements Deferrer.
func (m *Manual) Every(d time.Duration, fn func()) (CancelFunc, error) {
	return m.add(d, d, fn), nil
}

func (m *Manual) add(d, period time.Duration, fn func()) CancelFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.tasks[id] = &manualTask{id: id, at: m.now.Add(d), period: period, fn: fn}
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.tasks, id)
	}
}

// Advance moves the clock forward by d, running every callback that falls
// due, in time order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var due []*manualTask
		for _, t := range m.tasks {
			if !t.at.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			m.now = target
			m.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at.Equal(due[j].at) {
				return due[i].id < due[j].id
			}
			return due[i].at.Before(due[j].at)
		})
		next := due[0]
		m.now = next.at
		if next.period > 0 {
			next.at = next.at.Add(next.period)
		} else {
			delete(m.tasks, next.id)
		}
		m.mu.Unlock()

		next.fn()
	}
}
