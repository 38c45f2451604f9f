package taskloop

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Runner driven explicitly by its owner. Nothing runs until
// RunPending or Advance is called, which makes timer behaviour deterministic.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	queue  []func()
	timers []*manualTimer
}

type manualTimer struct {
	due      time.Duration
	seq      int
	task     func()
	canceled bool
}

// NewManual returns an idle Manual runner.
func NewManual() *Manual {
	return &Manual{}
}

// Post implements Runner.
func (m *Manual) Post(task func()) {
	m.mu.Lock()
	m.queue = append(m.queue, task)
	m.mu.Unlock()
}

// PostDelayed implements Runner.
func (m *Manual) PostDelayed(d time.Duration, task func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{due: m.now + d, seq: m.seq, task: task}
	m.timers = append(m.timers, t)
	return func() {
		m.mu.Lock()
		t.canceled = true
		m.mu.Unlock()
	}
}

// RunPending runs queued tasks, including ones they post, until the queue is
// empty. It returns the number of tasks run.
func (m *Manual) RunPending() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return n
		}
		task := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		task()
		n++
	}
}

// Advance moves the clock forward by d, queues every timer that became due
// (earliest first) and runs the queue.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	m.now += d
	var due, keep []*manualTimer
	for _, t := range m.timers {
		switch {
		case t.canceled:
		case t.due <= m.now:
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	m.timers = keep
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].seq < due[j].seq
	})
	for _, t := range due {
		m.queue = append(m.queue, t.task)
	}
	m.mu.Unlock()
	return m.RunPending()
}

// PendingTimers reports how many uncanceled timers have not fired yet.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.canceled {
			n++
		}
	}
	return n
}
