// Package taskloop provides the scheduling port the session services run on:
// a Runner executes posted tasks one at a time, in posting order.
package taskloop

import (
	"sync"
	"sync/atomic"
	"time"
)

// Runner executes tasks sequentially in the order they were posted.
type Runner interface {
	// Post queues task to run as soon as the runner is free.
	Post(task func())
	// PostDelayed queues task to run after d. The returned function cancels
	// the task if it has not started yet.
	PostDelayed(d time.Duration, task func()) (cancel func())
}

// Loop is a Runner backed by a single goroutine.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// New starts a Loop.
func New() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}

// Post implements Runner. Tasks posted after Close are dropped.
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, task)
	l.cond.Signal()
}

// PostDelayed implements Runner.
func (l *Loop) PostDelayed(d time.Duration, task func()) func() {
	var canceled atomic.Bool
	t := time.AfterFunc(d, func() {
		l.Post(func() {
			if !canceled.Load() {
				task()
			}
		})
	})
	return func() {
		canceled.Store(true)
		t.Stop()
	}
}

// Flush blocks until every task posted before the call has run.
func (l *Loop) Flush() {
	done := make(chan struct{})
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.queue = append(l.queue, func() { close(done) })
	l.cond.Signal()
	l.mu.Unlock()
	<-done
}

// Close runs the tasks already queued, then stops the goroutine. It blocks
// until the loop has exited.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.done
}
