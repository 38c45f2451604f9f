package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fakeyudi/tabsession/internal/backend"
	"github.com/fakeyudi/tabsession/internal/command"
	"github.com/fakeyudi/tabsession/internal/logging"
	"github.com/fakeyudi/tabsession/internal/metrics"
	"github.com/fakeyudi/tabsession/internal/taskloop"
)

// DefaultSaveDelay is how long pending commands wait before being written.
const DefaultSaveDelay = 2500 * time.Millisecond

// Options configures a BaseService.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// UI is the runner every service method is called on. Timer callbacks
	// and request results are delivered there. A nil UI disables the save
	// timer and delivers results inline, which is what tests want.
	UI taskloop.Runner
	// Backend runs file I/O. Nil runs it inline on the caller.
	Backend taskloop.Runner
	// SaveDelay defaults to DefaultSaveDelay.
	SaveDelay time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// BaseService buffers commands and hands them to a backend in batches. It is
// not safe for concurrent use; all calls must come from the UI runner.
type BaseService struct {
	log     *zap.Logger
	m       *metrics.Metrics
	backend *backend.Backend
	ui      taskloop.Runner
	io      taskloop.Runner
	delay   time.Duration
	now     func() time.Time

	pending            []command.Command
	pendingReset       bool
	commandsSinceReset int
	cancelSave         func()
	saveFunc           func()
}

// NewBaseService returns a service writing typ's files under dir.
func NewBaseService(typ backend.SessionType, dir string, opts Options) *BaseService {
	log := logging.OrNop(opts.Logger).With(zap.Stringer("session_type", typ))
	m := metrics.OrNew(opts.Metrics)
	b := &BaseService{
		log:     log,
		m:       m,
		backend: backend.New(typ, dir, backend.Options{Logger: log, Metrics: m}),
		ui:      opts.UI,
		io:      opts.Backend,
		delay:   opts.SaveDelay,
		now:     opts.Now,
	}
	if b.delay <= 0 {
		b.delay = DefaultSaveDelay
	}
	if b.now == nil {
		b.now = time.Now
	}
	b.saveFunc = b.Save
	return b
}

// SetSaveFunc replaces what the save timer calls. Services that turn their
// state into commands only when saving install their own Save here.
func (b *BaseService) SetSaveFunc(f func()) { b.saveFunc = f }

// Logger returns the service's logger.
func (b *BaseService) Logger() *zap.Logger { return b.log }

// Metrics returns the service's counters.
func (b *BaseService) Metrics() *metrics.Metrics { return b.m }

// Type returns the kind of files the service writes.
func (b *BaseService) Type() backend.SessionType { return b.backend.Type() }

// Now returns the service clock's current time.
func (b *BaseService) Now() time.Time { return b.now() }

// PendingCommands returns the commands not yet handed to the backend.
func (b *BaseService) PendingCommands() []command.Command { return b.pending }

// PendingReset reports whether the next save rewrites the file.
func (b *BaseService) PendingReset() bool { return b.pendingReset }

// SetPendingReset makes the next save truncate the file first.
func (b *BaseService) SetPendingReset(v bool) { b.pendingReset = v }

// CommandsSinceReset counts commands scheduled since the last reset was
// written.
func (b *BaseService) CommandsSinceReset() int { return b.commandsSinceReset }

// ScheduleCommand queues c and arms the save timer.
func (b *BaseService) ScheduleCommand(c command.Command) {
	b.pending = append(b.pending, c)
	b.commandsSinceReset++
	b.StartSaveTimer()
}

// StartSaveTimer arms the save timer unless it is already armed or there is
// no UI runner.
func (b *BaseService) StartSaveTimer() {
	if b.ui == nil || b.cancelSave != nil {
		return
	}
	b.cancelSave = b.ui.PostDelayed(b.delay, func() {
		b.cancelSave = nil
		b.saveFunc()
	})
}

// SaveTimerArmed reports whether a save is scheduled.
func (b *BaseService) SaveTimerArmed() bool { return b.cancelSave != nil }

// Save hands the pending commands to the backend.
func (b *BaseService) Save() {
	if len(b.pending) == 0 {
		return
	}
	cmds, reset := b.pending, b.pendingReset
	b.pending = nil
	if reset {
		b.commandsSinceReset = 0
		b.pendingReset = false
	}
	b.m.Saves.WithLabelValues(b.Type().String()).Inc()
	b.log.Debug("saving", zap.Int("commands", len(cmds)), zap.Bool("reset", reset))
	b.runBackend(func(be *backend.Backend) { be.AppendCommands(cmds, reset) })
}

// DeleteLastSession asks the backend to remove the last session file.
func (b *BaseService) DeleteLastSession() {
	b.runBackend(func(be *backend.Backend) { be.DeleteLastSession() })
}

// Shutdown flushes pending commands through the installed save function and
// closes the backend. The service must not be used afterwards.
func (b *BaseService) Shutdown() {
	if b.cancelSave != nil {
		b.cancelSave()
		b.cancelSave = nil
	}
	b.saveFunc()
	b.runBackend(func(be *backend.Backend) {
		if err := be.Close(); err != nil {
			b.log.Warn("closing session backend", zap.Error(err))
		}
	})
}

func (b *BaseService) moveCurrentSessionToLastSession() {
	b.runBackend(func(be *backend.Backend) { be.MoveCurrentSessionToLastSession() })
}

func (b *BaseService) runBackend(f func(*backend.Backend)) {
	if b.io == nil {
		f(b.backend)
		return
	}
	be := b.backend
	b.io.Post(func() { f(be) })
}

func (b *BaseService) runUI(f func()) {
	if b.ui == nil {
		f()
		return
	}
	b.ui.Post(f)
}

// Consumer owns outstanding last-session requests. Canceling a consumer
// guarantees none of its callbacks run afterwards.
type Consumer struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*backend.Request
}

func (c *Consumer) add(r *backend.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requests == nil {
		c.requests = make(map[uuid.UUID]*backend.Request)
	}
	c.requests[r.Handle()] = r
}

func (c *Consumer) remove(h uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.requests, h)
}

// Cancel cancels the request with handle h, if outstanding.
func (c *Consumer) Cancel(h uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.requests[h]; ok {
		r.Cancel()
		delete(c.requests, h)
	}
}

// CancelAll cancels every outstanding request.
func (c *Consumer) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, r := range c.requests {
		r.Cancel()
		delete(c.requests, h)
	}
}

// Pending reports how many requests are outstanding.
func (c *Consumer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// ScheduleGetLastSessionCommands reads the last session file on the backend
// runner and calls callback with its commands on the UI runner. The request
// is tracked by consumer; callback never runs once it has been canceled.
func (b *BaseService) ScheduleGetLastSessionCommands(consumer *Consumer, callback func(uuid.UUID, []command.Command)) uuid.UUID {
	if consumer == nil {
		consumer = &Consumer{}
	}
	req := backend.NewRequest(func(r *backend.Request) {
		b.runUI(func() {
			if r.Canceled() {
				return
			}
			consumer.remove(r.Handle())
			callback(r.Handle(), r.Commands())
		})
	})
	consumer.add(req)
	b.runBackend(func(be *backend.Backend) { be.ReadLastSessionCommands(req) })
	return req.Handle()
}
