package backend

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fakeyudi/tabsession/internal/command"
)

// Request is an asynchronous "read the last session" query. It is created on
// the requesting side, filled on the backend side and handed back through
// its forward function.
type Request struct {
	handle   uuid.UUID
	canceled atomic.Bool
	commands []command.Command
	onDone   func(*Request)
}

// NewRequest returns a request that calls onDone once the backend has read
// the commands. onDone runs on the backend's runner.
func NewRequest(onDone func(*Request)) *Request {
	return &Request{handle: uuid.New(), onDone: onDone}
}

// Handle identifies the request.
func (r *Request) Handle() uuid.UUID { return r.handle }

// Cancel marks the request canceled. A read already in flight still
// completes but its result is discarded.
func (r *Request) Cancel() { r.canceled.Store(true) }

// Canceled reports whether Cancel was called.
func (r *Request) Canceled() bool { return r.canceled.Load() }

// Commands returns the commands read by the backend.
func (r *Request) Commands() []command.Command { return r.commands }

func (r *Request) forward() {
	if r.onDone != nil {
		r.onDone(r)
	}
}
