// Package backend owns the on-disk session logs. Each session type has a
// "current" file that is appended to during a run and a "last" file holding
// the previous run's log.
//
// A Backend is not safe for concurrent use; the services confine it to a
// single worker runner.
package backend

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fakeyudi/tabsession/internal/command"
	"github.com/fakeyudi/tabsession/internal/logging"
	"github.com/fakeyudi/tabsession/internal/metrics"
)

// SessionType selects which pair of files a Backend manages.
type SessionType int

const (
	TabRestore SessionType = iota
	SessionRestore
)

func (t SessionType) String() string {
	if t == TabRestore {
		return "tab_restore"
	}
	return "session"
}

// CurrentFileName returns the name of the file appended to during a run.
func (t SessionType) CurrentFileName() string {
	if t == TabRestore {
		return "Current Tabs"
	}
	return "Current Session"
}

// LastFileName returns the name of the previous run's file.
func (t SessionType) LastFileName() string {
	if t == TabRestore {
		return "Last Tabs"
	}
	return "Last Session"
}

// Options configures a Backend.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Backend writes and reads one session type's files inside a directory.
type Backend struct {
	typ SessionType
	dir string
	log *zap.Logger
	m   *metrics.Metrics

	inited bool
	// current is nil when the file could not be opened or a write failed.
	current   *os.File
	emptyFile bool
	lock      *os.File
	// writable is false when another process holds the lock.
	writable bool
}

// New returns a Backend for dir. No I/O happens until the first operation.
func New(typ SessionType, dir string, opts Options) *Backend {
	return &Backend{
		typ:      typ,
		dir:      dir,
		log:      logging.OrNop(opts.Logger).With(zap.Stringer("session_type", typ)),
		m:        metrics.OrNew(opts.Metrics),
		writable: true,
	}
}

// Type returns the session type.
func (b *Backend) Type() SessionType { return b.typ }

// CurrentPath returns the path of the file being appended to.
func (b *Backend) CurrentPath() string {
	return filepath.Join(b.dir, b.typ.CurrentFileName())
}

// LastPath returns the path of the previous run's file.
func (b *Backend) LastPath() string {
	return filepath.Join(b.dir, b.typ.LastFileName())
}

func (b *Backend) lockPath() string {
	return filepath.Join(b.dir, b.typ.CurrentFileName()+".lock")
}

// Init creates the directory, takes the lock and rotates current into last.
// It runs once; later calls do nothing.
func (b *Backend) Init() {
	if b.inited {
		return
	}
	b.inited = true

	if err := os.MkdirAll(b.dir, 0o700); err != nil {
		b.log.Warn("creating session directory", zap.String("dir", b.dir), zap.Error(err))
	}
	lock, err := acquireLock(b.lockPath())
	if err != nil {
		b.writable = false
		if errors.Is(err, ErrLocked) {
			b.log.Error("session file is owned by another process; writes disabled", zap.String("path", b.CurrentPath()))
		} else {
			b.log.Error("acquiring session lock; writes disabled", zap.Error(err))
		}
	}
	b.lock = lock
	b.MoveCurrentSessionToLastSession()
}

// Writable reports whether this process owns the files. It initializes the
// backend on first use.
func (b *Backend) Writable() bool {
	b.Init()
	return b.writable
}

// AppendCommands writes cmds to the current file. When resetFirst is set the
// file is truncated back to its header first. The batch is consumed whether
// or not the write succeeds; a failed write leaves the file unusable until
// the next reset.
func (b *Backend) AppendCommands(cmds []command.Command, resetFirst bool) {
	b.Init()
	if (resetFirst && !b.emptyFile) || b.current == nil {
		b.resetFile()
	}
	if b.current == nil {
		b.log.Debug("dropping commands, no usable session file", zap.Int("count", len(cmds)))
		return
	}
	n, err := b.appendToFile(cmds)
	if err != nil {
		b.log.Warn("appending session commands", zap.String("path", b.CurrentPath()), zap.Error(err))
		b.m.WriteFailures.WithLabelValues(b.typ.String()).Inc()
		b.closeCurrent()
		return
	}
	b.emptyFile = false
	b.m.CommandsAppended.WithLabelValues(b.typ.String()).Add(float64(len(cmds)))
	b.m.BytesWritten.WithLabelValues(b.typ.String()).Add(float64(n))
	b.log.Debug("appended session commands", zap.Int("count", len(cmds)), zap.Int("bytes", n), zap.Bool("reset", resetFirst))
}

func (b *Backend) appendToFile(cmds []command.Command) (int, error) {
	var buf []byte
	for _, c := range cmds {
		if c.Size() > command.MaxPayloadSize {
			b.log.Warn("skipping oversized command", zap.Uint8("id", uint8(c.ID())), zap.Int("size", c.Size()))
			continue
		}
		buf = appendRecord(buf, c)
	}
	if len(buf) == 0 {
		return 0, nil
	}
	return b.current.Write(buf)
}

// ReadLastSessionCommands fills req with the commands of the last file and
// forwards the result. Canceled requests are skipped.
func (b *Backend) ReadLastSessionCommands(req *Request) {
	if req.Canceled() {
		return
	}
	req.commands = b.ReadLastSession()
	req.forward()
}

// ReadLastSession returns every valid command in the last file.
func (b *Backend) ReadLastSession() []command.Command {
	b.Init()
	f, err := os.Open(b.LastPath())
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			b.log.Warn("opening last session", zap.Error(err))
		}
		return nil
	}
	defer f.Close()

	cmds, truncated, err := readCommands(f)
	if err != nil {
		b.log.Warn("reading last session", zap.String("path", b.LastPath()), zap.Error(err))
		return nil
	}
	if truncated {
		b.log.Warn("last session ends in a malformed record", zap.Int("commands", len(cmds)))
		b.m.TruncatedReads.WithLabelValues(b.typ.String()).Inc()
	}
	b.m.CommandsRead.WithLabelValues(b.typ.String()).Add(float64(len(cmds)))
	return cmds
}

// DeleteLastSession removes the last file.
func (b *Backend) DeleteLastSession() {
	b.Init()
	if !b.writable {
		return
	}
	if err := os.Remove(b.LastPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.log.Warn("deleting last session", zap.Error(err))
	}
}

// MoveCurrentSessionToLastSession freezes the current file as the last file
// and starts a fresh current file.
func (b *Backend) MoveCurrentSessionToLastSession() {
	b.Init()
	b.closeCurrent()
	if !b.writable {
		return
	}

	current, last := b.CurrentPath(), b.LastPath()
	if err := os.Remove(last); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.log.Warn("removing stale last session", zap.Error(err))
	}
	if info, err := os.Stat(current); err == nil {
		b.log.Debug("rotating current session", zap.Int64("bytes", info.Size()))
		if err := os.Rename(current, last); err != nil {
			b.log.Warn("moving current session to last", zap.Error(err))
		}
	}
	if err := os.Remove(current); err != nil && !errors.Is(err, os.ErrNotExist) {
		b.log.Warn("removing current session", zap.Error(err))
	}
	b.resetFile()
}

// resetFile truncates the current file back to its header, recreating it if
// truncation fails or no file is open.
func (b *Backend) resetFile() {
	if !b.writable {
		return
	}
	b.m.FileResets.WithLabelValues(b.typ.String()).Inc()
	if b.current != nil {
		if err := truncateToHeader(b.current); err != nil {
			b.log.Warn("truncating session file", zap.Error(err))
			b.closeCurrent()
		}
	}
	if b.current == nil {
		f, err := openAndWriteHeader(b.CurrentPath())
		if err != nil {
			b.log.Warn("creating session file", zap.String("path", b.CurrentPath()), zap.Error(err))
			b.m.WriteFailures.WithLabelValues(b.typ.String()).Inc()
		}
		b.current = f
	}
	b.emptyFile = true
}

func truncateToHeader(f *os.File) error {
	if err := f.Truncate(headerSize); err != nil {
		return err
	}
	_, err := f.Seek(headerSize, io.SeekStart)
	return err
}

func openAndWriteHeader(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(appendHeader(nil)); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing header: %w", err)
	}
	return f, nil
}

func (b *Backend) closeCurrent() {
	if b.current == nil {
		return
	}
	if err := b.current.Close(); err != nil {
		b.log.Debug("closing session file", zap.Error(err))
	}
	b.current = nil
}

// Close releases the current file and the lock.
func (b *Backend) Close() error {
	b.closeCurrent()
	err := releaseLock(b.lock)
	b.lock = nil
	return err
}
