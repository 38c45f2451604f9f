// Package sessionid hands out the identifiers used to tie windows, tabs and
// navigations together in a session log.
package sessionid

import (
	"strconv"
	"sync/atomic"
)

// ID identifies a window or a tab for the lifetime of one browser run.
// Windows and tabs share one numeric namespace. Zero means "unset".
type ID int32

// String implements fmt.Stringer.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Valid reports whether id was assigned by a Generator.
func (id ID) Valid() bool {
	return id > 0
}

// Generator produces monotonically increasing ids. The zero value is ready
// to use and starts at 1. It is safe for concurrent use.
type Generator struct {
	last atomic.Int32
}

// NewGenerator returns a Generator whose first id is start+1.
func NewGenerator(start ID) *Generator {
	g := &Generator{}
	g.last.Store(int32(start))
	return g
}

// Next returns a fresh id.
func (g *Generator) Next() ID {
	return ID(g.last.Add(1))
}

// Last returns the most recently issued id, or the start value.
func (g *Generator) Last() ID {
	return ID(g.last.Load())
}
