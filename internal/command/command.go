// Package command defines the tagged byte blobs that make up a session log
// and the helpers used to build and decode their payloads.
package command

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ID tags a command. Values are written to disk and must never change.
type ID uint8

// MaxPayloadSize is the largest payload a command can carry.
const MaxPayloadSize = math.MaxUint16

// ErrCorrupt is returned when a payload does not match the layout its id
// promises.
var ErrCorrupt = errors.New("corrupt command payload")

// Command is an immutable {id, payload} pair.
type Command struct {
	id      ID
	payload []byte
}

// New returns a command holding a private copy of payload.
func New(id ID, payload []byte) Command {
	p := make([]byte, len(payload))
	copy(p, payload)
	return Command{id: id, payload: p}
}

// FromStruct encodes v, a fixed-size struct, bit for bit in host byte order.
func FromStruct(id ID, v any) Command {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.NativeEndian, v); err != nil {
		// Only reachable with a non fixed-size type, which is a programming error.
		panic(fmt.Sprintf("command: encode %T: %v", v, err))
	}
	return Command{id: id, payload: buf.Bytes()}
}

// FromPickle wraps the bytes of a pickle.
func FromPickle(id ID, p *Pickle) Command {
	return Command{id: id, payload: p.Bytes()}
}

// ID returns the command's tag.
func (c Command) ID() ID { return c.id }

// Size returns the payload length in bytes.
func (c Command) Size() int { return len(c.payload) }

// Payload returns a copy of the payload.
func (c Command) Payload() []byte {
	p := make([]byte, len(c.payload))
	copy(p, c.payload)
	return p
}

// Decode fills v, a pointer to a fixed-size struct, from the payload. The
// payload size must match the struct size exactly.
func (c Command) Decode(v any) error {
	want := binary.Size(v)
	if want < 0 {
		return fmt.Errorf("command: %T is not fixed-size", v)
	}
	if want != len(c.payload) {
		return fmt.Errorf("%w: id %d has %d bytes, want %d", ErrCorrupt, c.id, len(c.payload), want)
	}
	if err := binary.Read(bytes.NewReader(c.payload), binary.NativeEndian, v); err != nil {
		return fmt.Errorf("%w: id %d: %v", ErrCorrupt, c.id, err)
	}
	return nil
}

// Reader returns a PickleReader over the payload.
func (c Command) Reader() (*PickleReader, error) {
	return NewPickleReader(c.payload)
}

// Equal reports whether two commands carry the same id and payload.
func (c Command) Equal(o Command) bool {
	return c.id == o.id && bytes.Equal(c.payload, o.payload)
}
