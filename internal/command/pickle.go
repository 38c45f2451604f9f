package command

import (
	"encoding/binary"
	"fmt"
)

const pickleHeaderSize = 4

// Pickle builds a payload of 4-byte aligned fields behind a u32 length header.
// Strings are written as an i32 length followed by their bytes.
type Pickle struct {
	buf []byte
}

// NewPickle returns an empty pickle.
func NewPickle() *Pickle {
	return &Pickle{buf: make([]byte, pickleHeaderSize, 64)}
}

// WriteInt appends a 32-bit integer.
func (p *Pickle) WriteInt(v int32) {
	p.buf = binary.NativeEndian.AppendUint32(p.buf, uint32(v))
}

// WriteString appends a length-prefixed string.
func (p *Pickle) WriteString(s string) {
	p.WriteInt(int32(len(s)))
	p.buf = append(p.buf, s...)
	for len(p.buf)%4 != 0 {
		p.buf = append(p.buf, 0)
	}
}

// Size returns the encoded size including the header.
func (p *Pickle) Size() int { return len(p.buf) }

// Bytes returns the encoded pickle.
func (p *Pickle) Bytes() []byte {
	binary.NativeEndian.PutUint32(p.buf, uint32(len(p.buf)-pickleHeaderSize))
	out := make([]byte, len(p.buf))
	copy(out, p.buf)
	return out
}

// PickleReader reads fields back in the order they were written.
type PickleReader struct {
	data []byte
	off  int
}

// NewPickleReader validates the header of data.
func NewPickleReader(data []byte) (*PickleReader, error) {
	if len(data) < pickleHeaderSize {
		return nil, fmt.Errorf("%w: pickle shorter than header", ErrCorrupt)
	}
	size := binary.NativeEndian.Uint32(data)
	if int(size) != len(data)-pickleHeaderSize {
		return nil, fmt.Errorf("%w: pickle header says %d bytes, have %d", ErrCorrupt, size, len(data)-pickleHeaderSize)
	}
	return &PickleReader{data: data, off: pickleHeaderSize}, nil
}

// ReadInt reads a 32-bit integer.
func (r *PickleReader) ReadInt() (int32, error) {
	if len(r.data)-r.off < 4 {
		return 0, fmt.Errorf("%w: int past end of pickle", ErrCorrupt)
	}
	v := int32(binary.NativeEndian.Uint32(r.data[r.off:]))
	r.off += 4
	return v, nil
}

// ReadString reads a length-prefixed string.
func (r *PickleReader) ReadString() (string, error) {
	n, err := r.ReadInt()
	if err != nil {
		return "", err
	}
	if n < 0 || int(n) > len(r.data)-r.off {
		return "", fmt.Errorf("%w: string of %d bytes past end of pickle", ErrCorrupt, n)
	}
	s := string(r.data[r.off : r.off+int(n)])
	r.off += int(n)
	if rem := r.off % 4; rem != 0 {
		r.off += 4 - rem
		if r.off > len(r.data) {
			r.off = len(r.data)
		}
	}
	return s, nil
}

// Remaining reports how many unread bytes are left.
func (r *PickleReader) Remaining() int { return len(r.data) - r.off }
