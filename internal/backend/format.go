package backend

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fakeyudi/tabsession/internal/command"
)

const (
	// FileSignature starts every session file ("SSNS").
	FileSignature int32 = 0x53534E53
	// FileVersion is the only version this package reads or writes.
	FileVersion int32 = 1

	headerSize = 8
	// idSize is the part of a record's size prefix taken by the id byte.
	idSize = 1
)

// ErrBadHeader is returned when a file does not start with a valid header.
var ErrBadHeader = errors.New("session file has no valid header")

type fileHeader struct {
	Signature int32
	Version   int32
}

func appendHeader(buf []byte) []byte {
	buf = binary.NativeEndian.AppendUint32(buf, uint32(FileSignature))
	return binary.NativeEndian.AppendUint32(buf, uint32(FileVersion))
}

// appendRecord encodes c as [u32 size][u8 id][payload].
func appendRecord(buf []byte, c command.Command) []byte {
	payload := c.Payload()
	buf = binary.NativeEndian.AppendUint32(buf, uint32(len(payload)+idSize))
	buf = append(buf, byte(c.ID()))
	return append(buf, payload...)
}

// readCommands parses a whole session file. Parsing stops at the first
// malformed record; everything before it is returned and truncated is set.
func readCommands(r io.Reader) (cmds []command.Command, truncated bool, err error) {
	br := bufio.NewReader(r)

	var h fileHeader
	if err := binary.Read(br, binary.NativeEndian, &h); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if h.Signature != FileSignature || h.Version != FileVersion {
		return nil, false, fmt.Errorf("%w: signature %#x version %d", ErrBadHeader, h.Signature, h.Version)
	}

	var sizeBuf [4]byte
	for {
		if _, err := io.ReadFull(br, sizeBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return cmds, false, nil
			}
			return cmds, true, nil
		}
		size := binary.NativeEndian.Uint32(sizeBuf[:])
		if size < idSize || size-idSize > command.MaxPayloadSize {
			return cmds, true, nil
		}
		record := make([]byte, size)
		if _, err := io.ReadFull(br, record); err != nil {
			return cmds, true, nil
		}
		cmds = append(cmds, command.New(command.ID(record[0]), record[1:]))
	}
}

// ReadFile reads every valid command from the session file at path. A
// missing file yields os.ErrNotExist; a damaged tail is dropped silently.
func ReadFile(path string) ([]command.Command, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cmds, _, err := readCommands(f)
	return cmds, err
}
