// Package wire implements the length-prefixed framing codec shared by the
// coordinator and worker: an 8-byte little-endian length followed by
// exactly that many bytes. Commands (a single byte) are not framed.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"fleetrun/lib/core"
)

// ErrShortRead is returned when fewer bytes than the frame's declared
// length could be read before the underlying reader returned an error
// (including io.EOF).
var ErrShortRead = errors.New("wire: short read")

// ErrUnknownCommand is returned by ReadCommand when the byte read does not
// correspond to any of core.CommandWait, core.CommandExecute,
// core.CommandTerminate.
var ErrUnknownCommand = errors.New("wire: unknown command byte")

// WriteCommand writes the single, unframed command byte.
func WriteCommand(w io.Writer, cmd core.Command) error {
	_, err := w.Write([]byte{byte(cmd)})
	return err
}

// ReadCommand reads the single, unframed command byte.
func ReadCommand(r io.Reader) (core.Command, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("wire: read command: %w", err)
	}
	cmd := core.Command(buf[0])
	switch cmd {
	case core.CommandWait, core.CommandExecute, core.CommandTerminate:
		return cmd, nil
	default:
		return 0, ErrUnknownCommand
	}
}

// WriteFrame writes an 8-byte little-endian length followed by data.
func WriteFrame(w io.Writer, data []byte) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads an 8-byte little-endian length followed by exactly that
// many bytes. A short read at either stage is a hard error: it wraps
// ErrShortRead so callers can distinguish framing failures from other I/O
// errors if needed, while still satisfying errors.Is against the
// underlying cause (e.g. os.ErrDeadlineExceeded).
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: read length: %w: %w", ErrShortRead, err)
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("wire: read payload: %w: %w", ErrShortRead, err)
	}
	return buf, nil
}
