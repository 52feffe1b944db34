package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// writeInt32 writes a little-endian 32-bit signed integer.
func writeInt32(w *bufio.Writer, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("writing int32 failed: %w", err)
	}
	return nil
}

// readInt32 reads a little-endian 32-bit signed integer.
func readInt32(r *bufio.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("%w: int32 truncated: %s", ErrMalformedFrame, err)
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}
