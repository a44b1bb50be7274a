// Package cursor is a sequential big-endian reader/writer over a fixed-size buffer.
package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrOutOfRange = errors.New("cursor: out of range")

// Cursor shares one offset between every read and write.
type Cursor struct {
	buf    []byte
	offset int
}

// From wraps b for reading. b is not copied.
func From(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// Allocate returns a write cursor over a zeroed buffer of n bytes.
func Allocate(n int) *Cursor {
	return &Cursor{buf: make([]byte, n)}
}

func (c *Cursor) Clear() *Cursor {
	c.offset = 0
	return c
}

// Size is the current offset.
func (c *Cursor) Size() int {
	return c.offset
}

func (c *Cursor) Remaining() int {
	return len(c.buf) - c.offset
}

// Buffer returns a copy of the bytes in [0, Size()).
func (c *Cursor) Buffer() []byte {
	out := make([]byte, c.offset)
	copy(out, c.buf[:c.offset])
	return out
}

func (c *Cursor) take(op string, n int) ([]byte, error) {
	if n < 0 || n > len(c.buf)-c.offset {
		return nil, fmt.Errorf("%w: %s at offset=%d need=%d len=%d", ErrOutOfRange, op, c.offset, n, len(c.buf))
	}
	b := c.buf[c.offset : c.offset+n]
	c.offset += n
	return b, nil
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.take("read u8", 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.take("read u16", 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.take("read u32", 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.take("read u64", 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadBytes returns a copy of the next n bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	b, err := c.take("read bytes", n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadToEnd returns a copy of everything after the offset. The offset does not move.
func (c *Cursor) ReadToEnd() []byte {
	out := make([]byte, len(c.buf)-c.offset)
	copy(out, c.buf[c.offset:])
	return out
}

func (c *Cursor) WriteU8(v uint8) error {
	b, err := c.take("write u8", 1)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

func (c *Cursor) WriteU16(v uint16) error {
	b, err := c.take("write u16", 2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b, v)
	return nil
}

func (c *Cursor) WriteU32(v uint32) error {
	b, err := c.take("write u32", 4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b, v)
	return nil
}

func (c *Cursor) WriteU64(v uint64) error {
	b, err := c.take("write u64", 8)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint64(b, v)
	return nil
}

func (c *Cursor) WriteBytes(v []byte) error {
	b, err := c.take("write bytes", len(v))
	if err != nil {
		return err
	}
	copy(b, v)
	return nil
}
