package cursor

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestWriteThenReadAllWidths(t *testing.T) {
	w := Allocate(1 + 2 + 4 + 8 + 3)
	if err := w.WriteU8(0xAB); err != nil {
		t.Fatalf("write u8: %v", err)
	}
	if err := w.WriteU16(0xBEEF); err != nil {
		t.Fatalf("write u16: %v", err)
	}
	if err := w.WriteU32(0xDEADBEEF); err != nil {
		t.Fatalf("write u32: %v", err)
	}
	if err := w.WriteU64(math.MaxUint64 - 1); err != nil {
		t.Fatalf("write u64: %v", err)
	}
	if err := w.WriteBytes([]byte("xyz")); err != nil {
		t.Fatalf("write bytes: %v", err)
	}
	if w.Size() != 18 {
		t.Fatalf("size=%d want 18", w.Size())
	}

	r := From(w.Buffer())
	u8, _ := r.ReadU8()
	u16, _ := r.ReadU16()
	u32, _ := r.ReadU32()
	u64, err := r.ReadU64()
	if err != nil {
		t.Fatalf("read u64: %v", err)
	}
	if u8 != 0xAB || u16 != 0xBEEF || u32 != 0xDEADBEEF || u64 != math.MaxUint64-1 {
		t.Fatalf("mismatch: %x %x %x %x", u8, u16, u32, u64)
	}
	rest, err := r.ReadBytes(3)
	if err != nil || string(rest) != "xyz" {
		t.Fatalf("read bytes: %q %v", rest, err)
	}
}

func TestBigEndianLayout(t *testing.T) {
	w := Allocate(4)
	_ = w.WriteU32(0x01020304)
	if !bytes.Equal(w.Buffer(), []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected layout: %v", w.Buffer())
	}
}

func TestReadToEndDoesNotAdvance(t *testing.T) {
	r := From([]byte{9, 1, 2, 3})
	_, _ = r.ReadU8()
	first := r.ReadToEnd()
	second := r.ReadToEnd()
	if !bytes.Equal(first, []byte{1, 2, 3}) || !bytes.Equal(first, second) {
		t.Fatalf("read to end: %v %v", first, second)
	}
	if r.Size() != 1 {
		t.Fatalf("offset moved: %d", r.Size())
	}
}

func TestReadsReturnCopies(t *testing.T) {
	src := []byte{1, 2, 3}
	r := From(src)
	b, _ := r.ReadBytes(2)
	b[0] = 99
	if src[0] != 1 {
		t.Fatalf("ReadBytes aliased the source buffer")
	}
}

func TestOutOfRange(t *testing.T) {
	r := From([]byte{1, 2, 3})
	if _, err := r.ReadU32(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if r.Size() != 0 {
		t.Fatalf("failed read moved offset to %d", r.Size())
	}
	if _, err := r.ReadBytes(4); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}

	w := Allocate(1)
	if err := w.WriteU16(1); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange on write, got %v", err)
	}
}

func TestClearRewindsWithoutRealloc(t *testing.T) {
	w := Allocate(2)
	_ = w.WriteU16(0x0102)
	w.Clear()
	if w.Size() != 0 || len(w.Buffer()) != 0 {
		t.Fatalf("clear did not rewind")
	}
	_ = w.WriteU8(7)
	if !bytes.Equal(w.Buffer(), []byte{7}) {
		t.Fatalf("unexpected buffer after clear: %v", w.Buffer())
	}
	if w.Remaining() != 1 {
		t.Fatalf("remaining=%d", w.Remaining())
	}
}
