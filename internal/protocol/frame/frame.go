package frame

import (
	"errors"
	"fmt"

	"github.com/danmuck/urigallery/internal/protocol/cursor"
)

// Kind is the leading discriminant byte of every frame.
type Kind uint8

const (
	KindHeader    Kind = 1
	KindChunk     Kind = 2
	KindEnd       Kind = 3
	KindHeartbeat Kind = 4
)

const (
	HeaderLen      = 14
	ChunkPrefixLen = 5
	EndLen         = 5
	HeartbeatLen   = 1
)

var (
	ErrInvalidPayloadType = errors.New("frame: invalid payload type")
	ErrShortFrame         = errors.New("frame: short frame")
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "Header"
	case KindChunk:
		return "Chunk"
	case KindEnd:
		return "End"
	case KindHeartbeat:
		return "Heartbeat"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Frame is one of Header, Chunk, End or Heartbeat.
type Frame interface {
	Kind() Kind
	Encode() []byte
	sealed()
}

// Routed is implemented by the frames that carry a request id.
type Routed interface {
	Frame
	ID() uint32
}

// Header opens a request or response stream. Length is meaningful only when HasLength is set.
type Header struct {
	RequestID uint32
	HasLength bool
	Length    uint64
}

// Chunk carries one slice of a stream body.
type Chunk struct {
	RequestID uint32
	Data      []byte
}

// End terminates the stream for RequestID.
type End struct {
	RequestID uint32
}

// Heartbeat is a keepalive with no request id.
type Heartbeat struct{}

func (Header) Kind() Kind    { return KindHeader }
func (Chunk) Kind() Kind     { return KindChunk }
func (End) Kind() Kind       { return KindEnd }
func (Heartbeat) Kind() Kind { return KindHeartbeat }

func (Header) sealed()    {}
func (Chunk) sealed()     {}
func (End) sealed()       {}
func (Heartbeat) sealed() {}

func (h Header) ID() uint32 { return h.RequestID }
func (c Chunk) ID() uint32  { return c.RequestID }
func (e End) ID() uint32    { return e.RequestID }

func (h Header) Encode() []byte {
	c := cursor.Allocate(HeaderLen)
	_ = c.WriteU8(uint8(KindHeader))
	_ = c.WriteU32(h.RequestID)
	flag := uint8(0)
	length := uint64(0)
	if h.HasLength {
		flag = 1
		length = h.Length
	}
	_ = c.WriteU8(flag)
	_ = c.WriteU64(length)
	return c.Buffer()
}

func (ch Chunk) Encode() []byte {
	c := cursor.Allocate(ChunkPrefixLen + len(ch.Data))
	_ = c.WriteU8(uint8(KindChunk))
	_ = c.WriteU32(ch.RequestID)
	_ = c.WriteBytes(ch.Data)
	return c.Buffer()
}

func (e End) Encode() []byte {
	c := cursor.Allocate(EndLen)
	_ = c.WriteU8(uint8(KindEnd))
	_ = c.WriteU32(e.RequestID)
	return c.Buffer()
}

func (Heartbeat) Encode() []byte {
	return []byte{uint8(KindHeartbeat)}
}

// Decode dispatches on the discriminant byte.
func Decode(b []byte) (Frame, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrShortFrame)
	}
	switch Kind(b[0]) {
	case KindHeader:
		return DecodeHeader(b)
	case KindChunk:
		return DecodeChunk(b)
	case KindEnd:
		return DecodeEnd(b)
	case KindHeartbeat:
		return DecodeHeartbeat(b)
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidPayloadType, b[0])
	}
}

func DecodeHeader(b []byte) (Header, error) {
	c, err := open(b, KindHeader)
	if err != nil {
		return Header{}, err
	}
	id, err := c.ReadU32()
	if err != nil {
		return Header{}, short(KindHeader, err)
	}
	flag, err := c.ReadU8()
	if err != nil {
		return Header{}, short(KindHeader, err)
	}
	length, err := c.ReadU64()
	if err != nil {
		return Header{}, short(KindHeader, err)
	}
	h := Header{RequestID: id, HasLength: flag == 1}
	if h.HasLength {
		h.Length = length
	}
	return h, nil
}

func DecodeChunk(b []byte) (Chunk, error) {
	c, err := open(b, KindChunk)
	if err != nil {
		return Chunk{}, err
	}
	id, err := c.ReadU32()
	if err != nil {
		return Chunk{}, short(KindChunk, err)
	}
	return Chunk{RequestID: id, Data: c.ReadToEnd()}, nil
}

func DecodeEnd(b []byte) (End, error) {
	c, err := open(b, KindEnd)
	if err != nil {
		return End{}, err
	}
	id, err := c.ReadU32()
	if err != nil {
		return End{}, short(KindEnd, err)
	}
	return End{RequestID: id}, nil
}

func DecodeHeartbeat(b []byte) (Heartbeat, error) {
	if _, err := open(b, KindHeartbeat); err != nil {
		return Heartbeat{}, err
	}
	return Heartbeat{}, nil
}

// PeekRequestID reads the id slot of a routed frame without validating the rest.
func PeekRequestID(b []byte) (uint32, bool) {
	c := cursor.From(b)
	if _, err := c.ReadU8(); err != nil {
		return 0, false
	}
	id, err := c.ReadU32()
	if err != nil {
		return 0, false
	}
	return id, true
}

func open(b []byte, want Kind) (*cursor.Cursor, error) {
	c := cursor.From(b)
	tag, err := c.ReadU8()
	if err != nil {
		return nil, short(want, err)
	}
	if Kind(tag) != want {
		return nil, fmt.Errorf("%w: got %s want %s", ErrInvalidPayloadType, Kind(tag), want)
	}
	return c, nil
}

func short(k Kind, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrShortFrame, k, err)
}
