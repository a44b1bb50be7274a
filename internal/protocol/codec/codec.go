// Package codec encodes structured request and response bodies.
package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec is the structured object encoding used inside Chunk bodies.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(b []byte, v any) error
}

// MsgPack encodes with MessagePack, keyed by `msgpack` struct tags.
type MsgPack struct{}

func (MsgPack) Marshal(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: msgpack marshal: %w", err)
	}
	return b, nil
}

func (MsgPack) Unmarshal(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("codec: msgpack unmarshal: %w", err)
	}
	return nil
}

// Default is the codec sessions use unless configured otherwise.
var Default Codec = MsgPack{}
