package session

import (
	"fmt"

	"github.com/danmuck/urigallery/internal/protocol/codec"
	"github.com/danmuck/urigallery/internal/protocol/cursor"
)

const MaxMethodLen = 255

// Bootstrap and gallery method names.
const (
	MethodGetVersion    = "getVersion"
	MethodListImages    = "listImages"
	MethodDownloadImage = "downloadImage"
)

// EncodeRequestBody lays out [len(method) u8][method][payload]. A nil payload
// contributes no bytes.
func EncodeRequestBody(c codec.Codec, method string, payload any) ([]byte, error) {
	if method == "" {
		return nil, ErrMethodRequired
	}
	if len(method) > MaxMethodLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrMethodTooLong, len(method))
	}
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = c.Marshal(payload); err != nil {
			return nil, fmt.Errorf("session: encode %s payload: %w", method, err)
		}
	}
	cur := cursor.Allocate(1 + len(method) + len(encoded))
	if err := cur.WriteU8(uint8(len(method))); err != nil {
		return nil, err
	}
	if err := cur.WriteBytes([]byte(method)); err != nil {
		return nil, err
	}
	if err := cur.WriteBytes(encoded); err != nil {
		return nil, err
	}
	return cur.Buffer(), nil
}

// DecodeRequestBody splits a request body into its method name and raw payload bytes.
func DecodeRequestBody(body []byte) (string, []byte, error) {
	cur := cursor.From(body)
	n, err := cur.ReadU8()
	if err != nil {
		return "", nil, fmt.Errorf("%w: request body: %w", ErrProtocol, err)
	}
	method, err := cur.ReadBytes(int(n))
	if err != nil {
		return "", nil, fmt.Errorf("%w: request method: %w", ErrProtocol, err)
	}
	return string(method), cur.ReadToEnd(), nil
}

// VersionInfo is the getVersion success body.
type VersionInfo struct {
	Version int `msgpack:"version" validate:"gte=0"`
}

// ErrorBody follows a non-zero status byte.
type ErrorBody struct {
	Error string `msgpack:"error" validate:"required"`
}
