package protocol

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Codec converts between raw frames and messages.
type Codec interface {
	Decode(data []byte) (*Message, error)
	Encode(message *Message) ([]byte, error)
	// Binary reports whether encoded frames must be sent as binary frames.
	Binary() bool
}

// JSONCodec is the default codec; frames are JSON text.
type JSONCodec struct{}

var _ Codec = JSONCodec{}

func (JSONCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &msg, nil
}

func (JSONCodec) Encode(message *Message) ([]byte, error) {
	return json.Marshal(message)
}

func (JSONCodec) Binary() bool { return false }

// CBORCodec encodes messages as CBOR binary frames.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var _ Codec = (*CBORCodec)(nil)

// NewCBORCodec creates a CBOR codec that decodes maps as map[string]any so
// payloads look the same as with the JSON codec.
func NewCBORCodec() (*CBORCodec, error) {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor encode mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor decode mode: %w", err)
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

func (c *CBORCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := c.dec.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return &msg, nil
}

func (c *CBORCodec) Encode(message *Message) ([]byte, error) {
	return c.enc.Marshal(message)
}

func (c *CBORCodec) Binary() bool { return true }

// NewCodec returns the codec registered under name ("json" or "cbor").
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
