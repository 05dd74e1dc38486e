// Package envelope wraps application commands with a fingerprint so traffic from other
// applications sharing the same message channel is never mistaken for ours.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Fingerprint tags every frame produced by this package.
const Fingerprint = "Calla"

// ErrForeign is returned for frames that are not ours, whatever the reason.
var ErrForeign = errors.New("envelope: foreign message")

type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgPack Format = "msgpack"
)

type jsonFrame struct {
	Fingerprint string          `json:"fingerprint"`
	Command     string          `json:"command"`
	Value       json.RawMessage `json:"value,omitempty"`
}

type msgpackFrame struct {
	Fingerprint string             `msgpack:"fingerprint"`
	Command     string             `msgpack:"command"`
	Value       msgpack.RawMessage `msgpack:"value,omitempty"`
}

// Codec encodes and decodes envelopes in one wire format.
type Codec struct {
	format Format
}

func New(format Format) (*Codec, error) {
	switch format {
	case FormatJSON, FormatMsgPack:
		return &Codec{format: format}, nil
	case "":
		return &Codec{format: FormatJSON}, nil
	default:
		return nil, fmt.Errorf("envelope: unsupported format %q", format)
	}
}

func (c *Codec) Format() Format { return c.format }

// Encode serializes value and wraps it with the command and fingerprint.
func (c *Codec) Encode(command string, value any) ([]byte, error) {
	switch c.format {
	case FormatMsgPack:
		f := msgpackFrame{Fingerprint: Fingerprint, Command: command}
		if value != nil {
			raw, err := msgpack.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("envelope: encode %s: %w", command, err)
			}
			f.Value = raw
		}
		return msgpack.Marshal(&f)
	default:
		f := jsonFrame{Fingerprint: Fingerprint, Command: command}
		if value != nil {
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("envelope: encode %s: %w", command, err)
			}
			f.Value = raw
		}
		return json.Marshal(&f)
	}
}

// Decode unwraps a frame. Anything without our exact fingerprint yields ErrForeign.
// The value is left undecoded; see Message.Bind.
func (c *Codec) Decode(data []byte) (Message, error) {
	switch c.format {
	case FormatMsgPack:
		var f msgpackFrame
		if err := msgpack.Unmarshal(data, &f); err != nil || f.Fingerprint != Fingerprint {
			return Message{}, ErrForeign
		}
		return Message{Command: f.Command, value: f.Value, format: FormatMsgPack}, nil
	default:
		var f jsonFrame
		if err := json.Unmarshal(data, &f); err != nil || f.Fingerprint != Fingerprint {
			return Message{}, ErrForeign
		}
		return Message{Command: f.Command, value: f.Value, format: FormatJSON}, nil
	}
}

// Message is a decoded envelope.
type Message struct {
	Command string
	value   []byte
	format  Format
}

// HasValue reports whether the sender attached a payload.
func (m Message) HasValue() bool { return len(m.value) > 0 }

// Bind decodes the payload into v.
func (m Message) Bind(v any) error {
	if !m.HasValue() {
		return fmt.Errorf("envelope: %s has no value", m.Command)
	}
	if m.format == FormatMsgPack {
		return msgpack.Unmarshal(m.value, v)
	}
	return json.Unmarshal(m.value, v)
}
