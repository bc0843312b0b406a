package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encodings a client may ask for on identify
const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

// Codec turns server messages into frames
type Codec interface {
	Encode(Message) ([]byte, error)
	// Binary reports whether frames must go out as binary websocket messages
	Binary() bool
}

// JSONCodec writes text frames
type JSONCodec struct{}

func (JSONCodec) Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(Stamp(m))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	return data, nil
}

func (JSONCodec) Binary() bool { return false }

// MsgpackCodec writes compact binary frames
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(m Message) ([]byte, error) {
	data, err := msgpack.Marshal(Stamp(m))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	return data, nil
}

func (MsgpackCodec) Binary() bool { return true }

// CodecFor picks the codec for an encoding name, defaulting to JSON
func CodecFor(encoding string) Codec {
	if encoding == EncodingMsgpack {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// EncodeMsgpack writes the direction as its wire name
func (d Direction) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(d.String())
}

// DecodeMsgpack reads a direction written by EncodeMsgpack
func (d *Direction) DecodeMsgpack(dec *msgpack.Decoder) error {
	s, err := dec.DecodeString()
	if err != nil {
		return err
	}
	*d = ParseDirection(s)
	return nil
}

// UnmarshalJSON reads a direction written by MarshalJSON
func (d *Direction) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*d = ParseDirection(s)
	return nil
}

// ParseDirection maps a wire name to a direction; unknown names are stationary
func ParseDirection(s string) Direction {
	switch s {
	case "up":
		return Up
	case "down":
		return Down
	}
	return Stationary
}

// Stamp returns m with its type tag filled in
func Stamp(m Message) Message {
	t := m.MessageType()
	switch v := m.(type) {
	case GameStart:
		v.Type = t
		return v
	case Update:
		v.Type = t
		return v
	case GameEnd:
		v.Type = t
		return v
	case MatchReady:
		v.Type = t
		return v
	case TournamentComplete:
		v.Type = t
		return v
	case BracketUpdate:
		v.Type = t
		return v
	case Error:
		v.Type = t
		return v
	case Identified:
		v.Type = t
		return v
	case Queued:
		v.Type = t
		return v
	case InviteNotice:
		v.Type = t
		return v
	case InviteSent:
		v.Type = t
		return v
	case InviteCancelled:
		v.Type = t
		return v
	case Pong:
		v.Type = t
		return v
	}
	return m
}
