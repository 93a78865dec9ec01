package protocol

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	ErrInvalidJSON        = errors.New("Frame is not valid JSON")
	ErrFrameNotPair       = errors.New("Frame is malformed, it must be a two element array of [index, payload]")
	ErrBadCommandIndex    = errors.New("Frame is malformed, the command index is not an integer")
	ErrNotInitFrame       = errors.New("Frame is not an init frame")
	ErrInitMissingTable   = errors.New("Init frame is malformed, it appears to be missing the ncmds table")
	ErrBadTableIndex      = errors.New("Init frame is malformed, a command maps to a non-integer index")
	ErrEnvelopeMissingID = errors.New("Envelope is malformed, it appears to be missing an id")
)

// IsInit reports whether data looks like the handshake frame. It is a
// cheap shape check, not a full parse; use ParseInit to actually decode it.
func IsInit(data []byte) bool {
	return gjson.GetBytes(data, "cmd").String() == InitCommand
}

// ParseInit decodes the handshake frame and returns the command table.
func ParseInit(data []byte) (*Init, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}

	if gjson.GetBytes(data, "cmd").String() != InitCommand {
		return nil, ErrNotInitFrame
	}

	table := gjson.GetBytes(data, "ncmds")
	if !table.IsObject() {
		return nil, ErrInitMissingTable
	}

	init := &Init{Commands: map[string]int{}}

	var badKey string
	table.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.Number {
			badKey = key.String()
			return false
		}

		init.Commands[key.String()] = int(value.Int())
		return true
	})

	if badKey != "" {
		return nil, fmt.Errorf("Failed to parse command '%s': %w", badKey, ErrBadTableIndex)
	}

	return init, nil
}

// ParseMessage decodes an ordinary frame `[index, payload]`. The returned
// payload references the input data, do not modify it.
func ParseMessage(data []byte) (*Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}

	frame := gjson.ParseBytes(data)
	if !frame.IsArray() {
		return nil, ErrFrameNotPair
	}

	parts := frame.Array()
	if len(parts) != 2 {
		return nil, ErrFrameNotPair
	}

	if parts[0].Type != gjson.Number {
		return nil, fmt.Errorf("Failed to parse '%s': %w", parts[0].Raw, ErrBadCommandIndex)
	}

	return &Message{
		Index:   int(parts[0].Int()),
		Payload: []byte(parts[1].Raw),
	}, nil
}

// ParseEnvelope decodes a request or response envelope `{id, cmd, data}`.
// Only the id is required: responses correlate on it alone, so a peer may
// omit the command name. Callers that need cmd (request tracking does, to
// reply under the right name) must check for it themselves.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}

	id := gjson.GetBytes(data, "id")
	if !id.Exists() || id.String() == "" {
		return nil, ErrEnvelopeMissingID
	}

	return &Envelope{
		ID:   id.String(),
		Cmd:  gjson.GetBytes(data, "cmd").String(),
		Data: []byte(gjson.GetBytes(data, "data").Raw),
	}, nil
}
