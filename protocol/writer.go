package protocol

import (
	"github.com/tidwall/sjson"
)

var nullValue = []byte("null")

// EncodeMessage builds an ordinary frame `[index, payload]`. The payload
// must be raw JSON; an empty payload is encoded as null.
func EncodeMessage(index int, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		payload = nullValue
	}

	frame, err := sjson.SetBytes([]byte("[]"), "-1", index)
	if err != nil {
		return nil, err
	}

	return sjson.SetRawBytes(frame, "-1", payload)
}

// EncodeEnvelope builds a request or response envelope `{id, cmd, data}`.
// The data must be raw JSON; empty data is encoded as null.
func EncodeEnvelope(env *Envelope) ([]byte, error) {
	data := env.Data
	if len(data) == 0 {
		data = nullValue
	}

	out, err := sjson.SetBytes([]byte("{}"), "id", env.ID)
	if err != nil {
		return nil, err
	}

	out, err = sjson.SetBytes(out, "cmd", env.Cmd)
	if err != nil {
		return nil, err
	}

	return sjson.SetRawBytes(out, "data", data)
}
