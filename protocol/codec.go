// Package protocol implements the wire codec for the hardware-control
// server's JSON message protocol: outgoing command envelopes, incoming
// frame parsing, and device descriptor parsing. The codec holds no state.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/c360/hapticbridge/errors"
)

// Frame is one decoded incoming message. The wire carries arrays of
// single-key objects; the key is the frame type and the value its content.
type Frame struct {
	Type  string
	ID    uint32
	HasID bool
	Raw   json.RawMessage
}

// idProbe extracts the correlation id from a frame's content, if present.
type idProbe struct {
	ID *uint32 `json:"Id"`
}

// Encode wraps a command payload into the outgoing wire envelope:
// a single-element array whose one entry maps the command name to the
// payload fields plus the correlation id.
func Encode(name string, id uint32, payload any) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Codec", "Encode", "marshal payload")
		}
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, errors.WrapInvalid(err, "Codec", "Encode", "payload must be an object")
		}
	}

	body := make(map[string]any, len(fields)+1)
	body["Id"] = id
	for k, v := range fields {
		body[k] = v
	}

	envelope := []map[string]any{{name: body}}
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Codec", "Encode", "marshal envelope")
	}
	return data, nil
}

// Decode parses an incoming text frame into typed frames. Malformed input
// (non-JSON, empty array, multi-key objects) returns an error wrapping
// ErrDecodeFailed; callers log and drop the frame without closing the
// connection, since discovery traffic unrelated to any pending request
// must not disrupt the session.
func Decode(data []byte) ([]Frame, error) {
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecodeFailed, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty message array", errors.ErrDecodeFailed)
	}

	frames := make([]Frame, 0, len(entries))
	for _, entry := range entries {
		if len(entry) != 1 {
			return nil, fmt.Errorf("%w: expected single-key object, got %d keys",
				errors.ErrDecodeFailed, len(entry))
		}
		for frameType, content := range entry {
			frame := Frame{Type: frameType, Raw: content}
			var probe idProbe
			if err := json.Unmarshal(content, &probe); err == nil && probe.ID != nil {
				frame.ID = *probe.ID
				frame.HasID = true
			}
			frames = append(frames, frame)
		}
	}
	return frames, nil
}
