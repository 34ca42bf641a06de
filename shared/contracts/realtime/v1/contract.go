// Package v1 defines the dashboard realtime channel contract.
//
// Frames are flat JSON objects carrying a "type" discriminator next to their
// own fields. Consumers treat unknown types as opaque pass-through.
package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type constants (wire-stable).
const (
	// TypeLogEntry streams one backend log line (server -> dashboard).
	TypeLogEntry = "log_entry"

	// TypeAny subscribes to every frame regardless of type.
	TypeAny = "*"
)

// Log levels the backend emits on log_entry frames.
const (
	LevelError = "ERROR"
	LevelWarn  = "WARN"
	LevelInfo  = "INFO"
)

var (
	// ErrNotObject is returned when a frame is valid JSON but not an object.
	ErrNotObject = errors.New("frame is not a JSON object")

	// ErrMissingType is returned when a frame has no usable type discriminator.
	ErrMissingType = errors.New("missing field: type")
)

// Envelope is one decoded channel frame. Raw keeps the full original object so
// handlers can decode type-specific fields without a second read.
type Envelope struct {
	Type string
	ID   string
	Raw  json.RawMessage
}

// header reads the two envelope fields loosely: only a string "type" is
// required, and an "id" of any other JSON kind is ignored.
type header struct {
	Type json.RawMessage `json:"type"`
	ID   json.RawMessage `json:"id,omitempty"`
}

// jsonString returns raw as a Go string when it is a JSON string.
func jsonString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Decode parses a frame. It fails for non-JSON, non-object frames and for
// objects without a type.
func Decode(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if !json.Valid(trimmed) {
			return Envelope{}, fmt.Errorf("bad json: %w", errInvalidJSON)
		}
		return Envelope{}, ErrNotObject
	}

	var h header
	if err := json.Unmarshal(trimmed, &h); err != nil {
		return Envelope{}, fmt.Errorf("bad json: %w", err)
	}
	typ, ok := jsonString(h.Type)
	if !ok || strings.TrimSpace(typ) == "" {
		return Envelope{}, ErrMissingType
	}
	id, _ := jsonString(h.ID)

	raw := make(json.RawMessage, len(trimmed))
	copy(raw, trimmed)
	return Envelope{Type: typ, ID: id, Raw: raw}, nil
}

var errInvalidJSON = errors.New("invalid JSON")

// Into decodes the full frame into dst.
func (e Envelope) Into(dst any) error {
	if len(e.Raw) == 0 {
		return errors.New("empty envelope")
	}
	return json.Unmarshal(e.Raw, dst)
}

// Encode builds an outbound frame: the fields of payload (which must marshal
// to a JSON object, or be nil) plus "type" and, when non-empty, "id".
func Encode(typ, id string, payload any) ([]byte, error) {
	if strings.TrimSpace(typ) == "" {
		return nil, ErrMissingType
	}

	fields := map[string]json.RawMessage{}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, ErrNotObject
		}
		if fields == nil {
			fields = map[string]json.RawMessage{}
		}
	}

	t, _ := json.Marshal(typ)
	fields["type"] = t
	if id != "" {
		v, _ := json.Marshal(id)
		fields["id"] = v
	}
	return json.Marshal(fields)
}

// ---- Payloads ----

// LogEntry is a log_entry frame. A timestamp that cannot be read leaves
// Timestamp zero instead of failing the entry.
type LogEntry struct {
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// timestampLayouts are tried in order. Layouts without an offset are read
// in the local zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp reads the timestamp forms the backend emits: RFC 3339, and
// ISO 8601 without an offset (Python isoformat of a naive datetime).
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (e *LogEntry) UnmarshalJSON(b []byte) error {
	type plain LogEntry
	var aux struct {
		plain
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*e = LogEntry(aux.plain)
	e.Timestamp = time.Time{}
	if s, ok := jsonString(aux.Timestamp); ok {
		if t, ok := ParseTimestamp(s); ok {
			e.Timestamp = t
		}
	}
	return nil
}
