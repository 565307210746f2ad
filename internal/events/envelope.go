package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Wire field names.
const (
	FieldID        = "id"
	FieldType      = "type"
	FieldSource    = "source"
	FieldTimestamp = "timestamp"
	FieldData      = "data"
)

// TimestampLayout is an ISO-8601 local datetime without zone.
const TimestampLayout = "2006-01-02T15:04:05.999999999"

// Envelope is the unit published to a stream.
type Envelope struct {
	ID        string          `json:"id"`
	Type      Name            `json:"type"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope stamps data with a fresh id and the current local time.
func NewEnvelope(name Name, source string, data json.RawMessage) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Type:      name,
		Source:    source,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// Fields flattens the envelope into a wire record.
func (e Envelope) Fields() map[string]string {
	return map[string]string{
		FieldID:        e.ID,
		FieldType:      string(e.Type),
		FieldSource:    e.Source,
		FieldTimestamp: e.Timestamp.Format(TimestampLayout),
		FieldData:      string(e.Data),
	}
}

// IsPlaceholder reports whether fields is the stream-creation placeholder.
func IsPlaceholder(fields map[string]string) bool {
	_, ok := fields[PlaceholderField]
	return ok && fields[FieldType] == ""
}

// ParseEnvelope rebuilds an envelope from a wire record. The data field must
// hold a JSON object. An unparsable timestamp is left zero.
func ParseEnvelope(fields map[string]string) (Envelope, error) {
	typ, data := fields[FieldType], fields[FieldData]
	if typ == "" {
		return Envelope{}, fmt.Errorf("%w: missing %q", ErrMalformed, FieldType)
	}
	if data == "" {
		return Envelope{}, fmt.Errorf("%w: missing %q", ErrMalformed, FieldData)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &obj); err != nil || obj == nil {
		return Envelope{}, fmt.Errorf("%w: data is not a JSON object", ErrMalformed)
	}
	env := Envelope{
		ID:     fields[FieldID],
		Type:   Name(typ),
		Source: fields[FieldSource],
		Data:   json.RawMessage(data),
	}
	if ts, err := time.ParseInLocation(TimestampLayout, fields[FieldTimestamp], time.Local); err == nil {
		env.Timestamp = ts
	}
	return env, nil
}

// Payload decodes and validates the envelope data for its event type.
func (e Envelope) Payload() (Payload, error) {
	return DecodePayload(e.Type, e.Data)
}

// DataMap decodes the data field into a generic mapping.
func (e Envelope) DataMap() (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}
