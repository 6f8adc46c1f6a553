package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

const payloadSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["action", "element", "section"],
  "properties": {
    "action":      {"type": "string", "minLength": 1},
    "element":     {"type": "string", "minLength": 1, "maxLength": 256},
    "section":     {"type": "string", "minLength": 1, "maxLength": 256},
    "duration_ms": {"type": "integer", "minimum": 0},
    "metadata":    {"type": "object"},
    "timestamp":   {"type": "string", "format": "date-time"}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func ingestSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(payloadSchema))
	})
	return compiledSchema, schemaErr
}

// Payload is the client-supplied part of a behavior event. The user id is
// bound from the authenticated identity, never from the body.
type Payload struct {
	Action     Action         `json:"action"`
	Element    string         `json:"element"`
	Section    string         `json:"section"`
	DurationMs *int64         `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  *time.Time     `json:"timestamp,omitempty"`
}

// DecodePayload validates body against the ingestion schema and decodes it.
// Schema failures are returned as *ValidationError.
func DecodePayload(body []byte) (*Payload, error) {
	schema, err := ingestSchema()
	if err != nil {
		return nil, fmt.Errorf("compile ingest schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &ValidationError{Field: "body", Reason: "is not valid JSON"}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, &ValidationError{Field: "body", Reason: strings.Join(msgs, "; ")}
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &ValidationError{Field: "body", Reason: err.Error()}
	}
	return &p, nil
}

// Event binds the payload to a user.
func (p *Payload) Event(userID string) *BehaviorEvent {
	e := &BehaviorEvent{
		UserID:     userID,
		Action:     p.Action,
		Element:    p.Element,
		Section:    p.Section,
		DurationMs: p.DurationMs,
		Metadata:   p.Metadata,
	}
	if p.Timestamp != nil {
		e.Timestamp = p.Timestamp.UTC()
	}
	return e
}
