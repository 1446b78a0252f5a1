package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/xeipuuv/gojsonschema"
)

const envelopeSchema = `{
	"type": "object",
	"required": ["type"],
	"properties": {
		"type": {"enum": ["join", "leave", "cursor_update", "file_change", "chat", "sync"]},
		"participantId": {"type": "string"},
		"timestamp": {"type": "string"}
	}
}`

var payloadSchemas = map[domain.MessageType]string{
	domain.MessageJoin: `{
		"type": "object",
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"email": {"type": "string"},
			"role": {"type": "string"}
		}
	}`,
	domain.MessageCursorUpdate: `{
		"type": "object",
		"required": ["cursor"],
		"properties": {
			"cursor": {
				"type": "object",
				"required": ["line", "character"],
				"properties": {
					"line": {"type": "integer", "minimum": 0},
					"character": {"type": "integer", "minimum": 0},
					"file": {"type": "string"}
				}
			}
		}
	}`,
	domain.MessageFileChange: `{
		"type": "object",
		"required": ["filePath", "content"],
		"properties": {
			"filePath": {"type": "string", "minLength": 1},
			"content": {"type": "string"},
			"modifiedBy": {"type": "string"},
			"version": {"type": "integer"}
		}
	}`,
	domain.MessageChat: `{
		"type": "object",
		"required": ["text"],
		"properties": {
			"text": {"type": "string"}
		}
	}`,
}

// payloadOptional lists message types whose data may be omitted.
var payloadOptional = map[domain.MessageType]bool{
	domain.MessageJoin: true,
}

type validator struct {
	envelope *gojsonschema.Schema
	payloads map[domain.MessageType]*gojsonschema.Schema
}

var loadValidator = sync.OnceValues(newValidator)

func newValidator() (*validator, error) {
	env, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(envelopeSchema))
	if err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	v := &validator{
		envelope: env,
		payloads: make(map[domain.MessageType]*gojsonschema.Schema, len(payloadSchemas)),
	}
	for t, src := range payloadSchemas {
		s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", t, err)
		}
		v.payloads[t] = s
	}
	return v, nil
}

// decode validates raw against the envelope and payload schemas and
// unmarshals it. Every failure is a *domain.ProtocolError.
func (v *validator) decode(raw []byte) (domain.Message, error) {
	if !json.Valid(raw) {
		return domain.Message{}, domain.NewProtocolError("", "invalid_json", nil)
	}

	if err := check(v.envelope, raw); err != nil {
		return domain.Message{}, domain.NewProtocolError("", "invalid_envelope", err)
	}

	var msg domain.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.Message{}, domain.NewProtocolError("", "invalid_envelope", err)
	}

	schema, ok := v.payloads[msg.Type]
	if !ok {
		return msg, nil
	}
	if len(msg.Data) == 0 || bytes.Equal(bytes.TrimSpace(msg.Data), []byte("null")) {
		if payloadOptional[msg.Type] {
			msg.Data = nil
			return msg, nil
		}
		return domain.Message{}, domain.NewProtocolError(msg.Type, "missing_data", nil)
	}
	if err := check(schema, msg.Data); err != nil {
		return domain.Message{}, domain.NewProtocolError(msg.Type, "invalid_data", err)
	}
	return msg, nil
}

func check(schema *gojsonschema.Schema, doc []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return err
	}
	if result.Valid() {
		return nil
	}
	reasons := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		reasons = append(reasons, e.String())
	}
	return errors.New(strings.Join(reasons, "; "))
}
