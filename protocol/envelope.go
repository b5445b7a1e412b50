// Package protocol implements the agent-originated wire envelope and the
// router that dispatches it to task-store mutations (§4.7).
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MaxEnvelopeBytes is the hard size ceiling enforced on decoded envelope
// bytes before JSON parsing is attempted.
const MaxEnvelopeBytes = 256 * 1024

// Message type strings handled by the router.
const (
	TypeStatusUpdate      = "status.update"
	TypeCompletionReport  = "completion.report"
	TypeHandoffRequest    = "handoff.request"
	TypeHandoffAccepted   = "handoff.accepted"
	TypeHandoffRejected   = "handoff.rejected"
)

// Envelope is the wire shape every agent-originated message carries.
type Envelope struct {
	Protocol  string          `json:"protocol"`
	Version   int             `json:"version"`
	ProjectID string          `json:"projectId"`
	Type      string          `json:"type"`
	TaskID    string          `json:"taskId"`
	FromAgent string          `json:"fromAgent"`
	ToAgent   string          `json:"toAgent,omitempty"`
	SentAt    time.Time       `json:"sentAt"`
	Payload   json.RawMessage `json:"payload"`
}

// RejectReason is a ParseEnvelope/carrier-specific rejection tag, reported
// to the caller so it can emit the matching protocol.message.rejected
// payload.
type RejectReason string

const (
	ReasonPayloadTooLarge = RejectReason("payload_too_large")
	ReasonInvalidJSON     = RejectReason("invalid_json")
	ReasonInvalidEnvelope = RejectReason("invalid_envelope")
)

// RejectError reports why an envelope could not be parsed.
type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string { return string(e.Reason) }

const aofStringPrefix = "AOF/1 "

// Unwrap strips the three accepted wire carriers down to raw envelope bytes:
// a bare JSON object, a transport message's {"payload": <envelope>} wrapper,
// or a string prefixed "AOF/1 " followed by the JSON. Returns the bytes
// unchanged if none of the wrapped shapes match (assumed already raw).
func Unwrap(data []byte) []byte {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, aofStringPrefix) {
		return []byte(strings.TrimPrefix(trimmed, aofStringPrefix))
	}

	var wrapper struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Payload) > 0 {
		var probe map[string]any
		if json.Unmarshal(wrapper.Payload, &probe) == nil {
			if _, ok := probe["protocol"]; ok {
				return wrapper.Payload
			}
		}
	}

	return data
}

// ParseEnvelope decodes and validates data (after Unwrap has been applied
// by the caller if needed) against the size limit and required fields.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if len(data) > MaxEnvelopeBytes {
		return nil, &RejectError{Reason: ReasonPayloadTooLarge}
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &RejectError{Reason: ReasonInvalidJSON}
	}

	if err := validateEnvelope(&env); err != nil {
		return nil, err
	}

	return &env, nil
}

func validateEnvelope(env *Envelope) error {
	missing := env.Protocol == "" || env.Version == 0 || env.Type == "" ||
		env.TaskID == "" || env.FromAgent == "" || env.SentAt.IsZero()
	if missing {
		return &RejectError{Reason: ReasonInvalidEnvelope}
	}
	if env.Protocol != "aof" {
		return &RejectError{Reason: ReasonInvalidEnvelope}
	}
	return nil
}

// IsKnownType reports whether t is one of the router's handled types.
func IsKnownType(t string) bool {
	switch t {
	case TypeStatusUpdate, TypeCompletionReport, TypeHandoffRequest, TypeHandoffAccepted, TypeHandoffRejected:
		return true
	default:
		return false
	}
}

// decodePayload unmarshals env.Payload into out, wrapping json errors with
// the envelope's type for easier diagnosis.
func decodePayload(env *Envelope, out any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("envelope type %s: empty payload", env.Type)
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return fmt.Errorf("envelope type %s: decode payload: %w", env.Type, err)
	}
	return nil
}
