package surepass

import (
	"encoding/json"
	"fmt"
)

// Response is the normalized provider result shared by the encrypted and
// plain channels. A well-formed response with Success=false is a logical
// failure reported by the provider, not an error.
type Response struct {
	Success     bool            `json:"success"`
	StatusCode  int             `json:"status_code,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Message     *string         `json:"message,omitempty"`
	MessageCode string          `json:"message_code,omitempty"`
}

// ParseResponse validates that payload is a JSON object in the provider's
// response shape. Anything else is a schema failure.
func ParseResponse(payload []byte) (Response, error) {
	var probe any
	if err := json.Unmarshal(payload, &probe); err != nil {
		return Response{}, fmt.Errorf("surepass: response is not valid JSON: %w", err)
	}
	if _, ok := probe.(map[string]any); !ok {
		return Response{}, fmt.Errorf("surepass: response is not a JSON object")
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Response{}, fmt.Errorf("surepass: decode response: %w", err)
	}
	return resp, nil
}

// Error is a transport-level Surepass failure: network faults, timeouts and
// non-2xx plain-channel statuses. Provider-logical failures stay in Response.
type Error struct {
	Message string
	Status  int
	Payload any
}

func (e *Error) Error() string { return e.Message }

// ErrTimeout marks requests cancelled by the configured timeout so callers
// can distinguish them from other network failures.
var ErrTimeout = &Error{Message: "surepass: request timed out"}
