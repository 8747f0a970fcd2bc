// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into ops log lines.
package queue

// KYCCompletedEvent is published when a verification request reaches a
// terminal status. It carries only masked/derived fields so downstream
// consumers can notify or aggregate without touching PII or the primary
// database.
type KYCCompletedEvent struct {
	RequestID   string `json:"request_id"`
	UserID      string `json:"user_id,omitempty"`
	RequestType string `json:"request_type"`
	Status      string `json:"status"`
	StatusCode  int    `json:"status_code,omitempty"`
	CompletedAt string `json:"completed_at"`
}

// TripStatusEvent is published when a trip is submitted, started, updated
// or ended.
type TripStatusEvent struct {
	TripID          string `json:"trip_id"`
	IntutrackTripID string `json:"intutrack_trip_id,omitempty"`
	TruckNumber     string `json:"truck_number,omitempty"`
	Status          string `json:"status"`
	TrackingState   string `json:"tracking_state,omitempty"`
	OccurredAt      string `json:"occurred_at"`
}
