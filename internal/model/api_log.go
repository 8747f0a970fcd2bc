package model

import "time"

// LogTypeSurepass discriminates KYC provider audit rows from other log
// streams sharing the api_logs table.
const LogTypeSurepass = "surepass"

// APILog mirrors the `api_logs` table: one row per remote call attempt,
// written after the lifecycle record reaches its terminal state. Request
// and response bodies are stored masked.
type APILog struct {
	ID           uint64    // api_logs.id
	UserID       string    // api_logs.user_id
	Endpoint     string    // api_logs.endpoint
	Method       string    // api_logs.method
	RequestBody  []byte    // api_logs.request_body (JSON, masked)
	ResponseBody []byte    // api_logs.response_body (JSON, masked, nullable)
	StatusCode   *int      // api_logs.status_code (nullable)
	ErrorMessage string    // api_logs.error_message
	DurationMs   int64     // api_logs.duration_ms
	LogType      string    // api_logs.log_type
	CreatedAt    time.Time // api_logs.created_at
}
