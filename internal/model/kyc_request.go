package model

import "time"

// KYC request lifecycle statuses. A row is created as pending before the
// provider call begins and moves to exactly one terminal status.
const (
	KYCStatusPending = "pending"
	KYCStatusSuccess = "success"
	KYCStatusFailed  = "failed"
)

// Verification request types accepted by the KYC service.
const (
	KYCTypePAN              = "pan"
	KYCTypePANComprehensive = "pan_comprehensive"
	KYCTypeGSTIN            = "gstin"
	KYCTypeEmailCheck       = "email_check"
)

// KYCRequest mirrors the `kyc_requests` table: one row per verification
// attempt against the KYC provider. Raw PII never lands here — RequestHash
// is a SHA-256 digest and the masked columns hold redacted JSON documents.
//
// Fields:
//  ID                  – uuid primary key, generated at creation.
//  UserID              – requesting user, empty for system-initiated checks.
//  RequestType         – pan | pan_comprehensive | gstin | email_check.
//  RequestRef          – optional caller-supplied correlation token.
//  Status              – pending | success | failed.
//  RequestHash         – one-way digest of the sensitive input.
//  RequestMasked       – redacted request summary (JSON).
//  ResponseMasked      – sanitized provider response (JSON), nil until terminal.
//  ResponseStatusCode  – provider-reported status code.
//  ResponseMessageCode – provider-reported message code.
//  ErrorMessage        – populated only on failure.
//  CreatedAt/UpdatedAt – UpdatedAt refreshed on every mutation.
type KYCRequest struct {
	ID                  string     // kyc_requests.id
	UserID              string     // kyc_requests.user_id
	RequestType         string     // kyc_requests.request_type
	RequestRef          string     // kyc_requests.request_ref
	Status              string     // kyc_requests.status
	RequestHash         string     // kyc_requests.request_hash
	RequestMasked       []byte     // kyc_requests.request_masked (JSON)
	ResponseMasked      []byte     // kyc_requests.response_masked (JSON, nullable)
	ResponseStatusCode  *int       // kyc_requests.response_status_code (nullable)
	ResponseMessageCode string     // kyc_requests.response_message_code
	ErrorMessage        string     // kyc_requests.error_message
	CreatedAt           time.Time  // kyc_requests.created_at
	UpdatedAt           time.Time  // kyc_requests.updated_at
}
