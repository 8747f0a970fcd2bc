// Package service implements the business operations of the brokerage
// backend: KYC verification orchestration, trip tracking and OTP delivery.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/truckmitra/freight-broker/internal/model"
	"github.com/truckmitra/freight-broker/internal/queue"
	"github.com/truckmitra/freight-broker/internal/repository"
	"github.com/truckmitra/freight-broker/internal/surepass"
	"github.com/truckmitra/freight-broker/internal/utils"
)

// KYCStore is the lifecycle-record sink consumed by the KYC service.
// Implemented by repository.KYCRequestRepo.
type KYCStore interface {
	Create(ctx context.Context, req *model.KYCRequest) error
	Update(ctx context.Context, id string, upd repository.KYCRequestUpdate) (*model.KYCRequest, error)
}

// AuditLog appends one row per remote call attempt. Implemented by
// repository.APILogRepo.
type AuditLog interface {
	Append(ctx context.Context, entry *model.APILog) error
}

// EncryptedTransport is the envelope-encrypted provider channel.
type EncryptedTransport interface {
	PostJSON(ctx context.Context, endpoint string, body any) (surepass.Response, error)
}

// PlainTransport is the ordinary-JSON provider channel.
type PlainTransport interface {
	Post(ctx context.Context, endpoint string, body any) (surepass.Response, error)
}

// EventPublisher receives terminal verification outcomes. Publishing is
// best-effort; failures are logged and never affect the caller.
type EventPublisher interface {
	PublishKYCCompleted(ctx context.Context, ev queue.KYCCompletedEvent) error
}

// KYCService orchestrates one verification use case per call: masked
// summary, pending lifecycle record, provider call, terminal update, audit
// row, completion event. The audit row is always written after the
// lifecycle record's terminal update.
type KYCService struct {
	Requests  KYCStore
	Logs      AuditLog
	Encrypted EncryptedTransport
	PlainKYC  PlainTransport // kyc-api base (pan comprehensive)
	Plain     PlainTransport // sandbox base (gstin, email check)
	Events    EventPublisher
}

func NewKYCService(requests KYCStore, logs AuditLog, encrypted EncryptedTransport, plainKYC, plain PlainTransport, events EventPublisher) *KYCService {
	return &KYCService{
		Requests:  requests,
		Logs:      logs,
		Encrypted: encrypted,
		PlainKYC:  plainKYC,
		Plain:     plain,
		Events:    events,
	}
}

// VerifyInput carries the caller context shared by all verification kinds.
type VerifyInput struct {
	UserID     string
	RequestRef string
}

// ----- provider response variants -----

// PANResult is the data payload of a basic PAN verification.
type PANResult struct {
	PANNumber *string `json:"pan_number,omitempty"`
	FullName  *string `json:"full_name,omitempty"`
	Category  *string `json:"category,omitempty"`
	Status    *string `json:"status,omitempty"`
}

// PANComprehensiveResult adds contact and partial Aadhaar details.
type PANComprehensiveResult struct {
	PANNumber     *string `json:"pan_number,omitempty"`
	FullName      *string `json:"full_name,omitempty"`
	Email         *string `json:"email,omitempty"`
	PhoneNumber   *string `json:"phone_number,omitempty"`
	MaskedAadhaar *string `json:"masked_aadhaar,omitempty"`
}

// GSTINResult is the data payload of a GSTIN verification.
type GSTINResult struct {
	GSTIN        *string `json:"gstin,omitempty"`
	PANNumber    *string `json:"pan_number,omitempty"`
	LegalName    *string `json:"legal_name,omitempty"`
	BusinessName *string `json:"business_name,omitempty"`
	GSTINStatus  *string `json:"gstin_status,omitempty"`
}

// EmailCheckResult is the data payload of an email deliverability check.
type EmailCheckResult struct {
	Email       *string `json:"email,omitempty"`
	Status      *string `json:"status,omitempty"`
	Deliverable *bool   `json:"deliverable,omitempty"`
}

// ----- masked request summaries -----

type panRequestSummary struct {
	PANLast4  string `json:"pan_last4"`
	PANMasked string `json:"pan_masked"`
	PANHash   string `json:"pan_hash"`
}

type gstinRequestSummary struct {
	GSTINLast4  string `json:"gstin_last4"`
	GSTINMasked string `json:"gstin_masked"`
	GSTINHash   string `json:"gstin_hash"`
}

type emailRequestSummary struct {
	EmailMasked string `json:"email_masked"`
	EmailHash   string `json:"email_hash"`
}

func sanitizePANRequest(pan string) panRequestSummary {
	last4 := pan
	if len(pan) > 4 {
		last4 = pan[len(pan)-4:]
	}
	return panRequestSummary{
		PANLast4:  last4,
		PANMasked: utils.MaskValue(pan),
		PANHash:   utils.HashValue(pan),
	}
}

func sanitizeGSTINRequest(gstin string) gstinRequestSummary {
	last4 := gstin
	if len(gstin) > 4 {
		last4 = gstin[len(gstin)-4:]
	}
	return gstinRequestSummary{
		GSTINLast4:  last4,
		GSTINMasked: utils.MaskValue(gstin),
		GSTINHash:   utils.HashValue(gstin),
	}
}

func sanitizeEmailRequest(email string) emailRequestSummary {
	return emailRequestSummary{
		EmailMasked: utils.MaskEmail(email),
		EmailHash:   utils.HashValue(strings.ToLower(email)),
	}
}

func maskPtr(v *string) *string {
	if v == nil {
		return nil
	}
	m := utils.MaskValue(*v)
	return &m
}

func maskEmailPtr(v *string) *string {
	if v == nil {
		return nil
	}
	m := utils.MaskEmail(*v)
	return &m
}

// ----- verification operations -----

// VerifyPAN checks a PAN through the encrypted channel.
func (s *KYCService) VerifyPAN(ctx context.Context, panNumber string, in VerifyInput) (surepass.Response, error) {
	summary := sanitizePANRequest(panNumber)
	return s.verify(ctx, verifyParams{
		userID:        in.UserID,
		requestType:   model.KYCTypePAN,
		requestRef:    in.RequestRef,
		endpoint:      "/api/v1/pan/pan",
		requestHash:   summary.PANHash,
		requestMasked: summary,
		call: func(ctx context.Context) (surepass.Response, error) {
			return s.Encrypted.PostJSON(ctx, "/api/v1/pan/pan", map[string]string{"pan_number": panNumber})
		},
		sanitize: func(data json.RawMessage) (any, error) {
			var r PANResult
			if err := json.Unmarshal(data, &r); err != nil {
				return nil, err
			}
			r.PANNumber = maskPtr(r.PANNumber)
			return r, nil
		},
	})
}

// VerifyPANComprehensive checks a PAN with contact details through the
// plain kyc-api channel.
func (s *KYCService) VerifyPANComprehensive(ctx context.Context, panNumber string, in VerifyInput) (surepass.Response, error) {
	summary := sanitizePANRequest(panNumber)
	return s.verify(ctx, verifyParams{
		userID:        in.UserID,
		requestType:   model.KYCTypePANComprehensive,
		requestRef:    in.RequestRef,
		endpoint:      "/api/v1/pan/pan-comprehensive",
		requestHash:   summary.PANHash,
		requestMasked: summary,
		call: func(ctx context.Context) (surepass.Response, error) {
			return s.PlainKYC.Post(ctx, "/api/v1/pan/pan-comprehensive", map[string]string{"id_number": panNumber})
		},
		sanitize: func(data json.RawMessage) (any, error) {
			var r PANComprehensiveResult
			if err := json.Unmarshal(data, &r); err != nil {
				return nil, err
			}
			r.PANNumber = maskPtr(r.PANNumber)
			r.Email = maskEmailPtr(r.Email)
			r.PhoneNumber = maskPtr(r.PhoneNumber)
			r.MaskedAadhaar = maskPtr(r.MaskedAadhaar)
			return r, nil
		},
	})
}

// VerifyGSTIN checks a GSTIN through the plain channel.
func (s *KYCService) VerifyGSTIN(ctx context.Context, gstinNumber string, in VerifyInput) (surepass.Response, error) {
	summary := sanitizeGSTINRequest(gstinNumber)
	return s.verify(ctx, verifyParams{
		userID:        in.UserID,
		requestType:   model.KYCTypeGSTIN,
		requestRef:    in.RequestRef,
		endpoint:      "/api/v1/corporate/gstin",
		requestHash:   summary.GSTINHash,
		requestMasked: summary,
		call: func(ctx context.Context) (surepass.Response, error) {
			return s.Plain.Post(ctx, "/api/v1/corporate/gstin", map[string]string{"id_number": gstinNumber})
		},
		sanitize: func(data json.RawMessage) (any, error) {
			var r GSTINResult
			if err := json.Unmarshal(data, &r); err != nil {
				return nil, err
			}
			r.GSTIN = maskPtr(r.GSTIN)
			r.PANNumber = maskPtr(r.PANNumber)
			return r, nil
		},
	})
}

// VerifyEmail checks address deliverability through the plain channel.
func (s *KYCService) VerifyEmail(ctx context.Context, email string, in VerifyInput) (surepass.Response, error) {
	summary := sanitizeEmailRequest(email)
	return s.verify(ctx, verifyParams{
		userID:        in.UserID,
		requestType:   model.KYCTypeEmailCheck,
		requestRef:    in.RequestRef,
		endpoint:      "/api/v1/employment/email-check",
		requestHash:   summary.EmailHash,
		requestMasked: summary,
		call: func(ctx context.Context) (surepass.Response, error) {
			return s.Plain.Post(ctx, "/api/v1/employment/email-check", map[string]string{"email": email})
		},
		sanitize: func(data json.RawMessage) (any, error) {
			var r EmailCheckResult
			if err := json.Unmarshal(data, &r); err != nil {
				return nil, err
			}
			r.Email = maskEmailPtr(r.Email)
			return r, nil
		},
	})
}

// ----- shared template -----

type verifyParams struct {
	userID        string
	requestType   string
	requestRef    string
	endpoint      string
	requestHash   string
	requestMasked any
	call          func(ctx context.Context) (surepass.Response, error)
	sanitize      func(data json.RawMessage) (any, error)
}

// verify runs the lifecycle shared by every verification kind. Transport
// errors are recorded and re-thrown; provider-logical failures come back as
// a Response with Success=false. The masked summary is computed before the
// record is created and never changes afterwards.
func (s *KYCService) verify(ctx context.Context, p verifyParams) (surepass.Response, error) {
	startedAt := time.Now()

	maskedJSON, err := json.Marshal(p.requestMasked)
	if err != nil {
		return surepass.Response{}, fmt.Errorf("kyc: marshal request summary: %w", err)
	}

	record := &model.KYCRequest{
		UserID:        p.userID,
		RequestType:   p.requestType,
		RequestRef:    p.requestRef,
		Status:        model.KYCStatusPending,
		RequestHash:   p.requestHash,
		RequestMasked: maskedJSON,
	}
	if err := s.Requests.Create(ctx, record); err != nil {
		return surepass.Response{}, fmt.Errorf("kyc: create request record: %w", err)
	}

	resp, callErr := p.call(ctx)
	if callErr != nil {
		s.completeFailed(ctx, record, p, maskedJSON, callErr, startedAt)
		return surepass.Response{}, callErr
	}

	var sanitizedJSON []byte
	if len(resp.Data) > 0 {
		sanitized, err := p.sanitize(resp.Data)
		if err != nil {
			// Malformed data payload from the provider: keep the outcome,
			// store nothing rather than unmasked fields.
			log.Printf("kyc: sanitize %s response failed: %v", p.requestType, err)
		} else if sanitized != nil {
			sanitizedJSON, _ = json.Marshal(sanitized)
		}
	}

	status := model.KYCStatusFailed
	if resp.Success {
		status = model.KYCStatusSuccess
	}
	var statusCode *int
	if resp.StatusCode != 0 {
		sc := resp.StatusCode
		statusCode = &sc
	}
	msgCode := resp.MessageCode
	if _, err := s.Requests.Update(ctx, record.ID, repository.KYCRequestUpdate{
		Status:              status,
		ResponseStatusCode:  statusCode,
		ResponseMessageCode: &msgCode,
		ResponseMasked:      sanitizedJSON,
	}); err != nil {
		log.Printf("kyc: update request %s failed: %v", record.ID, err)
	}

	s.appendLog(ctx, &model.APILog{
		UserID:       p.userID,
		Endpoint:     p.endpoint,
		Method:       "POST",
		RequestBody:  maskedJSON,
		ResponseBody: sanitizedJSON,
		StatusCode:   statusCode,
		DurationMs:   time.Since(startedAt).Milliseconds(),
		LogType:      model.LogTypeSurepass,
	})
	s.publishCompleted(ctx, record, status, statusCode)
	return resp, nil
}

// completeFailed applies the failed terminal state after a transport error:
// lifecycle update first, audit row second, in that order.
func (s *KYCService) completeFailed(ctx context.Context, record *model.KYCRequest, p verifyParams, maskedJSON []byte, callErr error, startedAt time.Time) {
	msg := callErr.Error()
	var statusCode *int
	var provErr *surepass.Error
	if errors.As(callErr, &provErr) && provErr.Status != 0 {
		sc := provErr.Status
		statusCode = &sc
	}
	if _, err := s.Requests.Update(ctx, record.ID, repository.KYCRequestUpdate{
		Status:       model.KYCStatusFailed,
		ErrorMessage: &msg,
	}); err != nil {
		log.Printf("kyc: update request %s failed: %v", record.ID, err)
	}
	s.appendLog(ctx, &model.APILog{
		UserID:       p.userID,
		Endpoint:     p.endpoint,
		Method:       "POST",
		RequestBody:  maskedJSON,
		ResponseBody: nil,
		StatusCode:   statusCode,
		ErrorMessage: msg,
		DurationMs:   time.Since(startedAt).Milliseconds(),
		LogType:      model.LogTypeSurepass,
	})
	s.publishCompleted(ctx, record, model.KYCStatusFailed, statusCode)
}

func (s *KYCService) appendLog(ctx context.Context, entry *model.APILog) {
	if err := s.Logs.Append(ctx, entry); err != nil {
		log.Printf("kyc: append audit log failed: %v", err)
	}
}

func (s *KYCService) publishCompleted(ctx context.Context, record *model.KYCRequest, status string, statusCode *int) {
	if s.Events == nil {
		return
	}
	ev := queue.KYCCompletedEvent{
		RequestID:   record.ID,
		UserID:      record.UserID,
		RequestType: record.RequestType,
		Status:      status,
		CompletedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if statusCode != nil {
		ev.StatusCode = *statusCode
	}
	if err := s.Events.PublishKYCCompleted(ctx, ev); err != nil {
		log.Printf("kyc: publish completion event failed: %v", err)
	}
}
