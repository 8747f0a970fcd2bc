// Package repository contains data access logic for the brokerage backend.
// This file persists KYC verification lifecycle records. A row is inserted
// as `pending` before any provider call and updated exactly once when the
// call reaches a terminal outcome.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/truckmitra/freight-broker/internal/model"
)

// ErrKYCRequestNotFound indicates that no kyc_requests row matched the id.
var ErrKYCRequestNotFound = errors.New("kyc request not found")

// KYCRequestRepo manages persistence for KYC verification requests.
type KYCRequestRepo struct{ DB *sql.DB }

func NewKYCRequestRepo(db *sql.DB) *KYCRequestRepo { return &KYCRequestRepo{DB: db} }

// Create inserts a pending request row. A uuid is generated when the caller
// did not supply one; created_at/updated_at are set to the same instant.
func (r *KYCRequestRepo) Create(ctx context.Context, req *model.KYCRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = model.KYCStatusPending
	}
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO kyc_requests
		 (id, user_id, request_type, request_ref, status, request_hash, request_masked, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		req.ID, nullStr(req.UserID), req.RequestType, nullStr(req.RequestRef),
		req.Status, nullStr(req.RequestHash), nullBytes(req.RequestMasked), now, now)
	return err
}

// KYCRequestUpdate is the partial field set applied on completion. Nil
// members leave the column untouched.
type KYCRequestUpdate struct {
	Status              string
	ResponseStatusCode  *int
	ResponseMessageCode *string
	ResponseMasked      []byte
	ErrorMessage        *string
}

// Update applies the terminal outcome to a request row and returns the
// refreshed record. updated_at is always advanced.
func (r *KYCRequestRepo) Update(ctx context.Context, id string, upd KYCRequestUpdate) (*model.KYCRequest, error) {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE kyc_requests SET
		   status = COALESCE(NULLIF(?, ''), status),
		   response_status_code = COALESCE(?, response_status_code),
		   response_message_code = COALESCE(?, response_message_code),
		   response_masked = COALESCE(?, response_masked),
		   error_message = COALESCE(?, error_message),
		   updated_at = ?
		 WHERE id = ?`,
		upd.Status, upd.ResponseStatusCode, upd.ResponseMessageCode,
		nullBytes(upd.ResponseMasked), upd.ErrorMessage, time.Now().UTC(), id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports 0 for no-op updates too; confirm existence below.
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return nil, gerr
		}
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches a request row by its uuid.
func (r *KYCRequestRepo) GetByID(ctx context.Context, id string) (*model.KYCRequest, error) {
	var (
		req        model.KYCRequest
		userID     sql.NullString
		requestRef sql.NullString
		reqHash    sql.NullString
		reqMasked  []byte
		respMasked []byte
		respStatus sql.NullInt64
		respMsg    sql.NullString
		errMsg     sql.NullString
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, request_type, request_ref, status, request_hash,
		        request_masked, response_masked, response_status_code,
		        response_message_code, error_message, created_at, updated_at
		 FROM kyc_requests WHERE id = ? LIMIT 1`, id).
		Scan(&req.ID, &userID, &req.RequestType, &requestRef, &req.Status, &reqHash,
			&reqMasked, &respMasked, &respStatus, &respMsg, &errMsg,
			&req.CreatedAt, &req.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKYCRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	req.UserID = userID.String
	req.RequestRef = requestRef.String
	req.RequestHash = reqHash.String
	req.RequestMasked = reqMasked
	req.ResponseMasked = respMasked
	if respStatus.Valid {
		v := int(respStatus.Int64)
		req.ResponseStatusCode = &v
	}
	req.ResponseMessageCode = respMsg.String
	req.ErrorMessage = errMsg.String
	return &req, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
