package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/truckmitra/freight-broker/internal/model"
)

// APILogRepo appends audit rows for third-party calls. Rows are write-once;
// there is no update path.
type APILogRepo struct{ DB *sql.DB }

func NewAPILogRepo(db *sql.DB) *APILogRepo { return &APILogRepo{DB: db} }

// Append writes one audit row. Bodies must already be masked by the caller.
func (r *APILogRepo) Append(ctx context.Context, entry *model.APILog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO api_logs
		 (user_id, endpoint, method, request_body, response_body, status_code, error_message, duration_ms, log_type, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		nullStr(entry.UserID), entry.Endpoint, entry.Method,
		nullBytes(entry.RequestBody), nullBytes(entry.ResponseBody),
		entry.StatusCode, nullStr(entry.ErrorMessage),
		entry.DurationMs, entry.LogType, entry.CreatedAt)
	return err
}
