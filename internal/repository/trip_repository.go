package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/truckmitra/freight-broker/internal/model"
)

// ErrTripNotFound indicates that no trips row matched the lookup.
var ErrTripNotFound = errors.New("trip not found")

// TripRepo manages persistence for tracked trips.
type TripRepo struct{ DB *sql.DB }

func NewTripRepo(db *sql.DB) *TripRepo { return &TripRepo{DB: db} }

// Create inserts a trip row, generating a uuid when the caller did not
// supply one.
func (r *TripRepo) Create(ctx context.Context, t *model.Trip) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO trips
		 (id, intutrack_trip_id, truck_number, invoice, src_lat, src_lng, dest_lat, dest_lng,
		  tel, status, eta_hrs, tracking_state, started_at, ended_at, public_link, created_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, nullStr(t.IntutrackTripID), nullStr(t.TruckNumber), nullStr(t.Invoice),
		nullStr(t.SrcLat), nullStr(t.SrcLng), nullStr(t.DestLat), nullStr(t.DestLng),
		nullStr(t.Tel), t.Status, t.EtaHrs, nullStr(t.TrackingState),
		t.StartedAt, t.EndedAt, nullStr(t.PublicLink), t.CreatedAt)
	return err
}

// TripUpdate is the partial field set for Update. Nil members leave the
// column untouched.
type TripUpdate struct {
	Status        *string
	TrackingState *string
	StartedAt     *time.Time
	EndedAt       *time.Time
	PublicLink    *string
}

// Update applies partial changes to a trip row.
func (r *TripRepo) Update(ctx context.Context, id string, upd TripUpdate) (*model.Trip, error) {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE trips SET
		   status = COALESCE(?, status),
		   tracking_state = COALESCE(?, tracking_state),
		   started_at = COALESCE(?, started_at),
		   ended_at = COALESCE(?, ended_at),
		   public_link = COALESCE(?, public_link)
		 WHERE id = ?`,
		upd.Status, upd.TrackingState, upd.StartedAt, upd.EndedAt, upd.PublicLink, id)
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// GetByID fetches a trip by its uuid.
func (r *TripRepo) GetByID(ctx context.Context, id string) (*model.Trip, error) {
	return r.getWhere(ctx, "id = ?", id)
}

// GetByIntutrackID fetches a trip by the provider-assigned trip id.
func (r *TripRepo) GetByIntutrackID(ctx context.Context, intutrackID string) (*model.Trip, error) {
	return r.getWhere(ctx, "intutrack_trip_id = ?", intutrackID)
}

// List returns all trips, most recently started first.
func (r *TripRepo) List(ctx context.Context) ([]model.Trip, error) {
	rows, err := r.DB.QueryContext(ctx,
		tripSelect+" ORDER BY started_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trips []model.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}

const tripSelect = `SELECT id, intutrack_trip_id, truck_number, invoice, src_lat, src_lng,
	dest_lat, dest_lng, tel, status, eta_hrs, tracking_state, started_at, ended_at,
	public_link, created_at FROM trips`

func (r *TripRepo) getWhere(ctx context.Context, where string, arg any) (*model.Trip, error) {
	row := r.DB.QueryRowContext(ctx, tripSelect+" WHERE "+where+" LIMIT 1", arg)
	t, err := scanTrip(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanTrip(row rowScanner) (*model.Trip, error) {
	var (
		t          model.Trip
		intuID     sql.NullString
		truck      sql.NullString
		invoice    sql.NullString
		srcLat     sql.NullString
		srcLng     sql.NullString
		destLat    sql.NullString
		destLng    sql.NullString
		tel        sql.NullString
		etaHrs     sql.NullInt64
		trackState sql.NullString
		startedAt  sql.NullTime
		endedAt    sql.NullTime
		publicLink sql.NullString
	)
	err := row.Scan(&t.ID, &intuID, &truck, &invoice, &srcLat, &srcLng, &destLat, &destLng,
		&tel, &t.Status, &etaHrs, &trackState, &startedAt, &endedAt, &publicLink, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.IntutrackTripID = intuID.String
	t.TruckNumber = truck.String
	t.Invoice = invoice.String
	t.SrcLat = srcLat.String
	t.SrcLng = srcLng.String
	t.DestLat = destLat.String
	t.DestLng = destLng.String
	t.Tel = tel.String
	if etaHrs.Valid {
		v := int(etaHrs.Int64)
		t.EtaHrs = &v
	}
	t.TrackingState = trackState.String
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		t.EndedAt = &endedAt.Time
	}
	t.PublicLink = publicLink.String
	return &t, nil
}
