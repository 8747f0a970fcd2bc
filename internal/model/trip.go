package model

import "time"

// Trip statuses as reported to callers. SUBMITTED trips are registered with
// the tracking provider but not yet live; STARTED trips stream positions.
const (
	TripStatusSubmitted = "SUBMITTED"
	TripStatusStarted   = "STARTED"
	TripStatusEnded     = "ENDED"
)

// Trip mirrors the `trips` table. Coordinates are stored as decimal strings
// to keep the provider's precision intact.
type Trip struct {
	ID              string     // trips.id
	IntutrackTripID string     // trips.intutrack_trip_id
	TruckNumber     string     // trips.truck_number
	Invoice         string     // trips.invoice
	SrcLat          string     // trips.src_lat
	SrcLng          string     // trips.src_lng
	DestLat         string     // trips.dest_lat
	DestLng         string     // trips.dest_lng
	Tel             string     // trips.tel
	Status          string     // trips.status
	EtaHrs          *int       // trips.eta_hrs (nullable)
	TrackingState   string     // trips.tracking_state
	StartedAt       *time.Time // trips.started_at (nullable)
	EndedAt         *time.Time // trips.ended_at (nullable)
	PublicLink      string     // trips.public_link
	CreatedAt       time.Time  // trips.created_at
}
