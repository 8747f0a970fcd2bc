package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/truckmitra/freight-broker/internal/model"
	"github.com/truckmitra/freight-broker/internal/queue"
	"github.com/truckmitra/freight-broker/internal/repository"
)

// TripStore is the persistence contract for trips. Implemented by
// repository.TripRepo.
type TripStore interface {
	Create(ctx context.Context, t *model.Trip) error
	Update(ctx context.Context, id string, upd repository.TripUpdate) (*model.Trip, error)
	GetByID(ctx context.Context, id string) (*model.Trip, error)
	GetByIntutrackID(ctx context.Context, intutrackID string) (*model.Trip, error)
	List(ctx context.Context) ([]model.Trip, error)
}

// Tracker is the tracking-provider surface used by the trip service.
// Implemented by intutrack.Client.
type Tracker interface {
	StartTrip(ctx context.Context, payload map[string]any) (any, error)
	SubmitTrip(ctx context.Context, payload map[string]any) (any, error)
	UpdateTrip(ctx context.Context, payload map[string]any) (any, error)
	EndTrip(ctx context.Context, tripID string) (any, error)
	GeneratePublicLink(ctx context.Context, tripID string) (any, error)
	Consents(ctx context.Context, tel string) (any, error)
	Locations(ctx context.Context, tripID string, limit int) (any, error)
}

// TripEventPublisher receives trip status transitions, best-effort.
type TripEventPublisher interface {
	PublishTripStatus(ctx context.Context, ev queue.TripStatusEvent) error
}

// TripService pairs the tracking provider with local trip rows: every
// provider call that changes a trip's state is mirrored into the trips
// table.
type TripService struct {
	Trips   TripStore
	Tracker Tracker
	Events  TripEventPublisher
}

func NewTripService(trips TripStore, tracker Tracker, events TripEventPublisher) *TripService {
	return &TripService{Trips: trips, Tracker: tracker, Events: events}
}

// TripStartResult is returned by Start and Submit.
type TripStartResult struct {
	Trip     *model.Trip
	TripID   string // provider trip id
	Response any    // raw provider response for the caller
}

// Start registers a trip with live tracking enabled and records it locally
// with status STARTED.
func (s *TripService) Start(ctx context.Context, payload map[string]any) (*TripStartResult, error) {
	return s.begin(ctx, payload, model.TripStatusStarted)
}

// Submit registers a trip without starting tracking; the local row is
// created with status SUBMITTED.
func (s *TripService) Submit(ctx context.Context, payload map[string]any) (*TripStartResult, error) {
	return s.begin(ctx, payload, model.TripStatusSubmitted)
}

func (s *TripService) begin(ctx context.Context, payload map[string]any, status string) (*TripStartResult, error) {
	tel, _ := payload["tel"].(string)
	truck, _ := payload["truck_number"].(string)
	if tel == "" || truck == "" {
		return nil, errors.New("trip: tel and truck_number are required")
	}

	remote := buildTrackerPayload(payload)
	var (
		response any
		err      error
	)
	if status == model.TripStatusStarted {
		response, err = s.Tracker.StartTrip(ctx, remote)
	} else {
		response, err = s.Tracker.SubmitTrip(ctx, remote)
	}
	if err != nil {
		return nil, err
	}

	tripID := extractTripID(response)
	coords := extractCoordinates(payload)
	trip := &model.Trip{
		IntutrackTripID: tripID,
		TruckNumber:     truck,
		Invoice:         str(payload["invoice"]),
		Tel:             tel,
		SrcLat:          coords.srcLat,
		SrcLng:          coords.srcLng,
		DestLat:         coords.destLat,
		DestLng:         coords.destLng,
		Status:          status,
	}
	if eta := toNumber(payload["eta_hrs"]); eta != nil {
		v := int(*eta)
		trip.EtaHrs = &v
	}
	if status == model.TripStatusStarted {
		now := time.Now().UTC()
		trip.StartedAt = &now
	}
	if err := s.Trips.Create(ctx, trip); err != nil {
		return nil, fmt.Errorf("trip: create record: %w", err)
	}
	s.publish(ctx, trip)
	return &TripStartResult{Trip: trip, TripID: tripID, Response: response}, nil
}

// UpdateTracking forwards a tracking_state change (START/STOP) to the
// provider and mirrors it onto the local row when the provider trip id is
// known.
func (s *TripService) UpdateTracking(ctx context.Context, payload map[string]any) (any, error) {
	response, err := s.Tracker.UpdateTrip(ctx, payload)
	if err != nil {
		return nil, err
	}
	state := str(payload["tracking_state"])
	remoteID := str(payload["_id"])
	if state != "" && remoteID != "" {
		if trip, err := s.Trips.GetByIntutrackID(ctx, remoteID); err == nil {
			if _, err := s.Trips.Update(ctx, trip.ID, repository.TripUpdate{TrackingState: &state}); err != nil {
				log.Printf("trip: mirror tracking state failed: %v", err)
			}
		}
	}
	return response, nil
}

// End stops tracking and marks the local row ENDED. Ending an already
// ended trip is a conflict.
func (s *TripService) End(ctx context.Context, id string) (*model.Trip, error) {
	trip, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if trip.Status == model.TripStatusEnded {
		return nil, repository.ErrConflict
	}
	if trip.IntutrackTripID == "" {
		return nil, errors.New("trip: no provider trip id recorded")
	}
	if _, err := s.Tracker.EndTrip(ctx, trip.IntutrackTripID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	status := model.TripStatusEnded
	updated, err := s.Trips.Update(ctx, trip.ID, repository.TripUpdate{Status: &status, EndedAt: &now})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, updated)
	return updated, nil
}

// PublicLink asks the provider for a shareable tracking URL and stores it
// on the trip.
func (s *TripService) PublicLink(ctx context.Context, id string) (string, error) {
	trip, err := s.lookup(ctx, id)
	if err != nil {
		return "", err
	}
	if trip.IntutrackTripID == "" {
		return "", errors.New("trip: no provider trip id recorded")
	}
	response, err := s.Tracker.GeneratePublicLink(ctx, trip.IntutrackTripID)
	if err != nil {
		return "", err
	}
	link := extractPublicLink(response)
	if link != "" {
		if _, err := s.Trips.Update(ctx, trip.ID, repository.TripUpdate{PublicLink: &link}); err != nil {
			log.Printf("trip: store public link failed: %v", err)
		}
	}
	return link, nil
}

// Consents looks up driver consent state by phone number.
func (s *TripService) Consents(ctx context.Context, tel string) (any, error) {
	return s.Tracker.Consents(ctx, tel)
}

// Locations returns recent positions for a trip, always as a slice.
func (s *TripService) Locations(ctx context.Context, id string, limit int) ([]any, error) {
	trip, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	response, err := s.Tracker.Locations(ctx, trip.IntutrackTripID, limit)
	if err != nil {
		return nil, err
	}
	return normalizeLocations(response), nil
}

// List returns all trips, most recently started first.
func (s *TripService) List(ctx context.Context) ([]model.Trip, error) {
	return s.Trips.List(ctx)
}

// Get fetches one trip by local or provider id.
func (s *TripService) Get(ctx context.Context, id string) (*model.Trip, error) {
	return s.lookup(ctx, id)
}

func (s *TripService) lookup(ctx context.Context, id string) (*model.Trip, error) {
	trip, err := s.Trips.GetByID(ctx, id)
	if err == nil {
		return trip, nil
	}
	if !errors.Is(err, repository.ErrTripNotFound) {
		return nil, err
	}
	return s.Trips.GetByIntutrackID(ctx, id)
}

func (s *TripService) publish(ctx context.Context, trip *model.Trip) {
	if s.Events == nil {
		return
	}
	ev := queue.TripStatusEvent{
		TripID:          trip.ID,
		IntutrackTripID: trip.IntutrackTripID,
		TruckNumber:     trip.TruckNumber,
		Status:          trip.Status,
		TrackingState:   trip.TrackingState,
		OccurredAt:      time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.Events.PublishTripStatus(ctx, ev); err != nil {
		log.Printf("trip: publish status event failed: %v", err)
	}
}

// ----- payload shaping -----

// buildTrackerPayload converts the API request into the provider's shape:
// src becomes a "lat,lng" string, dest a [lat, lng] pair, and the invoice
// doubles as shipmentNumber when none was given.
func buildTrackerPayload(payload map[string]any) map[string]any {
	remote := make(map[string]any, len(payload))
	for k, v := range payload {
		switch k {
		case "src_lat", "src_lng", "dest_lat", "dest_lng", "invoice", "eta_hrs", "src", "dest":
			// handled below
		default:
			remote[k] = v
		}
	}

	src := str(payload["src"])
	if src == "" {
		if lat, lng := payload["src_lat"], payload["src_lng"]; lat != nil && lng != nil {
			src = fmt.Sprintf("%v,%v", lat, lng)
		}
	}
	if src != "" {
		remote["src"] = src
	}

	dest := payload["dest"]
	if dest == nil {
		if lat, lng := payload["dest_lat"], payload["dest_lng"]; lat != nil && lng != nil {
			dest = []string{fmt.Sprintf("%v", lat), fmt.Sprintf("%v", lng)}
		}
	}
	if dest != nil {
		remote["dest"] = dest
	}

	if eta := toNumber(payload["eta_hrs"]); eta != nil {
		remote["eta_hrs"] = *eta
	}
	if invoice := str(payload["invoice"]); invoice != "" {
		if _, ok := remote["shipmentNumber"]; !ok {
			remote["shipmentNumber"] = invoice
		}
	}
	return remote
}

type coordinates struct {
	srcLat, srcLng, destLat, destLng string
}

// extractCoordinates resolves lat/lng pairs from explicit fields, a
// "lat,lng" src string, or a dest array, in that order of preference.
func extractCoordinates(payload map[string]any) coordinates {
	srcLat := toNumber(payload["src_lat"])
	srcLng := toNumber(payload["src_lng"])
	destLat := toNumber(payload["dest_lat"])
	destLng := toNumber(payload["dest_lng"])

	if (srcLat == nil || srcLng == nil) && str(payload["src"]) != "" {
		lat, lng := parseLatLng(str(payload["src"]))
		if srcLat == nil {
			srcLat = lat
		}
		if srcLng == nil {
			srcLng = lng
		}
	}
	if destLat == nil || destLng == nil {
		switch d := payload["dest"].(type) {
		case string:
			lat, lng := parseLatLng(d)
			if destLat == nil {
				destLat = lat
			}
			if destLng == nil {
				destLng = lng
			}
		case []any:
			if len(d) >= 2 {
				if destLat == nil {
					destLat = toNumber(d[0])
				}
				if destLng == nil {
					destLng = toNumber(d[1])
				}
			}
		}
	}
	return coordinates{
		srcLat:  decimalString(srcLat),
		srcLng:  decimalString(srcLng),
		destLat: decimalString(destLat),
		destLng: decimalString(destLng),
	}
}

func parseLatLng(value string) (*float64, *float64) {
	parts := strings.Split(value, ",")
	if len(parts) != 2 {
		return nil, nil
	}
	return toNumber(strings.TrimSpace(parts[0])), toNumber(strings.TrimSpace(parts[1]))
}

func toNumber(value any) *float64 {
	switch v := value.(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

func decimalString(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func str(value any) string {
	s, _ := value.(string)
	return s
}

// extractTripID pulls the provider trip id from a response that may use
// tripId, _id or id.
func extractTripID(response any) string {
	m, ok := response.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"tripId", "_id", "id"} {
		if v := str(m[key]); v != "" {
			return v
		}
	}
	return ""
}

func extractPublicLink(response any) string {
	m, ok := response.(map[string]any)
	if !ok {
		return ""
	}
	for _, key := range []string{"publicLink", "public_link", "link", "url"} {
		if v := str(m[key]); v != "" {
			return v
		}
	}
	return ""
}

func normalizeLocations(response any) []any {
	if response == nil {
		return []any{}
	}
	if arr, ok := response.([]any); ok {
		return arr
	}
	return []any{response}
}
