package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truckmitra/freight-broker/internal/model"
	"github.com/truckmitra/freight-broker/internal/queue"
	"github.com/truckmitra/freight-broker/internal/repository"
)

type fakeTripStore struct {
	trips   map[string]*model.Trip
	updates []repository.TripUpdate
}

func newFakeTripStore() *fakeTripStore {
	return &fakeTripStore{trips: map[string]*model.Trip{}}
}

func (f *fakeTripStore) Create(_ context.Context, t *model.Trip) error {
	if t.ID == "" {
		t.ID = fmt.Sprintf("local-%d", len(f.trips)+1)
	}
	copied := *t
	f.trips[t.ID] = &copied
	return nil
}

func (f *fakeTripStore) Update(_ context.Context, id string, upd repository.TripUpdate) (*model.Trip, error) {
	t, ok := f.trips[id]
	if !ok {
		return nil, repository.ErrTripNotFound
	}
	f.updates = append(f.updates, upd)
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.TrackingState != nil {
		t.TrackingState = *upd.TrackingState
	}
	if upd.StartedAt != nil {
		t.StartedAt = upd.StartedAt
	}
	if upd.EndedAt != nil {
		t.EndedAt = upd.EndedAt
	}
	if upd.PublicLink != nil {
		t.PublicLink = *upd.PublicLink
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTripStore) GetByID(_ context.Context, id string) (*model.Trip, error) {
	t, ok := f.trips[id]
	if !ok {
		return nil, repository.ErrTripNotFound
	}
	copied := *t
	return &copied, nil
}

func (f *fakeTripStore) GetByIntutrackID(_ context.Context, intutrackID string) (*model.Trip, error) {
	for _, t := range f.trips {
		if t.IntutrackTripID == intutrackID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repository.ErrTripNotFound
}

func (f *fakeTripStore) List(_ context.Context) ([]model.Trip, error) {
	var out []model.Trip
	for _, t := range f.trips {
		out = append(out, *t)
	}
	return out, nil
}

type fakeTracker struct {
	startPayloads  []map[string]any
	submitPayloads []map[string]any
	updatePayloads []map[string]any
	endedIDs       []string
	response       any
	err            error
}

func (f *fakeTracker) StartTrip(_ context.Context, payload map[string]any) (any, error) {
	f.startPayloads = append(f.startPayloads, payload)
	return f.response, f.err
}

func (f *fakeTracker) SubmitTrip(_ context.Context, payload map[string]any) (any, error) {
	f.submitPayloads = append(f.submitPayloads, payload)
	return f.response, f.err
}

func (f *fakeTracker) UpdateTrip(_ context.Context, payload map[string]any) (any, error) {
	f.updatePayloads = append(f.updatePayloads, payload)
	return f.response, f.err
}

func (f *fakeTracker) EndTrip(_ context.Context, tripID string) (any, error) {
	f.endedIDs = append(f.endedIDs, tripID)
	return f.response, f.err
}

func (f *fakeTracker) GeneratePublicLink(_ context.Context, tripID string) (any, error) {
	return f.response, f.err
}

func (f *fakeTracker) Consents(_ context.Context, tel string) (any, error) {
	return f.response, f.err
}

func (f *fakeTracker) Locations(_ context.Context, tripID string, limit int) (any, error) {
	return f.response, f.err
}

type fakeTripEvents struct{ events []queue.TripStatusEvent }

func (f *fakeTripEvents) PublishTripStatus(_ context.Context, ev queue.TripStatusEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func newTripFixture() (*TripService, *fakeTripStore, *fakeTracker, *fakeTripEvents) {
	store := newFakeTripStore()
	tracker := &fakeTracker{response: map[string]any{"tripId": "intu-1"}}
	events := &fakeTripEvents{}
	return NewTripService(store, tracker, events), store, tracker, events
}

func startPayload() map[string]any {
	return map[string]any{
		"tel":          "+919876543210",
		"truck_number": "MH12AB1234",
		"invoice":      "INV-88",
		"src_lat":      19.076,
		"src_lng":      72.8777,
		"dest_lat":     28.7041,
		"dest_lng":     77.1025,
		"eta_hrs":      "36",
	}
}

func TestStartCreatesStartedTrip(t *testing.T) {
	svc, store, tracker, events := newTripFixture()

	result, err := svc.Start(context.Background(), startPayload())
	require.NoError(t, err)

	assert.Equal(t, "intu-1", result.TripID)
	trip := result.Trip
	assert.Equal(t, model.TripStatusStarted, trip.Status)
	assert.Equal(t, "MH12AB1234", trip.TruckNumber)
	assert.Equal(t, "INV-88", trip.Invoice)
	assert.Equal(t, "19.076", trip.SrcLat)
	assert.Equal(t, "77.1025", trip.DestLng)
	require.NotNil(t, trip.EtaHrs)
	assert.Equal(t, 36, *trip.EtaHrs)
	assert.NotNil(t, trip.StartedAt)

	require.Len(t, store.trips, 1)
	require.Len(t, tracker.startPayloads, 1)
	require.Len(t, events.events, 1)
	assert.Equal(t, model.TripStatusStarted, events.events[0].Status)
}

func TestSubmitCreatesSubmittedTrip(t *testing.T) {
	svc, _, tracker, _ := newTripFixture()

	result, err := svc.Submit(context.Background(), startPayload())
	require.NoError(t, err)

	assert.Equal(t, model.TripStatusSubmitted, result.Trip.Status)
	assert.Nil(t, result.Trip.StartedAt)
	require.Len(t, tracker.submitPayloads, 1)
	assert.Empty(t, tracker.startPayloads)
}

func TestStartRequiresTelAndTruck(t *testing.T) {
	svc, store, tracker, _ := newTripFixture()

	_, err := svc.Start(context.Background(), map[string]any{"truck_number": "MH12AB1234"})
	require.Error(t, err)
	_, err = svc.Start(context.Background(), map[string]any{"tel": "+919876543210"})
	require.Error(t, err)

	assert.Empty(t, store.trips)
	assert.Empty(t, tracker.startPayloads)
}

func TestStartDoesNotPersistOnProviderFailure(t *testing.T) {
	svc, store, tracker, events := newTripFixture()
	tracker.err = errors.New("provider down")

	_, err := svc.Start(context.Background(), startPayload())
	require.Error(t, err)
	assert.Empty(t, store.trips)
	assert.Empty(t, events.events)
}

func TestBuildTrackerPayloadShaping(t *testing.T) {
	remote := buildTrackerPayload(startPayload())

	// src collapses to "lat,lng", dest to a [lat, lng] pair.
	assert.Equal(t, "19.076,72.8777", remote["src"])
	assert.Equal(t, []string{"28.7041", "77.1025"}, remote["dest"])
	// eta_hrs normalizes to a number and invoice doubles as shipmentNumber.
	assert.Equal(t, float64(36), remote["eta_hrs"])
	assert.Equal(t, "INV-88", remote["shipmentNumber"])
	// Raw coordinate fields do not travel to the provider.
	assert.NotContains(t, remote, "src_lat")
	assert.NotContains(t, remote, "dest_lng")
	assert.NotContains(t, remote, "invoice")
	// Unknown fields pass through untouched.
	withExtra := startPayload()
	withExtra["driver_name"] = "Ravi"
	assert.Equal(t, "Ravi", buildTrackerPayload(withExtra)["driver_name"])
}

func TestBuildTrackerPayloadKeepsExplicitShipmentNumber(t *testing.T) {
	payload := startPayload()
	payload["shipmentNumber"] = "SHIP-1"
	remote := buildTrackerPayload(payload)
	assert.Equal(t, "SHIP-1", remote["shipmentNumber"])
}

func TestExtractCoordinatesFallbacks(t *testing.T) {
	// From a "lat,lng" src string and a dest array.
	coords := extractCoordinates(map[string]any{
		"src":  "19.076, 72.8777",
		"dest": []any{"28.7041", 77.1025},
	})
	assert.Equal(t, "19.076", coords.srcLat)
	assert.Equal(t, "72.8777", coords.srcLng)
	assert.Equal(t, "28.7041", coords.destLat)
	assert.Equal(t, "77.1025", coords.destLng)

	// Explicit fields win over the combined forms.
	coords = extractCoordinates(map[string]any{
		"src_lat": 1.5,
		"src_lng": 2.5,
		"src":     "9,9",
	})
	assert.Equal(t, "1.5", coords.srcLat)
	assert.Equal(t, "2.5", coords.srcLng)

	// Unparseable input yields empty strings, not zeros.
	coords = extractCoordinates(map[string]any{"src": "somewhere"})
	assert.Empty(t, coords.srcLat)
	assert.Empty(t, coords.srcLng)
}

func TestExtractTripIDKeyOrder(t *testing.T) {
	assert.Equal(t, "a", extractTripID(map[string]any{"tripId": "a", "_id": "b", "id": "c"}))
	assert.Equal(t, "b", extractTripID(map[string]any{"_id": "b", "id": "c"}))
	assert.Equal(t, "c", extractTripID(map[string]any{"id": "c"}))
	assert.Empty(t, extractTripID(map[string]any{}))
	assert.Empty(t, extractTripID("not an object"))
}

func TestUpdateTrackingMirrorsState(t *testing.T) {
	svc, store, tracker, _ := newTripFixture()

	_, err := svc.Start(context.Background(), startPayload())
	require.NoError(t, err)

	_, err = svc.UpdateTracking(context.Background(), map[string]any{
		"_id":            "intu-1",
		"tracking_state": "STOP",
	})
	require.NoError(t, err)

	require.Len(t, tracker.updatePayloads, 1)
	trip, err := store.GetByIntutrackID(context.Background(), "intu-1")
	require.NoError(t, err)
	assert.Equal(t, "STOP", trip.TrackingState)
}

func TestEndTrip(t *testing.T) {
	svc, _, tracker, events := newTripFixture()

	result, err := svc.Start(context.Background(), startPayload())
	require.NoError(t, err)

	ended, err := svc.End(context.Background(), result.Trip.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TripStatusEnded, ended.Status)
	assert.NotNil(t, ended.EndedAt)
	assert.Equal(t, []string{"intu-1"}, tracker.endedIDs)

	// Second end is a conflict.
	_, err = svc.End(context.Background(), result.Trip.ID)
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.Len(t, events.events, 2)
	assert.Equal(t, model.TripStatusEnded, events.events[1].Status)
}

func TestEndByProviderID(t *testing.T) {
	svc, _, _, _ := newTripFixture()

	_, err := svc.Start(context.Background(), startPayload())
	require.NoError(t, err)

	ended, err := svc.End(context.Background(), "intu-1")
	require.NoError(t, err)
	assert.Equal(t, model.TripStatusEnded, ended.Status)
}

func TestPublicLinkStored(t *testing.T) {
	svc, store, tracker, _ := newTripFixture()

	result, err := svc.Start(context.Background(), startPayload())
	require.NoError(t, err)

	tracker.response = map[string]any{"publicLink": "https://track.example/t/abc"}
	link, err := svc.PublicLink(context.Background(), result.Trip.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://track.example/t/abc", link)

	trip, err := store.GetByID(context.Background(), result.Trip.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://track.example/t/abc", trip.PublicLink)
}

func TestLocationsAlwaysSlice(t *testing.T) {
	svc, _, tracker, _ := newTripFixture()

	result, err := svc.Start(context.Background(), startPayload())
	require.NoError(t, err)

	tracker.response = map[string]any{"lat": 19.0, "lng": 72.8}
	locations, err := svc.Locations(context.Background(), result.Trip.ID, 10)
	require.NoError(t, err)
	require.Len(t, locations, 1)

	tracker.response = []any{map[string]any{"lat": 1.0}, map[string]any{"lat": 2.0}}
	locations, err = svc.Locations(context.Background(), result.Trip.ID, 10)
	require.NoError(t, err)
	assert.Len(t, locations, 2)

	tracker.response = nil
	locations, err = svc.Locations(context.Background(), result.Trip.ID, 10)
	require.NoError(t, err)
	assert.NotNil(t, locations)
	assert.Empty(t, locations)
}
