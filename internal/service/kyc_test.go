package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truckmitra/freight-broker/internal/model"
	"github.com/truckmitra/freight-broker/internal/queue"
	"github.com/truckmitra/freight-broker/internal/repository"
	"github.com/truckmitra/freight-broker/internal/surepass"
)

// opLog records the order of side effects across the fakes so tests can
// assert lifecycle ordering.
type opLog struct{ ops []string }

func (l *opLog) add(op string) { l.ops = append(l.ops, op) }

type fakeKYCStore struct {
	log     *opLog
	created []*model.KYCRequest
	updates []repository.KYCRequestUpdate
}

func (f *fakeKYCStore) Create(_ context.Context, req *model.KYCRequest) error {
	if req.ID == "" {
		req.ID = fmt.Sprintf("req-%d", len(f.created)+1)
	}
	copied := *req
	f.created = append(f.created, &copied)
	f.log.add("create")
	return nil
}

func (f *fakeKYCStore) Update(_ context.Context, id string, upd repository.KYCRequestUpdate) (*model.KYCRequest, error) {
	f.updates = append(f.updates, upd)
	f.log.add("update")
	return &model.KYCRequest{ID: id, Status: upd.Status}, nil
}

type fakeAuditLog struct {
	log     *opLog
	entries []*model.APILog
}

func (f *fakeAuditLog) Append(_ context.Context, entry *model.APILog) error {
	f.entries = append(f.entries, entry)
	f.log.add("audit")
	return nil
}

type fakeTransport struct {
	resp      surepass.Response
	err       error
	endpoints []string
	bodies    []any
}

func (f *fakeTransport) PostJSON(_ context.Context, endpoint string, body any) (surepass.Response, error) {
	f.endpoints = append(f.endpoints, endpoint)
	f.bodies = append(f.bodies, body)
	return f.resp, f.err
}

func (f *fakeTransport) Post(_ context.Context, endpoint string, body any) (surepass.Response, error) {
	return f.PostJSON(nil, endpoint, body)
}

type fakeEvents struct {
	log    *opLog
	events []queue.KYCCompletedEvent
}

func (f *fakeEvents) PublishKYCCompleted(_ context.Context, ev queue.KYCCompletedEvent) error {
	f.events = append(f.events, ev)
	f.log.add("publish")
	return nil
}

type kycFixture struct {
	svc       *KYCService
	store     *fakeKYCStore
	audit     *fakeAuditLog
	encrypted *fakeTransport
	plainKYC  *fakeTransport
	plain     *fakeTransport
	events    *fakeEvents
	log       *opLog
}

func newKYCFixture() *kycFixture {
	log := &opLog{}
	f := &kycFixture{
		store:     &fakeKYCStore{log: log},
		audit:     &fakeAuditLog{log: log},
		encrypted: &fakeTransport{},
		plainKYC:  &fakeTransport{},
		plain:     &fakeTransport{},
		events:    &fakeEvents{log: log},
		log:       log,
	}
	f.svc = NewKYCService(f.store, f.audit, f.encrypted, f.plainKYC, f.plain, f.events)
	return f
}

func successResponse(data string) surepass.Response {
	return surepass.Response{Success: true, StatusCode: 200, Data: json.RawMessage(data)}
}

func TestVerifyPANSuccessLifecycle(t *testing.T) {
	f := newKYCFixture()
	f.encrypted.resp = successResponse(`{"pan_number":"FNMPM6342D","full_name":"JOHN DOE","category":"person","status":"VALID"}`)

	resp, err := f.svc.VerifyPAN(context.Background(), "FNMPM6342D", VerifyInput{UserID: "7", RequestRef: "onboarding-42"})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	// Pending record created before the provider call.
	require.Len(t, f.store.created, 1)
	created := f.store.created[0]
	assert.Equal(t, model.KYCStatusPending, created.Status)
	assert.Equal(t, model.KYCTypePAN, created.RequestType)
	assert.Equal(t, "7", created.UserID)
	assert.Equal(t, "onboarding-42", created.RequestRef)

	// Terminal update, then audit, then event.
	assert.Equal(t, []string{"create", "update", "audit", "publish"}, f.log.ops)

	require.Len(t, f.store.updates, 1)
	upd := f.store.updates[0]
	assert.Equal(t, model.KYCStatusSuccess, upd.Status)
	require.NotNil(t, upd.ResponseStatusCode)
	assert.Equal(t, 200, *upd.ResponseStatusCode)

	// Stored response is sanitized: PAN masked, name intact.
	var stored map[string]string
	require.NoError(t, json.Unmarshal(upd.ResponseMasked, &stored))
	assert.Equal(t, "FN******2D", stored["pan_number"])
	assert.Equal(t, "JOHN DOE", stored["full_name"])

	require.Len(t, f.events.events, 1)
	assert.Equal(t, model.KYCStatusSuccess, f.events.events[0].Status)
	assert.Equal(t, created.ID, f.events.events[0].RequestID)
}

func TestVerifyPANRequestSummaryIsMasked(t *testing.T) {
	f := newKYCFixture()
	f.encrypted.resp = successResponse(`{}`)

	_, err := f.svc.VerifyPAN(context.Background(), "FNMPM6342D", VerifyInput{UserID: "7"})
	require.NoError(t, err)

	var summary map[string]string
	require.NoError(t, json.Unmarshal(f.store.created[0].RequestMasked, &summary))
	assert.Equal(t, "342D", summary["pan_last4"])
	assert.Equal(t, "FN******2D", summary["pan_masked"])
	assert.Len(t, summary["pan_hash"], 64)
	assert.NotContains(t, string(f.store.created[0].RequestMasked), "FNMPM6342D")
}

func TestVerifyPANProviderLogicalFailure(t *testing.T) {
	f := newKYCFixture()
	msg := "invalid pan"
	f.encrypted.resp = surepass.Response{Success: false, StatusCode: 422, Message: &msg, MessageCode: "invalid_pan"}

	resp, err := f.svc.VerifyPAN(context.Background(), "FNMPM6342D", VerifyInput{})
	require.NoError(t, err, "a logical failure is data, not an error")
	assert.False(t, resp.Success)

	require.Len(t, f.store.updates, 1)
	assert.Equal(t, model.KYCStatusFailed, f.store.updates[0].Status)
	require.NotNil(t, f.store.updates[0].ResponseMessageCode)
	assert.Equal(t, "invalid_pan", *f.store.updates[0].ResponseMessageCode)
}

func TestVerifyPANTransportError(t *testing.T) {
	f := newKYCFixture()
	f.encrypted.err = &surepass.Error{Message: "surepass: request failed", Status: 502}

	_, err := f.svc.VerifyPAN(context.Background(), "FNMPM6342D", VerifyInput{UserID: "7"})
	require.Error(t, err)

	// Failed terminal update first, audit row second, both still written.
	assert.Equal(t, []string{"create", "update", "audit", "publish"}, f.log.ops)

	require.Len(t, f.store.updates, 1)
	upd := f.store.updates[0]
	assert.Equal(t, model.KYCStatusFailed, upd.Status)
	require.NotNil(t, upd.ErrorMessage)
	assert.Equal(t, "surepass: request failed", *upd.ErrorMessage)

	require.Len(t, f.audit.entries, 1)
	entry := f.audit.entries[0]
	assert.Nil(t, entry.ResponseBody)
	require.NotNil(t, entry.StatusCode)
	assert.Equal(t, 502, *entry.StatusCode)
	assert.Equal(t, "surepass: request failed", entry.ErrorMessage)
}

func TestVerifyPANComprehensiveUsesKYCChannel(t *testing.T) {
	f := newKYCFixture()
	f.plainKYC.resp = successResponse(`{"pan_number":"FNMPM6342D","email":"john.doe@example.com","phone_number":"9876543210"}`)

	_, err := f.svc.VerifyPANComprehensive(context.Background(), "FNMPM6342D", VerifyInput{})
	require.NoError(t, err)

	require.Len(t, f.plainKYC.endpoints, 1)
	assert.Equal(t, "/api/v1/pan/pan-comprehensive", f.plainKYC.endpoints[0])
	assert.Equal(t, map[string]string{"id_number": "FNMPM6342D"}, f.plainKYC.bodies[0])
	assert.Empty(t, f.encrypted.endpoints)
	assert.Empty(t, f.plain.endpoints)

	var stored map[string]string
	require.NoError(t, json.Unmarshal(f.store.updates[0].ResponseMasked, &stored))
	assert.Equal(t, "FN******2D", stored["pan_number"])
	assert.Equal(t, "j******e@example.com", stored["email"])
	assert.Equal(t, "98******10", stored["phone_number"])
}

func TestVerifyGSTINAndEmailUseSandboxChannel(t *testing.T) {
	f := newKYCFixture()
	f.plain.resp = successResponse(`{}`)

	_, err := f.svc.VerifyGSTIN(context.Background(), "27AAPFU0939F1ZV", VerifyInput{})
	require.NoError(t, err)
	_, err = f.svc.VerifyEmail(context.Background(), "John.Doe@Example.com", VerifyInput{})
	require.NoError(t, err)

	require.Len(t, f.plain.endpoints, 2)
	assert.Equal(t, "/api/v1/corporate/gstin", f.plain.endpoints[0])
	assert.Equal(t, "/api/v1/employment/email-check", f.plain.endpoints[1])
	assert.Equal(t, map[string]string{"id_number": "27AAPFU0939F1ZV"}, f.plain.bodies[0])
	assert.Equal(t, map[string]string{"email": "John.Doe@Example.com"}, f.plain.bodies[1])
}

func TestVerifyEmailHashIsCaseNormalized(t *testing.T) {
	f := newKYCFixture()
	f.plain.resp = successResponse(`{}`)

	_, err := f.svc.VerifyEmail(context.Background(), "John.Doe@Example.com", VerifyInput{})
	require.NoError(t, err)
	_, err = f.svc.VerifyEmail(context.Background(), "john.doe@example.com", VerifyInput{})
	require.NoError(t, err)

	var first, second map[string]string
	require.NoError(t, json.Unmarshal(f.store.created[0].RequestMasked, &first))
	require.NoError(t, json.Unmarshal(f.store.created[1].RequestMasked, &second))
	assert.Equal(t, first["email_hash"], second["email_hash"])
}

func TestVerifyMalformedDataStoresNothing(t *testing.T) {
	f := newKYCFixture()
	f.encrypted.resp = successResponse(`"just a string"`)

	resp, err := f.svc.VerifyPAN(context.Background(), "FNMPM6342D", VerifyInput{})
	require.NoError(t, err)
	assert.True(t, resp.Success)

	// Outcome kept, but nothing unmasked lands in storage.
	require.Len(t, f.store.updates, 1)
	assert.Equal(t, model.KYCStatusSuccess, f.store.updates[0].Status)
	assert.Nil(t, f.store.updates[0].ResponseMasked)
}

func TestVerifyCreateFailureShortCircuits(t *testing.T) {
	f := newKYCFixture()
	failing := &failingStore{}
	f.svc.Requests = failing

	_, err := f.svc.VerifyPAN(context.Background(), "FNMPM6342D", VerifyInput{})
	require.Error(t, err)
	assert.Empty(t, f.encrypted.endpoints, "provider must not be called without a pending record")
	assert.Empty(t, f.audit.entries)
}

type failingStore struct{}

func (f *failingStore) Create(context.Context, *model.KYCRequest) error {
	return errors.New("db down")
}

func (f *failingStore) Update(context.Context, string, repository.KYCRequestUpdate) (*model.KYCRequest, error) {
	return nil, errors.New("db down")
}
