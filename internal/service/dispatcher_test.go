package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"signalhub/internal/models"
	"signalhub/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff() retry.BackoffConfig {
	return retry.BackoffConfig{
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   4.0,
		MaxAttempts:  3,
	}
}

func testDeliveryEvent() *models.MessageEvent {
	return &models.MessageEvent{
		ID:           42,
		SenderNumber: "+12025550100",
		SenderName:   "Tester",
		Body:         "hello",
		Timestamp:    1700000000000,
		ReceivedAt:   time.Now().UTC(),
	}
}

func waitForOutcomes(t *testing.T, reg *stubRegistry, want int) []outcome {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		outcomes := reg.Outcomes()
		if len(outcomes) >= want {
			return outcomes
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d outcomes, got %d", want, len(reg.Outcomes()))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDispatchEvent_SignedDelivery(t *testing.T) {
	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		gotBody = body
		gotSignature = r.Header.Get(models.SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := &stubRegistry{subscribers: []models.Subscriber{
		{ID: 1, CallbackURL: server.URL, Secret: "sub-secret", Active: true},
	}}
	d := NewDispatcher(context.Background(), reg, testWebhookConfig(), fastBackoff(), testLogger())
	defer d.Stop()

	d.DispatchEvent(testDeliveryEvent())

	outcomes := waitForOutcomes(t, reg, 1)
	require.Len(t, outcomes, 1)
	assert.Equal(t, int64(1), outcomes[0].SubscriberID)
	assert.True(t, outcomes[0].Success)

	var payload models.NotificationPayload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, models.EventNewMessage, payload.Event)
	assert.Equal(t, int64(42), payload.MessageID)
	assert.Equal(t, "+12025550100", payload.SenderNumber)
	assert.Equal(t, "hello", payload.Body)
	assert.NotEmpty(t, payload.Nonce)
	assert.NotEmpty(t, payload.DeliveredAt)
	assert.Equal(t, SignPayload("sub-secret", gotBody), gotSignature)
}

func TestDispatchEvent_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	fastDone := make(chan struct{})
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(fastDone)
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer slow.Close()
	defer close(release)

	reg := &stubRegistry{subscribers: []models.Subscriber{
		{ID: 1, CallbackURL: slow.URL, Secret: "s1", Active: true},
		{ID: 2, CallbackURL: fast.URL, Secret: "s2", Active: true},
	}}
	d := NewDispatcher(context.Background(), reg, testWebhookConfig(), fastBackoff(), testLogger())
	defer d.Stop()

	d.DispatchEvent(testDeliveryEvent())

	// The fast subscriber must complete while the slow one is still hung.
	select {
	case <-fastDone:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber was blocked by the slow one")
	}
}

func TestDispatchEvent_RetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := &stubRegistry{subscribers: []models.Subscriber{
		{ID: 1, CallbackURL: server.URL, Secret: "s", Active: true},
	}}
	d := NewDispatcher(context.Background(), reg, testWebhookConfig(), fastBackoff(), testLogger())
	defer d.Stop()

	d.DispatchEvent(testDeliveryEvent())

	outcomes := waitForOutcomes(t, reg, 1)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDispatchEvent_FailureRecordedOnceAfterAllAttempts(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	reg := &stubRegistry{subscribers: []models.Subscriber{
		{ID: 7, CallbackURL: server.URL, Secret: "s", Active: true},
	}}
	d := NewDispatcher(context.Background(), reg, testWebhookConfig(), fastBackoff(), testLogger())
	defer d.Stop()

	d.DispatchEvent(testDeliveryEvent())

	outcomes := waitForOutcomes(t, reg, 1)
	// Exactly one outcome per subscriber per event, no matter how many
	// attempts were made.
	require.Len(t, outcomes, 1)
	assert.Equal(t, int64(7), outcomes[0].SubscriberID)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDispatchEvent_PermanentRejectionUsesFullSchedule(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	reg := &stubRegistry{subscribers: []models.Subscriber{
		{ID: 1, CallbackURL: server.URL, Secret: "s", Active: true},
	}}
	d := NewDispatcher(context.Background(), reg, testWebhookConfig(), fastBackoff(), testLogger())
	defer d.Stop()

	d.DispatchEvent(testDeliveryEvent())

	outcomes := waitForOutcomes(t, reg, 1)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "a 404 consumes retry slots like any other failure")
}

func TestDispatchEvent_MixedOutcomes(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ok.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	reg := &stubRegistry{subscribers: []models.Subscriber{
		{ID: 1, CallbackURL: ok.URL, Secret: "a", Active: true},
		{ID: 2, CallbackURL: failing.URL, Secret: "b", Active: true},
	}}
	d := NewDispatcher(context.Background(), reg, testWebhookConfig(), fastBackoff(), testLogger())
	defer d.Stop()

	d.DispatchEvent(testDeliveryEvent())

	outcomes := waitForOutcomes(t, reg, 2)
	require.Len(t, outcomes, 2)

	byID := map[int64]bool{}
	for _, o := range outcomes {
		byID[o.SubscriberID] = o.Success
	}
	assert.True(t, byID[1], "healthy subscriber records a success")
	assert.False(t, byID[2], "failing subscriber records a failure")
}

func TestDispatchEvent_NoSubscribers(t *testing.T) {
	reg := &stubRegistry{}
	d := NewDispatcher(context.Background(), reg, testWebhookConfig(), fastBackoff(), testLogger())
	defer d.Stop()

	d.DispatchEvent(testDeliveryEvent())
	d.Stop()

	assert.Empty(t, reg.Outcomes())
}

func TestDispatchEvent_FreshNoncePerAttempt(t *testing.T) {
	var nonces []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload models.NotificationPayload
		_ = json.Unmarshal(body, &payload)
		nonces = append(nonces, payload.Nonce)
		if len(nonces) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := &stubRegistry{subscribers: []models.Subscriber{
		{ID: 1, CallbackURL: server.URL, Secret: "s", Active: true},
	}}
	d := NewDispatcher(context.Background(), reg, testWebhookConfig(), fastBackoff(), testLogger())
	defer d.Stop()

	d.DispatchEvent(testDeliveryEvent())

	waitForOutcomes(t, reg, 1)
	require.Len(t, nonces, 2)
	assert.NotEqual(t, nonces[0], nonces[1])
}

func TestDispatcher_ShutdownRecordsNoOutcome(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	}))
	defer server.Close()
	defer close(release)

	reg := &stubRegistry{subscribers: []models.Subscriber{
		{ID: 1, CallbackURL: server.URL, Secret: "s", Active: true},
	}}
	d := NewDispatcher(context.Background(), reg, testWebhookConfig(), fastBackoff(), testLogger())

	d.DispatchEvent(testDeliveryEvent())
	<-started
	d.Stop()

	// A delivery abandoned by shutdown does not count against the
	// subscriber.
	assert.Empty(t, reg.Outcomes())
}
