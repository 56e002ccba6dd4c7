package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"signalhub/internal/database"
	"signalhub/internal/models"
	"signalhub/pkg/gateway"
	"signalhub/pkg/gateway/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type mockGatewayClient struct {
	mock.Mock
}

func (m *mockGatewayClient) SendMessage(ctx context.Context, recipient, message string, attachments []string) (*types.SendResult, error) {
	args := m.Called(ctx, recipient, message, attachments)
	if result := args.Get(0); result != nil {
		return result.(*types.SendResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGatewayClient) ConnectStream(ctx context.Context) (gateway.EventStream, error) {
	args := m.Called(ctx)
	if stream := args.Get(0); stream != nil {
		return stream.(gateway.EventStream), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGatewayClient) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// fakeEventStream replays scripted frames, then blocks until closed.
type fakeEventStream struct {
	frames chan []byte
	done   chan struct{}
	once   sync.Once
}

func newFakeEventStream(frames ...[]byte) *fakeEventStream {
	s := &fakeEventStream{
		frames: make(chan []byte, len(frames)),
		done:   make(chan struct{}),
	}
	for _, frame := range frames {
		s.frames <- frame
	}
	return s
}

func (s *fakeEventStream) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeEventStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// recordingDispatcher captures dispatched events for assertions.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*models.MessageEvent
}

func (d *recordingDispatcher) DispatchEvent(event *models.MessageEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func (d *recordingDispatcher) Events() []*models.MessageEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*models.MessageEvent, len(d.events))
	copy(out, d.events)
	return out
}

type outcome struct {
	SubscriberID int64
	Success      bool
}

// stubRegistry serves a fixed subscriber set and records outcomes.
type stubRegistry struct {
	mu          sync.Mutex
	subscribers []models.Subscriber
	outcomes    []outcome
}

func (r *stubRegistry) Subscribe(ctx context.Context, req models.SubscribeRequest) (*models.SubscribeResponse, error) {
	return nil, nil
}

func (r *stubRegistry) Unsubscribe(ctx context.Context, req models.UnsubscribeRequest) error {
	return nil
}

func (r *stubRegistry) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Subscriber(nil), r.subscribers...), nil
}

func (r *stubRegistry) ListAll(ctx context.Context) ([]models.Subscriber, error) {
	return r.ListActive(ctx)
}

func (r *stubRegistry) RecordOutcome(ctx context.Context, subscriberID int64, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome{SubscriberID: subscriberID, Success: success})
	return nil
}

func (r *stubRegistry) TestDelivery(ctx context.Context, subscriberID int64) (*models.TestResponse, error) {
	return nil, nil
}

func (r *stubRegistry) Outcomes() []outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outcome(nil), r.outcomes...)
}
