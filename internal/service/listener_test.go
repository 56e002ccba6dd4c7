package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"signalhub/internal/models"
	"signalhub/pkg/gateway/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// capturingMessageService records raw frames handed to ingestion.
type capturingMessageService struct {
	mu      sync.Mutex
	records []*types.EventRecord
	ingests chan struct{}
}

func newCapturingMessageService() *capturingMessageService {
	return &capturingMessageService{ingests: make(chan struct{}, 16)}
}

func (s *capturingMessageService) IngestEnvelope(ctx context.Context, record *types.EventRecord, raw []byte) (models.IngestResult, *models.MessageEvent, error) {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
	s.ingests <- struct{}{}
	return models.IngestCreated, &models.MessageEvent{}, nil
}

func (s *capturingMessageService) SendMessage(ctx context.Context, recipient, message string, attachments []string) (*types.SendResult, error) {
	return nil, nil
}

func (s *capturingMessageService) GetMessage(ctx context.Context, id int64) (*models.MessageEvent, error) {
	return nil, nil
}

func (s *capturingMessageService) ListMessages(ctx context.Context, query models.MessageQuery) ([]models.MessageEvent, error) {
	return nil, nil
}

func (s *capturingMessageService) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	return nil, nil
}

func (s *capturingMessageService) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	return nil, nil
}

func (s *capturingMessageService) Records() []*types.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.EventRecord(nil), s.records...)
}

func listenerConfig() models.GatewayConfig {
	return models.GatewayConfig{
		ReconnectInitialMs: 5,
		ReconnectMaxMs:     50,
		StableAfterSec:     30,
	}
}

func TestStreamListener_IngestsFrames(t *testing.T) {
	frame := []byte(`{"envelope":{"sourceNumber":"+12025550100","timestamp":1700000000000,"dataMessage":{"message":"hi"}},"account":"+19995550000"}`)

	stream := newFakeEventStream(frame)
	client := &mockGatewayClient{}
	client.On("ConnectStream", mock.Anything).Return(stream, nil)

	msgService := newCapturingMessageService()
	listener := NewStreamListener(client, msgService, listenerConfig(), testLogger())

	require.NoError(t, listener.Start(context.Background()))
	defer listener.Stop()

	select {
	case <-msgService.ingests:
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not ingested")
	}

	records := msgService.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "+12025550100", records[0].Envelope.Sender())
	assert.Equal(t, "hi", records[0].Envelope.DataMessage.Message)
}

func TestStreamListener_SkipsUnparseableAndNonDataFrames(t *testing.T) {
	frames := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"envelope":{"sourceNumber":"+12025550100","timestamp":1,"receiptMessage":{}},"account":"+19995550000"}`),
		[]byte(`{"envelope":{"sourceNumber":"+12025550100","timestamp":1700000000000,"dataMessage":{"message":"kept"}},"account":"+19995550000"}`),
	}

	stream := newFakeEventStream(frames...)
	client := &mockGatewayClient{}
	client.On("ConnectStream", mock.Anything).Return(stream, nil)

	msgService := newCapturingMessageService()
	listener := NewStreamListener(client, msgService, listenerConfig(), testLogger())

	require.NoError(t, listener.Start(context.Background()))
	defer listener.Stop()

	select {
	case <-msgService.ingests:
	case <-time.After(2 * time.Second):
		t.Fatal("valid frame was not ingested")
	}

	// Only the data message survives; bad frames are skipped, not fatal.
	records := msgService.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "kept", records[0].Envelope.DataMessage.Message)
}

func TestStreamListener_ReconnectsAfterStreamFailure(t *testing.T) {
	first := newFakeEventStream()
	first.Close()
	second := newFakeEventStream([]byte(`{"envelope":{"sourceNumber":"+12025550100","timestamp":1700000000000,"dataMessage":{"message":"after reconnect"}},"account":"+19995550000"}`))

	client := &mockGatewayClient{}
	client.On("ConnectStream", mock.Anything).Return(first, nil).Once()
	client.On("ConnectStream", mock.Anything).Return(second, nil)

	msgService := newCapturingMessageService()
	listener := NewStreamListener(client, msgService, listenerConfig(), testLogger())

	require.NoError(t, listener.Start(context.Background()))
	defer listener.Stop()

	select {
	case <-msgService.ingests:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not reconnect after stream failure")
	}

	client.AssertExpectations(t)
}

func TestStreamListener_RetriesFailedConnect(t *testing.T) {
	stream := newFakeEventStream([]byte(`{"envelope":{"sourceNumber":"+12025550100","timestamp":1700000000000,"dataMessage":{"message":"connected"}},"account":"+19995550000"}`))

	client := &mockGatewayClient{}
	client.On("ConnectStream", mock.Anything).Return(nil, errors.New("connection refused")).Twice()
	client.On("ConnectStream", mock.Anything).Return(stream, nil)

	msgService := newCapturingMessageService()
	listener := NewStreamListener(client, msgService, listenerConfig(), testLogger())

	require.NoError(t, listener.Start(context.Background()))
	defer listener.Stop()

	select {
	case <-msgService.ingests:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never connected")
	}

	client.AssertExpectations(t)
}

func TestStreamListener_StartStop(t *testing.T) {
	stream := newFakeEventStream()
	client := &mockGatewayClient{}
	client.On("ConnectStream", mock.Anything).Return(stream, nil)

	listener := NewStreamListener(client, newCapturingMessageService(), listenerConfig(), testLogger())

	require.NoError(t, listener.Start(context.Background()))
	assert.True(t, listener.IsRunning())

	// Double start is rejected.
	assert.Error(t, listener.Start(context.Background()))

	listener.Stop()
	assert.False(t, listener.IsRunning())
	assert.Equal(t, StateDisconnected, listener.State())

	// Stop is idempotent.
	listener.Stop()
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
}
