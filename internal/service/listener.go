package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signalhub/internal/metrics"
	"signalhub/internal/models"
	"signalhub/pkg/gateway"
	"signalhub/pkg/gateway/types"

	"github.com/sirupsen/logrus"
)

// ConnectionState tracks where the listener is in its connect loop.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// StreamListener maintains a persistent event stream to the gateway and
// feeds every received envelope into the message service. A failed
// connection is retried with exponential backoff; the backoff resets once
// a connection has stayed up past the stability window.
type StreamListener struct {
	client         gateway.Client
	messageService MessageService
	config         models.GatewayConfig
	logger         *logrus.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	running        bool
	state          ConnectionState
	mu             sync.RWMutex
}

// NewStreamListener creates a listener over the given gateway client.
func NewStreamListener(client gateway.Client, messageService MessageService, config models.GatewayConfig, logger *logrus.Logger) *StreamListener {
	return &StreamListener{
		client:         client,
		messageService: messageService,
		config:         config,
		logger:         logger,
		state:          StateDisconnected,
	}
}

// Start begins the background receive loop.
func (l *StreamListener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return fmt.Errorf("stream listener is already running")
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.running = true

	l.wg.Add(1)
	go l.receiveLoop()

	l.logger.WithFields(logrus.Fields{
		"reconnect_initial_ms": l.config.ReconnectInitialMs,
		"reconnect_max_ms":     l.config.ReconnectMaxMs,
	}).Info("Stream listener started")

	return nil
}

// Stop tears down the stream and waits for the receive loop to exit.
func (l *StreamListener) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	l.mu.Unlock()

	l.logger.Info("Stopping stream listener...")
	cancel()
	l.wg.Wait()

	l.mu.Lock()
	l.running = false
	l.state = StateDisconnected
	l.mu.Unlock()
	l.logger.Info("Stream listener stopped")
}

// IsRunning returns whether the listener is currently active.
func (l *StreamListener) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// State returns the current connection state.
func (l *StreamListener) State() ConnectionState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *StreamListener) setState(state ConnectionState) {
	l.mu.Lock()
	l.state = state
	l.mu.Unlock()
}

func (l *StreamListener) receiveLoop() {
	defer l.wg.Done()

	backoff := time.Duration(l.config.ReconnectInitialMs) * time.Millisecond
	maxBackoff := time.Duration(l.config.ReconnectMaxMs) * time.Millisecond
	stableWindow := time.Duration(l.config.StableAfterSec) * time.Second

	for {
		if l.ctx.Err() != nil {
			return
		}

		l.setState(StateConnecting)
		stream, err := l.client.ConnectStream(l.ctx)
		if err != nil {
			l.setState(StateDisconnected)
			metrics.IncrementCounter(metrics.MetricStreamReconnects, nil, "Gateway stream reconnects")
			l.logger.WithError(err).WithField("backoff", backoff.String()).Warn("Failed to connect to gateway stream, retrying")

			select {
			case <-l.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		l.setState(StateConnected)
		connectedAt := time.Now()
		l.logger.Info("Connected to gateway stream")

		l.consume(stream)
		_ = stream.Close()
		l.setState(StateDisconnected)

		if l.ctx.Err() != nil {
			return
		}

		// A connection that survived the stability window earns a fresh
		// backoff schedule for the next outage.
		if time.Since(connectedAt) >= stableWindow {
			backoff = time.Duration(l.config.ReconnectInitialMs) * time.Millisecond
		}

		metrics.IncrementCounter(metrics.MetricStreamReconnects, nil, "Gateway stream reconnects")
		l.logger.WithField("backoff", backoff.String()).Warn("Gateway stream closed, reconnecting")

		select {
		case <-l.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// consume reads the stream until it errors or the listener is cancelled.
func (l *StreamListener) consume(stream gateway.EventStream) {
	for {
		raw, err := stream.Read(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil {
				l.logger.WithError(err).Warn("Gateway stream read failed")
			}
			return
		}
		l.handleFrame(raw)
	}
}

// handleFrame parses one stream frame. A frame that does not parse is
// logged and skipped; it never takes down the stream.
func (l *StreamListener) handleFrame(raw []byte) {
	record, err := types.ParseEventRecord(raw)
	if err != nil {
		metrics.IncrementCounter(metrics.MetricStreamParseErrors, nil, "Unparseable stream frames")
		l.logger.WithError(err).Warn("Skipping unparseable stream frame")
		return
	}

	// Receipts, typing indicators, and sync frames carry no data message.
	if record.Envelope == nil || record.Envelope.DataMessage == nil {
		return
	}

	if _, _, err := l.messageService.IngestEnvelope(l.ctx, record, raw); err != nil {
		l.logger.WithError(err).Error("Failed to ingest envelope from stream")
	}
}
