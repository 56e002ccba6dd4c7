package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"signalhub/internal/constants"
	"signalhub/internal/errors"
	"signalhub/internal/metrics"
	"signalhub/internal/models"
	"signalhub/internal/privacy"
	"signalhub/internal/retry"

	"github.com/sirupsen/logrus"
)

// Dispatcher fans newly stored events out to every active subscriber. Each
// subscriber gets its own delivery goroutine so a slow endpoint never
// stalls the others, and ingestion never waits on delivery at all.
type Dispatcher struct {
	registry SubscriberRegistry
	config   models.WebhookConfig
	backoff  *retry.Backoff
	client   *http.Client
	logger   *logrus.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher bound to ctx. Deliveries in flight
// when ctx is cancelled are abandoned without recording an outcome.
func NewDispatcher(ctx context.Context, registry SubscriberRegistry, config models.WebhookConfig, backoffConfig retry.BackoffConfig, logger *logrus.Logger) *Dispatcher {
	dctx, cancel := context.WithCancel(ctx)
	return &Dispatcher{
		registry: registry,
		config:   config,
		backoff:  retry.NewBackoff(backoffConfig),
		client: &http.Client{
			Timeout: time.Duration(config.DeliveryTimeoutSec) * time.Second,
		},
		logger: logger,
		ctx:    dctx,
		cancel: cancel,
	}
}

// DispatchEvent snapshots the active subscriber set and starts one delivery
// per subscriber. It returns immediately.
func (d *Dispatcher) DispatchEvent(event *models.MessageEvent) {
	subscribers, err := d.registry.ListActive(d.ctx)
	if err != nil {
		d.logger.WithError(err).WithField(LogFieldEventID, event.ID).Error("Failed to list subscribers for dispatch")
		return
	}
	if len(subscribers) == 0 {
		return
	}

	for _, sub := range subscribers {
		d.wg.Add(1)
		go func(sub models.Subscriber) {
			defer d.wg.Done()
			d.deliver(sub, event)
		}(sub)
	}
}

// Stop cancels in-flight deliveries and waits for their goroutines.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// deliver runs the full retry schedule against one subscriber and records
// the outcome exactly once. Shutdown cancellation records nothing, so a
// restart never counts against the subscriber.
func (d *Dispatcher) deliver(sub models.Subscriber, event *models.MessageEvent) {
	start := time.Now()

	// Every failure consumes a retry slot, permanent rejections included.
	// The schedule is the same length for every subscriber.
	err := d.backoff.Retry(d.ctx, func(attempt int) error {
		return d.deliverOnce(sub, event, attempt)
	})

	duration := time.Since(start)
	if d.ctx.Err() != nil && err != nil {
		d.logger.WithFields(logrus.Fields{
			LogFieldSubscriberID: sub.ID,
			LogFieldEventID:      event.ID,
		}).Debug("Delivery abandoned during shutdown")
		return
	}

	success := err == nil
	metrics.IncrementCounter(metrics.MetricDeliveries, map[string]string{"result": deliveryResultTag(success)}, "Webhook delivery outcomes")
	metrics.RecordTimer(metrics.MetricDeliveryDuration, duration, nil, "Webhook delivery duration")

	if outcomeErr := d.registry.RecordOutcome(d.ctx, sub.ID, success); outcomeErr != nil {
		d.logger.WithError(outcomeErr).WithField(LogFieldSubscriberID, sub.ID).Error("Failed to record delivery outcome")
	}

	fields := logrus.Fields{
		LogFieldSubscriberID: sub.ID,
		LogFieldEventID:      event.ID,
		LogFieldCallbackURL:  privacy.MaskCallbackURL(sub.CallbackURL),
		LogFieldDuration:     duration.Milliseconds(),
	}
	if success {
		d.logger.WithFields(fields).Info("Event delivered")
	} else {
		d.logger.WithFields(fields).WithError(err).Warn("Event delivery failed after all attempts")
	}
}

// deliverOnce sends a single notification attempt. The payload is rebuilt
// per attempt so delivered_at and the nonce are fresh, and the signature
// covers the exact bytes on the wire.
func (d *Dispatcher) deliverOnce(sub models.Subscriber, event *models.MessageEvent, attempt int) error {
	nonce, err := generateToken(constants.DefaultNonceLength)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to generate delivery nonce")
	}

	payload := models.NotificationPayload{
		Event:        models.EventNewMessage,
		MessageID:    event.ID,
		SenderNumber: event.SenderNumber,
		SenderName:   event.SenderName,
		GroupID:      event.GroupID,
		GroupName:    event.GroupName,
		Body:         event.Body,
		Timestamp:    event.Timestamp,
		Attachments:  event.Attachments,
		DeliveredAt:  time.Now().UTC().Format(time.RFC3339),
		Nonce:        nonce,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to marshal notification")
	}

	req, err := http.NewRequestWithContext(d.ctx, http.MethodPost, sub.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return errors.NewDeliveryError(sub.CallbackURL, 0, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(models.SignatureHeader, SignPayload(sub.Secret, body))

	attemptStart := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return errors.NewDeliveryError(sub.CallbackURL, 0, err)
	}
	defer resp.Body.Close()

	result := models.DeliveryAttempt{
		SubscriberID: sub.ID,
		EventID:      event.ID,
		Attempt:      attempt,
		StatusCode:   resp.StatusCode,
		Duration:     time.Since(attemptStart),
	}
	if result.Success() {
		return nil
	}

	result.Err = errors.NewDeliveryError(sub.CallbackURL, resp.StatusCode, nil)
	if IsVerboseLogging(d.ctx) {
		d.logger.WithFields(logrus.Fields{
			LogFieldSubscriberID: result.SubscriberID,
			LogFieldAttempt:      result.Attempt,
			LogFieldStatusCode:   result.StatusCode,
			LogFieldDuration:     result.Duration.Milliseconds(),
		}).Debug("Delivery attempt rejected")
	}
	return result.Err
}

func deliveryResultTag(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
