package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"signalhub/internal/constants"
	"signalhub/internal/database"
	"signalhub/internal/errors"
	"signalhub/internal/metrics"
	"signalhub/internal/models"
	"signalhub/internal/privacy"
	"signalhub/internal/security"
	"signalhub/internal/validation"

	"github.com/sirupsen/logrus"
)

// SubscriberRegistry manages webhook subscriber lifecycle. Registration is
// gated by a challenge round-trip so only endpoints that can prove control
// of their URL ever receive notifications.
type SubscriberRegistry interface {
	Subscribe(ctx context.Context, req models.SubscribeRequest) (*models.SubscribeResponse, error)
	Unsubscribe(ctx context.Context, req models.UnsubscribeRequest) error
	ListActive(ctx context.Context) ([]models.Subscriber, error)
	ListAll(ctx context.Context) ([]models.Subscriber, error)
	RecordOutcome(ctx context.Context, subscriberID int64, success bool) error
	TestDelivery(ctx context.Context, subscriberID int64) (*models.TestResponse, error)
}

type subscriberRegistry struct {
	db        *database.Database
	config    models.WebhookConfig
	allowList *security.AllowList
	// Challenges and test deliveries run on separate clients so the short
	// challenge timeout never caps a test delivery.
	challengeClient *http.Client
	deliveryClient  *http.Client
	logger          *logrus.Logger
}

// NewSubscriberRegistry creates a registry with the given webhook policy.
func NewSubscriberRegistry(db *database.Database, config models.WebhookConfig, logger *logrus.Logger) SubscriberRegistry {
	if config.ChallengeTimeoutSec <= 0 {
		config.ChallengeTimeoutSec = constants.DefaultChallengeTimeoutSec
	}
	if config.DeliveryTimeoutSec <= 0 {
		config.DeliveryTimeoutSec = constants.DefaultDeliveryTimeoutSec
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = constants.DefaultFailureThreshold
	}
	return &subscriberRegistry{
		db:        db,
		config:    config,
		allowList: security.NewAllowList(config.AllowedHosts),
		challengeClient: &http.Client{
			Timeout: time.Duration(config.ChallengeTimeoutSec) * time.Second,
		},
		deliveryClient: &http.Client{
			Timeout: time.Duration(config.DeliveryTimeoutSec) * time.Second,
		},
		logger: logger,
	}
}

func (r *subscriberRegistry) Subscribe(ctx context.Context, req models.SubscribeRequest) (*models.SubscribeResponse, error) {
	if err := validation.ValidateCallbackURLLength(req.CallbackURL); err != nil {
		return nil, err
	}
	if err := r.allowList.ValidateCallbackURL(req.CallbackURL); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDisallowedURL, "callback URL not permitted")
	}

	secret := req.Secret
	callerProvided := secret != ""
	if !callerProvided {
		var err error
		secret, err = generateToken(constants.DefaultSecretLength)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to generate subscriber secret")
		}
	}

	// The challenge runs before anything is persisted. A failed challenge
	// leaves no trace of the attempted registration.
	if err := r.performChallenge(ctx, req.CallbackURL, secret, callerProvided); err != nil {
		return nil, err
	}

	id, err := r.db.SaveSubscriber(ctx, req.CallbackURL, secret)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		LogFieldSubscriberID: id,
		LogFieldCallbackURL:  privacy.MaskCallbackURL(req.CallbackURL),
	}).Info("Subscriber registered")

	resp := &models.SubscribeResponse{
		SubscriberID: id,
		CallbackURL:  req.CallbackURL,
	}
	// The generated secret is shown exactly once, at registration.
	if !callerProvided {
		resp.Secret = secret
	}
	return resp, nil
}

// performChallenge posts a nonce to the callback and verifies the echo. If
// the caller supplied their own secret they must also sign the nonce with
// it, proving both ends hold the same key.
func (r *subscriberRegistry) performChallenge(ctx context.Context, callbackURL, secret string, requireSignature bool) error {
	nonce, err := generateToken(constants.DefaultNonceLength)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to generate challenge nonce")
	}

	body, err := json.Marshal(models.ChallengeRequest{
		Event:     models.EventChallenge,
		Challenge: nonce,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal challenge: %w", err)
	}

	challengeCtx, cancel := context.WithTimeout(ctx, time.Duration(r.config.ChallengeTimeoutSec)*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(challengeCtx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return errors.NewChallengeError(callbackURL, "invalid callback URL")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.challengeClient.Do(httpReq)
	if err != nil {
		return errors.NewChallengeError(callbackURL, fmt.Sprintf("callback unreachable: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.NewChallengeError(callbackURL, fmt.Sprintf("callback returned status %d", resp.StatusCode))
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxChallengeResponseBytes))
	if err != nil {
		return errors.NewChallengeError(callbackURL, "failed to read challenge response")
	}

	var challengeResp models.ChallengeResponse
	if err := json.Unmarshal(respBody, &challengeResp); err != nil {
		return errors.NewChallengeError(callbackURL, "challenge response is not valid JSON")
	}
	if challengeResp.Challenge != nonce {
		return errors.NewChallengeError(callbackURL, "challenge nonce mismatch")
	}
	if requireSignature && !VerifySignature(secret, []byte(nonce), challengeResp.Signature) {
		return errors.NewChallengeError(callbackURL, "challenge signature mismatch")
	}

	return nil
}

func (r *subscriberRegistry) Unsubscribe(ctx context.Context, req models.UnsubscribeRequest) error {
	var sub *models.Subscriber
	var err error

	switch {
	case req.SubscriberID > 0:
		sub, err = r.db.GetSubscriberByID(ctx, req.SubscriberID)
	case req.CallbackURL != "":
		sub, err = r.db.GetSubscriberByURL(ctx, req.CallbackURL)
	default:
		return errors.NewValidationError("subscriber_id", "subscriber_id or callback_url required")
	}
	if err != nil {
		return err
	}
	if sub == nil || !sub.Active {
		return errors.NewNotFoundError("subscriber", fmt.Sprintf("%d", req.SubscriberID))
	}

	found, err := r.db.DeactivateSubscriber(ctx, sub.ID)
	if err != nil {
		return err
	}
	if !found {
		return errors.NewNotFoundError("subscriber", fmt.Sprintf("%d", sub.ID))
	}

	r.logger.WithFields(logrus.Fields{
		LogFieldSubscriberID: sub.ID,
		LogFieldCallbackURL:  privacy.MaskCallbackURL(sub.CallbackURL),
	}).Info("Subscriber unsubscribed")

	return nil
}

func (r *subscriberRegistry) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	return r.db.ListActiveSubscribers(ctx)
}

func (r *subscriberRegistry) ListAll(ctx context.Context) ([]models.Subscriber, error) {
	return r.db.ListSubscribers(ctx)
}

// RecordOutcome updates the subscriber's failure counter. A success resets
// it; crossing the failure threshold deactivates the subscriber.
func (r *subscriberRegistry) RecordOutcome(ctx context.Context, subscriberID int64, success bool) error {
	sub, err := r.db.RecordSubscriberOutcome(ctx, subscriberID, success, r.config.FailureThreshold)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}

	if !success && !sub.Active {
		metrics.IncrementCounter(metrics.MetricAutoUnsubscribes, nil, "Subscribers deactivated by failure threshold")
		r.logger.WithFields(logrus.Fields{
			LogFieldSubscriberID: sub.ID,
			LogFieldCallbackURL:  privacy.MaskCallbackURL(sub.CallbackURL),
			"failure_threshold":  r.config.FailureThreshold,
		}).Warn("Subscriber deactivated after repeated delivery failures")
	}

	return nil
}

func (r *subscriberRegistry) TestDelivery(ctx context.Context, subscriberID int64) (*models.TestResponse, error) {
	sub, err := r.db.GetSubscriberByID(ctx, subscriberID)
	if err != nil {
		return nil, err
	}
	if sub == nil || !sub.Active {
		return nil, errors.NewNotFoundError("subscriber", fmt.Sprintf("%d", subscriberID))
	}

	nonce, err := generateToken(constants.DefaultNonceLength)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to generate nonce")
	}

	payload := models.NotificationPayload{
		Event:       models.EventTest,
		DeliveredAt: time.Now().UTC().Format(time.RFC3339),
		Nonce:       nonce,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal test payload: %w", err)
	}

	deliveryCtx, cancel := context.WithTimeout(ctx, time.Duration(r.config.DeliveryTimeoutSec)*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(deliveryCtx, http.MethodPost, sub.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewDeliveryError(sub.CallbackURL, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(models.SignatureHeader, SignPayload(sub.Secret, body))

	result := &models.TestResponse{SubscriberID: sub.ID}
	resp, err := r.deliveryClient.Do(httpReq)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	defer resp.Body.Close()

	attempt := models.DeliveryAttempt{SubscriberID: sub.ID, Attempt: 1, StatusCode: resp.StatusCode}
	result.StatusCode = attempt.StatusCode
	result.Delivered = attempt.Success()
	return result, nil
}
