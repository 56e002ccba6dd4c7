package service

import (
	"context"
	"fmt"
	"time"

	"signalhub/internal/database"
	"signalhub/internal/errors"
	"signalhub/internal/metrics"
	"signalhub/internal/models"
	"signalhub/internal/privacy"
	"signalhub/internal/validation"
	"signalhub/pkg/gateway"
	"signalhub/pkg/gateway/types"

	"github.com/sirupsen/logrus"
)

// MessageService coordinates ingestion, persistence, and outbound sends.
type MessageService interface {
	// IngestEnvelope validates and stores an incoming envelope. Duplicates
	// are absorbed silently and never re-dispatched.
	IngestEnvelope(ctx context.Context, record *types.EventRecord, raw []byte) (models.IngestResult, *models.MessageEvent, error)

	SendMessage(ctx context.Context, recipient, message string, attachments []string) (*types.SendResult, error)
	GetMessage(ctx context.Context, id int64) (*models.MessageEvent, error)
	ListMessages(ctx context.Context, query models.MessageQuery) ([]models.MessageEvent, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetStatistics(ctx context.Context) (*models.Statistics, error)
}

// EventDispatcher receives newly stored events for webhook fan-out.
type EventDispatcher interface {
	DispatchEvent(event *models.MessageEvent)
}

type messageService struct {
	db         *database.Database
	gateway    gateway.Client
	dispatcher EventDispatcher
	logger     *logrus.Logger
}

// NewMessageService creates the message service. The dispatcher may be nil
// in contexts that only query (e.g. the migrate tool).
func NewMessageService(db *database.Database, gw gateway.Client, dispatcher EventDispatcher, logger *logrus.Logger) MessageService {
	if logger == nil {
		logger = logrus.New()
	}
	return &messageService{
		db:         db,
		gateway:    gw,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (s *messageService) IngestEnvelope(ctx context.Context, record *types.EventRecord, raw []byte) (models.IngestResult, *models.MessageEvent, error) {
	if record == nil || record.Envelope == nil {
		metrics.IncrementCounter(metrics.MetricEventsRejected, nil, "Events rejected at validation")
		return models.IngestRejected, nil, errors.NewEnvelopeError("missing envelope")
	}

	env := record.Envelope
	if err := validation.ValidateEnvelope(env); err != nil {
		metrics.IncrementCounter(metrics.MetricEventsRejected, nil, "Events rejected at validation")
		s.logger.WithFields(logrus.Fields{
			LogFieldSender: privacy.MaskPhoneNumber(env.Sender()),
			"reason":       err.Error(),
		}).Warn("Rejected malformed envelope")
		return models.IngestRejected, nil, err
	}

	event := eventFromEnvelope(env, raw)

	id, created, err := s.db.InsertMessageEvent(ctx, event)
	if err != nil {
		metrics.IncrementCounter(metrics.MetricStoreFailures, nil, "Store write failures")
		// The frame is not re-read from the feed; the upstream is
		// at-least-once and a later redelivery converges.
		s.logger.WithError(err).WithFields(logrus.Fields{
			LogFieldSender:  privacy.MaskPhoneNumber(event.SenderNumber),
			LogFieldGroupID: privacy.MaskGroupID(event.GroupID),
			"timestamp":     event.Timestamp,
		}).Error("Failed to store message event, frame at risk")
		return models.IngestRejected, nil, errors.Wrap(err, errors.ErrCodeStoreFailure, "failed to store message event")
	}

	if !created {
		metrics.IncrementCounter(metrics.MetricEventsDuplicate, nil, "Duplicate events absorbed")
		if IsVerboseLogging(ctx) {
			s.logger.WithFields(logrus.Fields{
				LogFieldSender:  privacy.MaskPhoneNumber(event.SenderNumber),
				LogFieldGroupID: privacy.MaskGroupID(event.GroupID),
				"timestamp":     event.Timestamp,
			}).Debug("Duplicate event absorbed")
		}
		return models.IngestDuplicate, nil, nil
	}

	event.ID = id
	metrics.IncrementCounter(metrics.MetricEventsIngested, nil, "Events stored")

	s.logger.WithFields(logrus.Fields{
		LogFieldEventID: id,
		LogFieldSender:  privacy.MaskPhoneNumber(event.SenderNumber),
		LogFieldGroupID: privacy.MaskGroupID(event.GroupID),
	}).Info("Stored new message event")

	if s.dispatcher != nil {
		s.dispatcher.DispatchEvent(event)
	}

	return models.IngestCreated, event, nil
}

func (s *messageService) SendMessage(ctx context.Context, recipient, message string, attachments []string) (*types.SendResult, error) {
	if err := validation.ValidatePhoneNumber(recipient); err != nil {
		return nil, err
	}
	if message == "" && len(attachments) == 0 {
		return nil, errors.NewValidationError("message", "message body or attachments required")
	}

	result, err := s.gateway.SendMessage(ctx, recipient, message, attachments)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGatewayAPI, "failed to send message via gateway")
	}

	sent := &models.SentMessage{
		Recipient: recipient,
		Body:      message,
		SentAt:    time.Now().UTC(),
		Status:    "sent",
	}
	if len(attachments) > 0 {
		sent.AttachmentPath = attachments[0]
	}
	if _, dbErr := s.db.LogSentMessage(ctx, sent); dbErr != nil {
		// The message went out; a failed audit write must not fail the call.
		s.logger.WithError(dbErr).Warn("Failed to record sent message")
	}

	s.logger.WithFields(logrus.Fields{
		"recipient": privacy.MaskPhoneNumber(recipient),
	}).Info("Message sent")

	return result, nil
}

func (s *messageService) GetMessage(ctx context.Context, id int64) (*models.MessageEvent, error) {
	event, err := s.db.GetMessageByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, errors.NewNotFoundError("message", fmt.Sprintf("%d", id))
	}
	return event, nil
}

func (s *messageService) ListMessages(ctx context.Context, query models.MessageQuery) ([]models.MessageEvent, error) {
	return s.db.ListMessages(ctx, query)
}

func (s *messageService) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	return s.db.ListConversations(ctx)
}

func (s *messageService) GetStatistics(ctx context.Context) (*models.Statistics, error) {
	return s.db.GetStatistics(ctx)
}

// eventFromEnvelope flattens a gateway envelope into the stored event shape.
func eventFromEnvelope(env *types.Envelope, raw []byte) *models.MessageEvent {
	dm := env.DataMessage

	event := &models.MessageEvent{
		SenderNumber: env.Sender(),
		SenderName:   env.SourceName,
		Timestamp:    env.Timestamp,
		ReceivedAt:   time.Now().UTC(),
		Body:         dm.Message,
		RawEnvelope:  string(raw),
	}

	if dm.GroupInfo != nil {
		event.GroupID = dm.GroupInfo.GroupID
		event.GroupName = dm.GroupInfo.GroupName
	}

	for _, att := range dm.Attachments {
		event.Attachments = append(event.Attachments, models.Attachment{
			ID:          att.ID,
			ContentType: att.ContentType,
			Filename:    att.Filename,
			Size:        att.Size,
		})
	}

	return event
}
