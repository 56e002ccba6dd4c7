package models

import "time"

// IngestResult classifies the outcome of storing one envelope.
type IngestResult string

const (
	IngestCreated   IngestResult = "created"
	IngestDuplicate IngestResult = "duplicate"
	IngestRejected  IngestResult = "rejected"
)

// MessageEvent is one inbound message as persisted in the messages table.
// The (SenderNumber, GroupID, Timestamp) triple is unique; the upstream feed
// is at-least-once and replays must collapse to a single row.
type MessageEvent struct {
	ID           int64        `json:"id"`
	SenderNumber string       `json:"sender_number"`
	SenderName   string       `json:"sender_name,omitempty"`
	GroupID      string       `json:"group_id,omitempty"`
	GroupName    string       `json:"group_name,omitempty"`
	Timestamp    int64        `json:"timestamp"`
	ReceivedAt   time.Time    `json:"received_at"`
	Body         string       `json:"message_body"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	RawEnvelope  string       `json:"-"`
	Processed    bool         `json:"processed"`
}

// Attachment is the metadata recorded for one attachment reference.
// The binary content stays on the gateway; only the reference is stored.
type Attachment struct {
	ID          string `json:"id"`
	ContentType string `json:"content_type"`
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
}

// Conversation aggregates per-contact (or per-group) message state.
type Conversation struct {
	ID            int64      `json:"id"`
	ContactID     string     `json:"contact_id"`
	DisplayName   string     `json:"display_name,omitempty"`
	IsGroup       bool       `json:"is_group"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	MessageCount  int64      `json:"message_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

// MessageQuery filters and pages message reads.
type MessageQuery struct {
	Limit  int
	Offset int
	Sender string
	Group  string
}

// SentMessage is one entry in the outbound send log.
type SentMessage struct {
	ID             int64     `json:"id"`
	Recipient      string    `json:"recipient"`
	Body           string    `json:"message_body"`
	AttachmentPath string    `json:"attachment_path,omitempty"`
	SentAt         time.Time `json:"sent_at"`
	Status         string    `json:"status"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Statistics summarizes stored message volume.
type Statistics struct {
	TotalMessages      int64        `json:"total_messages"`
	TotalConversations int64        `json:"total_conversations"`
	MessagesToday      int64        `json:"messages_today"`
	TopSenders         []SenderStat `json:"top_senders"`
}

// SenderStat is one row of the top-senders breakdown.
type SenderStat struct {
	SenderNumber string `json:"sender_number"`
	SenderName   string `json:"sender_name,omitempty"`
	Count        int64  `json:"count"`
}
