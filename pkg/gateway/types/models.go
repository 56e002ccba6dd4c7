package types

import (
	"encoding/json"
	"strconv"
)

// FlexibleInt64 can unmarshal both string and int64 JSON values
type FlexibleInt64 int64

func (f *FlexibleInt64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = FlexibleInt64(i)
		return nil
	}

	var i int64
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	*f = FlexibleInt64(i)
	return nil
}

func (f FlexibleInt64) Int64() int64 {
	return int64(f)
}

// EventRecord is one raw record from the gateway event feed.
type EventRecord struct {
	Envelope *Envelope `json:"envelope"`
	Account  string    `json:"account,omitempty"`
}

// Envelope describes one inbound message as emitted by the gateway.
// Receipts and typing indicators arrive as envelopes without a DataMessage.
type Envelope struct {
	Source       string       `json:"source,omitempty"`
	SourceNumber string       `json:"sourceNumber,omitempty"`
	SourceName   string       `json:"sourceName,omitempty"`
	SourceUUID   string       `json:"sourceUuid,omitempty"`
	Timestamp    int64        `json:"timestamp"`
	DataMessage  *DataMessage `json:"dataMessage,omitempty"`
}

// Sender returns the best available sender identifier.
func (e *Envelope) Sender() string {
	if e.SourceNumber != "" {
		return e.SourceNumber
	}
	return e.Source
}

// DataMessage is the message content inside an envelope.
type DataMessage struct {
	Message     string       `json:"message"`
	GroupInfo   *GroupInfo   `json:"groupInfo,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// GroupInfo identifies the group a message was posted to.
type GroupInfo struct {
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName,omitempty"`
}

// Attachment is one attachment reference carried by a data message.
type Attachment struct {
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
	ID          string `json:"id"`
	Size        int64  `json:"size"`
}

// ParseEventRecord decodes one raw feed record.
func ParseEventRecord(data []byte) (*EventRecord, error) {
	var record EventRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// SendMessageRequest is the gateway REST send payload.
type SendMessageRequest struct {
	Message           string   `json:"message"`
	Number            string   `json:"number"`
	Recipients        []string `json:"recipients"`
	Base64Attachments []string `json:"base64_attachments,omitempty"`
}

// SendResponse is the gateway's reply to a send request.
type SendResponse struct {
	Timestamp FlexibleInt64 `json:"timestamp"`
}

// SendResult is the normalized outcome handed back to callers.
type SendResult struct {
	Timestamp int64  `json:"timestamp"`
	MessageID string `json:"messageId"`
}

// AboutResponse describes the gateway build, used as a reachability probe.
type AboutResponse struct {
	Versions []string `json:"versions"`
	Build    int      `json:"build"`
	Mode     string   `json:"mode"`
	Version  string   `json:"version"`
}
