package models

// SignatureHeader carries the hex HMAC-SHA256 of the request body, computed
// with the subscriber's secret.
const SignatureHeader = "X-Signal-HMAC"

// Webhook event names on the wire.
const (
	EventChallenge  = "challenge"
	EventNewMessage = "new_message"
	EventTest       = "test"
)

// ChallengeRequest is posted to a prospective subscriber during admission.
type ChallengeRequest struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
}

// ChallengeResponse is the echo the endpoint must return with status 200.
// Signature is required only when the caller supplied its own secret; it is
// the hex HMAC-SHA256 of the challenge string under that secret.
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
	Signature string `json:"signature,omitempty"`
}

// NotificationPayload is the signed body delivered to subscribers for each
// new message event. Nonce is fresh per attempt; receivers dedup on
// MessageID, not on the nonce.
type NotificationPayload struct {
	Event        string       `json:"event"`
	MessageID    int64        `json:"message_id"`
	SenderNumber string       `json:"sender_number"`
	SenderName   string       `json:"sender_name,omitempty"`
	GroupID      string       `json:"group_id,omitempty"`
	GroupName    string       `json:"group_name,omitempty"`
	Body         string       `json:"message_body"`
	Timestamp    int64        `json:"timestamp"`
	Attachments  []Attachment `json:"attachments,omitempty"`
	DeliveredAt  string       `json:"delivered_at"`
	Nonce        string       `json:"nonce"`
}

// SubscribeRequest is the admin API body for webhook registration.
type SubscribeRequest struct {
	CallbackURL string `json:"callback_url"`
	Secret      string `json:"secret,omitempty"`
}

// SubscribeResponse reports a successful registration. The secret is returned
// exactly once, here, so the subscriber can verify signatures.
type SubscribeResponse struct {
	SubscriberID int64  `json:"subscriber_id"`
	CallbackURL  string `json:"callback_url"`
	Secret       string `json:"secret"`
}

// UnsubscribeRequest identifies a subscription by id or callback URL.
type UnsubscribeRequest struct {
	SubscriberID int64  `json:"subscriber_id,omitempty"`
	CallbackURL  string `json:"callback_url,omitempty"`
}

// TestRequest triggers one synthetic delivery to a registered subscriber.
type TestRequest struct {
	SubscriberID int64 `json:"subscriber_id"`
}

// TestResponse reports the outcome of the synthetic delivery.
type TestResponse struct {
	SubscriberID int64  `json:"subscriber_id"`
	Delivered    bool   `json:"delivered"`
	StatusCode   int    `json:"status_code,omitempty"`
	Error        string `json:"error,omitempty"`
}
