package models

import "time"

// Subscriber is a registered webhook endpoint. Secret is stored encrypted at
// rest and never serialized into API responses.
type Subscriber struct {
	ID                  int64      `json:"id"`
	CallbackURL         string     `json:"callback_url"`
	Secret              string     `json:"-"`
	Active              bool       `json:"active"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CreatedAt           time.Time  `json:"created_at"`
	LastNotifiedAt      *time.Time `json:"last_notified_at,omitempty"`
}

// DeliveryAttempt captures the outcome of a single webhook delivery try.
// Attempts are ephemeral; they drive retry bookkeeping and the test endpoint
// response but are not persisted.
type DeliveryAttempt struct {
	SubscriberID int64         `json:"subscriber_id"`
	EventID      int64         `json:"event_id,omitempty"`
	Attempt      int           `json:"attempt"`
	StatusCode   int           `json:"status_code,omitempty"`
	Duration     time.Duration `json:"-"`
	Err          error         `json:"-"`
}

// Success reports whether the attempt got a 2xx response.
func (a DeliveryAttempt) Success() bool {
	return a.Err == nil && a.StatusCode >= 200 && a.StatusCode < 300
}
