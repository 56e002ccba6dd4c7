package validation

import (
	"fmt"
	"strings"
	"unicode"

	"signalhub/internal/constants"
	"signalhub/internal/errors"
	"signalhub/pkg/gateway/types"
)

// ValidatePhoneNumber validates phone number format and length
func ValidatePhoneNumber(phone string) error {
	if phone == "" {
		return errors.New(errors.ErrCodeInvalidInput, "phone number cannot be empty")
	}

	cleaned := strings.TrimPrefix(phone, "+")

	if len(cleaned) < constants.MinPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number must be at least %d digits", constants.MinPhoneNumberLength))
	}

	if len(cleaned) > constants.MaxPhoneNumberLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("phone number too long (max %d digits)", constants.MaxPhoneNumberLength))
	}

	for _, char := range cleaned {
		if !unicode.IsDigit(char) {
			return errors.New(errors.ErrCodeInvalidInput, "phone number must contain only digits")
		}
	}

	return nil
}

// ValidateEnvelope checks the required fields of an inbound envelope before
// it is persisted: a sender, a gateway timestamp, and either body text or at
// least one attachment reference. Failures reject the envelope; they never
// stop ingestion.
func ValidateEnvelope(env *types.Envelope) error {
	if env == nil {
		return errors.NewEnvelopeError("envelope is nil")
	}

	sender := env.Sender()
	if sender == "" {
		return errors.NewEnvelopeError("missing sender identifier")
	}

	if env.Timestamp <= 0 {
		return errors.NewEnvelopeError("missing or invalid timestamp")
	}

	if env.DataMessage == nil {
		return errors.NewEnvelopeError("envelope carries no data message")
	}

	if env.DataMessage.Message == "" && len(env.DataMessage.Attachments) == 0 {
		return errors.NewEnvelopeError("envelope has neither body nor attachments")
	}

	if len(env.DataMessage.Message) > constants.MaxMessageBodyLength {
		return errors.NewEnvelopeError("message body exceeds maximum length")
	}

	return nil
}

// ValidateCallbackURLLength bounds the stored URL size; structural and
// allow-list checks live in the security package.
func ValidateCallbackURLLength(rawURL string) error {
	if rawURL == "" {
		return errors.New(errors.ErrCodeInvalidInput, "callback URL cannot be empty")
	}
	if len(rawURL) > constants.MaxCallbackURLLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("callback URL too long (max %d characters)", constants.MaxCallbackURLLength))
	}
	return nil
}
