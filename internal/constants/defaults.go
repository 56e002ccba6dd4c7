package constants

// Default stream listener configuration values
const (
	DefaultReconnectInitialMs    = 1000
	DefaultReconnectMaxMs        = 60000
	DefaultStableConnectionSec   = 30
	DefaultStreamReadTimeoutSec  = 90
	DefaultStreamDialTimeoutSec  = 10
)

// Default webhook configuration values
const (
	DefaultChallengeTimeoutSec  = 5
	DefaultDeliveryTimeoutSec   = 10
	DefaultDeliveryMaxAttempts  = 3
	DefaultDeliveryBackoffMs    = 1000
	DefaultDeliveryBackoffMax   = 16000
	DefaultDeliveryMultiplier   = 4.0
	DefaultFailureThreshold     = 5
	DefaultSecretLength         = 32
	DefaultNonceLength          = 16
)

// Default persistence configuration values
const (
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
)

// Default server configuration values
const (
	DefaultServerPort           = 8080
	DefaultServerReadTimeoutSec = 15
	DefaultServerWriteTimeout   = 15
	DefaultServerIdleTimeoutSec = 60
	DefaultGracefulShutdownSec  = 30
	DefaultQueryLimit           = 100
	MaxQueryLimit               = 1000
	ServerErrorChannelSize      = 1
)

// Default gateway client configuration values
const (
	DefaultGatewayTimeoutSec = 30
)

// Validation bounds
const (
	MinPhoneNumberLength = 7
	MaxPhoneNumberLength = 20
	MaxMessageBodyLength = 65536
	MaxCallbackURLLength = 2048

	// MaxChallengeResponseBytes bounds how much of a challenge reply is read.
	MaxChallengeResponseBytes = 4096
)

// Encryption parameters for secrets at rest
const (
	EncryptionSalt = "signalhub-secret-salt-v1"
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)
