package models

// Config holds the application configuration
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Database DatabaseConfig `json:"database"`
	Server   ServerConfig   `json:"server"`
	Webhook  WebhookConfig  `json:"webhook"`
	Retry    RetryConfig    `json:"retry"`
	Tracing  TracingConfig  `json:"tracing"`
	LogLevel string         `json:"log_level"`
}

// GatewayConfig holds settings for the upstream messaging gateway
type GatewayConfig struct {
	BaseURL            string `json:"base_url"`
	PhoneNumber        string `json:"phone_number"`
	AuthToken          string `json:"auth_token"`
	HTTPTimeoutSec     int    `json:"http_timeout_sec"`
	ReconnectInitialMs int    `json:"reconnect_initial_ms"`
	ReconnectMaxMs     int    `json:"reconnect_max_ms"`
	StableAfterSec     int    `json:"stable_after_sec"`
}

// DatabaseConfig holds database related configurations
type DatabaseConfig struct {
	Path string `json:"path"`
}

// ServerConfig holds settings for the private admin/query API
type ServerConfig struct {
	Port        int      `json:"port"`
	APIKey      string   `json:"api_key"`
	AllowedIPs  []string `json:"allowed_ips"`
	ReadTimeout int      `json:"read_timeout_sec"`
}

// WebhookConfig holds subscriber admission and delivery settings
type WebhookConfig struct {
	ChallengeTimeoutSec int      `json:"challenge_timeout_sec"`
	DeliveryTimeoutSec  int      `json:"delivery_timeout_sec"`
	FailureThreshold    int      `json:"failure_threshold"`
	AllowedHosts        []string `json:"allowed_hosts"`
}

// RetryConfig holds webhook delivery retry settings
type RetryConfig struct {
	InitialBackoffMs int  `json:"initialBackoffMs"`
	MaxBackoffMs     int  `json:"maxBackoffMs"`
	MaxAttempts      int  `json:"maxAttempts"`
	Jitter           bool `json:"jitter"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
