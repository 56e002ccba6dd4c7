package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"signalhub/internal/constants"
	"signalhub/internal/models"
	"signalhub/internal/security"
)

var (
	ErrMissingGatewayURL   = models.ConfigError{Message: "missing gateway base URL"}
	ErrMissingPhoneNumber  = models.ConfigError{Message: "missing gateway phone number"}
	ErrMissingDBPath       = models.ConfigError{Message: "missing database path"}
	ErrMissingAllowedHosts = models.ConfigError{Message: "webhook allowed_hosts must not be empty"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateFilePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateFilePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	// Perform security validation after environment overrides
	if err := validateSecurity(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Gateway.BaseURL == "" {
		return ErrMissingGatewayURL
	}
	if c.Gateway.PhoneNumber == "" {
		return ErrMissingPhoneNumber
	}
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if len(c.Webhook.AllowedHosts) == 0 {
		return ErrMissingAllowedHosts
	}

	if c.Gateway.HTTPTimeoutSec <= 0 {
		c.Gateway.HTTPTimeoutSec = constants.DefaultGatewayTimeoutSec
	}
	if c.Gateway.ReconnectInitialMs <= 0 {
		c.Gateway.ReconnectInitialMs = constants.DefaultReconnectInitialMs
	}
	if c.Gateway.ReconnectMaxMs <= 0 {
		c.Gateway.ReconnectMaxMs = constants.DefaultReconnectMaxMs
	}
	if c.Gateway.StableAfterSec <= 0 {
		c.Gateway.StableAfterSec = constants.DefaultStableConnectionSec
	}

	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = constants.DefaultServerReadTimeoutSec
	}

	if c.Webhook.ChallengeTimeoutSec <= 0 {
		c.Webhook.ChallengeTimeoutSec = constants.DefaultChallengeTimeoutSec
	}
	if c.Webhook.DeliveryTimeoutSec <= 0 {
		c.Webhook.DeliveryTimeoutSec = constants.DefaultDeliveryTimeoutSec
	}
	if c.Webhook.FailureThreshold <= 0 {
		c.Webhook.FailureThreshold = constants.DefaultFailureThreshold
	}

	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultDeliveryBackoffMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultDeliveryBackoffMax
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultDeliveryMaxAttempts
	}

	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if url := os.Getenv("GATEWAY_URL"); url != "" {
		c.Gateway.BaseURL = url
	}

	// SECURITY: API keys should be set via environment variables
	if key := os.Getenv("SIGNALHUB_API_KEY"); key != "" {
		c.Server.APIKey = key
	}

	if token := os.Getenv("GATEWAY_AUTH_TOKEN"); token != "" {
		c.Gateway.AuthToken = token
	}

	if path := os.Getenv("DB_PATH"); path != "" {
		c.Database.Path = path
	}

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
}

// validateSecurity performs security-specific validation
func validateSecurity(c *models.Config) error {
	isProduction := os.Getenv("SIGNALHUB_ENV") == "production"

	if isProduction {
		// In production, the admin API key is mandatory
		if c.Server.APIKey == "" {
			return models.ConfigError{Message: "admin API key is required in production (set SIGNALHUB_API_KEY environment variable)"}
		}

		if len(c.Server.APIKey) < 32 {
			return models.ConfigError{Message: "admin API key must be at least 32 characters long"}
		}

		if c.LogLevel == "debug" {
			return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
		}
	} else {
		if c.Server.APIKey == "" {
			fmt.Fprintf(os.Stderr, "WARNING: admin API key not set. Set SIGNALHUB_API_KEY environment variable for security.\n")
		}
	}

	return nil
}
