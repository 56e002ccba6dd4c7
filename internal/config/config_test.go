package config

import (
	"os"
	"path/filepath"
	"testing"

	"signalhub/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const minimalConfig = `{
	"gateway": {
		"base_url": "http://localhost:8080",
		"phone_number": "+19995550000"
	},
	"database": {
		"path": "./signalhub.db"
	},
	"webhook": {
		"allowed_hosts": ["hooks.example.com"]
	}
}`

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, minimalConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.Gateway.BaseURL)
	assert.Equal(t, "+19995550000", cfg.Gateway.PhoneNumber)

	assert.Equal(t, constants.DefaultGatewayTimeoutSec, cfg.Gateway.HTTPTimeoutSec)
	assert.Equal(t, constants.DefaultReconnectInitialMs, cfg.Gateway.ReconnectInitialMs)
	assert.Equal(t, constants.DefaultReconnectMaxMs, cfg.Gateway.ReconnectMaxMs)
	assert.Equal(t, constants.DefaultStableConnectionSec, cfg.Gateway.StableAfterSec)

	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, constants.DefaultServerReadTimeoutSec, cfg.Server.ReadTimeout)

	assert.Equal(t, constants.DefaultChallengeTimeoutSec, cfg.Webhook.ChallengeTimeoutSec)
	assert.Equal(t, constants.DefaultDeliveryTimeoutSec, cfg.Webhook.DeliveryTimeoutSec)
	assert.Equal(t, constants.DefaultFailureThreshold, cfg.Webhook.FailureThreshold)

	assert.Equal(t, constants.DefaultDeliveryBackoffMs, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, constants.DefaultDeliveryBackoffMax, cfg.Retry.MaxBackoffMs)
	assert.Equal(t, constants.DefaultDeliveryMaxAttempts, cfg.Retry.MaxAttempts)
}

func TestLoadConfig_ExplicitValuesKept(t *testing.T) {
	path := writeConfigFile(t, `{
		"gateway": {
			"base_url": "http://localhost:8080",
			"phone_number": "+19995550000",
			"http_timeout_sec": 5
		},
		"database": {"path": "./signalhub.db"},
		"webhook": {
			"allowed_hosts": ["hooks.example.com"],
			"failure_threshold": 3
		},
		"retry": {"maxAttempts": 7}
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Gateway.HTTPTimeoutSec)
	assert.Equal(t, 3, cfg.Webhook.FailureThreshold)
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
}

func TestLoadConfig_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name: "missing gateway url",
			content: `{
				"gateway": {"phone_number": "+19995550000"},
				"database": {"path": "./signalhub.db"},
				"webhook": {"allowed_hosts": ["hooks.example.com"]}
			}`,
			wantErr: ErrMissingGatewayURL,
		},
		{
			name: "missing phone number",
			content: `{
				"gateway": {"base_url": "http://localhost:8080"},
				"database": {"path": "./signalhub.db"},
				"webhook": {"allowed_hosts": ["hooks.example.com"]}
			}`,
			wantErr: ErrMissingPhoneNumber,
		},
		{
			name: "missing database path",
			content: `{
				"gateway": {"base_url": "http://localhost:8080", "phone_number": "+19995550000"},
				"webhook": {"allowed_hosts": ["hooks.example.com"]}
			}`,
			wantErr: ErrMissingDBPath,
		},
		{
			name: "empty allowed hosts",
			content: `{
				"gateway": {"base_url": "http://localhost:8080", "phone_number": "+19995550000"},
				"database": {"path": "./signalhub.db"},
				"webhook": {"allowed_hosts": []}
			}`,
			wantErr: ErrMissingAllowedHosts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			_, err := LoadConfig(path)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := writeConfigFile(t, `{not json`)
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadConfig_RejectsTraversalPath(t *testing.T) {
	_, err := LoadConfig("../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config path")
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("GATEWAY_URL", "http://gateway.internal:9090")
	t.Setenv("SIGNALHUB_API_KEY", "env-api-key")
	t.Setenv("GATEWAY_AUTH_TOKEN", "env-token")
	t.Setenv("DB_PATH", "/var/lib/signalhub/hub.db")
	t.Setenv("PORT", "9999")

	path := writeConfigFile(t, minimalConfig)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://gateway.internal:9090", cfg.Gateway.BaseURL)
	assert.Equal(t, "env-api-key", cfg.Server.APIKey)
	assert.Equal(t, "env-token", cfg.Gateway.AuthToken)
	assert.Equal(t, "/var/lib/signalhub/hub.db", cfg.Database.Path)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoadConfig_InvalidPortEnvIgnored(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	path := writeConfigFile(t, minimalConfig)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
}

func TestLoadConfig_ProductionRequiresAPIKey(t *testing.T) {
	t.Setenv("SIGNALHUB_ENV", "production")
	t.Setenv("SIGNALHUB_API_KEY", "")

	path := writeConfigFile(t, minimalConfig)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required in production")
}

func TestLoadConfig_ProductionRejectsShortAPIKey(t *testing.T) {
	t.Setenv("SIGNALHUB_ENV", "production")
	t.Setenv("SIGNALHUB_API_KEY", "short")

	path := writeConfigFile(t, minimalConfig)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 characters")
}

func TestLoadConfig_ProductionRejectsDebugLogging(t *testing.T) {
	t.Setenv("SIGNALHUB_ENV", "production")
	t.Setenv("SIGNALHUB_API_KEY", "0123456789abcdef0123456789abcdef")

	path := writeConfigFile(t, `{
		"gateway": {"base_url": "http://localhost:8080", "phone_number": "+19995550000"},
		"database": {"path": "./signalhub.db"},
		"webhook": {"allowed_hosts": ["hooks.example.com"]},
		"log_level": "debug"
	}`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debug logging")
}
