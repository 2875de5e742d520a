package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Azure     AzureConfig     `mapstructure:"azure"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WebRoot         string        `mapstructure:"web_root"`
	Environment     string        `mapstructure:"environment"`
}

// AzureConfig holds the values used to seed the runtime configuration.
// Placeholders such as "<your-vault-url>" are treated as unset
type AzureConfig struct {
	KeyVaultURL          string `mapstructure:"key_vault_url"`
	ExpectedUamiClientID string `mapstructure:"expected_uami_client_id"`
	TenantID             string `mapstructure:"tenant_id"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`

	// StrictIdentityValidation rejects retrievals whose identity differs from
	// ExpectedUamiClientID. Off by default
	StrictIdentityValidation bool `mapstructure:"strict_identity_validation"`
}

// DiscoveryConfig holds discovery wizard settings
type DiscoveryConfig struct {
	DeviceCodeTimeout time.Duration `mapstructure:"device_code_timeout"`
}

// LoggingConfig holds log level and output format
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
