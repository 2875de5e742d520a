package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is the default directory for config files
	DefaultConfigDir = ".config/keyvault-identity-demo"
	// DefaultConfigName is the default config file name (without extension)
	DefaultConfigName = "config"
	// EnvPrefix prefixes every environment override, e.g. KEYVAULT_DEMO_AZURE_KEY_VAULT_URL
	EnvPrefix = "KEYVAULT_DEMO"

	defaultReadTimeout       = 15 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultDeviceCodeTimeout = 15 * time.Minute
)

var (
	// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
	envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Z_][A-Z0-9_]*)`)

	validLogFormats = map[string]bool{"text": true, "json": true}
)

// Load loads configuration from file, environment variables, and defaults
// Configuration precedence (highest to lowest):
// 1. Environment variables (prefixed with KEYVAULT_DEMO_)
// 2. Config file (~/.config/keyvault-identity-demo/config.yaml)
// 3. Default values
func Load() (*Config, error) {
	v := newViper()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	v.SetConfigName(DefaultConfigName)
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir, DefaultConfigDir))
	v.AddConfigPath(".")

	// Read config file (optional - don't error if it doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logrus.Debug("No config file found, using defaults and environment")
	}

	return decode(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration. Every key is registered
// here so AutomaticEnv can resolve it during Unmarshal
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.address", d.Server.Address)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.web_root", d.Server.WebRoot)
	v.SetDefault("server.environment", d.Server.Environment)

	v.SetDefault("azure.key_vault_url", "")
	v.SetDefault("azure.expected_uami_client_id", "")
	v.SetDefault("azure.tenant_id", "")
	v.SetDefault("azure.use_default_credential", d.Azure.UseDefaultCredential)
	v.SetDefault("azure.strict_identity_validation", false)

	v.SetDefault("discovery.device_code_timeout", d.Discovery.DeviceCodeTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// substituteEnvVars replaces ${VAR} or $VAR patterns with environment variable values
func substituteEnvVars(cfg *Config) {
	cfg.Azure.KeyVaultURL = expandEnvVars(cfg.Azure.KeyVaultURL)
	cfg.Azure.ExpectedUamiClientID = expandEnvVars(cfg.Azure.ExpectedUamiClientID)
	cfg.Azure.TenantID = expandEnvVars(cfg.Azure.TenantID)
	cfg.Server.Environment = expandEnvVars(cfg.Server.Environment)
}

// expandEnvVars expands environment variables in a string
// Supports both ${VAR_NAME} and $VAR_NAME formats
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		// Leave unresolved references as written
		return match
	})
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}

	if cfg.Discovery.DeviceCodeTimeout <= 0 {
		return fmt.Errorf("discovery.device_code_timeout must be positive, got %s", cfg.Discovery.DeviceCodeTimeout)
	}

	if _, err := logrus.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	if !validLogFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be one of text, json; got %q", cfg.Logging.Format)
	}

	return nil
}
