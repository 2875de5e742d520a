package config

import "strings"

// IsReal reports whether a configured value should be adopted. Blank values
// and unfilled template placeholders ("<...>") are not
func IsReal(v string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed != "" && !strings.HasPrefix(trimmed, "<")
}

// RealOrEmpty returns v when it is real, otherwise ""
func RealOrEmpty(v string) string {
	if IsReal(v) {
		return v
	}
	return ""
}

// UseManagedIdentity reports the initial credential mode
func (c *Config) UseManagedIdentity() bool {
	return !c.Azure.UseDefaultCredential
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     defaultReadTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
			WebRoot:         "wwwroot",
			Environment:     "Production",
		},
		Azure: AzureConfig{
			UseDefaultCredential: true,
		},
		Discovery: DiscoveryConfig{
			DeviceCodeTimeout: defaultDeviceCodeTimeout,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
