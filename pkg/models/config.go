package models

// ConfigSnapshot is a point-in-time copy of the runtime configuration
type ConfigSnapshot struct {
	KeyVaultURL          string `json:"keyVaultUrl"`
	ExpectedUamiClientID string `json:"expectedUamiClientId"`
	TenantID             string `json:"tenantId"`
	UseManagedIdentity   bool   `json:"useManagedIdentity"`
	ValidationEnabled    bool   `json:"validationEnabled"`
	IsConfigured         bool   `json:"isConfigured"`
}

// CredentialModeRequest toggles between managed identity and the local developer chain
type CredentialModeRequest struct {
	UseManagedIdentity bool `json:"useManagedIdentity"`
}

// ApplyConfigRequest carries wizard selections. Nil or blank fields leave the
// current value untouched
type ApplyConfigRequest struct {
	KeyVaultURL          *string `json:"keyVaultUrl,omitempty"`
	ExpectedUamiClientID *string `json:"expectedUamiClientId,omitempty"`
	TenantID             *string `json:"tenantId,omitempty"`
	UseManagedIdentity   *bool   `json:"useManagedIdentity,omitempty"`
}
