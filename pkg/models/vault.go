package models

// KeyVault describes a key vault found during discovery
type KeyVault struct {
	Name          string  `json:"name"`
	URL           string  `json:"url"`
	ResourceGroup *string `json:"resourceGroup"`
	Location      string  `json:"location"`
}

// Subscription describes an Azure subscription visible to the signed-in user
type Subscription struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TenantID string `json:"tenantId"`
}

// Identity describes a user-assigned managed identity
type Identity struct {
	Name          string  `json:"name"`
	ClientID      string  `json:"clientId"`
	PrincipalID   string  `json:"principalId"`
	ResourceGroup *string `json:"resourceGroup"`
}
