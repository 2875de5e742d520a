package models

// SecretRequest is the body accepted by the retrieve endpoint
type SecretRequest struct {
	SecretName        string `json:"secretName"`
	ManagedIdentityID string `json:"managedIdentityId,omitempty"`
	KeyVaultURL       string `json:"keyVaultUrl,omitempty"`
}

// SecretResult is the uniform outcome of a retrieval. Failures are reported
// through Success and ErrorMessage rather than HTTP status codes
type SecretResult struct {
	Success          bool   `json:"success"`
	SecretValue      string `json:"secretValue,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	CredentialMethod string `json:"credentialMethod,omitempty"`
	IdentityUsed     string `json:"identityUsed,omitempty"`
	CodeSnippet      string `json:"codeSnippet,omitempty"`
	RequestInput     string `json:"requestInput,omitempty"`
}
