package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
)

// SecretGetter is the subset of *azsecrets.Client used for retrieval.
// This allows for fakes in tests
type SecretGetter interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// SecretClientFactory creates a secret client bound to one vault
type SecretClientFactory func(vaultURL string, cred azcore.TokenCredential) (SecretGetter, error)

// NewSecretClient creates a Key Vault secrets client. The SDK retry policy is
// disabled: each retrieval issues exactly one request
func NewSecretClient(vaultURL string, cred azcore.TokenCredential) (SecretGetter, error) {
	client, err := azsecrets.NewClient(vaultURL, cred, &azsecrets.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}
	return client, nil
}
