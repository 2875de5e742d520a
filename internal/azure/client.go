package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/keyvault/armkeyvault"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/msi/armmsi"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armsubscriptions"
)

// Pager is a generic interface for paging through Azure API results.
// T represents the response type returned by NextPage
type Pager[T any] interface {
	More() bool
	NextPage(ctx context.Context) (T, error)
}

// SubscriptionsPager pages through the subscriptions visible to a credential
type SubscriptionsPager = Pager[armsubscriptions.ClientListResponse]

// IdentitiesPager pages through user-assigned identities in a subscription
type IdentitiesPager = Pager[armmsi.UserAssignedIdentitiesClientListBySubscriptionResponse]

// VaultsPager pages through key vaults in a subscription
type VaultsPager = Pager[armkeyvault.VaultsClientListBySubscriptionResponse]

// ResourceClients enumerates the resources the discovery wizard needs.
// Pagers are lazy: no request is made until NextPage is called
type ResourceClients interface {
	Subscriptions() SubscriptionsPager
	Identities(subscriptionID string) (IdentitiesPager, error)
	Vaults(subscriptionID string) (VaultsPager, error)
}

// ResourceClientsFactory creates ResourceClients for a credential
type ResourceClientsFactory func(cred azcore.TokenCredential) (ResourceClients, error)

type resourceClients struct {
	cred          azcore.TokenCredential
	subscriptions *armsubscriptions.Client
}

// NewResourceClients creates ResourceClients backed by Azure Resource Manager
func NewResourceClients(cred azcore.TokenCredential) (ResourceClients, error) {
	subs, err := armsubscriptions.NewClient(cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscriptions client: %w", err)
	}
	return &resourceClients{cred: cred, subscriptions: subs}, nil
}

func (c *resourceClients) Subscriptions() SubscriptionsPager {
	return c.subscriptions.NewListPager(nil)
}

func (c *resourceClients) Identities(subscriptionID string) (IdentitiesPager, error) {
	client, err := armmsi.NewUserAssignedIdentitiesClient(subscriptionID, c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create identities client: %w", err)
	}
	return client.NewListBySubscriptionPager(nil), nil
}

func (c *resourceClients) Vaults(subscriptionID string) (VaultsPager, error) {
	client, err := armkeyvault.NewVaultsClient(subscriptionID, c.cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create vaults client: %w", err)
	}
	return client.NewListBySubscriptionPager(nil), nil
}
