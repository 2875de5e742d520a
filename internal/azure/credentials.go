package azure

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	log "github.com/sirupsen/logrus"

	apperrors "github.com/ylchen07/keyvault-identity-demo/internal/errors"
)

// CredentialKind selects how a token credential is built
type CredentialKind int

const (
	// KindDeveloper is the local developer chain (environment, CLI logins).
	// It never probes the instance metadata endpoint
	KindDeveloper CredentialKind = iota
	// KindSystemAssigned is the resource's system-assigned managed identity
	KindSystemAssigned
	// KindUserAssigned is a user-assigned managed identity chosen by client id
	KindUserAssigned
)

// Credential method labels reported back to callers
const (
	MethodDeveloper       = "DefaultAzureCredential"
	MethodManagedIdentity = "ManagedIdentityCredential"
)

// Chain member names, in the order they are tried
const (
	SourceEnvironment       = "environment"
	SourceWorkloadIdentity  = "workload-identity"
	SourceAzureCLI          = "azure-cli"
	SourceAzureDeveloperCLI = "azure-developer-cli"
	SourceDeviceCode        = "device-code"
	SourceManagedIdentity   = "managed-identity"
)

// ManagementScope is the token scope for Azure Resource Manager
const ManagementScope = "https://management.azure.com/.default"

// CredentialPlan describes the credential a request will use. It is computed
// without side effects so callers can inspect and test the selection
type CredentialPlan struct {
	Kind        CredentialKind
	ClientID    string
	TenantID    string
	// Interactive appends a device code login to the developer chain
	Interactive bool
}

// PlanCredential picks a credential from the credential-mode flag and the
// optional user-assigned identity client id. The identity is ignored by the
// developer chain
func PlanCredential(useManagedIdentity bool, identityClientID, tenantID string) CredentialPlan {
	switch {
	case !useManagedIdentity:
		return CredentialPlan{Kind: KindDeveloper, TenantID: tenantID}
	case identityClientID != "":
		return CredentialPlan{Kind: KindUserAssigned, ClientID: identityClientID}
	default:
		return CredentialPlan{Kind: KindSystemAssigned}
	}
}

// Method returns the credential label shown to users
func (p CredentialPlan) Method() string {
	if p.Kind == KindDeveloper {
		return MethodDeveloper
	}
	return MethodManagedIdentity
}

// Sources lists the credential types that will be tried, in order. The
// credential built from the plan has exactly these members, minus the
// environment based ones whose variables are unset
func (p CredentialPlan) Sources() []string {
	if p.Kind != KindDeveloper {
		return []string{SourceManagedIdentity}
	}
	sources := []string{SourceEnvironment, SourceWorkloadIdentity, SourceAzureCLI, SourceAzureDeveloperCLI}
	if p.Interactive {
		sources = append(sources, SourceDeviceCode)
	}
	return sources
}

// UsesManagedIdentity reports whether the plan may contact the instance
// metadata endpoint
func (p CredentialPlan) UsesManagedIdentity() bool {
	for _, s := range p.Sources() {
		if s == SourceManagedIdentity {
			return true
		}
	}
	return false
}

// NewCredential builds the token credential described by plan
func NewCredential(plan CredentialPlan) (azcore.TokenCredential, error) {
	switch plan.Kind {
	case KindUserAssigned:
		log.WithField("clientId", plan.ClientID).Info("Using user-assigned ManagedIdentityCredential")
	case KindSystemAssigned:
		log.Info("Using system-assigned ManagedIdentityCredential")
	default:
		log.Info("Using developer credential chain (environment, az login, azd login)")
	}
	return buildCredential(plan, nil)
}

// DeviceCodePrompt receives the code the user must enter to sign in
type DeviceCodePrompt func(ctx context.Context, msg azidentity.DeviceCodeMessage) error

// NewInteractiveCredential builds the chain used by discovery: the developer
// chain followed by a device code login. Managed identity is never included,
// so discovery does not hang off Azure infrastructure. Token failures are
// reported as AuthenticationError
func NewInteractiveCredential(tenantID string, prompt DeviceCodePrompt) (azcore.TokenCredential, error) {
	plan := CredentialPlan{Kind: KindDeveloper, TenantID: tenantID, Interactive: true}
	cred, err := buildCredential(plan, prompt)
	if err != nil {
		return nil, err
	}
	return WithAuthenticationErrors(cred), nil
}

func buildCredential(plan CredentialPlan, prompt DeviceCodePrompt) (azcore.TokenCredential, error) {
	members, _, err := buildSources(plan, prompt)
	if err != nil {
		return nil, err
	}
	if plan.Kind != KindDeveloper {
		return members[0], nil
	}
	return azidentity.NewChainedTokenCredential(members, nil)
}

// buildSources constructs one credential per entry of plan.Sources and
// returns them with the names of the entries actually built
func buildSources(plan CredentialPlan, prompt DeviceCodePrompt) ([]azcore.TokenCredential, []string, error) {
	var (
		members []azcore.TokenCredential
		names   []string
	)

	for _, source := range plan.Sources() {
		var (
			cred azcore.TokenCredential
			err  error
		)

		switch source {
		case SourceEnvironment:
			// Left out of the chain when its variables are unset
			if cred, err = azidentity.NewEnvironmentCredential(nil); err != nil {
				continue
			}
		case SourceWorkloadIdentity:
			if cred, err = azidentity.NewWorkloadIdentityCredential(&azidentity.WorkloadIdentityCredentialOptions{TenantID: plan.TenantID}); err != nil {
				continue
			}
		case SourceAzureCLI:
			cred, err = azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{TenantID: plan.TenantID})
		case SourceAzureDeveloperCLI:
			cred, err = azidentity.NewAzureDeveloperCLICredential(&azidentity.AzureDeveloperCLICredentialOptions{TenantID: plan.TenantID})
		case SourceDeviceCode:
			cred, err = azidentity.NewDeviceCodeCredential(&azidentity.DeviceCodeCredentialOptions{
				TenantID:   plan.TenantID,
				UserPrompt: prompt,
			})
		case SourceManagedIdentity:
			var opts *azidentity.ManagedIdentityCredentialOptions
			if plan.ClientID != "" {
				opts = &azidentity.ManagedIdentityCredentialOptions{ID: azidentity.ClientID(plan.ClientID)}
			}
			cred, err = azidentity.NewManagedIdentityCredential(opts)
		default:
			return nil, nil, fmt.Errorf("unknown credential source %q", source)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create %s credential: %w", source, err)
		}

		members = append(members, cred)
		names = append(names, source)
	}

	if len(members) == 0 {
		return nil, nil, fmt.Errorf("no credential could be built for %s", plan.Method())
	}
	return members, names, nil
}

// authErrorCredential tags token failures so callers further up (ARM pagers,
// which wrap policy errors) can recognise them with errors.As
type authErrorCredential struct {
	inner azcore.TokenCredential
}

// WithAuthenticationErrors wraps cred so that any GetToken failure other than
// cancellation is returned as *errors.AuthenticationError
func WithAuthenticationErrors(cred azcore.TokenCredential) azcore.TokenCredential {
	return &authErrorCredential{inner: cred}
}

func (c *authErrorCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	tok, err := c.inner.GetToken(ctx, opts)
	if err == nil {
		return tok, nil
	}
	if ctx.Err() != nil {
		return tok, ctx.Err()
	}
	return tok, &apperrors.AuthenticationError{
		Suggestion: "Run 'az login' in a terminal or make sure cached developer credentials are available",
		Err:        err,
	}
}
