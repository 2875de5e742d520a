package secrets

import (
	"fmt"

	"github.com/ylchen07/keyvault-identity-demo/internal/azure"
)

const fetchTail = `
client, err := azsecrets.NewClient(%q, cred, nil)
if err != nil {
	return err
}

resp, err := client.GetSecret(ctx, %q, "", nil)
if err != nil {
	return err
}
fmt.Println(*resp.Value)
`

const developerChain = `cli, err := azidentity.NewAzureCLICredential(nil)
if err != nil {
	return err
}
azd, err := azidentity.NewAzureDeveloperCLICredential(nil)
if err != nil {
	return err
}
cred, err := azidentity.NewChainedTokenCredential([]azcore.TokenCredential{cli, azd}, nil)
if err != nil {
	return err
}
`

// Snippet renders the Go code equivalent to the credential path that plan
// selects, so users can copy it into their own workload. identity is the
// client id the caller sent, which the developer chain does not use
func Snippet(plan azure.CredentialPlan, identity, vaultURL, secretName string) string {
	if vaultURL == "" {
		vaultURL = "https://<vault-name>.vault.azure.net/"
	}

	var head string
	switch plan.Kind {
	case azure.KindUserAssigned:
		head = fmt.Sprintf(`// Using a user-assigned managed identity
cred, err := azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
	ID: azidentity.ClientID(%q),
})
if err != nil {
	return err
}
`, plan.ClientID)
	case azure.KindSystemAssigned:
		head = `// Using the system-assigned managed identity
cred, err := azidentity.NewManagedIdentityCredential(nil)
if err != nil {
	return err
}
`
	default:
		if identity != "" {
			head = fmt.Sprintf(`// Using developer credentials (environment, az login, azd login).
// The requested identity %[1]q is not used here: the developer chain has no
// managed identity. With managed identity switched on it becomes:
//
//	azidentity.NewManagedIdentityCredential(&azidentity.ManagedIdentityCredentialOptions{
//		ID: azidentity.ClientID(%[1]q),
//	})
`, identity) + developerChain
			break
		}
		head = `// Using developer credentials (environment, az login, azd login).
// Managed identity is not part of this chain.
` + developerChain
	}

	return head + fmt.Sprintf(fetchTail, vaultURL, secretName)
}
