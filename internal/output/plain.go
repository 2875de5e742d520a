package output

import (
	"fmt"
	"strings"

	"github.com/ylchen07/keyvault-identity-demo/internal/discovery"
	"github.com/ylchen07/keyvault-identity-demo/pkg/models"
)

// PlainFormatter outputs human readable text
type PlainFormatter struct{}

// NewPlainFormatter creates a new plain text formatter
func NewPlainFormatter() *PlainFormatter {
	return &PlainFormatter{}
}

// FormatSnapshot formats a snapshot as one "key: value" pair per line
func (f *PlainFormatter) FormatSnapshot(snap models.ConfigSnapshot) (string, error) {
	lines := []string{
		"Key Vault URL:        " + orUnset(snap.KeyVaultURL),
		"Expected UAMI:        " + orUnset(snap.ExpectedUamiClientID),
		"Tenant:               " + orUnset(snap.TenantID),
		fmt.Sprintf("Managed identity:     %t", snap.UseManagedIdentity),
		fmt.Sprintf("Identity validation:  %t", snap.ValidationEnabled),
		fmt.Sprintf("Configured:           %t", snap.IsConfigured),
	}
	return strings.Join(lines, "\n"), nil
}

// FormatResult prints the secret value on success, otherwise the error and
// the credential that was used
func (f *PlainFormatter) FormatResult(result models.SecretResult) (string, error) {
	if result.Success {
		return result.SecretValue, nil
	}
	return fmt.Sprintf("Error: %s\nCredential: %s\nIdentity: %s",
		result.ErrorMessage, result.CredentialMethod, result.IdentityUsed), nil
}

// FormatEvent renders one discovery event. List events print one item per
// line, tab separated
func (f *PlainFormatter) FormatEvent(ev discovery.Event) (string, error) {
	switch e := ev.(type) {
	case discovery.DeviceCode:
		return fmt.Sprintf("%s\n(code %s expires at %s)", e.Message, e.Code, e.ExpiresAt.Local().Format("15:04:05")), nil
	case discovery.Progress:
		return e.Message, nil
	case discovery.Subscriptions:
		lines := []string{fmt.Sprintf("Subscriptions (%d):", len(e.Data))}
		for _, s := range e.Data {
			lines = append(lines, fmt.Sprintf("  %s\t%s\t%s", s.ID, s.Name, s.TenantID))
		}
		return strings.Join(lines, "\n"), nil
	case discovery.Identities:
		lines := []string{fmt.Sprintf("User-assigned identities (%d):", len(e.Data))}
		for _, id := range e.Data {
			lines = append(lines, fmt.Sprintf("  %s\t%s\t%s", id.Name, id.ClientID, deref(id.ResourceGroup)))
		}
		return strings.Join(lines, "\n"), nil
	case discovery.KeyVaults:
		lines := []string{fmt.Sprintf("Key vaults (%d):", len(e.Data))}
		for _, kv := range e.Data {
			lines = append(lines, fmt.Sprintf("  %s\t%s\t%s", kv.Name, kv.URL, deref(kv.ResourceGroup)))
		}
		return strings.Join(lines, "\n"), nil
	case discovery.Complete:
		return fmt.Sprintf("Discovery complete (tenant: %s, subscription: %s)",
			orUnset(deref(e.TenantID)), orUnset(deref(e.SubscriptionID))), nil
	case discovery.Error:
		return "Error: " + e.Message, nil
	default:
		return "", fmt.Errorf("unknown event type: %s", ev.Type())
	}
}

func orUnset(v string) string {
	if v == "" {
		return "(not set)"
	}
	return v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
