// Package runtimeconfig holds the live configuration that the discovery
// wizard and the credential-mode toggle can change without a restart
package runtimeconfig

import (
	"strings"
	"sync"

	"github.com/ylchen07/keyvault-identity-demo/internal/config"
	"github.com/ylchen07/keyvault-identity-demo/pkg/models"
)

// State is safe for concurrent use. A single mutex guards every field, so a
// snapshot always reflects one complete mutation or none of it
type State struct {
	mu sync.Mutex

	keyVaultURL          string
	expectedUamiClientID string
	tenantID             string
	useManagedIdentity   bool
}

// New seeds state from loaded configuration. Blank values and unfilled
// placeholders start absent
func New(cfg *config.Config) *State {
	s := &State{useManagedIdentity: cfg.UseManagedIdentity()}
	if config.IsReal(cfg.Azure.KeyVaultURL) {
		s.keyVaultURL = NormalizeVaultURL(cfg.Azure.KeyVaultURL)
	}
	s.expectedUamiClientID = strings.TrimSpace(config.RealOrEmpty(cfg.Azure.ExpectedUamiClientID))
	s.tenantID = strings.TrimSpace(config.RealOrEmpty(cfg.Azure.TenantID))
	return s
}

// Snapshot returns a consistent copy of the current configuration
func (s *State) Snapshot() models.ConfigSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return models.ConfigSnapshot{
		KeyVaultURL:          s.keyVaultURL,
		ExpectedUamiClientID: s.expectedUamiClientID,
		TenantID:             s.tenantID,
		UseManagedIdentity:   s.useManagedIdentity,
		ValidationEnabled:    s.expectedUamiClientID != "",
		IsConfigured:         s.keyVaultURL != "" && s.expectedUamiClientID != "",
	}
}

// SetCredentialMode switches between managed identity and the local developer chain
func (s *State) SetCredentialMode(useManagedIdentity bool) {
	s.mu.Lock()
	s.useManagedIdentity = useManagedIdentity
	s.mu.Unlock()
}

// Apply merges the given values into the state. A nil or blank input leaves
// the corresponding field unchanged; nothing here ever clears a value
func (s *State) Apply(req models.ApplyConfigRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := present(req.KeyVaultURL); ok {
		s.keyVaultURL = NormalizeVaultURL(v)
	}
	if v, ok := present(req.ExpectedUamiClientID); ok {
		s.expectedUamiClientID = v
	}
	if v, ok := present(req.TenantID); ok {
		s.tenantID = v
	}
	if req.UseManagedIdentity != nil {
		s.useManagedIdentity = *req.UseManagedIdentity
	}
}

func present(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*v)
	return trimmed, trimmed != ""
}

// NormalizeVaultURL trims whitespace and ensures exactly one trailing slash.
// Blank input yields ""
func NormalizeVaultURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	return strings.TrimRight(u, "/") + "/"
}
