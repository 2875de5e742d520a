// Package secrets performs a single Key Vault secret fetch using the
// credential selected by the runtime configuration, and reports every
// outcome as a uniform result
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	log "github.com/sirupsen/logrus"

	"github.com/ylchen07/keyvault-identity-demo/internal/azure"
	apperrors "github.com/ylchen07/keyvault-identity-demo/internal/errors"
	"github.com/ylchen07/keyvault-identity-demo/internal/logging"
	"github.com/ylchen07/keyvault-identity-demo/internal/metrics"
	"github.com/ylchen07/keyvault-identity-demo/internal/runtimeconfig"
	"github.com/ylchen07/keyvault-identity-demo/pkg/models"
)

// RequiredRole is the RBAC role a managed identity needs to read secrets
const RequiredRole = "Key Vault Secrets User"

// CredentialFactory builds the token credential for a plan
type CredentialFactory func(plan azure.CredentialPlan) (azcore.TokenCredential, error)

// Retriever fetches secrets. It holds no per-request state and is safe for
// concurrent use
type Retriever struct {
	newCredential  CredentialFactory
	newClient      azure.SecretClientFactory
	metrics        *metrics.Metrics
	strictIdentity bool
}

// Option configures a Retriever
type Option func(*Retriever)

// WithCredentialFactory replaces the credential constructor (for testing)
func WithCredentialFactory(f CredentialFactory) Option {
	return func(r *Retriever) {
		r.newCredential = f
	}
}

// WithSecretClientFactory replaces the Key Vault client constructor (for testing)
func WithSecretClientFactory(f azure.SecretClientFactory) Option {
	return func(r *Retriever) {
		r.newClient = f
	}
}

// WithMetrics records retrieval outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Retriever) {
		r.metrics = m
	}
}

// WithStrictIdentityValidation rejects requests whose identity differs from
// the configured expected identity
func WithStrictIdentityValidation(enabled bool) Option {
	return func(r *Retriever) {
		r.strictIdentity = enabled
	}
}

// New creates a Retriever backed by azidentity and azsecrets
func New(opts ...Option) *Retriever {
	r := &Retriever{
		newCredential: azure.NewCredential,
		newClient:     azure.NewSecretClient,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// attempt is the resolved form of one request
type attempt struct {
	secretName string
	identity   string
	vaultURL   string
	plan       azure.CredentialPlan
}

// Retrieve resolves the effective vault and credential for req against the
// given configuration snapshot and issues exactly one GetSecret call. Errors
// never escape: every outcome is a SecretResult
func (r *Retriever) Retrieve(ctx context.Context, req models.SecretRequest, snap models.ConfigSnapshot) models.SecretResult {
	start := time.Now()

	vaultURL := runtimeconfig.NormalizeVaultURL(req.KeyVaultURL)
	if vaultURL == "" {
		vaultURL = runtimeconfig.NormalizeVaultURL(snap.KeyVaultURL)
	}

	identity := strings.TrimSpace(req.ManagedIdentityID)
	a := attempt{
		secretName: strings.TrimSpace(req.SecretName),
		identity:   identity,
		vaultURL:   vaultURL,
		plan:       azure.PlanCredential(snap.UseManagedIdentity, identity, snap.TenantID),
	}

	value, err := r.fetch(ctx, a, snap)
	result := a.result(value, err)

	logger := log.WithFields(log.Fields{
		"value":      logging.Secret(value),
		"secret":     a.secretName,
		"credential": a.plan.Method(),
		"identity":   logging.OrDefault(a.identity, "default"),
		"vault":      a.vaultURL,
	})
	outcome := outcomeOf(err)
	switch outcome {
	case metrics.OutcomeSuccess:
		logger.Info("Retrieved secret")
	case metrics.OutcomeDenied, metrics.OutcomeNotFound, metrics.OutcomeConfig:
		logger.Warn(result.ErrorMessage)
	default:
		if apperrors.IsCanceled(err) {
			logger.Debug("Secret retrieval cancelled by caller")
		} else {
			logger.WithError(err).Error("Error retrieving secret")
		}
	}
	r.metrics.RecordRetrieval(outcome, a.plan.Method(), time.Since(start))

	return result
}

func (r *Retriever) fetch(ctx context.Context, a attempt, snap models.ConfigSnapshot) (string, error) {
	if a.vaultURL == "" {
		return "", &apperrors.ConfigurationError{
			Field:   "keyVaultUrl",
			Message: "Key Vault URL is not configured. Use the Setup wizard or set the KEYVAULT_DEMO_AZURE_KEY_VAULT_URL environment variable.",
		}
	}
	if a.secretName == "" {
		return "", &apperrors.ConfigurationError{Field: "secretName", Message: "Secret name cannot be empty."}
	}
	if err := r.checkIdentity(a, snap); err != nil {
		return "", err
	}

	cred, err := r.newCredential(a.plan)
	if err != nil {
		return "", &apperrors.UnknownError{Op: "create credential", Err: err}
	}
	client, err := r.newClient(a.vaultURL, cred)
	if err != nil {
		return "", &apperrors.UnknownError{Op: "create client", Err: err}
	}

	resp, err := client.GetSecret(ctx, a.secretName, "", nil)
	switch {
	case err == nil:
	case apperrors.IsForbidden(err):
		return "", &apperrors.AuthorizationError{Identity: a.identityLabel(false), RequiredRole: RequiredRole, Err: err}
	case apperrors.IsNotFound(err):
		return "", &apperrors.NotFoundError{Name: a.secretName, Err: err}
	default:
		return "", &apperrors.UnknownError{Op: "get secret", Err: err}
	}

	if resp.Value == nil {
		return "", &apperrors.UnknownError{Op: "get secret", Err: errors.New("secret has no value")}
	}
	return *resp.Value, nil
}

// checkIdentity enforces the expected identity only when strict validation is
// switched on. By default any supplied identity is allowed
func (r *Retriever) checkIdentity(a attempt, snap models.ConfigSnapshot) error {
	if !r.strictIdentity || snap.ExpectedUamiClientID == "" || a.identity == "" {
		return nil
	}
	if strings.EqualFold(a.identity, strings.TrimSpace(snap.ExpectedUamiClientID)) {
		return nil
	}
	return &apperrors.ConfigurationError{
		Field: "managedIdentityId",
		Message: fmt.Sprintf("UAMI Client ID '%s' does not match the identity configured for this application. "+
			"Only the authorised UAMI may access this Key Vault.", a.identity),
	}
}

func (a attempt) result(value string, err error) models.SecretResult {
	res := models.SecretResult{
		CredentialMethod: a.plan.Method(),
		IdentityUsed:     a.identityLabel(err == nil),
		CodeSnippet:      Snippet(a.plan, a.identity, a.vaultURL, a.secretName),
		RequestInput:     a.echo(),
	}
	if err == nil {
		res.Success = true
		res.SecretValue = value
		return res
	}
	res.ErrorMessage = messageFor(err, a)
	return res
}

func (a attempt) identityLabel(success bool) string {
	switch {
	case a.identity != "":
		return a.identity
	case success:
		return "System-assigned (default)"
	default:
		return "system-assigned"
	}
}

// echo serializes the resolved inputs for display
func (a attempt) echo() string {
	input := struct {
		SecretName        string `json:"secretName"`
		ManagedIdentityID string `json:"managedIdentityId"`
		KeyVaultURL       string `json:"keyVaultUrl"`
		CredentialMode    string `json:"credentialMode"`
	}{
		SecretName:        a.secretName,
		ManagedIdentityID: logging.OrDefault(a.identity, "(system-assigned)"),
		KeyVaultURL:       logging.OrDefault(a.vaultURL, "(not configured)"),
		CredentialMode:    a.plan.Method(),
	}
	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func messageFor(err error, a attempt) string {
	var (
		cfgErr   *apperrors.ConfigurationError
		authzErr *apperrors.AuthorizationError
		nfErr    *apperrors.NotFoundError
		unknown  *apperrors.UnknownError
	)
	switch {
	case errors.As(err, &cfgErr):
		return cfgErr.Message
	case errors.As(err, &authzErr):
		return fmt.Sprintf("Access denied (403). Ensure the UAMI (ID: %s) has the '%s' role on the vault.",
			authzErr.Identity, authzErr.RequiredRole)
	case errors.As(err, &nfErr):
		return fmt.Sprintf("Secret '%s' not found in Key Vault.", nfErr.Name)
	case errors.As(err, &unknown):
		return fmt.Sprintf("Error retrieving secret: %v", unknown.Err)
	default:
		return fmt.Sprintf("Error retrieving secret: %v", err)
	}
}

func outcomeOf(err error) string {
	var (
		cfgErr   *apperrors.ConfigurationError
		authzErr *apperrors.AuthorizationError
		nfErr    *apperrors.NotFoundError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &cfgErr):
		return metrics.OutcomeConfig
	case errors.As(err, &authzErr):
		return metrics.OutcomeDenied
	case errors.As(err, &nfErr):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeUnknownError
	}
}
