// Package discovery runs the setup wizard: it signs the user in with a device
// code login, then lists subscriptions, user-assigned identities and key
// vaults, reporting each step as an Event
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	log "github.com/sirupsen/logrus"

	"github.com/ylchen07/keyvault-identity-demo/internal/azure"
	apperrors "github.com/ylchen07/keyvault-identity-demo/internal/errors"
	"github.com/ylchen07/keyvault-identity-demo/internal/metrics"
	"github.com/ylchen07/keyvault-identity-demo/pkg/models"
)

// State is a discovery session state
type State string

const (
	StateIdle                     State = "idle"
	StateAuthenticating           State = "authenticating"
	StateEnumeratingSubscriptions State = "enumerating-subscriptions"
	StateEnumeratingIdentities    State = "enumerating-identities"
	StateEnumeratingKeyVaults     State = "enumerating-key-vaults"
	StateCompleted                State = "completed"
	StateFailed                   State = "failed"
	StateCancelled                State = "cancelled"
)

// Progress and error messages shown to the user
const (
	msgAuthenticating = "Authenticating with Azure (checking environment, az login and azd login, then device code sign-in)…"
	msgNoSubscription = "⚠ No subscriptions found. Ensure you are authenticated and have access to at least one subscription."
	msgIdentities     = "Enumerating User-Assigned Managed Identities…"
	msgKeyVaults      = "Enumerating Key Vaults…"
	msgAuthFailed     = "Authentication failed. Make sure you are logged in: run 'az login' in a terminal or complete the device code sign-in."
)

// DefaultDeviceCodeTimeout is how long a device code is assumed to stay valid
const DefaultDeviceCodeTimeout = 15 * time.Minute

// Sink receives events in the order they are produced. Push must be safe to
// call from more than one goroutine: the device code prompt runs on the
// credential's goroutine
type Sink interface {
	Push(Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event)

// Push calls f(ev)
func (f SinkFunc) Push(ev Event) {
	f(ev)
}

// CredentialFactory builds the interactive credential for a tenant hint
type CredentialFactory func(tenantID string, prompt azure.DeviceCodePrompt) (azcore.TokenCredential, error)

// Discoverer starts discovery sessions. It is safe for concurrent use; each
// Run owns its own session
type Discoverer struct {
	newCredential     CredentialFactory
	newClients        azure.ResourceClientsFactory
	metrics           *metrics.Metrics
	deviceCodeTimeout time.Duration
	now               func() time.Time
}

// Option configures a Discoverer
type Option func(*Discoverer)

// WithCredentialFactory replaces the credential constructor (for testing)
func WithCredentialFactory(f CredentialFactory) Option {
	return func(d *Discoverer) {
		d.newCredential = f
	}
}

// WithResourceClientsFactory replaces the ARM client constructor (for testing)
func WithResourceClientsFactory(f azure.ResourceClientsFactory) Option {
	return func(d *Discoverer) {
		d.newClients = f
	}
}

// WithMetrics records session outcomes and emitted events
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Discoverer) {
		d.metrics = m
	}
}

// WithDeviceCodeTimeout sets the validity used for DeviceCode.ExpiresAt
func WithDeviceCodeTimeout(timeout time.Duration) Option {
	return func(d *Discoverer) {
		if timeout > 0 {
			d.deviceCodeTimeout = timeout
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(d *Discoverer) {
		d.now = now
	}
}

// New creates a Discoverer backed by azidentity and Azure Resource Manager
func New(opts ...Option) *Discoverer {
	d := &Discoverer{
		newCredential:     azure.NewInteractiveCredential,
		newClients:        azure.NewResourceClients,
		deviceCodeTimeout: DefaultDeviceCodeTimeout,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// session holds the state of one Run
type session struct {
	*Discoverer
	sink       Sink
	tenantHint string
	state      State
	logger     *log.Entry

	activeSubscription *string
	detectedTenant     *string
}

// Run executes one discovery session, pushing events to sink, and returns the
// terminal state. Cancelling ctx stops the session at the next token request
// or page fetch; no events are pushed after cancellation is observed
func (d *Discoverer) Run(ctx context.Context, tenantHint string, sink Sink) State {
	s := &session{
		Discoverer: d,
		sink:       sink,
		tenantHint: tenantHint,
		state:      StateIdle,
		logger:     log.WithField("tenantHint", tenantHint),
	}

	err := s.run(ctx)
	switch {
	case err == nil:
		s.enter(StateCompleted)
	case ctx.Err() != nil || apperrors.IsCanceled(err):
		s.enter(StateCancelled)
		s.logger.Debug("Discovery cancelled by client")
	case apperrors.IsAuthentication(err):
		s.logger.WithError(err).Warn("Authentication failed during discovery")
		s.emit(ctx, Error{Message: msgAuthFailed})
		s.enter(StateFailed)
	default:
		s.logger.WithError(err).Error("Discovery error")
		s.emit(ctx, Error{Message: err.Error()})
		s.enter(StateFailed)
	}

	d.metrics.RecordDiscovery(string(s.state))
	return s.state
}

func (s *session) run(ctx context.Context) error {
	s.enter(StateAuthenticating)
	s.emit(ctx, Progress{Message: msgAuthenticating})

	cred, err := s.newCredential(s.tenantHint, s.prompt)
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	// Sign in before the first page fetch so a device code prompt is issued
	// from a single, visible step
	if _, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{azure.ManagementScope}}); err != nil {
		return err
	}

	clients, err := s.newClients(cred)
	if err != nil {
		return err
	}

	s.enter(StateEnumeratingSubscriptions)
	subs, err := s.subscriptions(ctx, clients)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		s.emit(ctx, Progress{Message: msgNoSubscription})
	}
	s.emit(ctx, Subscriptions{Data: subs})

	if s.activeSubscription != nil {
		if len(subs) > 1 {
			s.logger.WithField("subscriptions", len(subs)).
				Info("Only the first subscription is explored; the others are listed but not enumerated")
		}

		s.enter(StateEnumeratingIdentities)
		s.emit(ctx, Progress{Message: msgIdentities})
		ids, err := s.identities(ctx, clients, *s.activeSubscription)
		if err != nil {
			return err
		}
		s.emit(ctx, Identities{Data: ids})

		s.enter(StateEnumeratingKeyVaults)
		s.emit(ctx, Progress{Message: msgKeyVaults})
		vaults, err := s.vaults(ctx, clients, *s.activeSubscription)
		if err != nil {
			return err
		}
		s.emit(ctx, KeyVaults{Data: vaults})
	}

	tenant := s.detectedTenant
	if tenant == nil && s.tenantHint != "" {
		tenant = &s.tenantHint
	}
	s.emit(ctx, Complete{TenantID: tenant, SubscriptionID: s.activeSubscription})
	return nil
}

// prompt forwards the device code to the client
func (s *session) prompt(ctx context.Context, msg azidentity.DeviceCodeMessage) error {
	s.emit(ctx, DeviceCode{
		Code:            msg.UserCode,
		VerificationURL: msg.VerificationURL,
		Message:         msg.Message,
		ExpiresAt:       s.now().Add(s.deviceCodeTimeout).UTC(),
	})
	return nil
}

// subscriptions lists every subscription. The first one seen becomes the
// active subscription and its tenant the detected tenant
func (s *session) subscriptions(ctx context.Context, clients azure.ResourceClients) ([]models.Subscription, error) {
	subs := []models.Subscription{}
	pager := clients.Subscriptions()
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, sub := range page.Value {
			if sub == nil || sub.SubscriptionID == nil {
				continue
			}
			if s.activeSubscription == nil {
				s.activeSubscription = sub.SubscriptionID
				s.detectedTenant = sub.TenantID
			}
			subs = append(subs, models.Subscription{
				ID:       *sub.SubscriptionID,
				Name:     deref(sub.DisplayName),
				TenantID: deref(sub.TenantID),
			})
		}
	}
	s.logger.WithField("count", len(subs)).Debug("Listed subscriptions")
	return subs, nil
}

func (s *session) identities(ctx context.Context, clients azure.ResourceClients, subscriptionID string) ([]models.Identity, error) {
	pager, err := clients.Identities(subscriptionID)
	if err != nil {
		return nil, err
	}

	ids := []models.Identity{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range page.Value {
			if id == nil {
				continue
			}
			identity := models.Identity{
				Name:          deref(id.Name),
				ResourceGroup: ResourceGroupFromID(deref(id.ID)),
			}
			if id.Properties != nil {
				identity.ClientID = deref(id.Properties.ClientID)
				identity.PrincipalID = deref(id.Properties.PrincipalID)
			}
			ids = append(ids, identity)
		}
	}
	s.logger.WithField("count", len(ids)).Debug("Listed user-assigned identities")
	return ids, nil
}

func (s *session) vaults(ctx context.Context, clients azure.ResourceClients, subscriptionID string) ([]models.KeyVault, error) {
	pager, err := clients.Vaults(subscriptionID)
	if err != nil {
		return nil, err
	}

	vaults := []models.KeyVault{}
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, v := range page.Value {
			if v == nil {
				continue
			}
			name := deref(v.Name)
			vault := models.KeyVault{
				Name:          name,
				URL:           fmt.Sprintf("https://%s.vault.azure.net/", name),
				ResourceGroup: ResourceGroupFromID(deref(v.ID)),
				Location:      deref(v.Location),
			}
			if v.Properties != nil && v.Properties.VaultURI != nil && *v.Properties.VaultURI != "" {
				vault.URL = *v.Properties.VaultURI
			}
			vaults = append(vaults, vault)
		}
	}
	s.logger.WithField("count", len(vaults)).Debug("Listed key vaults")
	return vaults, nil
}

// emit pushes ev unless the session has been cancelled
func (s *session) emit(ctx context.Context, ev Event) {
	if ctx.Err() != nil {
		return
	}
	s.sink.Push(ev)
	s.metrics.RecordEvent(ev.Type())
}

func (s *session) enter(state State) {
	s.logger.WithFields(log.Fields{"from": s.state, "to": state}).Debug("Discovery state change")
	s.state = state
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
