package discovery

import (
	"encoding/json"
	"time"

	"github.com/ylchen07/keyvault-identity-demo/pkg/models"
)

// Event type discriminators as they appear on the wire
const (
	TypeDeviceCode    = "device-code"
	TypeProgress      = "progress"
	TypeSubscriptions = "subscriptions"
	TypeIdentities    = "identities"
	TypeKeyVaults     = "key-vaults"
	TypeComplete      = "complete"
	TypeError         = "error"
)

// Event is one message in a discovery stream. The set of implementations is
// closed: DeviceCode, Progress, Subscriptions, Identities, KeyVaults, Complete
// and Error
type Event interface {
	Type() string
	isEvent()
}

// DeviceCode asks the user to sign in on another device
type DeviceCode struct {
	Code            string    `json:"code"`
	VerificationURL string    `json:"verificationUrl"`
	Message         string    `json:"message"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// Progress is a human readable status line
type Progress struct {
	Message string `json:"message"`
}

// Subscriptions lists every subscription the user can see
type Subscriptions struct {
	Data []models.Subscription `json:"data"`
}

// Identities lists the user-assigned identities in the active subscription
type Identities struct {
	Data []models.Identity `json:"data"`
}

// KeyVaults lists the vaults in the active subscription
type KeyVaults struct {
	Data []models.KeyVault `json:"data"`
}

// Complete ends a successful session. SubscriptionID is nil when no
// subscription was found
type Complete struct {
	TenantID       *string `json:"tenantId"`
	SubscriptionID *string `json:"subscriptionId"`
}

// Error ends a failed session
type Error struct {
	Message string `json:"message"`
}

func (DeviceCode) Type() string    { return TypeDeviceCode }
func (Progress) Type() string      { return TypeProgress }
func (Subscriptions) Type() string { return TypeSubscriptions }
func (Identities) Type() string    { return TypeIdentities }
func (KeyVaults) Type() string     { return TypeKeyVaults }
func (Complete) Type() string      { return TypeComplete }
func (Error) Type() string         { return TypeError }

func (DeviceCode) isEvent()    {}
func (Progress) isEvent()      {}
func (Subscriptions) isEvent() {}
func (Identities) isEvent()    {}
func (KeyVaults) isEvent()     {}
func (Complete) isEvent()      {}
func (Error) isEvent()         {}

func (e DeviceCode) MarshalJSON() ([]byte, error) {
	type alias DeviceCode
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{e.Type(), alias(e)})
}

func (e Progress) MarshalJSON() ([]byte, error) {
	type alias Progress
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{e.Type(), alias(e)})
}

func (e Subscriptions) MarshalJSON() ([]byte, error) {
	type alias Subscriptions
	if e.Data == nil {
		e.Data = []models.Subscription{}
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{e.Type(), alias(e)})
}

func (e Identities) MarshalJSON() ([]byte, error) {
	type alias Identities
	if e.Data == nil {
		e.Data = []models.Identity{}
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{e.Type(), alias(e)})
}

func (e KeyVaults) MarshalJSON() ([]byte, error) {
	type alias KeyVaults
	if e.Data == nil {
		e.Data = []models.KeyVault{}
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{e.Type(), alias(e)})
}

func (e Complete) MarshalJSON() ([]byte, error) {
	type alias Complete
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{e.Type(), alias(e)})
}

func (e Error) MarshalJSON() ([]byte, error) {
	type alias Error
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{e.Type(), alias(e)})
}
