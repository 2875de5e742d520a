// Package errors defines the error taxonomy shared by secret retrieval and
// discovery. Every type unwraps to its cause so callers can use errors.As
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// ConfigurationError reports a missing or invalid input detected before any
// call to Azure is made
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("configuration error in field '%s': %s", e.Field, e.Message)
}

// AuthenticationError reports a failed sign-in against the identity provider
type AuthenticationError struct {
	Suggestion string
	Err        error
}

func (e *AuthenticationError) Error() string {
	msg := "authentication failed"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// AuthorizationError reports a 403 from the secret store
type AuthorizationError struct {
	Identity     string
	RequiredRole string
	Err          error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("access denied for identity %s (requires %s)", e.Identity, e.RequiredRole)
}

func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// NotFoundError reports a 404 from the secret store
type NotFoundError struct {
	Name string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("secret '%s' not found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// UnknownError wraps any other failure, transient or not
type UnknownError struct {
	Op  string
	Err error
}

func (e *UnknownError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnknownError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by an Azure response error, or 0
func StatusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

// IsForbidden reports whether err is an Azure 403
func IsForbidden(err error) bool {
	return StatusCode(err) == http.StatusForbidden
}

// IsNotFound reports whether err is an Azure 404
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsAuthentication reports whether err originated from credential acquisition
func IsAuthentication(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

// IsCanceled reports whether err is the result of caller cancellation.
// Cancellation is not a failure and must not be surfaced to users
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
