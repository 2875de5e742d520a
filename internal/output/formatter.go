package output

import (
	"github.com/ylchen07/keyvault-identity-demo/internal/discovery"
	"github.com/ylchen07/keyvault-identity-demo/pkg/models"
)

// Format represents the output format type
type Format string

const (
	// FormatPlain is human readable text
	FormatPlain Format = "plain"
	// FormatJSON is JSON format
	FormatJSON Format = "json"
)

// Formatter formats data for terminal output
type Formatter interface {
	FormatSnapshot(snap models.ConfigSnapshot) (string, error)
	FormatResult(result models.SecretResult) (string, error)
	FormatEvent(ev discovery.Event) (string, error)
}
