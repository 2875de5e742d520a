package output

import (
	"encoding/json"

	"github.com/ylchen07/keyvault-identity-demo/internal/discovery"
	"github.com/ylchen07/keyvault-identity-demo/pkg/models"
)

// JSONFormatter outputs JSON format
type JSONFormatter struct{}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

// FormatSnapshot formats a configuration snapshot as indented JSON
func (f *JSONFormatter) FormatSnapshot(snap models.ConfigSnapshot) (string, error) {
	return indent(snap)
}

// FormatResult formats a retrieval result as indented JSON
func (f *JSONFormatter) FormatResult(result models.SecretResult) (string, error) {
	return indent(result)
}

// FormatEvent formats a discovery event as one line of JSON, the same
// payload the event stream carries
func (f *JSONFormatter) FormatEvent(ev discovery.Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func indent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
