// Package clipboard copies retrieved secrets to the system clipboard
package clipboard

import (
	"context"
	"fmt"

	"github.com/gopasspw/clipboard"
)

// Copy writes a secret to the system clipboard. WritePassword marks the
// entry as sensitive on platforms that support it
func Copy(ctx context.Context, secret string) error {
	if !IsAvailable() {
		return fmt.Errorf("clipboard is not available on this system")
	}
	if err := clipboard.WritePassword(ctx, []byte(secret)); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

// IsAvailable checks if clipboard functionality is available
func IsAvailable() bool {
	return !clipboard.IsUnsupported()
}
