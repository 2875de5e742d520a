package discovery

import "strings"

// ResourceGroupFromID returns the segment following "resourceGroups" in an
// Azure resource id, or nil when the id is empty or has no such segment
func ResourceGroupFromID(id string) *string {
	if id == "" {
		return nil
	}
	parts := strings.Split(id, "/")
	for i, p := range parts {
		if !strings.EqualFold(p, "resourceGroups") {
			continue
		}
		if i+1 < len(parts) && parts[i+1] != "" {
			rg := parts[i+1]
			return &rg
		}
		return nil
	}
	return nil
}
