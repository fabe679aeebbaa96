package tenant

import "context"

const CapabilityPriorityRequests = "priority_requests"

// CapabilityChecker answers subscription-tier questions owned by another system.
type CapabilityChecker interface {
	Allows(ctx context.Context, orgID, capability string) bool
}

// StaticCapabilities is a config-driven checker.
type StaticCapabilities struct {
	allowAll bool
	allowed  map[string]bool
}

func NewStaticCapabilities(allowAll bool, orgIDs []string) *StaticCapabilities {
	allowed := make(map[string]bool, len(orgIDs))
	for _, id := range orgIDs {
		allowed[id] = true
	}
	return &StaticCapabilities{allowAll: allowAll, allowed: allowed}
}

func (c *StaticCapabilities) Allows(_ context.Context, orgID, capability string) bool {
	if capability != CapabilityPriorityRequests {
		return false
	}
	return c.allowAll || c.allowed[orgID]
}
