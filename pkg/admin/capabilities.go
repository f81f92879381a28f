package admin

import (
	"context"
	"net/http"
)

// CapabilitiesManager grants and revokes context capabilities
type CapabilitiesManager struct {
	c *Client
}

// Grant gives granteeID the capability in contextID
func (m *CapabilitiesManager) Grant(ctx context.Context, contextID, granterID, granteeID, capability string) error {
	payload := map[string]string{
		"contextId":  contextID,
		"granterId":  granterID,
		"granteeId":  granteeID,
		"capability": capability,
	}
	_, err := m.c.send(ctx, http.MethodPost, "/contexts/"+escape(contextID)+"/capabilities/grant", payload)
	return err
}

// Revoke removes the capability from revokeeID in contextID
func (m *CapabilitiesManager) Revoke(ctx context.Context, contextID, revokerID, revokeeID, capability string) error {
	payload := map[string]string{
		"contextId":  contextID,
		"revokerId":  revokerID,
		"revokeeId":  revokeeID,
		"capability": capability,
	}
	_, err := m.c.send(ctx, http.MethodPost, "/contexts/"+escape(contextID)+"/capabilities/revoke", payload)
	return err
}
