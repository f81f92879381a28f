package admin

import (
	"context"
	"net/http"
)

// IdentitiesManager handles context identities
type IdentitiesManager struct {
	c *Client
}

// Generate creates a new identity key pair on the node
func (m *IdentitiesManager) Generate(ctx context.Context) (*Identity, error) {
	data, err := m.c.send(ctx, http.MethodPost, "/identity/context", nil)
	if err != nil {
		return nil, err
	}
	var out Identity
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListInContext returns the member identities of a context
func (m *IdentitiesManager) ListInContext(ctx context.Context, contextID string) ([]Identity, error) {
	data, err := m.c.get(ctx, "/contexts/"+escape(contextID)+"/identities", nil)
	if err != nil {
		return nil, err
	}
	identities := []Identity{}
	if err := decode(listOf(data, "identities"), &identities); err != nil {
		return nil, err
	}
	return identities, nil
}
