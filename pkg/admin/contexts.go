package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultProtocol is used by Contexts.Create when none is given
const DefaultProtocol = "near"

// ContextsManager handles context lifecycle and storage endpoints
type ContextsManager struct {
	c *Client
}

// Create starts a new context running applicationID
func (m *ContextsManager) Create(ctx context.Context, req CreateContextRequest) (*CreatedContext, error) {
	if req.ApplicationID == "" {
		return nil, fmt.Errorf("application id is required")
	}
	if req.Protocol == "" {
		req.Protocol = DefaultProtocol
	}
	if req.InitializationParams == nil {
		req.InitializationParams = []interface{}{}
	}
	data, err := m.c.send(ctx, http.MethodPost, "/contexts", req)
	if err != nil {
		return nil, err
	}
	var out CreatedContext
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns every context on the node
func (m *ContextsManager) List(ctx context.Context) ([]Context, error) {
	data, err := m.c.get(ctx, "/contexts", nil)
	if err != nil {
		return nil, err
	}
	contexts := []Context{}
	if err := decode(listOf(data, "contexts"), &contexts); err != nil {
		return nil, err
	}
	return contexts, nil
}

// Get returns one context
func (m *ContextsManager) Get(ctx context.Context, contextID string) (*Context, error) {
	data, err := m.c.get(ctx, "/contexts/"+escape(contextID), nil)
	if err != nil {
		return nil, err
	}
	var out Context
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a context
func (m *ContextsManager) Delete(ctx context.Context, contextID string) error {
	_, err := m.c.send(ctx, http.MethodDelete, "/contexts/"+escape(contextID), nil)
	return err
}

// UpdateApplication switches the application a context runs
func (m *ContextsManager) UpdateApplication(ctx context.Context, contextID, applicationID string) error {
	payload := map[string]string{"applicationId": applicationID}
	_, err := m.c.send(ctx, http.MethodPut, "/contexts/"+escape(contextID)+"/application", payload)
	return err
}

// Storage returns the storage summary of a context
func (m *ContextsManager) Storage(ctx context.Context, contextID string) (json.RawMessage, error) {
	data, err := m.c.get(ctx, "/contexts/"+escape(contextID)+"/storage", nil)
	if err != nil {
		return nil, err
	}
	return raw(data), nil
}

// Value returns one storage value of a context
func (m *ContextsManager) Value(ctx context.Context, contextID, key string) (json.RawMessage, error) {
	data, err := m.c.get(ctx, "/contexts/"+escape(contextID)+"/storage/"+escape(key), nil)
	if err != nil {
		return nil, err
	}
	return raw(data), nil
}

// StorageEntries lists storage entries under prefix. A zero limit leaves it to the node.
func (m *ContextsManager) StorageEntries(ctx context.Context, contextID, prefix string, limit int) (json.RawMessage, error) {
	query := url.Values{}
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	data, err := m.c.get(ctx, "/contexts/"+escape(contextID)+"/storage/entries", query)
	if err != nil {
		return nil, err
	}
	return raw(data), nil
}

// ProxyContract returns the proxy contract of a context
func (m *ContextsManager) ProxyContract(ctx context.Context, contextID string) (json.RawMessage, error) {
	data, err := m.c.get(ctx, "/contexts/"+escape(contextID)+"/proxy-contract", nil)
	if err != nil {
		return nil, err
	}
	return raw(data), nil
}

// Sync triggers state sync for one context, or for all contexts when contextID is empty
func (m *ContextsManager) Sync(ctx context.Context, contextID string) error {
	path := "/contexts/sync"
	if contextID != "" {
		path = "/contexts/" + escape(contextID) + "/sync"
	}
	_, err := m.c.send(ctx, http.MethodPost, path, nil)
	return err
}

// Invite creates an invitation for inviteeID and returns the invitation payload
func (m *ContextsManager) Invite(ctx context.Context, contextID, inviterID, inviteeID, capability string) (json.RawMessage, error) {
	if capability == "" {
		capability = "member"
	}
	payload := map[string]string{
		"contextId":  contextID,
		"inviterId":  inviterID,
		"inviteeId":  inviteeID,
		"capability": capability,
	}
	data, err := m.c.send(ctx, http.MethodPost, "/contexts/invite", payload)
	if err != nil {
		return nil, err
	}
	return raw(data), nil
}

// Join accepts an invitation
func (m *ContextsManager) Join(ctx context.Context, contextID, inviterID, invitationPayload string) (json.RawMessage, error) {
	payload := map[string]string{
		"contextId":         contextID,
		"inviterId":         inviterID,
		"invitationPayload": invitationPayload,
	}
	data, err := m.c.send(ctx, http.MethodPost, "/contexts/join", payload)
	if err != nil {
		return nil, err
	}
	return raw(data), nil
}
