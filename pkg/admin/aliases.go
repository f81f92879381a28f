package admin

import (
	"context"
	"fmt"
	"net/http"
)

// AliasesManager handles name aliases
type AliasesManager struct {
	c *Client
}

// CreateContextAlias names a context
func (m *AliasesManager) CreateContextAlias(ctx context.Context, name, contextID string) error {
	return m.create(ctx, Alias{Name: name, Kind: AliasContext, ContextID: contextID})
}

// CreateApplicationAlias names an application
func (m *AliasesManager) CreateApplicationAlias(ctx context.Context, name, applicationID string) error {
	return m.create(ctx, Alias{Name: name, Kind: AliasApplication, ApplicationID: applicationID})
}

// CreateIdentityAlias names an identity within a context
func (m *AliasesManager) CreateIdentityAlias(ctx context.Context, name, contextID, identityID string) error {
	return m.create(ctx, Alias{Name: name, Kind: AliasIdentity, ContextID: contextID, IdentityID: identityID})
}

func (m *AliasesManager) create(ctx context.Context, alias Alias) error {
	if alias.Name == "" {
		return fmt.Errorf("alias name is required")
	}
	_, err := m.c.send(ctx, http.MethodPost, "/aliases", alias)
	return err
}

// Lookup resolves an alias by name
func (m *AliasesManager) Lookup(ctx context.Context, name string) (*Alias, error) {
	data, err := m.c.get(ctx, "/aliases/"+escape(name), nil)
	if err != nil {
		return nil, err
	}
	var out Alias
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	if out.Name == "" {
		out.Name = name
	}
	return &out, nil
}

// ListContextAliases returns every context alias
func (m *AliasesManager) ListContextAliases(ctx context.Context) ([]Alias, error) {
	return m.list(ctx, "/aliases/contexts", AliasContext)
}

// ListApplicationAliases returns every application alias
func (m *AliasesManager) ListApplicationAliases(ctx context.Context) ([]Alias, error) {
	return m.list(ctx, "/aliases/applications", AliasApplication)
}

// ListIdentityAliases returns the identity aliases of a context
func (m *AliasesManager) ListIdentityAliases(ctx context.Context, contextID string) ([]Alias, error) {
	return m.list(ctx, "/aliases/contexts/"+escape(contextID)+"/identities", AliasIdentity)
}

func (m *AliasesManager) list(ctx context.Context, path string, kind AliasKind) ([]Alias, error) {
	data, err := m.c.get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	aliases := []Alias{}
	if err := decode(listOf(data, "aliases"), &aliases); err != nil {
		return nil, err
	}
	for i := range aliases {
		if aliases[i].Kind == "" {
			aliases[i].Kind = kind
		}
	}
	return aliases, nil
}

// Delete removes an alias
func (m *AliasesManager) Delete(ctx context.Context, name string) error {
	_, err := m.c.send(ctx, http.MethodDelete, "/aliases/"+escape(name), nil)
	return err
}
