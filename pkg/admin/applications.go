package admin

import (
	"context"
	"fmt"
	"net/http"
)

const defaultApplicationStatus = "installed"

// ApplicationsManager handles application install and listing
type ApplicationsManager struct {
	c *Client
}

// InstallDev installs an application from a path on the node's filesystem
func (m *ApplicationsManager) InstallDev(ctx context.Context, req InstallDevApplicationRequest) (string, error) {
	if req.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	if req.Metadata == nil {
		req.Metadata = Bytes{}
	}
	return m.install(ctx, "/install-dev-application", req)
}

// Install installs an application from a URL. Hash is optional.
func (m *ApplicationsManager) Install(ctx context.Context, req InstallApplicationRequest) (string, error) {
	if req.URL == "" {
		return "", fmt.Errorf("url is required")
	}
	if req.Metadata == nil {
		req.Metadata = Bytes{}
	}
	return m.install(ctx, "/install-application", req)
}

func (m *ApplicationsManager) install(ctx context.Context, path string, payload interface{}) (string, error) {
	data, err := m.c.send(ctx, http.MethodPost, path, payload)
	if err != nil {
		return "", err
	}
	id := data.Get("applicationId").String()
	if id == "" {
		return "", fmt.Errorf("install response without applicationId")
	}
	return id, nil
}

// List returns the installed applications
func (m *ApplicationsManager) List(ctx context.Context) ([]Application, error) {
	data, err := m.c.get(ctx, "/applications", nil)
	if err != nil {
		return nil, err
	}
	apps := []Application{}
	if err := decode(listOf(data, "apps"), &apps); err != nil {
		return nil, err
	}
	for i := range apps {
		if apps[i].Status == "" {
			apps[i].Status = defaultApplicationStatus
		}
	}
	return apps, nil
}

// Get returns one application
func (m *ApplicationsManager) Get(ctx context.Context, applicationID string) (*Application, error) {
	data, err := m.c.get(ctx, "/applications/"+escape(applicationID), nil)
	if err != nil {
		return nil, err
	}
	var app Application
	if err := decode(data, &app); err != nil {
		return nil, err
	}
	if app.Status == "" {
		app.Status = defaultApplicationStatus
	}
	return &app, nil
}

// Uninstall removes an application
func (m *ApplicationsManager) Uninstall(ctx context.Context, applicationID string) error {
	_, err := m.c.send(ctx, http.MethodDelete, "/applications/"+escape(applicationID), nil)
	return err
}
