package admin

import (
	"context"
	"fmt"
	"net/http"
)

// BlobsManager handles blob storage
type BlobsManager struct {
	c *Client
}

// Upload stores data with optional metadata and returns the blob id
func (m *BlobsManager) Upload(ctx context.Context, data, metadata []byte) (string, error) {
	if metadata == nil {
		metadata = []byte{}
	}
	payload := struct {
		Data     Bytes `json:"data"`
		Metadata Bytes `json:"metadata"`
	}{Data: data, Metadata: metadata}

	result, err := m.c.send(ctx, http.MethodPost, "/blobs", payload)
	if err != nil {
		return "", err
	}
	id := result.Get("blobId").String()
	if id == "" {
		id = result.Get("blob_id").String()
	}
	if id == "" {
		return "", fmt.Errorf("upload response without blobId")
	}
	return id, nil
}

// Download returns the blob contents
func (m *BlobsManager) Download(ctx context.Context, blobID string) ([]byte, error) {
	data, err := m.c.get(ctx, "/blobs/"+escape(blobID), nil)
	if err != nil {
		return nil, err
	}
	var out Bytes
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// List returns every stored blob
func (m *BlobsManager) List(ctx context.Context) ([]Blob, error) {
	data, err := m.c.get(ctx, "/blobs", nil)
	if err != nil {
		return nil, err
	}
	blobs := []Blob{}
	if err := decode(listOf(data, "blobs"), &blobs); err != nil {
		return nil, err
	}
	return blobs, nil
}

// Info returns blob metadata without its contents
func (m *BlobsManager) Info(ctx context.Context, blobID string) (*Blob, error) {
	data, err := m.c.get(ctx, "/blobs/"+escape(blobID)+"/info", nil)
	if err != nil {
		return nil, err
	}
	var out Blob
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a blob
func (m *BlobsManager) Delete(ctx context.Context, blobID string) error {
	_, err := m.c.send(ctx, http.MethodDelete, "/blobs/"+escape(blobID), nil)
	return err
}
