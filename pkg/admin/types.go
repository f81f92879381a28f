package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Timestamp holds a time value as the node sent it. The node uses both
// strings and integer epochs.
type Timestamp string

// UnmarshalJSON accepts a JSON string or number
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Timestamp(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid timestamp %s", string(data))
	}
	*t = Timestamp(n.String())
	return nil
}

// Bytes is binary data carried as a JSON array of byte values
type Bytes []byte

// MarshalJSON encodes b as an array of numbers
func (b Bytes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(v)))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts an array of numbers, or a string taken verbatim
func (b *Bytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*b = nil
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = Bytes(s)
		return nil
	}
	var values []int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("invalid byte array: %w", err)
	}
	out := make(Bytes, len(values))
	for i, v := range values {
		if v < 0 || v > 255 {
			return fmt.Errorf("invalid byte value %d at index %d", v, i)
		}
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// Context is a running application instance on the node
type Context struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	Protocol      string    `json:"protocol,omitempty"`
	Status        string    `json:"status,omitempty"`
	CreatedAt     Timestamp `json:"createdAt,omitempty"`
	MemberCount   int       `json:"memberCount,omitempty"`
}

// CreateContextRequest is the payload of Contexts.Create
type CreateContextRequest struct {
	ApplicationID        string        `json:"applicationId"`
	Protocol             string        `json:"protocol"`
	InitializationParams []interface{} `json:"initializationParams"`
}

// CreatedContext is the result of Contexts.Create
type CreatedContext struct {
	ContextID       string `json:"contextId"`
	MemberPublicKey string `json:"memberPublicKey"`
}

// Identity is a member identity of a context
type Identity struct {
	PublicKey    string    `json:"publicKey"`
	ContextID    string    `json:"contextId,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	CreatedAt    Timestamp `json:"createdAt,omitempty"`
}

// Application is an installed application
type Application struct {
	ID          string    `json:"id"`
	Name        string    `json:"name,omitempty"`
	Version     string    `json:"version,omitempty"`
	Status      string    `json:"status,omitempty"`
	InstalledAt Timestamp `json:"installedAt,omitempty"`
	Metadata    Bytes     `json:"metadata,omitempty"`
}

// InstallApplicationRequest is the payload of Applications.Install
type InstallApplicationRequest struct {
	URL      string `json:"url"`
	Hash     string `json:"hash,omitempty"`
	Metadata Bytes  `json:"metadata"`
}

// InstallDevApplicationRequest is the payload of Applications.InstallDev
type InstallDevApplicationRequest struct {
	Path     string `json:"path"`
	Metadata Bytes  `json:"metadata"`
}

// Blob describes a stored blob
type Blob struct {
	ID        string    `json:"id"`
	Size      int64     `json:"size"`
	Metadata  Bytes     `json:"metadata,omitempty"`
	CreatedAt Timestamp `json:"createdAt,omitempty"`
	UpdatedAt Timestamp `json:"updatedAt,omitempty"`
}

// UnmarshalJSON accepts the legacy blob_id field
func (b *Blob) UnmarshalJSON(data []byte) error {
	type blobAlias Blob
	var wire struct {
		blobAlias
		LegacyID string `json:"blob_id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*b = Blob(wire.blobAlias)
	if b.ID == "" {
		b.ID = wire.LegacyID
	}
	return nil
}

// Proposal is a pending governance proposal of a context
type Proposal struct {
	ID      string          `json:"id"`
	Author  string          `json:"author,omitempty"`
	Actions json.RawMessage `json:"actions,omitempty"`
}

// AliasKind is the target type of an alias
type AliasKind string

const (
	AliasContext     AliasKind = "context"
	AliasApplication AliasKind = "application"
	AliasIdentity    AliasKind = "identity"
)

// Alias maps a human-readable name to a context, application or identity
type Alias struct {
	Name          string    `json:"name"`
	Kind          AliasKind `json:"type,omitempty"`
	ContextID     string    `json:"contextId,omitempty"`
	ApplicationID string    `json:"applicationId,omitempty"`
	IdentityID    string    `json:"identityId,omitempty"`
}

// Target returns the id the alias points to
func (a Alias) Target() string {
	switch {
	case a.IdentityID != "":
		return a.IdentityID
	case a.ApplicationID != "":
		return a.ApplicationID
	default:
		return a.ContextID
	}
}

// Health is the node health report
type Health struct {
	Status    string    `json:"status"`
	Timestamp Timestamp `json:"timestamp,omitempty"`
}

// Peer is a connected network peer
type Peer struct {
	ID       string    `json:"id"`
	Address  string    `json:"address,omitempty"`
	Port     int       `json:"port,omitempty"`
	Version  string    `json:"version,omitempty"`
	LastSeen Timestamp `json:"lastSeen,omitempty"`
}

// Certificate is the node TLS certificate
type Certificate struct {
	Certificate string    `json:"certificate"`
	ExpiresAt   Timestamp `json:"expiresAt,omitempty"`
}
