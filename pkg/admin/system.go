package admin

import (
	"context"
	"errors"

	"github.com/tidwall/gjson"
)

// SystemManager reads node status endpoints
type SystemManager struct {
	c *Client
}

// Health returns the node health report
func (m *SystemManager) Health(ctx context.Context) (*Health, error) {
	data, err := m.c.get(ctx, "/health", nil)
	if err != nil {
		return nil, err
	}
	out := Health{Status: "unknown"}
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// IsAuthenticated reports whether the configured credentials are accepted
func (m *SystemManager) IsAuthenticated(ctx context.Context) (bool, error) {
	data, err := m.c.get(ctx, "/is-authed", nil)
	if err != nil {
		return false, err
	}
	return data.Get("authenticated").Bool(), nil
}

// Peers returns the connected peers. Nodes that only report a count yield an empty list.
func (m *SystemManager) Peers(ctx context.Context) ([]Peer, error) {
	data, err := m.c.get(ctx, "/peers", nil)
	if err != nil {
		return nil, err
	}
	peers := []Peer{}
	if err := decode(listOf(data, "peers"), &peers); err != nil {
		return nil, err
	}
	return peers, nil
}

// PeersCount returns the number of connected peers. Nodes without the count
// endpoint are asked for the peer list instead.
func (m *SystemManager) PeersCount(ctx context.Context) (int, error) {
	data, err := m.c.get(ctx, "/peers/count", nil)
	if errors.Is(err, ErrNotFound) {
		m.c.logger.Debug().Msg("peers count endpoint missing, falling back to peer list")
		return m.peersFallbackCount(ctx)
	}
	if err != nil {
		return 0, err
	}
	return countOf(data), nil
}

func (m *SystemManager) peersFallbackCount(ctx context.Context) (int, error) {
	data, err := m.c.get(ctx, "/peers", nil)
	if err != nil {
		return 0, err
	}
	if data.IsArray() {
		return len(data.Array()), nil
	}
	return countOf(data), nil
}

// Certificate returns the node certificate. A node without one yields an empty Certificate.
func (m *SystemManager) Certificate(ctx context.Context) (*Certificate, error) {
	data, err := m.c.get(ctx, "/certificate", nil)
	if errors.Is(err, ErrNotFound) {
		return &Certificate{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out Certificate
	if err := decode(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// countOf reads a count that is either the data itself or a count field
func countOf(data gjson.Result) int {
	if data.Type == gjson.Number {
		return int(data.Int())
	}
	for _, field := range []string{"count", "peers", "total"} {
		if v := data.Get(field); v.Type == gjson.Number {
			return int(v.Int())
		}
	}
	return 0
}
