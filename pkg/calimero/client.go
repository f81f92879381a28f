// Package calimero bundles the admin, JSON-RPC and subscription clients for one node.
package calimero

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/calimero-network/calimero-client-go/pkg/admin"
	"github.com/calimero-network/calimero-client-go/pkg/config"
	"github.com/calimero-network/calimero-client-go/pkg/jsonrpc"
	"github.com/calimero-network/calimero-client-go/pkg/subscription"
)

// Client talks to a single node over every API it exposes
type Client struct {
	Admin         *admin.Client
	RPC           *jsonrpc.Client
	Subscriptions *subscription.Client

	logger zerolog.Logger
}

// New creates the admin, JSON-RPC and subscription clients from cfg.
// Subscriptions are not connected until Subscriptions.Connect is called.
func New(cfg *config.Config, logger zerolog.Logger) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	adminClient, err := admin.New(cfg.NodeURL, cfg.AdminOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin client: %w", err)
	}

	rpcClient, err := jsonrpc.New(cfg.NodeURL, cfg.JSONRPCOptions(), logger)
	if err != nil {
		adminClient.Close()
		return nil, fmt.Errorf("failed to create JSON-RPC client: %w", err)
	}

	subClient, err := subscription.New(cfg.NodeURL, cfg.SubscriptionOptions(), logger)
	if err != nil {
		adminClient.Close()
		rpcClient.CloseIdleConnections()
		return nil, fmt.Errorf("failed to create subscription client: %w", err)
	}

	c := &Client{
		Admin:         adminClient,
		RPC:           rpcClient,
		Subscriptions: subClient,
		logger:        logger.With().Str("component", "calimero").Logger(),
	}
	c.logger.Debug().
		Str("node", cfg.NodeURL).
		Str("ws", subClient.URL()).
		Str("rpc", rpcClient.Endpoint()).
		Msg("Client created")
	return c, nil
}

// Close disconnects subscriptions and releases idle HTTP connections
func (c *Client) Close() error {
	err := c.Subscriptions.Disconnect()
	c.RPC.CloseIdleConnections()
	c.Admin.Close()
	if err != nil {
		return fmt.Errorf("failed to disconnect subscriptions: %w", err)
	}
	return nil
}
