package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/calimero-network/calimero-client-go/pkg/calimero"
	"github.com/calimero-network/calimero-client-go/pkg/subscription"
)

// watchLine is the JSON line printed for each inbound message
type watchLine struct {
	Kind    subscription.MessageKind `json:"kind"`
	Message subscription.Message     `json:"message"`
}

// lineWriter serialises JSON lines from the handler goroutine
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{enc: json.NewEncoder(w)}
}

func (w *lineWriter) write(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(v)
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [context-or-application-id]...",
		Short: "Subscribe to events and print them as JSON lines until interrupted",
		Long: "Subscribe to events and print them as JSON lines until interrupted.\n" +
			"Without arguments the configured application_id is watched. The command\n" +
			"fails once the connection is lost for good.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ids := args
			if len(ids) == 0 && cfg.ApplicationID != "" {
				ids = []string{cfg.ApplicationID}
			}
			if len(ids) == 0 {
				return errors.New("no ids to watch: pass them as arguments or set application_id")
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancelCause(sigCtx)
			defer cancel(nil)

			subOpts := cfg.SubscriptionOptions()
			reconnect := subOpts.Reconnect.Enabled()
			subOpts.OnDisconnect = func(err error) {
				if reconnect && !errors.Is(err, subscription.ErrReconnectExhausted) {
					logger.Warn().Err(err).Msg("subscription connection lost, reconnecting")
					return
				}
				logger.Error().Err(err).Msg("subscription connection lost")
				cancel(err)
			}
			client, err := subscription.New(cfg.NodeURL, subOpts, logger)
			if err != nil {
				return err
			}

			out := newLineWriter(cmd.OutOrStdout())
			client.AddHandlerFunc(func(msg subscription.Message) error {
				return out.write(watchLine{Kind: msg.Kind(), Message: msg})
			})
			if err := client.Subscribe(ids...); err != nil {
				return err
			}

			if err := client.Connect(ctx); err != nil {
				return err
			}
			logger.Info().
				Str("url", client.URL()).
				Strs("ids", client.Subscriptions()).
				Msg("watching, press Ctrl+C to stop")

			<-ctx.Done()
			if err := client.Disconnect(); err != nil {
				return err
			}
			cause := context.Cause(ctx)
			if errors.Is(cause, subscription.ErrConnectionLost) || errors.Is(cause, subscription.ErrReconnectExhausted) {
				return fmt.Errorf("watch stopped: %w", cause)
			}
			logger.Info().Msg("received shutdown signal")
			return nil
		},
	}
}

func newExecuteCmd(opts *rootOptions) *cobra.Command {
	var contextID, executor string

	cmd := &cobra.Command{
		Use:   "execute <method> [argsJSON]",
		Short: "Execute an application method over JSON-RPC",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if contextID != "" {
				cfg.JSONRPC.ContextID = contextID
			}
			if executor != "" {
				cfg.JSONRPC.ExecutorPublicKey = executor
			}

			var callArgs interface{}
			if len(args) == 2 {
				raw := json.RawMessage(args[1])
				if !json.Valid(raw) {
					return fmt.Errorf("argsJSON is not valid JSON")
				}
				callArgs = raw
			}

			client, err := calimero.New(cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.RPC.Execute(cmd.Context(), args[0], callArgs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp.Result)
		},
	}

	cmd.Flags().StringVar(&contextID, "context", "", "context id, overrides jsonrpc.context_id")
	cmd.Flags().StringVar(&executor, "executor", "", "executor public key, overrides jsonrpc.executor_public_key")
	return cmd
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check node health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(ctx context.Context, c *calimero.Client) error {
				health, err := c.Admin.System.Health(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), health)
			})
		},
	}
}

func newContextsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contexts",
		Short: "Manage contexts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List contexts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(ctx context.Context, c *calimero.Client) error {
				contexts, err := c.Admin.Contexts.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), contexts)
			})
		},
	})
	return cmd
}

func newApplicationsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "applications",
		Short: "Manage applications",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), opts, func(ctx context.Context, c *calimero.Client) error {
				apps, err := c.Admin.Applications.List(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), apps)
			})
		},
	})
	return cmd
}

func withClient(ctx context.Context, opts *rootOptions, fn func(context.Context, *calimero.Client) error) error {
	cfg, logger, err := opts.load()
	if err != nil {
		return err
	}
	client, err := calimero.New(cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(ctx, client)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
