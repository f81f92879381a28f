package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/calimero-network/calimero-client-go/pkg/config"
)

type rootOptions struct {
	configPath string
	logLevel   string
	nodeURL    string
	token      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "calimero",
		Short:        "Command line client for a Calimero node",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file (default ~/.calimero/config.toml when present)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.nodeURL, "node-url", "", "node base URL, overrides the config file")
	flags.StringVar(&opts.token, "token", "", "bearer token, overrides the config file")

	root.AddCommand(
		newWatchCmd(opts),
		newExecuteCmd(opts),
		newHealthCmd(opts),
		newContextsCmd(opts),
		newApplicationsCmd(opts),
	)
	return root
}

// load reads the config and applies flag overrides
func (o *rootOptions) load() (*config.Config, zerolog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.Load(o.configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if o.nodeURL != "" {
		cfg.NodeURL = o.nodeURL
	}
	if o.token != "" {
		cfg.AuthToken = o.token
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}

	return cfg, setupLogger(cfg.LogLevel), nil
}

// setupLogger configures the zerolog logger. Output goes to stderr so that
// command results on stdout stay machine readable.
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
