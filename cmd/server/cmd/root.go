package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tinychat/server/internal/config"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "server",
		Short: "tinychat server - REST backend for the tinychat realtime gateway",
		Long: `tinychat server owns accounts, guilds, channels, and invites.

It signs bearer tokens with each user's password hash, publishes every state
change to the realtime gateway over the "gateway" channel, and answers the
gateway's token confirmations on the "rest" channel.`,
		SilenceUsage: true,
	}
	serve := newServeCommand(opts)
	// Run serve by default when no subcommand is given.
	root.RunE = serve.RunE

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (optional, env vars override it)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(serve)
	root.AddCommand(newMigrateCommand(opts))
	root.AddCommand(newTokenCommand(opts))
	root.AddCommand(newVersionCommand())
	root.AddCommand(newHealthcheckCommand())
	return root
}

// Execute runs the root command. It is called once by main.main.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// load reads configuration and applies the logging flags on top.
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, nil
}
