package main

import (
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"media-resolver-go/internal/app"
	"media-resolver-go/pkg/config"
	"media-resolver-go/pkg/logging"
)

type rootOptions struct {
	port     int
	logLevel string
	logJSON  bool
}

// load reads the environment and applies flag overrides.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *logging.Logger) {
	cfg := config.Load()
	if cmd.Flags().Changed("port") {
		cfg.WithPort(o.port)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON = o.logJSON
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogJSON, os.Stderr)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "media-resolver",
		Short:         "Resolve embed pages to direct streams and proxy them to players",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	root.PersistentFlags().IntVarP(&opts.port, "port", "p", 7860, "Listen port (overrides PORT)")
	root.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Emit JSON logs")
	lo.Must0(root.RegisterFlagCompletionFunc("log-level", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	}))

	root.AddCommand(
		newServeCmd(opts),
		newExtractCmd(opts),
		newSniffCmd(),
		newUnpackCmd(),
	)
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, log := opts.load(cmd)
	application, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	return application.Run(cmd.Context())
}
