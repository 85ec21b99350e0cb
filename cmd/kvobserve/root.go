package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/kvobserve/internal/app"
	"github.com/dshills/kvobserve/internal/config"
	"github.com/dshills/kvobserve/internal/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "kvobserve",
		Short:         "Serve a watched key/value file and notify keyed observers of changes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a .toml, .yaml or .json config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error|off (overrides config)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: console|json (overrides config)")

	root.AddCommand(newServeCmd(opts), newValuesCmd(opts), newVersionCmd())
	return root
}

// load reads the config and applies flag overrides.
func (o *rootOptions) load() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return cfg, zerolog.Nop(), err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: logging.Format(cfg.Log.Format),
	})
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, valuesFile string
	var scripts []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, values watcher and script observers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			if valuesFile != "" {
				cfg.ValuesFile = valuesFile
			}
			cfg.Scripts = append(cfg.Scripts, scripts...)

			application, err := app.New(app.Options{Config: cfg, Logger: logger})
			if err != nil {
				return fmt.Errorf("failed to initialize: %w", err)
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().Str("version", version).Msg("kvobserve starting")
			if err := application.Run(ctx); err != nil {
				return err
			}
			logger.Info().Msg("kvobserve stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&valuesFile, "values", "", "Values file to watch (overrides config)")
	cmd.Flags().StringSliceVar(&scripts, "script", nil, "Lua observer script (repeatable)")
	return cmd
}

func newValuesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "values [file]",
		Short: "Print the flattened contents of a values file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				path = cfg.ValuesFile
			}
			if path == "" {
				return fmt.Errorf("no values file given and none configured")
			}

			values, err := config.LoadValues(path)
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			out := cmd.OutOrStdout()
			for _, k := range keys {
				fmt.Fprintf(out, "%s=%s\n", k, values[k])
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kvobserve %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
