package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/satriahrh/scribe/internal/config"
)

var version = "dev"

type rootFlags struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "scribe",
		Short: "scribe - cost-aware live transcription",
		Long:  "scribe captures audio in fixed-length chunks, skips silence and writes a running transcript",
		Example: `  scribe serve --config scribe.yaml
  scribe mcp
  scribe tail --server http://localhost:8080`,
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().BoolVarP(&flags.debug, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(&flags))
	cmd.AddCommand(newMCPCmd(&flags))
	cmd.AddCommand(newTailCmd())
	cmd.AddCommand(newStreamCmd())

	return cmd
}

// load reads the configuration and builds the logger
func (f *rootFlags) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, nil, err
	}
	if f.debug {
		cfg.Logging.Level = "debug"
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
