package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/satriahrh/scribe/internal/config"
	"github.com/satriahrh/scribe/internal/mcpserver"
	"github.com/satriahrh/scribe/usecase"
)

func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the transcription tools to an MCP client over stdio",
		Long:  "Runs the session in-process and serves its tools over stdin and stdout. Audio is captured with ffmpeg.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Audio.Source != config.SourceFFmpeg {
				return fmt.Errorf("mcp requires the %s audio source, got %s", config.SourceFFmpeg, cfg.Audio.Source)
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			server := mcpserver.NewServer(a.service, version, logger.Named("mcp"))
			watchdog := usecase.NewInactivityWatchdog(a.service, cfg.Session.WatchdogInterval, logger.Named("watchdog"))

			ctx, stop := context.WithCancel(ctx)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return watchdog.Run(gctx) })
			g.Go(func() error {
				// the client closing stdin ends the server and with it the watchdog
				defer stop()
				err := mcpserver.ServeStdio(gctx, server)
				if errors.Is(err, context.Canceled) {
					err = nil
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return errors.Join(err, a.shutdown(shutdownCtx))
			})

			return g.Wait()
		},
	}
}
