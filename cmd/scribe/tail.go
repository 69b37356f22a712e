package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/satriahrh/scribe/internal/client"
)

func defaultServer() string {
	if server := os.Getenv("SCRIBE_SERVER"); server != "" {
		return server
	}
	return "http://localhost:8080"
}

func newTailCmd() *cobra.Command {
	var (
		server     string
		apiKey     string
		operatorID string
		action     string
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print session events from a running server",
		Example: `  scribe tail --server http://localhost:8080
  scribe tail --send start`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := client.New(server)
			if err != nil {
				return err
			}
			token, err := c.OperatorToken(ctx, apiKey, operatorID)
			if err != nil {
				return err
			}
			conn, err := c.Dial(ctx, token)
			if err != nil {
				return err
			}
			defer conn.Close()

			if action != "" {
				if err := client.Send(conn, action); err != nil {
					return fmt.Errorf("failed to send %s: %w", action, err)
				}
			}

			out := cmd.OutOrStdout()
			return client.Tail(ctx, conn, func(message []byte) {
				fmt.Fprintln(out, string(message))
			})
		},
	}

	cmd.Flags().StringVar(&server, "server", defaultServer(), "Server base URL")
	cmd.Flags().StringVar(&apiKey, "api-key", os.Getenv("SCRIBE_API_KEY"), "Operator API key")
	cmd.Flags().StringVar(&operatorID, "operator", "cli", "Operator ID recorded in the token")
	cmd.Flags().StringVar(&action, "send", "", "Control message to send first (start, pause, resume, stop, status)")

	return cmd
}

func newStreamCmd() *cobra.Command {
	var (
		server       string
		serialNumber string
		secretKey    string
		sampleRate   int
		channels     int
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream raw PCM from stdin to a running server as a capture device",
		Example: `  ffmpeg -f pulse -i default -ac 1 -ar 16000 -f s16le - | scribe stream --serial mic-1 --secret s3cret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := client.New(server)
			if err != nil {
				return err
			}
			token, err := c.DeviceToken(ctx, serialNumber, secretKey)
			if err != nil {
				return err
			}
			conn, err := c.Dial(ctx, token)
			if err != nil {
				return err
			}
			defer conn.Close()

			// about 100ms of audio per frame
			frame := sampleRate * channels * 2 / 10
			sent, err := client.StreamPCM(ctx, conn, cmd.InOrStdin(), frame)
			fmt.Fprintf(cmd.ErrOrStderr(), "sent %d bytes\n", sent)
			return err
		},
	}

	cmd.Flags().StringVar(&server, "server", defaultServer(), "Server base URL")
	cmd.Flags().StringVar(&serialNumber, "serial", os.Getenv("SCRIBE_DEVICE_SERIAL"), "Device serial number")
	cmd.Flags().StringVar(&secretKey, "secret", os.Getenv("SCRIBE_DEVICE_SECRET"), "Device secret key")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", 16000, "PCM sample rate of stdin")
	cmd.Flags().IntVar(&channels, "channels", 1, "PCM channel count of stdin")

	return cmd
}
