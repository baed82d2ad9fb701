package commands

import (
	"log/slog"
	"rapportage-downloader/internal/pipeline"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pollCmd)
}

var pollCmd = &cobra.Command{
	Use:   "poll [ean...]",
	Short: "Keeps downloading the hourly usage of meters until interrupted, by default every meter on the connection list.",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := requireSettings(cmd, true)
		if err != nil {
			return err
		}
		policy, err := cfg.backoffPolicy()
		if err != nil {
			return err
		}
		out, err := outputSink()
		if err != nil {
			return err
		}
		client, err := login(cmd.Context())
		if err != nil {
			return err
		}
		eans, err := seedEANs(cmd.Context(), client, args)
		if err != nil {
			return err
		}

		slog.Info("polling hourly usage", "eans", len(eans), "output", out.String())
		p := pipeline.New(pipeline.Options{
			Seeds:      eans,
			Resolver:   client,
			Downloader: client,
			Sink:       out,
			QueueSize:  cfg.Pipeline.QueueSize,
			Policy:     &policy,
			Telemetry:  tel,
		})
		return p.Run(cmd.Context())
	},
}
