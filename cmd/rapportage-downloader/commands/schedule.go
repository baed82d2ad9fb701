package commands

import (
	"log/slog"
	"rapportage-downloader/internal/components/chrono"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Downloads the configured reports on a cron schedule until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := requireSettings(cmd, true)
		if err != nil {
			return err
		}
		reports, err := cfg.scheduledReports()
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

		spec := cfg.Schedule.Spec
		if spec == "" {
			spec = defaultScheduleSpec
		}

		ctx := cmd.Context()
		cron := chrono.NewStandardCron(tel)
		err = cron.Cron(spec, func() {
			err := client.Relogin(ctx)
			if err != nil {
				slog.Error("failed to log in before scheduled download", "err", err)
				return
			}
			err = downloadReports(ctx, client, out, reports)
			if err != nil {
				slog.Error("scheduled download failed", "err", err)
			}
		})
		if err != nil {
			return err
		}

		slog.Info("scheduled reports", "spec", spec, "reports", len(reports), "output", out.String())
		cron.Run(ctx)
		return nil
	},
}
