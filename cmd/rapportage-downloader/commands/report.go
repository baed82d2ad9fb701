package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"rapportage-downloader/internal/scrapers/dbenergie"
	"rapportage-downloader/internal/sink"
	"strings"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report [report...]",
	Short: "Downloads the latest version of reports.",
	Long: fmt.Sprintf(
		"Downloads the latest version of the given reports, or of every report when none are given.\n\nReports: %s",
		strings.Join(dbenergie.ReportNames(), ", "),
	),
	ValidArgs: dbenergie.ReportNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		reports := dbenergie.AllReports()
		if len(args) > 0 {
			parsed, err := parseReports(args)
			if err != nil {
				return err
			}
			reports = parsed
		}

		err := requireSettings(cmd, true)
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
		return downloadReports(cmd.Context(), client, out, reports)
	},
}

// downloadReports saves every report it can, failures are collected and returned together.
func downloadReports(ctx context.Context, client *dbenergie.Client, out sink.Sink, reports []dbenergie.Report) error {
	var errs []error
	for _, r := range reports {
		fileName, data, err := client.DownloadLatestVersion(ctx, r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		err = out.Save(ctx, fileName, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		slog.Info("saved report", "report", r.Name(), "file", fileName, "bytes", len(data), "output", out.String())
	}
	return errors.Join(errs...)
}
