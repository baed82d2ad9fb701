package commands

import (
	"context"
	"errors"
	"fmt"
	"rapportage-downloader/internal/scrapers/dbenergie"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(resolveCmd)
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [ean...]",
	Short: "Resolves EANs to connection ids, by default every EAN on the connection list.",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := requireSettings(cmd, false)
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

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"EAN", "ID", "Status", "Data"})
		for _, ean := range eans {
			t.AppendRow(resolveRow(cmd.Context(), client, ean))
		}
		t.Render()
		return nil
	},
}

func resolveRow(ctx context.Context, client *dbenergie.Client, ean dbenergie.EAN) table.Row {
	pair, resolution, err := dbenergie.ResolvePair(ctx, client, ean)
	if err != nil {
		var mismatch *dbenergie.MismatchError
		if errors.As(err, &mismatch) {
			return table.Row{
				ean,
				mismatch.ID,
				fmt.Sprintf("mismatch: %s (similarity %.2f)", mismatch.Received, mismatch.Similarity()),
				"",
			}
		}
		return table.Row{ean, "", err.Error(), ""}
	}

	status := "ok"
	if resolution.Ambiguous() {
		status = fmt.Sprintf("ambiguous: first of %d", resolution.Matches)
	}
	dataRange, err := client.DataRangeFromID(ctx, pair.ID)
	if err != nil {
		return table.Row{ean, pair.ID, status, err.Error()}
	}
	return table.Row{
		ean,
		pair.ID,
		status,
		fmt.Sprintf("%s - %s", dataRange.Start.Format("02-01-2006"), dataRange.End.Format("02-01-2006")),
	}
}
