package commands

import (
	"context"
	"fmt"
	"log/slog"
	"rapportage-downloader/internal/scrapers/dbenergie"
	"rapportage-downloader/internal/workbook"
)

// seedEANs returns the EANs given as arguments, or every EAN on the connection list.
func seedEANs(ctx context.Context, client *dbenergie.Client, args []string) ([]dbenergie.EAN, error) {
	if len(args) > 0 {
		eans := make([]dbenergie.EAN, len(args))
		for i, arg := range args {
			eans[i] = dbenergie.EAN(arg)
		}
		return eans, nil
	}

	fileName, data, err := client.DownloadLatestVersion(ctx, dbenergie.CatalogReport{Kind: dbenergie.ConnectionList})
	if err != nil {
		return nil, err
	}
	eans, err := workbook.ReadEANs(data, cfg.Workbook)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}
	slog.Info("read eans from the connection list", "file", fileName, "count", len(eans))
	return eans, nil
}
