// Package workbook reads meter EANs out of the connection list export.
package workbook

import (
	"bytes"
	"errors"
	"fmt"
	"rapportage-downloader/internal/scrapers/dbenergie"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	ErrNoRows   = errors.New("sheet has no rows")
	ErrNoColumn = errors.New("no column with a matching header")
)

type Options struct {
	// Sheet defaults to Lijst_Export.
	Sheet string `json:"sheet"`
	// Columns are the accepted header titles, the first matching column is read.
	// It defaults to "EAN code" and "Beschikbare meetdata".
	Columns []string `json:"columns"`
	// Limit is the maximum amount of rows read below the header, zero reads everything.
	Limit int `json:"limit"`
}

func (o Options) withDefaults() Options {
	if o.Sheet == "" {
		o.Sheet = "Lijst_Export"
	}
	if len(o.Columns) == 0 {
		o.Columns = []string{"EAN code", "Beschikbare meetdata"}
	}
	return o
}

func headerIndex(header []string, columns []string) int {
	for i, cell := range header {
		cell = strings.TrimSpace(cell)
		for _, column := range columns {
			if cell == column {
				return i
			}
		}
	}
	return -1
}

// ReadEANs returns the non empty cells below the EAN header of the workbook in data, in order.
func ReadEANs(data []byte, opts Options) ([]dbenergie.EAN, error) {
	opts = opts.withDefaults()

	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer file.Close()

	rows, err := file.Rows(opts.Sheet)
	if err != nil {
		return nil, fmt.Errorf("open sheet %s: %w", opts.Sheet, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, fmt.Errorf("%w: %s", ErrNoRows, opts.Sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := headerIndex(header, opts.Columns)
	if index < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoColumn, strings.Join(opts.Columns, ", "))
	}

	var eans []dbenergie.EAN
	read := 0
	for rows.Next() {
		if opts.Limit > 0 && read >= opts.Limit {
			break
		}
		read++

		cells, err := rows.Columns()
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", read+1, err)
		}
		if index >= len(cells) {
			continue
		}
		value := strings.TrimSpace(cells[index])
		if value == "" {
			continue
		}
		eans = append(eans, dbenergie.EAN(value))
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return eans, nil
}
