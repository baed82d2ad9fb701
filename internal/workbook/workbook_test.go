package workbook

import (
	"bytes"
	"rapportage-downloader/internal/scrapers/dbenergie"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()

	file := excelize.NewFile()
	defer file.Close()
	index, err := file.NewSheet(sheet)
	if err != nil {
		t.Fatal(err)
	}
	file.SetActiveSheet(index)

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		err = file.SetSheetRow(sheet, cell, &row)
		if err != nil {
			t.Fatal(err)
		}
	}

	var buffer bytes.Buffer
	err = file.Write(&buffer)
	if err != nil {
		t.Fatal(err)
	}
	return buffer.Bytes()
}

func TestReadEANs(t *testing.T) {
	data := buildWorkbook(t, "Lijst_Export", [][]any{
		{"Adres", "EAN code", "Product"},
		{"Stationsplein 1", "871687120054100001", "Elektra"},
		{"Stationsplein 2", "", "Elektra"},
		{"Stationsplein 3", " 871687120054100003 ", "Gas"},
		{"Stationsplein 4"},
		{"Stationsplein 5", "871687120054100005", "Elektra"},
	})

	eans, err := ReadEANs(data, Options{})
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []dbenergie.EAN{
		"871687120054100001",
		"871687120054100003",
		"871687120054100005",
	}, eans)
}

func TestReadEANsLimit(t *testing.T) {
	data := buildWorkbook(t, "Lijst_Export", [][]any{
		{"Beschikbare meetdata"},
		{"871687120054100001"},
		{"871687120054100002"},
		{"871687120054100003"},
	})

	eans, err := ReadEANs(data, Options{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []dbenergie.EAN{"871687120054100001", "871687120054100002"}, eans)
}

func TestReadEANsMissingColumn(t *testing.T) {
	data := buildWorkbook(t, "Lijst_Export", [][]any{
		{"Adres", "Product"},
		{"Stationsplein 1", "Elektra"},
	})

	_, err := ReadEANs(data, Options{})
	require.ErrorIs(t, err, ErrNoColumn)
}

func TestReadEANsOtherSheet(t *testing.T) {
	data := buildWorkbook(t, "Export", [][]any{
		{"Meter"},
		{"871687120054100001"},
	})

	_, err := ReadEANs(data, Options{})
	require.Error(t, err)

	eans, err := ReadEANs(data, Options{Sheet: "Export", Columns: []string{"Meter"}})
	if err != nil {
		t.Fatal(err)
	}
	require.Equal(t, []dbenergie.EAN{"871687120054100001"}, eans)
}
