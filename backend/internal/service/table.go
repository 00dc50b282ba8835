package service

import (
	"encoding/csv"
	"io"
	"strings"

	"kgraph/backend/internal/ingest"
	pkgerrors "kgraph/backend/pkg/errors"
)

// RowsFromTable converts a header row plus value rows into builder rows.
// Cells beyond the header width are dropped; short rows are padded by
// omission (missing cells simply produce no column).
func RowsFromTable(columns []string, records [][]string) ([]ingest.Row, error) {
	if len(columns) == 0 {
		return nil, pkgerrors.NewValidationFailed("columns", "at least one column is required")
	}

	rows := make([]ingest.Row, 0, len(records))
	for index, record := range records {
		row := ingest.Row{Index: index}
		empty := true
		for i, header := range columns {
			if i >= len(record) {
				break
			}
			value := strings.TrimSpace(record[i])
			if value != "" {
				empty = false
			}
			row.Columns = append(row.Columns, ingest.Column{Header: header, Value: value})
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ParseCSV reads an uploaded CSV into builder rows; the first record is
// the header
func ParseCSV(r io.Reader) ([]ingest.Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, pkgerrors.NewValidationFailed("file", "malformed CSV: "+err.Error())
	}
	if len(records) < 2 {
		return nil, pkgerrors.NewValidationFailed("file", "CSV needs a header row and at least one data row")
	}
	return RowsFromTable(records[0], records[1:])
}
