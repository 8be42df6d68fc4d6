// Package export renders lookup results as CSV or XLSX spreadsheets.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"consultacnpj/internal/models"
)

const (
	sheetName = "Export"

	// DateLayout is the Date column format (dd/mm/yy).
	DateLayout = "02/01/06"

	ContentTypeCSV  = "text/csv; charset=utf-8"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Row is one exported line. Date is only written when the export includes
// the Date column.
type Row struct {
	Date string
	models.LookupResult
}

// FromResults wraps results as rows without a date.
func FromResults(results []models.LookupResult) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{LookupResult: r}
	}
	return rows
}

// FromHistory flattens history records, newest first as given, stamping each
// row with its record's date.
func FromHistory(records []models.History) []Row {
	var rows []Row
	for _, h := range records {
		date := h.CreatedAt.Format(DateLayout)
		for _, r := range h.Results {
			rows = append(rows, Row{Date: date, LookupResult: r})
		}
	}
	return rows
}

// Header returns the column names for the given mode.
func Header(withDate bool) []string {
	cols := []string{"Processo", "CNPJ", "Nome", "E-mail"}
	if withDate {
		return append([]string{"Data"}, cols...)
	}
	return cols
}

func values(r Row, withDate bool) []string {
	email := r.Email
	if !withDate && (strings.TrimSpace(email) == "" || email == "-") {
		email = models.NoEmail
	}
	cols := []string{r.Tag, r.CNPJ, r.Name, email}
	if withDate {
		return append([]string{r.Date}, cols...)
	}
	return cols
}

// CSV renders rows as CSV.
func CSV(rows []Row, withDate bool) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header(withDate)); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, r := range rows {
		if err := w.Write(values(r, withDate)); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// XLSX renders rows as a single-sheet workbook.
func XLSX(rows []Row, withDate bool) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream writer: %w", err)
	}
	if err := sw.SetRow("A1", toCells(Header(withDate))); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for i, r := range rows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := sw.SetRow(cellRef, toCells(values(r, withDate))); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush sheet: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func toCells(vals []string) []any {
	cells := make([]any, len(vals))
	for i, v := range vals {
		cells[i] = v
	}
	return cells
}
