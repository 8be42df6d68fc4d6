package batch

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"consultacnpj/internal/models"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SupportedExtensions lists the upload formats ReadFile understands.
var SupportedExtensions = []string{".csv", ".xlsx"}

// Table is a decoded spreadsheet: the first row and the rows after it.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadFile decodes an upload, choosing the format from the file extension.
func ReadFile(name string, r io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return ReadCSV(r)
	case ".xlsx":
		return ReadXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(name))
	}
}

// ReadCSV decodes CSV bytes as UTF-8, falling back to Latin-1 when the input
// is not valid UTF-8. The delimiter is sniffed from the first line.
func ReadCSV(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if !utf8.Valid(raw) {
		if raw, err = charmap.ISO8859_1.NewDecoder().Bytes(raw); err != nil {
			return nil, fmt.Errorf("failed to decode csv: %w", err)
		}
	}

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comma = sniffDelimiter(raw)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return newTable(records), nil
}

// pickSheet prefers the active sheet and falls back to the first one.
func pickSheet(active string, sheets []string) (string, error) {
	if active != "" {
		return active, nil
	}
	if len(sheets) == 0 {
		return "", fmt.Errorf("%w: workbook has no sheets", ErrUnsupportedFile)
	}
	return sheets[0], nil
}

// ReadXLSX reads the active sheet of a workbook.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer f.Close()

	sheet, err := pickSheet(f.GetSheetName(f.GetActiveSheetIndex()), f.GetSheetList())
	if err != nil {
		return nil, err
	}
	// Raw values keep long numeric cells from being rendered in scientific
	// notation.
	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return newTable(records), nil
}

func newTable(records [][]string) *Table {
	if len(records) == 0 {
		return &Table{}
	}
	return &Table{Header: records[0], Rows: records[1:]}
}

func sniffDelimiter(raw []byte) rune {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}

// FromFile decodes an upload and extracts its requests.
func (e *Extractor) FromFile(name string, r io.Reader) ([]models.LookupRequest, error) {
	table, err := ReadFile(name, r)
	if err != nil {
		return nil, err
	}
	return e.FromRows(table.Header, table.Rows)
}
