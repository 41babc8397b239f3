package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/tanya/internal/models"
)

var errEmptyTable = errors.New("table has no header row")

func readCSV(content []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		records = append(records, rec)
	}
}

func sheetRows(f *excelize.File) (map[string][][]string, []string, error) {
	sheets := f.GetSheetList()
	rows := make(map[string][][]string, len(sheets))
	for _, sheet := range sheets {
		r, err := f.GetRows(sheet)
		if err != nil {
			return nil, nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		rows[sheet] = r
	}
	return rows, sheets, nil
}

func writeRows(b *strings.Builder, rows [][]string) {
	for _, row := range rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteByte('\n')
	}
}

func extractCSV(content []byte) (string, error) {
	records, err := readCSV(content)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	writeRows(&b, records)
	return strings.TrimSpace(b.String()), nil
}

func extractExcel(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	rows, sheets, err := sheetRows(f)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, sheet := range sheets {
		writeRows(&b, rows[sheet])
	}
	return strings.TrimSpace(b.String()), nil
}

func tableName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func describe(filename string, records [][]string) (models.TableDescriptor, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return models.TableDescriptor{}, fmt.Errorf("%s: %w", filename, errEmptyTable)
	}
	columns := make([]string, len(records[0]))
	for i, c := range records[0] {
		columns[i] = strings.TrimSpace(c)
	}
	return models.TableDescriptor{
		Name:     tableName(filename),
		Filename: filename,
		Columns:  columns,
		Rows:     len(records) - 1,
	}, nil
}

// TableFromCSV describes a CSV upload: the first record supplies the column
// names and the remaining records are counted as rows.
func TableFromCSV(content []byte, filename string) (models.TableDescriptor, error) {
	records, err := readCSV(content)
	if err != nil {
		return models.TableDescriptor{}, err
	}
	return describe(filename, records)
}

// TableFromXLSX describes the first non-empty sheet of a workbook.
func TableFromXLSX(content []byte, filename string) (models.TableDescriptor, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return models.TableDescriptor{}, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	rows, sheets, err := sheetRows(f)
	if err != nil {
		return models.TableDescriptor{}, err
	}
	for _, sheet := range sheets {
		if len(rows[sheet]) > 0 {
			return describe(filename, rows[sheet])
		}
	}
	return models.TableDescriptor{}, fmt.Errorf("%s: %w", filename, errEmptyTable)
}

// TableSummary renders a descriptor as indexable text.
func TableSummary(t models.TableDescriptor) string {
	return fmt.Sprintf("Table %s (%s): %d rows; columns: %s",
		t.Name, t.Filename, t.Rows, strings.Join(t.Columns, ", "))
}
