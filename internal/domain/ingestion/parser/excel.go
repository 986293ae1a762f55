package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads an Excel statement export and normalizes the first sheet
// through the same row pipeline as CSV. The first row is treated as the
// header.
func ParseXLSX(content []byte, mapping Mapping) (*Result, error) {
	rows, err := xlsxRows(content)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Result{}, nil
	}

	headers := rows[0]
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	result := &Result{
		Transactions: make([]Transaction, 0, len(rows)-1),
		TotalRows:    len(rows) - 1,
	}

	for i, record := range rows[1:] {
		raw := make(RawRow, len(headers))
		for j, h := range headers {
			if h == "" {
				continue
			}
			if j < len(record) {
				raw[h] = record[j]
			} else {
				raw[h] = ""
			}
		}

		tx, err := Normalize(raw, mapping)
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: i + 2, Message: err.Error()})
			continue
		}
		result.Transactions = append(result.Transactions, *tx)
	}

	return result, nil
}

// XLSXHeaderLine returns the first sheet's header row joined with commas so
// it can run through the same format detection as a CSV header.
func XLSXHeaderLine(content []byte) (string, error) {
	rows, err := xlsxRows(content)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	return strings.Join(rows[0], ","), nil
}

func xlsxRows(content []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}
