// Package parser turns raw bank statement files into normalized transaction
// rows. Parsing is tolerant: a bad row yields a RowError and the batch
// continues; aggregate failure policy lives with the caller.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

// Direction indicates whether money left (debit) or entered (credit) the account.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// RawRow is one CSV row keyed by (trimmed) header name.
type RawRow map[string]string

// Transaction is a normalized statement row. Amount is always non-negative;
// sign is carried by Direction. Never mutated after creation.
type Transaction struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Direction   Direction
	Raw         RawRow
}

// RowError reports a single unparseable row. Row numbers are 1-based and
// include the header line, matching what the user sees in a spreadsheet.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"error"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// Result collects the outcome of parsing one file.
type Result struct {
	Transactions []Transaction
	Errors       []RowError
	TotalRows    int
}

// Parse reads a CSV statement and normalizes every data row against the
// given column mapping.
func Parse(content []byte, mapping Mapping) (*Result, error) {
	rows, err := gocsv.CSVToMaps(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	result := &Result{
		Transactions: make([]Transaction, 0, len(rows)),
		TotalRows:    len(rows),
	}

	for i, row := range rows {
		raw := make(RawRow, len(row))
		for k, v := range row {
			raw[strings.TrimSpace(k)] = v
		}

		tx, err := Normalize(raw, mapping)
		if err != nil {
			// +2: one for the header line, one for the 0-based index.
			result.Errors = append(result.Errors, RowError{Row: i + 2, Message: err.Error()})
			continue
		}
		result.Transactions = append(result.Transactions, *tx)
	}

	return result, nil
}

// Normalize converts one raw row into a Transaction. It is a pure per-row
// transform; failures are row-level, never batch-fatal.
func Normalize(row RawRow, mapping Mapping) (*Transaction, error) {
	dateStr := strings.TrimSpace(row[mapping.Date])
	description := strings.TrimSpace(row[mapping.Description])
	amountStr := strings.TrimSpace(row[mapping.Amount])

	if dateStr == "" || description == "" || amountStr == "" {
		return nil, fmt.Errorf("missing required fields: date, description, or amount")
	}

	date, err := parseDate(dateStr)
	if err != nil {
		return nil, err
	}

	amount, err := parseAmount(amountStr)
	if err != nil {
		return nil, err
	}

	var typeStr string
	if mapping.Type != "" {
		typeStr = row[mapping.Type]
	}

	return &Transaction{
		Date:        date,
		Description: description,
		Amount:      amount.Abs(),
		Direction:   deriveDirection(amount, typeStr),
		Raw:         row,
	}, nil
}

var dateFormats = []string{
	"2006-01-02",          // ISO 8601
	time.RFC3339,          // ISO 8601 with time
	"2006-01-02 15:04:05", // ISO with space
	"1/2/2006",            // MM/DD/YYYY, with or without zero padding
}

func parseDate(s string) (time.Time, error) {
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

// parseAmount handles currency symbols, thousands separators, and accounting
// notation, e.g. "(1,234.56)" parses to -1234.56.
func parseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', ',', ' ', '\t':
			return -1
		}
		return r
	}, s)

	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		cleaned = "-" + cleaned[1:len(cleaned)-1]
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount: %s", s)
	}
	return amount, nil
}

// deriveDirection prefers an explicit type column; otherwise negative
// amounts are money out.
func deriveDirection(amount decimal.Decimal, typeStr string) Direction {
	switch strings.ToLower(strings.TrimSpace(typeStr)) {
	case "debit", "withdrawal", "expense":
		return DirectionDebit
	case "credit", "deposit", "income":
		return DirectionCredit
	}

	if amount.Sign() < 0 {
		return DirectionDebit
	}
	return DirectionCredit
}
