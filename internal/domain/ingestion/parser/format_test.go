package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Format
	}{
		{
			name:    "chase export",
			content: "Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #\nDEBIT,01/15/2024,COFFEE SHOP,-4.50,DEBIT,1000.00,",
			want:    FormatChase,
		},
		{
			name:    "bank of america export",
			content: "Posted Date,Reference Number,Payee,Address,Amount\n01/15/2024,1234,GROCERY STORE,,-80.00",
			want:    FormatBankOfAmerica,
		},
		{
			name:    "standard export",
			content: "date,description,amount,type\n2024-01-15,Coffee,-4.50,debit",
			want:    FormatStandard,
		},
		{
			name:    "standard headers in mixed case",
			content: "Date,Description,Amount\n2024-01-15,Coffee,-4.50",
			want:    FormatStandard,
		},
		{
			name:    "posting date without balance is not chase",
			content: "posting date,description,amount\n2024-01-15,Coffee,-4.50",
			want:    FormatStandard,
		},
		{
			name:    "unrecognized headers fall back to standard",
			content: "foo,bar,baz\n1,2,3",
			want:    FormatStandard,
		},
		{
			name:    "empty content",
			content: "",
			want:    FormatStandard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.content))
		})
	}
}

func TestMappingFor(t *testing.T) {
	chase := MappingFor(FormatChase)
	assert.Equal(t, "Posting Date", chase.Date)
	assert.Equal(t, "Balance", chase.Balance)

	bofa := MappingFor(FormatBankOfAmerica)
	assert.Equal(t, "Payee", bofa.Description)

	// Unknown formats get the standard mapping.
	unknown := MappingFor(Format("mystery-bank"))
	assert.Equal(t, MappingFor(FormatStandard), unknown)
}
