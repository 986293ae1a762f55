package parser

import "strings"

// Format identifies a known bank export convention.
type Format string

const (
	FormatStandard      Format = "standard"
	FormatChase         Format = "chase"
	FormatBankOfAmerica Format = "bank_of_america"
	FormatCustom        Format = "custom"
)

// Mapping associates canonical transaction fields with the column headers of
// a specific export format. Type and Balance are optional columns.
type Mapping struct {
	Date        string
	Description string
	Amount      string
	Type        string
	Balance     string
}

var formatMappings = map[Format]Mapping{
	FormatStandard: {
		Date:        "date",
		Description: "description",
		Amount:      "amount",
		Type:        "type",
	},
	FormatChase: {
		Date:        "Posting Date",
		Description: "Description",
		Amount:      "Amount",
		Type:        "Type",
		Balance:     "Balance",
	},
	FormatBankOfAmerica: {
		Date:        "Posted Date",
		Description: "Payee",
		Amount:      "Amount",
		Type:        "Type",
	},
	FormatCustom: {
		Date:        "date",
		Description: "description",
		Amount:      "amount",
		Type:        "type",
	},
}

// DetectFormat inspects the header line of the file content and picks a
// known format profile. Unrecognized headers fall back to the standard
// profile, which covers most generic exports.
func DetectFormat(content string) Format {
	firstLine, _, _ := strings.Cut(content, "\n")
	firstLine = strings.ToLower(firstLine)

	if strings.Contains(firstLine, "posting date") && strings.Contains(firstLine, "balance") {
		return FormatChase
	}

	if strings.Contains(firstLine, "posted date") && strings.Contains(firstLine, "payee") {
		return FormatBankOfAmerica
	}

	if strings.Contains(firstLine, "date") && strings.Contains(firstLine, "description") && strings.Contains(firstLine, "amount") {
		return FormatStandard
	}

	return FormatStandard
}

// MappingFor returns the column mapping for a format. Unknown formats get
// the standard mapping.
func MappingFor(f Format) Mapping {
	if m, ok := formatMappings[f]; ok {
		return m
	}
	return formatMappings[FormatStandard]
}
