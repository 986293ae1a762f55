package categorization

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are a financial transaction categorization expert. Categorize the following bank transaction.

Available categories:
%s

Transaction details:
- Date: %s
- Description: %s
- Amount: %s
- Type: %s

Analyze the transaction description and determine the most appropriate category.

Return ONLY valid JSON with this structure:
{
  "category_id": "uuid-of-category",
  "category_name": "Category Name",
  "confidence": 0.95,
  "reasoning": "Brief explanation of why this category was chosen"
}`

// buildPrompt renders the classifier prompt for one transaction against the
// categories valid for its type.
func buildPrompt(categories []Category, in Input) string {
	lines := make([]string, 0, len(categories))
	for _, c := range categories {
		lines = append(lines, fmt.Sprintf("- %s (ID: %s, Type: %s)", c.Name, c.ID, c.Type))
	}

	return fmt.Sprintf(promptTemplate,
		strings.Join(lines, "\n"),
		in.Date.Format("2006-01-02"),
		in.Description,
		in.Amount.String(),
		in.Direction,
	)
}

// cleanModelJSON strips markdown fences and surrounding junk the model may
// wrap around its JSON object despite instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}

	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}

	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}

	return s
}
