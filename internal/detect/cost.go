// cost.go - Invoice total extraction

package detect

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCost is reported when no total can be found.
const DefaultCost = "0.00"

// CostPatterns are tried in order. Within one label the last occurrence wins,
// so a final TOTAL line beats the subtotal lines printed above it.
var CostPatterns = []Pattern{
	pattern(`(?i)TOTAL[:\s]*\$?\s*([0-9,]+\.\d{2})`, "Total"),
	pattern(`(?i)Amount\s+Due[:\s]*\$?\s*([0-9,]+\.\d{2})`, "Amount Due"),
	pattern(`(?i)Grand\s+Total[:\s]*\$?\s*([0-9,]+\.\d{2})`, "Grand Total"),
}

// ExtractCost returns the invoice total formatted with two decimals.
func ExtractCost(text string) string {
	for _, p := range CostPatterns {
		matches := p.Regex.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		raw := strings.ReplaceAll(matches[len(matches)-1][1], ",", "")
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		return amount.StringFixed(2)
	}
	return DefaultCost
}

// ParseCost converts a formatted cost back into a decimal, zero on bad input.
func ParseCost(cost string) decimal.Decimal {
	amount, err := decimal.NewFromString(strings.ReplaceAll(cost, ",", ""))
	if err != nil {
		return decimal.Zero
	}
	return amount
}
