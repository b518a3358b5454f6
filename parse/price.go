package parse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	priceRegex    = regexp.MustCompile(`([฿$€£])?\s?(\d+(?:\.\d+)?)`)
	currencyWord  = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(THB|USD|EUR|GBP)(?:[^\p{L}\p{N}_]|$)`)
	symbolToCode  = map[string]string{"฿": "THB", "$": "USD", "€": "EUR", "£": "GBP"}
	spaceReplacer = strings.NewReplacer(",", "", "\u00a0", "", "\u202f", "")
)

// ParsePrice turns free-form price text into a numeric value and a 3-letter
// currency code. The value is nil when no number is present; the currency is
// empty when it cannot be determined.
func ParsePrice(text string) (*float64, string) {
	if strings.TrimSpace(text) == "" {
		return nil, ""
	}
	t := spaceReplacer.Replace(text)

	m := priceRegex.FindStringSubmatch(t)
	if m == nil {
		return nil, ""
	}
	value, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return nil, ""
	}

	currency := symbolToCode[m[1]]
	if currency == "" {
		if w := currencyWord.FindStringSubmatch(t); w != nil {
			currency = strings.ToUpper(w[1])
		}
	}
	return &value, currency
}
