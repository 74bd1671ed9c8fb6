package enums

import "strings"

// Currency is an ISO 4217 code the storefront charges in.
type Currency string

const (
	CurrencyEUR Currency = "EUR"
	CurrencyUSD Currency = "USD"
	CurrencyGBP Currency = "GBP"
)

var validCurrencies = []Currency{CurrencyEUR, CurrencyUSD, CurrencyGBP}

func (c Currency) String() string { return string(c) }

// Lower returns the lowercase form Stripe expects.
func (c Currency) Lower() string {
	return strings.ToLower(string(c))
}

func (c Currency) IsValid() bool { return isOneOf(validCurrencies, c) }

// ParseCurrency matches case-insensitively and ignores surrounding space.
func ParseCurrency(value string) (Currency, error) {
	return parseOneOf(validCurrencies, strings.ToUpper(strings.TrimSpace(value)), "currency")
}
