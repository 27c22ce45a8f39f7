package ledger

import (
	"sort"
	"strings"
)

// =============================================================================
// CURRENCY - Closed set at any given time, each balance tracked independently
// =============================================================================

type Currency string

const (
	USD Currency = "USD"
	YER Currency = "YER"
	SAR Currency = "SAR"
	EGP Currency = "EGP"
	EUR Currency = "EUR"
	AED Currency = "AED"
	QAR Currency = "QAR"
)

// CurrencyInfo is the display table entry for a currency.
type CurrencyInfo struct {
	Code   Currency
	Symbol string
	NameAR string
	NameEN string
}

// currencyTable is ordered: the index is the detail-view sort rank.
var currencyTable = []CurrencyInfo{
	{Code: USD, Symbol: "$", NameAR: "دولار أمريكي", NameEN: "US Dollar"},
	{Code: YER, Symbol: "ر.ي", NameAR: "ريال يمني", NameEN: "Yemeni Rial"},
	{Code: SAR, Symbol: "ر.س", NameAR: "ريال سعودي", NameEN: "Saudi Riyal"},
	{Code: EGP, Symbol: "ج.م", NameAR: "جنيه مصري", NameEN: "Egyptian Pound"},
	{Code: EUR, Symbol: "€", NameAR: "يورو", NameEN: "Euro"},
	{Code: AED, Symbol: "د.إ", NameAR: "درهم إماراتي", NameEN: "UAE Dirham"},
	{Code: QAR, Symbol: "ر.ق", NameAR: "ريال قطري", NameEN: "Qatari Riyal"},
}

// Currencies returns the known currencies in display order.
func Currencies() []CurrencyInfo {
	out := make([]CurrencyInfo, len(currencyTable))
	copy(out, currencyTable)
	return out
}

// LookupCurrency returns the display entry for a known currency.
func LookupCurrency(c Currency) (CurrencyInfo, bool) {
	for _, info := range currencyTable {
		if info.Code == c {
			return info, true
		}
	}
	return CurrencyInfo{}, false
}

// ParseCurrency normalizes and validates a currency code for the write path.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := LookupCurrency(c); !ok {
		return "", &ValidationError{Field: "currency", Message: "unsupported currency " + string(c)}
	}
	return c, nil
}

func (c Currency) Known() bool {
	_, ok := LookupCurrency(c)
	return ok
}

// Symbol falls back to the raw code for currencies outside the table.
func (c Currency) Symbol() string {
	if info, ok := LookupCurrency(c); ok {
		return info.Symbol
	}
	return string(c)
}

// Name returns the display name in Arabic or English, or the raw code.
func (c Currency) Name(arabic bool) string {
	info, ok := LookupCurrency(c)
	if !ok {
		return string(c)
	}
	if arabic {
		return info.NameAR
	}
	return info.NameEN
}

// rank orders known currencies by table position, unknown ones after them.
func (c Currency) rank() int {
	for i, info := range currencyTable {
		if info.Code == c {
			return i
		}
	}
	return len(currencyTable)
}

// sortCurrencies sorts in table order, unknown codes alphabetically at the end.
func sortCurrencies(cs []Currency) {
	sort.SliceStable(cs, func(i, j int) bool {
		ri, rj := cs[i].rank(), cs[j].rank()
		if ri != rj {
			return ri < rj
		}
		return cs[i] < cs[j]
	})
}
