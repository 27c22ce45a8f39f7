/*
balance.go - Ledger/Balance Engine

PURPOSE:
  Pure, deterministic aggregation over an in-memory slice of movements.
  No I/O, no state kept between calls: safe to run again on every refresh.

OUTPUTS:
  Balances:        net per currency, zero-net currencies dropped
  Totals:          incoming/outgoing per currency, every currency with movements
  CombinedAmount:  primary amount + commission rows carried on the same link
  NetAmount:       primary amount - every commission split from it
  MonthlyGroups:   statement buckets by (year, month), newest first
  Visible:         profit-and-loss vs ordinary movement filter

SORT ORDER (applied consistently):
  SortByMagnitude: descending |balance| (list view), ties by currency order
  SortByCurrency:  currency table order, unknown codes last (detail view)

INVARIANT:
  For every currency: Balance == Incoming - Outgoing, exactly.

FAILURE SEMANTICS:
  Empty input gives empty balances and no totals. Unknown currencies are
  aggregated like any other; display falls back to the raw code.
*/
package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE
// =============================================================================

type Balance struct {
	Currency Currency
	Value    decimal.Decimal
}

// ForThem is what the shop owes the customer (positive balance), else zero.
func (b Balance) ForThem() decimal.Decimal {
	if b.Value.IsPositive() {
		return b.Value
	}
	return decimal.Zero
}

// ForUs is what the customer owes the shop (negative balance), else zero.
func (b Balance) ForUs() decimal.Decimal {
	if b.Value.IsNegative() {
		return b.Value.Abs()
	}
	return decimal.Zero
}

type SortOrder int

const (
	SortByMagnitude SortOrder = iota
	SortByCurrency
)

// CurrencyTotals is the movement summary line for one currency.
type CurrencyTotals struct {
	Currency Currency
	Incoming decimal.Decimal
	Outgoing decimal.Decimal
	Count    int
}

func (t CurrencyTotals) Balance() decimal.Decimal { return t.Incoming.Sub(t.Outgoing) }

// =============================================================================
// AGGREGATION
// =============================================================================

// Totals sums incoming and outgoing amounts per currency, in currency order.
func Totals(movements []Movement) []CurrencyTotals {
	byCurrency := make(map[Currency]*CurrencyTotals)
	var order []Currency

	for _, m := range movements {
		t, ok := byCurrency[m.Currency]
		if !ok {
			t = &CurrencyTotals{Currency: m.Currency, Incoming: decimal.Zero, Outgoing: decimal.Zero}
			byCurrency[m.Currency] = t
			order = append(order, m.Currency)
		}
		if m.Delta.IsNegative() {
			t.Outgoing = t.Outgoing.Add(m.Delta.Abs())
		} else {
			t.Incoming = t.Incoming.Add(m.Delta)
		}
		t.Count++
	}

	sortCurrencies(order)
	out := make([]CurrencyTotals, 0, len(order))
	for _, c := range order {
		out = append(out, *byCurrency[c])
	}
	return out
}

// Balances returns the non-zero net balance per currency.
func Balances(movements []Movement, order SortOrder) []Balance {
	totals := Totals(movements)
	out := make([]Balance, 0, len(totals))
	for _, t := range totals {
		net := t.Balance()
		if net.IsZero() {
			continue
		}
		out = append(out, Balance{Currency: t.Currency, Value: net})
	}
	if order == SortByMagnitude {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Value.Abs().GreaterThan(out[j].Value.Abs())
		})
	}
	return out
}

// BalanceOf returns the net balance for one currency (zero if none).
func BalanceOf(movements []Movement, currency Currency) decimal.Decimal {
	sum := decimal.Zero
	for _, m := range movements {
		if m.Currency == currency {
			sum = sum.Add(m.Delta)
		}
	}
	return sum
}

// Summary bundles the outputs a detail or list view needs.
type Summary struct {
	Balances      []Balance
	Totals        []CurrencyTotals
	MovementCount int
}

func Summarize(movements []Movement, order SortOrder) Summary {
	return Summary{
		Balances:      Balances(movements, order),
		Totals:        Totals(movements),
		MovementCount: len(movements),
	}
}

// =============================================================================
// COMMISSION-COMBINED AMOUNTS
// =============================================================================

// CombinedAmount reconstructs what the customer actually handed over or
// received: the primary amount plus every commission movement split from it
// that sits on the same link, in the same direction and currency.
// Zero or many such rows are both legal.
func CombinedAmount(primary Movement, all []Movement) decimal.Decimal {
	total := primary.Amount()
	for _, m := range all {
		if !m.IsCommission || m.RelatedCommissionID != primary.ID || m.ID == primary.ID {
			continue
		}
		if m.CustomerLinkID != primary.CustomerLinkID ||
			m.Direction() != primary.Direction() ||
			m.Currency != primary.Currency {
			continue
		}
		total = total.Add(m.Amount())
	}
	return total
}

// CommissionFor sums every commission movement split from primary, on any
// link, in the primary's currency.
func CommissionFor(primary Movement, all []Movement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range all {
		if m.IsCommission && m.RelatedCommissionID == primary.ID && m.ID != primary.ID && m.Currency == primary.Currency {
			total = total.Add(m.Amount())
		}
	}
	return total
}

// NetAmount is the primary amount less the commission retained by the owner.
func NetAmount(primary Movement, all []Movement) decimal.Decimal {
	return primary.Amount().Sub(CommissionFor(primary, all))
}

// CombinedAmountFunc binds CombinedAmount to a movement set, for formatters.
func CombinedAmountFunc(all []Movement) func(Movement) decimal.Decimal {
	return func(m Movement) decimal.Decimal { return CombinedAmount(m, all) }
}

// =============================================================================
// PROFIT-AND-LOSS FILTER
// =============================================================================

// Visible filters a customer's movements for its detail view: the
// profit-and-loss account shows only commission movements, every other
// customer shows only ordinary ones.
func Visible(movements []Movement, profitLoss bool) []Movement {
	out := make([]Movement, 0, len(movements))
	for _, m := range movements {
		if m.IsCommission == profitLoss {
			out = append(out, m)
		}
	}
	return out
}

// =============================================================================
// ORDERING AND MONTHLY GROUPS
// =============================================================================

// NewestFirst returns a copy ordered by CreatedAt descending. Ties fall back
// to the movement number so the feed order is stable.
func NewestFirst(movements []Movement) []Movement {
	out := make([]Movement, len(movements))
	copy(out, movements)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	return out
}

type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthGroup is one statement bucket. Totals include currencies that net to
// zero inside the bucket.
type MonthGroup struct {
	Key       MonthKey
	Movements []Movement
	Totals    []CurrencyTotals
}

// MonthlyGroups partitions movements by calendar month of CreatedAt in loc,
// newest month first, newest movement first within each month.
func MonthlyGroups(movements []Movement, loc *time.Location) []MonthGroup {
	if loc == nil {
		loc = time.UTC
	}
	var groups []MonthGroup
	index := make(map[MonthKey]int)

	for _, m := range NewestFirst(movements) {
		local := m.CreatedAt.In(loc)
		key := MonthKey{Year: local.Year(), Month: local.Month()}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, MonthGroup{Key: key})
		}
		groups[i].Movements = append(groups[i].Movements, m)
	}

	for i := range groups {
		groups[i].Totals = Totals(groups[i].Movements)
	}
	return groups
}

// =============================================================================
// STATEMENT RANGES
// =============================================================================

// Between returns movements with from <= CreatedAt < to. Zero bounds are open.
func Between(movements []Movement, from, to time.Time) []Movement {
	out := make([]Movement, 0, len(movements))
	for _, m := range movements {
		if !from.IsZero() && m.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !m.CreatedAt.Before(to) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// OpeningBalances returns every currency's balance carried into a statement
// starting at from, zero balances included, in currency order.
func OpeningBalances(movements []Movement, from time.Time) []Balance {
	if from.IsZero() {
		return nil
	}
	before := Between(movements, time.Time{}, from)
	totals := Totals(before)
	out := make([]Balance, 0, len(totals))
	for _, t := range totals {
		out = append(out, Balance{Currency: t.Currency, Value: t.Balance()})
	}
	return out
}
