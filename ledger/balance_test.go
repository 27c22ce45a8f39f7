package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shop-ledger/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mv(id string, link string, cur ledger.Currency, delta string, at time.Time) ledger.Movement {
	return ledger.Movement{
		ID:             ledger.MovementID(id),
		OwnerID:        "owner-1",
		CustomerLinkID: ledger.LinkID(link),
		Currency:       cur,
		Delta:          dec(delta),
		CreatedAt:      at,
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

// =============================================================================
// BALANCES AND TOTALS
// =============================================================================

func TestBalances_EmptyInput(t *testing.T) {
	// GIVEN: No movements
	// WHEN: Aggregating
	// THEN: Empty balances and totals, no panic

	assert.Empty(t, ledger.Balances(nil, ledger.SortByMagnitude))
	assert.Empty(t, ledger.Totals(nil))
	assert.Equal(t, 0, ledger.Summarize(nil, ledger.SortByCurrency).MovementCount)
}

func TestBalances_PerCurrencyNet(t *testing.T) {
	// GIVEN: Incoming and outgoing movements in USD and YER
	// WHEN: Computing balances
	// THEN: Each currency nets independently, no conversion

	movements := []ledger.Movement{
		mv("1", "c1", ledger.USD, "500", day(2025, 1, 1)),
		mv("2", "c1", ledger.USD, "-200", day(2025, 1, 2)),
		mv("3", "c1", ledger.YER, "1000", day(2025, 1, 3)),
	}

	balances := ledger.Balances(movements, ledger.SortByCurrency)
	require.Len(t, balances, 2)
	assert.Equal(t, ledger.USD, balances[0].Currency)
	assert.True(t, balances[0].Value.Equal(dec("300")))
	assert.Equal(t, ledger.YER, balances[1].Currency)
	assert.True(t, balances[1].Value.Equal(dec("1000")))
}

func TestBalances_ZeroNetExcludedButKeptInTotals(t *testing.T) {
	// GIVEN: SAR nets to exactly zero
	// WHEN: Computing balances and monthly groups
	// THEN: SAR is absent from balances but present in totals and groups

	movements := []ledger.Movement{
		mv("1", "c1", ledger.SAR, "75.50", day(2025, 3, 1)),
		mv("2", "c1", ledger.SAR, "-75.50", day(2025, 3, 2)),
		mv("3", "c1", ledger.USD, "10", day(2025, 3, 3)),
	}

	balances := ledger.Balances(movements, ledger.SortByMagnitude)
	require.Len(t, balances, 1)
	assert.Equal(t, ledger.USD, balances[0].Currency)

	totals := ledger.Totals(movements)
	require.Len(t, totals, 2)
	assert.Equal(t, ledger.USD, totals[0].Currency)
	assert.Equal(t, ledger.SAR, totals[1].Currency)
	assert.True(t, totals[1].Incoming.Equal(dec("75.50")))
	assert.True(t, totals[1].Outgoing.Equal(dec("75.50")))

	groups := ledger.MonthlyGroups(movements, time.UTC)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Totals, 2)
	assert.Equal(t, ledger.SAR, groups[0].Totals[1].Currency)
	assert.True(t, groups[0].Totals[1].Balance().IsZero())
}

func TestBalances_SortOrders(t *testing.T) {
	// GIVEN: Balances of different magnitudes and an unknown currency
	// WHEN: Sorting for list and detail views
	// THEN: List is descending |balance|, detail follows the currency table

	movements := []ledger.Movement{
		mv("1", "c1", ledger.USD, "10", day(2025, 1, 1)),
		mv("2", "c1", ledger.YER, "-5000", day(2025, 1, 1)),
		mv("3", "c1", "GBP", "20", day(2025, 1, 1)),
		mv("4", "c1", ledger.EUR, "300", day(2025, 1, 1)),
	}

	byMagnitude := ledger.Balances(movements, ledger.SortByMagnitude)
	require.Len(t, byMagnitude, 4)
	assert.Equal(t, []ledger.Currency{ledger.YER, ledger.EUR, "GBP", ledger.USD},
		[]ledger.Currency{byMagnitude[0].Currency, byMagnitude[1].Currency, byMagnitude[2].Currency, byMagnitude[3].Currency})

	byCurrency := ledger.Balances(movements, ledger.SortByCurrency)
	assert.Equal(t, []ledger.Currency{ledger.USD, ledger.YER, ledger.EUR, "GBP"},
		[]ledger.Currency{byCurrency[0].Currency, byCurrency[1].Currency, byCurrency[2].Currency, byCurrency[3].Currency})
}

func TestBalances_NoDriftOverManySmallEntries(t *testing.T) {
	// GIVEN: 10,000 incoming movements of 0.01 and 5,000 outgoing of 0.01
	// WHEN: Summing
	// THEN: Balance is exactly 50.00 and equals incoming - outgoing

	movements := make([]ledger.Movement, 0, 15000)
	for i := 0; i < 10000; i++ {
		movements = append(movements, mv("in", "c1", ledger.USD, "0.01", day(2025, 1, 1)))
	}
	for i := 0; i < 5000; i++ {
		movements = append(movements, mv("out", "c1", ledger.USD, "-0.01", day(2025, 1, 1)))
	}

	totals := ledger.Totals(movements)
	require.Len(t, totals, 1)
	assert.True(t, totals[0].Incoming.Equal(dec("100")))
	assert.True(t, totals[0].Outgoing.Equal(dec("50")))
	assert.True(t, totals[0].Balance().Equal(dec("50")))
	assert.True(t, ledger.BalanceOf(movements, ledger.USD).Equal(totals[0].Balance()))
}

func TestBalance_Sides(t *testing.T) {
	owed := ledger.Balance{Currency: ledger.USD, Value: dec("40")}
	owing := ledger.Balance{Currency: ledger.USD, Value: dec("-15")}

	assert.True(t, owed.ForThem().Equal(dec("40")))
	assert.True(t, owed.ForUs().IsZero())
	assert.True(t, owing.ForUs().Equal(dec("15")))
	assert.True(t, owing.ForThem().IsZero())
}

func TestCurrency_UnknownFallsBackToCode(t *testing.T) {
	assert.Equal(t, "$", ledger.USD.Symbol())
	assert.Equal(t, "GBP", ledger.Currency("GBP").Symbol())
	assert.Equal(t, "GBP", ledger.Currency("GBP").Name(true))

	_, err := ledger.ParseCurrency("gbp")
	assert.ErrorIs(t, err, ledger.ErrValidation)

	c, err := ledger.ParseCurrency(" yer ")
	require.NoError(t, err)
	assert.Equal(t, ledger.YER, c)
}

// =============================================================================
// COMBINED / NET AMOUNTS
// =============================================================================

func TestCombinedAmount_SumsMatchingCommissionRows(t *testing.T) {
	// GIVEN: A primary with two commission rows on the same link, direction
	//        and currency, plus rows that must not count
	// WHEN: Computing the combined amount
	// THEN: Only matching rows are added

	primary := mv("p", "c1", ledger.USD, "100", day(2025, 1, 1))
	sameLink := func(id, delta string) ledger.Movement {
		m := mv(id, "c1", ledger.USD, delta, day(2025, 1, 1))
		m.IsCommission = true
		m.RelatedCommissionID = "p"
		return m
	}
	otherCurrency := sameLink("x1", "3")
	otherCurrency.Currency = ledger.YER
	otherLink := sameLink("x2", "4")
	otherLink.CustomerLinkID = "pl"
	otherDirection := sameLink("x3", "-6")
	notCommission := sameLink("x4", "8")
	notCommission.IsCommission = false

	all := []ledger.Movement{primary, sameLink("c1", "5"), sameLink("c2", "2.5"),
		otherCurrency, otherLink, otherDirection, notCommission}

	assert.True(t, ledger.CombinedAmount(primary, all).Equal(dec("107.5")))
	assert.True(t, ledger.CombinedAmountFunc(all)(primary).Equal(dec("107.5")))
}

func TestCombinedAmount_NoCommission(t *testing.T) {
	primary := mv("p", "c1", ledger.USD, "-42", day(2025, 1, 1))
	assert.True(t, ledger.CombinedAmount(primary, []ledger.Movement{primary}).Equal(dec("42")))
	assert.True(t, ledger.NetAmount(primary, []ledger.Movement{primary}).Equal(dec("42")))
}

func TestNetAmount_CommissionOnProfitLossLink(t *testing.T) {
	// GIVEN: a=100 incoming, c=15 posted on the profit-and-loss link
	// WHEN: Computing combined and net amounts
	// THEN: combined = 100, net = 85

	primary := mv("p", "c1", ledger.USD, "100", day(2025, 1, 1))
	commission := mv("c", "pl", ledger.USD, "15", day(2025, 1, 1))
	commission.IsCommission = true
	commission.RelatedCommissionID = "p"
	all := []ledger.Movement{primary, commission}

	assert.True(t, ledger.CombinedAmount(primary, all).Equal(dec("100")))
	assert.True(t, ledger.NetAmount(primary, all).Equal(dec("85")))
}

// =============================================================================
// FILTERS, ORDERING, GROUPS
// =============================================================================

func TestVisible_ProfitLossIsolation(t *testing.T) {
	ordinary := mv("1", "c1", ledger.USD, "100", day(2025, 1, 1))
	commission := mv("2", "pl", ledger.USD, "15", day(2025, 1, 1))
	commission.IsCommission = true
	all := []ledger.Movement{ordinary, commission}

	pl := ledger.Visible(all, true)
	other := ledger.Visible(all, false)
	require.Len(t, pl, 1)
	require.Len(t, other, 1)
	assert.Equal(t, ledger.MovementID("2"), pl[0].ID)
	assert.Equal(t, ledger.MovementID("1"), other[0].ID)
}

func TestMonthlyGroups_NewestFirstInLocation(t *testing.T) {
	// GIVEN: Movements across months, one near a month boundary
	// WHEN: Grouping in Asia/Aden (UTC+3)
	// THEN: The boundary movement lands in the local month, newest first

	aden := time.FixedZone("Aden", 3*3600)
	movements := []ledger.Movement{
		mv("1", "c1", ledger.USD, "10", time.Date(2025, 1, 5, 9, 0, 0, 0, time.UTC)),
		mv("2", "c1", ledger.USD, "20", time.Date(2025, 1, 31, 22, 0, 0, 0, time.UTC)), // Feb 1 local
		mv("3", "c1", ledger.USD, "-5", time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)),
		mv("4", "c1", ledger.YER, "700", time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC)),
	}

	groups := ledger.MonthlyGroups(movements, aden)
	require.Len(t, groups, 2)

	assert.Equal(t, ledger.MonthKey{Year: 2025, Month: time.February}, groups[0].Key)
	require.Len(t, groups[0].Movements, 2)
	assert.Equal(t, ledger.MovementID("4"), groups[0].Movements[0].ID)
	assert.Equal(t, ledger.MovementID("2"), groups[0].Movements[1].ID)

	assert.Equal(t, ledger.MonthKey{Year: 2025, Month: time.January}, groups[1].Key)
	require.Len(t, groups[1].Movements, 2)
	assert.Equal(t, ledger.MovementID("3"), groups[1].Movements[0].ID)
	assert.True(t, groups[1].Totals[0].Balance().Equal(dec("5")))
}

func TestOpeningBalances_AndBetween(t *testing.T) {
	movements := []ledger.Movement{
		mv("1", "c1", ledger.USD, "100", day(2025, 1, 1)),
		mv("2", "c1", ledger.USD, "-100", day(2025, 1, 2)),
		mv("3", "c1", ledger.YER, "50", day(2025, 1, 3)),
		mv("4", "c1", ledger.USD, "30", day(2025, 2, 1)),
	}

	opening := ledger.OpeningBalances(movements, day(2025, 2, 1))
	require.Len(t, opening, 2)
	assert.True(t, opening[0].Value.IsZero(), "zero balances are kept for statements")
	assert.True(t, opening[1].Value.Equal(dec("50")))

	inRange := ledger.Between(movements, day(2025, 1, 2), day(2025, 2, 1))
	require.Len(t, inRange, 2)
	assert.Nil(t, ledger.OpeningBalances(movements, time.Time{}))
}

func TestBuildCustomerView_RangedBalancesCarryOpening(t *testing.T) {
	// GIVEN: +500 USD in March and +100 USD in April
	movements := []ledger.Movement{
		mv("1", "c1", ledger.USD, "500", day(2025, 3, 10)),
		mv("2", "c1", ledger.USD, "100", day(2025, 4, 10)),
	}
	customer := ledger.Customer{ID: "c1", Name: "Ahmed"}

	// WHEN: viewing from April 1
	view := ledger.BuildCustomerView(customer, movements, nil, ledger.ViewOptions{From: day(2025, 4, 1)})

	// THEN: only April is listed, but the balance is opening + April
	require.Len(t, view.Lines, 1)
	require.Len(t, view.Opening, 1)
	assert.True(t, view.Opening[0].Value.Equal(dec("500")))
	require.Len(t, view.Balances, 1)
	assert.True(t, view.Balances[0].Value.Equal(dec("600")))

	// AND: a range ending before April closes at the March balance
	march := ledger.BuildCustomerView(customer, movements, nil, ledger.ViewOptions{To: day(2025, 4, 1)})
	require.Len(t, march.Balances, 1)
	assert.True(t, march.Balances[0].Value.Equal(dec("500")))
}

func TestSearchMovements(t *testing.T) {
	a := mv("1", "c1", ledger.USD, "1250.50", day(2025, 4, 9))
	a.Number = 77
	a.Note = "Rent April"
	b := mv("2", "c1", ledger.USD, "-9", day(2025, 5, 1))
	b.SenderName = "Salem"
	all := []ledger.Movement{a, b}

	assert.Len(t, ledger.SearchMovements(all, "", nil), 2)
	assert.Len(t, ledger.SearchMovements(all, "rent", nil), 1)
	assert.Len(t, ledger.SearchMovements(all, "77", nil), 1)
	assert.Len(t, ledger.SearchMovements(all, "1250.5", nil), 1)
	assert.Len(t, ledger.SearchMovements(all, "2025-05-01", nil), 1)
	assert.Len(t, ledger.SearchMovements(all, "SALEM", nil), 1)
	assert.Empty(t, ledger.SearchMovements(all, "nothing", nil))
}

// =============================================================================
// ENCODINGS
// =============================================================================

func TestMovementRecord_Normalize(t *testing.T) {
	// GIVEN: The same fact in both encodings
	// WHEN: Normalizing
	// THEN: Both give the same signed delta; disagreement is rejected

	older := ledger.MovementRecord{Currency: ledger.USD, Amount: dec("200"), MovementType: ledger.Outgoing}
	signed := dec("-200")
	newer := ledger.MovementRecord{Currency: ledger.USD, SignedAmount: &signed}

	m1, err := older.Normalize()
	require.NoError(t, err)
	m2, err := newer.Normalize()
	require.NoError(t, err)
	assert.True(t, m1.Delta.Equal(m2.Delta))
	assert.Equal(t, ledger.Outgoing, m1.Direction())
	assert.True(t, m1.Amount().Equal(dec("200")))

	conflicting := ledger.MovementRecord{Currency: ledger.USD, SignedAmount: &signed, MovementType: ledger.Incoming}
	_, err = conflicting.Normalize()
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = ledger.MovementRecord{Currency: ledger.USD, Amount: dec("0"), MovementType: ledger.Incoming}.Normalize()
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = ledger.MovementRecord{Currency: ledger.USD}.Normalize()
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestParseAmount(t *testing.T) {
	d, err := ledger.ParseAmount("amount", "12.34")
	require.NoError(t, err)
	assert.True(t, d.Equal(dec("12.34")))

	for _, bad := range []string{"", "abc", "0", "-5"} {
		_, err := ledger.ParseAmount("amount", bad)
		assert.ErrorIs(t, err, ledger.ErrValidation, bad)
	}
}

func TestFormatLocalAccountNumber(t *testing.T) {
	assert.Equal(t, "L-0007", ledger.FormatLocalAccountNumber(7))
	assert.Equal(t, "L-12345", ledger.FormatLocalAccountNumber(12345))
}
