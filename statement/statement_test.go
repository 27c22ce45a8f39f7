package statement

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shop-ledger/ledger"
)

// =============================================================================
// AMOUNT IN WORDS
// =============================================================================

func TestIntegerToArabic(t *testing.T) {
	cases := map[int64]string{
		0:         "صفر",
		1:         "واحد",
		15:        "خمسة عشر",
		20:        "عشرون",
		25:        "خمسة وعشرون",
		100:       "مائة",
		125:       "مائة وخمسة وعشرون",
		200:       "مئتان",
		1000:      "ألف",
		1500:      "ألف وخمسمائة",
		2000:      "ألفان",
		3000:      "ثلاثة آلاف",
		11000:     "أحد عشر ألف",
		1_000_000: "مليون",
		2_500_000: "مليونان وخمسمائة ألف",
		-85:       "خمسة وثمانون",
	}
	for n, want := range cases {
		assert.Equal(t, want, IntegerToArabic(n), "n=%d", n)
	}
}

func TestAmountInWords(t *testing.T) {
	// Fractions are dropped; the currency name follows.
	got := AmountInWords(decimal.RequireFromString("85.75"), ledger.USD)
	assert.Equal(t, "خمسة وثمانون دولار أمريكي لا غير", got)

	unknown := AmountInWords(decimal.NewFromInt(3), ledger.Currency("XYZ"))
	assert.Equal(t, "ثلاثة XYZ لا غير", unknown)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "0.00", formatMoney(decimal.Zero))
	assert.Equal(t, "999.50", formatMoney(decimal.RequireFromString("999.5")))
	assert.Equal(t, "1,234.50", formatMoney(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "-1,234,567.00", formatMoney(decimal.NewFromInt(-1234567)))
}

// =============================================================================
// LABELS
// =============================================================================

func TestLabels(t *testing.T) {
	ar := NewLabels("ar")
	assert.Equal(t, "كشف حساب", ar.T(LabelStatement))
	assert.Equal(t, "rtl", ar.Dir())
	assert.Equal(t, "مارس", ar.Month(time.March))

	en := NewLabels("en-US")
	assert.Equal(t, "Account statement", en.T(LabelStatement))
	assert.Equal(t, "ltr", en.Dir())
	assert.Equal(t, "March", en.Month(time.March))

	assert.True(t, NewLabels("").Arabic())
}

// =============================================================================
// DOCUMENTS
// =============================================================================

var (
	march = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	april = time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
)

func movement(id string, number int64, delta string, currency ledger.Currency, at time.Time) ledger.Movement {
	return ledger.Movement{
		ID:             ledger.MovementID(id),
		OwnerID:        "owner-1",
		CustomerLinkID: "link-ahmed",
		Number:         number,
		Currency:       currency,
		Delta:          decimal.RequireFromString(delta),
		CreatedAt:      at,
	}
}

// ahmedView is an incoming 100 USD with 15 commission, then a 40 USD
// delivery, plus a YER pair that nets to zero.
func ahmedView(opts ledger.ViewOptions) ledger.CustomerView {
	customer := ledger.Customer{ID: "link-ahmed", Name: "أحمد", AccountNumberDisplay: "L-0001", Kind: ledger.KindLocal}
	movements := []ledger.Movement{
		movement("m1", 1, "100", ledger.USD, march),
		movement("m3", 3, "500", ledger.YER, march.Add(time.Hour)),
		movement("m4", 4, "-500", ledger.YER, march.Add(2*time.Hour)),
		movement("m5", 5, "-40", ledger.USD, april),
	}
	commission := movement("m2", 2, "15", ledger.USD, march)
	commission.CustomerLinkID = "link-pl"
	commission.IsCommission = true
	commission.RelatedCommissionID = "m1"
	return ledger.BuildCustomerView(customer, movements, []ledger.Movement{commission}, opts)
}

func TestBuildStatement(t *testing.T) {
	// GIVEN: a computed customer view
	view := ahmedView(ledger.ViewOptions{})

	// WHEN: the statement is built
	st := BuildStatement(view, Branding{}, time.Time{}, time.Time{}, Options{Labels: NewLabels("ar")})

	// THEN: branding falls back to the default shop name
	assert.Equal(t, "التطبيق المحاسبي", st.Branding.ShopName)
	assert.Equal(t, "L-0001", st.Customer.AccountNumber)

	// AND: only USD has a current balance (100 - 40 = 60, for them)
	require.Len(t, st.Balances, 1)
	assert.Equal(t, ledger.USD, st.Balances[0].Currency)
	assert.True(t, decimal.NewFromInt(60).Equal(st.Balances[0].ForThem))
	assert.True(t, st.Balances[0].ForUs.IsZero())

	// AND: months are newest first and the zero-net YER stays in March totals
	require.Len(t, st.Months, 2)
	assert.Equal(t, "أبريل 2024", st.Months[0].Title)
	assert.Equal(t, "مارس 2024", st.Months[1].Title)
	assert.Len(t, st.Months[1].Totals, 2)

	// AND: the commission line shows gross, commission and net
	var m1 Line
	for _, l := range st.Months[1].Lines {
		if l.ID == "m1" {
			m1 = l
		}
	}
	assert.True(t, decimal.NewFromInt(100).Equal(m1.Amount))
	assert.True(t, decimal.NewFromInt(15).Equal(m1.Commission))
	assert.True(t, decimal.NewFromInt(85).Equal(m1.Net))
}

func TestBuildStatementWithRange(t *testing.T) {
	from := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	view := ahmedView(ledger.ViewOptions{From: from})

	st := BuildStatement(view, Branding{ShopName: "محل النور"}, from, time.Time{}, Options{})

	// Opening balance carries March, zero YER included.
	require.Len(t, st.Opening, 2)
	assert.True(t, decimal.NewFromInt(100).Equal(st.Opening[0].Balance))
	assert.True(t, st.Opening[1].Balance.IsZero())
	require.Len(t, st.Months, 1)
	assert.Equal(t, 1, st.MovementCount)

	// Balances include the opening: 100 carried in, 40 delivered in April.
	require.Len(t, st.Balances, 1)
	assert.Equal(t, ledger.USD, st.Balances[0].Currency)
	assert.True(t, decimal.NewFromInt(60).Equal(st.Balances[0].Balance))
}

func TestBuildStatementWithClosingDate(t *testing.T) {
	// GIVEN: a March-only statement
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	view := ahmedView(ledger.ViewOptions{From: from, To: to})

	// WHEN: building and rendering it
	st := BuildStatement(view, Branding{ShopName: "محل النور"}, from, to, Options{})
	r, err := NewRenderer()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.RenderStatement(&buf, st))

	// THEN: the closing balance ignores the April delivery
	require.Len(t, st.Balances, 1)
	assert.True(t, decimal.NewFromInt(100).Equal(st.Balances[0].Balance))
	assert.Contains(t, buf.String(), "الرصيد الختامي")
	assert.NotContains(t, buf.String(), "الأرصدة الحالية")
}

func TestBuildReceipt(t *testing.T) {
	view := ahmedView(ledger.ViewOptions{})

	r, err := BuildReceipt(view, "m1", Branding{ShopName: "محل النور"}, Options{})
	require.NoError(t, err)

	assert.Equal(t, "000001", r.Number)
	assert.Equal(t, "استلام من العميل", r.Title)
	assert.True(t, decimal.NewFromInt(100).Equal(r.Amount))
	assert.True(t, decimal.NewFromInt(85).Equal(r.Net))
	assert.Equal(t, "خمسة وثمانون دولار أمريكي لا غير", r.AmountInWords)
	assert.Equal(t, ledger.ProfitLossName, r.Recipient)
	require.Len(t, r.BalanceAfter, 1)
	assert.True(t, decimal.NewFromInt(100).Equal(r.BalanceAfter[0].Balance))

	delivery, err := BuildReceipt(view, "m5", Branding{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, "تسليم للعميل", delivery.Title)
	assert.Empty(t, delivery.Recipient)

	_, err = BuildReceipt(view, "missing", Branding{}, Options{})
	assert.True(t, ledger.IsNotFound(err))
}

func TestBuildReceiptForTransfer(t *testing.T) {
	leg := movement("t1", 9, "-50", ledger.USD, march)
	leg.IsInternalTransfer = true
	leg.TransferGroupID = "group-1"
	leg.SenderName = "أحمد"
	leg.BeneficiaryName = "سارة"
	view := ledger.BuildCustomerView(ledger.Customer{ID: "link-ahmed", Name: "أحمد"}, []ledger.Movement{leg}, nil, ledger.ViewOptions{})

	r, err := BuildReceipt(view, "t1", Branding{}, Options{Labels: NewLabels("en")})
	require.NoError(t, err)
	assert.Equal(t, "Internal transfer between customers", r.Title)
	assert.Equal(t, "سارة", r.Beneficiary)
	assert.True(t, r.Transfer)
}

// =============================================================================
// RENDERING
// =============================================================================

func TestRenderStatement(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	st := BuildStatement(ahmedView(ledger.ViewOptions{}), Branding{
		ShopName:    "محل <النور>",
		LogoDataURI: "data:image/png;base64,AAAA",
	}, time.Time{}, time.Time{}, Options{})

	var buf bytes.Buffer
	require.NoError(t, r.RenderStatement(&buf, st))
	html := buf.String()

	assert.Contains(t, html, `dir="rtl"`)
	assert.Contains(t, html, "كشف حساب")
	assert.Contains(t, html, "محل &lt;النور&gt;")
	assert.Contains(t, html, `src="data:image/png;base64,AAAA"`)
	assert.Contains(t, html, "100.00")
	assert.Contains(t, html, "مارس 2024")
}

func TestRenderReceiptDropsUnsafeLogo(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	rc, err := BuildReceipt(ahmedView(ledger.ViewOptions{}), "m1", Branding{LogoDataURI: "javascript:alert(1)"}, Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.RenderReceipt(&buf, rc))
	html := buf.String()

	assert.NotContains(t, html, "javascript:")
	assert.Contains(t, html, "خمسة وثمانون دولار أمريكي لا غير")
	assert.Contains(t, html, ledger.ProfitLossName)
}
