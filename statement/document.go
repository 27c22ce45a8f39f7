package statement

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/shop-ledger/ledger"
)

// =============================================================================
// BRANDING
// =============================================================================

// Branding is the owner-supplied presentation metadata.
type Branding struct {
	ShopName    string `json:"shop_name"`
	ShopPhone   string `json:"shop_phone,omitempty"`
	ShopAddress string `json:"shop_address,omitempty"`
	LogoDataURI string `json:"logo_data_uri,omitempty"`
}

func BrandingFrom(s ledger.ShopSettings) Branding {
	return Branding{
		ShopName:    s.ShopName,
		ShopPhone:   s.ShopPhone,
		ShopAddress: s.ShopAddress,
		LogoDataURI: s.LogoDataURI,
	}
}

// Options control document localization.
type Options struct {
	Labels      Labels
	Location    *time.Location
	GeneratedAt time.Time
}

func (o Options) withDefaults() Options {
	if o.Labels.printer == nil {
		o.Labels = NewLabels("ar")
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.GeneratedAt.IsZero() {
		o.GeneratedAt = time.Now()
	}
	return o
}

// locale gives templates access to labels and local dates.
type locale struct {
	labels   Labels
	location *time.Location
}

func (l locale) T(key string) string { return l.labels.T(key) }
func (l locale) Dir() string { return l.labels.Dir() }
func (l locale) Lang() string { return l.labels.Lang() }
func (l locale) Day(t time.Time) string { return t.In(l.location).Format("2006-01-02") }
func (l locale) Clock(t time.Time) string { return t.In(l.location).Format("15:04:05") }

// =============================================================================
// STATEMENT
// =============================================================================

type BalanceLine struct {
	Currency ledger.Currency `json:"currency"`
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Balance  decimal.Decimal `json:"balance"`
	ForThem  decimal.Decimal `json:"for_them"`
	ForUs    decimal.Decimal `json:"for_us"`
}

type TotalsLine struct {
	Currency ledger.Currency `json:"currency"`
	Symbol   string          `json:"symbol"`
	Incoming decimal.Decimal `json:"incoming"`
	Outgoing decimal.Decimal `json:"outgoing"`
	Balance  decimal.Decimal `json:"balance"`
	Count    int             `json:"count"`
}

// Line is one movement row on a statement.
type Line struct {
	ID         ledger.MovementID `json:"id"`
	Number     int64             `json:"number"`
	Date       time.Time         `json:"date"`
	Direction  ledger.Direction  `json:"movement_type"`
	Currency   ledger.Currency   `json:"currency"`
	Symbol     string            `json:"symbol"`
	Amount     decimal.Decimal   `json:"amount"` // combined
	Commission decimal.Decimal   `json:"commission"`
	Net        decimal.Decimal   `json:"net"`
	Note       string            `json:"note,omitempty"`
	Transfer   bool              `json:"is_internal_transfer,omitempty"`
}

type MonthSection struct {
	Year   int          `json:"year"`
	Month  time.Month   `json:"month"`
	Title  string       `json:"title"`
	Lines  []Line       `json:"lines"`
	Totals []TotalsLine `json:"totals"`
}

type Statement struct {
	Branding      Branding       `json:"branding"`
	Customer      CustomerHeader `json:"customer"`
	From          time.Time      `json:"from,omitempty"`
	To            time.Time      `json:"to,omitempty"`
	GeneratedAt   time.Time      `json:"generated_at"`
	Opening       []BalanceLine  `json:"opening,omitempty"`
	Balances      []BalanceLine  `json:"balances"`
	Totals        []TotalsLine   `json:"totals"`
	Months        []MonthSection `json:"months"`
	MovementCount int            `json:"movement_count"`

	locale
}

type CustomerHeader struct {
	Name          string `json:"name"`
	Secondary     string `json:"secondary,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	ProfitLoss    bool   `json:"is_profit_loss,omitempty"`
}

func headerFor(c ledger.Customer) CustomerHeader {
	return CustomerHeader{
		Name:          c.Name,
		Secondary:     c.SecondaryLabel,
		AccountNumber: c.AccountNumberDisplay,
		ProfitLoss:    c.IsProfitLoss,
	}
}

// BuildStatement shapes a computed customer view into a statement. from and
// to are the range the view was loaded with; zero means open.
func BuildStatement(view ledger.CustomerView, branding Branding, from, to time.Time, opts Options) Statement {
	opts = opts.withDefaults()
	if branding.ShopName == "" {
		branding.ShopName = opts.Labels.T(LabelDefaultShop)
	}

	lines := make(map[ledger.MovementID]ledger.MovementLine, len(view.Lines))
	for _, l := range view.Lines {
		lines[l.ID] = l
	}

	st := Statement{
		Branding:      branding,
		Customer:      headerFor(view.Customer),
		From:          from,
		To:            to,
		GeneratedAt:   opts.GeneratedAt,
		Opening:       balanceLines(view.Opening, opts.Labels),
		Balances:      balanceLines(view.Balances, opts.Labels),
		Totals:        totalsLines(view.Totals),
		MovementCount: len(view.Lines),
		locale:        locale{labels: opts.Labels, location: opts.Location},
	}

	for _, g := range view.Groups {
		section := MonthSection{
			Year:   g.Key.Year,
			Month:  g.Key.Month,
			Title:  opts.Labels.Month(g.Key.Month) + " " + strconv.Itoa(g.Key.Year),
			Totals: totalsLines(g.Totals),
		}
		for _, m := range g.Movements {
			ml, ok := lines[m.ID]
			if !ok {
				// Filtered out by a search query.
				continue
			}
			section.Lines = append(section.Lines, lineFor(ml))
		}
		st.Months = append(st.Months, section)
	}
	return st
}

func lineFor(ml ledger.MovementLine) Line {
	return Line{
		ID:         ml.ID,
		Number:     ml.Number,
		Date:       ml.CreatedAt,
		Direction:  ml.Direction(),
		Currency:   ml.Currency,
		Symbol:     ml.Currency.Symbol(),
		Amount:     ml.Combined,
		Commission: ml.Commission,
		Net:        ml.Net,
		Note:       ml.Note,
		Transfer:   ml.IsInternalTransfer,
	}
}

func balanceLines(balances []ledger.Balance, labels Labels) []BalanceLine {
	if balances == nil {
		return nil
	}
	out := make([]BalanceLine, 0, len(balances))
	for _, b := range balances {
		out = append(out, BalanceLine{
			Currency: b.Currency,
			Symbol:   b.Currency.Symbol(),
			Name:     b.Currency.Name(labels.Arabic()),
			Balance:  b.Value,
			ForThem:  b.ForThem(),
			ForUs:    b.ForUs(),
		})
	}
	return out
}

func totalsLines(totals []ledger.CurrencyTotals) []TotalsLine {
	out := make([]TotalsLine, 0, len(totals))
	for _, t := range totals {
		out = append(out, TotalsLine{
			Currency: t.Currency,
			Symbol:   t.Currency.Symbol(),
			Incoming: t.Incoming,
			Outgoing: t.Outgoing,
			Balance:  t.Balance(),
			Count:    t.Count,
		})
	}
	return out
}

// =============================================================================
// RECEIPT
// =============================================================================

type Receipt struct {
	Branding      Branding          `json:"branding"`
	MovementID    ledger.MovementID `json:"movement_id"`
	Number        string            `json:"receipt_number"`
	Date          time.Time         `json:"date"`
	Title         string            `json:"title"`
	Notice        string            `json:"notice"`
	Customer      CustomerHeader    `json:"customer"`
	Direction     ledger.Direction  `json:"movement_type"`
	Currency      ledger.Currency   `json:"currency"`
	CurrencyName  string            `json:"currency_name"`
	Symbol        string            `json:"symbol"`
	Amount        decimal.Decimal   `json:"amount"`
	Commission    decimal.Decimal   `json:"commission"`
	Net           decimal.Decimal   `json:"net"`
	AmountInWords string            `json:"amount_in_words"`
	Recipient     string            `json:"commission_recipient,omitempty"`
	Sender        string            `json:"sender_name,omitempty"`
	Beneficiary   string            `json:"beneficiary_name,omitempty"`
	Note          string            `json:"note"`
	Transfer      bool              `json:"is_internal_transfer"`
	BalanceAfter  []BalanceLine     `json:"balance_after,omitempty"`

	locale
}

// BuildReceipt builds the receipt for one movement of view. Balances after
// the movement are computed from the view's lines up to and including it.
func BuildReceipt(view ledger.CustomerView, id ledger.MovementID, branding Branding, opts Options) (Receipt, error) {
	opts = opts.withDefaults()
	if branding.ShopName == "" {
		branding.ShopName = opts.Labels.T(LabelDefaultShop)
	}

	idx := -1
	for i, l := range view.Lines {
		if l.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Receipt{}, &ledger.NotFoundError{Resource: "movement", ID: string(id)}
	}
	ml := view.Lines[idx]
	labels := opts.Labels

	r := Receipt{
		Branding:      branding,
		MovementID:    ml.ID,
		Number:        fmt.Sprintf("%06d", ml.Number),
		Date:          ml.CreatedAt,
		Customer:      headerFor(view.Customer),
		Direction:     ml.Direction(),
		Currency:      ml.Currency,
		CurrencyName:  ml.Currency.Name(labels.Arabic()),
		Symbol:        ml.Currency.Symbol(),
		Amount:        ml.Combined,
		Commission:    ml.Commission,
		Net:           ml.Net,
		AmountInWords: AmountInWords(ml.Net, ml.Currency),
		Sender:        ml.SenderName,
		Beneficiary:   ml.BeneficiaryName,
		Note:          ml.Note,
		Transfer:      ml.IsInternalTransfer,
		locale:        locale{labels: labels, location: opts.Location},
	}
	if ml.Commission.IsPositive() {
		r.Recipient = ledger.ProfitLossName
	}

	switch {
	case ml.IsCommission:
		r.Title = labels.T(LabelCommissionLine)
		r.Notice = labels.T(LabelNoticeIn)
	case ml.IsInternalTransfer:
		r.Title = labels.T(LabelTransfer)
		r.Notice = labels.T(LabelNoticeTransfer)
	case ml.Direction() == ledger.Outgoing:
		r.Title = labels.T(LabelDeliverTo)
		r.Notice = labels.T(LabelNoticeOut)
	default:
		r.Title = labels.T(LabelReceiveFrom)
		r.Notice = labels.T(LabelNoticeIn)
	}

	// Lines are newest first: everything from idx onward happened at or
	// before this movement.
	upTo := make([]ledger.Movement, 0, len(view.Lines)-idx)
	for _, l := range view.Lines[idx:] {
		upTo = append(upTo, l.Movement)
	}
	r.BalanceAfter = balanceLines(ledger.Balances(upTo, ledger.SortByCurrency), labels)
	return r, nil
}
