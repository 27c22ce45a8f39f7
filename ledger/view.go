/*
view.go - Read side: fetch, join, aggregate

PURPOSE:
  Each view is an all-or-nothing fetch followed by one pure aggregation.
  Independent fetches run concurrently (errgroup) and are joined before the
  engine runs; a failed fetch fails the view with a TransientError and the
  engine never sees partial input.

VIEWS:
  CustomerView:  one customer, visible movements newest first, balances in
                 currency order, totals, monthly groups, per-line combined
                 and net amounts
  CustomerList:  every resolvable customer with non-zero balances sorted by
                 descending magnitude
  OwnerReport:   totals across all customers, commission income separately
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// MovementLine is a movement with its commission-adjusted amounts.
type MovementLine struct {
	Movement
	Combined   decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal
}

type CustomerView struct {
	Customer Customer
	Lines    []MovementLine // newest first, after search filtering
	Balances []Balance      // currency order, non-zero only, as of To (or now)
	Totals   []CurrencyTotals
	Groups   []MonthGroup
	Opening  []Balance // balances carried into From; nil without a range start
}

type ViewOptions struct {
	Location *time.Location
	Query    string    // free-text movement search
	From, To time.Time // optional statement range, zero = open
}

// LoadCustomerView fetches a customer and its movements and aggregates them.
func (s *Service) LoadCustomerView(ctx context.Context, owner OwnerID, id LinkID, opts ViewOptions) (CustomerView, error) {
	var (
		customer    Customer
		movements   []Movement
		commissions []Movement
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		customer, err = s.resolver.Resolve(gctx, owner, id)
		return err
	})
	g.Go(func() error {
		var err error
		movements, err = s.store.ListMovements(gctx, MovementQuery{OwnerID: owner, CustomerLinkID: id})
		return err
	})
	g.Go(func() error {
		var err error
		commissions, err = s.store.ListMovements(gctx, MovementQuery{OwnerID: owner, OnlyCommission: true})
		return err
	})
	if err := g.Wait(); err != nil {
		return CustomerView{}, transient("load customer view", err)
	}

	return BuildCustomerView(customer, movements, commissions, opts), nil
}

// BuildCustomerView is the pure half of LoadCustomerView. commissions holds
// the owner's commission movements, wherever they are posted.
func BuildCustomerView(customer Customer, movements, commissions []Movement, opts ViewOptions) CustomerView {
	all := Visible(movements, customer.IsProfitLoss)
	visible := Between(all, opts.From, opts.To)

	pool := make([]Movement, 0, len(movements)+len(commissions))
	pool = append(pool, movements...)
	pool = append(pool, commissions...)

	lines := make([]MovementLine, 0, len(visible))
	for _, m := range NewestFirst(SearchMovements(visible, opts.Query, opts.Location)) {
		line := MovementLine{Movement: m, Combined: m.Amount(), Commission: decimal.Zero, Net: m.Amount()}
		if !m.IsCommission {
			line.Combined = CombinedAmount(m, pool)
			line.Commission = CommissionFor(m, pool)
			line.Net = m.Amount().Sub(line.Commission)
		}
		lines = append(lines, line)
	}

	return CustomerView{
		Customer: customer,
		Lines:    lines,
		Balances: Balances(Between(all, time.Time{}, opts.To), SortByCurrency),
		Totals:   Totals(visible),
		Groups:   MonthlyGroups(visible, opts.Location),
		Opening:  OpeningBalances(all, opts.From),
	}
}

// =============================================================================
// LIST VIEW
// =============================================================================

type CustomerSummary struct {
	Customer       Customer
	Balances       []Balance // descending magnitude, non-zero only
	MovementCount  int
	LastMovementAt time.Time
}

// LoadCustomerList returns every resolvable customer with its balances,
// most recently active first. Dangling links are skipped by the resolver.
func (s *Service) LoadCustomerList(ctx context.Context, owner OwnerID) ([]CustomerSummary, error) {
	var (
		customers []Customer
		movements []Movement
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		links, err := s.store.ListLinks(gctx, owner)
		if err != nil {
			return err
		}
		customers, err = s.resolver.ResolveAll(gctx, owner, links)
		return err
	})
	g.Go(func() error {
		var err error
		movements, err = s.store.ListMovements(gctx, MovementQuery{OwnerID: owner})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, transient("load customer list", err)
	}

	return BuildCustomerList(customers, movements), nil
}

func BuildCustomerList(customers []Customer, movements []Movement) []CustomerSummary {
	byLink := make(map[LinkID][]Movement)
	for _, m := range movements {
		byLink[m.CustomerLinkID] = append(byLink[m.CustomerLinkID], m)
	}

	out := make([]CustomerSummary, 0, len(customers))
	for _, c := range customers {
		visible := Visible(byLink[c.ID], c.IsProfitLoss)
		summary := CustomerSummary{
			Customer:      c,
			Balances:      Balances(visible, SortByMagnitude),
			MovementCount: len(visible),
		}
		for _, m := range visible {
			if m.CreatedAt.After(summary.LastMovementAt) {
				summary.LastMovementAt = m.CreatedAt
			}
		}
		out = append(out, summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].LastMovementAt, out[j].LastMovementAt
		if ai.IsZero() {
			ai = out[i].Customer.CreatedAt
		}
		if aj.IsZero() {
			aj = out[j].Customer.CreatedAt
		}
		return ai.After(aj)
	})
	return out
}

// =============================================================================
// OWNER REPORT
// =============================================================================

type OwnerReport struct {
	CustomerCount int
	MovementCount int
	Totals        []CurrencyTotals // ordinary movements, all customers
	Balances      []Balance        // net of Totals, non-zero only
	Profit        []CurrencyTotals // commission income
}

func (s *Service) LoadOwnerReport(ctx context.Context, owner OwnerID) (OwnerReport, error) {
	var (
		links     []CustomerLink
		movements []Movement
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		links, err = s.store.ListLinks(gctx, owner)
		return err
	})
	g.Go(func() error {
		var err error
		movements, err = s.store.ListMovements(gctx, MovementQuery{OwnerID: owner})
		return err
	})
	if err := g.Wait(); err != nil {
		return OwnerReport{}, transient("load owner report", err)
	}

	customers := 0
	for _, l := range links {
		if !l.IsProfitLoss {
			customers++
		}
	}
	ordinary := Visible(movements, false)
	return OwnerReport{
		CustomerCount: customers,
		MovementCount: len(movements),
		Totals:        Totals(ordinary),
		Balances:      Balances(ordinary, SortByCurrency),
		Profit:        Totals(Visible(movements, true)),
	}, nil
}
