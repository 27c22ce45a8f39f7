/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates customers and records
	movements for the requesting owner through the ledger service, so the
	same validation, commission split and refresh signals apply.

AVAILABLE SCENARIOS:

	remittance:     Incoming with commission, a delivery, a zero-net currency
	multi-currency: Several customers across all supported currencies
	empty-shop:     Clean database, profit-and-loss account only

HOW SCENARIOS WORK:
 1. Reset database (clear all data, every owner)
 2. Create platform profiles and customers
 3. Record movements with dates spread over recent months

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "remittance"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handlers
  - ledger/commission.go: Commission split
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/shop-ledger/ledger"
	"github.com/warp/shop-ledger/logger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "remittance",
		Name:        "Remittance",
		Description: "Ahmed receives 100 USD with a 15 USD commission, takes 40 USD, and settles a YER pair",
	},
	{
		ID:          "multi-currency",
		Name:        "Multi-Currency Shop",
		Description: "Local and registered customers with balances in every supported currency, plus an internal transfer",
	},
	{
		ID:          "empty-shop",
		Name:        "Empty Shop",
		Description: "Clean database with only the profit-and-loss account",
	},
}

type scenarioLoader func(ctx context.Context, svc *ledger.Service, owner ledger.OwnerID) error

var scenarioLoaders = map[string]scenarioLoader{
	"remittance":     loadRemittanceScenario,
	"multi-currency": loadMultiCurrencyScenario,
	"empty-shop":     loadEmptyShopScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario for the requesting owner.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID, mustOwner(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "loaded",
		"scenario": req.ScenarioID,
	})
}

func (h *Handler) loadScenario(ctx context.Context, id string, owner ledger.OwnerID) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return &ledger.NotFoundError{Resource: "scenario", ID: id}
	}

	if err := h.Shop.Reset(ctx); err != nil {
		return fmt.Errorf("reset database: %w", err)
	}
	if err := load(ctx, h.Service, owner); err != nil {
		return fmt.Errorf("load scenario %s: %w", id, err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()

	logger.FromContext(ctx).Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seeder records movements relative to the service clock.
type seeder struct {
	ctx   context.Context
	svc   *ledger.Service
	owner ledger.OwnerID
	now   time.Time
	err   error
}

func newSeeder(ctx context.Context, svc *ledger.Service, owner ledger.OwnerID) *seeder {
	return &seeder{ctx: ctx, svc: svc, owner: owner, now: svc.Now()}
}

func (s *seeder) local(name, phone string) ledger.LinkID {
	if s.err != nil {
		return ""
	}
	c, err := s.svc.AddLocalCustomer(s.ctx, s.owner, ledger.LocalCustomerInput{DisplayName: name, Phone: phone})
	s.err = err
	return c.ID
}

func (s *seeder) registered(username, fullName string) ledger.LinkID {
	if s.err != nil {
		return ""
	}
	p, err := s.svc.CreateProfile(s.ctx, ledger.ProfileDraft{Username: username, FullName: fullName})
	if err != nil {
		s.err = err
		return ""
	}
	c, err := s.svc.AddRegisteredCustomer(s.ctx, s.owner, p.ID)
	s.err = err
	return c.ID
}

// move records a movement daysAgo days before now. commission "" means none.
func (s *seeder) move(link ledger.LinkID, daysAgo int, dir ledger.Direction, amount string, currency ledger.Currency, commission, note string) {
	if s.err != nil {
		return
	}
	in := ledger.MovementInput{
		OwnerID:        s.owner,
		CustomerLinkID: link,
		Direction:      dir,
		Amount:         decimal.RequireFromString(amount),
		Currency:       currency,
		Note:           note,
		CreatedAt:      s.now.AddDate(0, 0, -daysAgo),
	}
	if commission != "" {
		c := decimal.RequireFromString(commission)
		in.Commission = &c
	}
	_, s.err = s.svc.RecordMovement(s.ctx, in)
}

func (s *seeder) transfer(from, to ledger.LinkID, daysAgo int, amount string, currency ledger.Currency, note string) {
	if s.err != nil {
		return
	}
	_, s.err = s.svc.Transfer(s.ctx, ledger.TransferInput{
		OwnerID:   s.owner,
		FromLink:  from,
		ToLink:    to,
		Amount:    decimal.RequireFromString(amount),
		Currency:  currency,
		Note:      note,
		CreatedAt: s.now.AddDate(0, 0, -daysAgo),
	})
}

// loadRemittanceScenario: Ahmed ends at +60 USD (for them), the YER pair
// nets to zero, and the profit-and-loss account holds 15 USD.
func loadRemittanceScenario(ctx context.Context, svc *ledger.Service, owner ledger.OwnerID) error {
	s := newSeeder(ctx, svc, owner)

	ahmed := s.local("أحمد علي", "777000111")
	s.move(ahmed, 40, ledger.Incoming, "100", ledger.USD, "15", "حوالة من الرياض")
	s.move(ahmed, 38, ledger.Incoming, "50000", ledger.YER, "", "")
	s.move(ahmed, 37, ledger.Outgoing, "50000", ledger.YER, "", "")
	s.move(ahmed, 5, ledger.Outgoing, "40", ledger.USD, "", "تسليم نقدي")

	return s.err
}

func loadMultiCurrencyScenario(ctx context.Context, svc *ledger.Service, owner ledger.OwnerID) error {
	s := newSeeder(ctx, svc, owner)

	sara := s.local("سارة محمد", "771234567")
	omar := s.local("عمر حسن", "")
	khaled := s.registered("khaled.s", "خالد سالم")

	s.move(sara, 70, ledger.Incoming, "1000", ledger.SAR, "25", "")
	s.move(sara, 65, ledger.Outgoing, "300", ledger.SAR, "", "")
	s.move(sara, 60, ledger.Incoming, "200000", ledger.YER, "", "")
	s.move(omar, 45, ledger.Outgoing, "500", ledger.EGP, "", "سلفة")
	s.move(omar, 30, ledger.Incoming, "250", ledger.EUR, "10", "")
	s.move(khaled, 20, ledger.Incoming, "1200", ledger.AED, "", "")
	s.move(khaled, 12, ledger.Outgoing, "400", ledger.QAR, "", "")
	s.move(khaled, 3, ledger.Incoming, "750", ledger.USD, "20", "")
	s.transfer(sara, omar, 2, "50000", ledger.YER, "تحويل داخلي")

	return s.err
}

func loadEmptyShopScenario(ctx context.Context, svc *ledger.Service, owner ledger.OwnerID) error {
	_, err := svc.ProfitLossCustomer(ctx, owner)
	return err
}
