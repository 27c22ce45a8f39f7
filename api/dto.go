/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Money is exchanged as decimal strings ("85.50"). Requests also accept
  JSON numbers; both are parsed into decimal.Decimal, never float64.

VALIDATION:
  Request structs carry go-playground/validator tags for shape checks
  (required, lengths, enums). Domain rules (commission < amount, known
  currency, profit-and-loss protection) stay in the ledger package.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Movement, Money
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/shop-ledger/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateLocalCustomerRequest struct {
	DisplayName string `json:"display_name" validate:"required,max=100"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
	Note        string `json:"note" validate:"omitempty,max=500"`
}

type CreateRegisteredCustomerRequest struct {
	ProfileID string `json:"profile_id" validate:"required"`
}

// RecordMovementRequest is the quick-add form. Commission is only accepted
// on incoming movements.
type RecordMovementRequest struct {
	MovementType string       `json:"movement_type" validate:"required,oneof=incoming outgoing"`
	Amount       json.Number  `json:"amount" validate:"required"`
	Currency     string       `json:"currency" validate:"required,len=3"`
	Note         string       `json:"note" validate:"omitempty,max=500"`
	Commission   *json.Number `json:"commission,omitempty"`
}

type EditMovementRequest struct {
	Amount       *json.Number `json:"amount,omitempty"`
	MovementType *string      `json:"movement_type,omitempty" validate:"omitempty,oneof=incoming outgoing"`
	Note         *string      `json:"note,omitempty" validate:"omitempty,max=500"`
}

type TransferRequest struct {
	FromCustomerID string      `json:"from_customer_id" validate:"required"`
	ToCustomerID   string      `json:"to_customer_id" validate:"required,nefield=FromCustomerID"`
	Amount         json.Number `json:"amount" validate:"required"`
	Currency       string      `json:"currency" validate:"required,len=3"`
	Note           string      `json:"note" validate:"omitempty,max=500"`
}

type SettingsRequest struct {
	ShopName    string `json:"shop_name" validate:"omitempty,max=100"`
	ShopPhone   string `json:"shop_phone" validate:"omitempty,max=32"`
	ShopAddress string `json:"shop_address" validate:"omitempty,max=200"`
	LogoDataURI string `json:"logo_data_uri" validate:"omitempty,startswith=data:image/,max=700000"`
}

type CreateProfileRequest struct {
	Username string `json:"username" validate:"required,min=3,max=33"`
	FullName string `json:"full_name" validate:"required,max=100"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// CUSTOMERS
// =============================================================================

type CustomerDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Secondary     string `json:"secondary_label,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	Kind          string `json:"kind"`
	IsProfitLoss  bool   `json:"is_profit_loss"`
	Phone         string `json:"phone,omitempty"`
	Note          string `json:"note,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func toCustomerDTO(c ledger.Customer) CustomerDTO {
	dto := CustomerDTO{
		ID:            string(c.ID),
		Name:          c.Name,
		Secondary:     c.SecondaryLabel,
		AccountNumber: c.AccountNumberDisplay,
		Kind:          string(c.Kind),
		IsProfitLoss:  c.IsProfitLoss,
		Phone:         c.Phone,
		Note:          c.Note,
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

// BalanceDTO shows a balance and which side it falls on.
type BalanceDTO struct {
	Currency string          `json:"currency"`
	Symbol   string          `json:"symbol"`
	Balance  decimal.Decimal `json:"balance"`
	ForThem  decimal.Decimal `json:"for_them"`
	ForUs    decimal.Decimal `json:"for_us"`
}

func toBalanceDTOs(balances []ledger.Balance) []BalanceDTO {
	out := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		out[i] = BalanceDTO{
			Currency: string(b.Currency),
			Symbol:   b.Currency.Symbol(),
			Balance:  b.Value,
			ForThem:  b.ForThem(),
			ForUs:    b.ForUs(),
		}
	}
	return out
}

type TotalsDTO struct {
	Currency string          `json:"currency"`
	Incoming decimal.Decimal `json:"incoming"`
	Outgoing decimal.Decimal `json:"outgoing"`
	Balance  decimal.Decimal `json:"balance"`
	Count    int             `json:"count"`
}

func toTotalsDTOs(totals []ledger.CurrencyTotals) []TotalsDTO {
	out := make([]TotalsDTO, len(totals))
	for i, t := range totals {
		out[i] = TotalsDTO{
			Currency: string(t.Currency),
			Incoming: t.Incoming,
			Outgoing: t.Outgoing,
			Balance:  t.Balance(),
			Count:    t.Count,
		}
	}
	return out
}

type CustomerSummaryDTO struct {
	Customer       CustomerDTO  `json:"customer"`
	Balances       []BalanceDTO `json:"balances"`
	MovementCount  int          `json:"movement_count"`
	LastMovementAt string       `json:"last_movement_at,omitempty"`
}

func toCustomerSummaryDTO(s ledger.CustomerSummary) CustomerSummaryDTO {
	dto := CustomerSummaryDTO{
		Customer:      toCustomerDTO(s.Customer),
		Balances:      toBalanceDTOs(s.Balances),
		MovementCount: s.MovementCount,
	}
	if !s.LastMovementAt.IsZero() {
		dto.LastMovementAt = s.LastMovementAt.Format(time.RFC3339)
	}
	return dto
}

type ProfileDTO struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	AccountNumber int64  `json:"account_number"`
}

func toProfileDTO(p ledger.Profile) ProfileDTO {
	return ProfileDTO{
		ID:            string(p.ID),
		Username:      p.Username,
		FullName:      p.FullName,
		AccountNumber: p.AccountNumber,
	}
}

// =============================================================================
// MOVEMENTS
// =============================================================================

type MovementDTO struct {
	ID                  string          `json:"id"`
	CustomerID          string          `json:"customer_id"`
	Number              int64           `json:"number"`
	MovementType        string          `json:"movement_type"`
	Amount              decimal.Decimal `json:"amount"`
	SignedAmount        decimal.Decimal `json:"signed_amount"`
	Currency            string          `json:"currency"`
	Note                string          `json:"note,omitempty"`
	IsCommission        bool            `json:"is_commission,omitempty"`
	RelatedCommissionID string          `json:"related_commission_id,omitempty"`
	IsInternalTransfer  bool            `json:"is_internal_transfer,omitempty"`
	TransferGroupID     string          `json:"transfer_group_id,omitempty"`
	SenderName          string          `json:"sender_name,omitempty"`
	BeneficiaryName     string          `json:"beneficiary_name,omitempty"`
	CreatedAt           string          `json:"created_at"`
}

func toMovementDTO(m ledger.Movement) MovementDTO {
	return MovementDTO{
		ID:                  string(m.ID),
		CustomerID:          string(m.CustomerLinkID),
		Number:              m.Number,
		MovementType:        string(m.Direction()),
		Amount:              m.Amount(),
		SignedAmount:        m.Delta,
		Currency:            string(m.Currency),
		Note:                m.Note,
		IsCommission:        m.IsCommission,
		RelatedCommissionID: string(m.RelatedCommissionID),
		IsInternalTransfer:  m.IsInternalTransfer,
		TransferGroupID:     m.TransferGroupID,
		SenderName:          m.SenderName,
		BeneficiaryName:     m.BeneficiaryName,
		CreatedAt:           m.CreatedAt.Format(time.RFC3339),
	}
}

// MovementLineDTO adds the commission-adjusted amounts shown in lists.
type MovementLineDTO struct {
	MovementDTO
	Combined   decimal.Decimal `json:"combined"`
	Commission decimal.Decimal `json:"commission"`
	Net        decimal.Decimal `json:"net"`
}

type RecordMovementResponse struct {
	Movement   MovementDTO  `json:"movement"`
	Commission *MovementDTO `json:"commission,omitempty"`
}

type TransferResponse struct {
	TransferGroupID string      `json:"transfer_group_id"`
	Outgoing        MovementDTO `json:"outgoing"`
	Incoming        MovementDTO `json:"incoming"`
}

// =============================================================================
// VIEWS
// =============================================================================

type MonthGroupDTO struct {
	Year        int         `json:"year"`
	Month       int         `json:"month"`
	MovementIDs []string    `json:"movement_ids"`
	Totals      []TotalsDTO `json:"totals"`
}

type CustomerViewDTO struct {
	Customer  CustomerDTO       `json:"customer"`
	Balances  []BalanceDTO      `json:"balances"`
	Totals    []TotalsDTO       `json:"totals"`
	Movements []MovementLineDTO `json:"movements"`
	Months    []MonthGroupDTO   `json:"months"`
}

func toCustomerViewDTO(v ledger.CustomerView) CustomerViewDTO {
	dto := CustomerViewDTO{
		Customer:  toCustomerDTO(v.Customer),
		Balances:  toBalanceDTOs(v.Balances),
		Totals:    toTotalsDTOs(v.Totals),
		Movements: make([]MovementLineDTO, len(v.Lines)),
		Months:    make([]MonthGroupDTO, len(v.Groups)),
	}
	for i, l := range v.Lines {
		dto.Movements[i] = MovementLineDTO{
			MovementDTO: toMovementDTO(l.Movement),
			Combined:    l.Combined,
			Commission:  l.Commission,
			Net:         l.Net,
		}
	}
	for i, g := range v.Groups {
		ids := make([]string, len(g.Movements))
		for j, m := range g.Movements {
			ids[j] = string(m.ID)
		}
		dto.Months[i] = MonthGroupDTO{
			Year:        g.Key.Year,
			Month:       int(g.Key.Month),
			MovementIDs: ids,
			Totals:      toTotalsDTOs(g.Totals),
		}
	}
	return dto
}

type OwnerReportDTO struct {
	CustomerCount int          `json:"customer_count"`
	MovementCount int          `json:"movement_count"`
	Totals        []TotalsDTO  `json:"totals"`
	Balances      []BalanceDTO `json:"balances"`
	Profit        []TotalsDTO  `json:"profit"`
}

func toOwnerReportDTO(r ledger.OwnerReport) OwnerReportDTO {
	return OwnerReportDTO{
		CustomerCount: r.CustomerCount,
		MovementCount: r.MovementCount,
		Totals:        toTotalsDTOs(r.Totals),
		Balances:      toBalanceDTOs(r.Balances),
		Profit:        toTotalsDTOs(r.Profit),
	}
}

type SnapshotDTO struct {
	CustomerID    string       `json:"customer_id"`
	Balances      []BalanceDTO `json:"balances"`
	MovementCount int          `json:"movement_count"`
	ComputedAt    string       `json:"computed_at"`
}

func toSnapshotDTO(s ledger.BalanceSnapshot) SnapshotDTO {
	return SnapshotDTO{
		CustomerID:    string(s.CustomerLinkID),
		Balances:      toBalanceDTOs(s.Balances),
		MovementCount: s.MovementCount,
		ComputedAt:    s.ComputedAt.Format(time.RFC3339),
	}
}

type SettingsDTO struct {
	ShopName    string `json:"shop_name"`
	ShopPhone   string `json:"shop_phone"`
	ShopAddress string `json:"shop_address"`
	LogoDataURI string `json:"logo_data_uri"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func toSettingsDTO(s ledger.ShopSettings) SettingsDTO {
	dto := SettingsDTO{
		ShopName:    s.ShopName,
		ShopPhone:   s.ShopPhone,
		ShopAddress: s.ShopAddress,
		LogoDataURI: s.LogoDataURI,
	}
	if !s.UpdatedAt.IsZero() {
		dto.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// SCENARIOS & ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type FieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string          `json:"error"`
	Code       string          `json:"code"`
	Details    string          `json:"details,omitempty"`
	Fields     []FieldErrorDTO `json:"fields,omitempty"`
	RolledBack *bool           `json:"rolled_back,omitempty"`
	Balances   []BalanceDTO    `json:"balances,omitempty"`
}
