/*
Package ledger provides the bookkeeping core for shop owners.

PURPOSE:
  A shop owner keeps a private list of customers and records money movements
  against each of them, in several currencies. This package turns those
  movement records into balances, totals, commission-adjusted amounts and
  monthly statement groups, and owns the write paths that keep the records
  consistent (commission split, transfers, reset/delete).

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: a decimal value tagged with a currency
  - Movement: one signed, currency-tagged ledger entry against a CustomerLink
  - MovementRecord: the storage/wire shape, which may carry either the older
    direction encoding (movement_type + amount) or the newer signed_amount
  - MovementDraft: what the write path hands to the store

CANONICAL SIGN:
  Movement.Delta is the only signed representation used internally.
    incoming  -> Delta = +amount  (customer's favor)
    outgoing  -> Delta = -amount
  Amount() and Direction() are derived from Delta, never stored separately.

PRECISION:
  All arithmetic uses decimal.Decimal. Binary floats never touch balances.

SEE ALSO:
  - balance.go: the pure aggregation engine
  - commission.go: the commission splitter
  - customer.go: the customer identity model
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// OwnerID identifies the authenticated shop owner. It is opaque to the core;
// it is the same value as the owner's own platform ProfileID.
type OwnerID string

type LinkID string
type MovementID string
type ProfileID string
type LocalCustomerID string

// =============================================================================
// MONEY - Decimal value with a currency
// =============================================================================

type Money struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewMoney(value decimal.Decimal, currency Currency) Money {
	return Money{Value: value, Currency: currency}
}

func (m Money) Add(o Money) Money { return Money{Value: m.Value.Add(o.Value), Currency: m.Currency} }
func (m Money) Sub(o Money) Money { return Money{Value: m.Value.Sub(o.Value), Currency: m.Currency} }
func (m Money) Neg() Money { return Money{Value: m.Value.Neg(), Currency: m.Currency} }
func (m Money) Abs() Money { return Money{Value: m.Value.Abs(), Currency: m.Currency} }
func (m Money) IsZero() bool { return m.Value.IsZero() }
func (m Money) IsNegative() bool { return m.Value.IsNegative() }
func (m Money) IsPositive() bool { return m.Value.IsPositive() }
func (m Money) String() string { return m.Value.StringFixed(2) + " " + string(m.Currency) }

// ParseAmount parses user input into a strictly positive decimal.
func ParseAmount(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Message: fmt.Sprintf("%q is not a number", s)}
	}
	if !d.IsPositive() {
		return decimal.Zero, &ValidationError{Field: field, Message: "must be greater than zero"}
	}
	return d, nil
}

// =============================================================================
// DIRECTION
// =============================================================================

type Direction string

const (
	Incoming Direction = "incoming" // customer's favor: +amount
	Outgoing Direction = "outgoing" // -amount
)

func (d Direction) Valid() bool { return d == Incoming || d == Outgoing }

// Sign applies the direction to an unsigned amount.
func (d Direction) Sign(amount decimal.Decimal) decimal.Decimal {
	if d == Outgoing {
		return amount.Abs().Neg()
	}
	return amount.Abs()
}

// =============================================================================
// MOVEMENT - The atomic ledger entry
// =============================================================================

type Movement struct {
	ID             MovementID
	OwnerID        OwnerID
	CustomerLinkID LinkID
	Number         int64 // sequential display number, globally unique
	Currency       Currency
	Delta          decimal.Decimal
	Note           string

	// Commission linkage. RelatedCommissionID points from the derived
	// profit-and-loss movement back to the primary it was split from.
	IsCommission        bool
	RelatedCommissionID MovementID

	// Internal transfer linkage.
	IsInternalTransfer bool
	TransferGroupID    string
	SenderName         string
	BeneficiaryName    string

	CreatedAt time.Time
}

// Amount is the unsigned magnitude.
func (m Movement) Amount() decimal.Decimal { return m.Delta.Abs() }

func (m Movement) Direction() Direction {
	if m.Delta.IsNegative() {
		return Outgoing
	}
	return Incoming
}

func (m Movement) Signed() Money { return Money{Value: m.Delta, Currency: m.Currency} }

// =============================================================================
// MOVEMENT RECORD - Either input encoding
// =============================================================================

// MovementRecord is a movement as it arrives from storage or a client. It may
// use the older encoding (MovementType + Amount) or the newer SignedAmount.
type MovementRecord struct {
	ID                  MovementID
	OwnerID             OwnerID
	CustomerLinkID      LinkID
	Number              int64
	Currency            Currency
	Amount              decimal.Decimal
	MovementType        Direction
	SignedAmount        *decimal.Decimal
	Note                string
	IsCommission        bool
	RelatedCommissionID MovementID
	IsInternalTransfer  bool
	TransferGroupID     string
	SenderName          string
	BeneficiaryName     string
	CreatedAt           time.Time
}

// Normalize translates either encoding into the canonical Movement.
// When both encodings are present they must agree.
func (r MovementRecord) Normalize() (Movement, error) {
	var delta decimal.Decimal
	switch {
	case r.SignedAmount != nil:
		if r.SignedAmount.IsZero() {
			return Movement{}, &ValidationError{Field: "signed_amount", Message: "must not be zero"}
		}
		delta = *r.SignedAmount
		if r.MovementType != "" {
			if !r.MovementType.Valid() {
				return Movement{}, &ValidationError{Field: "movement_type", Message: "must be incoming or outgoing"}
			}
			if r.MovementType.Sign(delta.Abs()).Cmp(delta) != 0 {
				return Movement{}, &ValidationError{Field: "movement_type", Message: "disagrees with signed_amount"}
			}
		}
		if !r.Amount.IsZero() && !r.Amount.Abs().Equal(delta.Abs()) {
			return Movement{}, &ValidationError{Field: "amount", Message: "disagrees with signed_amount"}
		}
	case r.MovementType != "":
		if !r.MovementType.Valid() {
			return Movement{}, &ValidationError{Field: "movement_type", Message: "must be incoming or outgoing"}
		}
		if !r.Amount.IsPositive() {
			return Movement{}, &ValidationError{Field: "amount", Message: "must be greater than zero"}
		}
		delta = r.MovementType.Sign(r.Amount)
	default:
		return Movement{}, &ValidationError{Field: "movement_type", Message: "movement_type or signed_amount is required"}
	}

	return Movement{
		ID:                  r.ID,
		OwnerID:             r.OwnerID,
		CustomerLinkID:      r.CustomerLinkID,
		Number:              r.Number,
		Currency:            r.Currency,
		Delta:               delta,
		Note:                r.Note,
		IsCommission:        r.IsCommission,
		RelatedCommissionID: r.RelatedCommissionID,
		IsInternalTransfer:  r.IsInternalTransfer,
		TransferGroupID:     r.TransferGroupID,
		SenderName:          r.SenderName,
		BeneficiaryName:     r.BeneficiaryName,
		CreatedAt:           r.CreatedAt,
	}, nil
}

// =============================================================================
// MOVEMENT DRAFT - Write path input to the store
// =============================================================================

// MovementDraft is a movement before the store assigns ID, Number and
// (when zero) CreatedAt.
type MovementDraft struct {
	OwnerID             OwnerID
	CustomerLinkID      LinkID
	Currency            Currency
	Delta               decimal.Decimal
	Note                string
	IsCommission        bool
	RelatedCommissionID MovementID
	IsInternalTransfer  bool
	TransferGroupID     string
	SenderName          string
	BeneficiaryName     string
	CreatedAt           time.Time
}

// MovementUpdate carries the editable fields of a movement. Nil = unchanged.
type MovementUpdate struct {
	Delta *decimal.Decimal
	Note  *string
}
