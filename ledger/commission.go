/*
commission.go - Commission Splitter (write path)

PURPOSE:
  Records "customer pays/receives X, of which C is kept as the owner's
  income" as two ledger rows:

    primary     on the customer's link       Delta = +X (incoming) / -X (outgoing)
    commission  on the profit-and-loss link  Delta = +C, same currency,
                IsCommission, RelatedCommissionID = primary.ID

VALIDATION (before any I/O):
  - amount > 0, known currency, valid direction
  - commission only on incoming movements
  - 0 < commission < amount

ATOMICITY:
  TxStore:    both inserts in one transaction; a failed commission insert
              rolls the primary back.
  plain Store: the primary is deleted again (compensation).
  Either way the caller gets a PartialWriteError saying whether the primary
  is gone, never a silent half-pair.

  The profit-and-loss link is resolved before the primary is written, so
  its get-or-create cannot be the failing step.
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MovementInput is one quick-add entry.
type MovementInput struct {
	OwnerID        OwnerID
	CustomerLinkID LinkID
	Direction      Direction
	Amount         decimal.Decimal
	Currency       Currency
	Note           string
	Commission     *decimal.Decimal // nil when no commission is taken
	CreatedAt      time.Time        // zero means now
}

// Validate checks the input without touching storage.
func (in MovementInput) Validate() error {
	if in.CustomerLinkID == "" {
		return &ValidationError{Field: "customer_link_id", Message: "is required"}
	}
	if !in.Direction.Valid() {
		return &ValidationError{Field: "movement_type", Message: "must be incoming or outgoing"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if !in.Currency.Known() {
		return &ValidationError{Field: "currency", Message: "unsupported currency " + string(in.Currency)}
	}
	if in.Commission == nil {
		return nil
	}
	if in.Direction != Incoming {
		return &ValidationError{Field: "commission", Message: "is only allowed on incoming movements"}
	}
	if !in.Commission.IsPositive() {
		return &ValidationError{Field: "commission", Message: "must be greater than zero"}
	}
	if !in.Commission.LessThan(in.Amount) {
		return &ValidationError{Field: "commission", Message: "must be less than the amount"}
	}
	return nil
}

// RecordResult carries the new ids so the caller can refresh and pair rows.
type RecordResult struct {
	Primary    Movement
	Commission *Movement
}

// RecordMovement writes a movement and, when requested, its commission pair.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (RecordResult, error) {
	if err := in.Validate(); err != nil {
		return RecordResult{}, err
	}

	link, err := s.store.GetLink(ctx, in.OwnerID, in.CustomerLinkID)
	if err != nil {
		return RecordResult{}, err
	}
	if link.IsProfitLoss {
		return RecordResult{}, &ValidationError{Field: "customer_link_id", Message: "profit and loss entries are created through commission"}
	}

	var profitLoss CustomerLink
	var sourceName string
	if in.Commission != nil {
		customer, err := s.resolver.ResolveLink(ctx, link)
		if err != nil {
			return RecordResult{}, err
		}
		sourceName = customer.Name
		if profitLoss, err = s.store.GetOrCreateProfitLoss(ctx, in.OwnerID); err != nil {
			return RecordResult{}, err
		}
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	var result RecordResult
	err = s.inTx(ctx, func(st Store, transactional bool) error {
		primary, err := st.InsertMovement(ctx, MovementDraft{
			OwnerID:        in.OwnerID,
			CustomerLinkID: link.ID,
			Currency:       in.Currency,
			Delta:          in.Direction.Sign(in.Amount),
			Note:           in.Note,
			CreatedAt:      createdAt,
		})
		if err != nil {
			return err
		}
		result.Primary = primary
		if in.Commission == nil {
			return nil
		}

		commission, err := st.InsertMovement(ctx, commissionDraft(primary, profitLoss, *in.Commission, sourceName))
		if err != nil {
			pw := &PartialWriteError{PrimaryID: primary.ID, RolledBack: transactional, Err: err}
			if !transactional {
				if derr := st.DeleteMovement(ctx, in.OwnerID, primary.ID); derr != nil {
					s.log.Error("compensating delete failed",
						zap.String("movement_id", string(primary.ID)), zap.Error(derr))
				} else {
					pw.RolledBack = true
				}
			}
			return pw
		}
		result.Commission = &commission
		return nil
	})
	if err != nil {
		s.log.Error("record movement failed",
			zap.String("owner_id", string(in.OwnerID)),
			zap.String("link_id", string(in.CustomerLinkID)),
			zap.Error(err))
		return RecordResult{}, err
	}

	fields := []zap.Field{
		zap.String("owner_id", string(in.OwnerID)),
		zap.String("movement_id", string(result.Primary.ID)),
		zap.Int64("movement_number", result.Primary.Number),
	}
	if result.Commission != nil {
		fields = append(fields, zap.String("commission_movement_id", string(result.Commission.ID)))
		s.notifier.Changed(ctx, in.OwnerID, link.ID, profitLoss.ID)
	} else {
		s.notifier.Changed(ctx, in.OwnerID, link.ID)
	}
	s.log.Info("movement recorded", fields...)
	return result, nil
}

func commissionDraft(primary Movement, profitLoss CustomerLink, amount decimal.Decimal, sourceName string) MovementDraft {
	return MovementDraft{
		OwnerID:             primary.OwnerID,
		CustomerLinkID:      profitLoss.ID,
		Currency:            primary.Currency,
		Delta:               amount.Abs(),
		Note:                CommissionNote(sourceName),
		IsCommission:        true,
		RelatedCommissionID: primary.ID,
		CreatedAt:           primary.CreatedAt,
	}
}

// CommissionNote is the auto-generated note on a commission movement.
func CommissionNote(sourceName string) string {
	if sourceName == "" {
		return "عمولة"
	}
	return "عمولة من " + sourceName
}
