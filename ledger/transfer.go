package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// INTERNAL TRANSFER - Money moved between two of the owner's own customers
// =============================================================================

// TransferInput moves Amount from one customer's account to another's.
// The sender's leg is outgoing, the beneficiary's leg incoming. Transfers
// never carry commission.
type TransferInput struct {
	OwnerID   OwnerID
	FromLink  LinkID
	ToLink    LinkID
	Amount    decimal.Decimal
	Currency  Currency
	Note      string
	CreatedAt time.Time
}

func (in TransferInput) Validate() error {
	if in.FromLink == "" {
		return &ValidationError{Field: "from_customer_id", Message: "is required"}
	}
	if in.ToLink == "" {
		return &ValidationError{Field: "to_customer_id", Message: "is required"}
	}
	if in.FromLink == in.ToLink {
		return &ValidationError{Field: "to_customer_id", Message: "must differ from the sender"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if !in.Currency.Known() {
		return &ValidationError{Field: "currency", Message: "unsupported currency " + string(in.Currency)}
	}
	return nil
}

type TransferResult struct {
	GroupID  string
	Outgoing Movement // sender leg
	Incoming Movement // beneficiary leg
}

// Transfer writes both legs atomically, sharing one transfer group id.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if err := in.Validate(); err != nil {
		return TransferResult{}, err
	}

	sender, err := s.resolver.Resolve(ctx, in.OwnerID, in.FromLink)
	if err != nil {
		return TransferResult{}, err
	}
	beneficiary, err := s.resolver.Resolve(ctx, in.OwnerID, in.ToLink)
	if err != nil {
		return TransferResult{}, err
	}
	if sender.IsProfitLoss || beneficiary.IsProfitLoss {
		return TransferResult{}, &ValidationError{Field: "customer_id", Message: "profit and loss account cannot take part in a transfer"}
	}

	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	note := strings.TrimSpace(in.Note)
	leg := func(link LinkID, delta decimal.Decimal, groupID string) MovementDraft {
		return MovementDraft{
			OwnerID:            in.OwnerID,
			CustomerLinkID:     link,
			Currency:           in.Currency,
			Delta:              delta,
			Note:               note,
			IsInternalTransfer: true,
			TransferGroupID:    groupID,
			SenderName:         sender.Name,
			BeneficiaryName:    beneficiary.Name,
			CreatedAt:          createdAt,
		}
	}

	result := TransferResult{GroupID: uuid.NewString()}
	err = s.inTx(ctx, func(st Store, transactional bool) error {
		out, err := st.InsertMovement(ctx, leg(in.FromLink, in.Amount.Neg(), result.GroupID))
		if err != nil {
			return err
		}
		result.Outgoing = out

		incoming, err := st.InsertMovement(ctx, leg(in.ToLink, in.Amount, result.GroupID))
		if err != nil {
			pw := &PartialWriteError{PrimaryID: out.ID, RolledBack: transactional, Err: err}
			if !transactional {
				if derr := st.DeleteMovement(ctx, in.OwnerID, out.ID); derr != nil {
					s.log.Error("compensating delete failed",
						zap.String("movement_id", string(out.ID)), zap.Error(derr))
				} else {
					pw.RolledBack = true
				}
			}
			return pw
		}
		result.Incoming = incoming
		return nil
	})
	if err != nil {
		s.log.Error("transfer failed", zap.String("owner_id", string(in.OwnerID)), zap.Error(err))
		return TransferResult{}, err
	}

	s.log.Info("internal transfer recorded",
		zap.String("owner_id", string(in.OwnerID)),
		zap.String("transfer_group_id", result.GroupID),
		zap.String("amount", in.Amount.String()),
		zap.String("currency", string(in.Currency)))
	s.notifier.Changed(ctx, in.OwnerID, in.FromLink, in.ToLink)
	return result, nil
}
