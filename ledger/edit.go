/*
edit.go - Movement edit and delete (explicit user actions)

RULES:
  - Commission movements are derived rows: they change only through their
    primary. Editing or deleting one directly returns ErrCommissionReadOnly.
  - A primary that carries commission must stay incoming, and its amount
    must stay greater than the commission split from it.
  - Deleting a primary deletes its commission movements with it.
  - Both legs of an internal transfer move together: an amount edit or a
    delete applies to every movement sharing the transfer group.
*/
package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MovementEdit carries the user-editable fields. Nil = unchanged.
type MovementEdit struct {
	Amount    *decimal.Decimal
	Direction *Direction
	Note      *string
}

func (e MovementEdit) Validate() error {
	if e.Amount == nil && e.Direction == nil && e.Note == nil {
		return &ValidationError{Message: "nothing to update"}
	}
	if e.Amount != nil && !e.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if e.Direction != nil && !e.Direction.Valid() {
		return &ValidationError{Field: "movement_type", Message: "must be incoming or outgoing"}
	}
	return nil
}

// EditMovement applies an edit and returns the updated movement.
func (s *Service) EditMovement(ctx context.Context, owner OwnerID, id MovementID, edit MovementEdit) (Movement, error) {
	if err := edit.Validate(); err != nil {
		return Movement{}, err
	}

	m, err := s.store.GetMovement(ctx, owner, id)
	if err != nil {
		return Movement{}, err
	}
	if m.IsCommission {
		return Movement{}, ErrCommissionReadOnly
	}

	direction := m.Direction()
	if edit.Direction != nil {
		if m.IsInternalTransfer && *edit.Direction != direction {
			return Movement{}, &ValidationError{Field: "movement_type", Message: "cannot change the direction of a transfer leg"}
		}
		direction = *edit.Direction
	}
	amount := m.Amount()
	if edit.Amount != nil {
		amount = *edit.Amount
	}

	commissions, err := s.store.ListMovements(ctx, MovementQuery{OwnerID: owner, RelatedTo: m.ID})
	if err != nil {
		return Movement{}, err
	}
	if len(commissions) > 0 {
		if direction != Incoming {
			return Movement{}, &ValidationError{Field: "movement_type", Message: "a movement with commission must stay incoming"}
		}
		if c := CommissionFor(m, commissions); !c.LessThan(amount) {
			return Movement{}, &ValidationError{Field: "amount", Message: "must be greater than its commission " + c.String()}
		}
	}

	var legs []Movement
	if m.IsInternalTransfer && m.TransferGroupID != "" && edit.Amount != nil {
		legs, err = s.store.ListMovements(ctx, MovementQuery{OwnerID: owner, TransferGroup: m.TransferGroupID})
		if err != nil {
			return Movement{}, err
		}
	}

	var note *string
	if edit.Note != nil {
		trimmed := strings.TrimSpace(*edit.Note)
		note = &trimmed
	}
	delta := direction.Sign(amount)

	var updated Movement
	touched := []LinkID{m.CustomerLinkID}
	err = s.inTx(ctx, func(st Store, _ bool) error {
		var err error
		updated, err = st.UpdateMovement(ctx, owner, m.ID, MovementUpdate{Delta: &delta, Note: note})
		if err != nil {
			return err
		}
		for _, leg := range legs {
			if leg.ID == m.ID {
				continue
			}
			legDelta := leg.Direction().Sign(amount)
			if _, err := st.UpdateMovement(ctx, owner, leg.ID, MovementUpdate{Delta: &legDelta}); err != nil {
				return err
			}
			touched = append(touched, leg.CustomerLinkID)
		}
		return nil
	})
	if err != nil {
		return Movement{}, err
	}

	s.log.Info("movement edited",
		zap.String("owner_id", string(owner)),
		zap.String("movement_id", string(m.ID)),
		zap.String("delta", delta.String()))
	s.notifier.Changed(ctx, owner, touched...)
	return updated, nil
}

// DeleteMovement removes a movement together with its commission movements
// and any other transfer leg. It returns every deleted id.
func (s *Service) DeleteMovement(ctx context.Context, owner OwnerID, id MovementID) ([]MovementID, error) {
	m, err := s.store.GetMovement(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if m.IsCommission {
		return nil, ErrCommissionReadOnly
	}

	dependents, err := s.store.ListMovements(ctx, MovementQuery{OwnerID: owner, RelatedTo: m.ID})
	if err != nil {
		return nil, err
	}
	if m.IsInternalTransfer && m.TransferGroupID != "" {
		legs, err := s.store.ListMovements(ctx, MovementQuery{OwnerID: owner, TransferGroup: m.TransferGroupID})
		if err != nil {
			return nil, err
		}
		for _, leg := range legs {
			if leg.ID != m.ID {
				dependents = append(dependents, leg)
			}
		}
	}

	var deleted []MovementID
	touched := []LinkID{m.CustomerLinkID}
	err = s.inTx(ctx, func(st Store, _ bool) error {
		deleted = deleted[:0]
		for _, d := range dependents {
			if err := st.DeleteMovement(ctx, owner, d.ID); err != nil {
				return err
			}
			deleted = append(deleted, d.ID)
			touched = append(touched, d.CustomerLinkID)
		}
		if err := st.DeleteMovement(ctx, owner, m.ID); err != nil {
			return err
		}
		deleted = append(deleted, m.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("movement deleted",
		zap.String("owner_id", string(owner)),
		zap.String("movement_id", string(m.ID)),
		zap.Int("deleted", len(deleted)))
	s.notifier.Changed(ctx, owner, touched...)
	return deleted, nil
}
