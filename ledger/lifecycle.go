package ledger

import (
	"context"

	"go.uber.org/zap"
)

// =============================================================================
// RESET / DELETE - Destructive customer operations
// =============================================================================

// ResetAccount deletes every movement on the link and keeps the customer.
// It returns the number of movements deleted. Commission movements already
// posted to the profit-and-loss account stay there: that income was earned.
func (s *Service) ResetAccount(ctx context.Context, owner OwnerID, id LinkID) (int, error) {
	link, err := s.store.GetLink(ctx, owner, id)
	if err != nil {
		return 0, err
	}
	if link.IsProfitLoss {
		return 0, ErrProfitLossProtected
	}

	n, err := s.store.DeleteMovementsByLink(ctx, owner, link.ID)
	if err != nil {
		return 0, err
	}

	s.log.Info("customer account reset",
		zap.String("owner_id", string(owner)),
		zap.String("link_id", string(link.ID)),
		zap.Int("movements_deleted", n))
	s.notifier.Changed(ctx, owner, link.ID)
	return n, nil
}

// DeleteCustomer purges the link's movements, then the link itself, and the
// local customer row behind it. A registered profile is never deleted.
//
// When any currency still has a non-zero balance and confirm is false, it
// returns an OutstandingBalanceError listing the balances and deletes
// nothing; the caller decides whether to retry with confirm.
func (s *Service) DeleteCustomer(ctx context.Context, owner OwnerID, id LinkID, confirm bool) (int, error) {
	link, err := s.store.GetLink(ctx, owner, id)
	if err != nil {
		return 0, err
	}
	if link.IsProfitLoss {
		return 0, ErrProfitLossProtected
	}

	movements, err := s.store.ListMovements(ctx, MovementQuery{OwnerID: owner, CustomerLinkID: link.ID})
	if err != nil {
		return 0, err
	}
	if balances := Balances(Visible(movements, false), SortByCurrency); len(balances) > 0 {
		if !confirm {
			return 0, &OutstandingBalanceError{CustomerLinkID: link.ID, Balances: balances}
		}
		s.log.Warn("deleting customer with outstanding balance",
			zap.String("owner_id", string(owner)),
			zap.String("link_id", string(link.ID)),
			zap.Int("currencies", len(balances)))
	}

	var n int
	err = s.inTx(ctx, func(st Store, _ bool) error {
		var err error
		if n, err = st.DeleteMovementsByLink(ctx, owner, link.ID); err != nil {
			return err
		}
		return st.DeleteLink(ctx, owner, link.ID)
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("customer deleted",
		zap.String("owner_id", string(owner)),
		zap.String("link_id", string(link.ID)),
		zap.String("kind", string(link.Kind)),
		zap.Int("movements_deleted", n))
	s.notifier.Changed(ctx, owner, link.ID)
	return n, nil
}
