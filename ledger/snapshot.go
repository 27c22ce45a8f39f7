package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// SNAPSHOT - Cached per-customer balances
// =============================================================================

// Balances are always recomputed from movements. A snapshot is only a
// read cache for list-style consumers and is overwritten whenever it
// disagrees with a fresh computation.

// NewSnapshot builds the cache row from a customer's visible movements.
func NewSnapshot(owner OwnerID, link LinkID, visible []Movement, at time.Time) BalanceSnapshot {
	return BalanceSnapshot{
		OwnerID:        owner,
		CustomerLinkID: link,
		Balances:       Balances(visible, SortByCurrency),
		MovementCount:  len(visible),
		ComputedAt:     at,
	}
}

// SameBalances reports whether two snapshots carry identical balances.
func SameBalances(a, b BalanceSnapshot) bool {
	if a.MovementCount != b.MovementCount || len(a.Balances) != len(b.Balances) {
		return false
	}
	for i := range a.Balances {
		if a.Balances[i].Currency != b.Balances[i].Currency || !a.Balances[i].Value.Equal(b.Balances[i].Value) {
			return false
		}
	}
	return true
}

// ComputeSnapshot recomputes one customer's balances without saving them.
// ok is false when the link no longer exists.
func (s *Service) ComputeSnapshot(ctx context.Context, owner OwnerID, id LinkID) (snap BalanceSnapshot, ok bool, err error) {
	link, err := s.store.GetLink(ctx, owner, id)
	if IsNotFound(err) {
		return BalanceSnapshot{}, false, nil
	}
	if err != nil {
		return BalanceSnapshot{}, false, transient("compute snapshot", err)
	}

	movements, err := s.store.ListMovements(ctx, MovementQuery{OwnerID: owner, CustomerLinkID: link.ID})
	if err != nil {
		return BalanceSnapshot{}, false, transient("compute snapshot", err)
	}
	return NewSnapshot(owner, link.ID, Visible(movements, link.IsProfitLoss), s.now()), true, nil
}

// RefreshSnapshot recomputes and saves one customer's snapshot. A link that
// no longer exists has its snapshot removed.
func (s *Service) RefreshSnapshot(ctx context.Context, snaps SnapshotStore, owner OwnerID, id LinkID) (BalanceSnapshot, error) {
	snap, ok, err := s.ComputeSnapshot(ctx, owner, id)
	if err != nil {
		return BalanceSnapshot{}, err
	}
	if !ok {
		return BalanceSnapshot{}, snaps.DeleteSnapshot(ctx, owner, id)
	}
	if err := snaps.SaveSnapshot(ctx, snap); err != nil {
		return BalanceSnapshot{}, err
	}
	return snap, nil
}

type ReconcileSummary struct {
	Checked int
	Updated int
	Removed int
}

// ReconcileSnapshots compares every cached snapshot of an owner with a fresh
// computation, rewrites drifted or missing ones and drops orphans.
func (s *Service) ReconcileSnapshots(ctx context.Context, snaps SnapshotStore, owner OwnerID) (ReconcileSummary, error) {
	var summary ReconcileSummary

	list, err := s.LoadCustomerList(ctx, owner)
	if err != nil {
		return summary, err
	}
	cached, err := snaps.ListSnapshots(ctx, owner)
	if err != nil {
		return summary, transient("list snapshots", err)
	}
	cachedByLink := make(map[LinkID]BalanceSnapshot, len(cached))
	for _, c := range cached {
		cachedByLink[c.CustomerLinkID] = c
	}

	now := s.now()
	seen := make(map[LinkID]bool, len(list))
	for _, row := range list {
		summary.Checked++
		seen[row.Customer.ID] = true

		fresh := BalanceSnapshot{
			OwnerID:        owner,
			CustomerLinkID: row.Customer.ID,
			Balances:       reorder(row.Balances),
			MovementCount:  row.MovementCount,
			ComputedAt:     now,
		}
		if old, ok := cachedByLink[row.Customer.ID]; ok && SameBalances(old, fresh) {
			continue
		} else if ok {
			s.log.Warn("balance snapshot drift",
				zap.String("owner_id", string(owner)),
				zap.String("link_id", string(row.Customer.ID)))
		}
		if err := snaps.SaveSnapshot(ctx, fresh); err != nil {
			return summary, err
		}
		summary.Updated++
	}

	for link := range cachedByLink {
		if seen[link] {
			continue
		}
		if err := snaps.DeleteSnapshot(ctx, owner, link); err != nil {
			return summary, err
		}
		summary.Removed++
	}
	return summary, nil
}

// reorder puts list-view balances back into currency order.
func reorder(balances []Balance) []Balance {
	out := make([]Balance, len(balances))
	copy(out, balances)
	codes := make([]Currency, len(out))
	byCode := make(map[Currency]Balance, len(out))
	for i, b := range out {
		codes[i] = b.Currency
		byCode[b.Currency] = b
	}
	sortCurrencies(codes)
	for i, c := range codes {
		out[i] = byCode[c]
	}
	return out
}
