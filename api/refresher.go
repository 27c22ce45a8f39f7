package api

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/warp/shop-ledger/ledger"
	"github.com/warp/shop-ledger/refresh"
)

// =============================================================================
// BALANCE REFRESHER - Keeps cached snapshots in step with writes
// =============================================================================

// BalanceRefresher listens for refresh events and recomputes the snapshot
// of every customer they name. Bursts per customer are debounced, and a
// recompute that was overtaken by a newer one for the same customer is
// discarded instead of saved.
type BalanceRefresher struct {
	svc     *ledger.Service
	snaps   ledger.SnapshotStore
	tracker *ledger.RequestTracker
	pending *refresh.Debouncer[refreshKey]
	timeout time.Duration
	log     *zap.Logger

	unsubscribe func()
}

// refreshKey with an empty Link stands for every customer of the owner.
type refreshKey struct {
	Owner ledger.OwnerID
	Link  ledger.LinkID
}

func (k refreshKey) String() string { return string(k.Owner) + "/" + string(k.Link) }

func NewBalanceRefresher(svc *ledger.Service, snaps ledger.SnapshotStore, debounce time.Duration, log *zap.Logger) *BalanceRefresher {
	if log == nil {
		log = zap.NewNop()
	}
	r := &BalanceRefresher{
		svc:     svc,
		snaps:   snaps,
		tracker: ledger.NewRequestTracker(),
		timeout: 10 * time.Second,
		log:     log.Named("refresher"),
	}
	r.pending = refresh.NewDebouncer(debounce, r.run)
	return r
}

// Attach subscribes to bus. Call Stop to detach.
func (r *BalanceRefresher) Attach(bus refresh.Bus) {
	r.unsubscribe = bus.Subscribe(r.handle)
}

func (r *BalanceRefresher) handle(_ context.Context, e refresh.Event) {
	if len(e.Links) == 0 {
		r.pending.Trigger(refreshKey{Owner: e.OwnerID})
		return
	}
	for _, link := range e.Links {
		r.pending.Trigger(refreshKey{Owner: e.OwnerID, Link: link})
	}
}

func (r *BalanceRefresher) run(key refreshKey) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if key.Link == "" {
		summary, err := r.svc.ReconcileSnapshots(ctx, r.snaps, key.Owner)
		if err != nil {
			r.log.Warn("owner refresh failed", zap.String("owner_id", string(key.Owner)), zap.Error(err))
			return
		}
		r.log.Debug("owner refreshed",
			zap.String("owner_id", string(key.Owner)),
			zap.Int("updated", summary.Updated),
			zap.Int("removed", summary.Removed))
		return
	}

	if _, err := r.Refresh(ctx, key.Owner, key.Link); err != nil {
		r.log.Warn("snapshot refresh failed",
			zap.String("owner_id", string(key.Owner)),
			zap.String("link_id", string(key.Link)),
			zap.Error(err))
	}
}

// Refresh recomputes one customer's snapshot now. It reports false when a
// newer refresh of the same customer started meanwhile and this result was
// dropped.
func (r *BalanceRefresher) Refresh(ctx context.Context, owner ledger.OwnerID, link ledger.LinkID) (bool, error) {
	key := refreshKey{Owner: owner, Link: link}.String()
	gen := r.tracker.Begin(key)

	snap, ok, err := r.svc.ComputeSnapshot(ctx, owner, link)
	if err != nil {
		return false, err
	}

	var saveErr error
	published := r.tracker.Publish(key, gen, func() {
		if !ok {
			saveErr = r.snaps.DeleteSnapshot(ctx, owner, link)
			return
		}
		saveErr = r.snaps.SaveSnapshot(ctx, snap)
	})
	if !published {
		r.log.Debug("stale snapshot discarded", zap.String("link_id", string(link)))
	}
	return published, saveErr
}

// Pending reports how many customers wait for their debounce to expire.
func (r *BalanceRefresher) Pending() int { return r.pending.Pending() }

// Stop detaches from the bus and drops pending refreshes.
func (r *BalanceRefresher) Stop() {
	if r.unsubscribe != nil {
		r.unsubscribe()
	}
	r.pending.Stop()
}
