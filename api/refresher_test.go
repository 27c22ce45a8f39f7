package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/shop-ledger/ledger"
	"github.com/warp/shop-ledger/refresh"
	"github.com/warp/shop-ledger/store/sqlite"
)

// wiredEnv is a test env whose service publishes change events to a local
// bus consumed by a BalanceRefresher.
func wiredEnv(t *testing.T) (*testEnv, *BalanceRefresher) {
	t.Helper()
	env := newTestEnv(t)

	bus := refresh.NewLocalBus(nil)
	notifier := refresh.NewNotifier(bus, nil)
	env.svc.SetNotifier(notifier)

	r := NewBalanceRefresher(env.svc, env.store, 5*time.Millisecond, nil)
	r.Attach(bus)
	t.Cleanup(func() {
		notifier.Wait()
		r.Stop()
	})
	return env, r
}

func snapshotFor(t *testing.T, store *sqlite.Store, link string) (ledger.BalanceSnapshot, bool) {
	t.Helper()
	snaps, err := store.ListSnapshots(context.Background(), testOwner)
	require.NoError(t, err)
	for _, s := range snaps {
		if string(s.CustomerLinkID) == link {
			return s, true
		}
	}
	return ledger.BalanceSnapshot{}, false
}

func TestRefresher_SnapshotFollowsWrites(t *testing.T) {
	// GIVEN: a wired refresher
	env, _ := wiredEnv(t)
	ahmed := env.addLocal("أحمد")

	// WHEN: a commission movement is recorded
	env.record(ahmed.ID, map[string]any{"movement_type": "incoming", "amount": "100", "currency": "USD", "commission": "15"})

	// THEN: both the customer and the profit-and-loss snapshots appear
	assert.Eventually(t, func() bool {
		s, ok := snapshotFor(t, env.store, ahmed.ID)
		return ok && len(s.Balances) == 1 && s.Balances[0].Value.Equal(dec("100"))
	}, 2*time.Second, 10*time.Millisecond)

	pl, err := env.svc.ProfitLossCustomer(context.Background(), testOwner)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		s, ok := snapshotFor(t, env.store, string(pl.ID))
		return ok && len(s.Balances) == 1 && s.Balances[0].Value.Equal(dec("15"))
	}, 2*time.Second, 10*time.Millisecond)

	// AND: the cached balances are served by the API
	rec := env.do(http.MethodGet, "/api/reports/snapshots", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]SnapshotDTO](t, rec), 2)

	// WHEN: the customer is deleted
	rec = env.do(http.MethodDelete, "/api/customers/"+ahmed.ID+"?confirm=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: its snapshot is removed
	assert.Eventually(t, func() bool {
		_, ok := snapshotFor(t, env.store, ahmed.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRefresher_RefreshNow(t *testing.T) {
	env := newTestEnv(t)
	r := NewBalanceRefresher(env.svc, env.store, time.Hour, nil)
	defer r.Stop()

	ahmed := env.addLocal("أحمد")
	env.record(ahmed.ID, map[string]any{"movement_type": "outgoing", "amount": "40", "currency": "SAR"})

	published, err := r.Refresh(context.Background(), testOwner, ledger.LinkID(ahmed.ID))
	require.NoError(t, err)
	assert.True(t, published)

	s, ok := snapshotFor(t, env.store, ahmed.ID)
	require.True(t, ok)
	require.Len(t, s.Balances, 1)
	assert.True(t, s.Balances[0].Value.Equal(dec("-40")))
	assert.Equal(t, 1, s.MovementCount)

	// A vanished customer has its snapshot dropped.
	published, err = r.Refresh(context.Background(), testOwner, "gone")
	require.NoError(t, err)
	assert.True(t, published)
}

func TestRefresher_DebouncesBursts(t *testing.T) {
	env := newTestEnv(t)
	r := NewBalanceRefresher(env.svc, env.store, time.Hour, nil)
	defer r.Stop()

	for i := 0; i < 5; i++ {
		r.handle(context.Background(), refresh.Event{OwnerID: testOwner, Links: []ledger.LinkID{"a", "b"}})
	}
	r.handle(context.Background(), refresh.Event{OwnerID: testOwner})

	assert.Equal(t, 3, r.Pending())
}
