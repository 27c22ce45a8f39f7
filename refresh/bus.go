/*
Package refresh carries "something changed" signals from writes to readers.

PURPOSE:
  After a write the ledger service calls ChangeNotifier.Changed. A Notifier
  turns that call into an Event on a Bus. Subscribers (the balance cache
  refresher, open views) re-fetch and recompute. Events carry no balances:
  readers always recompute from movements.

BUSES:
  LocalBus:  in-process fan-out, for a single server
  RedisBus:  Redis pub/sub, so every server instance sees every write

DEBOUNCING:
  Debouncer coalesces bursts (a commission write touches two customers in
  quick succession) into one trailing-edge call per key.
*/
package refresh

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/shop-ledger/ledger"
)

// Event says that some of an owner's customers changed.
// Empty Links means "anything of this owner may have changed".
type Event struct {
	OwnerID ledger.OwnerID  `json:"owner_id"`
	Links   []ledger.LinkID `json:"links,omitempty"`
	At      time.Time       `json:"at"`
}

// Handler must return quickly; long work belongs on its own goroutine.
type Handler func(ctx context.Context, e Event)

type Bus interface {
	Publish(ctx context.Context, e Event) error
	// Subscribe registers h and returns a function that removes it.
	Subscribe(h Handler) (unsubscribe func())
}

// =============================================================================
// LOCAL BUS
// =============================================================================

// LocalBus delivers events synchronously to every subscriber in process.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
	log      *zap.Logger
}

func NewLocalBus(log *zap.Logger) *LocalBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &LocalBus{handlers: make(map[int]Handler), log: log}
}

func (b *LocalBus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, h, e)
	}
	return nil
}

func (b *LocalBus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// dispatch isolates a panicking handler from the publisher.
func (b *LocalBus) dispatch(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("refresh handler panicked",
				zap.String("owner_id", string(e.OwnerID)),
				zap.Any("panic", r))
		}
	}()
	h(ctx, e)
}

// =============================================================================
// NOTIFIER - ledger.ChangeNotifier over a Bus
// =============================================================================

// Notifier publishes ledger change notifications without blocking the
// write path. Publish failures are logged: the next write or the periodic
// reconciliation catches the reader up.
type Notifier struct {
	bus     Bus
	log     *zap.Logger
	timeout time.Duration
	now     func() time.Time
	wg      sync.WaitGroup
}

func NewNotifier(bus Bus, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{bus: bus, log: log, timeout: 2 * time.Second, now: time.Now}
}

func (n *Notifier) Changed(ctx context.Context, owner ledger.OwnerID, links ...ledger.LinkID) {
	e := Event{OwnerID: owner, Links: dedupe(links), At: n.now()}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		if err := n.bus.Publish(pctx, e); err != nil {
			n.log.Warn("refresh signal not published",
				zap.String("owner_id", string(owner)),
				zap.Error(err))
		}
	}()
}

// Wait blocks until every in-flight publish finished.
func (n *Notifier) Wait() { n.wg.Wait() }

func dedupe(links []ledger.LinkID) []ledger.LinkID {
	seen := make(map[ledger.LinkID]bool, len(links))
	out := make([]ledger.LinkID, 0, len(links))
	for _, l := range links {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

var (
	_ Bus                   = (*LocalBus)(nil)
	_ ledger.ChangeNotifier = (*Notifier)(nil)
)
