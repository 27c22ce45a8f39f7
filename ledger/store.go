/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  The boundary with the external record store. The core only needs simple
  owner-scoped predicate queries and inserts; anything transactional goes
  through TxStore.WithTx.

KEY INTERFACES:
  MovementStore:  insert/list/update/delete movements
  CustomerStore:  customer links, local customers, profit-and-loss get-or-create
  ProfileStore:   platform profiles (registered customers)
  Store:          all three
  TxStore:        Store + WithTx for atomic multi-row writes
  SnapshotStore:  cached per-customer balances (never authoritative)
  SettingsStore:  per-owner shop branding

SCOPING:
  Every owner-scoped method takes the OwnerID. A row that exists but belongs
  to another owner is reported as not found.

IMPLEMENTATIONS:
  - ledger/store/memory.go: in-memory, for tests/dev
  - store/sqlite/sqlite.go: database/sql + go-sqlite3
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// QUERIES
// =============================================================================

// MovementQuery selects an owner's movements. Empty fields do not filter.
// Results are ordered by CreatedAt ascending, then Number.
type MovementQuery struct {
	OwnerID        OwnerID
	CustomerLinkID LinkID
	RelatedTo      MovementID // commission movements split from this primary
	TransferGroup  string
	OnlyCommission bool
}

// ProfileQuery matches platform profiles for "add customer".
type ProfileQuery struct {
	AccountNumber int64  // exact match when > 0
	Username      string // case-insensitive substring otherwise
	Limit         int
}

// =============================================================================
// STORE
// =============================================================================

type MovementStore interface {
	// InsertMovement assigns ID, Number and (when zero) CreatedAt.
	InsertMovement(ctx context.Context, d MovementDraft) (Movement, error)
	GetMovement(ctx context.Context, owner OwnerID, id MovementID) (Movement, error)
	ListMovements(ctx context.Context, q MovementQuery) ([]Movement, error)
	UpdateMovement(ctx context.Context, owner OwnerID, id MovementID, u MovementUpdate) (Movement, error)
	DeleteMovement(ctx context.Context, owner OwnerID, id MovementID) error
	// DeleteMovementsByLink purges every movement on a link and returns the count.
	DeleteMovementsByLink(ctx context.Context, owner OwnerID, link LinkID) (int, error)
}

type CustomerStore interface {
	ListLinks(ctx context.Context, owner OwnerID) ([]CustomerLink, error)
	GetLink(ctx context.Context, owner OwnerID, id LinkID) (CustomerLink, error)

	// CreateLocalCustomer creates the local row with the next owner-scoped
	// account number, plus its link.
	CreateLocalCustomer(ctx context.Context, d LocalCustomerDraft) (CustomerLink, LocalCustomer, error)

	// LinkRegistered returns ErrDuplicateCustomer if the owner already links profile.
	LinkRegistered(ctx context.Context, owner OwnerID, profile ProfileID) (CustomerLink, error)

	// GetOrCreateProfitLoss is idempotent per owner.
	GetOrCreateProfitLoss(ctx context.Context, owner OwnerID) (CustomerLink, error)

	// DeleteLink removes the link, and the local row behind it for local links.
	DeleteLink(ctx context.Context, owner OwnerID, id LinkID) error

	LocalCustomers(ctx context.Context, owner OwnerID, ids []LocalCustomerID) ([]LocalCustomer, error)
}

type ProfileStore interface {
	Profiles(ctx context.Context, ids []ProfileID) ([]Profile, error)
	FindProfiles(ctx context.Context, q ProfileQuery) ([]Profile, error)
	CreateProfile(ctx context.Context, d ProfileDraft) (Profile, error)
}

type Store interface {
	MovementStore
	CustomerStore
	ProfileStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// SNAPSHOTS - Cached balances, recomputed value is the source of truth
// =============================================================================

type BalanceSnapshot struct {
	OwnerID        OwnerID
	CustomerLinkID LinkID
	Balances       []Balance
	MovementCount  int
	ComputedAt     time.Time
}

type SnapshotStore interface {
	// SaveSnapshot replaces the cached balances of one customer.
	SaveSnapshot(ctx context.Context, s BalanceSnapshot) error
	ListSnapshots(ctx context.Context, owner OwnerID) ([]BalanceSnapshot, error)
	DeleteSnapshot(ctx context.Context, owner OwnerID, link LinkID) error
	// Owners lists every owner with at least one customer link.
	Owners(ctx context.Context) ([]OwnerID, error)
}

// =============================================================================
// SETTINGS - Shop branding for statements and receipts
// =============================================================================

type ShopSettings struct {
	OwnerID     OwnerID
	ShopName    string
	ShopPhone   string
	ShopAddress string
	LogoDataURI string
	UpdatedAt   time.Time
}

type SettingsStore interface {
	// GetSettings returns zero-value settings (not an error) if none were saved.
	GetSettings(ctx context.Context, owner OwnerID) (ShopSettings, error)
	SaveSettings(ctx context.Context, s ShopSettings) (ShopSettings, error)
}
