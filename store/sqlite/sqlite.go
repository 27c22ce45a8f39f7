/*
Package sqlite provides a SQLite-backed implementation of the ledger storage interfaces.

PURPOSE:
  Implements ledger.Store, ledger.TxStore, ledger.SnapshotStore and
  ledger.SettingsStore on database/sql + go-sqlite3. The same SQL runs on
  PostgreSQL with minor dialect changes.

KEY TABLES:
  profiles:          platform users (registered customers), global account_number
  local_customers:   owner-created contacts, owner-scoped local_account_number
  user_customers:    customer links, the rows movements reference
  movements:         ledger entries, both encodings stored
  sequences:         named counters for movement_number, account_number and per-owner local numbers
  shop_settings:     per-owner branding
  balance_snapshots: cached balances (never authoritative)

STORAGE FORMATS:
  Decimals are TEXT (shopspring/decimal String()). Timestamps are TEXT in a
  fixed-width UTC layout so lexical order equals time order.

ENCODINGS:
  Each movement row keeps amount + movement_type and signed_amount. Reads go
  through ledger.MovementRecord.Normalize, which checks they agree.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Writes run in a database transaction
  under the write lock; WithTx holds the lock for the whole callback.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block and
  there is a single writer at a time.

MIGRATION:
  Versioned migrations (golang-migrate, embedded SQL) run on New().

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store)

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/shop-ledger/ledger"
)

// timeLayout is fixed-width so that ORDER BY created_at is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every new connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// NewFromDB wraps an existing connection without running migrations.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// write runs fn in its own database transaction under the write lock.
func (s *Store) write(ctx context.Context, fn func(q querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inTx(ctx, fn)
}

func (s *Store) inTx(ctx context.Context, fn func(q querier) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// MOVEMENT STORE (ledger.MovementStore interface)
// =============================================================================

const movementColumns = `id, owner_id, customer_link_id, movement_number, currency, amount,
	movement_type, signed_amount, note, is_commission_movement, related_commission_movement_id,
	is_internal_transfer, transfer_group_id, sender_name, beneficiary_name, created_at`

func (s *Store) InsertMovement(ctx context.Context, d ledger.MovementDraft) (ledger.Movement, error) {
	var m ledger.Movement
	err := s.write(ctx, func(q querier) error {
		var err error
		m, err = insertMovement(ctx, q, d)
		return err
	})
	return m, err
}

func insertMovement(ctx context.Context, q querier, d ledger.MovementDraft) (ledger.Movement, error) {
	number, err := nextSequence(ctx, q, "movement_number")
	if err != nil {
		return ledger.Movement{}, err
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	m := ledger.Movement{
		ID:                  ledger.MovementID(uuid.NewString()),
		OwnerID:             d.OwnerID,
		CustomerLinkID:      d.CustomerLinkID,
		Number:              number,
		Currency:            d.Currency,
		Delta:               d.Delta,
		Note:                d.Note,
		IsCommission:        d.IsCommission,
		RelatedCommissionID: d.RelatedCommissionID,
		IsInternalTransfer:  d.IsInternalTransfer,
		TransferGroupID:     d.TransferGroupID,
		SenderName:          d.SenderName,
		BeneficiaryName:     d.BeneficiaryName,
		CreatedAt:           createdAt.UTC(),
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO movements (`+movementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(m.ID), string(m.OwnerID), string(m.CustomerLinkID), m.Number, string(m.Currency),
		m.Amount().String(), string(m.Direction()), m.Delta.String(), nullString(m.Note),
		m.IsCommission, nullString(string(m.RelatedCommissionID)),
		m.IsInternalTransfer, nullString(m.TransferGroupID),
		nullString(m.SenderName), nullString(m.BeneficiaryName),
		formatTime(m.CreatedAt),
	)
	if isForeignKeyError(err) {
		return ledger.Movement{}, &ledger.NotFoundError{Resource: "customer", ID: string(d.CustomerLinkID)}
	}
	if err != nil {
		return ledger.Movement{}, fmt.Errorf("insert movement: %w", err)
	}
	return m, nil
}

func (s *Store) GetMovement(ctx context.Context, owner ledger.OwnerID, id ledger.MovementID) (ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMovement(ctx, s.db, owner, id)
}

func getMovement(ctx context.Context, q querier, owner ledger.OwnerID, id ledger.MovementID) (ledger.Movement, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE owner_id = ? AND id = ?`,
		string(owner), string(id))
	if err != nil {
		return ledger.Movement{}, err
	}
	movements, err := scanMovements(rows)
	if err != nil {
		return ledger.Movement{}, err
	}
	if len(movements) == 0 {
		return ledger.Movement{}, &ledger.NotFoundError{Resource: "movement", ID: string(id)}
	}
	return movements[0], nil
}

func (s *Store) ListMovements(ctx context.Context, mq ledger.MovementQuery) ([]ledger.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMovements(ctx, s.db, mq)
}

func listMovements(ctx context.Context, q querier, mq ledger.MovementQuery) ([]ledger.Movement, error) {
	where := []string{"owner_id = ?"}
	args := []any{string(mq.OwnerID)}
	if mq.CustomerLinkID != "" {
		where = append(where, "customer_link_id = ?")
		args = append(args, string(mq.CustomerLinkID))
	}
	if mq.RelatedTo != "" {
		where = append(where, "is_commission_movement = 1", "related_commission_movement_id = ?")
		args = append(args, string(mq.RelatedTo))
	}
	if mq.TransferGroup != "" {
		where = append(where, "transfer_group_id = ?")
		args = append(args, mq.TransferGroup)
	}
	if mq.OnlyCommission {
		where = append(where, "is_commission_movement = 1")
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+movementColumns+` FROM movements WHERE `+strings.Join(where, " AND ")+
			` ORDER BY created_at, movement_number`, args...)
	if err != nil {
		return nil, err
	}
	return scanMovements(rows)
}

func scanMovements(rows *sql.Rows) ([]ledger.Movement, error) {
	defer rows.Close()

	var out []ledger.Movement
	for rows.Next() {
		var (
			id, owner, link, currency, amount string
			movementType, signed, createdAt   string
			note, related, group              sql.NullString
			sender, beneficiary               sql.NullString
			number                            int64
			isCommission, isTransfer          bool
		)
		if err := rows.Scan(&id, &owner, &link, &number, &currency, &amount, &movementType, &signed,
			&note, &isCommission, &related, &isTransfer, &group, &sender, &beneficiary, &createdAt); err != nil {
			return nil, err
		}

		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("movement %s: bad amount %q: %w", id, amount, err)
		}
		signedAmt, err := decimal.NewFromString(signed)
		if err != nil {
			return nil, fmt.Errorf("movement %s: bad signed_amount %q: %w", id, signed, err)
		}
		at, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("movement %s: %w", id, err)
		}

		m, err := ledger.MovementRecord{
			ID:                  ledger.MovementID(id),
			OwnerID:             ledger.OwnerID(owner),
			CustomerLinkID:      ledger.LinkID(link),
			Number:              number,
			Currency:            ledger.Currency(currency),
			Amount:              amt,
			MovementType:        ledger.Direction(movementType),
			SignedAmount:        &signedAmt,
			Note:                note.String,
			IsCommission:        isCommission,
			RelatedCommissionID: ledger.MovementID(related.String),
			IsInternalTransfer:  isTransfer,
			TransferGroupID:     group.String,
			SenderName:          sender.String,
			BeneficiaryName:     beneficiary.String,
			CreatedAt:           at,
		}.Normalize()
		if err != nil {
			return nil, fmt.Errorf("movement %s: %w", id, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateMovement(ctx context.Context, owner ledger.OwnerID, id ledger.MovementID, u ledger.MovementUpdate) (ledger.Movement, error) {
	var m ledger.Movement
	err := s.write(ctx, func(q querier) error {
		var err error
		m, err = updateMovement(ctx, q, owner, id, u)
		return err
	})
	return m, err
}

func updateMovement(ctx context.Context, q querier, owner ledger.OwnerID, id ledger.MovementID, u ledger.MovementUpdate) (ledger.Movement, error) {
	m, err := getMovement(ctx, q, owner, id)
	if err != nil {
		return ledger.Movement{}, err
	}
	if u.Delta != nil {
		m.Delta = *u.Delta
	}
	if u.Note != nil {
		m.Note = *u.Note
	}

	_, err = q.ExecContext(ctx, `
		UPDATE movements SET amount = ?, movement_type = ?, signed_amount = ?, note = ?
		WHERE owner_id = ? AND id = ?`,
		m.Amount().String(), string(m.Direction()), m.Delta.String(), nullString(m.Note),
		string(owner), string(id))
	if err != nil {
		return ledger.Movement{}, fmt.Errorf("update movement: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMovement(ctx context.Context, owner ledger.OwnerID, id ledger.MovementID) error {
	return s.write(ctx, func(q querier) error {
		return deleteMovement(ctx, q, owner, id)
	})
}

func deleteMovement(ctx context.Context, q querier, owner ledger.OwnerID, id ledger.MovementID) error {
	res, err := q.ExecContext(ctx, `DELETE FROM movements WHERE owner_id = ? AND id = ?`, string(owner), string(id))
	if err != nil {
		return fmt.Errorf("delete movement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ledger.NotFoundError{Resource: "movement", ID: string(id)}
	}
	return nil
}

func (s *Store) DeleteMovementsByLink(ctx context.Context, owner ledger.OwnerID, link ledger.LinkID) (int, error) {
	var n int
	err := s.write(ctx, func(q querier) error {
		var err error
		n, err = deleteMovementsByLink(ctx, q, owner, link)
		return err
	})
	return n, err
}

func deleteMovementsByLink(ctx context.Context, q querier, owner ledger.OwnerID, link ledger.LinkID) (int, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM movements WHERE owner_id = ? AND customer_link_id = ?`,
		string(owner), string(link))
	if err != nil {
		return 0, fmt.Errorf("delete movements: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// CUSTOMER STORE (ledger.CustomerStore interface)
// =============================================================================

const linkSelect = `
	SELECT uc.id, uc.owner_id, uc.kind, uc.registered_user_id, uc.local_customer_id,
	       COALESCE(lc.is_profit_loss, 0), uc.created_at
	FROM user_customers uc
	LEFT JOIN local_customers lc ON lc.id = uc.local_customer_id`

func (s *Store) ListLinks(ctx context.Context, owner ledger.OwnerID) ([]ledger.CustomerLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLinks(ctx, s.db, owner)
}

func listLinks(ctx context.Context, q querier, owner ledger.OwnerID) ([]ledger.CustomerLink, error) {
	rows, err := q.QueryContext(ctx, linkSelect+` WHERE uc.owner_id = ? ORDER BY uc.created_at, uc.id`, string(owner))
	if err != nil {
		return nil, err
	}
	return scanLinks(rows)
}

func (s *Store) GetLink(ctx context.Context, owner ledger.OwnerID, id ledger.LinkID) (ledger.CustomerLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLink(ctx, s.db, owner, id)
}

func getLink(ctx context.Context, q querier, owner ledger.OwnerID, id ledger.LinkID) (ledger.CustomerLink, error) {
	rows, err := q.QueryContext(ctx, linkSelect+` WHERE uc.owner_id = ? AND uc.id = ?`, string(owner), string(id))
	if err != nil {
		return ledger.CustomerLink{}, err
	}
	links, err := scanLinks(rows)
	if err != nil {
		return ledger.CustomerLink{}, err
	}
	if len(links) == 0 {
		return ledger.CustomerLink{}, &ledger.NotFoundError{Resource: "customer", ID: string(id)}
	}
	return links[0], nil
}

func scanLinks(rows *sql.Rows) ([]ledger.CustomerLink, error) {
	defer rows.Close()

	var out []ledger.CustomerLink
	for rows.Next() {
		var (
			l                   ledger.CustomerLink
			id, owner, kind, at string
			registered, local   sql.NullString
		)
		if err := rows.Scan(&id, &owner, &kind, &registered, &local, &l.IsProfitLoss, &at); err != nil {
			return nil, err
		}
		createdAt, err := parseTime(at)
		if err != nil {
			return nil, err
		}
		l.ID = ledger.LinkID(id)
		l.OwnerID = ledger.OwnerID(owner)
		l.Kind = ledger.CustomerKind(kind)
		l.RegisteredUserID = ledger.ProfileID(registered.String)
		l.LocalCustomerID = ledger.LocalCustomerID(local.String)
		l.CreatedAt = createdAt
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Store) CreateLocalCustomer(ctx context.Context, d ledger.LocalCustomerDraft) (ledger.CustomerLink, ledger.LocalCustomer, error) {
	var (
		link ledger.CustomerLink
		lc   ledger.LocalCustomer
	)
	err := s.write(ctx, func(q querier) error {
		var err error
		link, lc, err = createLocal(ctx, q, d, false)
		return err
	})
	return link, lc, err
}

func createLocal(ctx context.Context, q querier, d ledger.LocalCustomerDraft, profitLoss bool) (ledger.CustomerLink, ledger.LocalCustomer, error) {
	var number int64
	if !profitLoss {
		var err error
		number, err = nextSequence(ctx, q, "local_account_number:"+string(d.OwnerID))
		if err != nil {
			return ledger.CustomerLink{}, ledger.LocalCustomer{}, fmt.Errorf("next local account number: %w", err)
		}
	}

	now := time.Now().UTC()
	lc := ledger.LocalCustomer{
		ID:            ledger.LocalCustomerID(uuid.NewString()),
		OwnerID:       d.OwnerID,
		DisplayName:   d.DisplayName,
		Phone:         d.Phone,
		Note:          d.Note,
		AccountNumber: number,
		IsProfitLoss:  profitLoss,
		CreatedAt:     now,
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO local_customers (id, owner_id, display_name, phone, note, local_account_number, is_profit_loss, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(lc.ID), string(lc.OwnerID), lc.DisplayName, nullString(lc.Phone), nullString(lc.Note),
		lc.AccountNumber, lc.IsProfitLoss, formatTime(now))
	if err != nil {
		return ledger.CustomerLink{}, ledger.LocalCustomer{}, fmt.Errorf("insert local customer: %w", err)
	}

	link := ledger.CustomerLink{
		ID:              ledger.LinkID(uuid.NewString()),
		OwnerID:         d.OwnerID,
		Kind:            ledger.KindLocal,
		LocalCustomerID: lc.ID,
		IsProfitLoss:    profitLoss,
		CreatedAt:       now,
	}
	if err := insertLink(ctx, q, link); err != nil {
		return ledger.CustomerLink{}, ledger.LocalCustomer{}, err
	}
	return link, lc, nil
}

func insertLink(ctx context.Context, q querier, l ledger.CustomerLink) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO user_customers (id, owner_id, kind, registered_user_id, local_customer_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(l.ID), string(l.OwnerID), string(l.Kind),
		nullString(string(l.RegisteredUserID)), nullString(string(l.LocalCustomerID)),
		formatTime(l.CreatedAt))
	if isUniqueConstraintError(err) {
		return ledger.ErrDuplicateCustomer
	}
	if err != nil {
		return fmt.Errorf("insert customer link: %w", err)
	}
	return nil
}

func (s *Store) LinkRegistered(ctx context.Context, owner ledger.OwnerID, profile ledger.ProfileID) (ledger.CustomerLink, error) {
	var link ledger.CustomerLink
	err := s.write(ctx, func(q querier) error {
		var err error
		link, err = linkRegistered(ctx, q, owner, profile)
		return err
	})
	return link, err
}

func linkRegistered(ctx context.Context, q querier, owner ledger.OwnerID, profile ledger.ProfileID) (ledger.CustomerLink, error) {
	profiles, err := getProfiles(ctx, q, []ledger.ProfileID{profile})
	if err != nil {
		return ledger.CustomerLink{}, err
	}
	if len(profiles) == 0 {
		return ledger.CustomerLink{}, &ledger.NotFoundError{Resource: "profile", ID: string(profile)}
	}

	link := ledger.CustomerLink{
		ID:               ledger.LinkID(uuid.NewString()),
		OwnerID:          owner,
		Kind:             ledger.KindRegistered,
		RegisteredUserID: profile,
		CreatedAt:        time.Now().UTC(),
	}
	if err := insertLink(ctx, q, link); err != nil {
		return ledger.CustomerLink{}, err
	}
	return link, nil
}

func (s *Store) GetOrCreateProfitLoss(ctx context.Context, owner ledger.OwnerID) (ledger.CustomerLink, error) {
	var link ledger.CustomerLink
	err := s.write(ctx, func(q querier) error {
		var err error
		link, err = getOrCreateProfitLoss(ctx, q, owner)
		return err
	})
	return link, err
}

func getOrCreateProfitLoss(ctx context.Context, q querier, owner ledger.OwnerID) (ledger.CustomerLink, error) {
	rows, err := q.QueryContext(ctx, linkSelect+` WHERE uc.owner_id = ? AND lc.is_profit_loss = 1`, string(owner))
	if err != nil {
		return ledger.CustomerLink{}, err
	}
	links, err := scanLinks(rows)
	if err != nil {
		return ledger.CustomerLink{}, err
	}
	if len(links) > 0 {
		return links[0], nil
	}

	link, _, err := createLocal(ctx, q, ledger.LocalCustomerDraft{OwnerID: owner, DisplayName: ledger.ProfitLossName}, true)
	return link, err
}

func (s *Store) DeleteLink(ctx context.Context, owner ledger.OwnerID, id ledger.LinkID) error {
	return s.write(ctx, func(q querier) error {
		return deleteLink(ctx, q, owner, id)
	})
}

func deleteLink(ctx context.Context, q querier, owner ledger.OwnerID, id ledger.LinkID) error {
	link, err := getLink(ctx, q, owner, id)
	if err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM user_customers WHERE owner_id = ? AND id = ?`, string(owner), string(id)); err != nil {
		return fmt.Errorf("delete customer link: %w", err)
	}
	if link.Kind == ledger.KindLocal {
		if _, err := q.ExecContext(ctx, `DELETE FROM local_customers WHERE owner_id = ? AND id = ?`,
			string(owner), string(link.LocalCustomerID)); err != nil {
			return fmt.Errorf("delete local customer: %w", err)
		}
	}
	return nil
}

func (s *Store) LocalCustomers(ctx context.Context, owner ledger.OwnerID, ids []ledger.LocalCustomerID) ([]ledger.LocalCustomer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return localCustomers(ctx, s.db, owner, ids)
}

func localCustomers(ctx context.Context, q querier, owner ledger.OwnerID, ids []ledger.LocalCustomerID) ([]ledger.LocalCustomer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := []any{string(owner)}
	for _, id := range ids {
		args = append(args, string(id))
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, owner_id, display_name, phone, note, local_account_number, is_profit_loss, created_at
		FROM local_customers WHERE owner_id = ? AND id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.LocalCustomer
	for rows.Next() {
		var (
			lc              ledger.LocalCustomer
			id, ownerID, at string
			phone, note     sql.NullString
		)
		if err := rows.Scan(&id, &ownerID, &lc.DisplayName, &phone, &note, &lc.AccountNumber, &lc.IsProfitLoss, &at); err != nil {
			return nil, err
		}
		createdAt, err := parseTime(at)
		if err != nil {
			return nil, err
		}
		lc.ID = ledger.LocalCustomerID(id)
		lc.OwnerID = ledger.OwnerID(ownerID)
		lc.Phone = phone.String
		lc.Note = note.String
		lc.CreatedAt = createdAt
		out = append(out, lc)
	}
	return out, rows.Err()
}

// =============================================================================
// PROFILE STORE (ledger.ProfileStore interface)
// =============================================================================

const profileColumns = `id, username, full_name, account_number, created_at`

func (s *Store) Profiles(ctx context.Context, ids []ledger.ProfileID) ([]ledger.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getProfiles(ctx, s.db, ids)
}

func getProfiles(ctx context.Context, q querier, ids []ledger.ProfileID) ([]ledger.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, string(id))
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, err
	}
	return scanProfiles(rows)
}

func (s *Store) FindProfiles(ctx context.Context, pq ledger.ProfileQuery) ([]ledger.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findProfiles(ctx, s.db, pq)
}

func findProfiles(ctx context.Context, q querier, pq ledger.ProfileQuery) ([]ledger.Profile, error) {
	limit := pq.Limit
	if limit <= 0 {
		limit = 20
	}

	var (
		rows *sql.Rows
		err  error
	)
	if pq.AccountNumber > 0 {
		rows, err = q.QueryContext(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE account_number = ? LIMIT ?`,
			pq.AccountNumber, limit)
	} else {
		rows, err = q.QueryContext(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE instr(LOWER(username), ?) > 0
			 ORDER BY account_number LIMIT ?`,
			strings.ToLower(pq.Username), limit)
	}
	if err != nil {
		return nil, err
	}
	return scanProfiles(rows)
}

func scanProfiles(rows *sql.Rows) ([]ledger.Profile, error) {
	defer rows.Close()

	var out []ledger.Profile
	for rows.Next() {
		var (
			p      ledger.Profile
			id, at string
		)
		if err := rows.Scan(&id, &p.Username, &p.FullName, &p.AccountNumber, &at); err != nil {
			return nil, err
		}
		createdAt, err := parseTime(at)
		if err != nil {
			return nil, err
		}
		p.ID = ledger.ProfileID(id)
		p.CreatedAt = createdAt
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateProfile(ctx context.Context, d ledger.ProfileDraft) (ledger.Profile, error) {
	var p ledger.Profile
	err := s.write(ctx, func(q querier) error {
		var err error
		p, err = createProfile(ctx, q, d)
		return err
	})
	return p, err
}

func createProfile(ctx context.Context, q querier, d ledger.ProfileDraft) (ledger.Profile, error) {
	number, err := nextSequence(ctx, q, "account_number")
	if err != nil {
		return ledger.Profile{}, err
	}
	p := ledger.Profile{
		ID:            ledger.ProfileID(uuid.NewString()),
		Username:      d.Username,
		FullName:      d.FullName,
		AccountNumber: number,
		CreatedAt:     time.Now().UTC(),
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?)`,
		string(p.ID), p.Username, p.FullName, p.AccountNumber, formatTime(p.CreatedAt))
	if isUniqueConstraintError(err) {
		return ledger.Profile{}, ledger.ErrUsernameTaken
	}
	if err != nil {
		return ledger.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return p, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(q querier) error {
		return fn(&txStore{q: q})
	})
}

// txStore runs every call on the open transaction. The parent's write lock
// is already held by WithTx.
type txStore struct {
	q querier
}

func (ts *txStore) InsertMovement(ctx context.Context, d ledger.MovementDraft) (ledger.Movement, error) {
	return insertMovement(ctx, ts.q, d)
}

func (ts *txStore) GetMovement(ctx context.Context, owner ledger.OwnerID, id ledger.MovementID) (ledger.Movement, error) {
	return getMovement(ctx, ts.q, owner, id)
}

func (ts *txStore) ListMovements(ctx context.Context, mq ledger.MovementQuery) ([]ledger.Movement, error) {
	return listMovements(ctx, ts.q, mq)
}

func (ts *txStore) UpdateMovement(ctx context.Context, owner ledger.OwnerID, id ledger.MovementID, u ledger.MovementUpdate) (ledger.Movement, error) {
	return updateMovement(ctx, ts.q, owner, id, u)
}

func (ts *txStore) DeleteMovement(ctx context.Context, owner ledger.OwnerID, id ledger.MovementID) error {
	return deleteMovement(ctx, ts.q, owner, id)
}

func (ts *txStore) DeleteMovementsByLink(ctx context.Context, owner ledger.OwnerID, link ledger.LinkID) (int, error) {
	return deleteMovementsByLink(ctx, ts.q, owner, link)
}

func (ts *txStore) ListLinks(ctx context.Context, owner ledger.OwnerID) ([]ledger.CustomerLink, error) {
	return listLinks(ctx, ts.q, owner)
}

func (ts *txStore) GetLink(ctx context.Context, owner ledger.OwnerID, id ledger.LinkID) (ledger.CustomerLink, error) {
	return getLink(ctx, ts.q, owner, id)
}

func (ts *txStore) CreateLocalCustomer(ctx context.Context, d ledger.LocalCustomerDraft) (ledger.CustomerLink, ledger.LocalCustomer, error) {
	return createLocal(ctx, ts.q, d, false)
}

func (ts *txStore) LinkRegistered(ctx context.Context, owner ledger.OwnerID, profile ledger.ProfileID) (ledger.CustomerLink, error) {
	return linkRegistered(ctx, ts.q, owner, profile)
}

func (ts *txStore) GetOrCreateProfitLoss(ctx context.Context, owner ledger.OwnerID) (ledger.CustomerLink, error) {
	return getOrCreateProfitLoss(ctx, ts.q, owner)
}

func (ts *txStore) DeleteLink(ctx context.Context, owner ledger.OwnerID, id ledger.LinkID) error {
	return deleteLink(ctx, ts.q, owner, id)
}

func (ts *txStore) LocalCustomers(ctx context.Context, owner ledger.OwnerID, ids []ledger.LocalCustomerID) ([]ledger.LocalCustomer, error) {
	return localCustomers(ctx, ts.q, owner, ids)
}

func (ts *txStore) Profiles(ctx context.Context, ids []ledger.ProfileID) ([]ledger.Profile, error) {
	return getProfiles(ctx, ts.q, ids)
}

func (ts *txStore) FindProfiles(ctx context.Context, pq ledger.ProfileQuery) ([]ledger.Profile, error) {
	return findProfiles(ctx, ts.q, pq)
}

func (ts *txStore) CreateProfile(ctx context.Context, d ledger.ProfileDraft) (ledger.Profile, error) {
	return createProfile(ctx, ts.q, d)
}

// =============================================================================
// SNAPSHOT STORE (ledger.SnapshotStore interface)
// =============================================================================

type balanceJSON struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

func (s *Store) SaveSnapshot(ctx context.Context, snap ledger.BalanceSnapshot) error {
	rows := make([]balanceJSON, 0, len(snap.Balances))
	for _, b := range snap.Balances {
		rows = append(rows, balanceJSON{Currency: string(b.Currency), Value: b.Value.String()})
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	computedAt := snap.ComputedAt
	if computedAt.IsZero() {
		computedAt = time.Now()
	}

	return s.write(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO balance_snapshots (owner_id, customer_link_id, balances_json, movement_count, computed_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(owner_id, customer_link_id) DO UPDATE SET
				balances_json = excluded.balances_json,
				movement_count = excluded.movement_count,
				computed_at = excluded.computed_at`,
			string(snap.OwnerID), string(snap.CustomerLinkID), string(data), snap.MovementCount, formatTime(computedAt))
		return err
	})
}

func (s *Store) ListSnapshots(ctx context.Context, owner ledger.OwnerID) ([]ledger.BalanceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_link_id, balances_json, movement_count, computed_at
		FROM balance_snapshots WHERE owner_id = ? ORDER BY customer_link_id`, string(owner))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.BalanceSnapshot
	for rows.Next() {
		var link, data, at string
		snap := ledger.BalanceSnapshot{OwnerID: owner}
		if err := rows.Scan(&link, &data, &snap.MovementCount, &at); err != nil {
			return nil, err
		}
		var balances []balanceJSON
		if err := json.Unmarshal([]byte(data), &balances); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", link, err)
		}
		for _, b := range balances {
			v, err := decimal.NewFromString(b.Value)
			if err != nil {
				return nil, fmt.Errorf("snapshot %s: %w", link, err)
			}
			snap.Balances = append(snap.Balances, ledger.Balance{Currency: ledger.Currency(b.Currency), Value: v})
		}
		if snap.ComputedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		snap.CustomerLinkID = ledger.LinkID(link)
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *Store) DeleteSnapshot(ctx context.Context, owner ledger.OwnerID, link ledger.LinkID) error {
	return s.write(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `DELETE FROM balance_snapshots WHERE owner_id = ? AND customer_link_id = ?`,
			string(owner), string(link))
		return err
	})
}

func (s *Store) Owners(ctx context.Context) ([]ledger.OwnerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM user_customers ORDER BY owner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.OwnerID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, ledger.OwnerID(id))
	}
	return out, rows.Err()
}

// =============================================================================
// SETTINGS STORE (ledger.SettingsStore interface)
// =============================================================================

func (s *Store) GetSettings(ctx context.Context, owner ledger.OwnerID) (ledger.ShopSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		name, phone, address, logo sql.NullString
		at                         string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT shop_name, shop_phone, shop_address, logo_data_uri, updated_at
		FROM shop_settings WHERE owner_id = ?`, string(owner)).
		Scan(&name, &phone, &address, &logo, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.ShopSettings{OwnerID: owner}, nil
	}
	if err != nil {
		return ledger.ShopSettings{}, err
	}
	updatedAt, err := parseTime(at)
	if err != nil {
		return ledger.ShopSettings{}, err
	}
	return ledger.ShopSettings{
		OwnerID:     owner,
		ShopName:    name.String,
		ShopPhone:   phone.String,
		ShopAddress: address.String,
		LogoDataURI: logo.String,
		UpdatedAt:   updatedAt,
	}, nil
}

func (s *Store) SaveSettings(ctx context.Context, set ledger.ShopSettings) (ledger.ShopSettings, error) {
	set.UpdatedAt = time.Now().UTC()
	err := s.write(ctx, func(q querier) error {
		_, err := q.ExecContext(ctx, `
			INSERT INTO shop_settings (owner_id, shop_name, shop_phone, shop_address, logo_data_uri, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(owner_id) DO UPDATE SET
				shop_name = excluded.shop_name,
				shop_phone = excluded.shop_phone,
				shop_address = excluded.shop_address,
				logo_data_uri = excluded.logo_data_uri,
				updated_at = excluded.updated_at`,
			string(set.OwnerID), nullString(set.ShopName), nullString(set.ShopPhone),
			nullString(set.ShopAddress), nullString(set.LogoDataURI), formatTime(set.UpdatedAt))
		return err
	})
	if err != nil {
		return ledger.ShopSettings{}, err
	}
	return set, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset deletes all data (for demo scenarios and testing).
func (s *Store) Reset(ctx context.Context) error {
	return s.write(ctx, func(q querier) error {
		for _, table := range []string{
			"balance_snapshots", "shop_settings", "movements", "user_customers",
			"local_customers", "profiles", "sequences",
		} {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
}

// Helper functions

func nextSequence(ctx context.Context, q querier, name string) (int64, error) {
	var value int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO sequences (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return value, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isForeignKeyError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

var (
	_ ledger.TxStore       = (*Store)(nil)
	_ ledger.SnapshotStore = (*Store)(nil)
	_ ledger.SettingsStore = (*Store)(nil)
	_ ledger.Store         = (*txStore)(nil)
)
