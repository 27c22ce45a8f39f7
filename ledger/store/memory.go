// Package store provides in-memory ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/shop-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Store without transactions. Service writes fall
// back to compensation on it.
type Memory struct {
	mu sync.RWMutex
	st *state
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

type snapKey struct {
	owner ledger.OwnerID
	link  ledger.LinkID
}

type state struct {
	movements   map[ledger.MovementID]ledger.Movement
	links       map[ledger.LinkID]ledger.CustomerLink
	locals      map[ledger.LocalCustomerID]ledger.LocalCustomer
	profiles    map[ledger.ProfileID]ledger.Profile
	snapshots   map[snapKey]ledger.BalanceSnapshot
	settings    map[ledger.OwnerID]ledger.ShopSettings
	movementSeq int64
	profileSeq  int64
	localSeq    map[ledger.OwnerID]int64
}

func newState() *state {
	return &state{
		movements: make(map[ledger.MovementID]ledger.Movement),
		links:     make(map[ledger.LinkID]ledger.CustomerLink),
		locals:    make(map[ledger.LocalCustomerID]ledger.LocalCustomer),
		profiles:  make(map[ledger.ProfileID]ledger.Profile),
		snapshots: make(map[snapKey]ledger.BalanceSnapshot),
		settings:  make(map[ledger.OwnerID]ledger.ShopSettings),
		localSeq:  make(map[ledger.OwnerID]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.movements {
		c.movements[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for k, v := range s.locals {
		c.locals[k] = v
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	for k, v := range s.snapshots {
		c.snapshots[k] = v
	}
	for k, v := range s.settings {
		c.settings[k] = v
	}
	for k, v := range s.localSeq {
		c.localSeq[k] = v
	}
	c.movementSeq = s.movementSeq
	c.profileSeq = s.profileSeq
	return c
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func (s *state) insertMovement(d ledger.MovementDraft) (ledger.Movement, error) {
	if _, ok := s.links[d.CustomerLinkID]; !ok || s.links[d.CustomerLinkID].OwnerID != d.OwnerID {
		return ledger.Movement{}, &ledger.NotFoundError{Resource: "customer", ID: string(d.CustomerLinkID)}
	}
	s.movementSeq++
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	m := ledger.Movement{
		ID:                  ledger.MovementID(uuid.NewString()),
		OwnerID:             d.OwnerID,
		CustomerLinkID:      d.CustomerLinkID,
		Number:              s.movementSeq,
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
	s.movements[m.ID] = m
	return m, nil
}

func (s *state) getMovement(owner ledger.OwnerID, id ledger.MovementID) (ledger.Movement, error) {
	m, ok := s.movements[id]
	if !ok || m.OwnerID != owner {
		return ledger.Movement{}, &ledger.NotFoundError{Resource: "movement", ID: string(id)}
	}
	return m, nil
}

func (s *state) listMovements(q ledger.MovementQuery) []ledger.Movement {
	var out []ledger.Movement
	for _, m := range s.movements {
		if m.OwnerID != q.OwnerID {
			continue
		}
		if q.CustomerLinkID != "" && m.CustomerLinkID != q.CustomerLinkID {
			continue
		}
		if q.RelatedTo != "" && (!m.IsCommission || m.RelatedCommissionID != q.RelatedTo) {
			continue
		}
		if q.TransferGroup != "" && m.TransferGroupID != q.TransferGroup {
			continue
		}
		if q.OnlyCommission && !m.IsCommission {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Number < out[j].Number
	})
	return out
}

func (s *state) updateMovement(owner ledger.OwnerID, id ledger.MovementID, u ledger.MovementUpdate) (ledger.Movement, error) {
	m, err := s.getMovement(owner, id)
	if err != nil {
		return ledger.Movement{}, err
	}
	if u.Delta != nil {
		m.Delta = *u.Delta
	}
	if u.Note != nil {
		m.Note = *u.Note
	}
	s.movements[id] = m
	return m, nil
}

func (s *state) deleteMovement(owner ledger.OwnerID, id ledger.MovementID) error {
	if _, err := s.getMovement(owner, id); err != nil {
		return err
	}
	delete(s.movements, id)
	return nil
}

func (s *state) deleteMovementsByLink(owner ledger.OwnerID, link ledger.LinkID) int {
	n := 0
	for id, m := range s.movements {
		if m.OwnerID == owner && m.CustomerLinkID == link {
			delete(s.movements, id)
			n++
		}
	}
	return n
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (s *state) listLinks(owner ledger.OwnerID) []ledger.CustomerLink {
	var out []ledger.CustomerLink
	for _, l := range s.links {
		if l.OwnerID == owner {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) getLink(owner ledger.OwnerID, id ledger.LinkID) (ledger.CustomerLink, error) {
	l, ok := s.links[id]
	if !ok || l.OwnerID != owner {
		return ledger.CustomerLink{}, &ledger.NotFoundError{Resource: "customer", ID: string(id)}
	}
	return l, nil
}

func (s *state) createLocal(d ledger.LocalCustomerDraft, profitLoss bool) (ledger.CustomerLink, ledger.LocalCustomer) {
	now := time.Now().UTC()
	var number int64
	if !profitLoss {
		// Never reused, even after the highest number is deleted.
		s.localSeq[d.OwnerID]++
		number = s.localSeq[d.OwnerID]
	}

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
	link := ledger.CustomerLink{
		ID:              ledger.LinkID(uuid.NewString()),
		OwnerID:         d.OwnerID,
		Kind:            ledger.KindLocal,
		LocalCustomerID: lc.ID,
		IsProfitLoss:    profitLoss,
		CreatedAt:       now,
	}
	s.locals[lc.ID] = lc
	s.links[link.ID] = link
	return link, lc
}

func (s *state) linkRegistered(owner ledger.OwnerID, profile ledger.ProfileID) (ledger.CustomerLink, error) {
	if _, ok := s.profiles[profile]; !ok {
		return ledger.CustomerLink{}, &ledger.NotFoundError{Resource: "profile", ID: string(profile)}
	}
	for _, l := range s.links {
		if l.OwnerID == owner && l.Kind == ledger.KindRegistered && l.RegisteredUserID == profile {
			return ledger.CustomerLink{}, ledger.ErrDuplicateCustomer
		}
	}
	link := ledger.CustomerLink{
		ID:               ledger.LinkID(uuid.NewString()),
		OwnerID:          owner,
		Kind:             ledger.KindRegistered,
		RegisteredUserID: profile,
		CreatedAt:        time.Now().UTC(),
	}
	s.links[link.ID] = link
	return link, nil
}

func (s *state) getOrCreateProfitLoss(owner ledger.OwnerID) ledger.CustomerLink {
	for _, l := range s.links {
		if l.OwnerID == owner && l.IsProfitLoss {
			return l
		}
	}
	link, _ := s.createLocal(ledger.LocalCustomerDraft{OwnerID: owner, DisplayName: ledger.ProfitLossName}, true)
	return link
}

func (s *state) deleteLink(owner ledger.OwnerID, id ledger.LinkID) error {
	l, err := s.getLink(owner, id)
	if err != nil {
		return err
	}
	delete(s.links, id)
	if l.Kind == ledger.KindLocal {
		delete(s.locals, l.LocalCustomerID)
	}
	return nil
}

func (s *state) localCustomers(owner ledger.OwnerID, ids []ledger.LocalCustomerID) []ledger.LocalCustomer {
	out := make([]ledger.LocalCustomer, 0, len(ids))
	for _, id := range ids {
		if lc, ok := s.locals[id]; ok && lc.OwnerID == owner {
			out = append(out, lc)
		}
	}
	return out
}

// =============================================================================
// PROFILES
// =============================================================================

func (s *state) getProfiles(ids []ledger.ProfileID) []ledger.Profile {
	out := make([]ledger.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

func (s *state) findProfiles(q ledger.ProfileQuery) []ledger.Profile {
	var out []ledger.Profile
	for _, p := range s.profiles {
		if q.AccountNumber > 0 {
			if p.AccountNumber == q.AccountNumber {
				out = append(out, p)
			}
			continue
		}
		if q.Username != "" && strings.Contains(strings.ToLower(p.Username), strings.ToLower(q.Username)) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountNumber < out[j].AccountNumber })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (s *state) createProfile(d ledger.ProfileDraft) (ledger.Profile, error) {
	for _, p := range s.profiles {
		if strings.EqualFold(p.Username, d.Username) {
			return ledger.Profile{}, ledger.ErrUsernameTaken
		}
	}
	s.profileSeq++
	p := ledger.Profile{
		ID:            ledger.ProfileID(uuid.NewString()),
		Username:      d.Username,
		FullName:      d.FullName,
		AccountNumber: s.profileSeq,
		CreatedAt:     time.Now().UTC(),
	}
	s.profiles[p.ID] = p
	return p, nil
}

// =============================================================================
// ledger.Store ON Memory
// =============================================================================

func (m *Memory) InsertMovement(_ context.Context, d ledger.MovementDraft) (ledger.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertMovement(d)
}

func (m *Memory) GetMovement(_ context.Context, owner ledger.OwnerID, id ledger.MovementID) (ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getMovement(owner, id)
}

func (m *Memory) ListMovements(_ context.Context, q ledger.MovementQuery) ([]ledger.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listMovements(q), nil
}

func (m *Memory) UpdateMovement(_ context.Context, owner ledger.OwnerID, id ledger.MovementID, u ledger.MovementUpdate) (ledger.Movement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateMovement(owner, id, u)
}

func (m *Memory) DeleteMovement(_ context.Context, owner ledger.OwnerID, id ledger.MovementID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteMovement(owner, id)
}

func (m *Memory) DeleteMovementsByLink(_ context.Context, owner ledger.OwnerID, link ledger.LinkID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteMovementsByLink(owner, link), nil
}

func (m *Memory) ListLinks(_ context.Context, owner ledger.OwnerID) ([]ledger.CustomerLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listLinks(owner), nil
}

func (m *Memory) GetLink(_ context.Context, owner ledger.OwnerID, id ledger.LinkID) (ledger.CustomerLink, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getLink(owner, id)
}

func (m *Memory) CreateLocalCustomer(_ context.Context, d ledger.LocalCustomerDraft) (ledger.CustomerLink, ledger.LocalCustomer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, lc := m.st.createLocal(d, false)
	return link, lc, nil
}

func (m *Memory) LinkRegistered(_ context.Context, owner ledger.OwnerID, profile ledger.ProfileID) (ledger.CustomerLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.linkRegistered(owner, profile)
}

func (m *Memory) GetOrCreateProfitLoss(_ context.Context, owner ledger.OwnerID) (ledger.CustomerLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getOrCreateProfitLoss(owner), nil
}

func (m *Memory) DeleteLink(_ context.Context, owner ledger.OwnerID, id ledger.LinkID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteLink(owner, id)
}

func (m *Memory) LocalCustomers(_ context.Context, owner ledger.OwnerID, ids []ledger.LocalCustomerID) ([]ledger.LocalCustomer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.localCustomers(owner, ids), nil
}

func (m *Memory) Profiles(_ context.Context, ids []ledger.ProfileID) ([]ledger.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getProfiles(ids), nil
}

func (m *Memory) FindProfiles(_ context.Context, q ledger.ProfileQuery) ([]ledger.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.findProfiles(q), nil
}

func (m *Memory) CreateProfile(_ context.Context, d ledger.ProfileDraft) (ledger.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createProfile(d)
}

// =============================================================================
// SNAPSHOTS AND SETTINGS
// =============================================================================

func (m *Memory) SaveSnapshot(_ context.Context, s ledger.BalanceSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.snapshots[snapKey{s.OwnerID, s.CustomerLinkID}] = s
	return nil
}

func (m *Memory) ListSnapshots(_ context.Context, owner ledger.OwnerID) ([]ledger.BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.BalanceSnapshot
	for k, s := range m.st.snapshots {
		if k.owner == owner {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerLinkID < out[j].CustomerLinkID })
	return out, nil
}

func (m *Memory) DeleteSnapshot(_ context.Context, owner ledger.OwnerID, link ledger.LinkID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.snapshots, snapKey{owner, link})
	return nil
}

func (m *Memory) Owners(_ context.Context) ([]ledger.OwnerID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[ledger.OwnerID]bool)
	var out []ledger.OwnerID
	for _, l := range m.st.links {
		if !seen[l.OwnerID] {
			seen[l.OwnerID] = true
			out = append(out, l.OwnerID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) GetSettings(_ context.Context, owner ledger.OwnerID) (ledger.ShopSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.st.settings[owner]; ok {
		return s, nil
	}
	return ledger.ShopSettings{OwnerID: owner}, nil
}

func (m *Memory) SaveSettings(_ context.Context, s ledger.ShopSettings) (ledger.ShopSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.UpdatedAt = time.Now().UTC()
	m.st.settings[s.OwnerID] = s
	return s, nil
}

// Reset deletes all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	saved := tm.st.clone()
	if err := fn(&txView{st: tm.st}); err != nil {
		tm.st = saved
		return err
	}
	return nil
}

// txView runs against the locked state of its parent.
type txView struct {
	st *state
}

func (v *txView) InsertMovement(_ context.Context, d ledger.MovementDraft) (ledger.Movement, error) {
	return v.st.insertMovement(d)
}

func (v *txView) GetMovement(_ context.Context, owner ledger.OwnerID, id ledger.MovementID) (ledger.Movement, error) {
	return v.st.getMovement(owner, id)
}

func (v *txView) ListMovements(_ context.Context, q ledger.MovementQuery) ([]ledger.Movement, error) {
	return v.st.listMovements(q), nil
}

func (v *txView) UpdateMovement(_ context.Context, owner ledger.OwnerID, id ledger.MovementID, u ledger.MovementUpdate) (ledger.Movement, error) {
	return v.st.updateMovement(owner, id, u)
}

func (v *txView) DeleteMovement(_ context.Context, owner ledger.OwnerID, id ledger.MovementID) error {
	return v.st.deleteMovement(owner, id)
}

func (v *txView) DeleteMovementsByLink(_ context.Context, owner ledger.OwnerID, link ledger.LinkID) (int, error) {
	return v.st.deleteMovementsByLink(owner, link), nil
}

func (v *txView) ListLinks(_ context.Context, owner ledger.OwnerID) ([]ledger.CustomerLink, error) {
	return v.st.listLinks(owner), nil
}

func (v *txView) GetLink(_ context.Context, owner ledger.OwnerID, id ledger.LinkID) (ledger.CustomerLink, error) {
	return v.st.getLink(owner, id)
}

func (v *txView) CreateLocalCustomer(_ context.Context, d ledger.LocalCustomerDraft) (ledger.CustomerLink, ledger.LocalCustomer, error) {
	link, lc := v.st.createLocal(d, false)
	return link, lc, nil
}

func (v *txView) LinkRegistered(_ context.Context, owner ledger.OwnerID, profile ledger.ProfileID) (ledger.CustomerLink, error) {
	return v.st.linkRegistered(owner, profile)
}

func (v *txView) GetOrCreateProfitLoss(_ context.Context, owner ledger.OwnerID) (ledger.CustomerLink, error) {
	return v.st.getOrCreateProfitLoss(owner), nil
}

func (v *txView) DeleteLink(_ context.Context, owner ledger.OwnerID, id ledger.LinkID) error {
	return v.st.deleteLink(owner, id)
}

func (v *txView) LocalCustomers(_ context.Context, owner ledger.OwnerID, ids []ledger.LocalCustomerID) ([]ledger.LocalCustomer, error) {
	return v.st.localCustomers(owner, ids), nil
}

func (v *txView) Profiles(_ context.Context, ids []ledger.ProfileID) ([]ledger.Profile, error) {
	return v.st.getProfiles(ids), nil
}

func (v *txView) FindProfiles(_ context.Context, q ledger.ProfileQuery) ([]ledger.Profile, error) {
	return v.st.findProfiles(q), nil
}

func (v *txView) CreateProfile(_ context.Context, d ledger.ProfileDraft) (ledger.Profile, error) {
	return v.st.createProfile(d)
}

var (
	_ ledger.Store         = (*Memory)(nil)
	_ ledger.TxStore       = (*TxMemory)(nil)
	_ ledger.SnapshotStore = (*Memory)(nil)
	_ ledger.SettingsStore = (*Memory)(nil)
	_ ledger.Store         = (*txView)(nil)
)
