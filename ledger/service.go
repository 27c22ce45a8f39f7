/*
service.go - Ledger service: customer management entry points

PURPOSE:
  Service is the single write-side facade over a Store. It validates input
  before any I/O, picks the transactional path when the store supports it,
  and emits a change notification after every successful write so views
  can recompute.

FILES:
  service.go     customers, profiles, profit-and-loss get-or-create
  commission.go  movement entry with optional commission split
  transfer.go    internal transfer between two customers
  edit.go        movement edit/delete
  lifecycle.go   reset account, delete customer
  view.go        read side: detail view, list view, owner report
*/
package ledger

import (
	"context"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ChangeNotifier receives "something changed" signals after writes.
// Implementations must not block.
type ChangeNotifier interface {
	Changed(ctx context.Context, owner OwnerID, links ...LinkID)
}

type nopNotifier struct{}

func (nopNotifier) Changed(context.Context, OwnerID, ...LinkID) {}

type Service struct {
	store    Store
	resolver *Resolver
	notifier ChangeNotifier
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLogger(log *zap.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func WithNotifier(n ChangeNotifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides time.Now, for tests and demo scenarios.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		notifier: nopNotifier{},
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = NewResolver(store, store, s.log)
	return s
}

func (s *Service) Store() Store { return s.store }
func (s *Service) Resolver() *Resolver { return s.resolver }
func (s *Service) Now() time.Time { return s.now() }
func (s *Service) Logger() *zap.Logger { return s.log }
func (s *Service) SetNotifier(n ChangeNotifier) {
	if n != nil {
		s.notifier = n
	}
}

// inTx runs fn inside a transaction when the store supports one. The flag
// tells fn whether a returned error rolls back its earlier writes.
func (s *Service) inTx(ctx context.Context, fn func(st Store, transactional bool) error) error {
	if tx, ok := s.store.(TxStore); ok {
		return tx.WithTx(ctx, func(st Store) error { return fn(st, true) })
	}
	return fn(s.store, false)
}

// =============================================================================
// CUSTOMERS
// =============================================================================

type LocalCustomerInput struct {
	DisplayName string
	Phone       string
	Note        string
}

// AddLocalCustomer creates a local contact with the next L- number.
func (s *Service) AddLocalCustomer(ctx context.Context, owner OwnerID, in LocalCustomerInput) (Customer, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return Customer{}, &ValidationError{Field: "display_name", Message: "is required"}
	}
	if name == ProfitLossName {
		return Customer{}, &ValidationError{Field: "display_name", Message: "is reserved"}
	}

	link, lc, err := s.store.CreateLocalCustomer(ctx, LocalCustomerDraft{
		OwnerID:     owner,
		DisplayName: name,
		Phone:       strings.TrimSpace(in.Phone),
		Note:        strings.TrimSpace(in.Note),
	})
	if err != nil {
		return Customer{}, err
	}

	s.log.Info("local customer created",
		zap.String("owner_id", string(owner)),
		zap.String("link_id", string(link.ID)),
		zap.Int64("local_account_number", lc.AccountNumber))
	s.notifier.Changed(ctx, owner, link.ID)
	return customerFromLocal(link, lc), nil
}

// AddRegisteredCustomer links another platform user to the owner's list.
func (s *Service) AddRegisteredCustomer(ctx context.Context, owner OwnerID, profileID ProfileID) (Customer, error) {
	if profileID == "" {
		return Customer{}, &ValidationError{Field: "profile_id", Message: "is required"}
	}
	if profileID == ProfileID(owner) {
		return Customer{}, ErrCannotAddSelf
	}

	profiles, err := s.store.Profiles(ctx, []ProfileID{profileID})
	if err != nil {
		return Customer{}, err
	}
	if len(profiles) == 0 {
		return Customer{}, &NotFoundError{Resource: "profile", ID: string(profileID)}
	}

	link, err := s.store.LinkRegistered(ctx, owner, profileID)
	if err != nil {
		return Customer{}, err
	}

	s.log.Info("registered customer linked",
		zap.String("owner_id", string(owner)),
		zap.String("link_id", string(link.ID)),
		zap.String("profile_id", string(profileID)))
	s.notifier.Changed(ctx, owner, link.ID)
	return customerFromProfile(link, profiles[0]), nil
}

// SearchProfiles is the "add customer" lookup.
func (s *Service) SearchProfiles(ctx context.Context, owner OwnerID, query string) ([]Profile, error) {
	return s.resolver.Search(ctx, owner, query)
}

// ProfitLossCustomer returns the owner's commission account, creating it on first use.
func (s *Service) ProfitLossCustomer(ctx context.Context, owner OwnerID) (Customer, error) {
	link, err := s.store.GetOrCreateProfitLoss(ctx, owner)
	if err != nil {
		return Customer{}, err
	}
	return s.resolver.ResolveLink(ctx, link)
}

// =============================================================================
// PROFILES
// =============================================================================

var usernamePattern = regexp.MustCompile(`^[a-z0-9_.]{3,32}$`)

// CreateProfile registers a platform profile with the next global account number.
func (s *Service) CreateProfile(ctx context.Context, d ProfileDraft) (Profile, error) {
	d.Username = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(d.Username, "@")))
	d.FullName = strings.TrimSpace(d.FullName)
	if !usernamePattern.MatchString(d.Username) {
		return Profile{}, &ValidationError{Field: "username", Message: "must be 3-32 characters of a-z, 0-9, _ or ."}
	}
	if d.FullName == "" {
		return Profile{}, &ValidationError{Field: "full_name", Message: "is required"}
	}
	p, err := s.store.CreateProfile(ctx, d)
	if err != nil {
		return Profile{}, err
	}
	s.log.Info("profile created", zap.String("profile_id", string(p.ID)), zap.Int64("account_number", p.AccountNumber))
	return p, nil
}
