/*
resolver.go - Customer Identity Resolver

PURPOSE:
  Turns CustomerLink rows into the uniform Customer shape, whichever table
  backs them.

BATCH RESOLUTION (list view):
  Profiles and local customers are fetched concurrently and joined before
  anything is returned. A link whose backing row is missing is skipped and
  logged; it never fails the list. Any fetch error fails the whole batch.

SINGLE RESOLUTION (detail view):
  A missing backing row surfaces as NotFoundError.

SEARCH:
  All-digit query   -> exact account_number
  Anything else     -> case-insensitive username substring
  The owner's own profile is never offered; if it was the only match the
  caller gets ErrCannotAddSelf.
*/
package ledger

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Resolver struct {
	customers CustomerStore
	profiles  ProfileStore
	log       *zap.Logger
}

func NewResolver(customers CustomerStore, profiles ProfileStore, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{customers: customers, profiles: profiles, log: log}
}

// Resolve loads one link and resolves it.
func (r *Resolver) Resolve(ctx context.Context, owner OwnerID, id LinkID) (Customer, error) {
	link, err := r.customers.GetLink(ctx, owner, id)
	if err != nil {
		return Customer{}, transient("load customer link", err)
	}
	return r.ResolveLink(ctx, link)
}

func (r *Resolver) ResolveLink(ctx context.Context, link CustomerLink) (Customer, error) {
	if err := link.Validate(); err != nil {
		return Customer{}, err
	}

	switch link.Kind {
	case KindRegistered:
		profiles, err := r.profiles.Profiles(ctx, []ProfileID{link.RegisteredUserID})
		if err != nil {
			return Customer{}, transient("load profile", err)
		}
		if len(profiles) == 0 {
			return Customer{}, &NotFoundError{Resource: "profile", ID: string(link.RegisteredUserID)}
		}
		return customerFromProfile(link, profiles[0]), nil

	default:
		locals, err := r.customers.LocalCustomers(ctx, link.OwnerID, []LocalCustomerID{link.LocalCustomerID})
		if err != nil {
			return Customer{}, transient("load local customer", err)
		}
		if len(locals) == 0 {
			return Customer{}, &NotFoundError{Resource: "local_customer", ID: string(link.LocalCustomerID)}
		}
		return customerFromLocal(link, locals[0]), nil
	}
}

// ResolveAll resolves links in their given order, skipping dangling ones.
func (r *Resolver) ResolveAll(ctx context.Context, owner OwnerID, links []CustomerLink) ([]Customer, error) {
	var profileIDs []ProfileID
	var localIDs []LocalCustomerID
	for _, l := range links {
		switch l.Kind {
		case KindRegistered:
			profileIDs = append(profileIDs, l.RegisteredUserID)
		case KindLocal:
			localIDs = append(localIDs, l.LocalCustomerID)
		}
	}

	var profiles []Profile
	var locals []LocalCustomer

	g, gctx := errgroup.WithContext(ctx)
	if len(profileIDs) > 0 {
		g.Go(func() error {
			var err error
			profiles, err = r.profiles.Profiles(gctx, profileIDs)
			return err
		})
	}
	if len(localIDs) > 0 {
		g.Go(func() error {
			var err error
			locals, err = r.customers.LocalCustomers(gctx, owner, localIDs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, transient("resolve customers", err)
	}

	profileByID := make(map[ProfileID]Profile, len(profiles))
	for _, p := range profiles {
		profileByID[p.ID] = p
	}
	localByID := make(map[LocalCustomerID]LocalCustomer, len(locals))
	for _, lc := range locals {
		localByID[lc.ID] = lc
	}

	out := make([]Customer, 0, len(links))
	for _, l := range links {
		if err := l.Validate(); err != nil {
			r.log.Warn("skipping malformed customer link",
				zap.String("link_id", string(l.ID)), zap.Error(err))
			continue
		}
		switch l.Kind {
		case KindRegistered:
			p, ok := profileByID[l.RegisteredUserID]
			if !ok {
				r.log.Warn("skipping dangling customer link",
					zap.String("link_id", string(l.ID)),
					zap.String("kind", string(l.Kind)),
					zap.String("profile_id", string(l.RegisteredUserID)))
				continue
			}
			out = append(out, customerFromProfile(l, p))
		case KindLocal:
			lc, ok := localByID[l.LocalCustomerID]
			if !ok {
				r.log.Warn("skipping dangling customer link",
					zap.String("link_id", string(l.ID)),
					zap.String("kind", string(l.Kind)),
					zap.String("local_customer_id", string(l.LocalCustomerID)))
				continue
			}
			out = append(out, customerFromLocal(l, lc))
		}
	}
	return out, nil
}

// Search finds platform profiles the owner could add.
func (r *Resolver) Search(ctx context.Context, owner OwnerID, query string) ([]Profile, error) {
	q, err := parseProfileQuery(query)
	if err != nil {
		return nil, err
	}

	found, err := r.profiles.FindProfiles(ctx, q)
	if err != nil {
		return nil, transient("search profiles", err)
	}

	out := make([]Profile, 0, len(found))
	for _, p := range found {
		if p.ID == ProfileID(owner) {
			continue
		}
		out = append(out, p)
	}
	if len(found) > 0 && len(out) == 0 {
		return nil, ErrCannotAddSelf
	}
	return out, nil
}

func parseProfileQuery(query string) (ProfileQuery, error) {
	query = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(query), "@"))
	if query == "" {
		return ProfileQuery{}, &ValidationError{Field: "q", Message: "is required"}
	}
	if isDigits(query) {
		n, err := strconv.ParseInt(query, 10, 64)
		if err != nil || n <= 0 {
			return ProfileQuery{}, &ValidationError{Field: "q", Message: "invalid account number"}
		}
		return ProfileQuery{AccountNumber: n, Limit: 20}, nil
	}
	return ProfileQuery{Username: strings.ToLower(query), Limit: 20}, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
