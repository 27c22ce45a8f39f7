/*
customer.go - Customer identity model

PURPOSE:
  Two backing kinds behind one reference. Movements never point at a
  profile or a local contact directly; they point at a CustomerLink, and
  the link's Kind says which table backs it.

  Registered: another platform user (username + global account number)
  Local:      an owner-created contact (display name, phone, note, and an
              owner-scoped number displayed as L-0007)

INVARIANTS:
  - Exactly one of RegisteredUserID / LocalCustomerID is set, matching Kind.
  - An owner links a given registered user at most once.
  - One profit-and-loss customer per owner. It is a local customer with
    IsProfitLoss set and is not counted in the L- numbering.

SEE ALSO:
  - resolver.go: CustomerLink -> Customer
*/
package ledger

import (
	"fmt"
	"strconv"
	"time"
)

type CustomerKind string

const (
	KindRegistered CustomerKind = "registered"
	KindLocal      CustomerKind = "local"
)

func (k CustomerKind) Valid() bool { return k == KindRegistered || k == KindLocal }

// ProfitLossName is the display name of the synthetic commission account.
const ProfitLossName = "الأرباح والخسائر"

// CustomerLink is the owner-scoped relation that movements reference.
type CustomerLink struct {
	ID               LinkID
	OwnerID          OwnerID
	Kind             CustomerKind
	RegisteredUserID ProfileID
	LocalCustomerID  LocalCustomerID
	IsProfitLoss     bool // copied from the backing local row by the store
	CreatedAt        time.Time
}

// Validate checks the kind/backing-id invariant.
func (l CustomerLink) Validate() error {
	switch l.Kind {
	case KindRegistered:
		if l.RegisteredUserID == "" || l.LocalCustomerID != "" {
			return &ValidationError{Field: "kind", Message: "registered link must reference only a profile"}
		}
	case KindLocal:
		if l.LocalCustomerID == "" || l.RegisteredUserID != "" {
			return &ValidationError{Field: "kind", Message: "local link must reference only a local customer"}
		}
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown customer kind %q", l.Kind)}
	}
	return nil
}

// Profile is a platform-registered user.
type Profile struct {
	ID            ProfileID
	Username      string
	FullName      string
	AccountNumber int64 // global, sequential, immutable
	CreatedAt     time.Time
}

type LocalCustomer struct {
	ID            LocalCustomerID
	OwnerID       OwnerID
	DisplayName   string
	Phone         string
	Note          string
	AccountNumber int64 // owner-scoped; 0 for the profit-and-loss customer
	IsProfitLoss  bool
	CreatedAt     time.Time
}

type LocalCustomerDraft struct {
	OwnerID     OwnerID
	DisplayName string
	Phone       string
	Note        string
}

type ProfileDraft struct {
	Username string
	FullName string
}

// Customer is the uniform display shape every consumer sees.
type Customer struct {
	ID                   LinkID
	Name                 string
	SecondaryLabel       string
	AccountNumberDisplay string
	Kind                 CustomerKind
	IsProfitLoss         bool
	Phone                string
	Note                 string
	CreatedAt            time.Time
}

// FormatLocalAccountNumber renders an owner-scoped number as L-0007.
func FormatLocalAccountNumber(n int64) string {
	return fmt.Sprintf("L-%04d", n)
}

func customerFromProfile(link CustomerLink, p Profile) Customer {
	return Customer{
		ID:                   link.ID,
		Name:                 p.FullName,
		SecondaryLabel:       "@" + p.Username,
		AccountNumberDisplay: strconv.FormatInt(p.AccountNumber, 10),
		Kind:                 KindRegistered,
		CreatedAt:            link.CreatedAt,
	}
}

func customerFromLocal(link CustomerLink, lc LocalCustomer) Customer {
	c := Customer{
		ID:             link.ID,
		Name:           lc.DisplayName,
		SecondaryLabel: lc.Phone,
		Kind:           KindLocal,
		IsProfitLoss:   lc.IsProfitLoss,
		Phone:          lc.Phone,
		Note:           lc.Note,
		CreatedAt:      link.CreatedAt,
	}
	if !lc.IsProfitLoss {
		c.AccountNumberDisplay = FormatLocalAccountNumber(lc.AccountNumber)
	}
	return c
}
