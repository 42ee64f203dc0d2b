package invite

import (
	"time"

	"github.com/tapglue/nexus/platform/service"
	"github.com/tapglue/nexus/platform/source"
)

const entity = "invites"

// DefaultLifetime is the validity horizon applied to an issuance which does
// not carry one.
const DefaultLifetime = 14 * 24 * time.Hour

// States an Invite can be in. Used is terminal.
const (
	StateActive State = "active"
	StateUsed   State = "used"
)

// Quota consumption modes for ordinary issuers.
const (
	// ConsumeAll settles the issuer's entire remaining allowance on a single
	// issuance.
	ConsumeAll ConsumeMode = iota
	// ConsumeSingle decrements the allowance by one per issuance.
	ConsumeSingle
)

// ConsumeMode controls how an issuance settles the issuer's quota.
type ConsumeMode uint8

// State describes the lifecycle position of an Invite.
type State string

// Invite is a single-use registration code handed out by an issuer. It is
// created through issuance only, mutated exactly once by redemption and never
// deleted.
type Invite struct {
	Code       string
	ID         uint64
	IssuerID   uint64
	RedeemedBy uint64
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RedeemedAt time.Time
	UpdatedAt  time.Time
}

// State derives the lifecycle position from the redemption fields.
func (i *Invite) State() State {
	if i.RedeemedBy != 0 && !i.RedeemedAt.IsZero() {
		return StateUsed
	}

	return StateActive
}

// ExpiredAt indicates if the invite validity horizon has passed at the given
// time.
func (i *Invite) ExpiredAt(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}

// List is a collection of Invite.
type List []*Invite

func (l List) Len() int {
	return len(l)
}

func (l List) Less(i, j int) bool {
	return l[i].CreatedAt.After(l[j].CreatedAt)
}

func (l List) Swap(i, j int) {
	l[i], l[j] = l[j], l[i]
}

// Issuance carries the inputs of an issue request. Privileged is established
// by the caller once, from the issuer's static role.
type Issuance struct {
	IssuerID   uint64
	Lifetime   time.Duration
	Privileged bool
}

// Validate performs semantic checks on the passed Issuance values for
// correctness.
func (i *Issuance) Validate() error {
	if i.IssuerID == 0 {
		return wrapError(ErrInvalidIssuance, "issuer id must be set")
	}

	if i.Lifetime < 0 {
		return wrapError(ErrInvalidIssuance, "lifetime must not be negative")
	}

	return nil
}

// Ledger is the slice of the issuer record the issuance path reads and
// settles. Implemented by the issuer service stores.
type Ledger interface {
	Quota(namespace string, issuerID uint64) (int, error)
	SetQuota(namespace string, issuerID uint64, quota int) error
}

// QueryOptions to narrow-down Invite queries.
type QueryOptions struct {
	Before    time.Time
	Codes     []string
	IDs       []uint64
	IssuerIDs []uint64
	Limit     uint
	Used      *bool
}

// Service for Invite interactions.
type Service interface {
	service.Lifecycle

	Count(namespace string, opts QueryOptions) (int, error)
	Issue(namespace string, issuance *Issuance) (*Invite, error)
	Query(namespace string, opts QueryOptions) (List, error)
	Redeem(namespace, code string, accountID uint64) (*Invite, error)
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service

// StateChange transports all information necessary to observe state changes.
type StateChange struct {
	AckID     string
	ID        string
	Namespace string
	New       *Invite
	Old       *Invite
	SentAt    time.Time
}

// Consumer observes state changes.
type Consumer interface {
	Consume() (*StateChange, error)
}

// Producer creates state change notifications.
type Producer interface {
	Propagate(namespace string, old, new *Invite) (string, error)
}

// Source encapsulates state change notification operations.
type Source interface {
	source.Acker
	Consumer
	Producer
}

// SourceMiddleware is a chainable behaviour modifier for Source.
type SourceMiddleware func(Source) Source
