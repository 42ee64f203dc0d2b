package issuer

import (
	"time"

	"github.com/tapglue/nexus/platform/service"
)

const entity = "issuers"

// Roles an issuer can hold. Privileged issuers bypass quota gating entirely.
const (
	RoleOrdinary   Role = "ordinary"
	RolePrivileged Role = "privileged"
)

// Role describes the capability class of an issuer.
type Role string

// Issuer is the account allowed to hand out invites, together with its
// remaining invite credits. InvitesAvailable is meaningful for ordinary
// issuers only and is settled exclusively by the issuance transaction.
type Issuer struct {
	ID               uint64
	InvitesAvailable int
	Role             Role
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Privileged indicates if the issuer is exempt from quota checks.
func (i *Issuer) Privileged() bool {
	return i.Role == RolePrivileged
}

// Validate performs semantic checks on the passed Issuer values for
// correctness.
func (i *Issuer) Validate() error {
	switch i.Role {
	case RoleOrdinary, RolePrivileged:
		// valid
	default:
		return wrapError(ErrInvalidIssuer, "unknown role '%s'", i.Role)
	}

	if i.InvitesAvailable < 0 {
		return wrapError(ErrInvalidIssuer, "invites available must not be negative")
	}

	return nil
}

// List is a collection of Issuer.
type List []*Issuer

func (l List) Len() int {
	return len(l)
}

func (l List) Less(i, j int) bool {
	return l[i].CreatedAt.After(l[j].CreatedAt)
}

func (l List) Swap(i, j int) {
	l[i], l[j] = l[j], l[i]
}

// QueryOptions to narrow-down Issuer queries.
type QueryOptions struct {
	Before time.Time
	IDs    []uint64
	Limit  uint
	Roles  []Role
}

// Service for Issuer interactions.
type Service interface {
	service.Lifecycle

	Put(namespace string, i *Issuer) (*Issuer, error)
	Query(namespace string, opts QueryOptions) (List, error)
	Quota(namespace string, id uint64) (int, error)
	SetQuota(namespace string, id uint64, quota int) error
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service
