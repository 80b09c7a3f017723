package auth

import (
	"context"

	"campusconnect/internal/apperr"
	"campusconnect/internal/models"
)

// Capability names an operation class that roles may be granted.
type Capability string

const (
	CapManageEvents       Capability = "manage-events"
	CapApproveAttendance  Capability = "approve-attendance"
	CapManageSessions     Capability = "manage-sessions"
	CapViewReports        Capability = "view-reports"
	CapReviewRoleRequests Capability = "review-role-requests"
	CapViewAuditLog       Capability = "view-audit-log"
	CapPostAnnouncements  Capability = "post-announcements"
	CapManageUsers        Capability = "manage-users"
)

var capabilities = map[models.Role]map[Capability]bool{
	models.RoleStudent: {},
	models.RoleFaculty: {
		CapManageEvents:   true,
		CapManageSessions: true,
		CapViewReports:    true,
	},
	models.RoleCoreCommittee: {
		CapManageEvents:      true,
		CapManageSessions:    true,
		CapViewReports:       true,
		CapPostAnnouncements: true,
		CapManageUsers:       true,
	},
	models.RoleAdmin: {
		CapManageEvents:       true,
		CapApproveAttendance:  true,
		CapManageSessions:     true,
		CapViewReports:        true,
		CapReviewRoleRequests: true,
		CapViewAuditLog:       true,
		CapPostAnnouncements:  true,
		CapManageUsers:        true,
	},
}

// Authorize is the single role check used by every policy.
func Authorize(role models.Role, c Capability) error {
	if capabilities[role][c] {
		return nil
	}
	return apperr.Authorization("access denied")
}

// Tier selects where the role for an authorization decision comes from.
type Tier int

const (
	// TierClaim trusts the role embedded in the bearer token.
	TierClaim Tier = iota
	// TierLive re-reads the user's current role from the store.
	TierLive
)

// Policy is the access rule attached to an operation.
type Policy struct {
	Capability Capability
	Tier       Tier
}

func Claim(c Capability) Policy { return Policy{Capability: c, Tier: TierClaim} }
func Live(c Capability) Policy  { return Policy{Capability: c, Tier: TierLive} }

// RoleSource resolves a user's current role. It returns a NotFound error
// when the user does not exist.
type RoleSource interface {
	CurrentRole(ctx context.Context, userID string) (models.Role, error)
}

// Guard evaluates policies against token claims.
type Guard struct {
	roles RoleSource
}

func NewGuard(roles RoleSource) *Guard {
	return &Guard{roles: roles}
}

// Check authorizes claims against p. Live checks fail closed when the user is gone.
func (g *Guard) Check(ctx context.Context, claims Claims, p Policy) error {
	role := claims.Role
	if p.Tier == TierLive {
		current, err := g.roles.CurrentRole(ctx, claims.UserID)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindNotFound {
				return apperr.Authorization("access denied")
			}
			return err
		}
		role = current
	}
	return Authorize(role, p.Capability)
}
