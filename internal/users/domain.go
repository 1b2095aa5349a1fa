package users

import "time"

// User represents a provisioned account backing an Actor. Created via
// invite acceptance or an identity-provider webhook; soft-deleted by
// default, hard-deleted only through the explicit admin path.
type User struct {
	ID             int64
	Subject        string
	Email          string
	Name           string
	OrganisationID int64
	SystemRoles    []string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Invite is a pending membership offer. The invite token is stored only
// as a bcrypt hash; acceptance binds the identity-provider subject.
type Invite struct {
	ID             int64
	Email          string
	OrganisationID int64
	RoleID         int64
	TokenHash      string
	InvitedBy      int64
	ExpiresAt      time.Time
	AcceptedAt     *time.Time
	CreatedAt      time.Time
}
