package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusworks/campusworks/internal/shared"
)

// ErrInviteInvalid indicates an expired, consumed or mismatched invite.
var ErrInviteInvalid = errors.New("users: invite invalid")

const inviteTTL = 14 * 24 * time.Hour

// RepositoryPort defines data access methods for users and invites.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (User, error)
	List(ctx context.Context, organisationID int64) ([]User, error)
	UpsertBySubject(ctx context.Context, subject, email, name string, organisationID int64) (User, error)
	SetSystemRoles(ctx context.Context, id int64, systemRoles []string) error
	SoftDelete(ctx context.Context, id int64) error
	HardDelete(ctx context.Context, id int64) error

	CreateInvite(ctx context.Context, invite Invite) (Invite, error)
	GetInvite(ctx context.Context, id int64) (Invite, error)
	MarkInviteAccepted(ctx context.Context, id int64) error
}

// RoleAssigner grants the invited role once an invite is accepted.
type RoleAssigner interface {
	AssignSingle(ctx context.Context, userID, roleID, assignedBy int64) error
}

// Service handles user provisioning business logic.
type Service struct {
	repo     RepositoryPort
	assigner RoleAssigner
	now      func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, assigner RoleAssigner) *Service {
	return &Service{repo: repo, assigner: assigner, now: time.Now}
}

// Get fetches a user by id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// List returns the organisation's active users.
func (s *Service) List(ctx context.Context, organisationID int64) ([]User, error) {
	return s.repo.List(ctx, organisationID)
}

// Invite creates a pending invite and returns it together with the
// plaintext token. Only the bcrypt hash is stored; delivery of the token
// is the caller's concern.
func (s *Service) Invite(ctx context.Context, email string, organisationID, roleID, invitedBy int64) (Invite, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Invite{}, "", errors.New("users: email required")
	}
	token := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return Invite{}, "", err
	}
	invite, err := s.repo.CreateInvite(ctx, Invite{
		Email:          email,
		OrganisationID: organisationID,
		RoleID:         roleID,
		TokenHash:      string(hash),
		InvitedBy:      invitedBy,
		ExpiresAt:      s.now().Add(inviteTTL),
	})
	if err != nil {
		return Invite{}, "", err
	}
	return invite, token, nil
}

// AcceptInvite verifies the token, provisions the user record bound to
// the identity-provider subject and grants the invited role.
func (s *Service) AcceptInvite(ctx context.Context, inviteID int64, token, subject, name string) (User, error) {
	invite, err := s.repo.GetInvite(ctx, inviteID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return User{}, ErrInviteInvalid
		}
		return User{}, err
	}
	if invite.AcceptedAt != nil || s.now().After(invite.ExpiresAt) {
		return User{}, ErrInviteInvalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(invite.TokenHash), []byte(token)); err != nil {
		return User{}, ErrInviteInvalid
	}

	user, err := s.repo.UpsertBySubject(ctx, strings.TrimSpace(subject), invite.Email, strings.TrimSpace(name), invite.OrganisationID)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.MarkInviteAccepted(ctx, invite.ID); err != nil {
		return User{}, err
	}
	if s.assigner != nil {
		if err := s.assigner.AssignSingle(ctx, user.ID, invite.RoleID, invite.InvitedBy); err != nil {
			return User{}, err
		}
	}
	return user, nil
}

// UpsertFromIdentity handles identity-provider webhook provisioning.
func (s *Service) UpsertFromIdentity(ctx context.Context, subject, email, name string, organisationID int64) (User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return User{}, errors.New("users: subject required")
	}
	return s.repo.UpsertBySubject(ctx, subject, strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(name), organisationID)
}

// SetSystemRoles replaces a user's system role tags.
func (s *Service) SetSystemRoles(ctx context.Context, id int64, systemRoles []string) error {
	normalized := make([]string, 0, len(systemRoles))
	for _, tag := range systemRoles {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" {
			normalized = append(normalized, tag)
		}
	}
	return s.repo.SetSystemRoles(ctx, id, normalized)
}

// SoftDelete deactivates a user. The default removal path.
func (s *Service) SoftDelete(ctx context.Context, id int64) error {
	return s.repo.SoftDelete(ctx, id)
}

// HardDelete removes a user record entirely.
func (s *Service) HardDelete(ctx context.Context, id int64) error {
	return s.repo.HardDelete(ctx, id)
}
