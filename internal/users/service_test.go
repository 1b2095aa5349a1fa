package users

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusworks/campusworks/internal/shared"
)

type memoryRepo struct {
	users      map[int64]User
	invites    map[int64]Invite
	nextUser   int64
	nextInvite int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[int64]User), invites: make(map[int64]Invite)}
}

func (m *memoryRepo) Get(_ context.Context, id int64) (User, error) {
	user, ok := m.users[id]
	if !ok || !user.IsActive {
		return User{}, shared.ErrNotFound
	}
	return user, nil
}

func (m *memoryRepo) List(_ context.Context, organisationID int64) ([]User, error) {
	var out []User
	for _, user := range m.users {
		if user.OrganisationID == organisationID && user.IsActive {
			out = append(out, user)
		}
	}
	return out, nil
}

func (m *memoryRepo) UpsertBySubject(_ context.Context, subject, email, name string, organisationID int64) (User, error) {
	for id, user := range m.users {
		if user.Subject == subject {
			user.Email = email
			user.Name = name
			user.IsActive = true
			m.users[id] = user
			return user, nil
		}
	}
	m.nextUser++
	user := User{ID: m.nextUser, Subject: subject, Email: email, Name: name, OrganisationID: organisationID, IsActive: true}
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryRepo) SetSystemRoles(_ context.Context, id int64, systemRoles []string) error {
	user, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	user.SystemRoles = systemRoles
	m.users[id] = user
	return nil
}

func (m *memoryRepo) SoftDelete(_ context.Context, id int64) error {
	user, ok := m.users[id]
	if !ok || !user.IsActive {
		return shared.ErrNotFound
	}
	user.IsActive = false
	m.users[id] = user
	return nil
}

func (m *memoryRepo) HardDelete(_ context.Context, id int64) error {
	if _, ok := m.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memoryRepo) CreateInvite(_ context.Context, invite Invite) (Invite, error) {
	m.nextInvite++
	invite.ID = m.nextInvite
	invite.CreatedAt = time.Now()
	m.invites[invite.ID] = invite
	return invite, nil
}

func (m *memoryRepo) GetInvite(_ context.Context, id int64) (Invite, error) {
	invite, ok := m.invites[id]
	if !ok {
		return Invite{}, shared.ErrNotFound
	}
	return invite, nil
}

func (m *memoryRepo) MarkInviteAccepted(_ context.Context, id int64) error {
	invite, ok := m.invites[id]
	if !ok {
		return shared.ErrNotFound
	}
	now := time.Now()
	invite.AcceptedAt = &now
	m.invites[id] = invite
	return nil
}

type recordingAssigner struct {
	userID, roleID, assignedBy int64
	calls                      int
}

func (r *recordingAssigner) AssignSingle(_ context.Context, userID, roleID, assignedBy int64) error {
	r.userID, r.roleID, r.assignedBy = userID, roleID, assignedBy
	r.calls++
	return nil
}

func TestInviteStoresOnlyHash(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)

	invite, token, err := svc.Invite(context.Background(), " Alice@Example.EDU ", 1, 3, 9)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "alice@example.edu", invite.Email)
	require.NotEqual(t, token, invite.TokenHash)
	require.NotContains(t, invite.TokenHash, token)
	require.True(t, invite.ExpiresAt.After(time.Now().Add(13*24*time.Hour)))
}

func TestAcceptInviteFlow(t *testing.T) {
	repo := newMemoryRepo()
	assigner := &recordingAssigner{}
	svc := NewService(repo, assigner)
	ctx := context.Background()

	invite, token, err := svc.Invite(ctx, "alice@example.edu", 1, 3, 9)
	require.NoError(t, err)

	user, err := svc.AcceptInvite(ctx, invite.ID, token, "oidc|alice", "Alice")
	require.NoError(t, err)
	require.Equal(t, "oidc|alice", user.Subject)
	require.Equal(t, int64(1), user.OrganisationID)

	require.Equal(t, 1, assigner.calls)
	require.Equal(t, user.ID, assigner.userID)
	require.Equal(t, int64(3), assigner.roleID)
	require.Equal(t, int64(9), assigner.assignedBy)

	// Second acceptance of a consumed invite fails.
	_, err = svc.AcceptInvite(ctx, invite.ID, token, "oidc|bob", "Bob")
	require.ErrorIs(t, err, ErrInviteInvalid)
}

func TestAcceptInviteRejectsBadToken(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	invite, _, err := svc.Invite(ctx, "alice@example.edu", 1, 3, 9)
	require.NoError(t, err)

	_, err = svc.AcceptInvite(ctx, invite.ID, "wrong-token", "oidc|alice", "Alice")
	require.ErrorIs(t, err, ErrInviteInvalid)

	_, err = svc.AcceptInvite(ctx, 999, "whatever", "oidc|alice", "Alice")
	require.ErrorIs(t, err, ErrInviteInvalid)
}

func TestAcceptInviteRejectsExpired(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	ctx := context.Background()

	invite, token, err := svc.Invite(ctx, "alice@example.edu", 1, 3, 9)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.AcceptInvite(ctx, invite.ID, token, "oidc|alice", "Alice")
	require.ErrorIs(t, err, ErrInviteInvalid)
}

func TestSetSystemRolesNormalizes(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	user, err := repo.UpsertBySubject(ctx, "oidc|alice", "alice@example.edu", "Alice", 1)
	require.NoError(t, err)

	require.NoError(t, svc.SetSystemRoles(ctx, user.ID, []string{" Admin ", "DEV", ""}))
	got, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"admin", "dev"}, got.SystemRoles)
}

func TestUpsertFromIdentityIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	first, err := svc.UpsertFromIdentity(ctx, "oidc|alice", "Alice@Example.edu", "Alice", 1)
	require.NoError(t, err)
	second, err := svc.UpsertFromIdentity(ctx, "oidc|alice", "alice@example.edu", "Alice A", 1)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "Alice A", second.Name)

	_, err = svc.UpsertFromIdentity(ctx, " ", "x@example.edu", "X", 1)
	require.Error(t, err)
}
