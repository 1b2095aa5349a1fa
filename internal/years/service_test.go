package years

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campusworks/campusworks/internal/rbac"
	"github.com/campusworks/campusworks/internal/shared"
)

// fixedSources backs a real resolver with static roles and assignments.
type fixedSources struct {
	roles   map[int64]rbac.Role
	byUser  map[int64][]int64
	catalog rbac.CatalogSnapshot
}

func (f *fixedSources) ActiveAssignments(_ context.Context, userID, organisationID int64) ([]rbac.RoleAssignment, error) {
	var out []rbac.RoleAssignment
	for _, roleID := range f.byUser[userID] {
		role := f.roles[roleID]
		if role.OrganisationID == organisationID {
			out = append(out, rbac.RoleAssignment{UserID: userID, RoleID: roleID, OrganisationID: organisationID, IsActive: true})
		}
	}
	return out, nil
}

func (f *fixedSources) ActiveAssignment(ctx context.Context, userID, organisationID int64) (*rbac.RoleAssignment, error) {
	all, err := f.ActiveAssignments(ctx, userID, organisationID)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return &all[len(all)-1], nil
}

func (f *fixedSources) RolesByIDs(_ context.Context, ids []int64) ([]rbac.Role, error) {
	var out []rbac.Role
	for _, id := range ids {
		if role, ok := f.roles[id]; ok {
			out = append(out, role)
		}
	}
	return out, nil
}

func (f *fixedSources) OrganisationActive(_ context.Context, _ int64) (bool, error) {
	return true, nil
}

func (f *fixedSources) Snapshot(_ context.Context) (rbac.CatalogSnapshot, error) {
	if f.catalog.Entries == nil {
		f.catalog.Entries = map[string]rbac.SystemPermission{}
	}
	return f.catalog, nil
}

// memoryYearRepo implements RepositoryPort in memory.
type memoryYearRepo struct {
	years  map[int64]AcademicYear
	nextID int64
}

func newMemoryYearRepo() *memoryYearRepo {
	return &memoryYearRepo{years: make(map[int64]AcademicYear)}
}

func (m *memoryYearRepo) Get(_ context.Context, id int64) (AcademicYear, error) {
	year, ok := m.years[id]
	if !ok || !year.IsActive {
		return AcademicYear{}, shared.ErrNotFound
	}
	return year, nil
}

func (m *memoryYearRepo) ListForStates(_ context.Context, organisationID int64, states []State) ([]AcademicYear, error) {
	allowed := make(map[State]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	var out []AcademicYear
	for _, year := range m.years {
		if year.OrganisationID == organisationID && year.IsActive && allowed[year.LifecycleState()] {
			out = append(out, year)
		}
	}
	return out, nil
}

func (m *memoryYearRepo) Insert(_ context.Context, year AcademicYear) (AcademicYear, error) {
	m.nextID++
	year.ID = m.nextID
	year.IsActive = true
	m.years[year.ID] = year
	return year, nil
}

func (m *memoryYearRepo) Update(_ context.Context, year AcademicYear) (AcademicYear, error) {
	if _, ok := m.years[year.ID]; !ok {
		return AcademicYear{}, shared.ErrNotFound
	}
	m.years[year.ID] = year
	return year, nil
}

func (m *memoryYearRepo) SetDefault(_ context.Context, organisationID, yearID int64) error {
	target, ok := m.years[yearID]
	if !ok || !target.IsActive || target.OrganisationID != organisationID {
		return shared.ErrNotFound
	}
	for id, year := range m.years {
		if year.OrganisationID == organisationID {
			year.IsDefault = id == yearID
			m.years[id] = year
		}
	}
	return nil
}

func (m *memoryYearRepo) SoftDelete(_ context.Context, yearID int64) error {
	year, ok := m.years[yearID]
	if !ok || !year.IsActive {
		return shared.ErrNotFound
	}
	year.IsActive = false
	year.IsDefault = false
	m.years[yearID] = year
	return nil
}

const testOrg int64 = 1

// newYearsFixture wires a service whose resolver grants the given
// permissions through a single role.
func newYearsFixture(perms ...string) (*Service, *memoryYearRepo, rbac.Actor) {
	sources := &fixedSources{
		roles: map[int64]rbac.Role{
			1: {ID: 1, OrganisationID: testOrg, Name: "Test", Permissions: perms, IsActive: true},
		},
		byUser: map[int64][]int64{7: {1}},
	}
	resolver := rbac.NewResolver(sources, sources, sources, sources)
	repo := newMemoryYearRepo()
	svc := NewService(repo, NewPolicy(resolver), resolver, nil, nil)
	actor := rbac.Actor{UserID: 7, Subject: "u7", OrganisationID: testOrg}
	return svc, repo, actor
}

func seedYear(repo *memoryYearRepo, status Status, staging bool) AcademicYear {
	year, _ := repo.Insert(context.Background(), AcademicYear{
		OrganisationID: testOrg,
		Name:           "Y " + string(status),
		StartDate:      time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		Status:         status,
		Staging:        staging,
	})
	return year
}

func TestListFiltersByViewableStates(t *testing.T) {
	svc, repo, actor := newYearsFixture(shared.PermYearsViewStaging, shared.PermYearsViewLive)
	seedYear(repo, StatusArchived, false)
	staging := seedYear(repo, StatusDraft, false)
	live := seedYear(repo, StatusPublished, false)

	list, err := svc.List(context.Background(), actor, testOrg)
	require.NoError(t, err)
	require.Len(t, list, 2)
	ids := map[int64]bool{}
	for _, y := range list {
		ids[y.ID] = true
	}
	require.True(t, ids[staging.ID])
	require.True(t, ids[live.ID])
}

func TestListEmptyWithoutViewPermissions(t *testing.T) {
	svc, repo, actor := newYearsFixture()
	seedYear(repo, StatusPublished, false)

	list, err := svc.List(context.Background(), actor, testOrg)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestGetGatedByStateViewPermission(t *testing.T) {
	svc, repo, actor := newYearsFixture(shared.PermYearsViewLive)
	live := seedYear(repo, StatusPublished, false)
	archived := seedYear(repo, StatusArchived, false)

	_, err := svc.Get(context.Background(), actor, live.ID)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), actor, archived.ID)
	require.ErrorIs(t, err, rbac.ErrPermissionDenied)
}

func TestStagingFlagShiftsRequiredPermission(t *testing.T) {
	// Actor may edit live years but not staging ones.
	svc, repo, actor := newYearsFixture(shared.PermYearsViewLive, shared.PermYearsViewStaging, shared.PermYearsEditLive)
	year := seedYear(repo, StatusPublished, false)

	_, err := svc.Update(context.Background(), actor, year.ID, UpdateInput{Name: "renamed"})
	require.NoError(t, err)

	// Flip the same year into staging; the edit gate moves with it.
	stored := repo.years[year.ID]
	stored.Staging = true
	repo.years[year.ID] = stored

	_, err = svc.Update(context.Background(), actor, year.ID, UpdateInput{Name: "again"})
	require.ErrorIs(t, err, rbac.ErrPermissionDenied)
}

func TestTransitionAuthorizesAgainstCurrentState(t *testing.T) {
	// Archive of a live year needs the live edit permission, not the
	// archived one.
	svc, repo, actor := newYearsFixture(shared.PermYearsEditLive)
	year := seedYear(repo, StatusPublished, false)

	archived, err := svc.Archive(context.Background(), actor, year.ID)
	require.NoError(t, err)
	require.Equal(t, StateArchived, archived.LifecycleState())

	// Once archived, the same actor can no longer touch it.
	_, err = svc.Publish(context.Background(), actor, year.ID)
	require.ErrorIs(t, err, rbac.ErrPermissionDenied)
}

func TestPublishArchivedRejected(t *testing.T) {
	svc, repo, actor := newYearsFixture(shared.PermYearsEditArchived)
	year := seedYear(repo, StatusArchived, false)

	_, err := svc.Publish(context.Background(), actor, year.ID)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateValidation(t *testing.T) {
	svc, _, actor := newYearsFixture(shared.PermYearsCreate)
	ctx := context.Background()
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(ctx, actor, CreateInput{OrganisationID: testOrg, Name: " ", StartDate: start, EndDate: start.AddDate(1, 0, 0)})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Create(ctx, actor, CreateInput{OrganisationID: testOrg, Name: "2026/2027", StartDate: start, EndDate: start})
	require.ErrorIs(t, err, ErrInvalidInput)

	year, err := svc.Create(ctx, actor, CreateInput{OrganisationID: testOrg, Name: "2026/2027", StartDate: start, EndDate: start.AddDate(1, 0, 0)})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, year.Status)
	require.Equal(t, StateStaging, year.LifecycleState())
}

func TestCreateRequiresPermission(t *testing.T) {
	svc, _, actor := newYearsFixture(shared.PermYearsViewLive)
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Create(context.Background(), actor, CreateInput{
		OrganisationID: testOrg, Name: "2026/2027", StartDate: start, EndDate: start.AddDate(1, 0, 0),
	})
	require.ErrorIs(t, err, rbac.ErrPermissionDenied)
}

func TestSetDefaultYearExclusive(t *testing.T) {
	svc, repo, actor := newYearsFixture(shared.PermYearsSetDefault)
	first := seedYear(repo, StatusPublished, false)
	second := seedYear(repo, StatusPublished, false)
	ctx := context.Background()

	require.NoError(t, svc.SetDefaultYear(ctx, actor, first.ID))
	require.True(t, repo.years[first.ID].IsDefault)

	require.NoError(t, svc.SetDefaultYear(ctx, actor, second.ID))
	require.False(t, repo.years[first.ID].IsDefault, "previous default must be cleared")
	require.True(t, repo.years[second.ID].IsDefault)
}

func TestSystemUserBypassesYearGates(t *testing.T) {
	svc, repo, _ := newYearsFixture()
	archived := seedYear(repo, StatusArchived, false)

	admin := rbac.Actor{UserID: 99, Subject: "root", OrganisationID: 42, SystemRoles: []string{"sysadmin"}}
	_, err := svc.Get(context.Background(), admin, archived.ID)
	require.NoError(t, err)
}
