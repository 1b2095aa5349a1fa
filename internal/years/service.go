package years

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/campusworks/campusworks/internal/rbac"
	"github.com/campusworks/campusworks/internal/shared"
)

// ErrInvalidInput indicates a rejected payload on a year write path.
var ErrInvalidInput = errors.New("years: invalid input")

// RepositoryPort defines data access methods for academic years.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (AcademicYear, error)
	ListForStates(ctx context.Context, organisationID int64, states []State) ([]AcademicYear, error)
	Insert(ctx context.Context, year AcademicYear) (AcademicYear, error)
	Update(ctx context.Context, year AcademicYear) (AcademicYear, error)
	SetDefault(ctx context.Context, organisationID, yearID int64) error
	SoftDelete(ctx context.Context, yearID int64) error
}

// AuditRecorder is the best-effort audit sink.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles academic year business logic. Every entry point takes
// the resolved actor and authorizes before touching the store.
type Service struct {
	repo     RepositoryPort
	policy   *Policy
	resolver *rbac.Resolver
	audit    AuditRecorder
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, policy *Policy, resolver *rbac.Resolver, audit AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, policy: policy, resolver: resolver, audit: audit, logger: logger}
}

// CreateInput carries the fields for a new academic year.
type CreateInput struct {
	OrganisationID int64
	Name           string
	StartDate      time.Time
	EndDate        time.Time
}

// UpdateInput carries the mutable fields of a year.
type UpdateInput struct {
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// Get returns the year if the actor may view it in its current state.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, id int64) (AcademicYear, error) {
	year, err := s.repo.Get(ctx, id)
	if err != nil {
		return AcademicYear{}, err
	}
	if err := s.policy.RequireView(ctx, actor, year); err != nil {
		return AcademicYear{}, err
	}
	return year, nil
}

// List returns the organisation's years in states the actor may view. The
// three view permissions are evaluated once and the state filter is pushed
// into the query.
func (s *Service) List(ctx context.Context, actor rbac.Actor, organisationID int64) ([]AcademicYear, error) {
	states, err := s.policy.ViewableStates(ctx, actor, organisationID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListForStates(ctx, organisationID, states)
}

// Create inserts a new draft year.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, input CreateInput) (AcademicYear, error) {
	if strings.TrimSpace(input.Name) == "" {
		return AcademicYear{}, fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if !input.EndDate.After(input.StartDate) {
		return AcademicYear{}, fmt.Errorf("%w: end date must follow start date", ErrInvalidInput)
	}
	if err := s.resolver.RequirePermission(ctx, actor, shared.PermYearsCreate, input.OrganisationID); err != nil {
		return AcademicYear{}, err
	}
	year, err := s.repo.Insert(ctx, AcademicYear{
		OrganisationID: input.OrganisationID,
		Name:           strings.TrimSpace(input.Name),
		StartDate:      input.StartDate,
		EndDate:        input.EndDate,
		Status:         StatusDraft,
	})
	if err != nil {
		return AcademicYear{}, err
	}
	s.recordAudit(ctx, actor, "CREATE", year, nil)
	return year, nil
}

// Update replaces name and dates, gated by the edit permission of the
// year's current state.
func (s *Service) Update(ctx context.Context, actor rbac.Actor, id int64, input UpdateInput) (AcademicYear, error) {
	year, err := s.repo.Get(ctx, id)
	if err != nil {
		return AcademicYear{}, err
	}
	if err := s.policy.RequireEdit(ctx, actor, year); err != nil {
		return AcademicYear{}, err
	}
	if strings.TrimSpace(input.Name) != "" {
		year.Name = strings.TrimSpace(input.Name)
	}
	if !input.StartDate.IsZero() {
		year.StartDate = input.StartDate
	}
	if !input.EndDate.IsZero() {
		year.EndDate = input.EndDate
	}
	if !year.EndDate.After(year.StartDate) {
		return AcademicYear{}, fmt.Errorf("%w: end date must follow start date", ErrInvalidInput)
	}
	updated, err := s.repo.Update(ctx, year)
	if err != nil {
		return AcademicYear{}, err
	}
	s.recordAudit(ctx, actor, "UPDATE", updated, nil)
	return updated, nil
}

// Publish moves a year out of draft. The staging flag is left untouched:
// a published year can still be held in staging visibility.
func (s *Service) Publish(ctx context.Context, actor rbac.Actor, id int64) (AcademicYear, error) {
	return s.transition(ctx, actor, id, "PUBLISH", func(year *AcademicYear) error {
		if year.Status == StatusArchived {
			return fmt.Errorf("%w: cannot publish an archived year", ErrInvalidInput)
		}
		year.Status = StatusPublished
		return nil
	})
}

// Archive retires a year. Archived wins over every other state.
func (s *Service) Archive(ctx context.Context, actor rbac.Actor, id int64) (AcademicYear, error) {
	return s.transition(ctx, actor, id, "ARCHIVE", func(year *AcademicYear) error {
		year.Status = StatusArchived
		return nil
	})
}

// SetStaging toggles the explicit staging flag.
func (s *Service) SetStaging(ctx context.Context, actor rbac.Actor, id int64, staging bool) (AcademicYear, error) {
	action := "STAGE"
	if !staging {
		action = "UNSTAGE"
	}
	return s.transition(ctx, actor, id, action, func(year *AcademicYear) error {
		year.Staging = staging
		return nil
	})
}

// SetDefaultYear flags the year as the organisation's default, clearing
// every sibling inside the same transaction.
func (s *Service) SetDefaultYear(ctx context.Context, actor rbac.Actor, id int64) error {
	year, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.resolver.RequirePermission(ctx, actor, shared.PermYearsSetDefault, year.OrganisationID); err != nil {
		return err
	}
	if err := s.repo.SetDefault(ctx, year.OrganisationID, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "SET_DEFAULT", year, nil)
	return nil
}

// Delete soft-deletes a year, gated by its current state's edit
// permission.
func (s *Service) Delete(ctx context.Context, actor rbac.Actor, id int64) error {
	year, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.RequireEdit(ctx, actor, year); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "DELETE", year, nil)
	return nil
}

// transition applies fn to the year after authorizing against the edit
// permission of its pre-transition state.
func (s *Service) transition(ctx context.Context, actor rbac.Actor, id int64, action string, fn func(*AcademicYear) error) (AcademicYear, error) {
	year, err := s.repo.Get(ctx, id)
	if err != nil {
		return AcademicYear{}, err
	}
	if err := s.policy.RequireEdit(ctx, actor, year); err != nil {
		return AcademicYear{}, err
	}
	if err := fn(&year); err != nil {
		return AcademicYear{}, err
	}
	updated, err := s.repo.Update(ctx, year)
	if err != nil {
		return AcademicYear{}, err
	}
	s.recordAudit(ctx, actor, action, updated, nil)
	return updated, nil
}

// recordAudit writes a best-effort audit entry after a successful effect.
// Failures are logged and swallowed; they never roll back the effect.
func (s *Service) recordAudit(ctx context.Context, actor rbac.Actor, action string, year AcademicYear, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["state"] = string(year.LifecycleState())
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorSubject: actor.Subject,
		Action:       action,
		Entity:       "academic_years",
		EntityID:     strconv.FormatInt(year.ID, 10),
		Meta:         meta,
	})
	if err != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
