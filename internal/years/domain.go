package years

import (
	"time"

	"github.com/campusworks/campusworks/internal/shared"
)

// Status is the stored lifecycle status of an academic year.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// State is the derived visibility state. Exactly one state applies to a
// given year instance: archived wins over staging, staging wins over live.
type State string

const (
	StateArchived State = "archived"
	StateStaging  State = "staging"
	StateLive     State = "live"
)

// AllStates lists the visibility states in precedence order.
func AllStates() []State {
	return []State{StateArchived, StateStaging, StateLive}
}

// AcademicYear is an organisation-scoped academic year whose visibility is
// gated by its derived lifecycle state.
type AcademicYear struct {
	ID             int64
	OrganisationID int64
	Name           string
	StartDate      time.Time
	EndDate        time.Time
	Status         Status
	Staging        bool
	IsDefault      bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LifecycleState derives the single visibility state governing the year.
// Evaluated top to bottom; first match wins.
func (y AcademicYear) LifecycleState() State {
	switch {
	case y.Status == StatusArchived:
		return StateArchived
	case y.Staging || y.Status == StatusDraft:
		return StateStaging
	default:
		return StateLive
	}
}

// ViewPermission maps a visibility state to the permission id governing
// read access.
func ViewPermission(state State) string {
	switch state {
	case StateArchived:
		return shared.PermYearsViewArchived
	case StateStaging:
		return shared.PermYearsViewStaging
	default:
		return shared.PermYearsViewLive
	}
}

// EditPermission maps a visibility state to the permission id governing
// mutation.
func EditPermission(state State) string {
	switch state {
	case StateArchived:
		return shared.PermYearsEditArchived
	case StateStaging:
		return shared.PermYearsEditStaging
	default:
		return shared.PermYearsEditLive
	}
}
