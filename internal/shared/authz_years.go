package shared

// Academic year permissions declared for RBAC. Each lifecycle state of a
// year carries its own view/edit pair; exactly one pair governs a given
// year instance at a time.
const (
	PermYearsViewArchived = "years.view.archived"
	PermYearsViewStaging  = "years.view.staging"
	PermYearsViewLive     = "years.view.live"

	PermYearsEditArchived = "years.edit.archived"
	PermYearsEditStaging  = "years.edit.staging"
	PermYearsEditLive     = "years.edit.live"

	PermYearsCreate     = "years.create"
	PermYearsSetDefault = "years.set_default"
)

// YearScopes lists all permissions related to the academic year module.
func YearScopes() []string {
	return []string{
		PermYearsViewArchived,
		PermYearsViewStaging,
		PermYearsViewLive,
		PermYearsEditArchived,
		PermYearsEditStaging,
		PermYearsEditLive,
		PermYearsCreate,
		PermYearsSetDefault,
	}
}
