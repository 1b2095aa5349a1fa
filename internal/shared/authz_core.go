package shared

// Core platform permissions.
const (
	PermUsersView   = "users.view"
	PermUsersEdit   = "users.edit"
	PermUsersInvite = "users.invite"
	PermUsersDelete = "users.delete"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermPermissionsView   = "permissions.view"
	PermPermissionsManage = "permissions.manage"

	PermOrganisationsView = "organisations.view"
	PermOrganisationsEdit = "organisations.edit"

	PermAuditView = "audit.view"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermUsersInvite,
		PermUsersDelete,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermPermissionsManage,
		PermOrganisationsView,
		PermOrganisationsEdit,
		PermAuditView,
	}
}
