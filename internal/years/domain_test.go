package years

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campusworks/campusworks/internal/shared"
)

func TestLifecycleStateExclusive(t *testing.T) {
	cases := []struct {
		name string
		year AcademicYear
		want State
	}{
		{"draft is staging", AcademicYear{Status: StatusDraft}, StateStaging},
		{"published is live", AcademicYear{Status: StatusPublished}, StateLive},
		{"published with flag is staging", AcademicYear{Status: StatusPublished, Staging: true}, StateStaging},
		{"archived wins over staging flag", AcademicYear{Status: StatusArchived, Staging: true}, StateArchived},
		{"archived draft is archived", AcademicYear{Status: StatusArchived}, StateArchived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.year.LifecycleState())
		})
	}
}

func TestStatePermissionMapping(t *testing.T) {
	require.Equal(t, shared.PermYearsViewArchived, ViewPermission(StateArchived))
	require.Equal(t, shared.PermYearsViewStaging, ViewPermission(StateStaging))
	require.Equal(t, shared.PermYearsViewLive, ViewPermission(StateLive))
	require.Equal(t, shared.PermYearsEditArchived, EditPermission(StateArchived))
	require.Equal(t, shared.PermYearsEditStaging, EditPermission(StateStaging))
	require.Equal(t, shared.PermYearsEditLive, EditPermission(StateLive))
}
