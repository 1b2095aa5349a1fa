package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	rows    []TimelineRow
	pruned  time.Time
	deleted int64
}

func (m *memoryRepo) TimelineWindow(_ context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	var matched []TimelineRow
	for _, row := range m.rows {
		if filters.Actor != "" && row.Actor != filters.Actor {
			continue
		}
		if filters.Action != "" && row.Action != filters.Action {
			continue
		}
		matched = append(matched, row)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *memoryRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.pruned = cutoff
	return m.deleted, nil
}

func seedRows(n int) []TimelineRow {
	rows := make([]TimelineRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, TimelineRow{
			At:     time.Now().Add(-time.Duration(i) * time.Minute),
			Actor:  "admin@example.edu",
			Action: "UPDATE",
			Entity: "academic_years",
		})
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &memoryRepo{rows: seedRows(45)}
	svc := NewService(repo)
	ctx := context.Background()

	result, err := svc.Timeline(ctx, TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 20)
	require.Equal(t, 1, result.Paging.Page)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)

	result, err = svc.Timeline(ctx, TimelineFilters{Page: 3})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.PrevPage)
}

func TestTimelinePageSizeClamped(t *testing.T) {
	repo := &memoryRepo{rows: seedRows(80)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Rows, 50)
	require.Equal(t, 50, result.Paging.PageSize)
}

func TestTimelineFilters(t *testing.T) {
	repo := &memoryRepo{rows: []TimelineRow{
		{Actor: "a", Action: "CREATE"},
		{Actor: "b", Action: "CREATE"},
		{Actor: "a", Action: "DELETE"},
	}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Actor: "a", Action: "CREATE"})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
}

func TestPruneValidatesRetention(t *testing.T) {
	repo := &memoryRepo{deleted: 7}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.Prune(ctx, 0)
	require.Error(t, err)

	deleted, err := svc.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(7), deleted)
	require.WithinDuration(t, time.Now().Add(-24*time.Hour), repo.pruned, time.Minute)

	empty := NewService(nil)
	_, err = empty.Prune(ctx, time.Hour)
	require.Error(t, err)
}
