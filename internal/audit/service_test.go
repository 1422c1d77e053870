package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAuditRepo struct {
	rows    []TimelineRow
	gotOff  int
	gotLim  int
	filters TimelineFilters
}

func (f *fakeAuditRepo) Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	f.filters = filters
	f.gotOff = offset
	f.gotLim = limit
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[offset:end], nil
}

func seedRows(n int) []TimelineRow {
	rows := make([]TimelineRow, n)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range rows {
		rows[i] = TimelineRow{
			ActorID: 1,
			Module:  "CONSOL",
			Action:  "run.complete",
			Entity:  "consolidation_run",
			At:      base.Add(time.Duration(i) * time.Minute),
		}
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	repo := &fakeAuditRepo{rows: seedRows(25)}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, res.Rows, 20)
	require.True(t, res.Paging.HasNext)
	require.Equal(t, 2, res.Paging.NextPage)
	require.Zero(t, res.Paging.PrevPage)
	require.Equal(t, 21, repo.gotLim)

	res, err = svc.Timeline(context.Background(), TimelineFilters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)
	require.False(t, res.Paging.HasNext)
	require.Equal(t, 1, res.Paging.PrevPage)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &fakeAuditRepo{rows: seedRows(60)}
	svc := NewService(repo)

	res, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Len(t, res.Rows, 50)
	require.Equal(t, 50, res.Paging.PageSize)
}
