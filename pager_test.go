package cursorstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromPager(t *testing.T) {
	ctx := context.Background()
	rows := []string{"a", "b", "c", "d", "e"}

	type call struct {
		cursor int
		asOf   time.Time
		limit  int
	}
	var calls []call
	pager := PagerFunc[string, int](func(ctx context.Context, cursor int, asOf time.Time, limit int) ([]string, int, error) {
		calls = append(calls, call{cursor: cursor, asOf: asOf, limit: limit})
		if cursor >= len(rows) {
			return nil, cursor, nil
		}
		end := min(cursor+limit, len(rows))
		return rows[cursor:end], end, nil
	})

	start := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	items, err := Collect(ctx, FromPager[string, int](pager, 2), 0, WithClock(func() time.Time { return start }))
	require.NoError(t, err)
	require.Equal(t, rows, items)

	require.Len(t, calls, 4)
	for i, c := range calls {
		require.Equal(t, []int{0, 2, 4, 5}[i], c.cursor)
		require.Equal(t, start, c.asOf)
		require.Equal(t, 2, c.limit)
	}
}

func TestFromPager_Error(t *testing.T) {
	wantErr := &testError{msg: "timeout"}
	pager := PagerFunc[string, int](func(ctx context.Context, cursor int, asOf time.Time, limit int) ([]string, int, error) {
		return nil, 0, wantErr
	})

	items, err := Collect(context.Background(), FromPager[string, int](pager, 10), 0)
	require.Empty(t, items)
	require.Same(t, wantErr, err)
}
