package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/repository"
)

func students(entries []models.WaitlistEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.StudentID)
	}
	return out
}

func TestWaitlistJoinLeavePop(t *testing.T) {
	ctx := context.Background()
	queue := NewWaitlistQueue(steppingClock())
	withSection(t, models.Section{ID: "sec-1", Capacity: 1}, func(tx repository.SectionTx) {
		for i, id := range []string{"a", "b", "c", "d"} {
			entry, err := queue.Join(ctx, tx, id)
			require.NoError(t, err)
			assert.Equal(t, i+1, entry.Position)
		}
		_, err := queue.Join(ctx, tx, "b")
		assert.ErrorIs(t, err, repository.ErrTxConflict)

		left, err := queue.Leave(ctx, tx, "b")
		require.NoError(t, err)
		assert.True(t, left)
		left, err = queue.Leave(ctx, tx, "zz")
		require.NoError(t, err)
		assert.False(t, left)

		head, err := queue.PopFront(ctx, tx)
		require.NoError(t, err)
		require.NotNil(t, head)
		assert.Equal(t, "a", head.StudentID)

		entries, err := queue.List(ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "d"}, students(entries))
		assert.Equal(t, 1, entries[0].Position)
		assert.Equal(t, 2, entries[1].Position)
	})
}

func TestWaitlistPopFrontEmpty(t *testing.T) {
	withSection(t, models.Section{ID: "sec-1", Capacity: 1}, func(tx repository.SectionTx) {
		head, err := NewWaitlistQueue(nil).PopFront(context.Background(), tx)
		require.NoError(t, err)
		assert.Nil(t, head)
	})
}

func TestWaitlistJoinedAtIsMonotonic(t *testing.T) {
	ctx := context.Background()
	instants := []time.Time{
		time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 12, 8, 59, 0, 0, time.UTC),
	}
	i := 0
	queue := NewWaitlistQueue(func() time.Time {
		at := instants[i]
		i++
		return at
	})
	withSection(t, models.Section{ID: "sec-1", Capacity: 1}, func(tx repository.SectionTx) {
		first, err := queue.Join(ctx, tx, "a")
		require.NoError(t, err)
		second, err := queue.Join(ctx, tx, "b")
		require.NoError(t, err)
		assert.False(t, second.JoinedAt.Before(first.JoinedAt))
		assert.Equal(t, 2, second.Position)
	})
}
