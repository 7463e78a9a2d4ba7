package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

func newMemoryStore(t *testing.T, capacity int) *MemorySectionStore {
	t.Helper()
	store := NewMemorySectionStore(50 * time.Millisecond)
	require.NoError(t, store.PutSection(models.Section{ID: "sec-1", CourseID: "CS-101", Capacity: capacity}))
	return store
}

func TestMemoryStoreUnknownSection(t *testing.T) {
	store := NewMemorySectionStore(time.Second)
	err := store.WithinSection(context.Background(), "missing", func(tx SectionTx) error { return nil })
	assert.ErrorIs(t, err, ErrSectionNotFound)

	_, err = store.SectionState(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSectionNotFound)
}

func TestMemoryStoreRejectsNonPositiveCapacity(t *testing.T) {
	store := NewMemorySectionStore(time.Second)
	for _, capacity := range []int{0, -3} {
		assert.ErrorIs(t, store.PutSection(models.Section{ID: "sec-0", Capacity: capacity}), ErrInvalidCapacity)
	}
	_, err := store.SectionState(context.Background(), "sec-0")
	assert.ErrorIs(t, err, ErrSectionNotFound)
}

func TestMemoryStoreCommitsStagedWrites(t *testing.T) {
	store := newMemoryStore(t, 2)
	var created models.Enrollment

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
		section := tx.Section()
		section.EnrolledCount = 1
		if err := tx.SaveSection(context.Background(), section); err != nil {
			return err
		}
		created = models.Enrollment{StudentID: "stu-1", Status: models.EnrollmentStatusActive, Override: true}
		if err := tx.CreateEnrollment(context.Background(), &created); err != nil {
			return err
		}
		open, err := tx.FindOpenEnrollment(context.Background(), "stu-1")
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, created.ID, open.ID)

		if err := tx.InsertWaitlistEntry(context.Background(), models.WaitlistEntry{StudentID: "stu-2", Position: 1, JoinedAt: time.Now()}); err != nil {
			return err
		}
		return tx.AppendAuditEvent(context.Background(), &models.AuditEvent{EventType: models.AuditEventRegister})
	})
	require.NoError(t, err)

	state, err := store.SectionState(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.EnrolledCount)
	assert.Equal(t, 1, state.WaitlistCount)
	assert.Equal(t, 1, state.OverrideCount)

	found, err := store.FindEnrollment(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sec-1", found.SectionID)

	trail, total, err := store.ListAuditEvents(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.NotEmpty(t, trail[0].ID)
}

func TestMemoryStoreDiscardsWritesOnError(t *testing.T) {
	store := newMemoryStore(t, 2)
	boom := errors.New("boom")

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
		section := tx.Section()
		section.EnrolledCount = 2
		_ = tx.SaveSection(context.Background(), section)
		_ = tx.CreateEnrollment(context.Background(), &models.Enrollment{StudentID: "stu-1", Status: models.EnrollmentStatusActive})
		_ = tx.InsertWaitlistEntry(context.Background(), models.WaitlistEntry{StudentID: "stu-2", Position: 1})
		_ = tx.AppendAuditEvent(context.Background(), &models.AuditEvent{EventType: models.AuditEventRegister})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	state, err := store.SectionState(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Zero(t, state.EnrolledCount)
	assert.Zero(t, state.WaitlistCount)

	_, total, err := store.ListAuditEvents(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMemoryStoreLockTimeout(t *testing.T) {
	store := newMemoryStore(t, 1)
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error { return nil })
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.True(t, IsRetryable(err))

	close(release)
	require.NoError(t, <-done)
	require.NoError(t, store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error { return nil }))
}

func TestMemoryStoreCancelledWhileWaiting(t *testing.T) {
	store := NewMemorySectionStore(time.Second)
	require.NoError(t, store.PutSection(models.Section{ID: "sec-1", Capacity: 1}))
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.WithinSection(ctx, "sec-1", func(tx SectionTx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStoreWaitlistMutations(t *testing.T) {
	store := newMemoryStore(t, 1)
	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
		for i, id := range []string{"a", "b", "c"} {
			require.NoError(t, tx.InsertWaitlistEntry(context.Background(), models.WaitlistEntry{StudentID: id, Position: i + 1}))
		}
		assert.ErrorIs(t, tx.InsertWaitlistEntry(context.Background(), models.WaitlistEntry{StudentID: "a", Position: 4}), ErrTxConflict)
		assert.ErrorIs(t, tx.InsertWaitlistEntry(context.Background(), models.WaitlistEntry{StudentID: "d", Position: 2}), ErrTxConflict)

		require.NoError(t, tx.DeleteWaitlistEntry(context.Background(), "b"))
		require.NoError(t, tx.ShiftWaitlistAfter(context.Background(), 2))
		assert.ErrorIs(t, tx.DeleteWaitlistEntry(context.Background(), "b"), sql.ErrNoRows)

		entries, err := tx.Waitlist(context.Background())
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "a", entries[0].StudentID)
		assert.Equal(t, 1, entries[0].Position)
		assert.Equal(t, "c", entries[1].StudentID)
		assert.Equal(t, 2, entries[1].Position)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryStoreUpdateAndOverrides(t *testing.T) {
	store := newMemoryStore(t, 1)
	enrollment := models.Enrollment{StudentID: "stu-1", Status: models.EnrollmentStatusWaitlisted}
	require.NoError(t, store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
		return tx.CreateEnrollment(context.Background(), &enrollment)
	}))

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
		enrollment.Status = models.EnrollmentStatusActive
		enrollment.Override = true
		if err := tx.UpdateEnrollment(context.Background(), &enrollment); err != nil {
			return err
		}
		count, err := tx.CountSeatedOverrides(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		missing := models.Enrollment{ID: "ghost"}
		assert.ErrorIs(t, tx.UpdateEnrollment(context.Background(), &missing), sql.ErrNoRows)
		return tx.AppendOverrideRecord(context.Background(), &models.OverrideRecord{StudentID: "stu-1", SectionID: "sec-1", Outcome: models.OverrideOutcomeApplied})
	})
	require.NoError(t, err)

	records, total, err := store.ListOverrideRecords(context.Background(), models.AuditFilter{StudentID: "stu-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.NotEmpty(t, records[0].ID)

	_, err = store.FindEnrollment(context.Background(), "ghost")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMemoryStoreAuditPaging(t *testing.T) {
	store := newMemoryStore(t, 1)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendAuditEvent(context.Background(), &models.AuditEvent{EventType: models.AuditEventExport}))
	}
	events, total, err := store.ListAuditEvents(context.Background(), models.AuditFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, events, 2)

	events, _, err = store.ListAuditEvents(context.Background(), models.AuditFilter{Page: 4, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, events)
}
