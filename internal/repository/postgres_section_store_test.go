package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

const lockSectionQuery = "SELECT id, course_id, capacity, enrolled_count, status, updated_at FROM sections WHERE id = $1 FOR UPDATE"

func newSectionStoreMock(t *testing.T) (*PostgresSectionStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewPostgresSectionStore(sqlx.NewDb(db, "sqlmock"), 2*time.Second), mock, func() { db.Close() }
}

func sectionRows(enrolled int, status models.SectionStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "course_id", "capacity", "enrolled_count", "status", "updated_at"}).
		AddRow("sec-1", "CS-101", 2, enrolled, string(status), time.Now())
}

func expectLockedSection(mock sqlmock.Sqlmock, enrolled int, status models.SectionStatus) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = '2000ms'")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionQuery)).WithArgs("sec-1").WillReturnRows(sectionRows(enrolled, status))
}

func TestPostgresWithinSectionCommitsAllWrites(t *testing.T) {
	store, mock, cleanup := newSectionStoreMock(t)
	defer cleanup()

	expectLockedSection(mock, 1, models.SectionStatusOpen)
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments\n        WHERE section_id = $1 AND student_id = $2 AND status IN ('ACTIVE', 'WAITLISTED') FOR UPDATE")).
		WithArgs("sec-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET enrolled_count = $2, status = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("sec-1", 2, "FULL", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_events")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
		existing, err := tx.FindOpenEnrollment(context.Background(), "stu-1")
		require.NoError(t, err)
		require.Nil(t, existing)

		section := tx.Section()
		assert.Equal(t, "CS-101", section.CourseID)
		section.EnrolledCount = 2
		section.Status = models.SectionStatusFull
		if err := tx.SaveSection(context.Background(), section); err != nil {
			return err
		}
		assert.Equal(t, 2, tx.Section().EnrolledCount)

		enrollment := &models.Enrollment{StudentID: "stu-1", Status: models.EnrollmentStatusActive}
		if err := tx.CreateEnrollment(context.Background(), enrollment); err != nil {
			return err
		}
		assert.NotEmpty(t, enrollment.ID)
		assert.Equal(t, "sec-1", enrollment.SectionID)
		return tx.AppendAuditEvent(context.Background(), &models.AuditEvent{EventType: models.AuditEventRegister})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithinSectionRollsBackOnError(t *testing.T) {
	store, mock, cleanup := newSectionStoreMock(t)
	defer cleanup()

	expectLockedSection(mock, 0, models.SectionStatusOpen)
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error { return boom })
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithinSectionLockTimeout(t *testing.T) {
	store, mock, cleanup := newSectionStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionQuery)).WithArgs("sec-1").
		WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
	mock.ExpectRollback()

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.True(t, IsRetryable(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWithinSectionNotFound(t *testing.T) {
	store, mock, cleanup := newSectionStoreMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(lockSectionQuery)).WithArgs("sec-1").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error { return nil })
	assert.ErrorIs(t, err, ErrSectionNotFound)
	assert.False(t, IsRetryable(err))
}

func TestPostgresWithinSectionSerializationFailureOnCommit(t *testing.T) {
	store, mock, cleanup := newSectionStoreMock(t)
	defer cleanup()

	expectLockedSection(mock, 0, models.SectionStatusOpen)
	mock.ExpectCommit().WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error { return nil })
	assert.ErrorIs(t, err, ErrTxConflict)
}

func TestPostgresUniqueViolationIsConflict(t *testing.T) {
	store, mock, cleanup := newSectionStoreMock(t)
	defer cleanup()

	expectLockedSection(mock, 0, models.SectionStatusOpen)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollments")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
		return tx.CreateEnrollment(context.Background(), &models.Enrollment{StudentID: "stu-1", Status: models.EnrollmentStatusActive})
	})
	assert.ErrorIs(t, err, ErrTxConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWaitlistOperations(t *testing.T) {
	store, mock, cleanup := newSectionStoreMock(t)
	defer cleanup()

	joined := time.Now().UTC()
	expectLockedSection(mock, 2, models.SectionStatusFull)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT section_id, student_id, position, joined_at FROM waitlist_entries WHERE section_id = $1 ORDER BY position ASC")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"section_id", "student_id", "position", "joined_at"}).
			AddRow("sec-1", "stu-a", 1, joined).
			AddRow("sec-1", "stu-b", 2, joined))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM waitlist_entries WHERE section_id = $1 AND student_id = $2")).
		WithArgs("sec-1", "stu-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE waitlist_entries SET position = position - 1 WHERE section_id = $1 AND position > $2")).
		WithArgs("sec-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM waitlist_entries")).
		WithArgs("sec-1", "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO waitlist_entries")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
		entries, err := tx.Waitlist(context.Background())
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "stu-a", entries[0].StudentID)

		require.NoError(t, tx.DeleteWaitlistEntry(context.Background(), "stu-a"))
		require.NoError(t, tx.ShiftWaitlistAfter(context.Background(), 1))
		assert.ErrorIs(t, tx.DeleteWaitlistEntry(context.Background(), "ghost"), sql.ErrNoRows)
		return tx.InsertWaitlistEntry(context.Background(), models.WaitlistEntry{StudentID: "stu-c", Position: 2, JoinedAt: joined})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresOverrideWrites(t *testing.T) {
	store, mock, cleanup := newSectionStoreMock(t)
	defer cleanup()

	expectLockedSection(mock, 2, models.SectionStatusFull)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status IN ('ACTIVE', 'COMPLETED') AND override")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO override_records")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.WithinSection(context.Background(), "sec-1", func(tx SectionTx) error {
		count, err := tx.CountSeatedOverrides(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		if err := tx.UpdateEnrollment(context.Background(), &models.Enrollment{ID: "enr-1", SectionID: "sec-1", Status: models.EnrollmentStatusActive, Override: true}); err != nil {
			return err
		}
		record := &models.OverrideRecord{ActorID: "reg-1", StudentID: "stu-1", SectionID: "sec-1", EnrollmentID: "enr-1", Reason: "capstone", Outcome: models.OverrideOutcomeApplied}
		if err := tx.AppendOverrideRecord(context.Background(), record); err != nil {
			return err
		}
		assert.NotEmpty(t, record.ID)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSectionStateAndFindEnrollment(t *testing.T) {
	store, mock, cleanup := newSectionStoreMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT s.id AS section_id").
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows([]string{"section_id", "status", "capacity", "enrolled_count", "waitlist_count", "override_count"}).
			AddRow("sec-1", "FULL", 30, 31, 4, 1))
	state, err := store.SectionState(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 31, state.EnrolledCount)
	assert.Equal(t, 4, state.WaitlistCount)
	assert.Equal(t, 1, state.OverrideCount)

	mock.ExpectQuery("SELECT s.id AS section_id").WithArgs("nope").WillReturnError(sql.ErrNoRows)
	_, err = store.SectionState(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSectionNotFound)

	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE id = $1")).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "section_id", "status", "override", "created_at", "ended_at", "grade"}).
			AddRow("enr-1", "stu-1", "sec-1", "ACTIVE", false, time.Now(), nil, nil))
	enrollment, err := store.FindEnrollment(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	assert.Nil(t, enrollment.EndedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}
