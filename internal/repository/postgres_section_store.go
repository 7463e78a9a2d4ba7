package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

// Postgres error codes that make a section transaction worth retrying.
const (
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

const enrollmentColumns = `id, student_id, section_id, status, override, created_at, ended_at, grade`

// PostgresSectionStore implements SectionStore with one database transaction
// per critical section, serialised by a row lock on the sections table.
type PostgresSectionStore struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

// NewPostgresSectionStore constructs the store.
func NewPostgresSectionStore(db *sqlx.DB, lockTimeout time.Duration) *PostgresSectionStore {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	return &PostgresSectionStore{db: db, lockTimeout: lockTimeout}
}

// WithinSection implements SectionStore.
func (s *PostgresSectionStore) WithinSection(ctx context.Context, sectionID string, fn func(tx SectionTx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin section transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// SET does not accept bind parameters.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	var section models.Section
	const lockQuery = `SELECT id, course_id, capacity, enrolled_count, status, updated_at FROM sections WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &section, lockQuery, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrSectionNotFound
			return err
		}
		err = classifyPostgresError("lock section", err)
		return err
	}

	if err = fn(&postgresSectionTx{tx: tx, section: section}); err != nil {
		err = classifyPostgresError("section transaction", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		err = classifyPostgresError("commit section transaction", err)
		return err
	}
	return nil
}

// FindEnrollment implements SectionStore.
func (s *PostgresSectionStore) FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := s.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// SectionState implements SectionStore.
func (s *PostgresSectionStore) SectionState(ctx context.Context, sectionID string) (*models.SectionState, error) {
	const query = `SELECT s.id AS section_id, s.status, s.capacity, s.enrolled_count,
        (SELECT COUNT(*) FROM waitlist_entries w WHERE w.section_id = s.id) AS waitlist_count,
        (SELECT COUNT(*) FROM enrollments e WHERE e.section_id = s.id AND e.status IN ('ACTIVE', 'COMPLETED') AND e.override) AS override_count
        FROM sections s WHERE s.id = $1`
	var state models.SectionState
	if err := s.db.GetContext(ctx, &state, query, sectionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSectionNotFound
		}
		return nil, fmt.Errorf("get section state: %w", err)
	}
	return &state, nil
}

// classifyPostgresError maps lock and serialisation failures onto the store
// sentinels and leaves every other error untouched.
func classifyPostgresError(op string, err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch string(pqErr.Code) {
	case pqLockNotAvailable:
		return fmt.Errorf("%s: %w: %v", op, ErrLockTimeout, err)
	case pqSerializationFailure, pqDeadlockDetected, pqUniqueViolation:
		return fmt.Errorf("%s: %w: %v", op, ErrTxConflict, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

type postgresSectionTx struct {
	tx      *sqlx.Tx
	section models.Section
}

func (t *postgresSectionTx) Section() models.Section {
	return t.section
}

func (t *postgresSectionTx) SaveSection(ctx context.Context, section models.Section) error {
	if section.ID != t.section.ID {
		return fmt.Errorf("save section %s: not locked by this transaction", section.ID)
	}
	section.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sections SET enrolled_count = $2, status = $3, updated_at = $4 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, section.ID, section.EnrolledCount, section.Status, section.UpdatedAt); err != nil {
		return fmt.Errorf("update section counters: %w", err)
	}
	t.section = section
	return nil
}

func (t *postgresSectionTx) FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 AND section_id = $2 FOR UPDATE`
	var enrollment models.Enrollment
	if err := t.tx.GetContext(ctx, &enrollment, query, id, t.section.ID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

func (t *postgresSectionTx) FindOpenEnrollment(ctx context.Context, studentID string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
        WHERE section_id = $1 AND student_id = $2 AND status IN ('ACTIVE', 'WAITLISTED') FOR UPDATE`
	var enrollment models.Enrollment
	if err := t.tx.GetContext(ctx, &enrollment, query, t.section.ID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find open enrollment: %w", err)
	}
	return &enrollment, nil
}

func (t *postgresSectionTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	enrollment.SectionID = t.section.ID
	const query = `INSERT INTO enrollments (id, student_id, section_id, status, override, created_at, ended_at, grade)
        VALUES (:id, :student_id, :section_id, :status, :override, :created_at, :ended_at, :grade)`
	if _, err := t.tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

func (t *postgresSectionTx) UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	const query = `UPDATE enrollments SET status = :status, override = :override, ended_at = :ended_at, grade = :grade
        WHERE id = :id AND section_id = :section_id`
	res, err := t.tx.NamedExecContext(ctx, query, enrollment)
	if err != nil {
		return fmt.Errorf("update enrollment: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update enrollment %s: %w", enrollment.ID, sql.ErrNoRows)
	}
	return nil
}

func (t *postgresSectionTx) CountSeatedOverrides(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status IN ('ACTIVE', 'COMPLETED') AND override`
	var count int
	if err := t.tx.GetContext(ctx, &count, query, t.section.ID); err != nil {
		return 0, fmt.Errorf("count overrides: %w", err)
	}
	return count, nil
}

func (t *postgresSectionTx) Waitlist(ctx context.Context) ([]models.WaitlistEntry, error) {
	const query = `SELECT section_id, student_id, position, joined_at FROM waitlist_entries WHERE section_id = $1 ORDER BY position ASC`
	var entries []models.WaitlistEntry
	if err := t.tx.SelectContext(ctx, &entries, query, t.section.ID); err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}

func (t *postgresSectionTx) InsertWaitlistEntry(ctx context.Context, entry models.WaitlistEntry) error {
	entry.SectionID = t.section.ID
	const query = `INSERT INTO waitlist_entries (section_id, student_id, position, joined_at)
        VALUES (:section_id, :student_id, :position, :joined_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (t *postgresSectionTx) DeleteWaitlistEntry(ctx context.Context, studentID string) error {
	const query = `DELETE FROM waitlist_entries WHERE section_id = $1 AND student_id = $2`
	res, err := t.tx.ExecContext(ctx, query, t.section.ID, studentID)
	if err != nil {
		return fmt.Errorf("delete waitlist entry: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ShiftWaitlistAfter relies on the (section_id, position) unique constraint
// being DEFERRABLE INITIALLY DEFERRED; a row-by-row check would trip on the
// intermediate duplicates of the bulk update.
func (t *postgresSectionTx) ShiftWaitlistAfter(ctx context.Context, position int) error {
	const query = `UPDATE waitlist_entries SET position = position - 1 WHERE section_id = $1 AND position > $2`
	if _, err := t.tx.ExecContext(ctx, query, t.section.ID, position); err != nil {
		return fmt.Errorf("renumber waitlist: %w", err)
	}
	return nil
}

func (t *postgresSectionTx) AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	return insertAuditEvent(ctx, t.tx, event)
}

func (t *postgresSectionTx) AppendOverrideRecord(ctx context.Context, record *models.OverrideRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO override_records (id, actor_id, student_id, section_id, enrollment_id, reason, outcome, created_at)
        VALUES (:id, :actor_id, :student_id, :section_id, :enrollment_id, :reason, :outcome, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create override record: %w", err)
	}
	return nil
}
