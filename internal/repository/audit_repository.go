package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

type namedExecer interface {
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// AuditRepository reads the append-only audit tables. It exposes no update
// or delete statements.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// AppendAuditEvent writes an audit entry outside of a section transaction.
func (r *AuditRepository) AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	return insertAuditEvent(ctx, r.db, event)
}

// ListAuditEvents returns audit entries for a section and/or student, oldest first.
func (r *AuditRepository) ListAuditEvents(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int, error) {
	filter = filter.Normalize()
	var conditions []string
	var args []interface{}
	if filter.SectionID != "" {
		args = append(args, filter.SectionID)
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.EventType != "" {
		args = append(args, filter.EventType)
		conditions = append(conditions, fmt.Sprintf("event_type = $%d", len(args)))
	}
	clause := whereClause(conditions)

	query := fmt.Sprintf(`SELECT id, event_type, student_id, section_id, enrollment_id, actor_id, detail, created_at
        FROM audit_events%s ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d`, clause, filter.PageSize, filter.Offset())
	var events []models.AuditEvent
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM audit_events"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}
	return events, total, nil
}

// ListOverrideRecords returns override records for a section and/or student, oldest first.
func (r *AuditRepository) ListOverrideRecords(ctx context.Context, filter models.AuditFilter) ([]models.OverrideRecord, int, error) {
	filter = filter.Normalize()
	var conditions []string
	var args []interface{}
	if filter.SectionID != "" {
		args = append(args, filter.SectionID)
		conditions = append(conditions, fmt.Sprintf("section_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	clause := whereClause(conditions)

	query := fmt.Sprintf(`SELECT id, actor_id, student_id, section_id, enrollment_id, reason, outcome, created_at
        FROM override_records%s ORDER BY created_at ASC, id ASC LIMIT %d OFFSET %d`, clause, filter.PageSize, filter.Offset())
	var records []models.OverrideRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list override records: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM override_records"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count override records: %w", err)
	}
	return records, total, nil
}

func insertAuditEvent(ctx context.Context, exec namedExecer, event *models.AuditEvent) error {
	stampAuditEvent(event)
	const query = `INSERT INTO audit_events (id, event_type, student_id, section_id, enrollment_id, actor_id, detail, created_at)
        VALUES (:id, :event_type, :student_id, :section_id, :enrollment_id, :actor_id, :detail, :created_at)`
	if _, err := exec.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create audit event: %w", err)
	}
	return nil
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}
