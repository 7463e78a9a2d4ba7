package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Detail is a raw JSON document stored in a jsonb column. It is written as
// text so the driver does not encode it as bytea.
type Detail json.RawMessage

// Value implements driver.Valuer.
func (d Detail) Value() (driver.Value, error) {
	if len(d) == 0 {
		return nil, nil
	}
	return string(d), nil
}

// Scan implements sql.Scanner.
func (d *Detail) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = nil
	case []byte:
		*d = append(Detail(nil), v...)
	case string:
		*d = Detail(v)
	default:
		return fmt.Errorf("scan detail: unsupported type %T", src)
	}
	return nil
}

// MarshalJSON embeds the document as-is.
func (d Detail) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON keeps a copy of the raw document.
func (d *Detail) UnmarshalJSON(data []byte) error {
	*d = append(Detail(nil), data...)
	return nil
}

// AuditEventType enumerates compliance-relevant enrollment actions.
type AuditEventType string

const (
	AuditEventRegister      AuditEventType = "REGISTER"
	AuditEventWaitlistJoin  AuditEventType = "WAITLIST_JOIN"
	AuditEventDrop          AuditEventType = "DROP"
	AuditEventWaitlistLeave AuditEventType = "WAITLIST_LEAVE"
	AuditEventPromote       AuditEventType = "PROMOTE"
	AuditEventComplete      AuditEventType = "COMPLETE"
	AuditEventOverride      AuditEventType = "OVERRIDE"
	AuditEventExport        AuditEventType = "AUDIT_EXPORT"
)

// AuditEvent is an append-only audit trail entry. Entries are never updated
// or deleted once written.
type AuditEvent struct {
	ID           string          `db:"id" json:"id"`
	EventType    AuditEventType  `db:"event_type" json:"event_type"`
	StudentID    *string         `db:"student_id" json:"student_id,omitempty"`
	SectionID    *string         `db:"section_id" json:"section_id,omitempty"`
	EnrollmentID *string         `db:"enrollment_id" json:"enrollment_id,omitempty"`
	ActorID      *string         `db:"actor_id" json:"actor_id,omitempty"`
	Detail       Detail          `db:"detail" json:"detail,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// OverrideOutcome records what a force-enroll call actually did.
type OverrideOutcome string

const (
	OverrideOutcomeApplied           OverrideOutcome = "APPLIED"
	OverrideOutcomeAlreadyOverridden OverrideOutcome = "ALREADY_OVERRIDDEN"
	OverrideOutcomeAlreadyActive     OverrideOutcome = "ALREADY_ACTIVE"
)

// OverrideRecord is the immutable evidence of an administrative bypass.
type OverrideRecord struct {
	ID           string          `db:"id" json:"id"`
	ActorID      string          `db:"actor_id" json:"actor_id"`
	StudentID    string          `db:"student_id" json:"student_id"`
	SectionID    string          `db:"section_id" json:"section_id"`
	EnrollmentID string          `db:"enrollment_id" json:"enrollment_id"`
	Reason       string          `db:"reason" json:"reason"`
	Outcome      OverrideOutcome `db:"outcome" json:"outcome"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// AuditFilter selects audit entries for compliance review.
type AuditFilter struct {
	SectionID string
	StudentID string
	EventType AuditEventType
	Page      int
	PageSize  int
}

// Normalize clamps paging to sane bounds.
func (f AuditFilter) Normalize() AuditFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > 500 {
		f.PageSize = 50
	}
	return f
}

// Offset returns the row offset of the current page.
func (f AuditFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
