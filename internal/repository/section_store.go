package repository

import (
	"context"
	"errors"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

// Sentinel errors shared by every SectionStore implementation.
var (
	ErrSectionNotFound = errors.New("section not found")
	ErrLockTimeout     = errors.New("section lock not acquired in time")
	ErrTxConflict      = errors.New("section transaction conflict")
	ErrInvalidCapacity = errors.New("section capacity must be positive")
)

// IsRetryable reports whether a store error may succeed on another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrTxConflict)
}

// SectionTx is a unit of work holding the exclusive lock of one section.
// Every read and write goes through the same transaction, so seat counts,
// enrollment rows, waitlist positions and audit entries commit together or
// not at all. Missing enrollments are reported as sql.ErrNoRows.
type SectionTx interface {
	Section() models.Section
	SaveSection(ctx context.Context, section models.Section) error

	FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error)
	FindOpenEnrollment(ctx context.Context, studentID string) (*models.Enrollment, error)
	CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error
	CountSeatedOverrides(ctx context.Context) (int, error)

	Waitlist(ctx context.Context) ([]models.WaitlistEntry, error)
	InsertWaitlistEntry(ctx context.Context, entry models.WaitlistEntry) error
	DeleteWaitlistEntry(ctx context.Context, studentID string) error
	ShiftWaitlistAfter(ctx context.Context, position int) error

	AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error
	AppendOverrideRecord(ctx context.Context, record *models.OverrideRecord) error
}

// SectionStore serialises all mutations touching one section. Different
// sections never contend with each other.
type SectionStore interface {
	// WithinSection runs fn while holding the section lock. It returns
	// ErrSectionNotFound, ErrLockTimeout, ErrTxConflict or fn's error; on any
	// error nothing fn wrote is persisted.
	WithinSection(ctx context.Context, sectionID string, fn func(tx SectionTx) error) error
	FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error)
	SectionState(ctx context.Context, sectionID string) (*models.SectionState, error)
}
