package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. DROPPED and COMPLETED are terminal.
const (
	EnrollmentStatusActive     EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
)

// Open reports whether the status still occupies the (student, section) slot.
func (s EnrollmentStatus) Open() bool {
	return s == EnrollmentStatusActive || s == EnrollmentStatusWaitlisted
}

// HoldsSeat reports whether the enrollment counts against the section's
// enrolled counter. Completion keeps the seat consumed.
func (s EnrollmentStatus) HoldsSeat() bool {
	return s == EnrollmentStatusActive || s == EnrollmentStatusCompleted
}

// Enrollment captures the relationship between one student and one section.
// Rows are never deleted so transcript history survives drops.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	SectionID string           `db:"section_id" json:"section_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	Override  bool             `db:"override" json:"override"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	EndedAt   *time.Time       `db:"ended_at" json:"ended_at,omitempty"`
	Grade     *string          `db:"grade" json:"grade,omitempty"`
}

// RegistrationResult is returned by register and force-enroll calls.
// Outcome is set by force-enroll calls only. ALREADY_ACTIVE comes back with
// override=false because the existing regular seat is kept.
type RegistrationResult struct {
	Enrollment Enrollment       `json:"enrollment"`
	Status     EnrollmentStatus `json:"status"`
	Position   int              `json:"position,omitempty"`
	Override   bool             `json:"override"`
	Outcome    OverrideOutcome  `json:"outcome,omitempty"`
}

// DropResult is returned by drop and waitlist removal calls.
type DropResult struct {
	Enrollment Enrollment       `json:"enrollment"`
	Status     EnrollmentStatus `json:"status"`
	Promoted   *string          `json:"promoted"`
}
