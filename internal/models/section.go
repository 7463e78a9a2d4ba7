package models

import "time"

// SectionStatus describes whether a section accepts registrations.
type SectionStatus string

// Section statuses. CLOSED is owned by catalog management; the ledger only
// toggles between OPEN and FULL.
const (
	SectionStatusOpen   SectionStatus = "OPEN"
	SectionStatusFull   SectionStatus = "FULL"
	SectionStatusClosed SectionStatus = "CLOSED"
)

// Section is one scheduled offering of a course with a fixed seat capacity.
type Section struct {
	ID            string        `db:"id" json:"id"`
	CourseID      string        `db:"course_id" json:"course_id"`
	Capacity      int           `db:"capacity" json:"capacity"`
	EnrolledCount int           `db:"enrolled_count" json:"enrolled_count"`
	Status        SectionStatus `db:"status" json:"status"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// HasFreeSeat reports whether a seat can be taken without an override.
func (s Section) HasFreeSeat() bool {
	return s.EnrolledCount < s.Capacity
}

// SectionState is the public snapshot of a section's seat usage.
type SectionState struct {
	SectionID     string        `db:"section_id" json:"section_id"`
	Status        SectionStatus `db:"status" json:"status"`
	Capacity      int           `db:"capacity" json:"capacity"`
	EnrolledCount int           `db:"enrolled_count" json:"enrolled_count"`
	WaitlistCount int           `db:"waitlist_count" json:"waitlist_count"`
	OverrideCount int           `db:"override_count" json:"override_count"`
}

// ReserveOutcome is the tagged result of a seat reservation attempt.
type ReserveOutcome string

const (
	ReserveAccepted ReserveOutcome = "ACCEPTED"
	ReserveFull     ReserveOutcome = "FULL"
)

// InvariantReport lists every violated section invariant; an empty Violations
// slice means the section is consistent.
type InvariantReport struct {
	SectionID          string   `json:"section_id"`
	Capacity           int      `json:"capacity"`
	EnrolledCount      int      `json:"enrolled_count"`
	SeatedOverrides    int      `json:"seated_overrides"`
	WaitlistCount      int      `json:"waitlist_count"`
	Violations         []string `json:"violations"`
	CheckedAtUnixMilli int64    `json:"checked_at_unix_milli"`
}

// Consistent is true when no invariant is violated.
func (r InvariantReport) Consistent() bool {
	return len(r.Violations) == 0
}
