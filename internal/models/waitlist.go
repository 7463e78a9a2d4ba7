package models

import "time"

// WaitlistEntry is a student's place in a section's FIFO waitlist.
// Positions for one section always form the contiguous sequence 1..N.
type WaitlistEntry struct {
	SectionID string    `db:"section_id" json:"section_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Position  int       `db:"position" json:"position"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}
