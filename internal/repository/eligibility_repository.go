package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EligibilityRepository answers hold and prerequisite questions from tables
// owned by the bursar and catalog systems. Results are never cached.
type EligibilityRepository struct {
	db *sqlx.DB
}

// NewEligibilityRepository constructs the repository.
func NewEligibilityRepository(db *sqlx.DB) *EligibilityRepository {
	return &EligibilityRepository{db: db}
}

// ActiveHolds returns the codes of unreleased holds on the student's account.
func (r *EligibilityRepository) ActiveHolds(ctx context.Context, studentID string) ([]string, error) {
	const query = `SELECT code FROM account_holds WHERE student_id = $1 AND released_at IS NULL ORDER BY code ASC`
	var codes []string
	if err := r.db.SelectContext(ctx, &codes, query, studentID); err != nil {
		return nil, fmt.Errorf("list account holds: %w", err)
	}
	return codes, nil
}

// MissingPrerequisites returns prerequisite course ids the student has not
// completed for the section's course.
func (r *EligibilityRepository) MissingPrerequisites(ctx context.Context, studentID, sectionID string) ([]string, error) {
	const query = `SELECT p.prerequisite_course_id
        FROM course_prerequisites p
        JOIN sections s ON s.course_id = p.course_id
        WHERE s.id = $1 AND NOT EXISTS (
            SELECT 1 FROM enrollments e
            JOIN sections done ON done.id = e.section_id
            WHERE e.student_id = $2 AND e.status = 'COMPLETED' AND done.course_id = p.prerequisite_course_id
        )
        ORDER BY p.prerequisite_course_id ASC`
	var missing []string
	if err := r.db.SelectContext(ctx, &missing, query, sectionID, studentID); err != nil {
		return nil, fmt.Errorf("list missing prerequisites: %w", err)
	}
	return missing, nil
}
