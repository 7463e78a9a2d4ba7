package dto

// RegisterRequest asks for a seat in a section on behalf of a student.
type RegisterRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	SectionID string `json:"section_id" validate:"required,max=64"`
}

// ForceEnrollRequest is an administrative override past enrollment rules.
type ForceEnrollRequest struct {
	StudentID string `json:"student_id" validate:"required,max=64"`
	SectionID string `json:"section_id" validate:"required,max=64"`
	Reason    string `json:"reason" validate:"required,max=500"`
}

// CompleteEnrollmentRequest records the final grade of an active enrollment.
type CompleteEnrollmentRequest struct {
	Grade string `json:"grade" validate:"required,max=8"`
}

// MaintenanceRequest toggles the registration maintenance flag.
type MaintenanceRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
