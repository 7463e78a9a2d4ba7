package dto

import "github.com/noah-isme/campus-registrar-api/internal/models"

// AuditQuery captures audit list and export query parameters.
type AuditQuery struct {
	SectionID string `form:"section_id"`
	StudentID string `form:"student_id"`
	EventType string `form:"event_type"`
	Format    string `form:"format"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

// Filter converts the query into a repository filter.
func (q AuditQuery) Filter() models.AuditFilter {
	return models.AuditFilter{
		SectionID: q.SectionID,
		StudentID: q.StudentID,
		EventType: models.AuditEventType(q.EventType),
		Page:      q.Page,
		PageSize:  q.PageSize,
	}.Normalize()
}
