package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-registrar-api/internal/dto"
	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/service"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
	"github.com/noah-isme/campus-registrar-api/pkg/response"
)

type auditReader interface {
	ListEvents(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, *models.Pagination, error)
	ListOverrides(ctx context.Context, filter models.AuditFilter) ([]models.OverrideRecord, *models.Pagination, error)
	Export(ctx context.Context, filter models.AuditFilter, format string, actorID string) (*service.AuditExport, error)
}

// AuditHandler serves compliance queries over the audit log.
type AuditHandler struct {
	audit auditReader
}

// NewAuditHandler constructs AuditHandler.
func NewAuditHandler(audit auditReader) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// Events godoc
// @Summary List audit events
// @Tags Audit
// @Produce json
// @Param section_id query string false "Filter by section"
// @Param student_id query string false "Filter by student"
// @Param event_type query string false "Filter by event type"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit/events [get]
func (h *AuditHandler) Events(c *gin.Context) {
	query, ok := bindAuditQuery(c)
	if !ok {
		return
	}
	events, pagination, err := h.audit.ListEvents(c.Request.Context(), query.Filter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// Overrides godoc
// @Summary List override records
// @Tags Audit
// @Produce json
// @Param section_id query string false "Filter by section"
// @Param student_id query string false "Filter by student"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /audit/overrides [get]
func (h *AuditHandler) Overrides(c *gin.Context) {
	query, ok := bindAuditQuery(c)
	if !ok {
		return
	}
	records, pagination, err := h.audit.ListOverrides(c.Request.Context(), query.Filter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Export godoc
// @Summary Export audit events
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Param section_id query string false "Filter by section"
// @Param student_id query string false "Filter by student"
// @Param event_type query string false "Filter by event type"
// @Success 200 {file} file
// @Router /audit/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	query, ok := bindAuditQuery(c)
	if !ok {
		return
	}
	result, err := h.audit.Export(c.Request.Context(), query.Filter(), query.Format, actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}

func bindAuditQuery(c *gin.Context) (dto.AuditQuery, bool) {
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return query, false
	}
	return query, true
}
