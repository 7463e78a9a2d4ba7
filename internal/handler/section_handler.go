package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/pkg/response"
)

type sectionReader interface {
	GetSectionState(ctx context.Context, sectionID string) (*models.SectionState, error)
	ListWaitlist(ctx context.Context, sectionID string) ([]models.WaitlistEntry, error)
	CheckInvariants(ctx context.Context, sectionID string) (*models.InvariantReport, error)
}

// SectionHandler exposes read-only section views.
type SectionHandler struct {
	sections sectionReader
}

// NewSectionHandler constructs SectionHandler.
func NewSectionHandler(sections sectionReader) *SectionHandler {
	return &SectionHandler{sections: sections}
}

// State godoc
// @Summary Section seat state
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/state [get]
func (h *SectionHandler) State(c *gin.Context) {
	state, err := h.sections.GetSectionState(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, state, nil)
}

// Waitlist godoc
// @Summary Section waitlist in position order
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/waitlist [get]
func (h *SectionHandler) Waitlist(c *gin.Context) {
	entries, err := h.sections.ListWaitlist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Invariants godoc
// @Summary Check section consistency
// @Description Reports seat counter and waitlist violations without repairing them.
// @Tags Sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/invariants [get]
func (h *SectionHandler) Invariants(c *gin.Context) {
	report, err := h.sections.CheckInvariants(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
