package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-registrar-api/internal/dto"
	"github.com/noah-isme/campus-registrar-api/internal/middleware"
	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
	"github.com/noah-isme/campus-registrar-api/pkg/response"
)

type registrationGateway interface {
	Register(ctx context.Context, req dto.RegisterRequest, actor models.Actor) (*models.RegistrationResult, error)
	Drop(ctx context.Context, enrollmentID string, actor models.Actor) (*models.DropResult, error)
	RemoveFromWaitlist(ctx context.Context, studentID, sectionID string, actor models.Actor) (*models.DropResult, error)
	Complete(ctx context.Context, enrollmentID string, req dto.CompleteEnrollmentRequest, actor models.Actor) (*models.Enrollment, error)
	ForceEnroll(ctx context.Context, req dto.ForceEnrollRequest, actor models.Actor) (*models.RegistrationResult, error)
}

// RegistrationHandler exposes the student-facing registration endpoints.
type RegistrationHandler struct {
	gateway registrationGateway
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(gateway registrationGateway) *RegistrationHandler {
	return &RegistrationHandler{gateway: gateway}
}

// Register godoc
// @Summary Register for a section
// @Description Takes a seat when one is free, otherwise joins the waitlist. A waitlisted result carries meta.notice=SECTION_FULL.
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.RegisterRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.gateway.Register(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Status == models.EnrollmentStatusWaitlisted {
		middleware.SetNotice(c, appErrors.ErrSectionFull.Code)
	}
	response.JSON(c, http.StatusCreated, result, nil, middleware.ExtractMeta(c))
}

// Drop godoc
// @Summary Drop an enrollment
// @Description Withdraws an active or waitlisted enrollment. Freeing a seat promotes the head of the waitlist.
// @Tags Registrations
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *RegistrationHandler) Drop(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := h.gateway.Drop(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Complete godoc
// @Summary Complete an enrollment
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body dto.CompleteEnrollmentRequest true "Final grade"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/complete [post]
func (h *RegistrationHandler) Complete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CompleteEnrollmentRequest
	if !bindJSON(c, &req) {
		return
	}
	enrollment, err := h.gateway.Complete(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// RemoveFromWaitlist godoc
// @Summary Leave a waitlist
// @Tags Registrations
// @Produce json
// @Param id path string true "Section ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/waitlist/{studentId} [delete]
func (h *RegistrationHandler) RemoveFromWaitlist(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := h.gateway.RemoveFromWaitlist(c.Request.Context(), c.Param("studentId"), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ForceEnroll godoc
// @Summary Force-enroll a student
// @Description Registrar override past capacity, closed status, holds and prerequisites. Repeating the call is idempotent.
// @Tags Overrides
// @Accept json
// @Produce json
// @Param payload body dto.ForceEnrollRequest true "Override payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /overrides [post]
func (h *RegistrationHandler) ForceEnroll(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ForceEnrollRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.gateway.ForceEnroll(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
