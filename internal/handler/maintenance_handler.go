package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/campus-registrar-api/internal/dto"
	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
	"github.com/noah-isme/campus-registrar-api/pkg/response"
)

type maintenanceSwitch interface {
	MaintenanceMode(ctx context.Context) (bool, error)
	SetMaintenanceMode(ctx context.Context, enabled bool, actor models.Actor) error
}

// MaintenanceHandler reads and toggles the registration maintenance flag.
type MaintenanceHandler struct {
	gateway  maintenanceSwitch
	validate *validator.Validate
}

// NewMaintenanceHandler constructs MaintenanceHandler.
func NewMaintenanceHandler(gateway maintenanceSwitch, validate *validator.Validate) *MaintenanceHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &MaintenanceHandler{gateway: gateway, validate: validate}
}

// Get godoc
// @Summary Registration maintenance flag
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance [get]
func (h *MaintenanceHandler) Get(c *gin.Context) {
	enabled, err := h.gateway.MaintenanceMode(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"enabled": enabled}, nil)
}

// Put godoc
// @Summary Toggle registration maintenance
// @Tags Maintenance
// @Accept json
// @Produce json
// @Param payload body dto.MaintenanceRequest true "Desired state"
// @Success 200 {object} response.Envelope
// @Router /maintenance [put]
func (h *MaintenanceHandler) Put(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.MaintenanceRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "enabled is required"))
		return
	}
	if err := h.gateway.SetMaintenanceMode(c.Request.Context(), *req.Enabled, actor); err != nil {
		response.Error(c, err)
		return
	}
	h.Get(c)
}
