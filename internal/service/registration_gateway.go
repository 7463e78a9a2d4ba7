package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/dto"
	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

type maintenanceFlag interface {
	MaintenanceMode(ctx context.Context) (bool, error)
}

type maintenanceWriter interface {
	Upsert(ctx context.Context, cfg *models.Configuration) error
}

type holdChecker interface {
	ActiveHolds(ctx context.Context, studentID string) ([]string, error)
}

type prerequisiteChecker interface {
	MissingPrerequisites(ctx context.Context, studentID, sectionID string) ([]string, error)
}

type stateMachine interface {
	Register(ctx context.Context, studentID, sectionID, actorID string) (*models.RegistrationResult, error)
	Drop(ctx context.Context, enrollmentID, actorID string) (*models.DropResult, error)
	Complete(ctx context.Context, enrollmentID, grade, actorID string) (*models.Enrollment, error)
	RemoveFromWaitlist(ctx context.Context, studentID, sectionID, actorID string) (*models.DropResult, error)
	FindEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error)
}

type overrideAuthority interface {
	ForceEnroll(ctx context.Context, studentID, sectionID string, actor models.Actor, reason string) (*models.RegistrationResult, error)
}

// GatewayConfig tunes the registration gateway.
type GatewayConfig struct {
	// MaintenanceMode forces maintenance regardless of the stored flag.
	MaintenanceMode bool
}

// RegistrationGateway is the entry point for registration requests. It checks
// the maintenance flag, account holds and prerequisites on every call, right
// before handing over to the state machine.
type RegistrationGateway struct {
	enrollments   stateMachine
	overrides     overrideAuthority
	maintenance   maintenanceFlag
	settings      maintenanceWriter
	holds         holdChecker
	prerequisites prerequisiteChecker
	validator     *validator.Validate
	logger        *zap.Logger
	cfg           GatewayConfig
}

// NewRegistrationGateway wires the gateway. Nil providers are skipped.
func NewRegistrationGateway(enrollments stateMachine, overrides overrideAuthority, maintenance maintenanceFlag, settings maintenanceWriter, holds holdChecker, prerequisites prerequisiteChecker, validate *validator.Validate, logger *zap.Logger, cfg GatewayConfig) *RegistrationGateway {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationGateway{
		enrollments:   enrollments,
		overrides:     overrides,
		maintenance:   maintenance,
		settings:      settings,
		holds:         holds,
		prerequisites: prerequisites,
		validator:     validate,
		logger:        logger,
		cfg:           cfg,
	}
}

// Register validates eligibility and registers the student.
func (g *RegistrationGateway) Register(ctx context.Context, req dto.RegisterRequest, actor models.Actor) (*models.RegistrationResult, error) {
	if err := g.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if err := authorizeStudent(actor, req.StudentID); err != nil {
		return nil, err
	}
	if err := g.checkMaintenance(ctx); err != nil {
		return nil, err
	}
	if err := g.checkHolds(ctx, req.StudentID); err != nil {
		return nil, err
	}
	if err := g.checkPrerequisites(ctx, req.StudentID, req.SectionID); err != nil {
		return nil, err
	}
	return g.enrollments.Register(ctx, req.StudentID, req.SectionID, actor.ID)
}

// Drop withdraws an enrollment owned by the actor, or any enrollment for staff.
func (g *RegistrationGateway) Drop(ctx context.Context, enrollmentID string, actor models.Actor) (*models.DropResult, error) {
	if err := g.checkMaintenance(ctx); err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent {
		enrollment, err := g.enrollments.FindEnrollment(ctx, enrollmentID)
		if err != nil {
			return nil, err
		}
		if err := authorizeStudent(actor, enrollment.StudentID); err != nil {
			return nil, err
		}
	}
	return g.enrollments.Drop(ctx, enrollmentID, actor.ID)
}

// RemoveFromWaitlist withdraws a waitlisted student.
func (g *RegistrationGateway) RemoveFromWaitlist(ctx context.Context, studentID, sectionID string, actor models.Actor) (*models.DropResult, error) {
	if err := authorizeStudent(actor, studentID); err != nil {
		return nil, err
	}
	if err := g.checkMaintenance(ctx); err != nil {
		return nil, err
	}
	return g.enrollments.RemoveFromWaitlist(ctx, studentID, sectionID, actor.ID)
}

// Complete records the final grade for an active enrollment.
func (g *RegistrationGateway) Complete(ctx context.Context, enrollmentID string, req dto.CompleteEnrollmentRequest, actor models.Actor) (*models.Enrollment, error) {
	if err := g.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
	}
	if err := g.checkMaintenance(ctx); err != nil {
		return nil, err
	}
	return g.enrollments.Complete(ctx, enrollmentID, strings.TrimSpace(req.Grade), actor.ID)
}

// ForceEnroll passes an override to the override authority. Holds and
// prerequisites are not consulted.
func (g *RegistrationGateway) ForceEnroll(ctx context.Context, req dto.ForceEnrollRequest, actor models.Actor) (*models.RegistrationResult, error) {
	if err := g.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	if err := g.checkMaintenance(ctx); err != nil {
		return nil, err
	}
	return g.overrides.ForceEnroll(ctx, req.StudentID, req.SectionID, actor, req.Reason)
}

// SetMaintenanceMode stores the registration maintenance flag.
func (g *RegistrationGateway) SetMaintenanceMode(ctx context.Context, enabled bool, actor models.Actor) error {
	if actor.Role != models.RoleSuperAdmin && actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only administrators may toggle maintenance mode")
	}
	if g.settings == nil {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "maintenance flag is not stored in this deployment")
	}
	updatedBy := actor.ID
	description := "Rejects registration changes while enabled"
	cfg := &models.Configuration{
		Key:         models.ConfigKeyRegistrationMaintenance,
		Value:       strconv.FormatBool(enabled),
		Type:        models.ConfigurationTypeBoolean,
		Description: &description,
		UpdatedBy:   &updatedBy,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := g.settings.Upsert(ctx, cfg); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store maintenance flag")
	}
	g.logger.Info("registration maintenance mode changed", zap.Bool("enabled", enabled), zap.String("actor_id", actor.ID))
	return nil
}

// MaintenanceMode reports the effective maintenance flag.
func (g *RegistrationGateway) MaintenanceMode(ctx context.Context) (bool, error) {
	if g.cfg.MaintenanceMode {
		return true, nil
	}
	if g.maintenance == nil {
		return false, nil
	}
	enabled, err := g.maintenance.MaintenanceMode(ctx)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read maintenance flag")
	}
	return enabled, nil
}

func (g *RegistrationGateway) checkMaintenance(ctx context.Context) error {
	enabled, err := g.MaintenanceMode(ctx)
	if err != nil {
		return err
	}
	if enabled {
		return appErrors.Clone(appErrors.ErrMaintenanceMode, "")
	}
	return nil
}

func (g *RegistrationGateway) checkHolds(ctx context.Context, studentID string) error {
	if g.holds == nil {
		return nil
	}
	holds, err := g.holds.ActiveHolds(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check account holds")
	}
	if len(holds) > 0 {
		g.logger.Info("registration blocked by hold", zap.String("student_id", studentID), zap.Strings("holds", holds))
		return appErrors.Clone(appErrors.ErrHoldOnAccount, fmt.Sprintf("hold on account: %s", strings.Join(holds, ", ")))
	}
	return nil
}

func (g *RegistrationGateway) checkPrerequisites(ctx context.Context, studentID, sectionID string) error {
	if g.prerequisites == nil {
		return nil
	}
	missing, err := g.prerequisites.MissingPrerequisites(ctx, studentID, sectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisites")
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrPrerequisiteNotMet, fmt.Sprintf("missing prerequisites: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// authorizeStudent lets students act only on their own behalf. Staff roles
// pass through; route-level RBAC has already filtered them.
func authorizeStudent(actor models.Actor, studentID string) error {
	if actor.Role == models.RoleStudent && actor.ID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "students may only manage their own registrations")
	}
	return nil
}
