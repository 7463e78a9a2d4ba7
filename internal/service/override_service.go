package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
	"github.com/noah-isme/campus-registrar-api/pkg/events"
)

// OverrideService force-enrolls students past capacity, closed sections,
// prerequisites and holds. Every call leaves an OverrideRecord behind.
type OverrideService struct {
	sectionRunner
	ledger   CapacityLedger
	waitlist WaitlistQueue
}

// NewOverrideService constructs the override authority.
func NewOverrideService(store repository.SectionStore, opts RegistrarOptions) *OverrideService {
	runner := newSectionRunner(store, opts)
	return &OverrideService{sectionRunner: runner, waitlist: NewWaitlistQueue(runner.now)}
}

// ForceEnroll makes the student ACTIVE with override=true. Repeating the call
// for an override enrollment consumes no further seat.
func (s *OverrideService) ForceEnroll(ctx context.Context, studentID, sectionID string, actor models.Actor, reason string) (*models.RegistrationResult, error) {
	if !actor.Role.CanOverride() || actor.ID == "" {
		s.logger.Warn("override rejected",
			zap.String("actor_id", actor.ID), zap.String("role", string(actor.Role)), zap.String("section_id", sectionID))
		return nil, appErrors.Clone(appErrors.ErrOverrideUnauthorized, fmt.Sprintf("role %q may not force-enroll students", actor.Role))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "override reason is required")
	}

	var (
		result  *models.RegistrationResult
		outcome models.OverrideOutcome
		event   events.Event
	)
	err := s.run(ctx, sectionID, "override", func(tx repository.SectionTx) error {
		result = nil
		existing, err := tx.FindOpenEnrollment(ctx, studentID)
		if err != nil {
			return err
		}

		var enrollment models.Enrollment
		switch {
		case existing != nil && existing.Status == models.EnrollmentStatusActive && existing.Override:
			outcome = models.OverrideOutcomeAlreadyOverridden
			enrollment = *existing
		case existing != nil && existing.Status == models.EnrollmentStatusActive:
			outcome = models.OverrideOutcomeAlreadyActive
			enrollment = *existing
		default:
			outcome = models.OverrideOutcomeApplied
			if existing != nil {
				if _, err := s.waitlist.Leave(ctx, tx, studentID); err != nil {
					return err
				}
			}
			if err := s.ledger.ForceReserveSeat(ctx, tx); err != nil {
				return err
			}
			if existing != nil {
				enrollment = *existing
				enrollment.Status = models.EnrollmentStatusActive
				enrollment.Override = true
				if err := tx.UpdateEnrollment(ctx, &enrollment); err != nil {
					return err
				}
			} else {
				enrollment = models.Enrollment{
					StudentID: studentID,
					Status:    models.EnrollmentStatusActive,
					Override:  true,
					CreatedAt: s.now(),
				}
				if err := tx.CreateEnrollment(ctx, &enrollment); err != nil {
					return err
				}
			}
		}

		record := &models.OverrideRecord{
			ActorID:      actor.ID,
			StudentID:    studentID,
			SectionID:    sectionID,
			EnrollmentID: enrollment.ID,
			Reason:       reason,
			Outcome:      outcome,
			CreatedAt:    s.now(),
		}
		if err := tx.AppendOverrideRecord(ctx, record); err != nil {
			return err
		}
		detail := map[string]interface{}{
			"reason":             reason,
			"outcome":            outcome,
			"override_record_id": record.ID,
			"enrolled_count":     tx.Section().EnrolledCount,
			"capacity":           tx.Section().Capacity,
		}
		if err := s.appendAudit(ctx, tx, models.AuditEventOverride, enrollment, actor.ID, detail); err != nil {
			return err
		}

		result = &models.RegistrationResult{Enrollment: enrollment, Status: enrollment.Status, Override: enrollment.Override, Outcome: outcome}
		event = s.event(events.TypeOverride, enrollment, actor.ID)
		event.Reason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOverride(string(outcome))
	s.logger.Info("override recorded",
		zap.String("actor_id", actor.ID),
		zap.String("student_id", studentID),
		zap.String("section_id", sectionID),
		zap.String("enrollment_id", result.Enrollment.ID),
		zap.String("outcome", string(outcome)),
	)
	if outcome == models.OverrideOutcomeApplied {
		s.committed(ctx, sectionID, event)
	} else {
		s.committed(ctx, sectionID)
	}
	return result, nil
}
