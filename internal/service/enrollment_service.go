package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
	"github.com/noah-isme/campus-registrar-api/pkg/events"
)

// EnrollmentService drives the enrollment lifecycle
// NONE -> ACTIVE | WAITLISTED -> DROPPED and ACTIVE -> COMPLETED.
// Every transition runs inside one section transaction together with its
// seat, waitlist and audit writes.
type EnrollmentService struct {
	sectionRunner
	ledger   CapacityLedger
	waitlist WaitlistQueue
	states   *SectionStateCache
}

// NewEnrollmentService constructs the state machine over a section store.
func NewEnrollmentService(store repository.SectionStore, opts RegistrarOptions) *EnrollmentService {
	runner := newSectionRunner(store, opts)
	return &EnrollmentService{
		sectionRunner: runner,
		waitlist:      NewWaitlistQueue(runner.now),
		states:        opts.Cache,
	}
}

// Register enrolls the student when a seat is free and waitlists them otherwise.
func (s *EnrollmentService) Register(ctx context.Context, studentID, sectionID, actorID string) (*models.RegistrationResult, error) {
	var (
		result *models.RegistrationResult
		event  events.Event
	)
	err := s.run(ctx, sectionID, "register", func(tx repository.SectionTx) error {
		result = nil
		existing, err := tx.FindOpenEnrollment(ctx, studentID)
		if err != nil {
			return err
		}
		if existing != nil {
			return appErrors.Clone(appErrors.ErrAlreadyEnrolled, fmt.Sprintf("student %s is already %s in section %s", studentID, existing.Status, sectionID))
		}
		if tx.Section().Status == models.SectionStatusClosed {
			return appErrors.Clone(appErrors.ErrSectionClosed, fmt.Sprintf("section %s is closed", sectionID))
		}

		outcome, err := s.ledger.TryReserveSeat(ctx, tx)
		if err != nil {
			return err
		}

		enrollment := models.Enrollment{StudentID: studentID, CreatedAt: s.now()}
		if outcome == models.ReserveAccepted {
			enrollment.Status = models.EnrollmentStatusActive
			if err := tx.CreateEnrollment(ctx, &enrollment); err != nil {
				return err
			}
			if err := s.appendAudit(ctx, tx, models.AuditEventRegister, enrollment, actorID, nil); err != nil {
				return err
			}
			result = &models.RegistrationResult{Enrollment: enrollment, Status: enrollment.Status}
			event = s.event(events.TypeEnrolled, enrollment, actorID)
			return nil
		}

		entry, err := s.waitlist.Join(ctx, tx, studentID)
		if err != nil {
			return err
		}
		enrollment.Status = models.EnrollmentStatusWaitlisted
		if err := tx.CreateEnrollment(ctx, &enrollment); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, tx, models.AuditEventWaitlistJoin, enrollment, actorID, map[string]interface{}{"position": entry.Position}); err != nil {
			return err
		}
		result = &models.RegistrationResult{Enrollment: enrollment, Status: enrollment.Status, Position: entry.Position}
		event = s.event(events.TypeWaitlisted, enrollment, actorID)
		event.Position = entry.Position
		return nil
	})
	if err != nil {
		s.metrics.RecordRegistration(registrationOutcome(err))
		return nil, err
	}

	s.metrics.RecordRegistration(string(result.Status))
	s.logger.Info("registration recorded",
		zap.String("student_id", studentID),
		zap.String("section_id", sectionID),
		zap.String("enrollment_id", result.Enrollment.ID),
		zap.String("status", string(result.Status)),
		zap.Int("position", result.Position),
	)
	s.committed(ctx, sectionID, event)
	return result, nil
}

// Drop ends an ACTIVE or WAITLISTED enrollment. Releasing an active seat
// promotes from the waitlist in the same transaction.
func (s *EnrollmentService) Drop(ctx context.Context, enrollmentID, actorID string) (*models.DropResult, error) {
	current, err := s.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	var (
		result    *models.DropResult
		published []events.Event
	)
	err = s.run(ctx, current.SectionID, "drop", func(tx repository.SectionTx) error {
		result, published = nil, nil
		enrollment, err := s.lockEnrollment(ctx, tx, enrollmentID)
		if err != nil {
			return err
		}
		previous := enrollment.Status
		switch previous {
		case models.EnrollmentStatusActive, models.EnrollmentStatusWaitlisted:
		default:
			return appErrors.Clone(appErrors.ErrNotEnrolled, fmt.Sprintf("enrollment %s is %s", enrollmentID, previous))
		}

		endedAt := s.now()
		enrollment.Status = models.EnrollmentStatusDropped
		enrollment.EndedAt = &endedAt
		if err := tx.UpdateEnrollment(ctx, enrollment); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, tx, models.AuditEventDrop, *enrollment, actorID, map[string]interface{}{"previous_status": previous}); err != nil {
			return err
		}
		result = &models.DropResult{Enrollment: *enrollment, Status: enrollment.Status}
		published = append(published, s.event(events.TypeDropped, *enrollment, actorID))

		if previous == models.EnrollmentStatusWaitlisted {
			if _, err := s.waitlist.Leave(ctx, tx, enrollment.StudentID); err != nil {
				return err
			}
			return nil
		}

		if err := s.ledger.ReleaseSeat(ctx, tx); err != nil {
			return err
		}
		promoted, err := s.promoteNext(ctx, tx, actorID)
		if err != nil {
			return err
		}
		if len(promoted) > 0 {
			first := promoted[0].StudentID
			result.Promoted = &first
		}
		for _, p := range promoted {
			published = append(published, s.event(events.TypePromoted, p, actorID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := []zap.Field{
		zap.String("enrollment_id", enrollmentID),
		zap.String("section_id", current.SectionID),
		zap.String("student_id", current.StudentID),
	}
	if result.Promoted != nil {
		fields = append(fields, zap.String("promoted_student_id", *result.Promoted))
	}
	s.logger.Info("enrollment dropped", fields...)
	s.committed(ctx, current.SectionID, published...)
	return result, nil
}

// Complete closes an ACTIVE enrollment with a final grade. The seat stays
// consumed for the rest of the term.
func (s *EnrollmentService) Complete(ctx context.Context, enrollmentID, grade, actorID string) (*models.Enrollment, error) {
	current, err := s.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}

	var (
		completed *models.Enrollment
		event     events.Event
	)
	err = s.run(ctx, current.SectionID, "complete", func(tx repository.SectionTx) error {
		completed = nil
		enrollment, err := s.lockEnrollment(ctx, tx, enrollmentID)
		if err != nil {
			return err
		}
		if enrollment.Status != models.EnrollmentStatusActive {
			return appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("enrollment %s is %s and cannot be completed", enrollmentID, enrollment.Status))
		}
		endedAt := s.now()
		enrollment.Status = models.EnrollmentStatusCompleted
		enrollment.EndedAt = &endedAt
		enrollment.Grade = &grade
		if err := tx.UpdateEnrollment(ctx, enrollment); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, tx, models.AuditEventComplete, *enrollment, actorID, map[string]interface{}{"grade": grade}); err != nil {
			return err
		}
		completed = enrollment
		event = s.event(events.TypeCompleted, *enrollment, actorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("enrollment completed", zap.String("enrollment_id", enrollmentID), zap.String("section_id", current.SectionID))
	s.committed(ctx, current.SectionID, event)
	return completed, nil
}

// RemoveFromWaitlist withdraws a waitlisted student from the section's queue.
func (s *EnrollmentService) RemoveFromWaitlist(ctx context.Context, studentID, sectionID, actorID string) (*models.DropResult, error) {
	var (
		result *models.DropResult
		event  events.Event
	)
	err := s.run(ctx, sectionID, "waitlist_leave", func(tx repository.SectionTx) error {
		result = nil
		enrollment, err := tx.FindOpenEnrollment(ctx, studentID)
		if err != nil {
			return err
		}
		if enrollment == nil || enrollment.Status != models.EnrollmentStatusWaitlisted {
			return appErrors.Clone(appErrors.ErrNotEnrolled, fmt.Sprintf("student %s is not waitlisted in section %s", studentID, sectionID))
		}
		left, err := s.waitlist.Leave(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if !left {
			return fmt.Errorf("waitlisted enrollment %s has no queue entry: %w", enrollment.ID, repository.ErrTxConflict)
		}
		endedAt := s.now()
		enrollment.Status = models.EnrollmentStatusDropped
		enrollment.EndedAt = &endedAt
		if err := tx.UpdateEnrollment(ctx, enrollment); err != nil {
			return err
		}
		if err := s.appendAudit(ctx, tx, models.AuditEventWaitlistLeave, *enrollment, actorID, nil); err != nil {
			return err
		}
		result = &models.DropResult{Enrollment: *enrollment, Status: enrollment.Status}
		event = s.event(events.TypeWaitlistLeft, *enrollment, actorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("student left waitlist", zap.String("student_id", studentID), zap.String("section_id", sectionID))
	s.committed(ctx, sectionID, event)
	return result, nil
}

// FindEnrollment loads an enrollment by id.
func (s *EnrollmentService) FindEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	enrollment, err := s.store.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, fmt.Sprintf("enrollment %s not found", enrollmentID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// GetSectionState returns seat usage, served from cache when possible.
func (s *EnrollmentService) GetSectionState(ctx context.Context, sectionID string) (*models.SectionState, error) {
	if cached, ok := s.states.Get(ctx, sectionID); ok {
		return cached, nil
	}
	version, cacheable := s.states.Version(ctx, sectionID)
	state, err := s.store.SectionState(ctx, sectionID)
	if err != nil {
		if errors.Is(err, repository.ErrSectionNotFound) {
			return nil, appErrors.Clone(appErrors.ErrSectionNotFound, "section "+sectionID+" not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section state")
	}
	if cacheable {
		s.states.Set(ctx, state, version)
	}
	return state, nil
}

// ListWaitlist returns the section's waitlist in position order.
func (s *EnrollmentService) ListWaitlist(ctx context.Context, sectionID string) ([]models.WaitlistEntry, error) {
	var entries []models.WaitlistEntry
	err := s.run(ctx, sectionID, "waitlist_list", func(tx repository.SectionTx) error {
		var err error
		entries, err = s.waitlist.List(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.WaitlistEntry{}
	}
	return entries, nil
}

// CheckInvariants inspects a consistent snapshot of the section and lists
// every broken invariant.
func (s *EnrollmentService) CheckInvariants(ctx context.Context, sectionID string) (*models.InvariantReport, error) {
	var report *models.InvariantReport
	err := s.run(ctx, sectionID, "invariants", func(tx repository.SectionTx) error {
		section := tx.Section()
		overrides, err := tx.CountSeatedOverrides(ctx)
		if err != nil {
			return err
		}
		entries, err := tx.Waitlist(ctx)
		if err != nil {
			return err
		}

		report = &models.InvariantReport{
			SectionID:          section.ID,
			Capacity:           section.Capacity,
			EnrolledCount:      section.EnrolledCount,
			SeatedOverrides:    overrides,
			WaitlistCount:      len(entries),
			Violations:         []string{},
			CheckedAtUnixMilli: s.now().UnixMilli(),
		}
		if section.EnrolledCount < 0 {
			report.Violations = append(report.Violations, fmt.Sprintf("enrolled count %d is negative", section.EnrolledCount))
		}
		if limit := section.Capacity + overrides; section.EnrolledCount > limit {
			report.Violations = append(report.Violations, fmt.Sprintf("enrolled count %d exceeds capacity %d plus %d overrides", section.EnrolledCount, section.Capacity, overrides))
		}
		if len(entries) > 0 && section.HasFreeSeat() {
			report.Violations = append(report.Violations, fmt.Sprintf("%d students waitlisted while a seat is free", len(entries)))
		}

		seen := make(map[string]struct{}, len(entries))
		for i, entry := range entries {
			if entry.Position != i+1 {
				report.Violations = append(report.Violations, fmt.Sprintf("waitlist position %d found where %d expected", entry.Position, i+1))
			}
			if i > 0 && entry.JoinedAt.Before(entries[i-1].JoinedAt) {
				report.Violations = append(report.Violations, fmt.Sprintf("waitlist position %d joined before position %d", entry.Position, entries[i-1].Position))
			}
			if _, dup := seen[entry.StudentID]; dup {
				report.Violations = append(report.Violations, fmt.Sprintf("student %s queued more than once", entry.StudentID))
			}
			seen[entry.StudentID] = struct{}{}

			enrollment, err := tx.FindOpenEnrollment(ctx, entry.StudentID)
			if err != nil {
				return err
			}
			if enrollment == nil || enrollment.Status != models.EnrollmentStatusWaitlisted {
				report.Violations = append(report.Violations, fmt.Sprintf("student %s is queued without a waitlisted enrollment", entry.StudentID))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !report.Consistent() {
		s.logger.Error("section invariants violated", zap.String("section_id", sectionID), zap.Strings("violations", report.Violations))
	}
	return report, nil
}

// promoteNext fills free seats from the head of the waitlist, skipping stale
// entries whose enrollment has already left WAITLISTED.
func (s *EnrollmentService) promoteNext(ctx context.Context, tx repository.SectionTx, actorID string) ([]models.Enrollment, error) {
	var promoted []models.Enrollment
	for tx.Section().HasFreeSeat() {
		entry, err := s.waitlist.PopFront(ctx, tx)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break
		}

		candidate, err := tx.FindOpenEnrollment(ctx, entry.StudentID)
		if err != nil {
			return nil, err
		}
		if candidate == nil || candidate.Status != models.EnrollmentStatusWaitlisted {
			s.logger.Warn("discarding stale waitlist entry",
				zap.String("section_id", entry.SectionID), zap.String("student_id", entry.StudentID), zap.Int("position", entry.Position))
			continue
		}

		outcome, err := s.ledger.TryReserveSeat(ctx, tx)
		if err != nil {
			return nil, err
		}
		if outcome != models.ReserveAccepted {
			return nil, fmt.Errorf("promote %s: seat vanished under section lock: %w", entry.StudentID, repository.ErrTxConflict)
		}

		candidate.Status = models.EnrollmentStatusActive
		if err := tx.UpdateEnrollment(ctx, candidate); err != nil {
			return nil, err
		}
		if err := s.appendAudit(ctx, tx, models.AuditEventPromote, *candidate, actorID, map[string]interface{}{"from_position": entry.Position}); err != nil {
			return nil, err
		}
		s.metrics.RecordPromotion()
		promoted = append(promoted, *candidate)
	}
	return promoted, nil
}

// lockEnrollment re-reads the enrollment under the section lock.
func (s *EnrollmentService) lockEnrollment(ctx context.Context, tx repository.SectionTx, enrollmentID string) (*models.Enrollment, error) {
	enrollment, err := tx.FindEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, fmt.Sprintf("enrollment %s not found", enrollmentID))
		}
		return nil, err
	}
	return enrollment, nil
}

func registrationOutcome(err error) string {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return appErrors.ErrInternal.Code
}
