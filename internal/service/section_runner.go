package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/repository"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
	"github.com/noah-isme/campus-registrar-api/pkg/events"
)

// EventPublisher hands committed domain events to an asynchronous sink.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// sectionStateInvalidator drops cached section snapshots after a commit.
type sectionStateInvalidator interface {
	Invalidate(ctx context.Context, sectionID string)
}

// RegistrarOptions carries the collaborators shared by the services that
// mutate section state.
type RegistrarOptions struct {
	Cache        *SectionStateCache
	Events       EventPublisher
	Metrics      *MetricsService
	Logger       *zap.Logger
	MaxRetries   int
	RetryBackoff time.Duration
	Clock        func() time.Time
}

// sectionRunner executes one unit of work under a section lock, retrying lock
// timeouts and write conflicts a bounded number of times.
type sectionRunner struct {
	store      repository.SectionStore
	cache      sectionStateInvalidator
	events     EventPublisher
	metrics    *MetricsService
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
}

func newSectionRunner(store repository.SectionStore, opts RegistrarOptions) sectionRunner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	runner := sectionRunner{
		store:      store,
		events:     opts.Events,
		metrics:    opts.Metrics,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    opts.RetryBackoff,
		now:        clock,
	}
	if opts.Cache != nil {
		runner.cache = opts.Cache
	}
	return runner
}

// run executes fn inside the section's atomic unit. fn may run more than once
// and must reset any captured results at its start.
func (r sectionRunner) run(ctx context.Context, sectionID, op string, fn func(tx repository.SectionTx) error) error {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err := r.store.WithinSection(ctx, sectionID, fn)
		r.metrics.ObserveCriticalSection(op, time.Since(start))
		if err == nil {
			return nil
		}

		var appErr *appErrors.Error
		switch {
		case errors.As(err, &appErr):
			return appErr
		case errors.Is(err, repository.ErrSectionNotFound):
			return appErrors.Clone(appErrors.ErrSectionNotFound, "section "+sectionID+" not found")
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return appErrors.Wrap(err, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, "request cancelled while waiting for section")
		case repository.IsRetryable(err):
			if attempt >= r.maxRetries {
				r.metrics.RecordSectionConflict(op)
				r.logger.Warn("section contention exhausted retries",
					zap.String("section_id", sectionID), zap.String("op", op), zap.Int("attempts", attempt+1), zap.Error(err))
				conflict := appErrors.Clone(appErrors.ErrConcurrencyConflict, "")
				conflict.Err = err
				return conflict
			}
			r.metrics.RecordSectionRetry(op)
			r.logger.Debug("retrying section transaction",
				zap.String("section_id", sectionID), zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
			if waitErr := r.wait(ctx, attempt); waitErr != nil {
				return appErrors.Wrap(waitErr, appErrors.ErrConcurrencyConflict.Code, appErrors.ErrConcurrencyConflict.Status, "request cancelled while waiting for section")
			}
		default:
			r.logger.Error("section transaction failed",
				zap.String("section_id", sectionID), zap.String("op", op), zap.Error(err))
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
		}
	}
}

// wait sleeps a linearly growing backoff unless the context ends first.
func (r sectionRunner) wait(ctx context.Context, attempt int) error {
	if r.backoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.backoff * time.Duration(attempt+1))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// committed runs the side effects that must only follow a successful commit.
func (r sectionRunner) committed(ctx context.Context, sectionID string, evts ...events.Event) {
	if r.cache != nil {
		r.cache.Invalidate(ctx, sectionID)
	}
	if r.events == nil {
		return
	}
	for _, event := range evts {
		if err := r.events.Publish(ctx, event); err != nil {
			r.logger.Warn("failed to enqueue enrollment event",
				zap.String("type", string(event.Type)), zap.String("section_id", sectionID), zap.Error(err))
		}
	}
}

func (r sectionRunner) event(eventType events.Type, enrollment models.Enrollment, actorID string) events.Event {
	return events.Event{
		Type:         eventType,
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		SectionID:    enrollment.SectionID,
		ActorID:      actorID,
		Status:       string(enrollment.Status),
		Override:     enrollment.Override,
		OccurredAt:   r.now(),
	}
}

// auditEvent builds an audit entry for an enrollment transition.
func (r sectionRunner) auditEvent(eventType models.AuditEventType, enrollment models.Enrollment, actorID string, detail map[string]interface{}) (*models.AuditEvent, error) {
	event := &models.AuditEvent{
		EventType:    eventType,
		StudentID:    stringPtr(enrollment.StudentID),
		SectionID:    stringPtr(enrollment.SectionID),
		EnrollmentID: stringPtr(enrollment.ID),
		ActorID:      stringPtr(actorID),
		CreatedAt:    r.now(),
	}
	if len(detail) > 0 {
		raw, err := json.Marshal(detail)
		if err != nil {
			return nil, err
		}
		event.Detail = raw
	}
	return event, nil
}

func (r sectionRunner) appendAudit(ctx context.Context, tx repository.SectionTx, eventType models.AuditEventType, enrollment models.Enrollment, actorID string, detail map[string]interface{}) error {
	event, err := r.auditEvent(eventType, enrollment, actorID, detail)
	if err != nil {
		return err
	}
	return tx.AppendAuditEvent(ctx, event)
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
