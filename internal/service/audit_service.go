package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
	"github.com/noah-isme/campus-registrar-api/pkg/export"
)

// AuditRepository reads and appends the audit trail.
type AuditRepository interface {
	ListAuditEvents(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int, error)
	ListOverrideRecords(ctx context.Context, filter models.AuditFilter) ([]models.OverrideRecord, int, error)
	AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error
}

type datasetRenderer interface {
	Render(format export.Format, data export.Dataset, title string) ([]byte, error)
}

// maxExportRows bounds a single compliance export.
const maxExportRows = 50000

// AuditExport is a rendered audit trail ready for download.
type AuditExport struct {
	Filename    string
	ContentType string
	Rows        int
	Data        []byte
}

// AuditService answers compliance queries over the append-only audit log.
type AuditService struct {
	repo     AuditRepository
	renderer datasetRenderer
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuditService constructs the audit service.
func NewAuditService(repo AuditRepository, renderer datasetRenderer, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewRenderer()
	}
	return &AuditService{repo: repo, renderer: renderer, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// ListEvents returns audit events, oldest first, with pagination metadata.
func (s *AuditService) ListEvents(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, *models.Pagination, error) {
	filter = filter.Normalize()
	events, total, err := s.repo.ListAuditEvents(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit events")
	}
	if events == nil {
		events = []models.AuditEvent{}
	}
	return events, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// ListOverrides returns override records, oldest first, with pagination metadata.
func (s *AuditService) ListOverrides(ctx context.Context, filter models.AuditFilter) ([]models.OverrideRecord, *models.Pagination, error) {
	filter = filter.Normalize()
	records, total, err := s.repo.ListOverrideRecords(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list override records")
	}
	if records == nil {
		records = []models.OverrideRecord{}
	}
	return records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Export renders every matching audit event as CSV or PDF. The export itself
// is recorded as an AUDIT_EXPORT event.
func (s *AuditService) Export(ctx context.Context, filter models.AuditFilter, format string, actorID string) (*AuditExport, error) {
	exportFormat, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}

	filter.Page = 1
	filter.PageSize = 500
	var collected []models.AuditEvent
	for {
		page, total, err := s.repo.ListAuditEvents(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit events")
		}
		collected = append(collected, page...)
		if len(page) == 0 || len(collected) >= total {
			break
		}
		if len(collected) >= maxExportRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("export exceeds %d rows, narrow the filter", maxExportRows))
		}
		filter.Page++
	}

	data, err := s.renderer.Render(exportFormat, auditDataset(collected), "Enrollment audit trail")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit export")
	}

	detail, err := json.Marshal(map[string]interface{}{
		"format":     exportFormat,
		"rows":       len(collected),
		"section_id": filter.SectionID,
		"student_id": filter.StudentID,
		"event_type": filter.EventType,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode export detail")
	}
	record := &models.AuditEvent{
		EventType: models.AuditEventExport,
		SectionID: stringPtr(filter.SectionID),
		StudentID: stringPtr(filter.StudentID),
		ActorID:   stringPtr(actorID),
		Detail:    detail,
		CreatedAt: s.now(),
	}
	if err := s.repo.AppendAuditEvent(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record audit export")
	}

	s.logger.Info("audit trail exported",
		zap.String("actor_id", actorID), zap.String("format", string(exportFormat)), zap.Int("rows", len(collected)))
	return &AuditExport{
		Filename:    fmt.Sprintf("audit-%s.%s", s.now().Format("20060102-150405"), exportFormat.Extension()),
		ContentType: exportFormat.ContentType(),
		Rows:        len(collected),
		Data:        data,
	}, nil
}

func auditDataset(events []models.AuditEvent) export.Dataset {
	headers := []string{"created_at", "event_type", "student_id", "section_id", "enrollment_id", "actor_id", "detail"}
	rows := make([]map[string]string, 0, len(events))
	for _, event := range events {
		rows = append(rows, map[string]string{
			"created_at":    event.CreatedAt.UTC().Format(time.RFC3339),
			"event_type":    string(event.EventType),
			"student_id":    deref(event.StudentID),
			"section_id":    deref(event.SectionID),
			"enrollment_id": deref(event.EnrollmentID),
			"actor_id":      deref(event.ActorID),
			"detail":        strings.TrimSpace(string(event.Detail)),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
