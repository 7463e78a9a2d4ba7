package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/campus-registrar-api/internal/models"
)

// MemorySectionStore keeps registration state in process memory. Each section
// owns a one-slot semaphore so lock acquisition can give up after a bounded
// wait; writes are staged on the transaction and applied only on success.
type MemorySectionStore struct {
	mu          sync.RWMutex
	sections    map[string]models.Section
	enrollments map[string]models.Enrollment
	bySection   map[string][]string
	waitlists   map[string][]models.WaitlistEntry
	audit       []models.AuditEvent
	overrides   []models.OverrideRecord
	locks       map[string]chan struct{}
	lockTimeout time.Duration
}

// NewMemorySectionStore constructs an empty store.
func NewMemorySectionStore(lockTimeout time.Duration) *MemorySectionStore {
	if lockTimeout <= 0 {
		lockTimeout = 2 * time.Second
	}
	return &MemorySectionStore{
		sections:    make(map[string]models.Section),
		enrollments: make(map[string]models.Enrollment),
		bySection:   make(map[string][]string),
		waitlists:   make(map[string][]models.WaitlistEntry),
		locks:       make(map[string]chan struct{}),
		lockTimeout: lockTimeout,
	}
}

// PutSection registers or replaces a section, standing in for catalog management.
func (s *MemorySectionStore) PutSection(section models.Section) error {
	if section.Capacity <= 0 {
		return fmt.Errorf("put section %s: %w", section.ID, ErrInvalidCapacity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if section.Status == "" {
		section.Status = models.SectionStatusOpen
	}
	section.UpdatedAt = time.Now().UTC()
	s.sections[section.ID] = section
	if _, ok := s.locks[section.ID]; !ok {
		s.locks[section.ID] = make(chan struct{}, 1)
	}
	return nil
}

// WithinSection implements SectionStore.
func (s *MemorySectionStore) WithinSection(ctx context.Context, sectionID string, fn func(tx SectionTx) error) error {
	s.mu.RLock()
	section, ok := s.sections[sectionID]
	lock := s.locks[sectionID]
	s.mu.RUnlock()
	if !ok {
		return ErrSectionNotFound
	}

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case lock <- struct{}{}:
	case <-timer.C:
		return fmt.Errorf("%w: %s", ErrLockTimeout, sectionID)
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	// Re-read under the lock: the snapshot above may predate the last commit.
	s.mu.RLock()
	section = s.sections[sectionID]
	waitlist := append([]models.WaitlistEntry(nil), s.waitlists[sectionID]...)
	s.mu.RUnlock()

	tx := &memorySectionTx{
		store:    s,
		section:  section,
		waitlist: waitlist,
		staged:   make(map[string]models.Enrollment),
	}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemorySectionStore) commit(tx *memorySectionTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := tx.section.ID
	s.sections[id] = tx.section
	s.waitlists[id] = tx.waitlist
	for _, enrollmentID := range tx.created {
		s.bySection[id] = append(s.bySection[id], enrollmentID)
	}
	for enrollmentID, enrollment := range tx.staged {
		s.enrollments[enrollmentID] = enrollment
	}
	s.audit = append(s.audit, tx.audit...)
	s.overrides = append(s.overrides, tx.overrides...)
}

// FindEnrollment implements SectionStore.
func (s *MemorySectionStore) FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	enrollment, ok := s.enrollments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &enrollment, nil
}

// SectionState implements SectionStore.
func (s *MemorySectionStore) SectionState(ctx context.Context, sectionID string) (*models.SectionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	section, ok := s.sections[sectionID]
	if !ok {
		return nil, ErrSectionNotFound
	}
	overrides := 0
	for _, id := range s.bySection[sectionID] {
		e := s.enrollments[id]
		if e.Status.HoldsSeat() && e.Override {
			overrides++
		}
	}
	return &models.SectionState{
		SectionID:     section.ID,
		Status:        section.Status,
		Capacity:      section.Capacity,
		EnrolledCount: section.EnrolledCount,
		WaitlistCount: len(s.waitlists[sectionID]),
		OverrideCount: overrides,
	}, nil
}

// ListAuditEvents returns audit entries matching the filter, oldest first.
func (s *MemorySectionStore) ListAuditEvents(ctx context.Context, filter models.AuditFilter) ([]models.AuditEvent, int, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []models.AuditEvent
	for _, event := range s.audit {
		if filter.SectionID != "" && (event.SectionID == nil || *event.SectionID != filter.SectionID) {
			continue
		}
		if filter.StudentID != "" && (event.StudentID == nil || *event.StudentID != filter.StudentID) {
			continue
		}
		if filter.EventType != "" && event.EventType != filter.EventType {
			continue
		}
		matched = append(matched, event)
	}
	return page(matched, filter), len(matched), nil
}

// ListOverrideRecords returns override records matching the filter, oldest first.
func (s *MemorySectionStore) ListOverrideRecords(ctx context.Context, filter models.AuditFilter) ([]models.OverrideRecord, int, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []models.OverrideRecord
	for _, record := range s.overrides {
		if filter.SectionID != "" && record.SectionID != filter.SectionID {
			continue
		}
		if filter.StudentID != "" && record.StudentID != filter.StudentID {
			continue
		}
		matched = append(matched, record)
	}
	return page(matched, filter), len(matched), nil
}

// AppendAuditEvent writes an audit entry outside of any section transaction.
func (s *MemorySectionStore) AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	stampAuditEvent(event)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, *event)
	return nil
}

func page[T any](items []T, filter models.AuditFilter) []T {
	start := filter.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + filter.PageSize
	if end > len(items) {
		end = len(items)
	}
	return append([]T(nil), items[start:end]...)
}

func stampAuditEvent(event *models.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
}

type memorySectionTx struct {
	store     *MemorySectionStore
	section   models.Section
	waitlist  []models.WaitlistEntry
	staged    map[string]models.Enrollment
	created   []string
	audit     []models.AuditEvent
	overrides []models.OverrideRecord
}

func (t *memorySectionTx) Section() models.Section {
	return t.section
}

func (t *memorySectionTx) SaveSection(ctx context.Context, section models.Section) error {
	if section.ID != t.section.ID {
		return fmt.Errorf("save section %s: not locked by this transaction", section.ID)
	}
	section.UpdatedAt = time.Now().UTC()
	t.section = section
	return nil
}

func (t *memorySectionTx) FindEnrollment(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := t.staged[id]; ok {
		return &e, nil
	}
	t.store.mu.RLock()
	e, ok := t.store.enrollments[id]
	t.store.mu.RUnlock()
	if !ok || e.SectionID != t.section.ID {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (t *memorySectionTx) FindOpenEnrollment(ctx context.Context, studentID string) (*models.Enrollment, error) {
	for _, e := range t.staged {
		if e.StudentID == studentID && e.Status.Open() {
			found := e
			return &found, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, id := range t.store.bySection[t.section.ID] {
		if _, shadowed := t.staged[id]; shadowed {
			continue
		}
		e := t.store.enrollments[id]
		if e.StudentID == studentID && e.Status.Open() {
			return &e, nil
		}
	}
	return nil, nil
}

func (t *memorySectionTx) CreateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = time.Now().UTC()
	}
	enrollment.SectionID = t.section.ID
	t.staged[enrollment.ID] = *enrollment
	t.created = append(t.created, enrollment.ID)
	return nil
}

func (t *memorySectionTx) UpdateEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	if _, err := t.FindEnrollment(ctx, enrollment.ID); err != nil {
		return fmt.Errorf("update enrollment %s: %w", enrollment.ID, err)
	}
	t.staged[enrollment.ID] = *enrollment
	return nil
}

func (t *memorySectionTx) CountSeatedOverrides(ctx context.Context) (int, error) {
	count := 0
	for _, e := range t.staged {
		if e.Status.HoldsSeat() && e.Override {
			count++
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, id := range t.store.bySection[t.section.ID] {
		if _, shadowed := t.staged[id]; shadowed {
			continue
		}
		e := t.store.enrollments[id]
		if e.Status.HoldsSeat() && e.Override {
			count++
		}
	}
	return count, nil
}

func (t *memorySectionTx) Waitlist(ctx context.Context) ([]models.WaitlistEntry, error) {
	entries := append([]models.WaitlistEntry(nil), t.waitlist...)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Position < entries[j].Position })
	return entries, nil
}

func (t *memorySectionTx) InsertWaitlistEntry(ctx context.Context, entry models.WaitlistEntry) error {
	for _, existing := range t.waitlist {
		if existing.StudentID == entry.StudentID {
			return fmt.Errorf("insert waitlist entry: %w: student %s already queued", ErrTxConflict, entry.StudentID)
		}
		if existing.Position == entry.Position {
			return fmt.Errorf("insert waitlist entry: %w: position %d taken", ErrTxConflict, entry.Position)
		}
	}
	entry.SectionID = t.section.ID
	t.waitlist = append(t.waitlist, entry)
	return nil
}

func (t *memorySectionTx) DeleteWaitlistEntry(ctx context.Context, studentID string) error {
	for i, existing := range t.waitlist {
		if existing.StudentID == studentID {
			t.waitlist = append(t.waitlist[:i:i], t.waitlist[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (t *memorySectionTx) ShiftWaitlistAfter(ctx context.Context, position int) error {
	for i := range t.waitlist {
		if t.waitlist[i].Position > position {
			t.waitlist[i].Position--
		}
	}
	return nil
}

func (t *memorySectionTx) AppendAuditEvent(ctx context.Context, event *models.AuditEvent) error {
	stampAuditEvent(event)
	t.audit = append(t.audit, *event)
	return nil
}

func (t *memorySectionTx) AppendOverrideRecord(ctx context.Context, record *models.OverrideRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	t.overrides = append(t.overrides, *record)
	return nil
}
