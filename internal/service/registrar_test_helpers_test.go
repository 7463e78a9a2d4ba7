package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	"github.com/noah-isme/campus-registrar-api/internal/repository"
	"github.com/noah-isme/campus-registrar-api/pkg/events"
)

var adminActor = models.Actor{ID: "admin-1", Role: models.RoleRegistrar}

// steppingClock returns strictly increasing instants so ordering assertions
// do not depend on wall-clock resolution.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	current := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Millisecond)
		return current
	}
}

type capturedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturedEvents) Publish(ctx context.Context, event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturedEvents) types() []events.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Type, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

type registrarFixture struct {
	store      *repository.MemorySectionStore
	enrollment *EnrollmentService
	override   *OverrideService
	events     *capturedEvents
}

func newRegistrarFixture(t *testing.T, sections ...models.Section) *registrarFixture {
	t.Helper()
	store := repository.NewMemorySectionStore(time.Second)
	for _, section := range sections {
		require.NoError(t, store.PutSection(section))
	}
	captured := &capturedEvents{}
	opts := RegistrarOptions{
		Events:       captured,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		Clock:        steppingClock(),
	}
	return &registrarFixture{
		store:      store,
		enrollment: NewEnrollmentService(store, opts),
		override:   NewOverrideService(store, opts),
		events:     captured,
	}
}

func (f *registrarFixture) register(t *testing.T, studentID, sectionID string) *models.RegistrationResult {
	t.Helper()
	result, err := f.enrollment.Register(context.Background(), studentID, sectionID, studentID)
	require.NoError(t, err)
	return result
}

func (f *registrarFixture) fill(t *testing.T, sectionID string, n int) []*models.RegistrationResult {
	t.Helper()
	results := make([]*models.RegistrationResult, 0, n)
	for i := 1; i <= n; i++ {
		results = append(results, f.register(t, fmt.Sprintf("%s-stu-%02d", sectionID, i), sectionID))
	}
	return results
}

func (f *registrarFixture) state(t *testing.T, sectionID string) *models.SectionState {
	t.Helper()
	state, err := f.enrollment.GetSectionState(context.Background(), sectionID)
	require.NoError(t, err)
	return state
}

func (f *registrarFixture) requireConsistent(t *testing.T, sectionID string) {
	t.Helper()
	report, err := f.enrollment.CheckInvariants(context.Background(), sectionID)
	require.NoError(t, err)
	require.Empty(t, report.Violations)
}

func (f *registrarFixture) waitlistStudents(t *testing.T, sectionID string) []string {
	t.Helper()
	entries, err := f.enrollment.ListWaitlist(context.Background(), sectionID)
	require.NoError(t, err)
	students := make([]string, 0, len(entries))
	for i, entry := range entries {
		require.Equal(t, i+1, entry.Position)
		students = append(students, entry.StudentID)
	}
	return students
}

func storeState(t *testing.T, store repository.SectionStore, sectionID string) *models.SectionState {
	t.Helper()
	state, err := store.SectionState(context.Background(), sectionID)
	require.NoError(t, err)
	return state
}
