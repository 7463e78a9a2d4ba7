package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-registrar-api/internal/models"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
)

// Scenario B.
func TestForceEnrollIntoFullSection(t *testing.T) {
	f := newRegistrarFixture(t, models.Section{ID: "sec-1", Capacity: 30})
	f.fill(t, "sec-1", 30)
	require.Equal(t, 30, f.state(t, "sec-1").EnrolledCount)

	result, err := f.override.ForceEnroll(context.Background(), "stu-c", "sec-1", adminActor, "graduating senior")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, result.Status)
	assert.True(t, result.Override)
	assert.Equal(t, models.OverrideOutcomeApplied, result.Outcome)

	state := f.state(t, "sec-1")
	assert.Equal(t, 31, state.EnrolledCount)
	assert.Equal(t, 1, state.OverrideCount)

	records, total, err := f.store.ListOverrideRecords(context.Background(), models.AuditFilter{SectionID: "sec-1"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "stu-c", records[0].StudentID)
	assert.Equal(t, adminActor.ID, records[0].ActorID)
	assert.Equal(t, "graduating senior", records[0].Reason)
	assert.Equal(t, models.OverrideOutcomeApplied, records[0].Outcome)
	assert.Equal(t, result.Enrollment.ID, records[0].EnrollmentID)

	later := f.register(t, "stu-d", "sec-1")
	assert.Equal(t, models.EnrollmentStatusWaitlisted, later.Status)
	assert.Equal(t, 1, later.Position)
	f.requireConsistent(t, "sec-1")
}

func TestForceEnrollIsIdempotent(t *testing.T) {
	f := newRegistrarFixture(t, models.Section{ID: "sec-1", Capacity: 1})
	f.register(t, "stu-a", "sec-1")

	first, err := f.override.ForceEnroll(context.Background(), "stu-b", "sec-1", adminActor, "lab assistant")
	require.NoError(t, err)
	second, err := f.override.ForceEnroll(context.Background(), "stu-b", "sec-1", adminActor, "lab assistant")
	require.NoError(t, err)

	assert.Equal(t, first.Enrollment.ID, second.Enrollment.ID)
	assert.True(t, second.Override)
	assert.Equal(t, models.OverrideOutcomeAlreadyOverridden, second.Outcome)
	assert.Equal(t, 2, f.state(t, "sec-1").EnrolledCount)

	records, _, err := f.store.ListOverrideRecords(context.Background(), models.AuditFilter{StudentID: "stu-b"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.OverrideOutcomeApplied, records[0].Outcome)
	assert.Equal(t, models.OverrideOutcomeAlreadyOverridden, records[1].Outcome)
	f.requireConsistent(t, "sec-1")
}

func TestForceEnrollPromotesWaitlistedStudent(t *testing.T) {
	f := newRegistrarFixture(t, models.Section{ID: "sec-1", Capacity: 1})
	f.register(t, "stu-a", "sec-1")
	waiting := f.register(t, "stu-b", "sec-1")
	f.register(t, "stu-c", "sec-1")

	result, err := f.override.ForceEnroll(context.Background(), "stu-b", "sec-1", adminActor, "advisor request")
	require.NoError(t, err)
	assert.Equal(t, waiting.Enrollment.ID, result.Enrollment.ID)
	assert.True(t, result.Override)

	assert.Equal(t, []string{"stu-c"}, f.waitlistStudents(t, "sec-1"))
	assert.Equal(t, 2, f.state(t, "sec-1").EnrolledCount)
	f.requireConsistent(t, "sec-1")
}

func TestForceEnrollAlreadyActiveConsumesNoSeat(t *testing.T) {
	f := newRegistrarFixture(t, models.Section{ID: "sec-1", Capacity: 2})
	active := f.register(t, "stu-a", "sec-1")

	result, err := f.override.ForceEnroll(context.Background(), "stu-a", "sec-1", adminActor, "double check")
	require.NoError(t, err)
	assert.Equal(t, active.Enrollment.ID, result.Enrollment.ID)
	assert.False(t, result.Override)
	assert.Equal(t, models.OverrideOutcomeAlreadyActive, result.Outcome)
	assert.Equal(t, 1, f.state(t, "sec-1").EnrolledCount)

	records, _, err := f.store.ListOverrideRecords(context.Background(), models.AuditFilter{SectionID: "sec-1"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.OverrideOutcomeAlreadyActive, records[0].Outcome)
}

func TestForceEnrollBypassesClosedSection(t *testing.T) {
	f := newRegistrarFixture(t, models.Section{ID: "sec-1", Capacity: 5, Status: models.SectionStatusClosed})

	result, err := f.override.ForceEnroll(context.Background(), "stu-a", "sec-1", adminActor, "late add approved by dean")
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, result.Status)
	state := f.state(t, "sec-1")
	assert.Equal(t, models.SectionStatusClosed, state.Status)
	assert.Equal(t, 1, state.EnrolledCount)
}

func TestForceEnrollRequiresPrivilegedActor(t *testing.T) {
	f := newRegistrarFixture(t, models.Section{ID: "sec-1", Capacity: 1})
	for _, role := range []models.UserRole{models.RoleStudent, models.RoleTeacher, ""} {
		_, err := f.override.ForceEnroll(context.Background(), "stu-a", "sec-1", models.Actor{ID: "x", Role: role}, "please")
		assert.ErrorIs(t, err, appErrors.ErrOverrideUnauthorized, string(role))
	}
	_, total, err := f.store.ListOverrideRecords(context.Background(), models.AuditFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, 0, f.state(t, "sec-1").EnrolledCount)
}

func TestForceEnrollRequiresReason(t *testing.T) {
	f := newRegistrarFixture(t, models.Section{ID: "sec-1", Capacity: 1})
	_, err := f.override.ForceEnroll(context.Background(), "stu-a", "sec-1", adminActor, "   ")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestDropOverrideEnrollmentKeepsInvariant(t *testing.T) {
	f := newRegistrarFixture(t, models.Section{ID: "sec-1", Capacity: 1})
	f.register(t, "stu-a", "sec-1")
	f.register(t, "stu-w", "sec-1")
	forced, err := f.override.ForceEnroll(context.Background(), "stu-b", "sec-1", adminActor, "research credit")
	require.NoError(t, err)

	result, err := f.enrollment.Drop(context.Background(), forced.Enrollment.ID, "stu-b")
	require.NoError(t, err)
	assert.Nil(t, result.Promoted)

	state := f.state(t, "sec-1")
	assert.Equal(t, 1, state.EnrolledCount)
	assert.Equal(t, 0, state.OverrideCount)
	assert.Equal(t, 1, state.WaitlistCount)
	f.requireConsistent(t, "sec-1")
}

func TestCompletedOverrideStillCountsAgainstCapacity(t *testing.T) {
	f := newRegistrarFixture(t, models.Section{ID: "sec-1", Capacity: 1})
	f.register(t, "stu-a", "sec-1")
	forced, err := f.override.ForceEnroll(context.Background(), "stu-b", "sec-1", adminActor, "independent study")
	require.NoError(t, err)

	_, err = f.enrollment.Complete(context.Background(), forced.Enrollment.ID, "A-", adminActor.ID)
	require.NoError(t, err)

	state := f.state(t, "sec-1")
	assert.Equal(t, 2, state.EnrolledCount)
	assert.Equal(t, 1, state.OverrideCount)

	report, err := f.enrollment.CheckInvariants(context.Background(), "sec-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.SeatedOverrides)
	f.requireConsistent(t, "sec-1")
}
