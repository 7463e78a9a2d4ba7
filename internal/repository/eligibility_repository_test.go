package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEligibilityRepositoryActiveHolds(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewEligibilityRepository(sqlx.NewDb(db, "sqlmock"))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT code FROM account_holds WHERE student_id = $1 AND released_at IS NULL")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("BURSAR").AddRow("LIBRARY"))

	holds, err := repo.ActiveHolds(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"BURSAR", "LIBRARY"}, holds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEligibilityRepositoryMissingPrerequisites(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	repo := NewEligibilityRepository(sqlx.NewDb(db, "sqlmock"))

	mock.ExpectQuery("SELECT p.prerequisite_course_id\\s+FROM course_prerequisites p").
		WithArgs("sec-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"prerequisite_course_id"}).AddRow("MATH-101"))

	missing, err := repo.MissingPrerequisites(context.Background(), "stu-1", "sec-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"MATH-101"}, missing)

	mock.ExpectQuery("FROM course_prerequisites").
		WithArgs("sec-1", "stu-2").
		WillReturnError(errors.New("boom"))
	_, err = repo.MissingPrerequisites(context.Background(), "stu-2", "sec-1")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
