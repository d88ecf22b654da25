package requests

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{
	"id", "kind", "student_id", "subject_id", "date_from", "date_to", "reason", "file_url",
	"status", "teacher_note", "decided_by", "decided_at", "created_at",
}

func TestRepositoryDecideIsConditional(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d := Decision{Status: StatusApproved, Note: "ok", TeacherID: "t1", At: now}
	update := regexp.QuoteMeta(`UPDATE student_requests`)
	mock.ExpectExec(update).WithArgs("req-1", "approved", "ok", "t1", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(update).WithArgs("req-1", "approved", "ok", "t1", now).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRepository(db)
	won, err := repo.Decide(context.Background(), "req-1", d)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.Decide(context.Background(), "req-1", d)
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCreateDefaultsToPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r := &Request{ID: "req-2", Kind: KindSelfStudy, StudentID: "s1", SubjectID: "math", DateFrom: friday, DateTo: friday, CreatedAt: now}
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO student_requests`)).
		WithArgs("req-2", "selfstudy", "s1", "math", friday, friday, "", "", "pending", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewRepository(db).Create(context.Background(), r))
	assert.Equal(t, StatusPending, r.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	query := regexp.QuoteMeta(`FROM student_requests WHERE id = $1`)
	mock.ExpectQuery(query).WithArgs("req-3").WillReturnRows(
		sqlmock.NewRows(columns).AddRow("req-3", "correction", "s1", "math", friday, friday.AddDate(0, 0, 2),
			"sick leave", "", "pending", "", nil, nil, now))
	mock.ExpectQuery(query).WithArgs("nope").WillReturnRows(sqlmock.NewRows(columns))

	repo := NewRepository(db)
	got, err := repo.Get(context.Background(), "req-3")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindCorrection, got.Kind)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, friday.AddDate(0, 0, 2), got.DateTo)
	assert.Empty(t, got.DecidedBy)
	assert.Nil(t, got.DecidedAt)

	missing, err := repo.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryListBySubjectsSkipsEmptyScope(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	out, err := NewRepository(db).ListBySubjects(context.Background(), nil, "", "")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}
