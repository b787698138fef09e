package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/samudra-hr/hris-api/internal/models"
)

func TestRepaymentRepositoryCreateSchedule(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRepaymentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO advance_repayments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO advance_repayments")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entries := []models.RepaymentEntry{
		{InstanceID: "adv-1", SubjectID: "emp-1", Seq: 1, DueDate: time.Now(), Amount: 50_000},
		{InstanceID: "adv-1", SubjectID: "emp-1", Seq: 2, DueDate: time.Now().AddDate(0, 1, 0), Amount: 50_000},
	}
	require.NoError(t, repo.CreateSchedule(context.Background(), entries))
	require.NotEmpty(t, entries[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepaymentRepositoryCreateScheduleEmpty(t *testing.T) {
	db, _, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRepaymentRepository(db)
	require.Error(t, repo.CreateSchedule(context.Background(), nil))
}

func TestRepaymentRepositoryOutstanding(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRepaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT SUM(amount) FROM advance_repayments WHERE subject_id")).
		WithArgs("emp-1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(80_000))

	total, err := repo.Outstanding(context.Background(), "emp-1")
	require.NoError(t, err)
	require.Equal(t, int64(80_000), total)

	// No rows means no outstanding balance, not an error.
	mock.ExpectQuery(regexp.QuoteMeta("SELECT SUM(amount) FROM advance_repayments WHERE subject_id")).
		WithArgs("emp-2").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))

	total, err = repo.Outstanding(context.Background(), "emp-2")
	require.NoError(t, err)
	require.Zero(t, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRepaymentRepositorySettleTwiceFails(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRepaymentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE advance_repayments SET settled_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Settle(context.Background(), "entry-1"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE advance_repayments SET settled_at")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.Error(t, repo.Settle(context.Background(), "entry-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
