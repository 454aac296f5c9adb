package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

var attendanceColumns = []string{"id", "student_id", "date", "period", "status", "remarks", "recorded_by", "created_at", "updated_at"}

func day(t *testing.T, raw string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", raw)
	require.NoError(t, err)
	return d
}

func TestAttendanceUpsertUsesConflictKey(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	date := day(t, "2025-01-15")
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, date, period)")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "2025-01-15", 3, models.AttendanceStatusLate, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(attendanceColumns).
			AddRow("rec-1", "stu-1", date, 3, "LATE", nil, "teacher-1", now, now))

	recorder := "teacher-1"
	stored, err := repo.Upsert(context.Background(), &models.AttendanceRecord{
		StudentID:  "stu-1",
		Date:       date,
		Period:     3,
		Status:     models.AttendanceStatusLate,
		RecordedBy: &recorder,
	})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", stored.ID)
	assert.Equal(t, models.AttendanceStatusLate, stored.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceBulkUpsertCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	date := day(t, "2025-01-15")
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO attendance_records").
		WillReturnRows(sqlmock.NewRows(attendanceColumns).AddRow("rec-1", "stu-1", date, 1, "PRESENT", nil, nil, now, now))
	mock.ExpectQuery("INSERT INTO attendance_records").
		WillReturnRows(sqlmock.NewRows(attendanceColumns).AddRow("rec-2", "stu-2", date, 1, "ABSENT", nil, nil, now, now))
	mock.ExpectCommit()

	count, err := repo.BulkUpsert(context.Background(), []models.AttendanceRecord{
		{StudentID: "stu-1", Date: date, Period: 1, Status: models.AttendanceStatusPresent},
		{StudentID: "stu-2", Date: date, Period: 1, Status: models.AttendanceStatusAbsent},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceBulkUpsertRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	date := day(t, "2025-01-15")
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO attendance_records").
		WillReturnRows(sqlmock.NewRows(attendanceColumns).AddRow("rec-1", "stu-1", date, 1, "PRESENT", nil, nil, now, now))
	mock.ExpectQuery("INSERT INTO attendance_records").
		WillReturnError(errors.New("violates foreign key constraint"))
	mock.ExpectRollback()

	count, err := repo.BulkUpsert(context.Background(), []models.AttendanceRecord{
		{StudentID: "stu-1", Date: date, Period: 1, Status: models.AttendanceStatusPresent},
		{StudentID: "ghost", Date: date, Period: 1, Status: models.AttendanceStatusPresent},
	})
	require.Error(t, err)
	assert.Zero(t, count)
	assert.Contains(t, err.Error(), "student ghost")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceBulkUpsertEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	count, err := repo.BulkUpsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	date := day(t, "2025-01-15")
	period := 2
	columns := append(append([]string{}, attendanceColumns...), "student_name", "classroom_id", "classroom_label")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE ar.date = $1 AND s.classroom_id = $2 AND ar.period = $3")).
		WithArgs("2025-01-15", "class-1", 2).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("rec-1", "stu-1", date, 2, "ABSENT", nil, nil, now, now, "Somchai Dee", "class-1", "M.4/2"))

	rows, err := repo.List(context.Background(), models.AttendanceFilter{ClassroomID: "class-1", Date: date, Period: &period})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Somchai Dee", rows[0].StudentName)
	assert.Equal(t, "M.4/2", rows[0].ClassroomLabel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceGetReturnsLatestUpsert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now()
	date := day(t, "2025-01-15")
	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (student_id, date, period)")).
		WithArgs(sqlmock.AnyArg(), "stu-1", "2025-01-15", 3, models.AttendanceStatusAbsent, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(attendanceColumns).
			AddRow("rec-1", "stu-1", date, 3, "ABSENT", nil, "teacher-1", now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records WHERE student_id = $1 AND date = $2 AND period = $3")).
		WithArgs("stu-1", "2025-01-15", 3).
		WillReturnRows(sqlmock.NewRows(attendanceColumns).
			AddRow("rec-1", "stu-1", date, 3, "ABSENT", nil, "teacher-1", now, now))

	_, err := repo.Upsert(context.Background(), &models.AttendanceRecord{
		StudentID: "stu-1",
		Date:      date,
		Period:    3,
		Status:    models.AttendanceStatusAbsent,
	})
	require.NoError(t, err)

	got, err := repo.Get(context.Background(), "stu-1", date, 3)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusAbsent, got.Status)
	assert.Equal(t, 3, got.Period)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceGetMissingSlot(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("FROM attendance_records WHERE student_id").
		WithArgs("stu-1", "2025-01-15", 4).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "stu-1", day(t, "2025-01-15"), 4)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
