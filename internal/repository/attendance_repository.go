package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/database"
	"github.com/noah-isme/sma-attendance-api/pkg/regional"
)

// AttendanceRepository persists per-period attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const upsertAttendanceQuery = `INSERT INTO attendance_records (id, student_id, date, period, status, remarks, recorded_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (student_id, date, period)
DO UPDATE SET status = EXCLUDED.status, remarks = EXCLUDED.remarks, recorded_by = EXCLUDED.recorded_by, updated_at = EXCLUDED.updated_at
RETURNING id, student_id, date, period, status, remarks, recorded_by, created_at, updated_at`

// Upsert inserts the record or overwrites status/remarks of the existing (student, date, period) row
// in a single statement.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	stored, err := upsertAttendance(ctx, r.db, record)
	if err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return stored, nil
}

// BulkUpsert writes every record inside one transaction. Any failure rolls back the whole batch.
func (r *AttendanceRepository) BulkUpsert(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for i := range records {
			if _, err := upsertAttendance(ctx, tx, &records[i]); err != nil {
				return fmt.Errorf("record %d (student %s, period %d): %w", i, records[i].StudentID, records[i].Period, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bulk upsert attendance: %w", err)
	}
	return len(records), nil
}

func upsertAttendance(ctx context.Context, q sqlx.QueryerContext, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	var stored models.AttendanceRecord
	if err := sqlx.GetContext(ctx, q, &stored, upsertAttendanceQuery,
		record.ID,
		record.StudentID,
		regional.FormatDay(record.Date),
		record.Period,
		record.Status,
		record.Remarks,
		record.RecordedBy,
		record.CreatedAt,
		record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &stored, nil
}

// Get returns the record for one slot or sql.ErrNoRows.
func (r *AttendanceRepository) Get(ctx context.Context, studentID string, date time.Time, period int) (*models.AttendanceRecord, error) {
	const query = `SELECT id, student_id, date, period, status, remarks, recorded_by, created_at, updated_at
FROM attendance_records WHERE student_id = $1 AND date = $2 AND period = $3`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, studentID, regional.FormatDay(date), period); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns records for one day joined with student and classroom display fields.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error) {
	where := []string{"ar.date = $1"}
	args := []interface{}{regional.FormatDay(filter.Date)}
	if filter.ClassroomID != "" {
		where = append(where, fmt.Sprintf("s.classroom_id = $%d", len(args)+1))
		args = append(args, filter.ClassroomID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("ar.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Period != nil {
		where = append(where, fmt.Sprintf("ar.period = $%d", len(args)+1))
		args = append(args, *filter.Period)
	}

	query := fmt.Sprintf(`SELECT ar.id, ar.student_id, ar.date, ar.period, ar.status, ar.remarks, ar.recorded_by, ar.created_at, ar.updated_at,
       s.full_name AS student_name, s.classroom_id, CONCAT(c.grade, '/', c.room) AS classroom_label
FROM attendance_records ar
JOIN students s ON s.id = ar.student_id
JOIN classrooms c ON c.id = s.classroom_id
WHERE %s
ORDER BY ar.period ASC, s.student_number ASC`, strings.Join(where, " AND "))

	var rows []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return rows, nil
}
