package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

const studentDetailQuery = `SELECT s.id, s.student_number, s.full_name, s.classroom_id, s.guardian_address, s.active,
       CONCAT(c.grade, '/', c.room) AS classroom_label
FROM students s
JOIN classrooms c ON c.id = s.classroom_id`

// StudentRepository reads students together with their classroom label.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a student repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student or sql.ErrNoRows.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, studentDetailQuery+` WHERE s.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// FindByIDs returns the students that exist among ids. Missing ids are simply absent from the result.
func (r *StudentRepository) FindByIDs(ctx context.Context, ids []string) ([]models.StudentDetail, error) {
	if len(ids) == 0 {
		return []models.StudentDetail{}, nil
	}
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, studentDetailQuery+` WHERE s.id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("find students: %w", err)
	}
	return students, nil
}
