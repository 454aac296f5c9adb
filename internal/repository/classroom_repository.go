package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

// ClassroomRepository resolves classrooms and teacher access to them. A teacher may act on a
// classroom when they are its homeroom teacher or hold a teaching assignment in it.
type ClassroomRepository struct {
	db *sqlx.DB
}

// NewClassroomRepository constructs a classroom repository.
func NewClassroomRepository(db *sqlx.DB) *ClassroomRepository {
	return &ClassroomRepository{db: db}
}

// FindByID returns a classroom or sql.ErrNoRows.
func (r *ClassroomRepository) FindByID(ctx context.Context, id string) (*models.Classroom, error) {
	const query = `SELECT id, grade, room, homeroom_teacher_id FROM classrooms WHERE id = $1`
	var classroom models.Classroom
	if err := r.db.GetContext(ctx, &classroom, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find classroom: %w", err)
	}
	return &classroom, nil
}

// HasAccess reports whether teacherID may manage attendance for classroomID.
func (r *ClassroomRepository) HasAccess(ctx context.Context, teacherID, classroomID string) (bool, error) {
	const query = `SELECT EXISTS (
    SELECT 1 FROM classrooms WHERE id = $2 AND homeroom_teacher_id = $1
    UNION ALL
    SELECT 1 FROM teacher_assignments WHERE classroom_id = $2 AND teacher_id = $1
)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, query, teacherID, classroomID); err != nil {
		return false, fmt.Errorf("check classroom access: %w", err)
	}
	return ok, nil
}

// ListAccessibleIDs returns every classroom a teacher may manage.
func (r *ClassroomRepository) ListAccessibleIDs(ctx context.Context, teacherID string) ([]string, error) {
	const query = `SELECT id FROM classrooms WHERE homeroom_teacher_id = $1
UNION
SELECT classroom_id FROM teacher_assignments WHERE teacher_id = $1`
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, query, teacherID); err != nil {
		return nil, fmt.Errorf("list accessible classrooms: %w", err)
	}
	return ids, nil
}
