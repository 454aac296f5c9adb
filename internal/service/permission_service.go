package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
)

type permissionStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type classroomAccessReader interface {
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
	HasAccess(ctx context.Context, teacherID, classroomID string) (bool, error)
	ListAccessibleIDs(ctx context.Context, teacherID string) ([]string, error)
}

// PermissionService decides whether an actor may act on a student or classroom.
// Admins act everywhere, teachers act on classrooms they teach or homeroom, and any
// other actor may only act on their own student record.
type PermissionService struct {
	students   permissionStudentReader
	classrooms classroomAccessReader
	logger     *zap.Logger
}

// NewPermissionService constructs the permission oracle.
func NewPermissionService(students permissionStudentReader, classrooms classroomAccessReader, logger *zap.Logger) *PermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionService{students: students, classrooms: classrooms, logger: logger}
}

// AuthorizeStudent loads the student and checks the actor may record attendance for them.
func (s *PermissionService) AuthorizeStudent(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.StudentDetail, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if err := s.allowStudent(ctx, actor, &student.Student); err != nil {
		return nil, err
	}
	return student, nil
}

// AuthorizeClassroom loads the classroom and checks the actor may manage it.
func (s *PermissionService) AuthorizeClassroom(ctx context.Context, actor *models.JWTClaims, classroomID string) (*models.Classroom, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}
	classroom, err := s.classrooms.FindByID(ctx, classroomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return nil, appErrors.Internal(err, "failed to load classroom")
	}
	if actor.IsAdmin() {
		return classroom, nil
	}
	if actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to manage this classroom")
	}
	ok, err := s.classrooms.HasAccess(ctx, actor.UserID, classroom.ID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check classroom access")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teacher has no access to this classroom")
	}
	return classroom, nil
}

// AuthorizeStudents checks a whole batch in one pass. Teachers are checked once per
// distinct classroom; the first denial aborts.
func (s *PermissionService) AuthorizeStudents(ctx context.Context, actor *models.JWTClaims, students []models.StudentDetail) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}
	if actor.IsAdmin() {
		return nil
	}
	if actor.Role == models.RoleTeacher {
		checked := make(map[string]struct{}, len(students))
		for _, student := range students {
			if _, ok := checked[student.ClassroomID]; ok {
				continue
			}
			ok, err := s.classrooms.HasAccess(ctx, actor.UserID, student.ClassroomID)
			if err != nil {
				return appErrors.Internal(err, "failed to check classroom access")
			}
			if !ok {
				return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("teacher has no access to classroom %s", student.ClassroomLabel))
			}
			checked[student.ClassroomID] = struct{}{}
		}
		return nil
	}
	for _, student := range students {
		if student.ID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "students may only record their own attendance")
		}
	}
	return nil
}

// AccessibleClassrooms returns the classroom ids a teacher may see. Admins get nil, meaning all.
func (s *PermissionService) AccessibleClassrooms(ctx context.Context, actor *models.JWTClaims) ([]string, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}
	if actor.IsAdmin() {
		return nil, nil
	}
	if actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may list classrooms")
	}
	ids, err := s.classrooms.ListAccessibleIDs(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list accessible classrooms")
	}
	return ids, nil
}

func (s *PermissionService) allowStudent(ctx context.Context, actor *models.JWTClaims, student *models.Student) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeacher:
		ok, err := s.classrooms.HasAccess(ctx, actor.UserID, student.ClassroomID)
		if err != nil {
			return appErrors.Internal(err, "failed to check classroom access")
		}
		if !ok {
			s.logger.Debug("teacher denied student access",
				zap.String("teacher_id", actor.UserID),
				zap.String("student_id", student.ID))
			return appErrors.Clone(appErrors.ErrForbidden, "teacher has no access to this student")
		}
		return nil
	default:
		if student.ID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "not allowed to record attendance for this student")
		}
		return nil
	}
}
