package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/regional"
)

type attendanceStore interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
	BulkUpsert(ctx context.Context, records []models.AttendanceRecord) (int, error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecordDetail, error)
}

type studentDirectory interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.StudentDetail, error)
}

type attendanceAuthorizer interface {
	AuthorizeStudent(ctx context.Context, actor *models.JWTClaims, studentID string) (*models.StudentDetail, error)
	AuthorizeClassroom(ctx context.Context, actor *models.JWTClaims, classroomID string) (*models.Classroom, error)
	AuthorizeStudents(ctx context.Context, actor *models.JWTClaims, students []models.StudentDetail) error
}

type attendanceNotifier interface {
	Notify(ctx context.Context, event models.AttendanceEvent) error
	NotifyMany(ctx context.Context, events []models.AttendanceEvent) error
}

// AttendanceService records per-period attendance singly or in atomic batches.
type AttendanceService struct {
	store       attendanceStore
	students    studentDirectory
	permissions attendanceAuthorizer
	notifier    attendanceNotifier
	clock       *regional.Clock
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(store attendanceStore, students studentDirectory, permissions attendanceAuthorizer, notifier attendanceNotifier, clock *regional.Clock, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = regional.New(0)
	}
	registerAttendanceValidations(validate)
	return &AttendanceService{
		store:       store,
		students:    students,
		permissions: permissions,
		notifier:    notifier,
		clock:       clock,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

func registerAttendanceValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseAttendanceStatus(fl.Field().String())
		return ok
	})
}

// Check upserts one student's status for one period of a regional day. Guardian
// notification is best effort and never fails the write.
func (s *AttendanceService) Check(ctx context.Context, actor *models.JWTClaims, req dto.CheckAttendanceRequest) (*models.AttendanceRecordDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	status, _ := models.ParseAttendanceStatus(req.Status)
	day := s.clock.ParseOrToday(req.Date)

	student, err := s.permissions.AuthorizeStudent(ctx, actor, req.StudentID)
	if err != nil {
		return nil, err
	}

	stored, err := s.store.Upsert(ctx, &models.AttendanceRecord{
		StudentID:  student.ID,
		Date:       day,
		Period:     *req.Period,
		Status:     status,
		Remarks:    trimmedOrNil(req.Remarks),
		RecordedBy: &actor.UserID,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to save attendance")
	}
	s.metrics.RecordAttendanceWrite(WriteSourceCheck, 1)

	if status.Notifiable() {
		s.notify(ctx, eventFor(*student, stored))
	}

	return &models.AttendanceRecordDetail{
		AttendanceRecord: *stored,
		StudentName:      student.FullName,
		ClassroomID:      student.ClassroomID,
		ClassroomLabel:   student.ClassroomLabel,
	}, nil
}

// BulkCheck authorizes every target in one pass, writes all rows in one transaction and
// queues guardian notifications after commit.
func (s *AttendanceService) BulkCheck(ctx context.Context, actor *models.JWTClaims, req dto.BulkCheckAttendanceRequest) (*dto.BulkCheckAttendanceResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}

	ids := make([]string, 0, len(req.Records))
	seen := make(map[string]struct{}, len(req.Records))
	for _, item := range req.Records {
		if _, ok := seen[item.StudentID]; ok {
			continue
		}
		seen[item.StudentID] = struct{}{}
		ids = append(ids, item.StudentID)
	}

	found, err := s.students.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load students")
	}
	byID := make(map[string]models.StudentDetail, len(found))
	for _, student := range found {
		byID[student.ID] = student
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("student %s not found", id))
		}
	}

	if err := s.permissions.AuthorizeStudents(ctx, actor, found); err != nil {
		return nil, err
	}

	records := make([]models.AttendanceRecord, 0, len(req.Records))
	for _, item := range req.Records {
		status, _ := models.ParseAttendanceStatus(item.Status)
		records = append(records, models.AttendanceRecord{
			StudentID:  item.StudentID,
			Date:       s.clock.ParseOrToday(item.Date),
			Period:     *item.Period,
			Status:     status,
			Remarks:    trimmedOrNil(item.Remarks),
			RecordedBy: &actor.UserID,
		})
	}

	count, err := s.store.BulkUpsert(ctx, records)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to save attendance batch")
	}
	s.metrics.RecordAttendanceWrite(WriteSourceBulk, count)

	var events []models.AttendanceEvent
	for _, i := range lastPerSlot(records) {
		if records[i].Status.Notifiable() {
			events = append(events, eventFor(byID[records[i].StudentID], &records[i]))
		}
	}
	if len(events) > 0 && s.notifier != nil {
		if err := s.notifier.NotifyMany(ctx, events); err != nil {
			s.logger.Warn("failed to queue bulk notifications", zap.Int("events", len(events)), zap.Error(err))
		}
	}

	return &dto.BulkCheckAttendanceResponse{Count: count}, nil
}

// ListDaily returns a classroom's records for one regional day.
func (s *AttendanceService) ListDaily(ctx context.Context, actor *models.JWTClaims, req dto.AttendanceListRequest) (*dto.AttendanceDayResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance filter")
	}
	if _, err := s.permissions.AuthorizeClassroom(ctx, actor, req.ClassroomID); err != nil {
		return nil, err
	}
	day := s.clock.ParseOrToday(req.Date)
	rows, err := s.store.List(ctx, models.AttendanceFilter{ClassroomID: req.ClassroomID, Date: day, Period: req.Period})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list attendance")
	}
	return dayResponse(day, rows), nil
}

// ListStudentDay returns one student's records for one regional day.
func (s *AttendanceService) ListStudentDay(ctx context.Context, actor *models.JWTClaims, studentID, date string) (*dto.AttendanceDayResponse, error) {
	if _, err := s.permissions.AuthorizeStudent(ctx, actor, studentID); err != nil {
		return nil, err
	}
	day := s.clock.ParseOrToday(date)
	rows, err := s.store.List(ctx, models.AttendanceFilter{StudentID: studentID, Date: day})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list attendance")
	}
	return dayResponse(day, rows), nil
}

func (s *AttendanceService) notify(ctx context.Context, event models.AttendanceEvent) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn("failed to queue attendance notification",
			zap.String("student_id", event.Student.ID),
			zap.Error(err))
	}
}

// lastPerSlot returns, in input order, the index of the final entry for each
// (student, day, period). Earlier entries for a slot were overwritten in the store.
func lastPerSlot(records []models.AttendanceRecord) []int {
	keys := make([]string, len(records))
	last := make(map[string]int, len(records))
	for i, rec := range records {
		keys[i] = fmt.Sprintf("%s|%s|%d", rec.StudentID, regional.FormatDay(rec.Date), rec.Period)
		last[keys[i]] = i
	}
	indexes := make([]int, 0, len(last))
	for i, key := range keys {
		if last[key] == i {
			indexes = append(indexes, i)
		}
	}
	return indexes
}

func eventFor(student models.StudentDetail, record *models.AttendanceRecord) models.AttendanceEvent {
	return models.AttendanceEvent{
		Student:    student,
		Status:     record.Status,
		Period:     record.Period,
		Date:       record.Date,
		RecordedAt: record.UpdatedAt,
	}
}

func dayResponse(day time.Time, rows []models.AttendanceRecordDetail) *dto.AttendanceDayResponse {
	if rows == nil {
		rows = []models.AttendanceRecordDetail{}
	}
	return &dto.AttendanceDayResponse{Date: regional.FormatDay(day), Records: rows}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
