package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/regional"
)

const (
	qrCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	qrCodeLength   = 6

	defaultQRImageSize = 256
	maxQRImageSize     = 1024
)

// Scan result labels used for metrics.
const (
	scanOK           = "ok"
	scanNotFound     = "not_found"
	scanInvalidState = "invalid_state"
	scanForbidden    = "forbidden"
)

type qrSessionStore interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	CreateReplacing(ctx context.Context, session *models.QRSession) (int64, error)
	FindByCode(ctx context.Context, code string) (*models.QRSession, error)
	FindByID(ctx context.Context, id string) (*models.QRSession, error)
	Deactivate(ctx context.Context, id string) error
	ListActive(ctx context.Context, now time.Time, classroomIDs []string) ([]models.QRSessionDetail, error)
	ListCreatedBetween(ctx context.Context, classroomID string, from, to time.Time) ([]models.QRSessionDetail, error)
}

type qrAttendanceWriter interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error)
}

type qrStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type qrAuthorizer interface {
	AuthorizeClassroom(ctx context.Context, actor *models.JWTClaims, classroomID string) (*models.Classroom, error)
	AccessibleClassrooms(ctx context.Context, actor *models.JWTClaims) ([]string, error)
}

// CodeGenerator produces candidate session codes.
type CodeGenerator func() (string, error)

// QRConfig tunes session lifetimes and code generation.
type QRConfig struct {
	DefaultDuration time.Duration
	MaxDuration     time.Duration
	CodeAttempts    int
	Generator       CodeGenerator
}

// QRSessionService manages time-boxed self check-in sessions. At most one session per
// (classroom, period) is active; expiry is derived from expires_at at read time.
type QRSessionService struct {
	sessions    qrSessionStore
	attendance  qrAttendanceWriter
	students    qrStudentReader
	permissions qrAuthorizer
	clock       *regional.Clock
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         QRConfig
}

// NewQRSessionService constructs the QR session service.
func NewQRSessionService(sessions qrSessionStore, attendance qrAttendanceWriter, students qrStudentReader, permissions qrAuthorizer, clock *regional.Clock, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg QRConfig) *QRSessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = regional.New(0)
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 5 * time.Minute
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 60 * time.Minute
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = 5
	}
	if cfg.Generator == nil {
		cfg.Generator = RandomQRCode
	}
	return &QRSessionService{
		sessions:    sessions,
		attendance:  attendance,
		students:    students,
		permissions: permissions,
		clock:       clock,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
	}
}

// RandomQRCode returns a 6-character code over A-Z0-9 from crypto/rand.
func RandomQRCode() (string, error) {
	limit := big.NewInt(int64(len(qrCodeAlphabet)))
	buf := make([]byte, qrCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		buf[i] = qrCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Create opens a session, replacing any active session for the same classroom period.
func (s *QRSessionService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateQRSessionRequest) (*dto.QRSessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid qr session payload")
	}

	classroom, err := s.permissions.AuthorizeClassroom(ctx, actor, req.ClassroomID)
	if err != nil {
		return nil, err
	}

	duration := s.cfg.DefaultDuration
	if req.DurationMinutes != nil {
		duration = time.Duration(*req.DurationMinutes) * time.Minute
	}
	if duration > s.cfg.MaxDuration {
		duration = s.cfg.MaxDuration
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Instant()
	session := &models.QRSession{
		ClassroomID: classroom.ID,
		CreatorID:   actor.UserID,
		Period:      *req.Period,
		Code:        code,
		ExpiresAt:   now.Add(duration),
		IsActive:    true,
		CreatedAt:   now,
	}
	replaced, err := s.sessions.CreateReplacing(ctx, session)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateCode) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "qr code collided, please retry")
		}
		return nil, appErrors.Internal(err, "failed to create qr session")
	}
	s.metrics.RecordQRSessionCreated()
	s.logger.Info("qr session created",
		zap.String("session_id", session.ID),
		zap.String("classroom_id", session.ClassroomID),
		zap.Int("period", session.Period),
		zap.Int64("replaced", replaced))

	resp := s.toResponse(*session, classroom.Label(), now)
	return &resp, nil
}

// Scan checks a student in as present for the session's period of the current regional day.
func (s *QRSessionService) Scan(ctx context.Context, actor *models.JWTClaims, req dto.ScanQRCodeRequest) (*dto.ScanQRCodeResponse, error) {
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid qr code")
	}
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}

	session, err := s.sessions.FindByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordQRScan(scanNotFound)
			return nil, appErrors.Clone(appErrors.ErrNotFound, "qr code not found")
		}
		return nil, appErrors.Internal(err, "failed to load qr session")
	}

	now := s.clock.Instant()
	switch session.State(now) {
	case models.QRSessionDeactivated:
		s.metrics.RecordQRScan(scanInvalidState)
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "qr session has been closed")
	case models.QRSessionExpired:
		s.metrics.RecordQRScan(scanInvalidState)
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "qr session has expired")
	}

	student, err := s.enrolledStudent(ctx, actor, session.ClassroomID)
	if err != nil {
		s.metrics.RecordQRScan(scanForbidden)
		return nil, err
	}

	remark := fmt.Sprintf("Checked in via QR code %s", session.Code)
	stored, err := s.attendance.Upsert(ctx, &models.AttendanceRecord{
		StudentID:  student.ID,
		Date:       s.clock.DayKey(now),
		Period:     session.Period,
		Status:     models.AttendanceStatusPresent,
		Remarks:    &remark,
		RecordedBy: &actor.UserID,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to save attendance")
	}
	s.metrics.RecordAttendanceWrite(WriteSourceQR, 1)
	s.metrics.RecordQRScan(scanOK)

	return &dto.ScanQRCodeResponse{
		Success:     true,
		StudentName: student.FullName,
		Period:      stored.Period,
		Status:      stored.Status,
		CheckedAt:   now,
	}, nil
}

// Deactivate closes a session. Only its creator or an admin may do so; closing an
// already inactive session succeeds without changes.
func (s *QRSessionService) Deactivate(ctx context.Context, actor *models.JWTClaims, req dto.DeactivateQRSessionRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid deactivate payload")
	}
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing actor")
	}

	session, err := s.sessions.FindByID(ctx, req.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "qr session not found")
		}
		return appErrors.Internal(err, "failed to load qr session")
	}
	if !actor.IsAdmin() && session.CreatorID != actor.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the creator or an admin may close this session")
	}
	if !session.IsActive {
		return nil
	}
	if err := s.sessions.Deactivate(ctx, session.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Internal(err, "failed to deactivate qr session")
	}
	return nil
}

// ListActive returns unexpired active sessions visible to the actor.
func (s *QRSessionService) ListActive(ctx context.Context, actor *models.JWTClaims) ([]dto.QRSessionResponse, error) {
	classroomIDs, err := s.permissions.AccessibleClassrooms(ctx, actor)
	if err != nil {
		return nil, err
	}
	if classroomIDs == nil && !actor.IsAdmin() {
		classroomIDs = []string{}
	}
	now := s.clock.Instant()
	sessions, err := s.sessions.ListActive(ctx, now, classroomIDs)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list qr sessions")
	}
	return s.toResponses(sessions, now), nil
}

// History returns a classroom's sessions created on one regional day with derived state.
func (s *QRSessionService) History(ctx context.Context, actor *models.JWTClaims, req dto.QRSessionHistoryRequest) ([]dto.QRSessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid history filter")
	}
	if _, err := s.permissions.AuthorizeClassroom(ctx, actor, req.ClassroomID); err != nil {
		return nil, err
	}
	from, to := s.clock.KeyRange(s.clock.ParseOrToday(req.Date))
	sessions, err := s.sessions.ListCreatedBetween(ctx, req.ClassroomID, from, to)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list qr session history")
	}
	return s.toResponses(sessions, s.clock.Instant()), nil
}

// Image renders the session code as a PNG for projection in class.
func (s *QRSessionService) Image(ctx context.Context, actor *models.JWTClaims, id string, size int) ([]byte, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "qr session not found")
		}
		return nil, appErrors.Internal(err, "failed to load qr session")
	}
	if _, err := s.permissions.AuthorizeClassroom(ctx, actor, session.ClassroomID); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = defaultQRImageSize
	}
	if size > maxQRImageSize {
		size = maxQRImageSize
	}
	png, err := qrcode.Encode(session.Code, qrcode.Medium, size)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render qr image")
	}
	return png, nil
}

func (s *QRSessionService) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= s.cfg.CodeAttempts; attempt++ {
		code, err := s.cfg.Generator()
		if err != nil {
			return "", appErrors.Internal(err, "failed to generate qr code")
		}
		exists, err := s.sessions.CodeExists(ctx, code)
		if err != nil {
			return "", appErrors.Internal(err, "failed to check qr code")
		}
		if !exists {
			return code, nil
		}
		s.logger.Debug("qr code collision", zap.Int("attempt", attempt))
	}
	return "", appErrors.Clone(appErrors.ErrRetryExhausted, fmt.Sprintf("could not generate a unique qr code after %d attempts", s.cfg.CodeAttempts))
}

func (s *QRSessionService) enrolledStudent(ctx context.Context, actor *models.JWTClaims, classroomID string) (*models.StudentDetail, error) {
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students may scan qr codes")
	}
	student, err := s.students.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no student record for this account")
		}
		return nil, appErrors.Internal(err, "failed to load student")
	}
	if student.ClassroomID != classroomID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this classroom")
	}
	return student, nil
}

func (s *QRSessionService) toResponses(sessions []models.QRSessionDetail, now time.Time) []dto.QRSessionResponse {
	out := make([]dto.QRSessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, s.toResponse(session.QRSession, session.ClassroomLabel, now))
	}
	return out
}

func (s *QRSessionService) toResponse(session models.QRSession, label string, now time.Time) dto.QRSessionResponse {
	return dto.QRSessionResponse{
		QRSession:       session,
		State:           session.State(now),
		DurationMinutes: int(session.ExpiresAt.Sub(session.CreatedAt).Round(time.Minute) / time.Minute),
		ClassroomLabel:  label,
	}
}
