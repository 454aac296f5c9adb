package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/database"
)

// ErrDuplicateCode reports a code that was taken between the availability check and the insert.
var ErrDuplicateCode = errors.New("qr session code already exists")

const uniqueViolation = "23505"

const qrSessionColumns = `qs.id, qs.classroom_id, qs.creator_id, qs.period, qs.code, qs.expires_at, qs.is_active, qs.created_at`

// QRSessionRepository persists self check-in sessions.
type QRSessionRepository struct {
	db *sqlx.DB
}

// NewQRSessionRepository constructs the repository.
func NewQRSessionRepository(db *sqlx.DB) *QRSessionRepository {
	return &QRSessionRepository{db: db}
}

// CodeExists reports whether any session, active or not, already uses code.
func (r *QRSessionRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM qr_sessions WHERE code = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		return false, fmt.Errorf("check qr code: %w", err)
	}
	return exists, nil
}

// CreateReplacing deactivates active sessions for the same (classroom, period) and inserts session.
func (r *QRSessionRepository) CreateReplacing(ctx context.Context, session *models.QRSession) (int64, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}

	var replaced int64
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const deactivate = `UPDATE qr_sessions SET is_active = FALSE WHERE classroom_id = $1 AND period = $2 AND is_active = TRUE`
		res, err := tx.ExecContext(ctx, deactivate, session.ClassroomID, session.Period)
		if err != nil {
			return fmt.Errorf("deactivate previous sessions: %w", err)
		}
		if replaced, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("count deactivated sessions: %w", err)
		}

		const insert = `INSERT INTO qr_sessions (id, classroom_id, creator_id, period, code, expires_at, is_active, created_at)
VALUES (:id, :classroom_id, :creator_id, :period, :code, :expires_at, :is_active, :created_at)`
		if _, err := tx.NamedExecContext(ctx, insert, session); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
				return ErrDuplicateCode
			}
			return fmt.Errorf("insert qr session: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return replaced, nil
}

// FindByCode returns the session owning code or sql.ErrNoRows.
func (r *QRSessionRepository) FindByCode(ctx context.Context, code string) (*models.QRSession, error) {
	query := `SELECT ` + qrSessionColumns + ` FROM qr_sessions qs WHERE qs.code = $1`
	var session models.QRSession
	if err := r.db.GetContext(ctx, &session, query, code); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByID returns the session or sql.ErrNoRows.
func (r *QRSessionRepository) FindByID(ctx context.Context, id string) (*models.QRSession, error) {
	query := `SELECT ` + qrSessionColumns + ` FROM qr_sessions qs WHERE qs.id = $1`
	var session models.QRSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Deactivate flips is_active off. Deactivating an inactive session is a no-op.
func (r *QRSessionRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE qr_sessions SET is_active = FALSE WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deactivate qr session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deactivated session rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListActive returns active, unexpired sessions. A nil classroomIDs slice means every classroom.
func (r *QRSessionRepository) ListActive(ctx context.Context, now time.Time, classroomIDs []string) ([]models.QRSessionDetail, error) {
	query := `SELECT ` + qrSessionColumns + `, CONCAT(c.grade, '/', c.room) AS classroom_label
FROM qr_sessions qs
JOIN classrooms c ON c.id = qs.classroom_id
WHERE qs.is_active = TRUE AND qs.expires_at > $1`
	args := []interface{}{now}
	if classroomIDs != nil {
		if len(classroomIDs) == 0 {
			return []models.QRSessionDetail{}, nil
		}
		query += ` AND qs.classroom_id = ANY($2)`
		args = append(args, pq.Array(classroomIDs))
	}
	query += ` ORDER BY qs.expires_at ASC`

	var sessions []models.QRSessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list active qr sessions: %w", err)
	}
	return sessions, nil
}

// ListCreatedBetween returns a classroom's sessions created in [from, to).
func (r *QRSessionRepository) ListCreatedBetween(ctx context.Context, classroomID string, from, to time.Time) ([]models.QRSessionDetail, error) {
	query := `SELECT ` + qrSessionColumns + `, CONCAT(c.grade, '/', c.room) AS classroom_label
FROM qr_sessions qs
JOIN classrooms c ON c.id = qs.classroom_id
WHERE qs.classroom_id = $1 AND qs.created_at >= $2 AND qs.created_at < $3
ORDER BY qs.created_at DESC`
	var sessions []models.QRSessionDetail
	if err := r.db.SelectContext(ctx, &sessions, query, classroomID, from, to); err != nil {
		return nil, fmt.Errorf("list qr session history: %w", err)
	}
	return sessions, nil
}
