package models

import "time"

// QRSessionState is derived from the stored flag and the wall clock.
type QRSessionState string

const (
	QRSessionActive      QRSessionState = "ACTIVE"
	QRSessionExpired     QRSessionState = "EXPIRED"
	QRSessionDeactivated QRSessionState = "DEACTIVATED"
)

// QRSession is a time-boxed self check-in code for one (classroom, period) scope.
type QRSession struct {
	ID          string    `db:"id" json:"id"`
	ClassroomID string    `db:"classroom_id" json:"classroom_id"`
	CreatorID   string    `db:"creator_id" json:"creator_id"`
	Period      int       `db:"period" json:"period"`
	Code        string    `db:"code" json:"code"`
	ExpiresAt   time.Time `db:"expires_at" json:"expires_at"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// State derives the lifecycle state at now. Expiry is never written back.
func (s QRSession) State(now time.Time) QRSessionState {
	switch {
	case !s.IsActive:
		return QRSessionDeactivated
	case now.After(s.ExpiresAt):
		return QRSessionExpired
	default:
		return QRSessionActive
	}
}

// QRSessionDetail adds the classroom label for listings.
type QRSessionDetail struct {
	QRSession
	ClassroomLabel string `db:"classroom_label" json:"classroom_label"`
}
