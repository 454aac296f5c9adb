package dto

import (
	"time"

	"github.com/noah-isme/sma-attendance-api/internal/models"
)

// CreateQRSessionRequest opens a self check-in window for one classroom period.
type CreateQRSessionRequest struct {
	ClassroomID     string `json:"classroomId" validate:"required"`
	Period          *int   `json:"period" validate:"required,min=0,max=8"`
	DurationMinutes *int   `json:"durationMinutes" validate:"omitempty,min=1,max=60"`
}

// QRSessionResponse is the session as returned to staff.
type QRSessionResponse struct {
	models.QRSession
	State           models.QRSessionState `json:"state"`
	DurationMinutes int                   `json:"durationMinutes"`
	ClassroomLabel  string                `json:"classroomLabel,omitempty"`
}

// ScanQRCodeRequest is a student's check-in attempt.
type ScanQRCodeRequest struct {
	Code string `json:"code" validate:"required,min=6,max=6,alphanum"`
}

// ScanQRCodeResponse confirms a self check-in.
type ScanQRCodeResponse struct {
	Success     bool                    `json:"success"`
	StudentName string                  `json:"studentName"`
	Period      int                     `json:"period"`
	Status      models.AttendanceStatus `json:"status"`
	CheckedAt   time.Time               `json:"checkedAt"`
}

// DeactivateQRSessionRequest closes a session explicitly.
type DeactivateQRSessionRequest struct {
	ID string `json:"id" validate:"required"`
}

// QRSessionHistoryRequest lists a classroom's sessions created on one regional day.
type QRSessionHistoryRequest struct {
	ClassroomID string `validate:"required"`
	Date        string
}
