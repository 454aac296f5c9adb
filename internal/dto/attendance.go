package dto

import "github.com/noah-isme/sma-attendance-api/internal/models"

// CheckAttendanceRequest marks one student for one period.
type CheckAttendanceRequest struct {
	StudentID string  `json:"studentId" validate:"required"`
	Status    string  `json:"status" validate:"required,attendance_status"`
	Period    *int    `json:"period" validate:"required,min=0,max=8"`
	Remarks   *string `json:"remarks" validate:"omitempty,max=500"`
	Date      string  `json:"date"`
}

// BulkCheckAttendanceRequest marks many slots in one atomic write.
type BulkCheckAttendanceRequest struct {
	Records []CheckAttendanceRequest `json:"records" validate:"required,min=1,max=500,dive"`
}

// BulkCheckAttendanceResponse reports how many rows were written.
type BulkCheckAttendanceResponse struct {
	Count int `json:"count"`
}

// AttendanceListRequest filters a classroom's records for one day.
type AttendanceListRequest struct {
	ClassroomID string `validate:"required"`
	Date        string
	Period      *int `validate:"omitempty,min=0,max=8"`
}

// AttendanceDayResponse wraps a listing with the resolved day key.
type AttendanceDayResponse struct {
	Date    string                          `json:"date"`
	Records []models.AttendanceRecordDetail `json:"records"`
}
