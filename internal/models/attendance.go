package models

import (
	"strings"
	"time"
)

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLeave   AttendanceStatus = "LEAVE"
)

// Period bounds. Period 0 is the morning assembly slot.
const (
	AssemblyPeriod = 0
	MinPeriod      = 0
	MaxPeriod      = 8
)

// ParseAttendanceStatus normalises case and reports whether the value is supported.
func ParseAttendanceStatus(raw string) (AttendanceStatus, bool) {
	status := AttendanceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusAbsent, AttendanceStatusLeave:
		return true
	default:
		return false
	}
}

// Notifiable reports whether guardians are told about this status.
func (s AttendanceStatus) Notifiable() bool {
	return s == AttendanceStatusLate || s == AttendanceStatusAbsent
}

// AttendanceRecord is one student's status for one period of one regional calendar day.
// (student_id, date, period) is unique.
type AttendanceRecord struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	Date       time.Time        `db:"date" json:"date"`
	Period     int              `db:"period" json:"period"`
	Status     AttendanceStatus `db:"status" json:"status"`
	Remarks    *string          `db:"remarks" json:"remarks,omitempty"`
	RecordedBy *string          `db:"recorded_by" json:"recorded_by,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecordDetail joins a record with display fields.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName    string `db:"student_name" json:"student_name"`
	ClassroomID    string `db:"classroom_id" json:"classroom_id"`
	ClassroomLabel string `db:"classroom_label" json:"classroom_label"`
}

// AttendanceFilter scopes record listing.
type AttendanceFilter struct {
	ClassroomID string
	StudentID   string
	Date        time.Time
	Period      *int
}

// AttendanceEvent describes a committed write that may warrant a guardian notification.
type AttendanceEvent struct {
	Student    StudentDetail
	Status     AttendanceStatus
	Period     int
	Date       time.Time
	RecordedAt time.Time
}
